package market

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPriceStreamCloseStopsReconnect(t *testing.T) {
	ps := NewPriceStream([]string{"BTCUSDT"})
	ps.Close()

	// A reconnect racing a close must give up instead of redialing
	ps.handleReconnect()
	assert.False(t, ps.shouldReconnect())

	_, ok := ps.Price("BTCUSDT")
	assert.False(t, ok)
}

func TestPriceStreamStaleness(t *testing.T) {
	ps := NewPriceStream([]string{"BTCUSDT"})

	ps.mu.Lock()
	ps.prices["BTCUSDT"] = streamPrice{price: 100, at: time.Now().Add(-priceStaleAfter - time.Second)}
	ps.mu.Unlock()
	_, ok := ps.Price("BTCUSDT")
	assert.False(t, ok, "stale prices must not be served")

	ps.mu.Lock()
	ps.prices["BTCUSDT"] = streamPrice{price: 100, at: time.Now()}
	ps.mu.Unlock()
	p, ok := ps.Price("BTCUSDT")
	assert.True(t, ok)
	assert.Equal(t, 100.0, p)
}
