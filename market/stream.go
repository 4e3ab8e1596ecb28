package market

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"gridpilot/logger"
)

const (
	combinedStreamURL = "wss://fstream.binance.com/stream"
	priceStaleAfter   = 10 * time.Second
)

// PriceStream keeps a live mark-price cache fed by the Binance combined
// streams endpoint. Consumers fall back to REST when a price is stale.
type PriceStream struct {
	conn      *websocket.Conn
	mu        sync.RWMutex
	prices    map[string]streamPrice
	symbols   []string
	reconnect bool
	done      chan struct{}
}

type streamPrice struct {
	price float64
	at    time.Time
}

// NewPriceStream creates a stream for the given symbols (not yet connected)
func NewPriceStream(symbols []string) *PriceStream {
	return &PriceStream{
		prices:    make(map[string]streamPrice),
		symbols:   symbols,
		reconnect: true,
		done:      make(chan struct{}),
	}
}

// Connect dials the combined streams endpoint and subscribes to the
// mark-price stream of every symbol
func (ps *PriceStream) Connect() error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}

	conn, _, err := dialer.Dial(combinedStreamURL, nil)
	if err != nil {
		return fmt.Errorf("price stream connection failed: %w", err)
	}

	ps.mu.Lock()
	if !ps.reconnect {
		ps.mu.Unlock()
		conn.Close()
		return fmt.Errorf("price stream closed")
	}
	ps.conn = conn
	ps.mu.Unlock()

	if err := ps.subscribe(); err != nil {
		conn.Close()
		return err
	}

	logger.Infof("[Market] price stream connected, %d symbols", len(ps.symbols))
	go ps.readMessages()
	return nil
}

func (ps *PriceStream) subscribe() error {
	streams := make([]string, len(ps.symbols))
	for i, s := range ps.symbols {
		streams[i] = fmt.Sprintf("%s@markPrice@1s", strings.ToLower(s))
	}

	msg := map[string]interface{}{
		"method": "SUBSCRIBE",
		"params": streams,
		"id":     time.Now().UnixNano(),
	}

	ps.mu.RLock()
	defer ps.mu.RUnlock()
	if ps.conn == nil {
		return fmt.Errorf("price stream not connected")
	}
	return ps.conn.WriteJSON(msg)
}

func (ps *PriceStream) readMessages() {
	for {
		select {
		case <-ps.done:
			return
		default:
			ps.mu.RLock()
			conn := ps.conn
			ps.mu.RUnlock()

			if conn == nil {
				time.Sleep(time.Second)
				continue
			}

			_, message, err := conn.ReadMessage()
			if err != nil {
				logger.Warnf("[Market] price stream read failed: %v", err)
				ps.handleReconnect()
				return
			}
			ps.handleMessage(message)
		}
	}
}

func (ps *PriceStream) handleMessage(message []byte) {
	var combined struct {
		Stream string `json:"stream"`
		Data   struct {
			Symbol    string `json:"s"`
			MarkPrice string `json:"p"`
		} `json:"data"`
	}
	if err := json.Unmarshal(message, &combined); err != nil {
		return
	}
	if combined.Data.Symbol == "" {
		return
	}

	price := parseFloat(combined.Data.MarkPrice)
	if price <= 0 {
		return
	}

	ps.mu.Lock()
	ps.prices[combined.Data.Symbol] = streamPrice{price: price, at: time.Now()}
	ps.mu.Unlock()
}

// Price returns the cached mark price for symbol, false when missing or
// stale
func (ps *PriceStream) Price(symbol string) (float64, bool) {
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	p, ok := ps.prices[symbol]
	if !ok || time.Since(p.at) > priceStaleAfter {
		return 0, false
	}
	return p.price, true
}

func (ps *PriceStream) handleReconnect() {
	if !ps.shouldReconnect() {
		return
	}

	logger.Infof("[Market] price stream reconnecting...")
	select {
	case <-ps.done:
		return
	case <-time.After(3 * time.Second):
	}

	// Close may have won the race during the wait
	if !ps.shouldReconnect() {
		return
	}
	if err := ps.Connect(); err != nil {
		logger.Warnf("[Market] price stream reconnect failed: %v", err)
		go ps.handleReconnect()
	}
}

func (ps *PriceStream) shouldReconnect() bool {
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	return ps.reconnect
}

// Close shuts the stream down permanently
func (ps *PriceStream) Close() {
	ps.mu.Lock()
	ps.reconnect = false
	conn := ps.conn
	ps.conn = nil
	ps.mu.Unlock()

	close(ps.done)
	if conn != nil {
		conn.Close()
	}
}
