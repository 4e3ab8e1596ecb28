package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestReloadKeepsPointerUpdatesValues(t *testing.T) {
	t.Setenv("LEVERAGE", "2")
	Init()
	cfg := Get()
	assert.Equal(t, 2, cfg.Leverage)

	t.Setenv("LEVERAGE", "5")
	reloaded := Reload()

	// Holders of the old pointer see the new values
	assert.Same(t, cfg, reloaded)
	assert.Equal(t, 5, cfg.Leverage)
}

func TestCCIFloorAcceptsNegativeValues(t *testing.T) {
	t.Setenv("CCI_FLOOR", "-150")
	Init()
	assert.Equal(t, -150.0, Get().CCIFloor)
}
