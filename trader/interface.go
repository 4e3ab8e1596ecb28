// Package trader is the exchange gateway: order placement, cancellation,
// balance and position queries behind one interface, with a live Binance
// futures implementation and an in-memory paper venue.
package trader

import (
	"context"
	"time"
)

// OpenOrder is one resting limit order on the venue
type OpenOrder struct {
	OrderID      string  `json:"order_id"`
	ClientID     string  `json:"client_id"`
	Symbol       string  `json:"symbol"`
	Side         string  `json:"side"`          // BUY/SELL
	PositionSide string  `json:"position_side"` // LONG/SHORT/BOTH
	Price        float64 `json:"price"`
	Quantity     float64 `json:"quantity"`
	Status       string  `json:"status"` // NEW, PARTIALLY_FILLED
}

// LimitOrderRequest describes a limit order to place
type LimitOrderRequest struct {
	Symbol       string  `json:"symbol"`
	Side         string  `json:"side"`          // BUY/SELL
	PositionSide string  `json:"position_side"` // LONG/SHORT (hedge mode)
	Price        float64 `json:"price"`
	Quantity     float64 `json:"quantity"`
	ClientID     string  `json:"client_id"`
}

// LimitOrderResult is the venue acknowledgement
type LimitOrderResult struct {
	OrderID      string  `json:"order_id"`
	ClientID     string  `json:"client_id"`
	Symbol       string  `json:"symbol"`
	Side         string  `json:"side"`
	PositionSide string  `json:"position_side"`
	Price        float64 `json:"price"`
	Quantity     float64 `json:"quantity"`
	Status       string  `json:"status"` // NEW, PARTIALLY_FILLED, FILLED, CANCELED
}

// Position is one open position on the venue
type Position struct {
	Symbol        string    `json:"symbol"`
	Side          string    `json:"side"` // LONG/SHORT
	EntryPrice    float64   `json:"entry_price"`
	MarkPrice     float64   `json:"mark_price"`
	Quantity      float64   `json:"quantity"`
	UnrealizedPnL float64   `json:"unrealized_pnl"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// SymbolFilters are the exchange trading rules for one symbol
type SymbolFilters struct {
	Symbol      string  `json:"symbol"`
	PriceTick   float64 `json:"price_tick"`
	QtyStep     float64 `json:"qty_step"`
	MinQty      float64 `json:"min_qty"`
	MinNotional float64 `json:"min_notional"`
}

// Exchange is the gateway every grid controller trades through
type Exchange interface {
	// GetBalance returns available USDT balance
	GetBalance(ctx context.Context) (float64, error)

	// GetEquity returns total account equity in USDT
	GetEquity(ctx context.Context) (float64, error)

	// GetMarketPrice returns the latest price for symbol
	GetMarketPrice(ctx context.Context, symbol string) (float64, error)

	// GetOpenOrders lists resting orders for symbol
	GetOpenOrders(ctx context.Context, symbol string) ([]OpenOrder, error)

	// PlaceLimitOrder places a limit order
	PlaceLimitOrder(ctx context.Context, req *LimitOrderRequest) (*LimitOrderResult, error)

	// CancelOrder cancels a single order
	CancelOrder(ctx context.Context, symbol, orderID string) error

	// CancelAllOrders cancels every resting order for symbol
	CancelAllOrders(ctx context.Context, symbol string) error

	// GetPositions lists open positions (all symbols when symbol is empty)
	GetPositions(ctx context.Context, symbol string) ([]Position, error)

	// ClosePosition market-closes a position
	ClosePosition(ctx context.Context, symbol, side string, quantity float64) error

	// SetLeverage sets symbol leverage
	SetLeverage(ctx context.Context, symbol string, leverage int) error

	// GetSymbolFilters returns the trading rules for symbol
	GetSymbolFilters(ctx context.Context, symbol string) (*SymbolFilters, error)
}
