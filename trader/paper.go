package trader

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"
)

// PaperExchange is an in-memory venue used for dry runs and tests. Fills
// are driven explicitly through FillOrder rather than by a matching
// engine.
type PaperExchange struct {
	mu      sync.Mutex
	balance float64
	prices  map[string]float64
	orders  map[string]OpenOrder
	pos     map[string]*Position
	nextID  int64
	filters map[string]*SymbolFilters
}

// NewPaperExchange creates a paper venue with an initial USDT balance
func NewPaperExchange(initialBalance float64) *PaperExchange {
	return &PaperExchange{
		balance: initialBalance,
		prices:  make(map[string]float64),
		orders:  make(map[string]OpenOrder),
		pos:     make(map[string]*Position),
		nextID:  1,
		filters: make(map[string]*SymbolFilters),
	}
}

// SetPrice sets the mark price for a symbol
func (p *PaperExchange) SetPrice(symbol string, price float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.prices[symbol] = price
	if pos, ok := p.pos[symbol]; ok {
		pos.MarkPrice = price
		if pos.Side == "LONG" {
			pos.UnrealizedPnL = (price - pos.EntryPrice) * pos.Quantity
		} else {
			pos.UnrealizedPnL = (pos.EntryPrice - price) * pos.Quantity
		}
	}
}

// SetFilters overrides the trading rules for a symbol
func (p *PaperExchange) SetFilters(f *SymbolFilters) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.filters[f.Symbol] = f
}

// FillOrder removes an order from the book and applies it to the
// position, simulating an exchange fill
func (p *PaperExchange) FillOrder(orderID string) (*OpenOrder, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	o, ok := p.orders[orderID]
	if !ok {
		return nil, ErrOrderNotFound
	}
	delete(p.orders, orderID)

	pos := p.pos[o.Symbol]
	if o.Side == "BUY" {
		if pos == nil {
			p.pos[o.Symbol] = &Position{
				Symbol: o.Symbol, Side: "LONG", EntryPrice: o.Price,
				MarkPrice: o.Price, Quantity: o.Quantity, UpdatedAt: time.Now(),
			}
		} else if pos.Side == "LONG" {
			total := pos.Quantity + o.Quantity
			pos.EntryPrice = (pos.EntryPrice*pos.Quantity + o.Price*o.Quantity) / total
			pos.Quantity = total
		} else {
			pos.Quantity -= o.Quantity
			if pos.Quantity <= 0 {
				delete(p.pos, o.Symbol)
			}
		}
	} else {
		if pos == nil {
			p.pos[o.Symbol] = &Position{
				Symbol: o.Symbol, Side: "SHORT", EntryPrice: o.Price,
				MarkPrice: o.Price, Quantity: o.Quantity, UpdatedAt: time.Now(),
			}
		} else if pos.Side == "SHORT" {
			total := pos.Quantity + o.Quantity
			pos.EntryPrice = (pos.EntryPrice*pos.Quantity + o.Price*o.Quantity) / total
			pos.Quantity = total
		} else {
			pos.Quantity -= o.Quantity
			if pos.Quantity <= 0 {
				delete(p.pos, o.Symbol)
			}
		}
	}
	return &o, nil
}

func (p *PaperExchange) GetBalance(ctx context.Context) (float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.balance, nil
}

func (p *PaperExchange) GetEquity(ctx context.Context) (float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	equity := p.balance
	for _, pos := range p.pos {
		equity += pos.UnrealizedPnL
	}
	return equity, nil
}

// SetBalance overrides the available balance (test hook)
func (p *PaperExchange) SetBalance(balance float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.balance = balance
}

func (p *PaperExchange) GetMarketPrice(ctx context.Context, symbol string) (float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	price, ok := p.prices[symbol]
	if !ok {
		return 0, fmt.Errorf("no price set for %s", symbol)
	}
	return price, nil
}

func (p *PaperExchange) GetOpenOrders(ctx context.Context, symbol string) ([]OpenOrder, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []OpenOrder
	for _, o := range p.orders {
		if symbol == "" || o.Symbol == symbol {
			out = append(out, o)
		}
	}
	return out, nil
}

func (p *PaperExchange) PlaceLimitOrder(ctx context.Context, req *LimitOrderRequest) (*LimitOrderResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	notional := req.Price * req.Quantity
	if notional > p.balance {
		return nil, fmt.Errorf("paper venue: %w", ErrInsufficientFunds)
	}
	if f, ok := p.filters[req.Symbol]; ok && req.Quantity < f.MinQty {
		return nil, fmt.Errorf("paper venue: %w", ErrMinNotional)
	}

	id := strconv.FormatInt(p.nextID, 10)
	p.nextID++
	clientID := req.ClientID
	if clientID == "" {
		clientID = NewClientID()
	}

	o := OpenOrder{
		OrderID:      id,
		ClientID:     clientID,
		Symbol:       req.Symbol,
		Side:         req.Side,
		PositionSide: req.PositionSide,
		Price:        req.Price,
		Quantity:     req.Quantity,
		Status:       "NEW",
	}
	p.orders[id] = o

	return &LimitOrderResult{
		OrderID:      id,
		ClientID:     clientID,
		Symbol:       req.Symbol,
		Side:         req.Side,
		PositionSide: req.PositionSide,
		Price:        req.Price,
		Quantity:     req.Quantity,
		Status:       "NEW",
	}, nil
}

func (p *PaperExchange) CancelOrder(ctx context.Context, symbol, orderID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.orders[orderID]; !ok {
		return ErrOrderNotFound
	}
	delete(p.orders, orderID)
	return nil
}

func (p *PaperExchange) CancelAllOrders(ctx context.Context, symbol string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for id, o := range p.orders {
		if symbol == "" || o.Symbol == symbol {
			delete(p.orders, id)
		}
	}
	return nil
}

func (p *PaperExchange) GetPositions(ctx context.Context, symbol string) ([]Position, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []Position
	for _, pos := range p.pos {
		if symbol == "" || pos.Symbol == symbol {
			out = append(out, *pos)
		}
	}
	return out, nil
}

func (p *PaperExchange) ClosePosition(ctx context.Context, symbol, side string, quantity float64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	pos, ok := p.pos[symbol]
	if !ok {
		return nil
	}
	price := p.prices[symbol]
	if price > 0 {
		if pos.Side == "LONG" {
			p.balance += (price - pos.EntryPrice) * quantity
		} else {
			p.balance += (pos.EntryPrice - price) * quantity
		}
	}
	pos.Quantity -= quantity
	if pos.Quantity <= 0 {
		delete(p.pos, symbol)
	}
	return nil
}

func (p *PaperExchange) SetLeverage(ctx context.Context, symbol string, leverage int) error {
	return nil
}

func (p *PaperExchange) GetSymbolFilters(ctx context.Context, symbol string) (*SymbolFilters, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if f, ok := p.filters[symbol]; ok {
		return f, nil
	}
	return &SymbolFilters{Symbol: symbol, PriceTick: 0.01, QtyStep: 0.001, MinQty: 0.001}, nil
}

var _ Exchange = (*PaperExchange)(nil)
var _ Exchange = (*BinanceFutures)(nil)
