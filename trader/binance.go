package trader

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/adshao/go-binance/v2/futures"
	"github.com/google/uuid"
	"github.com/jpillora/backoff"
	"github.com/shopspring/decimal"

	"gridpilot/logger"
)

// clientOrderPrefix marks orders this bot owns
const clientOrderPrefix = "gp"

// BinanceFutures trades USDT-M futures through go-binance
type BinanceFutures struct {
	client *futures.Client

	// balance/equity cache, avoids hammering the account endpoint from
	// every controller tick
	cacheDuration time.Duration
	cacheMu       sync.Mutex
	cachedBalance float64
	cachedEquity  float64
	cachedAt      time.Time

	// symbol filters rarely change, cache them for the process lifetime
	filtersMu sync.Mutex
	filters   map[string]*SymbolFilters
}

// NewBinanceFutures creates the live gateway
func NewBinanceFutures(apiKey, secretKey string, testnet bool, balanceCacheTTL time.Duration) *BinanceFutures {
	if testnet {
		futures.UseTestnet = true
	}
	return &BinanceFutures{
		client:        futures.NewClient(apiKey, secretKey),
		cacheDuration: balanceCacheTTL,
		filters:       make(map[string]*SymbolFilters),
	}
}

// withRetry runs fn, retrying transient errors with exponential backoff
func withRetry(ctx context.Context, what string, fn func() error) error {
	b := &backoff.Backoff{
		Min:    500 * time.Millisecond,
		Max:    8 * time.Second,
		Factor: 2,
		Jitter: true,
	}
	const tries = 3
	var err error
	for i := 0; i < tries; i++ {
		if err = fn(); err == nil {
			return nil
		}
		if !Retryable(err) {
			return err
		}
		d := b.Duration()
		logger.Warnf("[Trader] %s failed (%s, attempt %d/%d): %v, retrying in %v",
			what, Classify(err), i+1, tries, err, d)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(d):
		}
	}
	return fmt.Errorf("%s: %w", what, err)
}

func (b *BinanceFutures) refreshAccount(ctx context.Context) error {
	var account *futures.Account
	err := withRetry(ctx, "fetch account", func() error {
		var e error
		account, e = b.client.NewGetAccountService().Do(ctx)
		return e
	})
	if err != nil {
		return err
	}

	available := 0.0
	for _, asset := range account.Assets {
		if asset.Asset == "USDT" {
			available = parseF(asset.AvailableBalance)
		}
	}
	equity := parseF(account.TotalWalletBalance) + parseF(account.TotalUnrealizedProfit)

	b.cacheMu.Lock()
	b.cachedBalance = available
	b.cachedEquity = equity
	b.cachedAt = time.Now()
	b.cacheMu.Unlock()
	return nil
}

func (b *BinanceFutures) GetBalance(ctx context.Context) (float64, error) {
	b.cacheMu.Lock()
	fresh := time.Since(b.cachedAt) < b.cacheDuration
	balance := b.cachedBalance
	b.cacheMu.Unlock()
	if fresh {
		return balance, nil
	}

	if err := b.refreshAccount(ctx); err != nil {
		return 0, err
	}
	b.cacheMu.Lock()
	defer b.cacheMu.Unlock()
	return b.cachedBalance, nil
}

func (b *BinanceFutures) GetEquity(ctx context.Context) (float64, error) {
	b.cacheMu.Lock()
	fresh := time.Since(b.cachedAt) < b.cacheDuration
	equity := b.cachedEquity
	b.cacheMu.Unlock()
	if fresh {
		return equity, nil
	}

	if err := b.refreshAccount(ctx); err != nil {
		return 0, err
	}
	b.cacheMu.Lock()
	defer b.cacheMu.Unlock()
	return b.cachedEquity, nil
}

func (b *BinanceFutures) GetMarketPrice(ctx context.Context, symbol string) (float64, error) {
	var prices []*futures.SymbolPrice
	err := withRetry(ctx, "fetch price "+symbol, func() error {
		var e error
		prices, e = b.client.NewListPricesService().Symbol(symbol).Do(ctx)
		return e
	})
	if err != nil {
		return 0, err
	}
	if len(prices) == 0 {
		return 0, fmt.Errorf("no price data for %s", symbol)
	}
	return parseF(prices[0].Price), nil
}

func (b *BinanceFutures) GetOpenOrders(ctx context.Context, symbol string) ([]OpenOrder, error) {
	var raw []*futures.Order
	err := withRetry(ctx, "fetch open orders "+symbol, func() error {
		var e error
		raw, e = b.client.NewListOpenOrdersService().Symbol(symbol).Do(ctx)
		return e
	})
	if err != nil {
		return nil, err
	}

	orders := make([]OpenOrder, 0, len(raw))
	for _, o := range raw {
		orders = append(orders, OpenOrder{
			OrderID:      strconv.FormatInt(o.OrderID, 10),
			ClientID:     o.ClientOrderID,
			Symbol:       o.Symbol,
			Side:         string(o.Side),
			PositionSide: string(o.PositionSide),
			Price:        parseF(o.Price),
			Quantity:     parseF(o.OrigQuantity),
			Status:       string(o.Status),
		})
	}
	return orders, nil
}

func (b *BinanceFutures) PlaceLimitOrder(ctx context.Context, req *LimitOrderRequest) (*LimitOrderResult, error) {
	filters, err := b.GetSymbolFilters(ctx, req.Symbol)
	if err != nil {
		return nil, err
	}

	price := roundToStep(req.Price, filters.PriceTick)
	qty := roundToStep(req.Quantity, filters.QtyStep)
	if qty < filters.MinQty {
		return nil, fmt.Errorf("%s qty %.8f below min lot %.8f: %w",
			req.Symbol, qty, filters.MinQty, ErrMinNotional)
	}
	if filters.MinNotional > 0 && price*qty < filters.MinNotional {
		return nil, fmt.Errorf("%s notional %.4f below min %.4f: %w",
			req.Symbol, price*qty, filters.MinNotional, ErrMinNotional)
	}

	clientID := req.ClientID
	if clientID == "" {
		clientID = NewClientID()
	}

	svc := b.client.NewCreateOrderService().
		Symbol(req.Symbol).
		Side(futures.SideType(req.Side)).
		Type(futures.OrderTypeLimit).
		TimeInForce(futures.TimeInForceTypeGTC).
		Price(formatStep(price, filters.PriceTick)).
		Quantity(formatStep(qty, filters.QtyStep)).
		NewClientOrderID(clientID)
	if req.PositionSide != "" {
		svc = svc.PositionSide(futures.PositionSideType(req.PositionSide))
	}

	var resp *futures.CreateOrderResponse
	err = withRetry(ctx, "place limit "+req.Symbol, func() error {
		var e error
		resp, e = svc.Do(ctx)
		return e
	})
	if err != nil {
		if Classify(err) == ClassRisk {
			return nil, fmt.Errorf("place %s %s: %w", req.Side, req.Symbol, ErrInsufficientFunds)
		}
		return nil, err
	}

	return &LimitOrderResult{
		OrderID:      strconv.FormatInt(resp.OrderID, 10),
		ClientID:     resp.ClientOrderID,
		Symbol:       resp.Symbol,
		Side:         string(resp.Side),
		PositionSide: string(resp.PositionSide),
		Price:        parseF(resp.Price),
		Quantity:     parseF(resp.OrigQuantity),
		Status:       string(resp.Status),
	}, nil
}

func (b *BinanceFutures) CancelOrder(ctx context.Context, symbol, orderID string) error {
	id, err := strconv.ParseInt(orderID, 10, 64)
	if err != nil {
		return fmt.Errorf("bad order id %q: %w", orderID, ErrOrderNotFound)
	}
	return withRetry(ctx, "cancel order "+symbol, func() error {
		_, e := b.client.NewCancelOrderService().Symbol(symbol).OrderID(id).Do(ctx)
		return e
	})
}

func (b *BinanceFutures) CancelAllOrders(ctx context.Context, symbol string) error {
	return withRetry(ctx, "cancel all orders "+symbol, func() error {
		return b.client.NewCancelAllOpenOrdersService().Symbol(symbol).Do(ctx)
	})
}

func (b *BinanceFutures) GetPositions(ctx context.Context, symbol string) ([]Position, error) {
	svc := b.client.NewGetPositionRiskService()
	if symbol != "" {
		svc = svc.Symbol(symbol)
	}
	var raw []*futures.PositionRisk
	err := withRetry(ctx, "fetch positions", func() error {
		var e error
		raw, e = svc.Do(ctx)
		return e
	})
	if err != nil {
		return nil, err
	}

	var positions []Position
	for _, p := range raw {
		amt := parseF(p.PositionAmt)
		if amt == 0 {
			continue
		}
		side := "LONG"
		qty := amt
		if amt < 0 {
			side = "SHORT"
			qty = -amt
		}
		positions = append(positions, Position{
			Symbol:        p.Symbol,
			Side:          side,
			EntryPrice:    parseF(p.EntryPrice),
			MarkPrice:     parseF(p.MarkPrice),
			Quantity:      qty,
			UnrealizedPnL: parseF(p.UnRealizedProfit),
			UpdatedAt:     time.Now(),
		})
	}
	return positions, nil
}

func (b *BinanceFutures) ClosePosition(ctx context.Context, symbol, side string, quantity float64) error {
	filters, err := b.GetSymbolFilters(ctx, symbol)
	if err != nil {
		return err
	}
	qty := roundToStep(quantity, filters.QtyStep)
	if qty <= 0 {
		return nil
	}

	orderSide := futures.SideTypeSell
	if side == "SHORT" {
		orderSide = futures.SideTypeBuy
	}

	return withRetry(ctx, "close position "+symbol, func() error {
		_, e := b.client.NewCreateOrderService().
			Symbol(symbol).
			Side(orderSide).
			Type(futures.OrderTypeMarket).
			ReduceOnly(true).
			Quantity(formatStep(qty, filters.QtyStep)).
			Do(ctx)
		return e
	})
}

func (b *BinanceFutures) SetLeverage(ctx context.Context, symbol string, leverage int) error {
	return withRetry(ctx, "set leverage "+symbol, func() error {
		_, e := b.client.NewChangeLeverageService().Symbol(symbol).Leverage(leverage).Do(ctx)
		return e
	})
}

func (b *BinanceFutures) GetSymbolFilters(ctx context.Context, symbol string) (*SymbolFilters, error) {
	b.filtersMu.Lock()
	if f, ok := b.filters[symbol]; ok {
		b.filtersMu.Unlock()
		return f, nil
	}
	b.filtersMu.Unlock()

	var info *futures.ExchangeInfo
	err := withRetry(ctx, "fetch exchange info", func() error {
		var e error
		info, e = b.client.NewExchangeInfoService().Do(ctx)
		return e
	})
	if err != nil {
		return nil, err
	}

	b.filtersMu.Lock()
	defer b.filtersMu.Unlock()
	for i := range info.Symbols {
		s := &info.Symbols[i]
		f := &SymbolFilters{Symbol: s.Symbol}
		if lot := s.LotSizeFilter(); lot != nil {
			f.QtyStep = parseF(lot.StepSize)
			f.MinQty = parseF(lot.MinQuantity)
		}
		if pf := s.PriceFilter(); pf != nil {
			f.PriceTick = parseF(pf.TickSize)
		}
		if mn := s.MinNotionalFilter(); mn != nil {
			f.MinNotional = parseF(mn.Notional)
		}
		b.filters[s.Symbol] = f
	}

	if f, ok := b.filters[symbol]; ok {
		return f, nil
	}
	return nil, fmt.Errorf("symbol %s not found in exchange info", symbol)
}

// NewClientID generates a client order id with the bot prefix
func NewClientID() string {
	return clientOrderPrefix + "-" + strings.ReplaceAll(uuid.NewString(), "-", "")[:16]
}

// IsOurOrder reports whether a client order id was generated by this bot
func IsOurOrder(clientID string) bool {
	return strings.HasPrefix(clientID, clientOrderPrefix+"-")
}

// roundToStep floors value to the nearest multiple of step
func roundToStep(value, step float64) float64 {
	if step <= 0 {
		return value
	}
	v := decimal.NewFromFloat(value)
	s := decimal.NewFromFloat(step)
	f, _ := v.Div(s).Floor().Mul(s).Float64()
	return f
}

// formatStep renders value with exactly the precision of step
func formatStep(value, step float64) string {
	if step <= 0 {
		return strconv.FormatFloat(value, 'f', -1, 64)
	}
	exp := decimal.NewFromFloat(step).Exponent()
	places := int32(0)
	if exp < 0 {
		places = -exp
	}
	return decimal.NewFromFloat(value).StringFixed(places)
}

func parseF(s string) float64 {
	f, _ := strconv.ParseFloat(s, 64)
	return f
}
