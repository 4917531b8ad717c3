package exchange

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/gridbot/internal/domain"
	"github.com/vadiminshakov/gridbot/internal/storage/simstate"
	"go.uber.org/zap"
)

// Dispatcher receives the events a real exchange would push over the user
// data stream.
type Dispatcher interface {
	Dispatch(action domain.Action)
}

type paperOrder struct {
	id            int64
	correlationID string
	side          domain.Side
	price         decimal.Decimal
	quantity      decimal.Decimal
}

// PaperGateway simulates a margin account in process. Resting orders fill
// when a public trade crosses their price.
type PaperGateway struct {
	mu          sync.Mutex
	l           *zap.Logger
	pair        domain.Pair
	sink        Dispatcher
	wallet      map[string]domain.Balance
	orders      map[int64]paperOrder
	lastID      int64
	lastTradeID int64
	lastPrice   decimal.Decimal
	dust        decimal.Decimal
	store       *simstate.Store
	now         func() time.Time
}

// PaperOption configures PaperGateway.
type PaperOption func(*PaperGateway)

// WithStore persists the wallet after every fill.
func WithStore(store *simstate.Store) PaperOption {
	return func(g *PaperGateway) {
		g.store = store
	}
}

// WithClock overrides time source of execution reports.
func WithClock(now func() time.Time) PaperOption {
	return func(g *PaperGateway) {
		g.now = now
	}
}

// NewPaperGateway creates a simulated account funded with the given free
// amounts. A wallet saved in the store takes precedence.
func NewPaperGateway(l *zap.Logger, pair domain.Pair, funds map[string]decimal.Decimal, opts ...PaperOption) (*PaperGateway, error) {
	g := &PaperGateway{
		l:      l,
		pair:   pair,
		wallet: make(map[string]domain.Balance),
		orders: make(map[int64]paperOrder),
		dust:   defaultDust,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}

	saved, err := g.store.Load()
	if err != nil {
		return nil, err
	}
	if saved != nil {
		funds, err = saved.Amounts()
		if err != nil {
			return nil, err
		}
		l.Info("restored simulated wallet", zap.String("pair", saved.Pair))
	}

	for asset, amount := range funds {
		g.wallet[asset] = domain.NewBalance(amount, decimal.Zero)
	}

	l.Info("simulate init",
		zap.String("pair", pair.String()),
		zap.String("base", g.wallet[pair.From].Free.String()),
		zap.String("quote", g.wallet[pair.To].Free.String()))

	return g, nil
}

// Attach sets the receiver of execution reports and balance updates.
func (g *PaperGateway) Attach(sink Dispatcher) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.sink = sink
}

// CreateOrder rests a limit order and locks the funds it needs.
func (g *PaperGateway) CreateOrder(_ context.Context, req domain.CreateOrder) (domain.OrderReceipt, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !req.Quantity.IsPositive() || !req.Price.IsPositive() {
		return domain.OrderReceipt{}, errors.Errorf("invalid order %s", req.String())
	}

	asset, amount := g.reserve(req.Side, req.Price, req.Quantity)
	b := g.wallet[asset]
	if b.Free.LessThan(amount) {
		return domain.OrderReceipt{}, errors.Errorf("insufficient %s balance: have %s need %s",
			asset, b.Free.String(), amount.String())
	}
	g.wallet[asset] = b.Hold(amount)

	g.lastID++
	o := paperOrder{
		id:            g.lastID,
		correlationID: req.CorrelationID,
		side:          req.Side,
		price:         req.Price,
		quantity:      req.Quantity,
	}
	g.orders[o.id] = o

	g.report(o, domain.OrderStatusNew, []string{o.correlationID}, 0)
	g.pushBalances()

	return domain.OrderReceipt{
		ExchangeID:    o.id,
		CorrelationID: o.correlationID,
		Status:        string(domain.OrderStatusNew),
	}, nil
}

// CancelOrder releases a resting order.
func (g *PaperGateway) CancelOrder(_ context.Context, order domain.Order) error {
	if order.ExchangeID == nil {
		return errors.Errorf("order %s has no exchange id", order.CorrelationID)
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	o, ok := g.orders[*order.ExchangeID]
	if !ok {
		return errors.Wrapf(domain.ErrUnknownOrder, "order %d", *order.ExchangeID)
	}
	g.cancel(o)
	g.pushBalances()

	return nil
}

// QueryBalances returns a copy of the wallet.
func (g *PaperGateway) QueryBalances(_ context.Context) (map[string]domain.Balance, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	out := make(map[string]domain.Balance, len(g.wallet))
	for asset, b := range g.wallet {
		out[asset] = b
	}
	return out, nil
}

// Liquidate cancels every resting order and sells free base at the last
// trade price.
func (g *PaperGateway) Liquidate(_ context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	for _, o := range g.sortedOrders() {
		g.cancel(o)
	}

	base := g.wallet[g.pair.From]
	if base.Free.GreaterThan(g.dust) {
		if !g.lastPrice.IsPositive() {
			return errors.New("no trade price to sell base at")
		}
		quantity := base.Free.RoundFloor(defaultQuantityPrecision)
		g.wallet[g.pair.From] = domain.NewBalance(base.Free.Sub(quantity), base.Locked)
		quote := g.wallet[g.pair.To]
		g.wallet[g.pair.To] = domain.NewBalance(quote.Free.Add(quantity.Mul(g.lastPrice)), quote.Locked)
		g.l.Info("simulated sell off",
			zap.String("quantity", quantity.String()),
			zap.String("price", g.lastPrice.String()))
	}

	g.pushBalances()
	return g.persist()
}

// OnTrade matches resting orders against a public trade.
func (g *PaperGateway) OnTrade(trade domain.AggregateTrade) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.lastPrice = trade.Price

	filled := false
	for _, o := range g.sortedOrders() {
		crossed := (o.side == domain.SideBuy && trade.Price.LessThanOrEqual(o.price)) ||
			(o.side == domain.SideSell && trade.Price.GreaterThanOrEqual(o.price))
		if !crossed {
			continue
		}
		g.fill(o)
		filled = true
	}

	if filled {
		g.pushBalances()
		if err := g.persist(); err != nil {
			g.l.Error("failed to persist simulated wallet", zap.Error(err))
		}
	}
}

func (g *PaperGateway) fill(o paperOrder) {
	delete(g.orders, o.id)

	notional := o.quantity.Mul(o.price)
	base, quote := g.wallet[g.pair.From], g.wallet[g.pair.To]
	if o.side == domain.SideBuy {
		quote = domain.NewBalance(quote.Free, quote.Locked.Sub(notional))
		base = domain.NewBalance(base.Free.Add(o.quantity), base.Locked)
	} else {
		base = domain.NewBalance(base.Free, base.Locked.Sub(o.quantity))
		quote = domain.NewBalance(quote.Free.Add(notional), quote.Locked)
	}
	g.wallet[g.pair.From], g.wallet[g.pair.To] = base, quote

	g.lastTradeID++
	g.l.Info("simulated fill",
		zap.String("side", o.side.String()),
		zap.String("price", o.price.String()),
		zap.String("quantity", o.quantity.String()),
		zap.String("correlation_id", o.correlationID))
	g.report(o, domain.OrderStatusFilled, []string{o.correlationID}, g.lastTradeID)
}

func (g *PaperGateway) cancel(o paperOrder) {
	delete(g.orders, o.id)

	asset, amount := g.reserve(o.side, o.price, o.quantity)
	b := g.wallet[asset]
	g.wallet[asset] = domain.NewBalance(b.Free.Add(amount), b.Locked.Sub(amount))

	cancelID := "cancel-" + strconv.FormatInt(o.id, 10)
	g.report(o, domain.OrderStatusCanceled, []string{cancelID, o.correlationID}, 0)
}

func (g *PaperGateway) reserve(side domain.Side, price, quantity decimal.Decimal) (string, decimal.Decimal) {
	if side == domain.SideBuy {
		return g.pair.To, price.Mul(quantity)
	}
	return g.pair.From, quantity
}

func (g *PaperGateway) report(o paperOrder, status domain.OrderStatus, ids []string, tradeID int64) {
	if g.sink == nil {
		return
	}
	g.sink.Dispatch(domain.OrderExecutionReport{
		CorrelationIDs: ids,
		ExchangeID:     o.id,
		Side:           o.side,
		Status:         status,
		Price:          o.price,
		Quantity:       o.quantity,
		TradeID:        tradeID,
		TradeTime:      g.now(),
	})
}

func (g *PaperGateway) pushBalances() {
	if g.sink == nil {
		return
	}
	g.sink.Dispatch(domain.AccountBalanceUpdate{
		Balances: map[string]domain.Balance{
			g.pair.From: g.wallet[g.pair.From],
			g.pair.To:   g.wallet[g.pair.To],
		},
		EventTime: g.now(),
	})
}

// sortedOrders keeps fills deterministic.
func (g *PaperGateway) sortedOrders() []paperOrder {
	out := make([]paperOrder, 0, len(g.orders))
	for _, o := range g.orders {
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}

func (g *PaperGateway) persist() error {
	if g.store == nil {
		return nil
	}
	free := make(map[string]decimal.Decimal, len(g.wallet))
	for asset, b := range g.wallet {
		free[asset] = b.Total()
	}
	return g.store.Save(simstate.NewState(g.pair, free))
}
