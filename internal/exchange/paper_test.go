package exchange

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vadiminshakov/gridbot/internal/domain"
	"github.com/vadiminshakov/gridbot/internal/storage/simstate"
	"go.uber.org/zap"
)

type recorder struct {
	mu      sync.Mutex
	actions []domain.Action
}

func (r *recorder) Dispatch(a domain.Action) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.actions = append(r.actions, a)
}

func (r *recorder) reports() []domain.OrderExecutionReport {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.OrderExecutionReport
	for _, a := range r.actions {
		if rep, ok := a.(domain.OrderExecutionReport); ok {
			out = append(out, rep)
		}
	}
	return out
}

func (r *recorder) lastBalances() map[string]domain.Balance {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.actions) - 1; i >= 0; i-- {
		if upd, ok := r.actions[i].(domain.AccountBalanceUpdate); ok {
			return upd.Balances
		}
	}
	return nil
}

var paperPair = domain.Pair{From: "BTC", To: "FDUSD"}

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func newPaper(t *testing.T, opts ...PaperOption) (*PaperGateway, *recorder) {
	t.Helper()
	opts = append(opts, WithClock(func() time.Time { return time.Unix(1700000000, 0) }))
	g, err := NewPaperGateway(zap.NewNop(), paperPair, map[string]decimal.Decimal{
		"BTC":   d("0.01"),
		"FDUSD": d("1000"),
	}, opts...)
	require.NoError(t, err)
	rec := &recorder{}
	g.Attach(rec)
	return g, rec
}

func TestPaperGateway_CreateLocksFunds(t *testing.T) {
	g, rec := newPaper(t)
	ctx := context.Background()

	receipt, err := g.CreateOrder(ctx, domain.CreateOrder{
		Side: domain.SideBuy, Price: d("100"), Quantity: d("2"), Level: -1, CorrelationID: "b1",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), receipt.ExchangeID)
	assert.Equal(t, "b1", receipt.CorrelationID)

	reps := rec.reports()
	require.Len(t, reps, 1)
	assert.Equal(t, domain.OrderStatusNew, reps[0].Status)
	assert.Equal(t, []string{"b1"}, reps[0].CorrelationIDs)
	assert.Zero(t, reps[0].TradeID)

	quote := rec.lastBalances()["FDUSD"]
	assert.True(t, quote.Free.Equal(d("800")))
	assert.True(t, quote.Locked.Equal(d("200")))
}

func TestPaperGateway_InsufficientFunds(t *testing.T) {
	g, rec := newPaper(t)

	_, err := g.CreateOrder(context.Background(), domain.CreateOrder{
		Side: domain.SideSell, Price: d("100"), Quantity: d("1"), Level: 1, CorrelationID: "s1",
	})
	require.Error(t, err)
	assert.Empty(t, rec.reports())
}

func TestPaperGateway_FillOnCrossingTrade(t *testing.T) {
	g, rec := newPaper(t)
	ctx := context.Background()

	_, err := g.CreateOrder(ctx, domain.CreateOrder{Side: domain.SideBuy, Price: d("100"), Quantity: d("1"), Level: -1, CorrelationID: "b1"})
	require.NoError(t, err)
	_, err = g.CreateOrder(ctx, domain.CreateOrder{Side: domain.SideSell, Price: d("120"), Quantity: d("0.01"), Level: 1, CorrelationID: "s1"})
	require.NoError(t, err)

	g.OnTrade(domain.AggregateTrade{Price: d("101"), LastTradeID: 5})
	assert.Len(t, rec.reports(), 2)

	g.OnTrade(domain.AggregateTrade{Price: d("99.5"), LastTradeID: 6})
	reps := rec.reports()
	require.Len(t, reps, 3)
	fill := reps[2]
	assert.Equal(t, domain.OrderStatusFilled, fill.Status)
	assert.Equal(t, []string{"b1"}, fill.CorrelationIDs)
	assert.Equal(t, int64(1), fill.TradeID)
	assert.True(t, fill.Price.Equal(d("100")))

	balances := rec.lastBalances()
	assert.True(t, balances["BTC"].Free.Equal(d("1")))
	assert.True(t, balances["BTC"].Locked.Equal(d("0.01")))
	assert.True(t, balances["FDUSD"].Free.Equal(d("900")))
	assert.True(t, balances["FDUSD"].Locked.IsZero())

	g.OnTrade(domain.AggregateTrade{Price: d("120"), LastTradeID: 7})
	reps = rec.reports()
	require.Len(t, reps, 4)
	assert.Equal(t, []string{"s1"}, reps[3].CorrelationIDs)
	assert.Equal(t, int64(2), reps[3].TradeID)
}

func TestPaperGateway_Cancel(t *testing.T) {
	g, rec := newPaper(t)
	ctx := context.Background()

	receipt, err := g.CreateOrder(ctx, domain.CreateOrder{Side: domain.SideBuy, Price: d("100"), Quantity: d("1"), Level: -1, CorrelationID: "b1"})
	require.NoError(t, err)

	id := receipt.ExchangeID
	order := domain.Order{Side: domain.SideBuy, ExchangeID: &id, CorrelationID: "b1", Level: -1, Price: d("100"), Quantity: d("1")}
	require.NoError(t, g.CancelOrder(ctx, order))

	reps := rec.reports()
	require.Len(t, reps, 2)
	assert.Equal(t, domain.OrderStatusCanceled, reps[1].Status)
	assert.Equal(t, "b1", reps[1].CorrelationIDs[1])

	quote := rec.lastBalances()["FDUSD"]
	assert.True(t, quote.Free.Equal(d("1000")))
	assert.True(t, quote.Locked.IsZero())

	err = g.CancelOrder(ctx, order)
	require.ErrorIs(t, err, domain.ErrUnknownOrder)
}

func TestPaperGateway_Liquidate(t *testing.T) {
	store, err := simstate.NewStore(t.TempDir(), paperPair)
	require.NoError(t, err)

	g, rec := newPaper(t, WithStore(store))
	ctx := context.Background()

	_, err = g.CreateOrder(ctx, domain.CreateOrder{Side: domain.SideSell, Price: d("200"), Quantity: d("0.005"), Level: 1, CorrelationID: "s1"})
	require.NoError(t, err)
	g.OnTrade(domain.AggregateTrade{Price: d("150"), LastTradeID: 1})

	require.NoError(t, g.Liquidate(ctx))

	reps := rec.reports()
	require.Len(t, reps, 2)
	assert.Equal(t, domain.OrderStatusCanceled, reps[1].Status)

	balances, err := g.QueryBalances(ctx)
	require.NoError(t, err)
	assert.True(t, balances["BTC"].Total().IsZero())
	assert.True(t, balances["FDUSD"].Free.Equal(d("1001.5")))

	restored, err := NewPaperGateway(zap.NewNop(), paperPair, nil, WithStore(store))
	require.NoError(t, err)
	balances, err = restored.QueryBalances(ctx)
	require.NoError(t, err)
	assert.True(t, balances["FDUSD"].Free.Equal(d("1001.5")))
}

func TestPaperGateway_LiquidateWithoutPrice(t *testing.T) {
	g, _ := newPaper(t)
	require.Error(t, g.Liquidate(context.Background()))
}
