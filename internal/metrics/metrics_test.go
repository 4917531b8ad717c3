package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vadiminshakov/gridbot/internal/domain"
	"github.com/vadiminshakov/gridbot/internal/scheduler"
)

func TestMetrics_Counters(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ActionDispatched(domain.KindAggregateTrade)
	m.ActionDispatched(domain.KindAggregateTrade)
	m.ActionDispatched(domain.KindBookTicker)
	m.EffectFinished(domain.EffectCancelOrder, scheduler.OutcomeIgnored)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.actions.WithLabelValues(string(domain.KindAggregateTrade))))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.actions.WithLabelValues(string(domain.KindBookTicker))))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.effects.WithLabelValues(string(domain.EffectCancelOrder), string(scheduler.OutcomeIgnored))))
}

func TestMetrics_Latency(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObserveLatency("executionReport", 20*time.Millisecond)
	m.ObserveLatency("executionReport", -time.Second)

	assert.Equal(t, 1, testutil.CollectAndCount(m.latency))
}

func TestMetrics_StateCommitted(t *testing.T) {
	m := New(prometheus.NewRegistry())

	base := domain.NewBalance(decimal.RequireFromString("0.5"), decimal.Zero)
	quote := domain.NewBalance(decimal.NewFromInt(1000), decimal.NewFromInt(100))
	state := domain.NewState(10)
	state.Base = &base
	state.Quote = &quote
	state.LastTrade = &domain.Trade{ID: 1, Price: decimal.NewFromInt(200)}
	state.AnchorIndex = -3
	state.LevelSizeQuote = domain.DecimalPtr(decimal.RequireFromString("2.5"))
	state.Orders = []domain.Order{
		{Side: domain.SideBuy, CorrelationID: "a", Level: -4, Lifecycle: domain.LifecycleActive},
		{Side: domain.SideBuy, CorrelationID: "b", Level: -5, Lifecycle: domain.LifecycleCreating},
		{Side: domain.SideSell, CorrelationID: "c", Level: -2, Lifecycle: domain.LifecycleCancelling},
	}

	m.StateCommitted(state)

	assert.Equal(t, 1200.0, testutil.ToFloat64(m.equity))
	assert.Equal(t, -3.0, testutil.ToFloat64(m.anchorIndex))
	assert.Equal(t, 2.5, testutil.ToFloat64(m.levelSize))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.orders.WithLabelValues("BUY", "ACTIVE")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.orders.WithLabelValues("BUY", "CREATING")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.orders.WithLabelValues("SELL", "ACTIVE")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.orders.WithLabelValues("SELL", "CANCELLING")))
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	require.NotPanics(t, func() {
		m.ActionDispatched(domain.KindBookTicker)
		m.EffectFinished(domain.EffectCreateOrder, scheduler.OutcomeSucceeded)
		m.StateCommitted(domain.NewState(1))
		m.ObserveLatency("x", time.Second)
	})
}

var _ scheduler.Observer = (*Metrics)(nil)
