// Package metrics exports grid bot telemetry to Prometheus.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/vadiminshakov/gridbot/internal/domain"
	"github.com/vadiminshakov/gridbot/internal/scheduler"
)

const namespace = "gridbot"

var (
	sides      = []domain.Side{domain.SideBuy, domain.SideSell}
	lifecycles = []domain.Lifecycle{domain.LifecycleCreating, domain.LifecycleActive, domain.LifecycleCancelling}
)

// Metrics implements scheduler.Observer and feed.LatencyObserver.
type Metrics struct {
	latency     *prometheus.HistogramVec
	actions     *prometheus.CounterVec
	effects     *prometheus.CounterVec
	equity      prometheus.Gauge
	anchorIndex prometheus.Gauge
	levelSize   prometheus.Gauge
	orders      *prometheus.GaugeVec
}

// New registers instruments against reg, the default registerer when nil.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		latency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "feed",
				Name:      "event_latency_seconds",
				Help:      "Delay between exchange event time and local receipt.",
				Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
			},
			[]string{"event"},
		),
		actions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "scheduler",
				Name:      "actions_total",
				Help:      "Actions dispatched to the scheduler.",
			},
			[]string{"kind"},
		),
		effects: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "scheduler",
				Name:      "effects_total",
				Help:      "Finished effects by kind and outcome.",
			},
			[]string{"kind", "outcome"},
		),
		equity: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "grid",
			Name:      "equity_quote",
			Help:      "Account equity in quote currency at the last trade price.",
		}),
		anchorIndex: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "grid",
			Name:      "anchor_index",
			Help:      "Current anchor level index.",
		}),
		levelSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "grid",
			Name:      "level_size_quote",
			Help:      "Current level size in quote currency.",
		}),
		orders: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "grid",
				Name:      "orders",
				Help:      "Grid orders by side and lifecycle.",
			},
			[]string{"side", "lifecycle"},
		),
	}
	reg.MustRegister(m.latency, m.actions, m.effects, m.equity, m.anchorIndex, m.levelSize, m.orders)

	return m
}

// ObserveLatency records event delay. Negative delays from clock skew are
// clamped to zero.
func (m *Metrics) ObserveLatency(event string, latency time.Duration) {
	if m == nil {
		return
	}
	m.latency.WithLabelValues(event).Observe(max(latency, 0).Seconds())
}

// ActionDispatched implements scheduler.Observer.
func (m *Metrics) ActionDispatched(kind domain.ActionKind) {
	if m == nil {
		return
	}
	m.actions.WithLabelValues(string(kind)).Inc()
}

// EffectFinished implements scheduler.Observer.
func (m *Metrics) EffectFinished(kind domain.EffectKind, outcome scheduler.Outcome) {
	if m == nil {
		return
	}
	m.effects.WithLabelValues(string(kind), string(outcome)).Inc()
}

// StateCommitted implements scheduler.Observer.
func (m *Metrics) StateCommitted(state domain.State) {
	if m == nil {
		return
	}

	if equity, ok := state.Equity(); ok {
		m.equity.Set(equity.InexactFloat64())
	}
	m.anchorIndex.Set(float64(state.AnchorIndex))
	if state.LevelSizeQuote != nil {
		m.levelSize.Set(state.LevelSizeQuote.InexactFloat64())
	}

	for _, side := range sides {
		for _, lc := range lifecycles {
			m.orders.WithLabelValues(side.String(), string(lc)).Set(float64(state.CountLifecycle(side, lc)))
		}
	}
}
