// Package grid computes grid order decisions from exchange and settings events.
package grid

import (
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/vadiminshakov/gridbot/internal/domain"
	"go.uber.org/zap"
)

// Reducer turns an action and the current state into the next state and the
// effects needed to get there. Reduce has no side effects besides logging.
type Reducer struct {
	l                *zap.Logger
	pair             domain.Pair
	params           Params
	newCorrelationID func() string
}

// Option configures a Reducer.
type Option func(*Reducer)

// WithCorrelationIDs replaces the correlation id generator.
func WithCorrelationIDs(gen func() string) Option {
	return func(r *Reducer) {
		r.newCorrelationID = gen
	}
}

// NewReducer creates a reducer for the pair.
func NewReducer(l *zap.Logger, pair domain.Pair, params Params, opts ...Option) (*Reducer, error) {
	if err := params.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid grid params")
	}

	r := &Reducer{
		l:                l,
		pair:             pair,
		params:           params,
		newCorrelationID: newCorrelationID,
	}
	for _, opt := range opts {
		opt(r)
	}

	return r, nil
}

func newCorrelationID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// pass holds the working copy of a single Reduce call.
type pass struct {
	r       *Reducer
	action  domain.Action
	state   domain.State
	effects []domain.Effect
	// dropped marks an action that must leave the state untouched
	dropped bool
}

// Reduce applies action to state. The input state is never modified.
func (r *Reducer) Reduce(action domain.Action, state domain.State) (domain.State, []domain.Effect, error) {
	p := &pass{r: r, action: action, state: state}

	if err := p.apply(); err != nil {
		return state, nil, err
	}
	if p.dropped {
		return state, nil, nil
	}

	if p.state.Initialized() {
		p.cancelOutdated(domain.SideBuy)
		p.cancelOutdated(domain.SideSell)
	}

	if p.state.Initialized() && len(p.state.Orders) < p.state.TargetTotalLevels {
		if err := p.createMissing(); err != nil {
			return state, nil, err
		}
	}

	return p.state, p.effects, nil
}

func (p *pass) apply() error {
	switch a := p.action.(type) {
	case domain.AccountBalanceUpdate:
		p.mergeBalances(a)
	case domain.OrderExecutionReport:
		if !p.reconcile(a) {
			p.dropped = true
			return nil
		}
		if a.TradeID > 0 && a.Price.IsPositive() {
			return p.trackTrade(domain.Trade{ID: a.TradeID, Price: a.Price})
		}
	case domain.AggregateTrade:
		return p.trackTrade(domain.Trade{ID: a.LastTradeID, Price: a.Price})
	case domain.BookTicker:
		p.state.Book = &domain.Book{Bid: a.Bid, Ask: a.Ask}
	case domain.UpdateSettings:
		return p.updateSettings(a)
	case domain.UpdateBalance:
		base, quote := a.Base, a.Quote
		p.state.Base = &base
		p.state.Quote = &quote
	case domain.SetGridParameters:
		p.setGridParameters(a)
	default:
		p.r.l.Warn("unknown action ignored", zap.Any("action", p.action))
	}
	return nil
}

func (p *pass) updateSettings(a domain.UpdateSettings) error {
	if !a.LevelSize.IsPositive() {
		p.r.l.Warn("non-positive level size ignored", zap.String("level_size", a.LevelSize.String()))
		return nil
	}
	if p.state.LevelSizeQuote != nil && p.state.LevelSizeQuote.Equal(a.LevelSize) {
		return nil
	}

	p.r.l.Info("level size updated", zap.String("level_size", a.LevelSize.String()))
	p.state.LevelSizeQuote = domain.DecimalPtr(a.LevelSize)

	return p.walkAnchor()
}

func (p *pass) setGridParameters(a domain.SetGridParameters) {
	if a.TargetTotalLevels <= 0 {
		p.r.l.Warn("non-positive target levels ignored", zap.Int("target_total_levels", a.TargetTotalLevels))
		return
	}

	p.r.l.Info("grid target updated",
		zap.Int("from", p.state.TargetTotalLevels),
		zap.Int("to", a.TargetTotalLevels))
	p.state.TargetTotalLevels = a.TargetTotalLevels
}

func (p *pass) emit(e domain.Effect) {
	p.effects = append(p.effects, e)
}
