// Package scheduler serializes grid state changes and runs the exchange
// effects they request.
package scheduler

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
	"github.com/sourcegraph/conc"
	"github.com/vadiminshakov/gridbot/internal/domain"
	"go.uber.org/zap"
)

type reducer interface {
	Reduce(action domain.Action, state domain.State) (domain.State, []domain.Effect, error)
}

// Gateway exchange operations the scheduler runs as effects.
type Gateway interface {
	CreateOrder(ctx context.Context, req domain.CreateOrder) (domain.OrderReceipt, error)
	CancelOrder(ctx context.Context, order domain.Order) error
}

// Scheduler owns the grid state. Actions are applied one at a time in arrival
// order by Run, effects run concurrently and never block the next action.
type Scheduler struct {
	l            *zap.Logger
	reducer      reducer
	gateway      Gateway
	observer     Observer
	history      *History
	correlations *Correlations

	mu      sync.Mutex
	queue   []domain.Action
	aborted bool
	wake    chan struct{}

	state      atomic.Pointer[domain.State]
	effects    conc.WaitGroup
	effectsCtx context.Context
	faults     chan error
	newID      func() string
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithObserver attaches a metrics observer.
func WithObserver(o Observer) Option {
	return func(s *Scheduler) {
		s.observer = o
	}
}

// WithHistory replaces the default audit history.
func WithHistory(h *History) Option {
	return func(s *Scheduler) {
		s.history = h
	}
}

// WithEffectIDs replaces the effect id generator.
func WithEffectIDs(gen func() string) Option {
	return func(s *Scheduler) {
		s.newID = gen
	}
}

// New creates a scheduler holding the initial state.
func New(l *zap.Logger, r reducer, gateway Gateway, correlations *Correlations, initial domain.State, opts ...Option) *Scheduler {
	s := &Scheduler{
		l:            l,
		reducer:      r,
		gateway:      gateway,
		observer:     nopObserver{},
		history:      NewHistory(DefaultHistorySize),
		correlations: correlations,
		wake:         make(chan struct{}, 1),
		effectsCtx:   context.Background(),
		faults:       make(chan error, 1),
		newID:        newEffectID,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.state.Store(&initial)
	s.history.Record(Entry{Type: EntryState, State: &initial})

	return s
}

// State returns the last committed state.
func (s *Scheduler) State() domain.State {
	return *s.state.Load()
}

// History returns the audit log.
func (s *Scheduler) History() *History {
	return s.history
}

// Correlations returns the correlation table shared with the market data feed.
func (s *Scheduler) Correlations() *Correlations {
	return s.correlations
}

// Dispatch queues an action. It never runs the reducer on the caller's
// goroutine. Actions dispatched after Abort are dropped.
func (s *Scheduler) Dispatch(action domain.Action) {
	if action == nil {
		return
	}

	s.mu.Lock()
	if s.aborted {
		s.mu.Unlock()
		return
	}
	s.queue = append(s.queue, action)
	s.mu.Unlock()

	s.observer.ActionDispatched(action.Kind())

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Pending returns the number of queued actions.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// Abort stops accepting actions, drops queued ones and suppresses effects of
// the pass in progress. Effects already running are not interrupted.
func (s *Scheduler) Abort() {
	s.mu.Lock()
	if s.aborted {
		s.mu.Unlock()
		return
	}
	s.aborted = true
	dropped := len(s.queue)
	s.queue = nil
	s.mu.Unlock()

	s.l.Info("scheduler aborted", zap.Int("dropped_actions", dropped))
	s.history.Record(Entry{Type: EntryAbort})

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Run drains the action queue until ctx is done, the scheduler is aborted or
// a fault occurs. Faults are reducer errors, invariant violations and failed
// effects; the first one is returned. A stopped or aborted scheduler returns nil.
func (s *Scheduler) Run(ctx context.Context) error {
	s.mu.Lock()
	s.effectsCtx = context.WithoutCancel(ctx)
	s.mu.Unlock()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-s.faults:
			return err
		case <-s.wake:
		}

		for {
			action, ok, aborted := s.pop()
			if aborted {
				return nil
			}
			if !ok {
				break
			}

			if err := s.step(action); err != nil {
				return err
			}

			select {
			case <-ctx.Done():
				return nil
			case err := <-s.faults:
				return err
			default:
			}
		}
	}
}

// Wait blocks until launched effects complete or ctx is done.
func (s *Scheduler) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.effects.Wait()
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return errors.Wrap(ctx.Err(), "waiting for in-flight effects")
	}
}

func (s *Scheduler) pop() (domain.Action, bool, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.aborted {
		return nil, false, true
	}
	if len(s.queue) == 0 {
		return nil, false, false
	}

	action := s.queue[0]
	s.queue[0] = nil
	s.queue = s.queue[1:]
	return action, true, false
}

// step applies one action: reduce, commit, validate, audit, launch effects.
func (s *Scheduler) step(action domain.Action) error {
	prev := s.State()

	next, effects, err := s.reducer.Reduce(action, prev)
	if err != nil {
		s.l.Error("reducer failed",
			zap.String("action_kind", string(action.Kind())),
			zap.Any("action", action),
			zap.Any("state", prev),
			zap.Error(err))
		s.history.Record(Entry{Type: EntryFault, ActionKind: action.Kind(), Action: action, State: &prev, Error: err.Error()})
		return errors.Wrapf(err, "reduce %s", action.Kind())
	}

	s.state.Store(&next)
	s.observer.StateCommitted(next)

	if err := next.Validate(); err != nil {
		s.l.Error("invalid state",
			zap.String("action_kind", string(action.Kind())),
			zap.Any("action", action),
			zap.Any("previous_state", prev),
			zap.Any("state", next),
			zap.Error(err))
		s.history.Record(Entry{Type: EntryFault, ActionKind: action.Kind(), Action: action, State: &next, Error: err.Error()})
		return errors.Wrapf(err, "state invariant violated after %s", action.Kind())
	}

	if changed := next.ChangedFields(prev); hasEssential(changed) {
		s.history.Record(Entry{
			Type:       EntryState,
			ActionKind: action.Kind(),
			Action:     action,
			State:      &next,
			Changed:    changed,
		})
	}

	s.releaseClosed(prev, next)
	s.launch(action, effects)

	return nil
}

func hasEssential(fields []domain.Field) bool {
	for _, f := range fields {
		if !f.IsVolatile() {
			return true
		}
	}
	return false
}

// releaseClosed releases correlation ids of orders that left the state.
func (s *Scheduler) releaseClosed(prev, next domain.State) {
	if len(prev.Orders) == 0 {
		return
	}

	live := make(map[string]struct{}, len(next.Orders))
	for _, o := range next.Orders {
		live[o.CorrelationID] = struct{}{}
	}
	for _, o := range prev.Orders {
		if _, ok := live[o.CorrelationID]; !ok {
			s.correlations.Release(o.CorrelationID)
		}
	}
}

func (s *Scheduler) fault(err error) {
	select {
	case s.faults <- err:
	default:
		s.l.Error("fault dropped, another fault is pending", zap.Error(err))
	}
}
