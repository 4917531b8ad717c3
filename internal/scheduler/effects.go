package scheduler

import (
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/vadiminshakov/gridbot/internal/domain"
	"go.uber.org/zap"
)

func newEffectID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// launch applies local effects in place and starts remote ones. Remote effects
// of a pass that raced with Abort are dropped.
func (s *Scheduler) launch(action domain.Action, effects []domain.Effect) {
	remote := make([]domain.Effect, 0, len(effects))
	for _, e := range effects {
		if ignore, ok := e.(domain.IgnoreCancelConflict); ok {
			s.correlations.MarkFilled(ignore.ExchangeID)
			continue
		}
		remote = append(remote, e)
	}
	if len(remote) == 0 {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.aborted {
		for _, e := range remote {
			s.observer.EffectFinished(e.Kind(), OutcomeAborted)
		}
		s.l.Info("effects suppressed after abort",
			zap.String("action_kind", string(action.Kind())),
			zap.Int("effects", len(remote)))
		return
	}

	for _, e := range remote {
		id := s.newID()
		if c, ok := e.(domain.CreateOrder); ok {
			s.correlations.Register(c.CorrelationID, c.Side, c.Level)
		}

		s.history.Record(Entry{
			Type:       EffectEntryType(e.Kind(), PhaseStarted),
			ActionKind: action.Kind(),
			Action:     action,
			Effect:     &EffectRecord{ID: id, Kind: e.Kind(), Effect: e},
		})

		effect := e
		s.effects.Go(func() {
			s.execute(id, effect)
		})
	}
}

func (s *Scheduler) execute(id string, e domain.Effect) {
	ctx := s.effectsCtx
	record := &EffectRecord{ID: id, Kind: e.Kind(), Effect: e}

	var err error
	switch eff := e.(type) {
	case domain.CreateOrder:
		var receipt domain.OrderReceipt
		receipt, err = s.gateway.CreateOrder(ctx, eff)
		if err == nil {
			record.Receipt = &receipt
		}
	case domain.CancelOrder:
		err = s.gateway.CancelOrder(ctx, eff.Order)
		if err != nil && s.isCancelConflict(eff.Order, err) {
			s.l.Info("cancel raced with fill, ignoring",
				zap.String("correlation_id", eff.Order.CorrelationID),
				zap.Int64("exchange_id", *eff.Order.ExchangeID),
				zap.Error(err))
			record.Note = "order already filled"
			s.history.Record(Entry{Type: EffectEntryType(e.Kind(), PhaseSucceeded), Effect: record})
			s.observer.EffectFinished(e.Kind(), OutcomeIgnored)
			return
		}
	default:
		err = errors.Errorf("unsupported effect %s", e.Kind())
	}

	if err != nil {
		record.Error = err.Error()
		s.history.Record(Entry{Type: EffectEntryType(e.Kind(), PhaseFailed), Effect: record})
		s.observer.EffectFinished(e.Kind(), OutcomeFailed)
		s.l.Error("effect failed",
			zap.String("effect_id", id),
			zap.String("kind", string(e.Kind())),
			zap.Any("effect", e),
			zap.Error(err))
		s.fault(errors.Wrapf(err, "effect %s %s", e.Kind(), id))
		return
	}

	s.history.Record(Entry{Type: EffectEntryType(e.Kind(), PhaseSucceeded), Effect: record})
	s.observer.EffectFinished(e.Kind(), OutcomeSucceeded)
}

func (s *Scheduler) isCancelConflict(order domain.Order, err error) bool {
	return errors.Is(err, domain.ErrUnknownOrder) &&
		order.ExchangeID != nil &&
		s.correlations.IsFilled(*order.ExchangeID)
}
