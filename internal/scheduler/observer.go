package scheduler

import "github.com/vadiminshakov/gridbot/internal/domain"

// Outcome effect result reported to observers.
type Outcome string

const (
	OutcomeSucceeded Outcome = "succeeded"
	OutcomeFailed    Outcome = "failed"
	OutcomeIgnored   Outcome = "ignored"
	OutcomeAborted   Outcome = "aborted"
)

// Observer receives scheduler events, typically to export metrics.
type Observer interface {
	ActionDispatched(kind domain.ActionKind)
	StateCommitted(state domain.State)
	EffectFinished(kind domain.EffectKind, outcome Outcome)
}

type nopObserver struct{}

func (nopObserver) ActionDispatched(domain.ActionKind)        {}
func (nopObserver) StateCommitted(domain.State)               {}
func (nopObserver) EffectFinished(domain.EffectKind, Outcome) {}
