package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// EffectKind discriminates Effect variants.
type EffectKind string

const (
	EffectCreateOrder          EffectKind = "createOrder"
	EffectCancelOrder          EffectKind = "cancelOrder"
	EffectIgnoreCancelConflict EffectKind = "ignoreCancelConflict"
)

// Effect side effect requested by the reducer. Effects are descriptions only,
// the scheduler decides how and when to run them.
type Effect interface {
	Kind() EffectKind
	effect()
}

// CreateOrder places a limit order at a grid level.
type CreateOrder struct {
	Side          Side            `json:"side"`
	Price         decimal.Decimal `json:"price"`
	Quantity      decimal.Decimal `json:"quantity"`
	Level         int             `json:"level"`
	CorrelationID string          `json:"correlation_id"`
}

// CancelOrder cancels a resting order.
type CancelOrder struct {
	Order Order `json:"order"`
}

// IgnoreCancelConflict marks an exchange order id as filled so that a racing
// cancel rejection for it is not treated as a failure. Applied locally.
type IgnoreCancelConflict struct {
	ExchangeID int64 `json:"exchange_id"`
}

func (CreateOrder) Kind() EffectKind          { return EffectCreateOrder }
func (CancelOrder) Kind() EffectKind          { return EffectCancelOrder }
func (IgnoreCancelConflict) Kind() EffectKind { return EffectIgnoreCancelConflict }

func (CreateOrder) effect()          {}
func (CancelOrder) effect()          {}
func (IgnoreCancelConflict) effect() {}

// IsLocal reports whether the effect only touches process memory.
func (k EffectKind) IsLocal() bool {
	return k == EffectIgnoreCancelConflict
}

// String returns a human-readable string representation.
func (c CreateOrder) String() string {
	return fmt.Sprintf("%s level %d q:%s @ %s (%s)",
		c.Side, c.Level, c.Quantity.String(), c.Price.String(), c.CorrelationID)
}

// Order returns the CREATING order the reducer tracks for this request.
func (c CreateOrder) Order() Order {
	return Order{
		Side:          c.Side,
		CorrelationID: c.CorrelationID,
		Level:         c.Level,
		Price:         c.Price,
		Quantity:      c.Quantity,
		Lifecycle:     LifecycleCreating,
	}
}
