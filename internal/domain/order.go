package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Side order side.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// String returns the string representation.
func (s Side) String() string {
	return string(s)
}

// IsValid checks if the Side value is valid.
func (s Side) IsValid() bool {
	return s == SideBuy || s == SideSell
}

// Lifecycle local optimistic state of an order.
type Lifecycle string

const (
	// LifecycleCreating create requested, not yet confirmed by the exchange.
	LifecycleCreating Lifecycle = "CREATING"
	// LifecycleActive confirmed live on the exchange.
	LifecycleActive Lifecycle = "ACTIVE"
	// LifecycleCancelling cancel requested.
	LifecycleCancelling Lifecycle = "CANCELLING"
)

// OrderStatus status reported by the exchange in execution reports.
type OrderStatus string

const (
	OrderStatusNew             OrderStatus = "NEW"
	OrderStatusPartiallyFilled OrderStatus = "PARTIALLY_FILLED"
	OrderStatusFilled          OrderStatus = "FILLED"
	OrderStatusCanceled        OrderStatus = "CANCELED"
	OrderStatusExpired         OrderStatus = "EXPIRED"
	OrderStatusRejected        OrderStatus = "REJECTED"
	OrderStatusPendingCancel   OrderStatus = "PENDING_CANCEL"
)

// IsLive reports whether the order rests on the book after this status.
func (s OrderStatus) IsLive() bool {
	return s == OrderStatusNew || s == OrderStatusPartiallyFilled
}

// IsTerminal reports whether the order leaves local state after this status.
func (s OrderStatus) IsTerminal() bool {
	switch s {
	case OrderStatusFilled, OrderStatusCanceled, OrderStatusExpired,
		OrderStatusRejected, OrderStatusPendingCancel:
		return true
	}
	return false
}

// Order grid order tracked locally.
type Order struct {
	Side Side `json:"side"`
	// ExchangeID is known only after the exchange confirms the order.
	ExchangeID *int64 `json:"exchange_id,omitempty"`
	// CorrelationID client order id echoed back on every exchange event.
	CorrelationID string          `json:"correlation_id"`
	Level         int             `json:"level"`
	Price         decimal.Decimal `json:"price"`
	Quantity      decimal.Decimal `json:"quantity"`
	Lifecycle     Lifecycle       `json:"lifecycle"`
}

// QuoteValue returns price times quantity.
func (o Order) QuoteValue() decimal.Decimal {
	return o.Price.Mul(o.Quantity)
}

// WithLifecycle returns a copy of the order in the given lifecycle state.
func (o Order) WithLifecycle(l Lifecycle) Order {
	o.Lifecycle = l
	return o
}

// Equal compares all fields, decimals numerically.
func (o Order) Equal(other Order) bool {
	if o.Side != other.Side || o.CorrelationID != other.CorrelationID ||
		o.Level != other.Level || o.Lifecycle != other.Lifecycle {
		return false
	}
	if (o.ExchangeID == nil) != (other.ExchangeID == nil) {
		return false
	}
	if o.ExchangeID != nil && *o.ExchangeID != *other.ExchangeID {
		return false
	}
	return o.Price.Equal(other.Price) && o.Quantity.Equal(other.Quantity)
}

// String returns a human-readable string representation.
func (o Order) String() string {
	return fmt.Sprintf("%s %s level %d q:%s @ %s (%s)",
		o.Lifecycle, o.Side, o.Level, o.Quantity.String(), o.Price.String(), o.CorrelationID)
}

// OrderReceipt exchange acknowledgement of a created order.
type OrderReceipt struct {
	ExchangeID    int64  `json:"exchange_id"`
	CorrelationID string `json:"correlation_id"`
	Status        string `json:"status,omitempty"`
}
