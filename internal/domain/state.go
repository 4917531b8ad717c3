package domain

import (
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// DefaultTargetTotalLevels number of grid orders kept when nothing else is configured.
const DefaultTargetTotalLevels = 10

// Trade last observed market trade.
type Trade struct {
	ID    int64           `json:"id"`
	Price decimal.Decimal `json:"price"`
}

// Book best bid and ask.
type Book struct {
	Bid decimal.Decimal `json:"bid"`
	Ask decimal.Decimal `json:"ask"`
}

// State complete decision state of the grid.
//
// State is a value: the reducer never mutates a State it received, it builds a
// new one. Optional fields are nil until the corresponding event arrives.
type State struct {
	LevelSizeQuote    *decimal.Decimal `json:"level_size_quote,omitempty"`
	AnchorPrice       *decimal.Decimal `json:"anchor_price,omitempty"`
	AnchorIndex       int              `json:"anchor_index"`
	TargetTotalLevels int              `json:"target_total_levels"`
	Base              *Balance         `json:"base,omitempty"`
	Quote             *Balance         `json:"quote,omitempty"`
	Orders            []Order          `json:"orders"`
	LastTrade         *Trade           `json:"last_trade,omitempty"`
	Book              *Book            `json:"book,omitempty"`
}

// NewState returns the empty startup state.
func NewState(targetTotalLevels int) State {
	if targetTotalLevels <= 0 {
		targetTotalLevels = DefaultTargetTotalLevels
	}
	return State{
		TargetTotalLevels: targetTotalLevels,
		Orders:            []Order{},
	}
}

// Initialized reports whether every input needed for grid decisions is known.
func (s State) Initialized() bool {
	return s.LevelSizeQuote != nil && s.AnchorPrice != nil &&
		s.Base != nil && s.Quote != nil && s.LastTrade != nil
}

// Equity total account value in quote terms valued at the last trade price.
func (s State) Equity() (decimal.Decimal, bool) {
	if s.Base == nil || s.Quote == nil || s.LastTrade == nil {
		return decimal.Zero, false
	}
	return s.Quote.Total().Add(s.Base.Total().Mul(s.LastTrade.Price)), true
}

// FindOrder looks an order up by correlation id.
func (s State) FindOrder(correlationID string) (Order, bool) {
	for _, o := range s.Orders {
		if o.CorrelationID == correlationID {
			return o, true
		}
	}
	return Order{}, false
}

// OrdersBySide returns orders of one side in state order.
func (s State) OrdersBySide(side Side) []Order {
	out := make([]Order, 0, len(s.Orders))
	for _, o := range s.Orders {
		if o.Side == side {
			out = append(out, o)
		}
	}
	return out
}

// CountLifecycle counts orders of a side in the given lifecycle state.
func (s State) CountLifecycle(side Side, l Lifecycle) int {
	n := 0
	for _, o := range s.Orders {
		if o.Side == side && o.Lifecycle == l {
			n++
		}
	}
	return n
}

// Validate checks state invariants. A violation means the model is corrupted.
func (s State) Validate() error {
	if s.TargetTotalLevels <= 0 {
		return errors.Errorf("target total levels must be positive, got %d", s.TargetTotalLevels)
	}

	seen := make(map[string]struct{}, len(s.Orders))
	for _, o := range s.Orders {
		if o.CorrelationID == "" {
			return errors.Errorf("order at level %d has empty correlation id", o.Level)
		}
		if _, dup := seen[o.CorrelationID]; dup {
			return errors.Errorf("duplicate correlation id %s", o.CorrelationID)
		}
		seen[o.CorrelationID] = struct{}{}

		if !o.Side.IsValid() {
			return errors.Errorf("order %s has invalid side %q", o.CorrelationID, o.Side)
		}
		if !o.Price.IsPositive() || !o.Quantity.IsPositive() {
			return errors.Errorf("order %s has non-positive price %s or quantity %s",
				o.CorrelationID, o.Price.String(), o.Quantity.String())
		}
	}

	if s.LevelSizeQuote != nil && !s.LevelSizeQuote.IsPositive() {
		return errors.Errorf("level size must be positive, got %s", s.LevelSizeQuote.String())
	}

	if s.Initialized() {
		distance := s.LastTrade.Price.Sub(*s.AnchorPrice).Abs()
		if distance.GreaterThanOrEqual(*s.LevelSizeQuote) {
			return errors.Errorf("anchor price %s is %s away from last trade %s, level size %s",
				s.AnchorPrice.String(), distance.String(), s.LastTrade.Price.String(), s.LevelSizeQuote.String())
		}
	}

	return nil
}

// Field identifies a top-level State field for change detection.
type Field string

const (
	FieldLevelSizeQuote    Field = "level_size_quote"
	FieldAnchorPrice       Field = "anchor_price"
	FieldAnchorIndex       Field = "anchor_index"
	FieldTargetTotalLevels Field = "target_total_levels"
	FieldBase              Field = "base"
	FieldQuote             Field = "quote"
	FieldOrders            Field = "orders"
	FieldLastTrade         Field = "last_trade"
	FieldBook              Field = "book"
)

// IsVolatile reports whether the field changes too often to be worth auditing.
func (f Field) IsVolatile() bool {
	return f == FieldLastTrade || f == FieldBook
}

// ChangedFields lists the fields that differ between prev and s.
func (s State) ChangedFields(prev State) []Field {
	var changed []Field
	if !equalDecimalPtr(s.LevelSizeQuote, prev.LevelSizeQuote) {
		changed = append(changed, FieldLevelSizeQuote)
	}
	if !equalDecimalPtr(s.AnchorPrice, prev.AnchorPrice) {
		changed = append(changed, FieldAnchorPrice)
	}
	if s.AnchorIndex != prev.AnchorIndex {
		changed = append(changed, FieldAnchorIndex)
	}
	if s.TargetTotalLevels != prev.TargetTotalLevels {
		changed = append(changed, FieldTargetTotalLevels)
	}
	if !equalBalancePtr(s.Base, prev.Base) {
		changed = append(changed, FieldBase)
	}
	if !equalBalancePtr(s.Quote, prev.Quote) {
		changed = append(changed, FieldQuote)
	}
	if !equalOrders(s.Orders, prev.Orders) {
		changed = append(changed, FieldOrders)
	}
	if !equalTradePtr(s.LastTrade, prev.LastTrade) {
		changed = append(changed, FieldLastTrade)
	}
	if !equalBookPtr(s.Book, prev.Book) {
		changed = append(changed, FieldBook)
	}
	return changed
}

// HasEssentialChanges reports whether any non-volatile field differs from prev.
func (s State) HasEssentialChanges(prev State) bool {
	for _, f := range s.ChangedFields(prev) {
		if !f.IsVolatile() {
			return true
		}
	}
	return false
}

// Equal reports whether both states hold the same values.
func (s State) Equal(o State) bool {
	return len(s.ChangedFields(o)) == 0
}

func equalDecimalPtr(a, b *decimal.Decimal) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}

func equalBalancePtr(a, b *Balance) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}

func equalTradePtr(a, b *Trade) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.ID == b.ID && a.Price.Equal(b.Price)
}

func equalBookPtr(a, b *Book) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Bid.Equal(b.Bid) && a.Ask.Equal(b.Ask)
}

func equalOrders(a, b []Order) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !a[i].Equal(b[i]) {
			return false
		}
	}
	return true
}

// DecimalPtr returns a pointer to a copy of d.
func DecimalPtr(d decimal.Decimal) *decimal.Decimal {
	return &d
}
