package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// ActionKind discriminates Action variants.
type ActionKind string

const (
	KindAccountBalanceUpdate ActionKind = "accountBalanceUpdate"
	KindOrderExecutionReport ActionKind = "orderExecutionReport"
	KindAggregateTrade       ActionKind = "aggregateTrade"
	KindBookTicker           ActionKind = "bookTicker"
	KindUpdateSettings       ActionKind = "updateSettings"
	KindUpdateBalance        ActionKind = "updateBalance"
	KindSetGridParameters    ActionKind = "setGridParameters"
)

// Action input event consumed by the grid reducer.
//
// The set of variants is closed: only types in this package implement it.
type Action interface {
	Kind() ActionKind
	action()
}

// AccountBalanceUpdate account position push, keyed by asset symbol.
type AccountBalanceUpdate struct {
	Balances  map[string]Balance `json:"balances"`
	EventTime time.Time          `json:"event_time"`
}

// OrderExecutionReport order status change pushed by the exchange.
type OrderExecutionReport struct {
	// CorrelationIDs candidate client ids, matched in order. Cancel reports carry
	// the original id in the second slot.
	CorrelationIDs []string        `json:"correlation_ids"`
	ExchangeID     int64           `json:"exchange_id"`
	Side           Side            `json:"side"`
	Status         OrderStatus     `json:"status"`
	Price          decimal.Decimal `json:"price"`
	Quantity       decimal.Decimal `json:"quantity"`
	// TradeID is positive only when the report carries a fill.
	TradeID   int64     `json:"trade_id"`
	TradeTime time.Time `json:"trade_time"`
}

// AggregateTrade public trade tick.
type AggregateTrade struct {
	Price       decimal.Decimal `json:"price"`
	LastTradeID int64           `json:"last_trade_id"`
}

// BookTicker best bid/ask tick.
type BookTicker struct {
	Bid decimal.Decimal `json:"bid"`
	Ask decimal.Decimal `json:"ask"`
}

// UpdateSettings new level size in quote currency.
type UpdateSettings struct {
	LevelSize decimal.Decimal `json:"level_size"`
}

// UpdateBalance direct balance replacement, used on startup.
type UpdateBalance struct {
	Base  Balance `json:"base"`
	Quote Balance `json:"quote"`
}

// SetGridParameters changes the number of grid orders to maintain.
type SetGridParameters struct {
	TargetTotalLevels int `json:"target_total_levels"`
}

func (AccountBalanceUpdate) Kind() ActionKind { return KindAccountBalanceUpdate }
func (OrderExecutionReport) Kind() ActionKind { return KindOrderExecutionReport }
func (AggregateTrade) Kind() ActionKind       { return KindAggregateTrade }
func (BookTicker) Kind() ActionKind           { return KindBookTicker }
func (UpdateSettings) Kind() ActionKind       { return KindUpdateSettings }
func (UpdateBalance) Kind() ActionKind        { return KindUpdateBalance }
func (SetGridParameters) Kind() ActionKind    { return KindSetGridParameters }

func (AccountBalanceUpdate) action() {}
func (OrderExecutionReport) action() {}
func (AggregateTrade) action()       {}
func (BookTicker) action()           {}
func (UpdateSettings) action()       {}
func (UpdateBalance) action()        {}
func (SetGridParameters) action()    {}
