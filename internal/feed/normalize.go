// Package feed turns exchange streams and settings sources into grid actions.
package feed

import (
	"strings"
	"time"

	"github.com/adshao/go-binance/v2"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/gridbot/internal/domain"
)

// AccountUpdate maps an outboundAccountPosition event.
func AccountUpdate(e *binance.WsUserDataEvent) (domain.AccountBalanceUpdate, error) {
	balances := make(map[string]domain.Balance, len(e.AccountUpdate.WsAccountUpdates))
	for _, u := range e.AccountUpdate.WsAccountUpdates {
		b, err := domain.ParseBalance(u.Free, u.Locked)
		if err != nil {
			return domain.AccountBalanceUpdate{}, errors.Wrapf(err, "parse %s balance", u.Asset)
		}
		balances[u.Asset] = b
	}

	// last account update time, the event time when absent
	ts := e.AccountUpdate.AccountUpdateTime
	if ts == 0 {
		ts = e.Time
	}

	return domain.AccountBalanceUpdate{
		Balances:  balances,
		EventTime: time.UnixMilli(ts),
	}, nil
}

// ExecutionReport maps an executionReport event. The client id comes first,
// the original client id of a cancelled order second.
func ExecutionReport(u binance.WsOrderUpdate) (domain.OrderExecutionReport, error) {
	price, err := decimal.NewFromString(u.Price)
	if err != nil {
		return domain.OrderExecutionReport{}, errors.Wrap(err, "parse order price")
	}
	quantity, err := decimal.NewFromString(u.Volume)
	if err != nil {
		return domain.OrderExecutionReport{}, errors.Wrap(err, "parse order quantity")
	}

	side := domain.Side(strings.ToUpper(string(u.Side)))
	if !side.IsValid() {
		return domain.OrderExecutionReport{}, errors.Errorf("unknown order side %q", u.Side)
	}

	ids := []string{u.ClientOrderId}
	if u.OrigCustomOrderId != "" {
		ids = append(ids, u.OrigCustomOrderId)
	}

	tradeID := u.TradeId
	if tradeID < 0 {
		tradeID = 0
	}

	return domain.OrderExecutionReport{
		CorrelationIDs: ids,
		ExchangeID:     u.Id,
		Side:           side,
		Status:         domain.OrderStatus(string(u.Status)),
		Price:          price,
		Quantity:       quantity,
		TradeID:        tradeID,
		TradeTime:      time.UnixMilli(u.TransactionTime),
	}, nil
}

// AggregateTrade maps an aggTrade event.
func AggregateTrade(e *binance.WsAggTradeEvent) (domain.AggregateTrade, error) {
	price, err := decimal.NewFromString(e.Price)
	if err != nil {
		return domain.AggregateTrade{}, errors.Wrap(err, "parse trade price")
	}
	return domain.AggregateTrade{Price: price, LastTradeID: e.LastBreakdownTradeID}, nil
}

// BookTicker maps a bookTicker event.
func BookTicker(e *binance.WsBookTickerEvent) (domain.BookTicker, error) {
	bid, err := decimal.NewFromString(e.BestBidPrice)
	if err != nil {
		return domain.BookTicker{}, errors.Wrap(err, "parse best bid")
	}
	ask, err := decimal.NewFromString(e.BestAskPrice)
	if err != nil {
		return domain.BookTicker{}, errors.Wrap(err, "parse best ask")
	}
	return domain.BookTicker{Bid: bid, Ask: ask}, nil
}
