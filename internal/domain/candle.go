package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Candle single OHLC candlestick.
type Candle struct {
	OpenTime  time.Time
	Open      decimal.Decimal
	High      decimal.Decimal
	Low       decimal.Decimal
	Close     decimal.Decimal
	CloseTime time.Time
}
