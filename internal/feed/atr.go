package feed

import (
	"context"
	"time"

	"github.com/adshao/go-binance/v2"
	"github.com/cinar/indicator/v2/helper"
	"github.com/cinar/indicator/v2/volatility"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/gridbot/internal/domain"
	"go.uber.org/zap"
)

const (
	DefaultATRInterval = "1m"
	DefaultATRPeriod   = 14
	DefaultATRRefresh  = 30 * time.Second
	levelSizeDecimals  = 2
)

// CandleSource returns recent candles, oldest first.
type CandleSource interface {
	Candles(ctx context.Context, pair domain.Pair, interval string, limit int) ([]domain.Candle, error)
}

// BinanceCandles reads klines over REST.
type BinanceCandles struct {
	client *binance.Client
}

// NewBinanceCandles creates a kline source.
func NewBinanceCandles(client *binance.Client) *BinanceCandles {
	return &BinanceCandles{client: client}
}

// Candles implements CandleSource.
func (c *BinanceCandles) Candles(ctx context.Context, pair domain.Pair, interval string, limit int) ([]domain.Candle, error) {
	klines, err := c.client.NewKlinesService().
		Symbol(pair.Symbol()).
		Interval(interval).
		Limit(limit).
		Do(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get klines")
	}

	candles := make([]domain.Candle, 0, len(klines))
	for _, k := range klines {
		candle, err := parseKline(k)
		if err != nil {
			return nil, err
		}
		candles = append(candles, candle)
	}

	return candles, nil
}

func parseKline(k *binance.Kline) (domain.Candle, error) {
	open, err := decimal.NewFromString(k.Open)
	if err != nil {
		return domain.Candle{}, errors.Wrap(err, "parse kline open")
	}
	high, err := decimal.NewFromString(k.High)
	if err != nil {
		return domain.Candle{}, errors.Wrap(err, "parse kline high")
	}
	low, err := decimal.NewFromString(k.Low)
	if err != nil {
		return domain.Candle{}, errors.Wrap(err, "parse kline low")
	}
	closePrice, err := decimal.NewFromString(k.Close)
	if err != nil {
		return domain.Candle{}, errors.Wrap(err, "parse kline close")
	}

	return domain.Candle{
		OpenTime:  time.UnixMilli(k.OpenTime),
		Open:      open,
		High:      high,
		Low:       low,
		Close:     closePrice,
		CloseTime: time.UnixMilli(k.CloseTime),
	}, nil
}

// LevelSizeFromATR returns the latest ATR(period) of candles times factor,
// rounded to cents.
func LevelSizeFromATR(candles []domain.Candle, period int, factor decimal.Decimal) (decimal.Decimal, error) {
	if period <= 0 {
		return decimal.Zero, errors.Errorf("invalid atr period %d", period)
	}
	if len(candles) <= period {
		return decimal.Zero, errors.Errorf("not enough candles: need more than %d, got %d", period, len(candles))
	}

	highs := make([]float64, len(candles))
	lows := make([]float64, len(candles))
	closes := make([]float64, len(candles))
	for i, c := range candles {
		highs[i], _ = c.High.Float64()
		lows[i], _ = c.Low.Float64()
		closes[i], _ = c.Close.Float64()
	}

	atr := volatility.NewAtrWithPeriod[float64](period)
	values := helper.ChanToSlice(atr.Compute(
		helper.SliceToChan(highs),
		helper.SliceToChan(lows),
		helper.SliceToChan(closes),
	))
	if len(values) == 0 {
		return decimal.Zero, errors.New("atr produced no values")
	}

	last := decimal.NewFromFloat(values[len(values)-1])
	return last.Mul(factor).Round(levelSizeDecimals), nil
}

// ATRSizer derives the level size locally from candle volatility.
type ATRSizer struct {
	l        *zap.Logger
	source   CandleSource
	pair     domain.Pair
	interval string
	period   int
	factor   decimal.Decimal
	refresh  time.Duration
	sink     Dispatcher
	last     decimal.Decimal
}

// NewATRSizer creates a sizer. Zero values fall back to defaults.
func NewATRSizer(l *zap.Logger, source CandleSource, pair domain.Pair, interval string, period int, factor decimal.Decimal, refresh time.Duration, sink Dispatcher) *ATRSizer {
	if interval == "" {
		interval = DefaultATRInterval
	}
	if period <= 0 {
		period = DefaultATRPeriod
	}
	if !factor.IsPositive() {
		factor = decimal.NewFromInt(1)
	}
	if refresh <= 0 {
		refresh = DefaultATRRefresh
	}

	return &ATRSizer{
		l:        l,
		source:   source,
		pair:     pair,
		interval: interval,
		period:   period,
		factor:   factor,
		refresh:  refresh,
		sink:     sink,
	}
}

// Run refreshes the level size until ctx is done.
func (s *ATRSizer) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.refresh)
	defer ticker.Stop()

	for {
		if err := s.Refresh(ctx); err != nil && ctx.Err() == nil {
			s.l.Warn("failed to refresh atr level size", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// Refresh computes the level size once and dispatches it when it changed.
func (s *ATRSizer) Refresh(ctx context.Context) error {
	candles, err := s.source.Candles(ctx, s.pair, s.interval, s.period*3)
	if err != nil {
		return err
	}

	size, err := LevelSizeFromATR(candles, s.period, s.factor)
	if err != nil {
		return err
	}
	if !size.IsPositive() || size.Equal(s.last) {
		return nil
	}
	s.last = size

	s.l.Info("atr level size", zap.String("level_size", size.String()))
	s.sink.Dispatch(domain.UpdateSettings{LevelSize: size})

	return nil
}
