package feed

import (
	"context"
	"time"

	"github.com/adshao/go-binance/v2"
	"github.com/cenkalti/backoff/v5"
	"github.com/pkg/errors"
	"github.com/vadiminshakov/gridbot/internal/domain"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	maxReconnectInterval = 30 * time.Second
	listenKeyKeepalive   = 30 * time.Minute
)

// Dispatcher accepts normalized actions.
type Dispatcher interface {
	Dispatch(action domain.Action)
}

// Correlations reports whether any of the client ids belongs to this process.
type Correlations interface {
	Known(ids ...string) bool
}

// LatencyObserver records how late an exchange event arrived.
type LatencyObserver interface {
	ObserveLatency(event string, latency time.Duration)
}

// TradeSink receives every public trade, e.g. a paper exchange.
type TradeSink interface {
	OnTrade(trade domain.AggregateTrade)
}

// Latency event names.
const (
	EventExecutionReport         = "executionReport"
	EventOutboundAccountPosition = "outboundAccountPosition"
)

type nopLatency struct{}

func (nopLatency) ObserveLatency(string, time.Duration) {}

type serveFunc func() (doneC, stopC chan struct{}, err error)

// BinanceFeed subscribes to the margin user data stream plus the aggTrade and
// bookTicker streams of one symbol.
type BinanceFeed struct {
	l            *zap.Logger
	client       *binance.Client
	pair         domain.Pair
	sink         Dispatcher
	correlations Correlations
	latency      LatencyObserver
	tradeSinks   []TradeSink
	userStream   bool
	now          func() time.Time
}

// BinanceFeedOption configures BinanceFeed.
type BinanceFeedOption func(*BinanceFeed)

// WithLatencyObserver records event latencies.
func WithLatencyObserver(o LatencyObserver) BinanceFeedOption {
	return func(f *BinanceFeed) {
		f.latency = o
	}
}

// WithTradeSinks fans out trades to extra receivers.
func WithTradeSinks(sinks ...TradeSink) BinanceFeedOption {
	return func(f *BinanceFeed) {
		f.tradeSinks = append(f.tradeSinks, sinks...)
	}
}

// WithoutUserStream subscribes to public streams only.
func WithoutUserStream() BinanceFeedOption {
	return func(f *BinanceFeed) {
		f.userStream = false
	}
}

// NewBinanceFeed creates a feed dispatching into sink.
func NewBinanceFeed(l *zap.Logger, client *binance.Client, pair domain.Pair, sink Dispatcher, correlations Correlations, opts ...BinanceFeedOption) *BinanceFeed {
	f := &BinanceFeed{
		l:            l,
		client:       client,
		pair:         pair,
		sink:         sink,
		correlations: correlations,
		latency:      nopLatency{},
		userStream:   true,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Run serves all streams until ctx is done.
func (f *BinanceFeed) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	if f.userStream {
		g.Go(func() error {
			return f.serveUserData(ctx)
		})
	}
	g.Go(func() error {
		return f.serve(ctx, "aggTrade", func() (chan struct{}, chan struct{}, error) {
			return binance.WsAggTradeServe(f.pair.Symbol(), f.onAggTrade, f.onError("aggTrade"))
		})
	})
	g.Go(func() error {
		return f.serve(ctx, "bookTicker", func() (chan struct{}, chan struct{}, error) {
			return binance.WsBookTickerServe(f.pair.Symbol(), f.onBookTicker, f.onError("bookTicker"))
		})
	})

	return g.Wait()
}

// serve keeps a stream connected, reconnecting with exponential backoff.
func (f *BinanceFeed) serve(ctx context.Context, name string, start serveFunc) error {
	b := backoff.NewExponentialBackOff()
	b.MaxInterval = maxReconnectInterval

	for {
		doneC, stopC, err := start()
		if err != nil {
			f.l.Warn("failed to connect stream", zap.String("stream", name), zap.Error(err))
		} else {
			f.l.Info("stream connected", zap.String("stream", name))
			b.Reset()

			select {
			case <-ctx.Done():
				close(stopC)
				<-doneC
				return nil
			case <-doneC:
				f.l.Warn("stream closed, reconnecting", zap.String("stream", name))
			}
		}

		wait := b.NextBackOff()
		if wait == backoff.Stop {
			wait = maxReconnectInterval
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(wait):
		}
	}
}

func (f *BinanceFeed) serveUserData(ctx context.Context) error {
	return f.serve(ctx, "userData", func() (chan struct{}, chan struct{}, error) {
		listenKey, err := f.client.NewStartMarginUserStreamService().Do(ctx)
		if err != nil {
			return nil, nil, errors.Wrap(err, "failed to start margin user stream")
		}

		doneC, stopC, err := binance.WsUserDataServe(listenKey, f.onUserData, f.onError("userData"))
		if err != nil {
			return nil, nil, err
		}

		go f.keepalive(ctx, listenKey, doneC)
		return doneC, stopC, nil
	})
}

func (f *BinanceFeed) keepalive(ctx context.Context, listenKey string, doneC chan struct{}) {
	ticker := time.NewTicker(listenKeyKeepalive)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-doneC:
			return
		case <-ticker.C:
			err := f.client.NewKeepaliveMarginUserStreamService().ListenKey(listenKey).Do(ctx)
			if err != nil {
				f.l.Warn("failed to keep margin listen key alive", zap.Error(err))
			}
		}
	}
}

func (f *BinanceFeed) onError(stream string) binance.ErrHandler {
	return func(err error) {
		f.l.Warn("stream error", zap.String("stream", stream), zap.Error(err))
	}
}

func (f *BinanceFeed) onUserData(e *binance.WsUserDataEvent) {
	switch e.Event {
	case binance.UserDataEventTypeOutboundAccountPosition:
		upd, err := AccountUpdate(e)
		if err != nil {
			f.l.Error("bad account update", zap.Error(err))
			return
		}
		f.latency.ObserveLatency(EventOutboundAccountPosition, f.now().Sub(upd.EventTime))
		f.sink.Dispatch(upd)
	case binance.UserDataEventTypeExecutionReport:
		if e.OrderUpdate.Symbol != f.pair.Symbol() {
			return
		}
		rep, err := ExecutionReport(e.OrderUpdate)
		if err != nil {
			f.l.Error("bad execution report", zap.Error(err))
			return
		}
		if !f.correlations.Known(rep.CorrelationIDs...) {
			f.l.Warn("dropping execution report with unknown correlation ids",
				zap.Strings("ids", rep.CorrelationIDs),
				zap.Int64("exchange_id", rep.ExchangeID),
				zap.String("status", string(rep.Status)))
			return
		}
		f.latency.ObserveLatency(EventExecutionReport, f.now().Sub(rep.TradeTime))
		f.sink.Dispatch(rep)
	}
}

func (f *BinanceFeed) onAggTrade(e *binance.WsAggTradeEvent) {
	trade, err := AggregateTrade(e)
	if err != nil {
		f.l.Error("bad aggregate trade", zap.Error(err))
		return
	}
	for _, s := range f.tradeSinks {
		s.OnTrade(trade)
	}
	f.sink.Dispatch(trade)
}

func (f *BinanceFeed) onBookTicker(e *binance.WsBookTickerEvent) {
	ticker, err := BookTicker(e)
	if err != nil {
		f.l.Error("bad book ticker", zap.Error(err))
		return
	}
	f.sink.Dispatch(ticker)
}
