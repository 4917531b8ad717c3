package internal

import (
	"context"
	"fmt"

	binance "github.com/adshao/go-binance/v2"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/vadiminshakov/gridbot/config"
	"github.com/vadiminshakov/gridbot/internal/clients"
	"github.com/vadiminshakov/gridbot/internal/domain"
	"github.com/vadiminshakov/gridbot/internal/exchange"
	"github.com/vadiminshakov/gridbot/internal/feed"
	"github.com/vadiminshakov/gridbot/internal/scheduler"
	"github.com/vadiminshakov/gridbot/internal/storage/simstate"
)

type gatewayService interface {
	scheduler.Gateway
	QueryBalances(ctx context.Context) (map[string]domain.Balance, error)
	Liquidate(ctx context.Context) error
}

type runner interface {
	Run(ctx context.Context) error
}

// feedDeps are the scheduler-side collaborators a market feed needs.
type feedDeps struct {
	sink         feed.Dispatcher
	correlations feed.Correlations
	latency      feed.LatencyObserver
}

// serviceProvider defines a factory interface for creating platform-specific services.
type serviceProvider interface {
	Gateway() (gatewayService, error)
	// Attach connects gateway-originated events to the scheduler, if the
	// platform produces any.
	Attach(sink feed.Dispatcher)
	Feed(deps feedDeps) runner
	Candles() feed.CandleSource
}

// newServiceProvider creates a new service provider based on the client type.
func newServiceProvider(client any, l *zap.Logger, conf config.Config) (serviceProvider, error) {
	switch c := client.(type) {
	case *binance.Client:
		return &binanceProvider{client: c, l: l, conf: conf}, nil
	case *clients.SimulateClient:
		return &simulateProvider{client: c, l: l, conf: conf}, nil
	default:
		return nil, fmt.Errorf("unsupported client type: %T", client)
	}
}

type binanceProvider struct {
	client *binance.Client
	l      *zap.Logger
	conf   config.Config
}

func (p *binanceProvider) Gateway() (gatewayService, error) {
	return exchange.NewBinanceGateway(p.l, p.client, p.conf.Pair,
		exchange.WithPrecision(p.conf.QuantityPrecision, p.conf.PricePrecision),
		exchange.WithOrderRate(p.conf.OrderRate),
	), nil
}

func (p *binanceProvider) Attach(feed.Dispatcher) {}

func (p *binanceProvider) Feed(deps feedDeps) runner {
	return feed.NewBinanceFeed(p.l, p.client, p.conf.Pair, deps.sink, deps.correlations,
		feed.WithLatencyObserver(deps.latency))
}

func (p *binanceProvider) Candles() feed.CandleSource {
	return feed.NewBinanceCandles(p.client)
}

// simulateProvider trades against an in-process paper account fed by the
// public Binance streams.
type simulateProvider struct {
	client *clients.SimulateClient
	l      *zap.Logger
	conf   config.Config
	paper  *exchange.PaperGateway
}

func (p *simulateProvider) Gateway() (gatewayService, error) {
	if p.paper != nil {
		return p.paper, nil
	}
	store, err := simstate.NewStore(p.conf.SimStateDir, p.conf.Pair)
	if err != nil {
		return nil, err
	}
	funds := map[string]decimal.Decimal{p.conf.Pair.To: p.conf.SimQuoteBalance}
	paper, err := exchange.NewPaperGateway(p.l, p.conf.Pair, funds, exchange.WithStore(store))
	if err != nil {
		return nil, err
	}
	p.paper = paper
	return paper, nil
}

func (p *simulateProvider) Attach(sink feed.Dispatcher) {
	if p.paper != nil {
		p.paper.Attach(sink)
	}
}

func (p *simulateProvider) Feed(deps feedDeps) runner {
	opts := []feed.BinanceFeedOption{feed.WithLatencyObserver(deps.latency), feed.WithoutUserStream()}
	if p.paper != nil {
		opts = append(opts, feed.WithTradeSinks(p.paper))
	}
	return feed.NewBinanceFeed(p.l, p.client.GetBinanceClient(), p.conf.Pair, deps.sink, deps.correlations, opts...)
}

func (p *simulateProvider) Candles() feed.CandleSource {
	return feed.NewBinanceCandles(p.client.GetBinanceClient())
}
