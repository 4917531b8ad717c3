package internal

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/vadiminshakov/gridbot/config"
	"github.com/vadiminshakov/gridbot/internal/domain"
	"github.com/vadiminshakov/gridbot/internal/feed"
	"github.com/vadiminshakov/gridbot/internal/grid"
	"github.com/vadiminshakov/gridbot/internal/metrics"
	"github.com/vadiminshakov/gridbot/internal/scheduler"
	"github.com/vadiminshakov/gridbot/internal/storage/audit"
	"github.com/vadiminshakov/gridbot/internal/web"
)

var errLiquidationRequested = errors.New("liquidation requested")

// GridBot runs one grid for one pair: market feeds and the settings source
// dispatch into the scheduler, which drives the reducer and the exchange.
type GridBot struct {
	l         *zap.Logger
	conf      config.Config
	provider  serviceProvider
	gateway   gatewayService
	scheduler *scheduler.Scheduler
	metrics   *metrics.Metrics
	registry  *prometheus.Registry

	liquidateOnce sync.Once
	liquidate     chan struct{}
}

// NewGridBot creates a bot for the platform client returned by clients.FromEnv.
func NewGridBot(l *zap.Logger, conf config.Config, client any) (*GridBot, error) {
	provider, err := newServiceProvider(client, l, conf)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create service provider")
	}
	return newGridBot(l, conf, provider)
}

func newGridBot(l *zap.Logger, conf config.Config, provider serviceProvider) (*GridBot, error) {
	l = l.With(zap.String("pair", conf.Pair.String()))

	gateway, err := provider.Gateway()
	if err != nil {
		return nil, errors.Wrap(err, "failed to create exchange gateway")
	}

	reducer, err := grid.NewReducer(l, conf.Pair, conf.Grid)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create grid reducer")
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	m := metrics.New(registry)
	sched := scheduler.New(l, reducer, gateway, scheduler.NewCorrelations(), domain.NewState(conf.TargetLevels),
		scheduler.WithObserver(m))
	provider.Attach(sched)

	return &GridBot{
		l:         l,
		conf:      conf,
		provider:  provider,
		gateway:   gateway,
		scheduler: sched,
		metrics:   m,
		registry:  registry,
		liquidate: make(chan struct{}),
	}, nil
}

// State returns the last committed grid state.
func (b *GridBot) State() domain.State {
	return b.scheduler.State()
}

// History returns the in-memory audit log.
func (b *GridBot) History() []scheduler.Entry {
	return b.scheduler.History().Entries()
}

// KnownOrders returns the size of the correlation table.
func (b *GridBot) KnownOrders() int {
	return b.scheduler.Correlations().Len()
}

// SetGridParameters changes the number of orders the grid maintains.
func (b *GridBot) SetGridParameters(targetLevels int) {
	b.scheduler.Dispatch(domain.SetGridParameters{TargetTotalLevels: targetLevels})
}

// Liquidate requests a full liquidation followed by shutdown.
func (b *GridBot) Liquidate() {
	b.liquidateOnce.Do(func() { close(b.liquidate) })
}

// Run starts the bot and blocks until ctx is done, liquidation is requested
// through the control surface or the scheduler faults. The account is
// liquidated on every exit path. The returned error is the fault, if any.
func (b *GridBot) Run(ctx context.Context) error {
	if err := b.gateway.Liquidate(ctx); err != nil {
		return errors.Wrap(err, "failed to liquidate leftovers")
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(runCtx)

	server := web.NewServer(b.l, b.conf.Control.Addr, b.conf.Pair, b, b.registry, b.tls())
	g.Go(func() error {
		return server.Start(gctx)
	})

	settings := b.settingsSource()
	g.Go(func() error {
		return settings.Run(gctx)
	})

	balances, err := b.gateway.QueryBalances(ctx)
	if err != nil {
		cancel()
		_ = g.Wait()
		b.shutdown(ctx)
		return errors.Wrap(err, "failed to query balances")
	}
	b.scheduler.Dispatch(domain.UpdateBalance{
		Base:  balances[b.conf.Pair.From],
		Quote: balances[b.conf.Pair.To],
	})
	if b.conf.LevelSize.IsPositive() {
		b.scheduler.Dispatch(domain.UpdateSettings{LevelSize: b.conf.LevelSize})
	}

	market := b.provider.Feed(feedDeps{
		sink:         b.scheduler,
		correlations: b.scheduler.Correlations(),
		latency:      b.metrics,
	})
	g.Go(func() error {
		return market.Run(gctx)
	})

	g.Go(func() error {
		if err := b.scheduler.Run(gctx); err != nil {
			return errors.Wrap(err, "scheduler fault")
		}
		return nil
	})

	g.Go(func() error {
		select {
		case <-gctx.Done():
			return nil
		case <-b.liquidate:
			b.l.Info("liquidation requested")
			return errLiquidationRequested
		}
	})

	b.l.Info("grid bot started",
		zap.Int("target_levels", b.conf.TargetLevels),
		zap.String("platform", b.conf.Platform))

	runErr := g.Wait()
	if errors.Is(runErr, errLiquidationRequested) {
		runErr = nil
	}
	if runErr != nil {
		b.l.Error("grid bot stopped with fault", zap.Error(runErr))
	}

	b.shutdown(ctx)

	return runErr
}

func (b *GridBot) settingsSource() runner {
	s := b.conf.Settings
	if s.Source == config.SettingsSourceATR {
		return feed.NewATRSizer(b.l, b.provider.Candles(), b.conf.Pair, s.ATRInterval, s.ATRPeriod, s.ATRFactor, s.Interval, b.scheduler)
	}
	return feed.NewSettingsPoller(b.l, s.URL, s.Interval, b.scheduler)
}

func (b *GridBot) tls() *web.TLS {
	if len(b.conf.Control.TLSDomains) == 0 {
		return nil
	}
	return &web.TLS{Domains: b.conf.Control.TLSDomains, CacheDir: b.conf.Control.CertCache}
}

// shutdown stops accepting actions, drains in-flight effects, liquidates the
// account and persists the audit log. Feeds must already be stopped.
func (b *GridBot) shutdown(parent context.Context) {
	b.scheduler.Abort()

	ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), b.conf.ShutdownTimeout)
	defer cancel()

	if err := b.scheduler.Wait(ctx); err != nil {
		b.l.Warn("in-flight effects did not finish", zap.Error(err))
	}

	if err := b.gateway.Liquidate(ctx); err != nil {
		b.l.Error("failed to liquidate", zap.Error(err))
	} else {
		b.l.Info("account liquidated")
	}

	b.persistHistory()
}

func (b *GridBot) persistHistory() {
	store, err := audit.NewWALStore(b.conf.AuditDir)
	if err != nil {
		b.l.Error("failed to open audit store", zap.Error(err))
		return
	}
	defer func() {
		if err := store.Close(); err != nil {
			b.l.Warn("failed to close audit store", zap.Error(err))
		}
	}()

	entries := b.scheduler.History().Entries()
	if err := store.Save(entries); err != nil {
		b.l.Error("failed to persist audit log", zap.Error(err))
		return
	}
	b.l.Info("audit log persisted", zap.Int("entries", len(entries)), zap.Uint64("index", store.CurrentIndex()))
}
