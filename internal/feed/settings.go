package feed

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/gridbot/internal/domain"
	"github.com/vadiminshakov/gridbot/pkg/retrier"
	"go.uber.org/zap"
)

const (
	DefaultSettingsURL      = "http://127.0.0.1:8000"
	DefaultSettingsInterval = 250 * time.Millisecond
	settingsRetries         = 10
)

var errUnavailable = errors.New("settings not available yet")

// Settings response of the level size service.
type Settings struct {
	LevelSize          decimal.Decimal `json:"level_size"`
	LevelSizeRelative  decimal.Decimal `json:"level_size_relative"`
	Trades             int             `json:"trades"`
	RelevantTrades     int             `json:"relevant_trades"`
	FirstTrade         string          `json:"first_trade"`
	FirstRelevantTrade string          `json:"first_relevant_trade"`
}

// SettingsPoller polls the level size service and dispatches UpdateSettings.
type SettingsPoller struct {
	l        *zap.Logger
	client   *http.Client
	url      string
	interval time.Duration
	sink     Dispatcher
	retrier  *retrier.Retrier
	last     decimal.Decimal
}

// NewSettingsPoller creates a poller. Empty url and zero interval fall back to
// defaults.
func NewSettingsPoller(l *zap.Logger, url string, interval time.Duration, sink Dispatcher) *SettingsPoller {
	if url == "" {
		url = DefaultSettingsURL
	}
	if interval <= 0 {
		interval = DefaultSettingsInterval
	}

	return &SettingsPoller{
		l:        l,
		client:   &http.Client{Timeout: 5 * time.Second},
		url:      url,
		interval: interval,
		sink:     sink,
		retrier: retrier.New(
			retrier.WithMaxRetries(settingsRetries),
			retrier.WithInitialInterval(interval),
			retrier.WithMultiplier(1),
			retrier.WithJitter(0),
			retrier.WithRetryIf(func(err error) bool { return errors.Is(err, errUnavailable) }),
		),
	}
}

// Run polls until ctx is done.
func (p *SettingsPoller) Run(ctx context.Context) error {
	p.l.Info("updating settings from api", zap.String("url", p.url))

	for {
		if err := p.Poll(ctx); err != nil && ctx.Err() == nil {
			p.l.Warn("failed to fetch settings", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			p.l.Info("stopped updating settings from api")
			return nil
		case <-time.After(p.interval):
		}
	}
}

// Poll fetches settings once and dispatches a changed positive level size.
func (p *SettingsPoller) Poll(ctx context.Context) error {
	settings, err := retrier.DoWithData(p.retrier, ctx, p.fetch)
	if err != nil {
		return err
	}

	if !settings.LevelSize.IsPositive() || settings.LevelSize.Equal(p.last) {
		return nil
	}
	p.last = settings.LevelSize

	p.l.Debug("level size updated",
		zap.String("level_size", settings.LevelSize.String()),
		zap.Int("relevant_trades", settings.RelevantTrades))
	p.sink.Dispatch(domain.UpdateSettings{LevelSize: settings.LevelSize})

	return nil
}

func (p *SettingsPoller) fetch(ctx context.Context) (Settings, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return Settings{}, errors.Wrap(err, "build settings request")
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return Settings{}, errors.Wrap(err, "request settings")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Settings{}, errors.Wrap(err, "read settings")
	}

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusServiceUnavailable:
		return Settings{}, errUnavailable
	default:
		return Settings{}, errors.Errorf("unexpected status %d: %s", resp.StatusCode, string(body))
	}

	var settings Settings
	if err := json.Unmarshal(body, &settings); err != nil {
		return Settings{}, errors.Wrap(err, "decode settings")
	}

	return settings, nil
}
