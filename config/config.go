package config

import (
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/gridbot/internal/domain"
	"github.com/vadiminshakov/gridbot/internal/grid"
	"gopkg.in/yaml.v3"
)

const (
	PlatformBinance  = "binance"
	PlatformSimulate = "simulate"

	SettingsSourceAPI = "api"
	SettingsSourceATR = "atr"
)

const (
	defaultControlAddr       = ":8080"
	defaultAuditDir          = "./wal/audit"
	defaultSimStateDir       = "./wal/simulate"
	defaultOrderRate         = 10
	defaultQuantityPrecision = 5
	defaultPricePrecision    = 2
	defaultShutdownTimeout   = 30 * time.Second
)

var defaultSimQuote = decimal.NewFromInt(10000)

// Config runtime configuration of a grid bot.
type Config struct {
	Platform          string
	Pair              domain.Pair
	TargetLevels      int
	LevelSize         decimal.Decimal
	Settings          Settings
	Control           Control
	AuditDir          string
	SimStateDir       string
	SimQuoteBalance   decimal.Decimal
	OrderRate         float64
	QuantityPrecision int32
	PricePrecision    int32
	Grid              grid.Params
	ShutdownTimeout   time.Duration
}

// Settings level size source.
type Settings struct {
	Source      string
	URL         string
	Interval    time.Duration
	ATRInterval string
	ATRPeriod   int
	ATRFactor   decimal.Decimal
}

// Control control surface listener.
type Control struct {
	Addr       string
	TLSDomains []string
	CertCache  string
}

// ConfigTmp yaml representation, decimals are kept as strings.
type ConfigTmp struct {
	Platform          string        `yaml:"platform"`
	Pair              string        `yaml:"pair"`
	TargetLevels      int           `yaml:"target_levels,omitempty"`
	LevelSize         string        `yaml:"level_size,omitempty"`
	Settings          SettingsTmp   `yaml:"settings,omitempty"`
	Control           ControlTmp    `yaml:"control,omitempty"`
	AuditDir          string        `yaml:"audit_dir,omitempty"`
	SimStateDir       string        `yaml:"simulate_state_dir,omitempty"`
	SimQuoteBalance   string        `yaml:"simulate_quote_balance,omitempty"`
	OrderRate         float64       `yaml:"order_rate,omitempty"`
	QuantityPrecision *int32        `yaml:"quantity_precision,omitempty"`
	PricePrecision    *int32        `yaml:"price_precision,omitempty"`
	SafetyFraction    string        `yaml:"safety_fraction,omitempty"`
	MinBaseUnit       string        `yaml:"min_base_unit,omitempty"`
	CancelThreshold   *int          `yaml:"cancel_threshold,omitempty"`
	ShutdownTimeout   time.Duration `yaml:"shutdown_timeout,omitempty"`
}

// SettingsTmp yaml representation of Settings.
type SettingsTmp struct {
	Source      string        `yaml:"source,omitempty"`
	URL         string        `yaml:"url,omitempty"`
	Interval    time.Duration `yaml:"interval,omitempty"`
	ATRInterval string        `yaml:"atr_interval,omitempty"`
	ATRPeriod   int           `yaml:"atr_period,omitempty"`
	ATRFactor   string        `yaml:"atr_factor,omitempty"`
}

// ControlTmp yaml representation of Control.
type ControlTmp struct {
	Addr       string   `yaml:"addr,omitempty"`
	TLSDomains []string `yaml:"tls_domains,omitempty"`
	CertCache  string   `yaml:"cert_cache,omitempty"`
}

func getYaml(path string) (Config, error) {
	f, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}

	var tmp ConfigTmp
	if err := yaml.Unmarshal(f, &tmp); err != nil {
		return Config{}, fmt.Errorf("failed to parse yaml config: %w", err)
	}

	return tmp.toConfig()
}

func (c ConfigTmp) toConfig() (Config, error) {
	pair, err := domain.ParsePair(c.Pair)
	if err != nil {
		return Config{}, fmt.Errorf("incorrect 'pair' param in yaml config: %s, error: %w", c.Pair, err)
	}

	cfg := Config{
		Platform:     c.Platform,
		Pair:         pair,
		TargetLevels: c.TargetLevels,
		Settings: Settings{
			Source:      c.Settings.Source,
			URL:         c.Settings.URL,
			Interval:    c.Settings.Interval,
			ATRInterval: c.Settings.ATRInterval,
			ATRPeriod:   c.Settings.ATRPeriod,
		},
		Control: Control{
			Addr:       c.Control.Addr,
			TLSDomains: c.Control.TLSDomains,
			CertCache:  c.Control.CertCache,
		},
		AuditDir:        c.AuditDir,
		SimStateDir:     c.SimStateDir,
		OrderRate:       c.OrderRate,
		Grid:            grid.DefaultParams(),
		ShutdownTimeout: c.ShutdownTimeout,
	}

	if cfg.LevelSize, err = parseDecimal(c.LevelSize, decimal.Zero); err != nil {
		return Config{}, fmt.Errorf("incorrect 'level_size' param in yaml config (must be a decimal), error: %w", err)
	}
	if cfg.Settings.ATRFactor, err = parseDecimal(c.Settings.ATRFactor, decimal.NewFromInt(1)); err != nil {
		return Config{}, fmt.Errorf("incorrect 'atr_factor' param in yaml config (must be a decimal), error: %w", err)
	}
	if cfg.SimQuoteBalance, err = parseDecimal(c.SimQuoteBalance, defaultSimQuote); err != nil {
		return Config{}, fmt.Errorf("incorrect 'simulate_quote_balance' param in yaml config (must be a decimal), error: %w", err)
	}
	if cfg.Grid.SafetyFraction, err = parseDecimal(c.SafetyFraction, cfg.Grid.SafetyFraction); err != nil {
		return Config{}, fmt.Errorf("incorrect 'safety_fraction' param in yaml config (must be a decimal), error: %w", err)
	}
	if cfg.Grid.MinBaseUnit, err = parseDecimal(c.MinBaseUnit, cfg.Grid.MinBaseUnit); err != nil {
		return Config{}, fmt.Errorf("incorrect 'min_base_unit' param in yaml config (must be a decimal), error: %w", err)
	}
	if c.CancelThreshold != nil {
		cfg.Grid.CancelThreshold = *c.CancelThreshold
	}

	cfg.QuantityPrecision = defaultQuantityPrecision
	if c.QuantityPrecision != nil {
		cfg.QuantityPrecision = *c.QuantityPrecision
	}
	cfg.PricePrecision = defaultPricePrecision
	if c.PricePrecision != nil {
		cfg.PricePrecision = *c.PricePrecision
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func parseDecimal(s string, def decimal.Decimal) (decimal.Decimal, error) {
	if s == "" {
		return def, nil
	}
	return decimal.NewFromString(s)
}

func (c *Config) applyDefaults() {
	if c.Platform == "" {
		c.Platform = PlatformBinance
	}
	if c.TargetLevels == 0 {
		c.TargetLevels = domain.DefaultTargetTotalLevels
	}
	if c.Settings.Source == "" {
		c.Settings.Source = SettingsSourceAPI
	}
	if c.Control.Addr == "" {
		c.Control.Addr = defaultControlAddr
	}
	if c.Control.CertCache == "" {
		c.Control.CertCache = "./certs"
	}
	if c.AuditDir == "" {
		c.AuditDir = defaultAuditDir
	}
	if c.SimStateDir == "" {
		c.SimStateDir = defaultSimStateDir
	}
	if c.OrderRate == 0 {
		c.OrderRate = defaultOrderRate
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = defaultShutdownTimeout
	}
}

// Validate checks the configuration is usable.
func (c Config) Validate() error {
	switch c.Platform {
	case PlatformBinance, PlatformSimulate:
	default:
		return fmt.Errorf("unsupported platform %q", c.Platform)
	}
	switch c.Settings.Source {
	case SettingsSourceAPI, SettingsSourceATR:
	default:
		return fmt.Errorf("unsupported settings source %q", c.Settings.Source)
	}
	if c.TargetLevels <= 0 {
		return fmt.Errorf("target levels must be positive, got %d", c.TargetLevels)
	}
	if c.LevelSize.IsNegative() {
		return fmt.Errorf("level size must not be negative, got %s", c.LevelSize.String())
	}
	if c.OrderRate <= 0 {
		return fmt.Errorf("order rate must be positive, got %v", c.OrderRate)
	}
	if c.QuantityPrecision < 0 || c.PricePrecision < 0 {
		return fmt.Errorf("precision must not be negative")
	}
	if !c.SimQuoteBalance.IsPositive() && c.Platform == PlatformSimulate {
		return fmt.Errorf("simulate quote balance must be positive")
	}
	if err := c.Grid.Validate(); err != nil {
		return fmt.Errorf("invalid grid params: %w", err)
	}
	return nil
}
