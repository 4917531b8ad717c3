package config

import (
	"flag"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/gridbot/internal/domain"
	"github.com/vadiminshakov/gridbot/internal/grid"
)

// Options parsed command line.
type Options struct {
	Config Config
	// Setup requests the interactive wizard instead of running the bot.
	Setup bool
}

// Get parses process arguments.
func Get(args []string) (Options, error) {
	fs := flag.NewFlagSet("gridbot", flag.ContinueOnError)

	configPath := fs.String("config", "", "path to yaml config")
	setup := fs.Bool("setup", false, "run interactive configuration wizard")
	platform := fs.String("platform", PlatformBinance, "exchange platform: binance or simulate")
	pairFlag := fs.String("pair", "BTC_FDUSD", "trade pair, example: BTC_FDUSD")
	levels := fs.Int("levels", domain.DefaultTargetTotalLevels, "number of grid orders to maintain")
	levelSize := fs.String("levelsize", "", "initial level size in quote currency")
	settingsSource := fs.String("settings", SettingsSourceAPI, "level size source: api or atr")
	settingsURL := fs.String("settingsurl", "", "level size api url")
	settingsInterval := fs.Duration("settingsinterval", 250*time.Millisecond, "level size api poll interval")
	atrFactor := fs.String("atrfactor", "1", "multiplier applied to ATR for the level size")
	controlAddr := fs.String("addr", defaultControlAddr, "control server address")
	tlsDomains := fs.String("tlsdomains", "", "comma separated domains for ACME TLS")
	auditDir := fs.String("auditdir", defaultAuditDir, "audit WAL directory")
	orderRate := fs.Float64("orderrate", defaultOrderRate, "max order requests per second")

	if err := fs.Parse(args); err != nil {
		return Options{}, err
	}

	if *setup {
		return Options{Setup: true}, nil
	}
	if *configPath != "" {
		cfg, err := getYaml(*configPath)
		if err != nil {
			return Options{}, err
		}
		return Options{Config: cfg}, nil
	}

	pair, err := domain.ParsePair(*pairFlag)
	if err != nil {
		return Options{}, fmt.Errorf("invalid --pair provided, --pair=%s", *pairFlag)
	}
	size, err := parseDecimal(*levelSize, decimal.Zero)
	if err != nil {
		return Options{}, fmt.Errorf("invalid --levelsize provided, --levelsize=%s", *levelSize)
	}
	factor, err := parseDecimal(*atrFactor, decimal.NewFromInt(1))
	if err != nil {
		return Options{}, fmt.Errorf("invalid --atrfactor provided, --atrfactor=%s", *atrFactor)
	}

	cfg := Config{
		Platform:     *platform,
		Pair:         pair,
		TargetLevels: *levels,
		LevelSize:    size,
		Settings: Settings{
			Source:    *settingsSource,
			URL:       *settingsURL,
			Interval:  *settingsInterval,
			ATRFactor: factor,
		},
		Control: Control{
			Addr:       *controlAddr,
			TLSDomains: splitList(*tlsDomains),
		},
		AuditDir:          *auditDir,
		SimQuoteBalance:   defaultSimQuote,
		OrderRate:         *orderRate,
		QuantityPrecision: defaultQuantityPrecision,
		PricePrecision:    defaultPricePrecision,
		Grid:              grid.DefaultParams(),
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return Options{}, err
	}

	return Options{Config: cfg}, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
