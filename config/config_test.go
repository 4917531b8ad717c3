package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vadiminshakov/gridbot/internal/domain"
	"github.com/vadiminshakov/gridbot/internal/grid"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestGet_Yaml(t *testing.T) {
	path := writeConfig(t, `
platform: simulate
pair: btc_fdusd
target_levels: 12
level_size: "7.5"
settings:
  source: atr
  atr_interval: 5m
  atr_period: 20
  atr_factor: "0.8"
control:
  addr: ":9000"
  tls_domains: [grid.example.com]
audit_dir: /tmp/audit
simulate_quote_balance: "2500"
order_rate: 4
quantity_precision: 4
safety_fraction: "0.3"
cancel_threshold: 7
shutdown_timeout: 10s
`)

	opts, err := Get([]string{"--config", path})
	require.NoError(t, err)
	require.False(t, opts.Setup)

	cfg := opts.Config
	assert.Equal(t, PlatformSimulate, cfg.Platform)
	assert.Equal(t, domain.Pair{From: "BTC", To: "FDUSD"}, cfg.Pair)
	assert.Equal(t, 12, cfg.TargetLevels)
	assert.True(t, cfg.LevelSize.Equal(decimal.RequireFromString("7.5")))
	assert.Equal(t, SettingsSourceATR, cfg.Settings.Source)
	assert.Equal(t, "5m", cfg.Settings.ATRInterval)
	assert.Equal(t, 20, cfg.Settings.ATRPeriod)
	assert.True(t, cfg.Settings.ATRFactor.Equal(decimal.RequireFromString("0.8")))
	assert.Equal(t, ":9000", cfg.Control.Addr)
	assert.Equal(t, []string{"grid.example.com"}, cfg.Control.TLSDomains)
	assert.Equal(t, "./certs", cfg.Control.CertCache)
	assert.Equal(t, "/tmp/audit", cfg.AuditDir)
	assert.True(t, cfg.SimQuoteBalance.Equal(decimal.NewFromInt(2500)))
	assert.Equal(t, 4.0, cfg.OrderRate)
	assert.Equal(t, int32(4), cfg.QuantityPrecision)
	assert.Equal(t, int32(defaultPricePrecision), cfg.PricePrecision)
	assert.True(t, cfg.Grid.SafetyFraction.Equal(decimal.RequireFromString("0.3")))
	assert.True(t, cfg.Grid.MinBaseUnit.Equal(grid.DefaultParams().MinBaseUnit))
	assert.Equal(t, 7, cfg.Grid.CancelThreshold)
	assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout)
}

func TestGet_YamlDefaults(t *testing.T) {
	path := writeConfig(t, "pair: ETH_USDT\n")

	opts, err := Get([]string{"--config", path})
	require.NoError(t, err)

	cfg := opts.Config
	assert.Equal(t, PlatformBinance, cfg.Platform)
	assert.Equal(t, domain.DefaultTargetTotalLevels, cfg.TargetLevels)
	assert.True(t, cfg.LevelSize.IsZero())
	assert.Equal(t, SettingsSourceAPI, cfg.Settings.Source)
	assert.Equal(t, defaultControlAddr, cfg.Control.Addr)
	assert.Equal(t, defaultShutdownTimeout, cfg.ShutdownTimeout)
	assert.Equal(t, grid.DefaultParams(), cfg.Grid)
}

func TestGet_YamlErrors(t *testing.T) {
	tests := map[string]string{
		"bad pair":       "pair: BTCUSDT\n",
		"bad platform":   "pair: BTC_USDT\nplatform: bybit\n",
		"bad level size": "pair: BTC_USDT\nlevel_size: lots\n",
		"bad source":     "pair: BTC_USDT\nsettings:\n  source: oracle\n",
		"bad safety":     "pair: BTC_USDT\nsafety_fraction: \"1.5\"\n",
		"negative size":  "pair: BTC_USDT\nlevel_size: \"-1\"\n",
	}

	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Get([]string{"--config", writeConfig(t, content)})
			require.Error(t, err)
		})
	}
}

func TestGet_Flags(t *testing.T) {
	opts, err := Get([]string{
		"--platform", "simulate",
		"--pair", "BTC_FDUSD",
		"--levels", "8",
		"--levelsize", "3",
		"--tlsdomains", "a.example.com, b.example.com",
	})
	require.NoError(t, err)

	cfg := opts.Config
	assert.Equal(t, PlatformSimulate, cfg.Platform)
	assert.Equal(t, 8, cfg.TargetLevels)
	assert.True(t, cfg.LevelSize.Equal(decimal.NewFromInt(3)))
	assert.Equal(t, []string{"a.example.com", "b.example.com"}, cfg.Control.TLSDomains)
	assert.Equal(t, 250*time.Millisecond, cfg.Settings.Interval)
}

func TestGet_FlagErrors(t *testing.T) {
	_, err := Get([]string{"--pair", "BTC"})
	require.Error(t, err)

	_, err = Get([]string{"--levels", "-1"})
	require.Error(t, err)

	_, err = Get([]string{"--levelsize", "x"})
	require.Error(t, err)
}

func TestGet_Setup(t *testing.T) {
	opts, err := Get([]string{"--setup"})
	require.NoError(t, err)
	assert.True(t, opts.Setup)
}
