// Package clients builds exchange API clients for the supported platforms.
package clients

import (
	"os"

	"github.com/adshao/go-binance/v2"
	"github.com/pkg/errors"
)

// NewBinanceClient creates an authenticated Binance client.
func NewBinanceClient(apiKey, apiSecret string) *binance.Client {
	return binance.NewClient(apiKey, apiSecret)
}

// SimulateClient wraps a keyless Binance client used for public market data
// while orders stay in process.
type SimulateClient struct {
	binanceClient *binance.Client
}

// NewSimulateClient creates a new simulate client.
func NewSimulateClient() *SimulateClient {
	return &SimulateClient{binanceClient: binance.NewClient("", "")}
}

// GetBinanceClient returns the underlying Binance client.
func (c *SimulateClient) GetBinanceClient() *binance.Client {
	return c.binanceClient
}

// FromEnv creates the client for platform, reading API keys from the
// environment when the platform needs them.
func FromEnv(platform string) (any, error) {
	switch platform {
	case "binance":
		apiKey := os.Getenv("BINANCE_API_KEY")
		apiSecret := os.Getenv("BINANCE_API_SECRET")
		if apiKey == "" || apiSecret == "" {
			return nil, errors.New("BINANCE_API_KEY and BINANCE_API_SECRET environment variables must be set")
		}
		return NewBinanceClient(apiKey, apiSecret), nil
	case "simulate":
		return NewSimulateClient(), nil
	default:
		return nil, errors.Errorf("unsupported platform %q", platform)
	}
}
