// Command gridbot runs a margin grid trading bot for a single pair.
// It can be configured via a YAML configuration file or command-line arguments.
//
// Usage:
//
//	gridbot --config config.yaml
//	gridbot --pair BTC_FDUSD --levels 8 (uses CLI arguments)
//	gridbot --setup (interactive wizard, writes config.gen.yaml)
//
// Required environment variables for the binance platform:
//
//	BINANCE_API_KEY, BINANCE_API_SECRET
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/vadiminshakov/gridbot/config"
	"github.com/vadiminshakov/gridbot/internal"
	"github.com/vadiminshakov/gridbot/internal/clients"
	"github.com/vadiminshakov/gridbot/internal/setup"
)

func main() {
	opts, err := config.Get(os.Args[1:])
	if err != nil {
		log.Fatal(err)
	}

	if opts.Setup {
		if err := setup.RunTUI(); err != nil {
			log.Fatal(err)
		}
		return
	}

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()

	client, err := clients.FromEnv(opts.Config.Platform)
	if err != nil {
		logger.Fatal("failed to create exchange client", zap.Error(err))
	}

	bot, err := internal.NewGridBot(logger, opts.Config, client)
	if err != nil {
		logger.Fatal("failed to create grid bot", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := bot.Run(ctx); err != nil {
		logger.Error("grid bot failed", zap.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
	logger.Info("grid bot stopped")
}
