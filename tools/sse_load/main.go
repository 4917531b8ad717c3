// Command sse_load opens many concurrent subscriptions to the grid bot state
// stream and reports how many state events arrive.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/sourcegraph/conc"
	"go.uber.org/zap"
)

type loadConfig struct {
	url         string
	connections int
	duration    time.Duration
	rampUp      time.Duration
	report      time.Duration
}

type stats struct {
	connected   atomic.Int64
	connectErrs atomic.Int64
	streamErrs  atomic.Int64
	states      atomic.Int64
}

func (s *stats) String() string {
	return fmt.Sprintf("connected=%d connect_errs=%d stream_errs=%d states=%d",
		s.connected.Load(), s.connectErrs.Load(), s.streamErrs.Load(), s.states.Load())
}

func main() {
	var cfg loadConfig
	flag.StringVar(&cfg.url, "url", "http://localhost:8080/state/stream", "state stream URL")
	flag.IntVar(&cfg.connections, "conns", 500, "number of concurrent subscriptions")
	flag.DurationVar(&cfg.duration, "dur", time.Minute, "test duration (0 for until interrupted)")
	flag.DurationVar(&cfg.rampUp, "ramp", 0, "spread connection starts across this window")
	flag.Parse()

	l, err := zap.NewDevelopment()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer l.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	start := time.Now()
	s, err := run(ctx, l, cfg)
	if err != nil {
		l.Fatal("load failed", zap.Error(err))
	}
	fmt.Printf("done: %s elapsed=%s\n", s, time.Since(start).Truncate(time.Millisecond))
}

func run(ctx context.Context, l *zap.Logger, cfg loadConfig) (*stats, error) {
	if cfg.connections <= 0 {
		return nil, errors.Errorf("invalid conns: %d", cfg.connections)
	}
	if cfg.rampUp == 0 && cfg.connections > 100 {
		cfg.rampUp = max(time.Duration(cfg.connections/500)*time.Second, time.Second)
	}
	if cfg.report == 0 {
		cfg.report = 5 * time.Second
	}
	if cfg.duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.duration)
		defer cancel()
	}

	l.Info("starting state stream load",
		zap.String("url", cfg.url),
		zap.Int("conns", cfg.connections),
		zap.Duration("duration", cfg.duration),
		zap.Duration("ramp", cfg.rampUp))

	client := &http.Client{Transport: &http.Transport{
		MaxConnsPerHost:     cfg.connections + 100,
		MaxIdleConnsPerHost: cfg.connections + 100,
		DisableCompression:  true,
		DialContext:         (&net.Dialer{Timeout: 5 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
	}}

	s := &stats{}
	var wg conc.WaitGroup
	wg.Go(func() { reportLoop(ctx, l, s, cfg.report) })

	interval := cfg.rampUp / time.Duration(cfg.connections)
	for i := 0; i < cfg.connections && ctx.Err() == nil; i++ {
		if i > 0 && interval > 0 {
			select {
			case <-ctx.Done():
			case <-time.After(interval):
			}
		}
		wg.Go(func() { subscribe(ctx, client, cfg.url, s) })
	}

	wg.Wait()
	return s, nil
}

// subscribe reads the stream until ctx is done, counting state events.
func subscribe(ctx context.Context, client *http.Client, url string, s *stats) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		s.connectErrs.Add(1)
		return
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := client.Do(req)
	if err != nil {
		if ctx.Err() == nil {
			s.connectErrs.Add(1)
		}
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		s.connectErrs.Add(1)
		return
	}
	s.connected.Add(1)

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		if strings.TrimSpace(scanner.Text()) == "event: state" {
			s.states.Add(1)
		}
	}
	if ctx.Err() == nil {
		s.streamErrs.Add(1)
	}
}

func reportLoop(ctx context.Context, l *zap.Logger, s *stats, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.Info("status",
				zap.Int64("connected", s.connected.Load()),
				zap.Int64("connect_errs", s.connectErrs.Load()),
				zap.Int64("stream_errs", s.streamErrs.Load()),
				zap.Int64("states", s.states.Load()))
		}
	}
}
