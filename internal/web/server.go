// Package web serves the control surface of the grid bot.
package web

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/gridbot/internal/domain"
	"github.com/vadiminshakov/gridbot/internal/scheduler"
	"go.uber.org/zap"
	"golang.org/x/crypto/acme/autocert"
)

const (
	statePollInterval = 2 * time.Second
	heartbeatInterval = 30 * time.Second
	maxBodyBytes      = 1 << 10
)

// Controller is the part of the bot the control surface drives.
type Controller interface {
	State() domain.State
	History() []scheduler.Entry
	KnownOrders() int
	SetGridParameters(targetLevels int)
	Liquidate()
}

// TLS enables ACME certificates for the listed domains.
type TLS struct {
	Domains  []string
	CacheDir string
}

// Server exposes status, audit history, grid controls and metrics.
type Server struct {
	l          *zap.Logger
	addr       string
	pair       domain.Pair
	bot        Controller
	gatherer   prometheus.Gatherer
	tls        *TLS
	pollPeriod time.Duration
}

// NewServer creates a control server. A nil gatherer serves the default
// registry.
func NewServer(l *zap.Logger, addr string, pair domain.Pair, bot Controller, gatherer prometheus.Gatherer, tls *TLS) *Server {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return &Server{
		l:          l,
		addr:       addr,
		pair:       pair,
		bot:        bot,
		gatherer:   gatherer,
		tls:        tls,
		pollPeriod: statePollInterval,
	}
}

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleStatus)
	mux.HandleFunc("GET /history", s.handleHistory)
	mux.HandleFunc("GET /state/stream", s.handleStateStream)
	mux.HandleFunc("POST /grid", s.handleGrid)
	mux.HandleFunc("POST /liquidate", s.handleLiquidate)
	mux.Handle("GET /metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	return mux
}

// Start runs the HTTP server (blocking) and shuts it down when ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	var err error
	if s.tls != nil && len(s.tls.Domains) > 0 {
		m := &autocert.Manager{
			Prompt:     autocert.AcceptTOS,
			HostPolicy: autocert.HostWhitelist(s.tls.Domains...),
			Cache:      autocert.DirCache(s.tls.CacheDir),
		}
		server.TLSConfig = m.TLSConfig()
		s.l.Info("control server listening with tls", zap.String("addr", s.addr), zap.Strings("domains", s.tls.Domains))
		err = server.ListenAndServeTLS("", "")
	} else {
		s.l.Info("control server listening", zap.String("addr", s.addr))
		err = server.ListenAndServe()
	}
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "control server")
	}
	return nil
}

// Status response of GET /.
type Status struct {
	Pair        string           `json:"pair"`
	Initialized bool             `json:"initialized"`
	Equity      *decimal.Decimal `json:"equity,omitempty"`
	BuyOrders   int              `json:"buy_orders"`
	SellOrders  int              `json:"sell_orders"`
	KnownOrders int              `json:"known_orders"`
	State       domain.State     `json:"state"`
}

func (s *Server) status() Status {
	state := s.bot.State()
	st := Status{
		Pair:        s.pair.String(),
		Initialized: state.Initialized(),
		BuyOrders:   len(state.OrdersBySide(domain.SideBuy)),
		SellOrders:  len(state.OrdersBySide(domain.SideSell)),
		KnownOrders: s.bot.KnownOrders(),
		State:       state,
	}
	if equity, ok := state.Equity(); ok {
		st.Equity = &equity
	}
	return st
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.status())
}

func (s *Server) handleHistory(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.bot.History())
}

type gridRequest struct {
	TargetLevels int `json:"target_levels"`
}

func (s *Server) handleGrid(w http.ResponseWriter, r *http.Request) {
	var req gridRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.TargetLevels <= 0 {
		http.Error(w, "target_levels must be positive", http.StatusBadRequest)
		return
	}

	s.l.Info("grid parameters requested", zap.Int("target_levels", req.TargetLevels))
	s.bot.SetGridParameters(req.TargetLevels)
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleLiquidate(w http.ResponseWriter, _ *http.Request) {
	s.l.Warn("liquidation requested over control surface")
	s.bot.Liquidate()
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleStateStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	poll := time.NewTicker(s.pollPeriod)
	defer poll.Stop()

	var last *domain.State
	sendState := func() error {
		state := s.bot.State()
		if last != nil && state.Equal(*last) {
			return nil
		}
		last = &state

		payload, err := json.Marshal(s.status())
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "event: state\n")
		fmt.Fprintf(w, "data: %s\n\n", payload)
		flusher.Flush()
		return nil
	}

	if err := sendState(); err != nil {
		s.l.Error("state stream initial send", zap.Error(err))
		return
	}

	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			fmt.Fprintf(w, ": ping\n\n")
			flusher.Flush()
		case <-poll.C:
			if err := sendState(); err != nil {
				s.l.Error("state stream send", zap.Error(err))
			}
		}
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.l.Warn("failed to write response", zap.Error(err))
	}
}
