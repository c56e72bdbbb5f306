// Package api exposes the signal engine over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"cryptopulse/internal/indicator"
	"cryptopulse/internal/model"
	redisstore "cryptopulse/internal/store/redis"
	"cryptopulse/internal/strategy"
)

// maxBodyBytes bounds request bodies; a 100k-price series fits comfortably.
const maxBodyBytes = 4 << 20

// maxRecomputePrices bounds the quadratic backtest modes.
const maxRecomputePrices = 5000

// LatestSource returns the newest published signal for a symbol.
type LatestSource interface {
	Latest(ctx context.Context, symbol string) (strategy.Signal, error)
}

// Server holds the dependencies of the HTTP handlers.
type Server struct {
	engine  *strategy.Engine
	latest  LatestSource
	hub     *Hub
	history HistorySource
	fills   FillSource
	symbol  string
	workers int
	log     *slog.Logger
	started time.Time
}

// Option configures a Server.
type Option func(*Server)

// WithLatest serves /signal/latest from src instead of the stream hub.
func WithLatest(src LatestSource) Option { return func(s *Server) { s.latest = src } }

// WithHub enables the /stream WebSocket endpoint.
func WithHub(h *Hub) Option { return func(s *Server) { s.hub = h } }

// WithWorkers sets the worker count for parallel backtests.
func WithWorkers(n int) Option { return func(s *Server) { s.workers = n } }

// NewServer builds a Server for symbol.
func NewServer(engine *strategy.Engine, symbol string, log *slog.Logger, opts ...Option) *Server {
	if log == nil {
		log = slog.Default()
	}
	s := &Server{
		engine:  engine,
		symbol:  symbol,
		workers: 4,
		log:     log.With("component", "api"),
		started: time.Now(),
	}
	for _, o := range opts {
		o(s)
	}
	if s.latest == nil && s.hub != nil {
		s.latest = s.hub
	}
	return s
}

// NewRouter sets up HTTP routes for the API server.
func NewRouter(s *Server) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/health", s.handleHealth)
	mux.HandleFunc("/api/v1/signal", s.handleSignal)
	mux.HandleFunc("/api/v1/signal/latest", s.handleLatest)
	mux.HandleFunc("/api/v1/signal/recent", s.handleRecent)
	mux.HandleFunc("/api/v1/backtest", s.handleBacktest)
	if s.hub != nil {
		mux.HandleFunc("/api/v1/stream", s.hub.ServeWS)
	}
	if s.history != nil {
		mux.HandleFunc("/api/v1/decisions", s.handleDecisions)
		mux.HandleFunc("/api/v1/backtests", s.handleBacktests)
	}
	if s.fills != nil {
		mux.HandleFunc("/api/v1/fills", s.handleFills)
	}
	return mux
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, errorResponse{Error: msg})
}

// statusFor maps engine errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, indicator.ErrInsufficientData),
		errors.Is(err, indicator.ErrInvalidParameter),
		errors.Is(err, indicator.ErrMalformedOrderBook):
		return http.StatusUnprocessableEntity
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"symbol": s.symbol,
		"uptime": time.Since(s.started).Round(time.Second).String(),
	})
}

type signalRequest struct {
	Prices    []float64        `json:"prices"`
	OrderBook *model.OrderBook `json:"orderbook"`
}

func (s *Server) handleSignal(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req signalRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}

	d, err := s.engine.GenerateSignal(req.Prices, req.OrderBook)
	if err != nil {
		s.log.Debug("signal rejected", "error", err)
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, d)
}

type backtestRequest struct {
	Prices []float64 `json:"prices"`
	Mode   string    `json:"mode"` // stream (default), recompute, parallel
}

type backtestResponse struct {
	Mode    string                   `json:"mode"`
	Labels  []strategy.Action        `json:"labels"`
	Summary strategy.BacktestSummary `json:"summary"`
}

func (s *Server) handleBacktest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req backtestRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}

	var (
		labels []strategy.Action
		err    error
	)
	if (req.Mode == "recompute" || req.Mode == "parallel") && len(req.Prices) > maxRecomputePrices {
		writeError(w, http.StatusRequestEntityTooLarge,
			fmt.Sprintf("%s mode accepts at most %d prices; use stream", req.Mode, maxRecomputePrices))
		return
	}
	switch req.Mode {
	case "", "stream":
		req.Mode = "stream"
		labels, err = s.engine.BacktestStream(req.Prices)
	case "recompute":
		labels, err = s.engine.BacktestContext(r.Context(), req.Prices)
	case "parallel":
		labels, err = s.engine.BacktestParallel(r.Context(), req.Prices, s.workers)
	default:
		writeError(w, http.StatusBadRequest, "unknown mode "+req.Mode)
		return
	}
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	if labels == nil {
		labels = []strategy.Action{}
	}
	writeJSON(w, http.StatusOK, backtestResponse{Mode: req.Mode, Labels: labels, Summary: strategy.Summarize(labels)})
}

func (s *Server) handleLatest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	symbol := r.URL.Query().Get("symbol")
	if symbol == "" {
		symbol = s.symbol
	}
	symbol = model.ExchangeSymbol(symbol)
	if s.latest == nil {
		writeError(w, http.StatusNotFound, "no signal source configured")
		return
	}

	sig, err := s.latest.Latest(r.Context(), symbol)
	switch {
	case errors.Is(err, ErrNoSignal), errors.Is(err, redisstore.ErrNotFound):
		writeError(w, http.StatusNotFound, "no signal for "+symbol)
		return
	case err != nil:
		s.log.Warn("latest signal lookup failed", "symbol", symbol, "error", err)
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, sig)
}
