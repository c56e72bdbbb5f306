package api

import (
	"context"
	"net/http"
	"strconv"

	"cryptopulse/internal/model"
	sqlitestore "cryptopulse/internal/store/sqlite"
	"cryptopulse/internal/strategy"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 1000
)

// HistorySource reads persisted decisions and backtest runs.
type HistorySource interface {
	RecentDecisions(ctx context.Context, symbol string, limit int) ([]strategy.Signal, error)
	BacktestRuns(ctx context.Context, limit int) ([]sqlitestore.BacktestRun, error)
}

// FillSource reads paper fills, newest first.
type FillSource interface {
	RecentFills(ctx context.Context, limit int) ([]model.Fill, error)
}

// RecentSource lists recently published signals, newest first. A
// LatestSource that also implements it enables /signal/recent.
type RecentSource interface {
	Recent(ctx context.Context, symbol string, n int64) ([]strategy.Signal, error)
}

// WithHistory enables /decisions and /backtests.
func WithHistory(h HistorySource) Option { return func(s *Server) { s.history = h } }

// WithFills enables /fills.
func WithFills(f FillSource) Option { return func(s *Server) { s.fills = f } }

func queryLimit(r *http.Request) int {
	n, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || n <= 0 {
		return defaultHistoryLimit
	}
	return min(n, maxHistoryLimit)
}

func (s *Server) handleDecisions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	symbol := r.URL.Query().Get("symbol")
	if symbol == "" {
		symbol = s.symbol
	}
	sigs, err := s.history.RecentDecisions(r.Context(), model.ExchangeSymbol(symbol), queryLimit(r))
	if err != nil {
		s.log.Warn("decision history lookup failed", "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if sigs == nil {
		sigs = []strategy.Signal{}
	}
	writeJSON(w, http.StatusOK, sigs)
}

func (s *Server) handleBacktests(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	runs, err := s.history.BacktestRuns(r.Context(), queryLimit(r))
	if err != nil {
		s.log.Warn("backtest history lookup failed", "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if runs == nil {
		runs = []sqlitestore.BacktestRun{}
	}
	writeJSON(w, http.StatusOK, runs)
}

func (s *Server) handleFills(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	fills, err := s.fills.RecentFills(r.Context(), queryLimit(r))
	if err != nil {
		s.log.Warn("fill lookup failed", "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if fills == nil {
		fills = []model.Fill{}
	}
	writeJSON(w, http.StatusOK, fills)
}

func (s *Server) handleRecent(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	src, ok := s.latest.(RecentSource)
	if !ok {
		writeError(w, http.StatusNotFound, "no signal stream configured")
		return
	}
	symbol := r.URL.Query().Get("symbol")
	if symbol == "" {
		symbol = s.symbol
	}
	sigs, err := src.Recent(r.Context(), model.ExchangeSymbol(symbol), int64(queryLimit(r)))
	if err != nil {
		s.log.Warn("recent signal lookup failed", "error", err)
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, sigs)
}
