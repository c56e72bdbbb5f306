package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"cryptopulse/internal/strategy"
)

// Reader provides read-only access to SQLite for backtests and the API.
type Reader struct {
	db *sql.DB
}

// NewReader opens a SQLite connection for reading.
func NewReader(dbPath string) (*Reader, error) {
	db, err := sql.Open("sqlite3", dbPath+dsnOptions)
	if err != nil {
		return nil, fmt.Errorf("sqlite open reader: %w", err)
	}
	db.SetMaxOpenConns(2)
	db.SetMaxIdleConns(2)
	return &Reader{db: db}, nil
}

// ReadCloses returns up to limit most recent closes, oldest first. limit
// <= 0 reads everything.
func (r *Reader) ReadCloses(ctx context.Context, symbol, interval string, limit int) ([]float64, error) {
	if limit <= 0 {
		limit = -1 // no limit in SQLite
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT close FROM (
			SELECT close, open_time FROM klines
			WHERE symbol = ? AND interval = ?
			ORDER BY open_time DESC
			LIMIT ?
		) ORDER BY open_time ASC
	`, symbol, interval, limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite query klines: %w", err)
	}
	defer rows.Close()

	var closes []float64
	for rows.Next() {
		var c float64
		if err := rows.Scan(&c); err != nil {
			return nil, fmt.Errorf("sqlite scan klines: %w", err)
		}
		closes = append(closes, c)
	}
	return closes, rows.Err()
}

// RecentDecisions returns the last limit signals for symbol, newest first.
func (r *Reader) RecentDecisions(ctx context.Context, symbol string, limit int) ([]strategy.Signal, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT data FROM decisions
		WHERE symbol = ?
		ORDER BY ts DESC, id DESC
		LIMIT ?
	`, symbol, limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite query decisions: %w", err)
	}
	defer rows.Close()

	var out []strategy.Signal
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("sqlite scan decisions: %w", err)
		}
		var s strategy.Signal
		if err := json.Unmarshal([]byte(data), &s); err != nil {
			return nil, fmt.Errorf("unmarshal signal: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// BacktestRuns returns the last limit runs, newest first.
func (r *Reader) BacktestRuns(ctx context.Context, limit int) ([]BacktestRun, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, symbol, interval, mode, prices, steps, buys, sells, holds, params, duration_ms, created_at
		FROM backtest_runs
		ORDER BY id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite query backtest_runs: %w", err)
	}
	defer rows.Close()

	var runs []BacktestRun
	for rows.Next() {
		var (
			run        BacktestRun
			params     string
			durMs, cAt int64
		)
		if err := rows.Scan(&run.ID, &run.Symbol, &run.Interval, &run.Mode, &run.Prices,
			&run.Summary.Steps, &run.Summary.Buys, &run.Summary.Sells, &run.Summary.Holds,
			&params, &durMs, &cAt); err != nil {
			return nil, fmt.Errorf("sqlite scan backtest_runs: %w", err)
		}
		if err := json.Unmarshal([]byte(params), &run.Params); err != nil {
			return nil, fmt.Errorf("unmarshal params: %w", err)
		}
		run.Duration = time.Duration(durMs) * time.Millisecond
		run.CreatedAt = time.UnixMilli(cAt).UTC()
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// Close closes the reader.
func (r *Reader) Close() error {
	return r.db.Close()
}
