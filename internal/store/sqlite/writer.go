package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"cryptopulse/internal/model"
	"cryptopulse/internal/strategy"
)

const (
	defaultBatchSize  = 100
	defaultFlushDelay = 200 * time.Millisecond

	dsnOptions = "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000"
)

// WriterConfig configures the SQLite writer.
type WriterConfig struct {
	DBPath string // path to SQLite database file, e.g. "data/cryptopulse.db"
}

// Writer is a single-connection SQLite writer with transaction batching.
type Writer struct {
	db  *sql.DB
	log *slog.Logger

	// OnCommit is called with the duration of every committed batch.
	OnCommit func(time.Duration)
}

// DB returns the underlying sql.DB for health checks.
func (w *Writer) DB() *sql.DB { return w.db }

// New creates a new SQLite Writer, initializes the database with WAL mode
// and schema.
func New(cfg WriterConfig) (*Writer, error) {
	db, err := sql.Open("sqlite3", cfg.DBPath+dsnOptions)
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}

	// Single writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}

	log := slog.Default().With("component", "sqlite")
	log.Info("opened database", "path", cfg.DBPath)
	return &Writer{db: db, log: log}, nil
}

func createSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS klines (
			symbol     TEXT    NOT NULL,
			interval   TEXT    NOT NULL,
			open_time  INTEGER NOT NULL,
			close_time INTEGER NOT NULL,
			open       REAL    NOT NULL,
			high       REAL    NOT NULL,
			low        REAL    NOT NULL,
			close      REAL    NOT NULL,
			volume     REAL,
			PRIMARY KEY (symbol, interval, open_time)
		);

		CREATE TABLE IF NOT EXISTS decisions (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			symbol     TEXT    NOT NULL,
			interval   TEXT    NOT NULL,
			ts         INTEGER NOT NULL,
			label      TEXT    NOT NULL,
			score      REAL    NOT NULL,
			price      REAL    NOT NULL,
			trace_id   TEXT,
			data       TEXT    NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_decisions_symbol_ts ON decisions(symbol, ts);

		CREATE TABLE IF NOT EXISTS backtest_runs (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			symbol     TEXT    NOT NULL,
			interval   TEXT    NOT NULL,
			mode       TEXT    NOT NULL,
			prices     INTEGER NOT NULL,
			steps      INTEGER NOT NULL,
			buys       INTEGER NOT NULL,
			sells      INTEGER NOT NULL,
			holds      INTEGER NOT NULL,
			params     TEXT    NOT NULL,
			duration_ms INTEGER NOT NULL,
			created_at INTEGER NOT NULL
		);
	`)
	return err
}

// SaveKlines upserts candles in a single transaction.
func (w *Writer) SaveKlines(ctx context.Context, ks []model.Kline) error {
	if len(ks) == 0 {
		return nil
	}
	start := time.Now()
	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO klines (symbol, interval, open_time, close_time, open, high, low, close, volume)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	for _, k := range ks {
		_, err := stmt.ExecContext(ctx, k.Symbol, k.Interval, k.OpenTime.UnixMilli(), k.CloseTime.UnixMilli(),
			k.Open, k.High, k.Low, k.Close, k.Volume)
		if err != nil {
			tx.Rollback()
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	w.observe(start)
	return nil
}

// SaveDecision stores one signal.
func (w *Writer) SaveDecision(ctx context.Context, sig strategy.Signal) error {
	return w.insertDecisions(ctx, []strategy.Signal{sig})
}

// Run reads signals from sigCh and inserts them in batched transactions.
// Flushes every batchSize signals OR every flushDelay, whichever first.
// Blocks until ctx is cancelled or sigCh is closed.
func (w *Writer) Run(ctx context.Context, sigCh <-chan strategy.Signal) {
	batch := make([]strategy.Signal, 0, defaultBatchSize)
	timer := time.NewTimer(defaultFlushDelay)
	defer timer.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		// Flush with a fresh context so shutdown does not lose the tail.
		if err := w.insertDecisions(context.Background(), batch); err != nil {
			w.log.Error("decision batch insert failed", "count", len(batch), "error", err)
		} else {
			w.log.Debug("committed decisions", "count", len(batch))
		}
		batch = batch[:0]
	}

	for {
		select {
		case <-ctx.Done():
			flush()
			return

		case sig, ok := <-sigCh:
			if !ok {
				flush()
				return
			}
			batch = append(batch, sig)
			if len(batch) >= defaultBatchSize {
				flush()
				timer.Reset(defaultFlushDelay)
			}

		case <-timer.C:
			flush()
			timer.Reset(defaultFlushDelay)
		}
	}
}

func (w *Writer) insertDecisions(ctx context.Context, sigs []strategy.Signal) error {
	start := time.Now()
	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO decisions (symbol, interval, ts, label, score, price, trace_id, data)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	for _, s := range sigs {
		data, err := json.Marshal(s)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("marshal signal: %w", err)
		}
		_, err = stmt.ExecContext(ctx, s.Symbol, s.Interval, s.At.UnixMilli(), string(s.Decision.Label),
			s.Decision.WeightedScore, s.Price, s.TraceID, string(data))
		if err != nil {
			tx.Rollback()
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	w.observe(start)
	return nil
}

// BacktestRun is one stored backtest.
type BacktestRun struct {
	ID        int64                    `json:"id"`
	Symbol    string                   `json:"symbol"`
	Interval  string                   `json:"interval"`
	Mode      string                   `json:"mode"`
	Prices    int                      `json:"prices"`
	Summary   strategy.BacktestSummary `json:"summary"`
	Params    strategy.Params          `json:"params"`
	Duration  time.Duration            `json:"duration"`
	CreatedAt time.Time                `json:"created_at"`
}

// SaveBacktest stores a run and returns its id.
func (w *Writer) SaveBacktest(ctx context.Context, run BacktestRun) (int64, error) {
	params, err := json.Marshal(run.Params)
	if err != nil {
		return 0, fmt.Errorf("marshal params: %w", err)
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now()
	}
	res, err := w.db.ExecContext(ctx, `
		INSERT INTO backtest_runs (symbol, interval, mode, prices, steps, buys, sells, holds, params, duration_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, run.Symbol, run.Interval, run.Mode, run.Prices, run.Summary.Steps, run.Summary.Buys, run.Summary.Sells,
		run.Summary.Holds, string(params), run.Duration.Milliseconds(), run.CreatedAt.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("sqlite insert backtest: %w", err)
	}
	return res.LastInsertId()
}

func (w *Writer) observe(start time.Time) {
	if w.OnCommit != nil {
		w.OnCommit(time.Since(start))
	}
}

// Close closes the database.
func (w *Writer) Close() error {
	return w.db.Close()
}
