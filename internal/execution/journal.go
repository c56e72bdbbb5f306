package execution

import (
	"context"
	"database/sql"
	"log/slog"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"cryptopulse/internal/model"
)

// Journal persists paper fills to SQLite for analysis and audit.
type Journal struct {
	mu sync.Mutex
	db *sql.DB
}

// NewJournal opens (or creates) a SQLite journal database.
func NewJournal(dbPath string) (*Journal, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, err
	}
	j, err := newJournal(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	slog.Info("opened fill journal", "component", "journal", "path", dbPath)
	return j, nil
}

// NewJournalDB uses an already open database, e.g. the store's.
func NewJournalDB(db *sql.DB) (*Journal, error) {
	return newJournal(db)
}

func newJournal(db *sql.DB) (*Journal, error) {
	schema := `
	CREATE TABLE IF NOT EXISTS fills (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		order_id    TEXT NOT NULL UNIQUE,
		symbol      TEXT NOT NULL,
		side        TEXT NOT NULL,
		qty         TEXT NOT NULL,
		price       TEXT NOT NULL,
		notional    TEXT NOT NULL,
		status      TEXT NOT NULL,
		reason      TEXT,
		filled_at   TEXT NOT NULL,
		created_at  DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_fills_symbol ON fills(symbol);
	CREATE INDEX IF NOT EXISTS idx_fills_filled_at ON fills(filled_at);
	`
	if _, err := db.Exec(schema); err != nil {
		return nil, err
	}
	return &Journal{db: db}, nil
}

// RecordFill persists a fill. Decimals are stored as text to keep them
// exact.
func (j *Journal) RecordFill(ctx context.Context, f model.Fill) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	_, err := j.db.ExecContext(ctx,
		`INSERT INTO fills (order_id, symbol, side, qty, price, notional, status, reason, filled_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		f.OrderID,
		f.Symbol,
		string(f.Side),
		f.Qty.String(),
		f.Price.String(),
		f.Notional.String(),
		f.Status,
		f.Reason,
		f.FilledAt.Format(time.RFC3339Nano),
	)
	return err
}

// Fills returns the last limit fills, newest first.
func (j *Journal) Fills(ctx context.Context, limit int) ([]model.Fill, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	rows, err := j.db.QueryContext(ctx,
		`SELECT order_id, symbol, side, qty, price, notional, status, reason, filled_at
		 FROM fills ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Fill
	for rows.Next() {
		var (
			f                    model.Fill
			side, filledAt       string
			qty, price, notional string
			reason               sql.NullString
		)
		if err := rows.Scan(&f.OrderID, &f.Symbol, &side, &qty, &price, &notional, &f.Status, &reason, &filledAt); err != nil {
			return nil, err
		}
		f.Side = model.Side(side)
		f.Reason = reason.String
		if f.Qty, err = decimal.NewFromString(qty); err != nil {
			return nil, err
		}
		if f.Price, err = decimal.NewFromString(price); err != nil {
			return nil, err
		}
		if f.Notional, err = decimal.NewFromString(notional); err != nil {
			return nil, err
		}
		f.FilledAt, _ = time.Parse(time.RFC3339Nano, filledAt)
		out = append(out, f)
	}
	return out, rows.Err()
}

// Close closes the journal database.
func (j *Journal) Close() error {
	return j.db.Close()
}
