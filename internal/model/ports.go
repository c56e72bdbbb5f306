package model

import "context"

// MarketData supplies the price series and depth snapshots the signal
// engine consumes.
type MarketData interface {
	// Klines returns up to limit most recent candles, oldest first.
	Klines(ctx context.Context, symbol, interval string, limit int) ([]Kline, error)

	// Depth returns the top limit levels of each side of the book.
	Depth(ctx context.Context, symbol string, limit int) (*OrderBook, error)
}

// KlineStore persists candles for offline backtests.
type KlineStore interface {
	SaveKlines(ctx context.Context, ks []Kline) error

	// ReadCloses returns up to limit most recent closes, oldest first.
	// limit <= 0 reads everything.
	ReadCloses(ctx context.Context, symbol, interval string, limit int) ([]float64, error)
}
