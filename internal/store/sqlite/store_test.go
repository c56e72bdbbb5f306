package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"cryptopulse/internal/model"
	"cryptopulse/internal/strategy"
)

var _ model.KlineStore = (*Store)(nil)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func klines(symbol string, closes ...float64) []model.Kline {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	out := make([]model.Kline, len(closes))
	for i, c := range closes {
		open := base.Add(time.Duration(i) * time.Hour)
		out[i] = model.Kline{
			Symbol: symbol, Interval: "1h",
			OpenTime: open, CloseTime: open.Add(time.Hour - time.Millisecond),
			Open: c, High: c, Low: c, Close: c, Volume: 1, Closed: true,
		}
	}
	return out
}

func TestStore_ReadClosesOrderAndLimit(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	// Saved out of order; read back ordered by open time.
	ks := klines("BTCUSDT", 1, 2, 3, 4, 5)
	if err := s.SaveKlines(ctx, []model.Kline{ks[3], ks[0], ks[4], ks[1], ks[2]}); err != nil {
		t.Fatalf("SaveKlines: %v", err)
	}
	if err := s.SaveKlines(ctx, klines("ETHUSDT", 9)); err != nil {
		t.Fatalf("SaveKlines: %v", err)
	}

	all, err := s.ReadCloses(ctx, "BTCUSDT", "1h", 0)
	if err != nil {
		t.Fatalf("ReadCloses: %v", err)
	}
	want := []float64{1, 2, 3, 4, 5}
	if len(all) != len(want) {
		t.Fatalf("closes = %v, want %v", all, want)
	}
	for i := range want {
		if all[i] != want[i] {
			t.Errorf("closes[%d] = %v, want %v", i, all[i], want[i])
		}
	}

	last, err := s.ReadCloses(ctx, "BTCUSDT", "1h", 2)
	if err != nil {
		t.Fatalf("ReadCloses: %v", err)
	}
	if len(last) != 2 || last[0] != 4 || last[1] != 5 {
		t.Errorf("last two = %v, want [4 5]", last)
	}
}

func TestStore_SaveKlinesUpserts(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	ks := klines("BTCUSDT", 1, 2)
	if err := s.SaveKlines(ctx, ks); err != nil {
		t.Fatal(err)
	}
	ks[1].Close = 7
	if err := s.SaveKlines(ctx, ks[1:]); err != nil {
		t.Fatal(err)
	}
	got, _ := s.ReadCloses(ctx, "BTCUSDT", "1h", 0)
	if len(got) != 2 || got[1] != 7 {
		t.Errorf("closes = %v, want [1 7]", got)
	}
}

func TestWriter_RunFlushesOnClose(t *testing.T) {
	s := openTestStore(t)

	var commits int
	s.OnCommit = func(time.Duration) { commits++ }

	ch := make(chan strategy.Signal, 3)
	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, label := range []strategy.Action{strategy.ActionHold, strategy.ActionBuy, strategy.ActionSell} {
		ch <- strategy.Signal{
			Symbol: "BTCUSDT", Interval: "1h", Price: float64(100 + i),
			Decision: strategy.Decision{Label: label},
			At:       at.Add(time.Duration(i) * time.Minute),
			TraceID:  "trace",
		}
	}
	close(ch)
	s.Writer.Run(context.Background(), ch)

	if commits != 1 {
		t.Errorf("commits = %d, want 1 batch", commits)
	}
	got, err := s.RecentDecisions(context.Background(), "BTCUSDT", 10)
	if err != nil {
		t.Fatalf("RecentDecisions: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("decisions = %d, want 3", len(got))
	}
	if got[0].Decision.Label != strategy.ActionSell || got[0].Price != 102 {
		t.Errorf("newest decision = %+v", got[0])
	}
}

func TestWriter_SaveBacktest(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	id, err := s.SaveBacktest(ctx, BacktestRun{
		Symbol: "BTCUSDT", Interval: "1h", Mode: "stream", Prices: 100,
		Summary:  strategy.BacktestSummary{Steps: 74, Buys: 3, Sells: 1, Holds: 70},
		Params:   strategy.DefaultParams(),
		Duration: 15 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("SaveBacktest: %v", err)
	}
	if id != 1 {
		t.Errorf("id = %d, want 1", id)
	}

	runs, err := s.BacktestRuns(ctx, 5)
	if err != nil {
		t.Fatalf("BacktestRuns: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("runs = %d", len(runs))
	}
	r := runs[0]
	if r.Summary.Buys != 3 || r.Mode != "stream" || r.Duration != 15*time.Millisecond {
		t.Errorf("unexpected run %+v", r)
	}
	if r.Params != strategy.DefaultParams() {
		t.Errorf("params = %+v", r.Params)
	}
}
