package strategy

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"cryptopulse/internal/indicator"
)

func TestBacktest_LengthAndPrefixes(t *testing.T) {
	e := newEngine(t)
	prices := walk(21, 90)

	labels, err := e.Backtest(prices)
	if err != nil {
		t.Fatalf("Backtest: %v", err)
	}
	start := e.Params().WarmupIndex()
	if start != 26 {
		t.Fatalf("warmup index = %d, want 26", start)
	}
	if len(labels) != len(prices)-start {
		t.Fatalf("got %d labels, want %d", len(labels), len(prices)-start)
	}
	for k, l := range labels {
		d, err := e.GenerateSignal(prices[:start+k+1], nil)
		if err != nil {
			t.Fatalf("step %d: %v", k, err)
		}
		if d.Label != l {
			t.Errorf("step %d: backtest %v != direct %v", k, l, d.Label)
		}
	}
}

func TestBacktest_ShortSeriesIsEmpty(t *testing.T) {
	e := newEngine(t)
	for _, n := range []int{0, 10, 26} {
		labels, err := e.Backtest(walk(1, n))
		if err != nil {
			t.Fatalf("n=%d: %v", n, err)
		}
		if len(labels) != 0 {
			t.Errorf("n=%d: got %d labels, want none", n, len(labels))
		}
	}
	labels, err := e.Backtest(walk(1, 27))
	if err != nil || len(labels) != 1 {
		t.Errorf("n=27: got %d labels err=%v, want exactly one", len(labels), err)
	}
}

func TestBacktest_WarmupFollowsLongestPeriod(t *testing.T) {
	p := DefaultParams()
	p.RSIPeriod = 30
	e, err := New(p)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	labels, err := e.Backtest(walk(2, 50))
	if err != nil {
		t.Fatalf("Backtest: %v", err)
	}
	if len(labels) != 20 {
		t.Errorf("got %d labels, want 20", len(labels))
	}
}

func TestBacktestParallel_MatchesReference(t *testing.T) {
	e := newEngine(t)
	prices := walk(77, 240)
	want, err := e.Backtest(prices)
	if err != nil {
		t.Fatalf("Backtest: %v", err)
	}
	for _, workers := range []int{0, 1, 3, 8} {
		got, err := e.BacktestParallel(context.Background(), prices, workers)
		if err != nil {
			t.Fatalf("workers=%d: %v", workers, err)
		}
		if !reflect.DeepEqual(got, want) {
			t.Errorf("workers=%d: parallel labels differ from reference", workers)
		}
	}
}

func TestBacktestParallel_Cancelled(t *testing.T) {
	e := newEngine(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := e.BacktestParallel(ctx, walk(3, 100), 4)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestBacktestStream_MatchesReference(t *testing.T) {
	e := newEngine(t)
	for _, seed := range []int64{4, 5, 6} {
		prices := walk(seed, 200)
		want, err := e.Backtest(prices)
		if err != nil {
			t.Fatalf("Backtest: %v", err)
		}
		got, err := e.BacktestStream(prices)
		if err != nil {
			t.Fatalf("BacktestStream: %v", err)
		}
		if !reflect.DeepEqual(got, want) {
			t.Errorf("seed %d: stream labels differ from reference", seed)
		}
	}
}

func TestStream_DecisionsBitIdentical(t *testing.T) {
	e := newEngine(t)
	prices := walk(8, 120)
	s := e.NewStream()
	for i, p := range prices {
		d, ok, err := s.Push(p, nil)
		if err != nil {
			t.Fatalf("push %d: %v", i, err)
		}
		if i+1 < e.Params().MinPrices() {
			if ok {
				t.Fatalf("push %d: decision before warm-up", i)
			}
			continue
		}
		want, err := e.GenerateSignal(prices[:i+1], nil)
		if err != nil {
			t.Fatalf("GenerateSignal %d: %v", i, err)
		}
		if !ok || !reflect.DeepEqual(d, want) {
			t.Fatalf("push %d: stream decision\n%+v\nwant\n%+v", i, d, want)
		}
	}
	if s.Len() != len(prices) {
		t.Errorf("Len() = %d, want %d", s.Len(), len(prices))
	}
}

func TestStream_RejectsBadPriceWithoutAdvancing(t *testing.T) {
	e := newEngine(t)
	s := e.NewStream()
	s.Push(100, nil)
	if _, _, err := s.Push(-5, nil); !errors.Is(err, indicator.ErrInvalidParameter) {
		t.Fatalf("expected ErrInvalidParameter, got %v", err)
	}
	if _, _, err := s.Push(100, book(-1, 1)); !errors.Is(err, indicator.ErrMalformedOrderBook) {
		t.Fatalf("expected ErrMalformedOrderBook, got %v", err)
	}
	if s.Len() != 1 {
		t.Errorf("Len() = %d after rejected pushes, want 1", s.Len())
	}
	s.Reset()
	if s.Len() != 0 {
		t.Errorf("Len() = %d after Reset, want 0", s.Len())
	}
}

func TestBacktest_InvalidPrice(t *testing.T) {
	e := newEngine(t)
	prices := walk(10, 60)
	prices[40] = 0

	if _, err := e.Backtest(prices); !errors.Is(err, indicator.ErrInvalidParameter) {
		t.Errorf("Backtest: expected ErrInvalidParameter, got %v", err)
	}
	if _, err := e.BacktestParallel(context.Background(), prices, 4); !errors.Is(err, indicator.ErrInvalidParameter) {
		t.Errorf("BacktestParallel: expected ErrInvalidParameter, got %v", err)
	}
	if _, err := e.BacktestStream(prices); !errors.Is(err, indicator.ErrInvalidParameter) {
		t.Errorf("BacktestStream: expected ErrInvalidParameter, got %v", err)
	}
}

func TestSummarize(t *testing.T) {
	s := Summarize([]Action{ActionBuy, ActionHold, ActionSell, ActionHold})
	want := BacktestSummary{Steps: 4, Buys: 1, Sells: 1, Holds: 2}
	if s != want {
		t.Errorf("got %+v, want %+v", s, want)
	}
}

func TestBacktestContext_Cancelled(t *testing.T) {
	e := newEngine(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := e.BacktestContext(ctx, walk(5, 200)); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestBacktestContext_MatchesBacktest(t *testing.T) {
	e := newEngine(t)
	prices := walk(9, 120)
	want, err := e.Backtest(prices)
	if err != nil {
		t.Fatal(err)
	}
	got, err := e.BacktestContext(context.Background(), prices)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(got, want) {
		t.Error("BacktestContext labels differ from Backtest")
	}
}
