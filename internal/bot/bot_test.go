package bot

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"cryptopulse/internal/indicator"
	"cryptopulse/internal/logger"
	"cryptopulse/internal/marketdata/sim"
	"cryptopulse/internal/metrics"
	"cryptopulse/internal/model"
	"cryptopulse/internal/strategy"
)

type fakeMarket struct {
	klines   []model.Kline
	klineErr error
	book     *model.OrderBook
	depthErr error
}

func (f *fakeMarket) Klines(ctx context.Context, symbol, interval string, limit int) ([]model.Kline, error) {
	return f.klines, f.klineErr
}

func (f *fakeMarket) Depth(ctx context.Context, symbol string, limit int) (*model.OrderBook, error) {
	return f.book, f.depthErr
}

type fakeStore struct {
	saved []model.Kline
}

func (s *fakeStore) SaveKlines(ctx context.Context, ks []model.Kline) error {
	s.saved = append(s.saved, ks...)
	return nil
}

func (s *fakeStore) ReadCloses(ctx context.Context, symbol, interval string, limit int) ([]float64, error) {
	return model.Closes(s.saved), nil
}

func klines(n int) []model.Kline {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	out := make([]model.Kline, n)
	for i := range out {
		p := 100 + float64(i%7)
		out[i] = model.Kline{
			Symbol:    "BTCUSDT",
			Interval:  "1h",
			OpenTime:  base.Add(time.Duration(i) * time.Hour),
			CloseTime: base.Add(time.Duration(i+1)*time.Hour - time.Millisecond),
			Open:      p, High: p + 1, Low: p - 1, Close: p,
			Closed: i < n-1,
		}
	}
	return out
}

func newTestBot(t *testing.T, md model.MarketData) (*Bot, chan strategy.Signal) {
	t.Helper()
	engine, err := strategy.New(strategy.DefaultParams())
	if err != nil {
		t.Fatal(err)
	}
	out := make(chan strategy.Signal, 4)
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	return &Bot{
		Settings: Settings{Symbol: "BTCUSDT", Interval: "1h", KlineLimit: 50, DepthLimit: 5, SleepTime: time.Second},
		Engine:   engine,
		Market:   md,
		Metrics:  metrics.NewMetrics(prometheus.NewRegistry()),
		Health:   metrics.NewHealthStatus("BTCUSDT", false, false),
		Log:      slog.New(slog.NewTextHandler(io.Discard, nil)),
		Out:      out,
		now:      func() time.Time { return now },
	}, out
}

func TestEvaluateFallsBackToSimulatedPrices(t *testing.T) {
	b, out := newTestBot(t, &fakeMarket{klineErr: errors.New("unreachable"), book: &model.OrderBook{}})

	sig, err := b.Evaluate(context.Background())
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if sig.Price != sim.FallbackEnd {
		t.Errorf("price = %v, want %v", sig.Price, sim.FallbackEnd)
	}
	if got := testutil.ToFloat64(b.Metrics.SimulatedFallbacks); got != 1 {
		t.Errorf("simulated fallbacks = %v, want 1", got)
	}
	if got := testutil.ToFloat64(b.Metrics.FetchErrors.WithLabelValues("klines")); got != 1 {
		t.Errorf("kline fetch errors = %v, want 1", got)
	}

	select {
	case got := <-out:
		if got.TraceID != sig.TraceID {
			t.Errorf("emitted trace id = %q, want %q", got.TraceID, sig.TraceID)
		}
	default:
		t.Fatal("no signal emitted")
	}
}

func TestEvaluateWithoutBook(t *testing.T) {
	b, _ := newTestBot(t, &fakeMarket{klines: klines(50), depthErr: errors.New("timeout")})

	sig, err := b.Evaluate(context.Background())
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if sig.Decision.OrderBookPressure != nil {
		t.Errorf("pressure = %v, want nil", *sig.Decision.OrderBookPressure)
	}
	if sig.Votes.OrderBook != indicator.Hold {
		t.Errorf("order book vote = %v, want hold", sig.Votes.OrderBook)
	}
	if got := testutil.ToFloat64(b.Metrics.FetchErrors.WithLabelValues("depth")); got != 1 {
		t.Errorf("depth fetch errors = %v, want 1", got)
	}
}

func TestEvaluateStampsTraceID(t *testing.T) {
	b, _ := newTestBot(t, &fakeMarket{klines: klines(50), book: &model.OrderBook{}})

	sig, err := b.Evaluate(context.Background())
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	want := logger.GenerateTraceID("BTCUSDT", b.clock())
	if sig.TraceID != want {
		t.Errorf("trace id = %q, want %q", sig.TraceID, want)
	}
	if !sig.At.Equal(b.clock()) {
		t.Errorf("at = %v, want %v", sig.At, b.clock())
	}
}

func TestEvaluateStoresClosedKlinesOnly(t *testing.T) {
	ks := klines(50)
	store := &fakeStore{}
	b, _ := newTestBot(t, &fakeMarket{klines: ks, book: &model.OrderBook{}})
	b.Store = store

	if _, err := b.Evaluate(context.Background()); err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if len(store.saved) != len(ks)-1 {
		t.Errorf("saved %d klines, want %d", len(store.saved), len(ks)-1)
	}
	for _, k := range store.saved {
		if !k.Closed {
			t.Fatalf("stored a forming kline at %v", k.OpenTime)
		}
	}
}

func TestEvaluateShortHistory(t *testing.T) {
	b, out := newTestBot(t, &fakeMarket{klines: klines(5)})

	if _, err := b.Evaluate(context.Background()); err == nil {
		t.Fatal("expected error for short history")
	}
	if len(out) != 0 {
		t.Errorf("emitted %d signals, want 0", len(out))
	}
}

func TestEvaluateCancelledWhileEmitting(t *testing.T) {
	b, _ := newTestBot(t, &fakeMarket{klines: klines(50)})
	blocked := make(chan strategy.Signal)
	b.Out = blocked

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := b.Evaluate(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestStepRetriesWithoutMalformedBook(t *testing.T) {
	b, _ := newTestBot(t, &fakeMarket{})
	st := b.Engine.NewStream()
	ks := klines(40)
	warm := b.Engine.Params().MinPrices()
	for _, k := range ks[:warm-1] {
		if _, _, err := st.Push(k.Close, nil); err != nil {
			t.Fatal(err)
		}
	}

	bad := &model.OrderBook{Bids: []model.Level{{Price: 100, Qty: -1}}}
	sig, ok, err := b.step(st, &ks[warm-1], bad)
	if err != nil {
		t.Fatalf("step: %v", err)
	}
	if !ok {
		t.Fatal("step produced no signal after warm-up")
	}
	if sig.Decision.OrderBookPressure != nil {
		t.Error("malformed book should be discarded")
	}
	if st.Len() != warm {
		t.Errorf("stream len = %d, want %d", st.Len(), warm)
	}
	if !sig.At.Equal(ks[warm-1].CloseTime) {
		t.Errorf("at = %v, want candle close time", sig.At)
	}
}

func TestRunStreamRequiresStream(t *testing.T) {
	b, _ := newTestBot(t, &fakeMarket{})
	if err := b.RunStream(context.Background()); err == nil {
		t.Fatal("expected error without a stream")
	}
}
