package strategy

import (
	"encoding/json"
	"errors"
	"math"
	"math/rand"
	"reflect"
	"sort"
	"testing"

	"cryptopulse/internal/indicator"
	"cryptopulse/internal/model"
)

// ────────────────────────────────────────────────────────────
// Helpers
// ────────────────────────────────────────────────────────────

func newEngine(t *testing.T, opts ...Option) *Engine {
	t.Helper()
	e, err := New(DefaultParams(), opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return e
}

func constant(n int, v float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func rising(n int, start float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = start + float64(i)
	}
	return out
}

func walk(seed int64, n int) []float64 {
	rng := rand.New(rand.NewSource(seed))
	out := make([]float64, n)
	p := 30000.0
	for i := range out {
		p *= 1 + rng.NormFloat64()*0.01
		out[i] = p
	}
	return out
}

func book(bidQty, askQty float64) *model.OrderBook {
	return &model.OrderBook{
		Bids: []model.Level{{Price: 99, Qty: bidQty}},
		Asks: []model.Level{{Price: 101, Qty: askQty}},
	}
}

// ────────────────────────────────────────────────────────────
// Scenarios
// ────────────────────────────────────────────────────────────

func TestGenerateSignal_ConstantSeriesHolds(t *testing.T) {
	e := newEngine(t)
	d, err := e.GenerateSignal(constant(40, 100), nil)
	if err != nil {
		t.Fatalf("GenerateSignal: %v", err)
	}
	if d.RSI != indicator.RSINeutral {
		t.Errorf("rsi = %v, want %v", d.RSI, indicator.RSINeutral)
	}
	if d.MACDHistogram != 0 || d.Votes.MACD != indicator.Sell {
		t.Errorf("macd hist = %v vote = %v, want 0 and sell", d.MACDHistogram, d.Votes.MACD)
	}
	if d.Bollinger != (indicator.Bands{SMA: 100, Upper: 100, Lower: 100}) || d.Votes.Bollinger != indicator.Hold {
		t.Errorf("bollinger = %+v vote = %v, want collapsed bands and hold", d.Bollinger, d.Votes.Bollinger)
	}
	if d.WeightedScore != -0.3 {
		t.Errorf("score = %v, want exactly -0.3", d.WeightedScore)
	}
	if d.Label != ActionHold {
		t.Errorf("label = %v, want hold at the -0.3 boundary", d.Label)
	}
	if d.OrderBookPressure != nil {
		t.Errorf("pressure = %v, want nil without a book", *d.OrderBookPressure)
	}
	if d.ATR != 0 || d.Risk.StopLoss != 100 || d.Risk.TakeProfit != 100 {
		t.Errorf("flat series should have zero ATR, got atr=%v risk=%+v", d.ATR, d.Risk)
	}
}

func TestGenerateSignal_RisingSeriesIsReproducible(t *testing.T) {
	e := newEngine(t)
	prices := rising(50, 100)

	d1, err := e.GenerateSignal(prices, nil)
	if err != nil {
		t.Fatalf("GenerateSignal: %v", err)
	}
	d2, _ := e.GenerateSignal(prices, nil)
	if !reflect.DeepEqual(d1, d2) {
		t.Fatalf("decisions differ:\n%+v\n%+v", d1, d2)
	}

	// No losses at all keeps RSI neutral; MACD turns up; price stays
	// inside the bands. Only MACD votes, which lands on the boundary.
	if d1.Votes.RSI != indicator.Hold || d1.Votes.MACD != indicator.Buy || d1.Votes.Bollinger != indicator.Hold {
		t.Errorf("votes = %+v, want hold/buy/hold", d1.Votes)
	}
	if d1.MACDHistogram <= 0 {
		t.Errorf("macd histogram = %v, want positive", d1.MACDHistogram)
	}
	if d1.WeightedScore != 0.3 || d1.Label != ActionHold {
		t.Errorf("score = %v label = %v, want 0.3 and hold", d1.WeightedScore, d1.Label)
	}
}

func TestGenerateSignal_BidHeavyBook(t *testing.T) {
	e := newEngine(t)
	b := &model.OrderBook{
		Bids: []model.Level{{Price: 100, Qty: 4}, {Price: 99.5, Qty: 6}},
		Asks: []model.Level{{Price: 100.5, Qty: 2}},
	}
	d, err := e.GenerateSignal(constant(30, 100), b)
	if err != nil {
		t.Fatalf("GenerateSignal: %v", err)
	}
	if d.OrderBookPressure == nil || math.Abs(*d.OrderBookPressure-8.0/12.0) > 1e-12 {
		t.Fatalf("pressure = %v, want 0.667", d.OrderBookPressure)
	}
	if d.Votes.OrderBook != indicator.Buy {
		t.Errorf("book vote = %v, want buy", d.Votes.OrderBook)
	}
}

func TestGenerateSignal_TooShort(t *testing.T) {
	e := newEngine(t)
	_, err := e.GenerateSignal([]float64{1, 2, 3, 4, 5}, nil)
	var ide *indicator.InsufficientDataError
	if !errors.As(err, &ide) {
		t.Fatalf("expected InsufficientDataError, got %v", err)
	}
	if ide.Need != 27 || ide.Got != 5 {
		t.Errorf("need=%d got=%d, want 27 and 5", ide.Need, ide.Got)
	}
}

func TestGenerateSignal_BuyAndSell(t *testing.T) {
	e := newEngine(t)

	d, err := e.GenerateSignal(rising(40, 100), book(10, 1))
	if err != nil {
		t.Fatalf("GenerateSignal: %v", err)
	}
	if d.Label != ActionBuy || d.WeightedScore != 0.5 {
		t.Errorf("rising with bid-heavy book: label=%v score=%v, want buy 0.5", d.Label, d.WeightedScore)
	}

	d, err = e.GenerateSignal(constant(40, 100), book(1, 10))
	if err != nil {
		t.Fatalf("GenerateSignal: %v", err)
	}
	if d.Label != ActionSell || d.WeightedScore != -0.5 {
		t.Errorf("flat with ask-heavy book: label=%v score=%v, want sell -0.5", d.Label, d.WeightedScore)
	}
}

func TestGenerateSignal_EmptyBookIsZeroNotNull(t *testing.T) {
	e := newEngine(t)
	d, err := e.GenerateSignal(constant(30, 100), &model.OrderBook{})
	if err != nil {
		t.Fatalf("GenerateSignal: %v", err)
	}
	if d.OrderBookPressure == nil || *d.OrderBookPressure != 0 {
		t.Errorf("empty book pressure = %v, want 0", d.OrderBookPressure)
	}
}

func TestGenerateSignal_RejectsBadInput(t *testing.T) {
	e := newEngine(t)

	for _, bad := range []float64{0, -1, math.NaN(), math.Inf(1)} {
		prices := constant(30, 100)
		prices[7] = bad
		_, err := e.GenerateSignal(prices, nil)
		var ipe *indicator.InvalidParameterError
		if !errors.As(err, &ipe) || ipe.Name != "prices[7]" {
			t.Errorf("price %v: expected InvalidParameterError for prices[7], got %v", bad, err)
		}
	}

	_, err := e.GenerateSignal(constant(30, 100), book(-1, 1))
	if !errors.Is(err, indicator.ErrMalformedOrderBook) {
		t.Errorf("expected ErrMalformedOrderBook, got %v", err)
	}
}

func TestGenerateSignal_DoesNotMutateInput(t *testing.T) {
	e := newEngine(t)
	prices := walk(1, 80)
	orig := append([]float64(nil), prices...)
	if _, err := e.GenerateSignal(prices, book(3, 2)); err != nil {
		t.Fatalf("GenerateSignal: %v", err)
	}
	if !reflect.DeepEqual(prices, orig) {
		t.Fatal("GenerateSignal modified its input")
	}
}

// ────────────────────────────────────────────────────────────
// Score properties
// ────────────────────────────────────────────────────────────

func TestScore_IsAWeightCombination(t *testing.T) {
	w := DefaultWeights()
	allowed := map[float64]bool{}
	vs := []indicator.Vote{indicator.Sell, indicator.Hold, indicator.Buy}
	for _, a := range vs {
		for _, b := range vs {
			for _, c := range vs {
				for _, d := range vs {
					allowed[w.Score(Votes{a, b, c, d})] = true
				}
			}
		}
	}

	e := newEngine(t)
	rng := rand.New(rand.NewSource(5))
	for trial := 0; trial < 100; trial++ {
		var b *model.OrderBook
		if trial%2 == 0 {
			b = book(rng.Float64()*10, rng.Float64()*10)
		}
		d, err := e.GenerateSignal(walk(int64(trial), 30+rng.Intn(60)), b)
		if err != nil {
			t.Fatalf("trial %d: %v", trial, err)
		}
		if !allowed[d.WeightedScore] {
			t.Errorf("trial %d: score %v is not a weight combination", trial, d.WeightedScore)
		}
		if d.WeightedScore < -1 || d.WeightedScore > 1 {
			t.Errorf("trial %d: score %v out of [-1, 1]", trial, d.WeightedScore)
		}
		if d.RSI < 0 || d.RSI > 100 {
			t.Errorf("trial %d: rsi %v out of range", trial, d.RSI)
		}
	}
}

func TestClassify_StrictThresholds(t *testing.T) {
	cases := []struct {
		score float64
		want  Action
	}{
		{1, ActionBuy},
		{0.30000000000000004, ActionBuy},
		{0.3, ActionHold},
		{0, ActionHold},
		{-0.3, ActionHold},
		{-0.5, ActionSell},
	}
	for _, tc := range cases {
		if got := Classify(tc.score); got != tc.want {
			t.Errorf("Classify(%v) = %v, want %v", tc.score, got, tc.want)
		}
	}
}

// ────────────────────────────────────────────────────────────
// Construction
// ────────────────────────────────────────────────────────────

func TestNew_Validation(t *testing.T) {
	mod := func(f func(*Params)) Params {
		p := DefaultParams()
		f(&p)
		return p
	}
	cases := []struct {
		name string
		p    Params
		opts []Option
	}{
		{"zero rsi period", mod(func(p *Params) { p.RSIPeriod = 0 }), nil},
		{"negative macd slow", mod(func(p *Params) { p.MACDSlow = -26 }), nil},
		{"zero bollinger period", mod(func(p *Params) { p.BollingerPeriod = 0 }), nil},
		{"inverted rsi bounds", mod(func(p *Params) { p.RSIOversold = 80 }), nil},
		{"zero std", mod(func(p *Params) { p.BollingerStd = 0 }), nil},
		{"zero reward", mod(func(p *Params) { p.RewardMultiplier = 0 }), nil},
		{"negative weight", DefaultParams(), []Option{WithWeights(Weights{RSI: 0.6, MACD: 0.6, OrderBook: -0.2})}},
		{"weights sum", DefaultParams(), []Option{WithWeights(Weights{RSI: 0.3, MACD: 0.3, OrderBook: 0.2})}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := New(tc.p, tc.opts...)
			if !errors.Is(err, indicator.ErrInvalidParameter) {
				t.Fatalf("expected ErrInvalidParameter, got %v", err)
			}
		})
	}

	e, err := New(DefaultParams(), WithWeights(Weights{RSI: 0.25, MACD: 0.25, OrderBook: 0.25, Bollinger: 0.25}))
	if err != nil {
		t.Fatalf("equal weights should be valid: %v", err)
	}
	if e.Weights().RSI != 0.25 {
		t.Errorf("weights not applied: %+v", e.Weights())
	}
}

// ────────────────────────────────────────────────────────────
// Wire format
// ────────────────────────────────────────────────────────────

func TestDecision_JSONFields(t *testing.T) {
	e := newEngine(t)
	d, err := e.GenerateSignal(walk(9, 60), nil)
	if err != nil {
		t.Fatalf("GenerateSignal: %v", err)
	}
	b, err := json.Marshal(d)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal(b, &m); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	var keys []string
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	want := []string{"atr", "bollinger", "fibonacci_levels", "label", "macd_histogram",
		"orderbook_pressure", "risk", "rsi", "weighted_score"}
	if !reflect.DeepEqual(keys, want) {
		t.Fatalf("keys = %v\nwant   %v", keys, want)
	}
	if string(m["orderbook_pressure"]) != "null" {
		t.Errorf("orderbook_pressure = %s, want null", m["orderbook_pressure"])
	}

	var back Decision
	if err := json.Unmarshal(b, &back); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if back.FibonacciLevels != d.FibonacciLevels || back.Risk != d.Risk || back.Label != d.Label {
		t.Errorf("decoded decision differs: %+v", back)
	}
}
