package risk

import (
	"errors"
	"math"
	"testing"

	"cryptopulse/internal/indicator"
)

func TestATRProxy_UsesLast14(t *testing.T) {
	prices := []float64{1000, 1} // outside the window
	for i := 0; i < 14; i++ {
		prices = append(prices, 100+float64(i))
	}
	atr, err := ATRProxy(prices)
	if err != nil {
		t.Fatalf("ATRProxy: %v", err)
	}
	if want := 13.0 / 14.0; atr != want {
		t.Errorf("atr = %v, want %v", atr, want)
	}
}

func TestATRProxy_Insufficient(t *testing.T) {
	_, err := ATRProxy(make([]float64, 13))
	var ide *indicator.InsufficientDataError
	if !errors.As(err, &ide) || ide.Need != ATRWindow {
		t.Fatalf("expected InsufficientDataError needing %d, got %v", ATRWindow, err)
	}
}

func TestATR_StreamMatchesBatch(t *testing.T) {
	a := NewATR()
	var prices []float64
	for i := 0; i < 40; i++ {
		p := 100 + 10*math.Sin(float64(i)/3)
		prices = append(prices, p)
		a.Update(p)
		if len(prices) < ATRWindow {
			if a.Ready() {
				t.Fatalf("ready after %d prices", len(prices))
			}
			continue
		}
		want, _ := ATRProxy(prices)
		if a.Value() != want {
			t.Fatalf("i=%d: stream %v != batch %v", i, a.Value(), want)
		}
	}
}

func TestLevels(t *testing.T) {
	lv := DefaultMultipliers().Compute(100, 2)
	if lv.StopLoss != 97 || lv.TakeProfit != 104 {
		t.Errorf("got %+v, want stop 97 take 104", lv)
	}
}

func TestMultipliers_Validate(t *testing.T) {
	cases := []struct {
		m  Multipliers
		ok bool
	}{
		{DefaultMultipliers(), true},
		{Multipliers{Risk: 0, Reward: 2}, false},
		{Multipliers{Risk: 1, Reward: -1}, false},
		{Multipliers{Risk: math.NaN(), Reward: 1}, false},
		{Multipliers{Risk: 1, Reward: math.Inf(1)}, false},
	}
	for _, tc := range cases {
		err := tc.m.Validate()
		if (err == nil) != tc.ok {
			t.Errorf("Validate(%+v) = %v, want ok=%v", tc.m, err, tc.ok)
		}
		if err != nil && !errors.Is(err, indicator.ErrInvalidParameter) {
			t.Errorf("Validate(%+v) should match ErrInvalidParameter", tc.m)
		}
	}
}
