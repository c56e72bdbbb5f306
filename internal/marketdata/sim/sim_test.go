package sim

import (
	"math"
	"testing"
)

func TestLinspace(t *testing.T) {
	tests := []struct {
		name       string
		start, end float64
		n          int
		want       []float64
	}{
		{"empty", 1, 2, 0, nil},
		{"single", 5, 9, 1, []float64{5}},
		{"pair", 1, 2, 2, []float64{1, 2}},
		{"five", 0, 1, 5, []float64{0, 0.25, 0.5, 0.75, 1}},
		{"descending", 10, 0, 3, []float64{10, 5, 0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Linspace(tt.start, tt.end, tt.n)
			if len(got) != len(tt.want) {
				t.Fatalf("len = %d, want %d", len(got), len(tt.want))
			}
			for i := range got {
				if math.Abs(got[i]-tt.want[i]) > 1e-12 {
					t.Errorf("[%d] = %v, want %v", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestFallback(t *testing.T) {
	s := Fallback(50)
	if len(s) != 50 || s[0] != FallbackStart || s[49] != FallbackEnd {
		t.Errorf("unexpected fallback series: first=%v last=%v len=%d", s[0], s[len(s)-1], len(s))
	}
	for i := 1; i < len(s); i++ {
		if s[i] <= s[i-1] {
			t.Fatalf("series not increasing at %d", i)
		}
	}
}
