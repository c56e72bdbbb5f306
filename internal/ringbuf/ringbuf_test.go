package ringbuf

import (
	"math"
	"testing"
)

func TestWindow_PushUntilFull(t *testing.T) {
	w := New(3) // backing array rounds to 4

	for i, v := range []float64{1, 2, 3} {
		if _, ok := w.Push(v); ok {
			t.Fatalf("push %d evicted before window was full", i)
		}
	}
	if !w.Full() || w.Len() != 3 || w.Cap() != 3 {
		t.Fatalf("expected full window of 3, got len=%d cap=%d", w.Len(), w.Cap())
	}

	ev, ok := w.Push(4)
	if !ok || ev != 1 {
		t.Fatalf("expected eviction of 1, got %v ok=%v", ev, ok)
	}

	got := w.Slice(nil)
	want := []float64{2, 3, 4}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("slice[%d] = %v, want %v", i, got[i], want[i])
		}
	}
	if w.Last() != 4 {
		t.Errorf("Last() = %v, want 4", w.Last())
	}
}

func TestWindow_Wraparound(t *testing.T) {
	w := New(5)

	// Drive head well past the backing array to exercise masking.
	for i := 0; i < 103; i++ {
		w.Push(float64(i))
	}
	for i := 0; i < 5; i++ {
		if got, want := w.At(i), float64(98+i); got != want {
			t.Fatalf("At(%d) = %v, want %v", i, got, want)
		}
	}
	hi, lo := w.MaxMin()
	if hi != 102 || lo != 98 {
		t.Errorf("MaxMin() = %v, %v; want 102, 98", hi, lo)
	}
}

func TestWindow_Empty(t *testing.T) {
	w := New(0)
	if w.Cap() != 1 {
		t.Fatalf("expected minimum capacity 1, got %d", w.Cap())
	}
	hi, lo := w.MaxMin()
	if !math.IsNaN(hi) || !math.IsNaN(lo) {
		t.Errorf("MaxMin() on empty window = %v, %v; want NaN", hi, lo)
	}
	if w.Last() != 0 {
		t.Errorf("Last() on empty window = %v, want 0", w.Last())
	}
	if len(w.Slice(nil)) != 0 {
		t.Error("Slice() on empty window should be empty")
	}
}

func TestWindow_Reset(t *testing.T) {
	w := New(2)
	w.Push(1)
	w.Push(2)
	w.Reset()
	if w.Len() != 0 {
		t.Fatalf("expected len=0 after reset, got %d", w.Len())
	}
	w.Push(7)
	if got := w.Slice(nil); len(got) != 1 || got[0] != 7 {
		t.Fatalf("unexpected contents after reset: %v", got)
	}
}

func TestWindow_AtPanicsOutOfRange(t *testing.T) {
	w := New(2)
	w.Push(1)
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic for out-of-range index")
		}
	}()
	w.At(1)
}

func TestNextPow2(t *testing.T) {
	cases := []struct{ in, want int }{
		{0, 1}, {1, 1}, {2, 2}, {3, 4}, {5, 8}, {7, 8}, {8, 8}, {9, 16}, {1023, 1024},
	}
	for _, tc := range cases {
		got := nextPow2(tc.in)
		if got != tc.want {
			t.Errorf("nextPow2(%d) = %d, want %d", tc.in, got, tc.want)
		}
	}
}
