// Package ringbuf provides a fixed-capacity sliding window of float64
// samples. Once full, each Push overwrites the oldest sample, so the window
// always holds the most recent Cap() values in arrival order.
package ringbuf

import "math"

// Window is a sliding window over the most recent samples.
// The backing array is sized to a power of two for bitwise modulo; the
// logical capacity is what the caller asked for. Not safe for concurrent use.
type Window struct {
	buf   []float64
	mask  uint64
	size  int    // logical capacity
	head  uint64 // total samples pushed
	count int
}

// New creates a window holding up to capacity samples. Minimum capacity is 1.
func New(capacity int) *Window {
	if capacity < 1 {
		capacity = 1
	}
	n := nextPow2(capacity)
	return &Window{
		buf:  make([]float64, n),
		mask: uint64(n - 1),
		size: capacity,
	}
}

// Push appends v. When the window is full the oldest sample is evicted and
// returned with ok=true.
func (w *Window) Push(v float64) (evicted float64, ok bool) {
	if w.count == w.size {
		evicted = w.buf[(w.head-uint64(w.size))&w.mask]
		ok = true
	} else {
		w.count++
	}
	w.buf[w.head&w.mask] = v
	w.head++
	return evicted, ok
}

// Len returns the number of samples currently held.
func (w *Window) Len() int { return w.count }

// Cap returns the logical capacity.
func (w *Window) Cap() int { return w.size }

// Full reports whether Len() == Cap().
func (w *Window) Full() bool { return w.count == w.size }

// At returns the i-th sample, oldest first. It panics if i is out of range.
func (w *Window) At(i int) float64 {
	if i < 0 || i >= w.count {
		panic("ringbuf: index out of range")
	}
	start := w.head - uint64(w.count)
	return w.buf[(start+uint64(i))&w.mask]
}

// Last returns the most recent sample, or 0 when empty.
func (w *Window) Last() float64 {
	if w.count == 0 {
		return 0
	}
	return w.buf[(w.head-1)&w.mask]
}

// Slice appends the samples, oldest first, to dst and returns it.
func (w *Window) Slice(dst []float64) []float64 {
	start := w.head - uint64(w.count)
	for i := uint64(0); i < uint64(w.count); i++ {
		dst = append(dst, w.buf[(start+i)&w.mask])
	}
	return dst
}

// MaxMin returns the largest and smallest samples. Both are NaN when empty.
func (w *Window) MaxMin() (hi, lo float64) {
	if w.count == 0 {
		return math.NaN(), math.NaN()
	}
	hi, lo = math.Inf(-1), math.Inf(1)
	start := w.head - uint64(w.count)
	for i := uint64(0); i < uint64(w.count); i++ {
		v := w.buf[(start+i)&w.mask]
		if v > hi {
			hi = v
		}
		if v < lo {
			lo = v
		}
	}
	return hi, lo
}

// Reset empties the window without releasing the backing array.
func (w *Window) Reset() {
	w.head = 0
	w.count = 0
}

// nextPow2 returns the smallest power of 2 >= n.
func nextPow2(n int) int {
	if n <= 0 {
		return 1
	}
	n--
	n |= n >> 1
	n |= n >> 2
	n |= n >> 4
	n |= n >> 8
	n |= n >> 16
	n |= n >> 32
	return n + 1
}
