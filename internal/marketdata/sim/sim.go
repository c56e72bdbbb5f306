// Package sim produces synthetic price series for offline runs and for the
// fallback used when history cannot be fetched.
package sim

// FallbackStart and FallbackEnd bound the series used when the exchange is
// unreachable.
const (
	FallbackStart = 30000.0
	FallbackEnd   = 35000.0
)

// Linspace returns n evenly spaced values from start to end inclusive.
// n == 1 yields [start]; n <= 0 yields nil.
func Linspace(start, end float64, n int) []float64 {
	if n <= 0 {
		return nil
	}
	out := make([]float64, n)
	if n == 1 {
		out[0] = start
		return out
	}
	step := (end - start) / float64(n-1)
	for i := range out {
		out[i] = start + float64(i)*step
	}
	out[n-1] = end
	return out
}

// Fallback returns the simulated series of length n.
func Fallback(n int) []float64 {
	return Linspace(FallbackStart, FallbackEnd, n)
}
