package indicator

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// FibRatios are the retracement ratios, shallowest first.
var FibRatios = [7]float64{0, 0.236, 0.382, 0.5, 0.618, 0.786, 1}

// FibLabels are the names of FibRatios as they appear in JSON.
var FibLabels = [7]string{"0.0%", "23.6%", "38.2%", "50.0%", "61.8%", "78.6%", "100.0%"}

// FibLevels holds one price per ratio in FibRatios order. Index 0 is the
// high, index 6 the low. It encodes as a JSON object keyed by FibLabels.
type FibLevels [7]float64

// Level returns the price for a label such as "61.8%".
func (f FibLevels) Level(label string) (float64, bool) {
	for i, l := range FibLabels {
		if l == label {
			return f[i], true
		}
	}
	return 0, false
}

// Map returns the levels keyed by label.
func (f FibLevels) Map() map[string]float64 {
	m := make(map[string]float64, len(f))
	for i, l := range FibLabels {
		m[l] = f[i]
	}
	return m
}

// MarshalJSON keeps ratio order rather than Go's sorted map key order.
func (f FibLevels) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, l := range FibLabels {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.WriteString(strconv.Quote(l))
		buf.WriteByte(':')
		v, err := json.Marshal(f[i])
		if err != nil {
			return nil, err
		}
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (f *FibLevels) UnmarshalJSON(b []byte) error {
	var m map[string]float64
	if err := json.Unmarshal(b, &m); err != nil {
		return err
	}
	for i, l := range FibLabels {
		v, ok := m[l]
		if !ok {
			return fmt.Errorf("fibonacci levels: missing %q", l)
		}
		f[i] = v
	}
	return nil
}

// Range tracks the running high and low of every price seen.
type Range struct {
	high, low float64
	count     int
}

func NewRange() *Range { return &Range{} }

func (r *Range) Name() string { return "RANGE" }

func (r *Range) Update(price float64) {
	if r.count == 0 || price > r.high {
		r.high = price
	}
	if r.count == 0 || price < r.low {
		r.low = price
	}
	r.count++
}

// Value returns high − low.
func (r *Range) Value() float64 { return r.high - r.low }
func (r *Range) Ready() bool    { return r.count > 0 }
func (r *Range) Reset()         { *r = Range{} }

// HighLow returns the extremes seen so far.
func (r *Range) HighLow() (high, low float64) { return r.high, r.low }

// Levels returns the retracement levels of the range. 0% and 100% are the
// high and low exactly.
func (r *Range) Levels() FibLevels {
	diff := r.high - r.low
	var f FibLevels
	for i, ratio := range FibRatios {
		f[i] = r.high - ratio*diff
	}
	f[0] = r.high
	f[len(f)-1] = r.low
	return f
}

// Fibonacci returns the retracement levels over the whole series.
func Fibonacci(prices []float64) (FibLevels, error) {
	if err := requireLen("fibonacci", prices, 1); err != nil {
		return FibLevels{}, err
	}
	r := NewRange()
	for _, p := range prices {
		if math.IsNaN(p) {
			return FibLevels{}, &InvalidParameterError{Name: "price", Value: p, Reason: "not a number"}
		}
		r.Update(p)
	}
	return r.Levels(), nil
}
