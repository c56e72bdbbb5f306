package indicator

import "fmt"

// MACDValue is one MACD observation.
type MACDValue struct {
	Line      float64 `json:"line"`
	Signal    float64 `json:"signal"`
	Histogram float64 `json:"histogram"`
}

// MACD is the streaming MACD: EMA(fast) − EMA(slow), with the signal line an
// EMA of the MACD line itself.
type MACD struct {
	fast, slow, signal *EMA
	cur                MACDValue
}

// NewMACD creates a streaming MACD. All periods must be positive.
func NewMACD(fast, slow, signal int) *MACD {
	return &MACD{
		fast:   NewEMA(fast),
		slow:   NewEMA(slow),
		signal: NewEMA(signal),
	}
}

func (m *MACD) Name() string {
	return fmt.Sprintf("MACD_%d_%d_%d", m.fast.period, m.slow.period, m.signal.period)
}

func (m *MACD) Update(price float64) {
	m.fast.Update(price)
	m.slow.Update(price)
	line := m.fast.Value() - m.slow.Value()
	m.signal.Update(line)
	m.cur = MACDValue{Line: line, Signal: m.signal.Value(), Histogram: line - m.signal.Value()}
}

// Value returns the histogram.
func (m *MACD) Value() float64     { return m.cur.Histogram }
func (m *MACD) Current() MACDValue { return m.cur }
func (m *MACD) Ready() bool        { return m.fast.Ready() }

func (m *MACD) Reset() {
	m.fast.Reset()
	m.slow.Reset()
	m.signal.Reset()
	m.cur = MACDValue{}
}

// MACDSeries holds the three MACD series, index-aligned with the input.
type MACDSeries struct {
	Line      []float64
	Signal    []float64
	Histogram []float64
}

// ComputeMACD returns the MACD line, signal and histogram for every price.
func ComputeMACD(prices []float64, fast, slow, signal int) (MACDSeries, error) {
	for _, p := range []struct {
		name string
		v    int
	}{{"macd_fast", fast}, {"macd_slow", slow}, {"macd_signal", signal}} {
		if err := requirePeriod(p.name, p.v); err != nil {
			return MACDSeries{}, err
		}
	}
	if err := requireLen("macd", prices, 1); err != nil {
		return MACDSeries{}, err
	}
	m := NewMACD(fast, slow, signal)
	out := MACDSeries{
		Line:      make([]float64, len(prices)),
		Signal:    make([]float64, len(prices)),
		Histogram: make([]float64, len(prices)),
	}
	for i, p := range prices {
		m.Update(p)
		out.Line[i] = m.cur.Line
		out.Signal[i] = m.cur.Signal
		out.Histogram[i] = m.cur.Histogram
	}
	return out, nil
}

// MACDVote is Buy for a positive histogram and Sell otherwise. A zero
// histogram is a Sell; MACD never abstains.
func MACDVote(histogram float64) Vote {
	if histogram > 0 {
		return Buy
	}
	return Sell
}
