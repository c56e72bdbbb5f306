package indicator

import "strconv"

// EMA calculates an Exponential Moving Average seeded with the first price
// (no SMA warm-up). O(1) per update.
type EMA struct {
	period     int
	multiplier float64
	current    float64
	count      int
}

// NewEMA creates a new EMA with the given period. period must be positive.
func NewEMA(period int) *EMA {
	return &EMA{
		period:     period,
		multiplier: 2.0 / float64(period+1),
	}
}

func (e *EMA) Name() string { return "EMA_" + strconv.Itoa(e.period) }

func (e *EMA) Update(price float64) {
	e.count++
	if e.count == 1 {
		e.current = price
		return
	}
	e.current = (price-e.current)*e.multiplier + e.current
}

func (e *EMA) Value() float64 { return e.current }
func (e *EMA) Ready() bool    { return e.count > 0 }

// Reset clears the EMA state for reuse.
func (e *EMA) Reset() {
	e.current = 0
	e.count = 0
}

// ComputeEMA returns one EMA value per input price.
func ComputeEMA(prices []float64, period int) ([]float64, error) {
	if err := requirePeriod("ema_period", period); err != nil {
		return nil, err
	}
	if err := requireLen("ema", prices, 1); err != nil {
		return nil, err
	}
	e := NewEMA(period)
	out := make([]float64, len(prices))
	for i, p := range prices {
		e.Update(p)
		out[i] = e.Value()
	}
	return out, nil
}
