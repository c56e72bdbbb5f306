package indicator

import "strconv"

// RSINeutral is the RSI reported before the seed window is complete and
// whenever the average loss is exactly zero.
const RSINeutral = 50.0

// RSI calculates the Relative Strength Index with Wilder's smoothing.
//
// The seed averages are the simple mean of the first period deltas. Wilder
// smoothing then runs from price index period onward using the delta that
// ends at that price, so the last seed delta is applied a second time at the
// first smoothed step. Update is O(1) per price.
type RSI struct {
	period    int
	count     int
	prevClose float64
	avgGain   float64
	avgLoss   float64
	current   float64
}

// NewRSI creates a new RSI with the given period (typically 14).
func NewRSI(period int) *RSI {
	return &RSI{period: period, current: RSINeutral}
}

func (r *RSI) Name() string { return "RSI_" + strconv.Itoa(r.period) }

func (r *RSI) Update(price float64) {
	r.count++
	if r.count == 1 {
		r.prevClose = price
		return
	}

	delta := price - r.prevClose
	r.prevClose = price
	gain, loss := 0.0, 0.0
	if delta >= 0 {
		gain = delta
	} else {
		loss = -delta
	}

	// count-1 is the index of this price; deltas seen so far = count-1.
	if r.count-1 < r.period {
		r.avgGain += gain
		r.avgLoss += loss
		return
	}
	if r.count-1 == r.period {
		r.avgGain = (r.avgGain + gain) / float64(r.period)
		r.avgLoss = (r.avgLoss + loss) / float64(r.period)
	}

	n := float64(r.period)
	r.avgGain = (r.avgGain*(n-1) + gain) / n
	r.avgLoss = (r.avgLoss*(n-1) + loss) / n
	r.current = rsiFrom(r.avgGain, r.avgLoss)
}

func rsiFrom(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		return RSINeutral
	}
	rs := avgGain / avgLoss
	return 100.0 - (100.0 / (1.0 + rs))
}

func (r *RSI) Value() float64 { return r.current }
func (r *RSI) Ready() bool    { return r.count > r.period }

func (r *RSI) Reset() {
	r.count = 0
	r.prevClose = 0
	r.avgGain = 0
	r.avgLoss = 0
	r.current = RSINeutral
}

// ComputeRSI returns one RSI value per price. The first period entries are
// RSINeutral.
func ComputeRSI(prices []float64, period int) ([]float64, error) {
	if err := requirePeriod("rsi_period", period); err != nil {
		return nil, err
	}
	if err := requireLen("rsi", prices, period+1); err != nil {
		return nil, err
	}
	r := NewRSI(period)
	out := make([]float64, len(prices))
	for i, p := range prices {
		r.Update(p)
		out[i] = r.Value()
	}
	return out, nil
}

// RSIVote is Buy below oversold, Sell above overbought, Hold otherwise.
func RSIVote(rsi, oversold, overbought float64) Vote {
	switch {
	case rsi < oversold:
		return Buy
	case rsi > overbought:
		return Sell
	default:
		return Hold
	}
}
