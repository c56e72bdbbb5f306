package indicator

import (
	"fmt"
	"math"

	"cryptopulse/internal/ringbuf"
)

// Bands is one Bollinger observation.
type Bands struct {
	SMA   float64 `json:"sma"`
	Upper float64 `json:"upper"`
	Lower float64 `json:"lower"`
}

// Bollinger keeps the most recent period prices and reports bands over
// them. Until period prices have arrived the bands cover whatever is held.
type Bollinger struct {
	numStd  float64
	win     *ringbuf.Window
	scratch []float64
}

// NewBollinger creates streaming bands with the given period and width.
func NewBollinger(period int, numStd float64) *Bollinger {
	return &Bollinger{
		numStd:  numStd,
		win:     ringbuf.New(period),
		scratch: make([]float64, 0, period),
	}
}

func (b *Bollinger) Name() string {
	return fmt.Sprintf("BB_%d_%g", b.win.Cap(), b.numStd)
}

func (b *Bollinger) Update(price float64) { b.win.Push(price) }

// Value returns the middle band.
func (b *Bollinger) Value() float64 { return b.Bands().SMA }
func (b *Bollinger) Ready() bool    { return b.win.Len() > 0 }
func (b *Bollinger) Reset()         { b.win.Reset() }

// Bands computes the bands over the held window.
func (b *Bollinger) Bands() Bands {
	b.scratch = b.win.Slice(b.scratch[:0])
	return bandsOf(b.scratch, b.numStd)
}

// bandsOf uses the population standard deviation. The mean gets one
// correction pass so that a constant window yields exactly that constant.
func bandsOf(window []float64, numStd float64) Bands {
	n := float64(len(window))
	if n == 0 {
		return Bands{}
	}
	var sum float64
	for _, p := range window {
		sum += p
	}
	mean := sum / n
	var resid float64
	for _, p := range window {
		resid += p - mean
	}
	mean += resid / n

	var sq float64
	for _, p := range window {
		d := p - mean
		sq += d * d
	}
	std := math.Sqrt(sq / n)
	return Bands{SMA: mean, Upper: mean + numStd*std, Lower: mean - numStd*std}
}

// ComputeBollinger returns the bands over the last period prices. A series
// shorter than period uses all of it.
func ComputeBollinger(prices []float64, period int, numStd float64) (Bands, error) {
	if err := requirePeriod("bollinger_period", period); err != nil {
		return Bands{}, err
	}
	if numStd <= 0 || math.IsNaN(numStd) || math.IsInf(numStd, 0) {
		return Bands{}, &InvalidParameterError{Name: "bollinger_std", Value: numStd, Reason: "must be positive and finite"}
	}
	if err := requireLen("bollinger", prices, 1); err != nil {
		return Bands{}, err
	}
	if len(prices) < period {
		period = len(prices)
	}
	return bandsOf(prices[len(prices)-period:], numStd), nil
}

// BollingerVote is Buy below the lower band, Sell above the upper band.
func BollingerVote(price float64, b Bands) Vote {
	switch {
	case price < b.Lower:
		return Buy
	case price > b.Upper:
		return Sell
	default:
		return Hold
	}
}
