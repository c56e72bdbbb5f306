// Package risk derives stop-loss and take-profit levels from a range-based
// volatility proxy.
package risk

import (
	"math"

	"cryptopulse/internal/indicator"
	"cryptopulse/internal/ringbuf"
)

// ATRWindow is the number of trailing prices the ATR proxy spans. It does
// not follow the RSI period.
const ATRWindow = 14

// Multipliers scale the ATR proxy into distances from the current price.
type Multipliers struct {
	Risk   float64 `json:"risk_multiplier" yaml:"risk_multiplier"`
	Reward float64 `json:"reward_multiplier" yaml:"reward_multiplier"`
}

// DefaultMultipliers returns a 1.5x stop and a 2x target.
func DefaultMultipliers() Multipliers {
	return Multipliers{Risk: 1.5, Reward: 2}
}

// Validate rejects non-positive or non-finite multipliers.
func (m Multipliers) Validate() error {
	if !(m.Risk > 0) || math.IsInf(m.Risk, 0) {
		return &indicator.InvalidParameterError{Name: "risk_multiplier", Value: m.Risk, Reason: "must be positive and finite"}
	}
	if !(m.Reward > 0) || math.IsInf(m.Reward, 0) {
		return &indicator.InvalidParameterError{Name: "reward_multiplier", Value: m.Reward, Reason: "must be positive and finite"}
	}
	return nil
}

// Levels are the protective prices around an entry.
type Levels struct {
	StopLoss   float64 `json:"stop_loss"`
	TakeProfit float64 `json:"take_profit"`
}

// Compute places the stop below and the target above price.
func (m Multipliers) Compute(price, atr float64) Levels {
	return Levels{
		StopLoss:   price - m.Risk*atr,
		TakeProfit: price + m.Reward*atr,
	}
}

// ATRProxy returns (max − min)/ATRWindow over the last ATRWindow prices.
func ATRProxy(prices []float64) (float64, error) {
	if len(prices) < ATRWindow {
		return 0, &indicator.InsufficientDataError{Op: "atr", Need: ATRWindow, Got: len(prices)}
	}
	tail := prices[len(prices)-ATRWindow:]
	hi, lo := tail[0], tail[0]
	for _, p := range tail[1:] {
		if p > hi {
			hi = p
		}
		if p < lo {
			lo = p
		}
	}
	return (hi - lo) / ATRWindow, nil
}

// ATR is the streaming form of ATRProxy.
type ATR struct {
	win *ringbuf.Window
}

func NewATR() *ATR { return &ATR{win: ringbuf.New(ATRWindow)} }

func (a *ATR) Name() string         { return "ATR_PROXY_14" }
func (a *ATR) Update(price float64) { a.win.Push(price) }
func (a *ATR) Ready() bool          { return a.win.Full() }
func (a *ATR) Reset()               { a.win.Reset() }

// Value returns 0 until ATRWindow prices have been seen.
func (a *ATR) Value() float64 {
	if !a.win.Full() {
		return 0
	}
	hi, lo := a.win.MaxMin()
	return (hi - lo) / ATRWindow
}
