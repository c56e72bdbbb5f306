package strategy

import (
	"fmt"
	"math"

	"cryptopulse/internal/indicator"
	"cryptopulse/internal/risk"
)

// Params configures the indicators. It is fixed for the life of an Engine.
type Params struct {
	RSIPeriod        int     `json:"rsi_period"`
	RSIOverbought    float64 `json:"rsi_overbought"`
	RSIOversold      float64 `json:"rsi_oversold"`
	MACDFast         int     `json:"macd_fast"`
	MACDSlow         int     `json:"macd_slow"`
	MACDSignal       int     `json:"macd_signal"`
	BollingerPeriod  int     `json:"bollinger_period"`
	BollingerStd     float64 `json:"bollinger_std"`
	RiskMultiplier   float64 `json:"risk_multiplier"`
	RewardMultiplier float64 `json:"reward_multiplier"`
}

// DefaultParams returns the standard 14/70/30, 12/26/9, 20/2 setup.
func DefaultParams() Params {
	return Params{
		RSIPeriod:        14,
		RSIOverbought:    70,
		RSIOversold:      30,
		MACDFast:         12,
		MACDSlow:         26,
		MACDSignal:       9,
		BollingerPeriod:  20,
		BollingerStd:     2,
		RiskMultiplier:   1.5,
		RewardMultiplier: 2,
	}
}

// Validate returns an *indicator.InvalidParameterError for the first bad
// field.
func (p Params) Validate() error {
	periods := []struct {
		name string
		v    int
	}{
		{"rsi_period", p.RSIPeriod},
		{"macd_fast", p.MACDFast},
		{"macd_slow", p.MACDSlow},
		{"macd_signal", p.MACDSignal},
		{"bollinger_period", p.BollingerPeriod},
	}
	for _, f := range periods {
		if f.v <= 0 {
			return &indicator.InvalidParameterError{Name: f.name, Value: f.v, Reason: "must be positive"}
		}
	}
	if !(p.RSIOversold >= 0 && p.RSIOverbought <= 100 && p.RSIOversold < p.RSIOverbought) {
		return &indicator.InvalidParameterError{
			Name:   "rsi_oversold/rsi_overbought",
			Value:  fmt.Sprintf("%v/%v", p.RSIOversold, p.RSIOverbought),
			Reason: "need 0 <= oversold < overbought <= 100",
		}
	}
	if !(p.BollingerStd > 0) || math.IsInf(p.BollingerStd, 0) {
		return &indicator.InvalidParameterError{Name: "bollinger_std", Value: p.BollingerStd, Reason: "must be positive and finite"}
	}
	return p.multipliers().Validate()
}

func (p Params) multipliers() risk.Multipliers {
	return risk.Multipliers{Risk: p.RiskMultiplier, Reward: p.RewardMultiplier}
}

// MinPrices is the shortest series GenerateSignal accepts.
func (p Params) MinPrices() int {
	return max(p.RSIPeriod, p.MACDSlow, risk.ATRWindow) + 1
}

// backtestFloor keeps the first backtest step past a full Bollinger window
// at default settings, whatever BollingerPeriod is configured to.
const backtestFloor = 20

// WarmupIndex is the first index a backtest evaluates.
func (p Params) WarmupIndex() int {
	return max(p.RSIPeriod, p.MACDSlow, backtestFloor)
}
