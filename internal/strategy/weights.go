package strategy

import (
	"math"

	"cryptopulse/internal/indicator"
)

// Score thresholds. Both comparisons are strict: a score of exactly 0.3 is
// a hold.
const (
	BuyThreshold  = 0.3
	SellThreshold = -0.3
)

// weightSumTolerance absorbs float error when checking that weights sum to 1.
const weightSumTolerance = 1e-9

// Weights is the share of the vote each indicator carries.
type Weights struct {
	RSI       float64 `json:"rsi"`
	MACD      float64 `json:"macd"`
	OrderBook float64 `json:"orderbook"`
	Bollinger float64 `json:"bollinger"`
}

// DefaultWeights gives momentum and trend 0.3 each, book and bands 0.2.
func DefaultWeights() Weights {
	return Weights{RSI: 0.3, MACD: 0.3, OrderBook: 0.2, Bollinger: 0.2}
}

// Validate requires finite, non-negative weights summing to 1.
func (w Weights) Validate() error {
	var sum float64
	for _, f := range []struct {
		name string
		v    float64
	}{
		{"weight.rsi", w.RSI},
		{"weight.macd", w.MACD},
		{"weight.orderbook", w.OrderBook},
		{"weight.bollinger", w.Bollinger},
	} {
		if !(f.v >= 0) || math.IsInf(f.v, 0) {
			return &indicator.InvalidParameterError{Name: f.name, Value: f.v, Reason: "must be non-negative and finite"}
		}
		sum += f.v
	}
	if math.Abs(sum-1) > weightSumTolerance {
		return &indicator.InvalidParameterError{Name: "weights", Value: sum, Reason: "must sum to 1"}
	}
	return nil
}

// Votes records each indicator's vote.
type Votes struct {
	RSI       indicator.Vote `json:"rsi"`
	MACD      indicator.Vote `json:"macd"`
	OrderBook indicator.Vote `json:"orderbook"`
	Bollinger indicator.Vote `json:"bollinger"`
}

type ballot struct {
	vote   indicator.Vote
	weight float64
}

// ballots lists the votes in the fixed tally order.
func (w Weights) ballots(v Votes) [4]ballot {
	return [4]ballot{
		{v.RSI, w.RSI},
		{v.MACD, w.MACD},
		{v.OrderBook, w.OrderBook},
		{v.Bollinger, w.Bollinger},
	}
}

// Score folds the ballots into Σ vote·weight.
func (w Weights) Score(v Votes) float64 {
	var score float64
	for _, b := range w.ballots(v) {
		score += float64(b.vote) * b.weight
	}
	return score
}

// Classify maps a score to an action.
func Classify(score float64) Action {
	switch {
	case score > BuyThreshold:
		return ActionBuy
	case score < SellThreshold:
		return ActionSell
	default:
		return ActionHold
	}
}
