package strategy

import (
	"time"

	"cryptopulse/internal/indicator"
	"cryptopulse/internal/risk"
)

// Action is the overall trading decision.
type Action string

const (
	ActionBuy  Action = "buy"
	ActionSell Action = "sell"
	ActionHold Action = "hold"
)

// Decision is a label plus everything that produced it.
type Decision struct {
	Label             Action              `json:"label"`
	WeightedScore     float64             `json:"weighted_score"`
	RSI               float64             `json:"rsi"`
	MACDHistogram     float64             `json:"macd_histogram"`
	OrderBookPressure *float64            `json:"orderbook_pressure"` // nil when no book was supplied
	Bollinger         indicator.Bands     `json:"bollinger"`
	ATR               float64             `json:"atr"`
	Risk              risk.Levels         `json:"risk"`
	FibonacciLevels   indicator.FibLevels `json:"fibonacci_levels"`

	Price float64 `json:"-"` // last price of the series
	Votes Votes   `json:"-"`
}

// Signal is a Decision tagged with where and when it was made.
type Signal struct {
	Symbol   string    `json:"symbol"`
	Interval string    `json:"interval"`
	Price    float64   `json:"price"`
	Decision Decision  `json:"decision"`
	Votes    Votes     `json:"votes"`
	At       time.Time `json:"at"`
	TraceID  string    `json:"trace_id,omitempty"`
}

// NewSignal stamps d for symbol.
func NewSignal(symbol, interval string, d Decision, at time.Time) Signal {
	return Signal{
		Symbol:   symbol,
		Interval: interval,
		Price:    d.Price,
		Decision: d,
		Votes:    d.Votes,
		At:       at,
	}
}

// Actionable reports whether the signal asks for a trade.
func (s Signal) Actionable() bool {
	return s.Decision.Label == ActionBuy || s.Decision.Label == ActionSell
}
