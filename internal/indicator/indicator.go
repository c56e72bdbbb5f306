// Package indicator provides the technical indicators behind the signal
// engine: RSI, EMA/MACD, Bollinger bands, Fibonacci retracement and
// order-book pressure.
//
// Each windowed indicator exists in two forms. The streaming type (EMA, RSI,
// MACD, Bollinger, Range) takes one price per Update and holds only the state
// it needs. The batch function (ComputeEMA, ComputeRSI, ...) validates its
// input and feeds the series through the streaming type, so both forms
// produce identical floats for identical input. Nothing in this package does
// I/O or logging, and no function mutates a caller's slice.
package indicator

// Indicator is the interface shared by the streaming indicators.
type Indicator interface {
	// Name returns the indicator name (e.g., "RSI_14", "EMA_12").
	Name() string

	// Update feeds the next price.
	Update(price float64)

	// Value returns the current value. Before Ready it is the indicator's
	// documented default.
	Value() float64

	// Ready returns true when enough data has been accumulated.
	Ready() bool

	// Reset clears all accumulated state.
	Reset()
}

// Vote is an indicator's opinion on the next trade.
type Vote int8

const (
	Sell Vote = -1
	Hold Vote = 0
	Buy  Vote = 1
)

func (v Vote) String() string {
	switch v {
	case Buy:
		return "buy"
	case Sell:
		return "sell"
	default:
		return "hold"
	}
}
