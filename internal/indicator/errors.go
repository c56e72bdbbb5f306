package indicator

import (
	"errors"
	"fmt"
)

// Sentinels for errors.Is. Every typed error below unwraps to one of them.
var (
	ErrInsufficientData   = errors.New("insufficient data")
	ErrInvalidParameter   = errors.New("invalid parameter")
	ErrMalformedOrderBook = errors.New("malformed order book")
)

// InsufficientDataError reports a price series shorter than the longest
// window an operation needs.
type InsufficientDataError struct {
	Op   string // operation that needed the data, e.g. "rsi"
	Need int
	Got  int
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("%s: need at least %d prices, got %d", e.Op, e.Need, e.Got)
}

func (e *InsufficientDataError) Unwrap() error { return ErrInsufficientData }

// InvalidParameterError reports a bad period, weight, threshold or input
// value.
type InvalidParameterError struct {
	Name   string
	Value  any
	Reason string
}

func (e *InvalidParameterError) Error() string {
	return fmt.Sprintf("invalid parameter %s=%v: %s", e.Name, e.Value, e.Reason)
}

func (e *InvalidParameterError) Unwrap() error { return ErrInvalidParameter }

// MalformedOrderBookError reports a negative or non-finite price or
// quantity in a depth snapshot.
type MalformedOrderBookError struct {
	Side  string // "bids" or "asks"
	Index int
	Price float64
	Qty   float64
}

func (e *MalformedOrderBookError) Error() string {
	return fmt.Sprintf("malformed order book: %s[%d] price=%v qty=%v", e.Side, e.Index, e.Price, e.Qty)
}

func (e *MalformedOrderBookError) Unwrap() error { return ErrMalformedOrderBook }

func requirePeriod(name string, period int) error {
	if period <= 0 {
		return &InvalidParameterError{Name: name, Value: period, Reason: "must be positive"}
	}
	return nil
}

func requireLen(op string, prices []float64, need int) error {
	if len(prices) < need {
		return &InsufficientDataError{Op: op, Need: need, Got: len(prices)}
	}
	return nil
}
