// Package execution turns actionable signals into simulated market orders.
// Only paper trading is implemented; nothing here talks to a live venue.
package execution

import (
	"context"
	"errors"
	"fmt"

	"cryptopulse/internal/model"
	"cryptopulse/internal/strategy"
)

// ErrRejected is returned when an order cannot be filled.
var ErrRejected = errors.New("order rejected")

// Executor places orders.
type Executor interface {
	Submit(ctx context.Context, o model.Order) (model.Fill, error)
}

// OrderResult represents the outcome of an order placement.
type OrderResult struct {
	Fill    model.Fill `json:"fill"`
	TraceID string     `json:"trace_id,omitempty"`
	Err     error      `json:"-"`
}

// OrderFromSignal builds a market order of qty for a buy or sell signal.
// Hold signals return false.
func OrderFromSignal(sig strategy.Signal, qty float64) (model.Order, bool) {
	var side model.Side
	switch sig.Decision.Label {
	case strategy.ActionBuy:
		side = model.SideBuy
	case strategy.ActionSell:
		side = model.SideSell
	default:
		return model.Order{}, false
	}
	return model.Order{
		Symbol:    sig.Symbol,
		Side:      side,
		Type:      "market",
		Qty:       qty,
		RefPrice:  sig.Price,
		Reason:    fmt.Sprintf("score=%.2f", sig.Decision.WeightedScore),
		CreatedAt: sig.At,
	}, true
}
