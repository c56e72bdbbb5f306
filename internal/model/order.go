package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Side is the direction of an order.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Order is a market order request. Only market orders are simulated.
type Order struct {
	Symbol    string    `json:"symbol"`
	Side      Side      `json:"side"`
	Type      string    `json:"type"` // "market"
	Qty       float64   `json:"qty"`
	RefPrice  float64   `json:"ref_price"` // last known price used for the simulated fill
	Reason    string    `json:"reason,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Fill is the result of a simulated execution.
type Fill struct {
	OrderID  string          `json:"order_id"`
	Symbol   string          `json:"symbol"`
	Side     Side            `json:"side"`
	Qty      decimal.Decimal `json:"qty"`
	Price    decimal.Decimal `json:"price"`
	Notional decimal.Decimal `json:"notional"`
	Status   string          `json:"status"` // FILLED, REJECTED
	Reason   string          `json:"reason,omitempty"`
	FilledAt time.Time       `json:"filled_at"`
}
