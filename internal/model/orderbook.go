package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// Level is one price level of an order book. It encodes as a
// [price, quantity] pair.
type Level struct {
	Price float64
	Qty   float64
}

func (l Level) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]float64{l.Price, l.Qty})
}

func (l *Level) UnmarshalJSON(b []byte) error {
	var pair []float64
	if err := json.Unmarshal(b, &pair); err != nil {
		return err
	}
	if len(pair) != 2 {
		return fmt.Errorf("order book level: want [price, qty], got %d values", len(pair))
	}
	l.Price, l.Qty = pair[0], pair[1]
	return nil
}

// OrderBook is a partial depth snapshot. A nil *OrderBook means no book
// was available; an OrderBook with empty sides is a genuine empty book.
type OrderBook struct {
	Symbol string    `json:"symbol,omitempty"`
	Bids   []Level   `json:"bids"`
	Asks   []Level   `json:"asks"`
	TS     time.Time `json:"ts,omitempty"`
}
