package indicator

import (
	"math"

	"cryptopulse/internal/model"
)

// PressureThreshold is the imbalance beyond which the book casts a vote.
const PressureThreshold = 0.1

// BookPressure returns (bid − ask)/(bid + ask) over the summed quantities of
// each side, in [−1, 1]. An empty book has pressure 0.
func BookPressure(book model.OrderBook) (float64, error) {
	bid, err := sideQty("bids", book.Bids)
	if err != nil {
		return 0, err
	}
	ask, err := sideQty("asks", book.Asks)
	if err != nil {
		return 0, err
	}
	if bid+ask == 0 {
		return 0, nil
	}
	return (bid - ask) / (bid + ask), nil
}

func sideQty(side string, levels []model.Level) (float64, error) {
	var sum float64
	for i, l := range levels {
		if !(l.Price >= 0) || !(l.Qty >= 0) || math.IsInf(l.Price, 0) || math.IsInf(l.Qty, 0) {
			return 0, &MalformedOrderBookError{Side: side, Index: i, Price: l.Price, Qty: l.Qty}
		}
		sum += l.Qty
	}
	return sum, nil
}

// PressureVote is Buy above +PressureThreshold and Sell below −PressureThreshold.
func PressureVote(pressure float64) Vote {
	switch {
	case pressure > PressureThreshold:
		return Buy
	case pressure < -PressureThreshold:
		return Sell
	default:
		return Hold
	}
}
