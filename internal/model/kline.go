package model

import (
	"strings"
	"time"
)

// Kline is one exchange candlestick. Prices are quote-currency floats as
// returned by the exchange.
type Kline struct {
	Symbol    string    `json:"symbol"`
	Interval  string    `json:"interval"`
	OpenTime  time.Time `json:"open_time"`
	CloseTime time.Time `json:"close_time"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
	Closed    bool      `json:"closed"` // false while the candle is still forming
}

// Closes extracts closing prices in input order.
func Closes(ks []Kline) []float64 {
	out := make([]float64, len(ks))
	for i := range ks {
		out[i] = ks[i].Close
	}
	return out
}

// ExchangeSymbol turns a display pair like "BTC/USDT" into the exchange
// form "BTCUSDT".
func ExchangeSymbol(pair string) string {
	return strings.ToUpper(strings.ReplaceAll(pair, "/", ""))
}
