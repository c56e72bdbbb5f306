package strategy

import (
	"cryptopulse/internal/indicator"
	"cryptopulse/internal/model"
	"cryptopulse/internal/risk"
)

// Stream evaluates a growing series one price at a time. After each Push
// its Decision equals GenerateSignal over every price pushed so far, at
// O(window) cost instead of O(len). Not safe for concurrent use.
type Stream struct {
	e    *Engine
	rsi  *indicator.RSI
	macd *indicator.MACD
	bb   *indicator.Bollinger
	rng  *indicator.Range
	atr  *risk.ATR
	n    int
}

// NewStream returns an empty Stream bound to e's parameters.
func (e *Engine) NewStream() *Stream {
	p := e.params
	return &Stream{
		e:    e,
		rsi:  indicator.NewRSI(p.RSIPeriod),
		macd: indicator.NewMACD(p.MACDFast, p.MACDSlow, p.MACDSignal),
		bb:   indicator.NewBollinger(p.BollingerPeriod, p.BollingerStd),
		rng:  indicator.NewRange(),
		atr:  risk.NewATR(),
	}
}

// Len returns the number of prices pushed.
func (s *Stream) Len() int { return s.n }

// Push appends price and, once MinPrices prices have arrived, returns the
// decision with ok=true. An invalid price is rejected without changing
// state. book is used for this evaluation only.
func (s *Stream) Push(price float64, book *model.OrderBook) (d Decision, ok bool, err error) {
	if err := checkPrice(s.n, price); err != nil {
		return Decision{}, false, err
	}
	pressure, err := bookPressure(book)
	if err != nil {
		return Decision{}, false, err
	}

	s.rsi.Update(price)
	s.macd.Update(price)
	s.bb.Update(price)
	s.rng.Update(price)
	s.atr.Update(price)
	s.n++

	if s.n < s.e.params.MinPrices() {
		return Decision{}, false, nil
	}
	return s.e.decide(inputs{
		price:    price,
		rsi:      s.rsi.Value(),
		macdHist: s.macd.Value(),
		bands:    s.bb.Bands(),
		fib:      s.rng.Levels(),
		atr:      s.atr.Value(),
		pressure: pressure,
	}), true, nil
}

// Reset discards all pushed prices.
func (s *Stream) Reset() {
	s.rsi.Reset()
	s.macd.Reset()
	s.bb.Reset()
	s.rng.Reset()
	s.atr.Reset()
	s.n = 0
}
