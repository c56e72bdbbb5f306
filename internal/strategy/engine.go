// Package strategy combines the indicators into a single weighted
// buy/sell/hold decision with risk levels, and replays that decision over
// history.
//
// GenerateSignal is a pure function of its inputs and the Engine's fixed
// parameters. An Engine may be shared by any number of goroutines.
package strategy

import (
	"fmt"
	"math"

	"cryptopulse/internal/indicator"
	"cryptopulse/internal/model"
	"cryptopulse/internal/risk"
)

// Engine turns a price series and an optional order book into a Decision.
type Engine struct {
	params  Params
	weights Weights
	mult    risk.Multipliers
}

// Option customizes an Engine at construction.
type Option func(*Engine)

// WithWeights replaces DefaultWeights.
func WithWeights(w Weights) Option {
	return func(e *Engine) { e.weights = w }
}

// New validates p and the weights and returns an Engine.
func New(p Params, opts ...Option) (*Engine, error) {
	e := &Engine{params: p, weights: DefaultWeights()}
	for _, opt := range opts {
		opt(e)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if err := e.weights.Validate(); err != nil {
		return nil, err
	}
	e.mult = p.multipliers()
	return e, nil
}

func (e *Engine) Params() Params   { return e.params }
func (e *Engine) Weights() Weights { return e.weights }

// GenerateSignal evaluates prices (oldest first) and book. A nil book means
// none was available: the book abstains and OrderBookPressure is nil.
func (e *Engine) GenerateSignal(prices []float64, book *model.OrderBook) (Decision, error) {
	if err := e.checkPrices("generate_signal", prices); err != nil {
		return Decision{}, err
	}
	p := e.params

	rsi, err := indicator.ComputeRSI(prices, p.RSIPeriod)
	if err != nil {
		return Decision{}, err
	}
	macd, err := indicator.ComputeMACD(prices, p.MACDFast, p.MACDSlow, p.MACDSignal)
	if err != nil {
		return Decision{}, err
	}
	bands, err := indicator.ComputeBollinger(prices, p.BollingerPeriod, p.BollingerStd)
	if err != nil {
		return Decision{}, err
	}
	fib, err := indicator.Fibonacci(prices)
	if err != nil {
		return Decision{}, err
	}
	atr, err := risk.ATRProxy(prices)
	if err != nil {
		return Decision{}, err
	}
	pressure, err := bookPressure(book)
	if err != nil {
		return Decision{}, err
	}

	return e.decide(inputs{
		price:    prices[len(prices)-1],
		rsi:      rsi[len(rsi)-1],
		macdHist: macd.Histogram[len(macd.Histogram)-1],
		bands:    bands,
		fib:      fib,
		atr:      atr,
		pressure: pressure,
	}), nil
}

// inputs are the latest indicator readings a Decision is built from.
type inputs struct {
	price    float64
	rsi      float64
	macdHist float64
	bands    indicator.Bands
	fib      indicator.FibLevels
	atr      float64
	pressure *float64
}

// decide is shared by GenerateSignal and Stream so both produce the same
// Decision from the same readings.
func (e *Engine) decide(in inputs) Decision {
	p := e.params
	votes := Votes{
		RSI:       indicator.RSIVote(in.rsi, p.RSIOversold, p.RSIOverbought),
		MACD:      indicator.MACDVote(in.macdHist),
		OrderBook: indicator.Hold,
		Bollinger: indicator.BollingerVote(in.price, in.bands),
	}
	if in.pressure != nil {
		votes.OrderBook = indicator.PressureVote(*in.pressure)
	}
	score := e.weights.Score(votes)
	return Decision{
		Label:             Classify(score),
		WeightedScore:     score,
		RSI:               in.rsi,
		MACDHistogram:     in.macdHist,
		OrderBookPressure: in.pressure,
		Bollinger:         in.bands,
		ATR:               in.atr,
		Risk:              e.mult.Compute(in.price, in.atr),
		FibonacciLevels:   in.fib,
		Price:             in.price,
		Votes:             votes,
	}
}

func bookPressure(book *model.OrderBook) (*float64, error) {
	if book == nil {
		return nil, nil
	}
	v, err := indicator.BookPressure(*book)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func (e *Engine) checkPrices(op string, prices []float64) error {
	if need := e.params.MinPrices(); len(prices) < need {
		return &indicator.InsufficientDataError{Op: op, Need: need, Got: len(prices)}
	}
	for i, p := range prices {
		if err := checkPrice(i, p); err != nil {
			return err
		}
	}
	return nil
}

func checkPrice(i int, p float64) error {
	if !(p > 0) || math.IsInf(p, 0) {
		return &indicator.InvalidParameterError{Name: fmt.Sprintf("prices[%d]", i), Value: p, Reason: "must be positive and finite"}
	}
	return nil
}
