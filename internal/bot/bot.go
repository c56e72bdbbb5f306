// Package bot runs the signal loop: fetch market data, evaluate, publish.
package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"cryptopulse/internal/logger"
	"cryptopulse/internal/marketdata/binance"
	"cryptopulse/internal/marketdata/sim"
	"cryptopulse/internal/metrics"
	"cryptopulse/internal/model"
	"cryptopulse/internal/strategy"
)

// Settings are the loop parameters.
type Settings struct {
	Symbol     string // exchange form, e.g. BTCUSDT
	Interval   string
	KlineLimit int
	DepthLimit int
	SleepTime  time.Duration
}

// Bot evaluates the engine against live market data. Metrics, Health,
// Store and Stream are optional.
type Bot struct {
	Settings Settings
	Engine   *strategy.Engine
	Market   model.MarketData
	Store    model.KlineStore
	Stream   *binance.Stream
	Metrics  *metrics.Metrics
	Health   *metrics.HealthStatus
	Log      *slog.Logger

	// Out receives every signal. Sends block until ctx is done.
	Out chan<- strategy.Signal

	now func() time.Time
}

func (b *Bot) clock() time.Time {
	if b.now != nil {
		return b.now()
	}
	return time.Now().UTC()
}

func (b *Bot) logger() *slog.Logger {
	if b.Log != nil {
		return b.Log
	}
	return slog.Default()
}

// RunPoll evaluates immediately and then every SleepTime until ctx is done.
// Evaluation errors are logged and the loop continues.
func (b *Bot) RunPoll(ctx context.Context) error {
	ticker := time.NewTicker(b.Settings.SleepTime)
	defer ticker.Stop()

	for {
		if _, err := b.Evaluate(ctx); err != nil && ctx.Err() == nil {
			b.logger().Error("evaluation failed", "symbol", b.Settings.Symbol, "error", err)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// Evaluate runs one poll cycle and emits the resulting signal.
func (b *Bot) Evaluate(ctx context.Context) (strategy.Signal, error) {
	s := b.Settings
	at := b.clock()
	traceID := logger.GenerateTraceID(s.Symbol, at)
	ctx = logger.WithTraceID(ctx, traceID)
	log := b.logger().With(logger.LogWithTrace(ctx)...)

	prices := b.prices(ctx, log)
	book := b.book(ctx, log)

	start := time.Now()
	d, err := b.Engine.GenerateSignal(prices, book)
	if err != nil {
		return strategy.Signal{}, fmt.Errorf("generate signal: %w", err)
	}

	sig := strategy.NewSignal(s.Symbol, s.Interval, d, at)
	sig.TraceID = traceID
	b.observe(sig, time.Since(start))
	logDecision(log, sig)

	if err := b.emit(ctx, sig); err != nil {
		return sig, err
	}
	return sig, nil
}

// prices fetches closing prices, falling back to a simulated series.
func (b *Bot) prices(ctx context.Context, log *slog.Logger) []float64 {
	s := b.Settings
	ks, err := b.Market.Klines(ctx, s.Symbol, s.Interval, s.KlineLimit)
	if err == nil && len(ks) > 0 {
		b.saveKlines(ctx, log, ks)
		if b.Health != nil {
			b.Health.SetFeedOK(true)
		}
		return model.Closes(ks)
	}
	if err == nil {
		err = errors.New("empty kline response")
	}

	log.Warn("kline fetch failed, using simulated prices", "error", err)
	if b.Metrics != nil {
		b.Metrics.FetchErrors.WithLabelValues("klines").Inc()
		b.Metrics.SimulatedFallbacks.Inc()
	}
	if b.Health != nil {
		b.Health.SetFeedOK(false)
	}
	return sim.Fallback(s.KlineLimit)
}

// book fetches depth; a failure yields no book rather than an error.
func (b *Bot) book(ctx context.Context, log *slog.Logger) *model.OrderBook {
	s := b.Settings
	book, err := b.Market.Depth(ctx, s.Symbol, s.DepthLimit)
	if err != nil {
		log.Warn("depth fetch failed, evaluating without order book", "error", err)
		if b.Metrics != nil {
			b.Metrics.FetchErrors.WithLabelValues("depth").Inc()
		}
		return nil
	}
	return book
}

func (b *Bot) saveKlines(ctx context.Context, log *slog.Logger, ks []model.Kline) {
	if b.Store == nil {
		return
	}
	closed := make([]model.Kline, 0, len(ks))
	for _, k := range ks {
		if k.Closed {
			closed = append(closed, k)
		}
	}
	if err := b.Store.SaveKlines(ctx, closed); err != nil {
		log.Warn("kline store write failed", "error", err)
	}
}

func (b *Bot) observe(sig strategy.Signal, took time.Duration) {
	if b.Metrics != nil {
		b.Metrics.ObserveDecision(sig.Symbol, sig.Decision, took)
	}
	if b.Health != nil {
		b.Health.SetDecision(string(sig.Decision.Label), sig.At)
	}
}

func (b *Bot) emit(ctx context.Context, sig strategy.Signal) error {
	if b.Out == nil {
		return nil
	}
	select {
	case b.Out <- sig:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func logDecision(log *slog.Logger, sig strategy.Signal) {
	d := sig.Decision
	attrs := []any{
		"symbol", sig.Symbol,
		"label", d.Label,
		"score", d.WeightedScore,
		"price", sig.Price,
		"rsi", d.RSI,
		"macd_histogram", d.MACDHistogram,
		"atr", d.ATR,
		"stop_loss", d.Risk.StopLoss,
		"take_profit", d.Risk.TakeProfit,
	}
	if d.OrderBookPressure != nil {
		attrs = append(attrs, "orderbook_pressure", *d.OrderBookPressure)
	}
	log.Info("decision", attrs...)
}
