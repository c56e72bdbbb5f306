package bot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cryptopulse/internal/indicator"
	"cryptopulse/internal/logger"
	"cryptopulse/internal/marketdata/binance"
	"cryptopulse/internal/model"
	"cryptopulse/internal/strategy"
)

// RunStream drives the engine from the WebSocket stream. The engine state is
// seeded from history, then every closed kline is evaluated against the
// most recent book snapshot.
func (b *Bot) RunStream(ctx context.Context) error {
	if b.Stream == nil {
		return errors.New("bot: stream mode requires a stream")
	}
	s := b.Settings
	log := b.logger()

	st := b.Engine.NewStream()
	if err := b.seed(ctx, st); err != nil {
		return err
	}

	events := make(chan binance.Event, 64)
	streamErr := make(chan error, 1)
	go func() { streamErr <- b.Stream.Start(ctx, events) }()

	var book *model.OrderBook
	for {
		select {
		case <-ctx.Done():
			return <-streamErr
		case ev := <-events:
			if ev.Book != nil {
				book = ev.Book
				continue
			}
			if ev.Kline == nil || !ev.Kline.Closed {
				continue
			}
			if b.Metrics != nil {
				b.Metrics.KlinesTotal.Inc()
			}
			if b.Health != nil {
				b.Health.SetFeedOK(true)
			}
			b.saveKlines(ctx, log, []model.Kline{*ev.Kline})

			sig, ok, err := b.step(st, ev.Kline, book)
			if err != nil {
				log.Error("stream evaluation failed", "symbol", s.Symbol, "error", err)
				continue
			}
			if !ok {
				continue
			}
			if err := b.emit(ctx, sig); err != nil {
				return nil
			}
		}
	}
}

// seed pushes historical closes so the first live candle already has a
// full window. A failed fetch starts from an empty state.
func (b *Bot) seed(ctx context.Context, st *strategy.Stream) error {
	s := b.Settings
	ks, err := b.Market.Klines(ctx, s.Symbol, s.Interval, s.KlineLimit)
	if err != nil {
		b.logger().Warn("history fetch failed, warming up from the stream", "error", err)
		if b.Metrics != nil {
			b.Metrics.FetchErrors.WithLabelValues("klines").Inc()
		}
		return nil
	}
	for _, k := range ks {
		if !k.Closed {
			continue
		}
		if _, _, err := st.Push(k.Close, nil); err != nil {
			return fmt.Errorf("seed stream: %w", err)
		}
	}
	b.logger().Info("stream seeded", "symbol", s.Symbol, "prices", st.Len())
	return nil
}

func (b *Bot) step(st *strategy.Stream, k *model.Kline, book *model.OrderBook) (strategy.Signal, bool, error) {
	s := b.Settings
	at := k.CloseTime
	traceID := logger.GenerateTraceID(s.Symbol, at)
	log := b.logger().With("trace_id", traceID)

	start := time.Now()
	d, ok, err := st.Push(k.Close, book)
	if err != nil && book != nil && errors.Is(err, indicator.ErrMalformedOrderBook) {
		log.Warn("discarding malformed book", "error", err)
		d, ok, err = st.Push(k.Close, nil)
	}
	if err != nil || !ok {
		return strategy.Signal{}, false, err
	}

	sig := strategy.NewSignal(s.Symbol, s.Interval, d, at)
	sig.TraceID = traceID
	b.observe(sig, time.Since(start))
	logDecision(log, sig)
	return sig, true, nil
}
