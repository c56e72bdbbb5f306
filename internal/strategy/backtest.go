package strategy

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// Backtest evaluates every prefix prices[:i+1] for i from WarmupIndex to the
// end, without an order book, and returns the labels in order. A series no
// longer than WarmupIndex yields an empty result. Each step is a full
// recompute; this is the reference the faster variants are checked against.
func (e *Engine) Backtest(prices []float64) ([]Action, error) {
	return e.BacktestContext(context.Background(), prices)
}

// BacktestContext is Backtest that stops with ctx.Err() once ctx is done.
// The check runs before every step.
func (e *Engine) BacktestContext(ctx context.Context, prices []float64) ([]Action, error) {
	start := e.params.WarmupIndex()
	if len(prices) <= start {
		return []Action{}, nil
	}
	out := make([]Action, 0, len(prices)-start)
	for i := start; i < len(prices); i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		d, err := e.GenerateSignal(prices[:i+1], nil)
		if err != nil {
			return nil, fmt.Errorf("backtest step %d: %w", i, err)
		}
		out = append(out, d.Label)
	}
	return out, nil
}

// BacktestParallel is Backtest with the recomputes spread over workers
// goroutines. workers <= 0 means one. Output order matches Backtest.
func (e *Engine) BacktestParallel(ctx context.Context, prices []float64, workers int) ([]Action, error) {
	start := e.params.WarmupIndex()
	if len(prices) <= start {
		return []Action{}, nil
	}
	if workers <= 0 {
		workers = 1
	}
	out := make([]Action, len(prices)-start)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := start; i < len(prices); i++ {
		i := i
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			d, err := e.GenerateSignal(prices[:i+1], nil)
			if err != nil {
				return fmt.Errorf("backtest step %d: %w", i, err)
			}
			out[i-start] = d.Label
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// BacktestStream produces the same labels as Backtest in a single pass.
func (e *Engine) BacktestStream(prices []float64) ([]Action, error) {
	start := e.params.WarmupIndex()
	if len(prices) <= start {
		return []Action{}, nil
	}
	s := e.NewStream()
	out := make([]Action, 0, len(prices)-start)
	for i, p := range prices {
		d, ok, err := s.Push(p, nil)
		if err != nil {
			return nil, fmt.Errorf("backtest step %d: %w", i, err)
		}
		if i < start {
			continue
		}
		if !ok {
			return nil, fmt.Errorf("backtest step %d: stream not warmed up", i)
		}
		out = append(out, d.Label)
	}
	return out, nil
}

// BacktestSummary counts labels.
type BacktestSummary struct {
	Steps int `json:"steps"`
	Buys  int `json:"buys"`
	Sells int `json:"sells"`
	Holds int `json:"holds"`
}

// Summarize counts each label in labels.
func Summarize(labels []Action) BacktestSummary {
	s := BacktestSummary{Steps: len(labels)}
	for _, l := range labels {
		switch l {
		case ActionBuy:
			s.Buys++
		case ActionSell:
			s.Sells++
		default:
			s.Holds++
		}
	}
	return s
}
