package execution

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"cryptopulse/internal/model"
	"cryptopulse/internal/strategy"
)

const (
	StatusFilled   = "FILLED"
	StatusRejected = "REJECTED"
)

var tenThousand = decimal.NewFromInt(10000)

// FillHistory is how many fills a PaperExecutor keeps in memory. Older
// fills are only available from the journal.
const FillHistory = 1000

// PaperExecutor simulates market orders at the reference price plus
// slippage. Fills are kept in memory and optionally journaled.
type PaperExecutor struct {
	mu       sync.RWMutex
	fills    []model.Fill // newest last, at most maxFills
	maxFills int
	resultCh chan OrderResult
	journal  *Journal
	log      *slog.Logger

	qty         float64
	slippageBps decimal.Decimal // e.g. 5 = 0.05%

	// OnFill is called after every order, filled or rejected.
	OnFill func(f model.Fill)
}

// NewPaperExecutor creates a paper executor. qty is the order volume used
// for signals; journal may be nil.
func NewPaperExecutor(resultBufferSize int, qty, slippageBps float64, journal *Journal, log *slog.Logger) *PaperExecutor {
	if log == nil {
		log = slog.Default()
	}
	return &PaperExecutor{
		fills:       make([]model.Fill, 0, 256),
		maxFills:    FillHistory,
		resultCh:    make(chan OrderResult, resultBufferSize),
		journal:     journal,
		log:         log,
		qty:         qty,
		slippageBps: decimal.NewFromFloat(slippageBps),
	}
}

// Results returns the channel of order results. Results are dropped when
// nobody drains it.
func (p *PaperExecutor) Results() <-chan OrderResult {
	return p.resultCh
}

// Fills returns a snapshot of the retained fills, oldest first.
func (p *PaperExecutor) Fills() []model.Fill {
	p.mu.RLock()
	defer p.mu.RUnlock()
	cp := make([]model.Fill, len(p.fills))
	copy(cp, p.fills)
	return cp
}

// RecentFills returns the last limit fills, newest first. The journal is
// read when configured so fills survive restarts.
func (p *PaperExecutor) RecentFills(ctx context.Context, limit int) ([]model.Fill, error) {
	if p.journal != nil {
		return p.journal.Fills(ctx, limit)
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	n := len(p.fills)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]model.Fill, 0, n)
	for i := len(p.fills) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, p.fills[i])
	}
	return out, nil
}

// Submit simulates a market order. Buys fill above the reference price and
// sells below it by the configured slippage.
func (p *PaperExecutor) Submit(ctx context.Context, o model.Order) (model.Fill, error) {
	fill := model.Fill{
		OrderID:  "PAPER-" + uuid.NewString(),
		Symbol:   o.Symbol,
		Side:     o.Side,
		Qty:      decimal.NewFromFloat(o.Qty),
		FilledAt: time.Now().UTC(),
	}

	var err error
	switch {
	case o.Side != model.SideBuy && o.Side != model.SideSell:
		err = fmt.Errorf("%w: unknown side %q", ErrRejected, o.Side)
	case o.Qty <= 0:
		err = fmt.Errorf("%w: qty %v must be positive", ErrRejected, o.Qty)
	case o.RefPrice <= 0:
		err = fmt.Errorf("%w: no reference price", ErrRejected)
	}
	if err != nil {
		fill.Status = StatusRejected
		fill.Reason = err.Error()
		p.record(ctx, fill)
		return fill, err
	}

	ref := decimal.NewFromFloat(o.RefPrice)
	slip := ref.Mul(p.slippageBps).Div(tenThousand)
	price := ref.Add(slip)
	if o.Side == model.SideSell {
		price = ref.Sub(slip)
	}

	fill.Price = price
	fill.Notional = price.Mul(fill.Qty)
	fill.Status = StatusFilled
	fill.Reason = o.Reason
	p.record(ctx, fill)

	p.log.Info("paper fill",
		"order_id", fill.OrderID,
		"symbol", fill.Symbol,
		"side", fill.Side,
		"qty", fill.Qty.String(),
		"price", fill.Price.String(),
		"slippage", slip.String(),
	)
	return fill, nil
}

func (p *PaperExecutor) record(ctx context.Context, f model.Fill) {
	p.mu.Lock()
	if len(p.fills) >= p.maxFills {
		n := copy(p.fills, p.fills[len(p.fills)-p.maxFills+1:])
		p.fills = p.fills[:n]
	}
	p.fills = append(p.fills, f)
	p.mu.Unlock()

	if p.journal != nil {
		if err := p.journal.RecordFill(ctx, f); err != nil {
			p.log.Error("journal write failed", "order_id", f.OrderID, "error", err)
		}
	}
	if p.OnFill != nil {
		p.OnFill(f)
	}
}

// Run consumes signals and places an order for each buy or sell. Blocks
// until ctx is cancelled or signalCh is closed.
func (p *PaperExecutor) Run(ctx context.Context, signalCh <-chan strategy.Signal) {
	for {
		select {
		case <-ctx.Done():
			return
		case sig, ok := <-signalCh:
			if !ok {
				return
			}
			order, ok := OrderFromSignal(sig, p.qty)
			if !ok {
				continue
			}
			fill, err := p.Submit(ctx, order)
			if err != nil {
				p.log.Warn("paper order rejected", "symbol", sig.Symbol, "trace_id", sig.TraceID, "error", err)
			}
			select {
			case p.resultCh <- OrderResult{Fill: fill, TraceID: sig.TraceID, Err: err}:
			default:
			}
		}
	}
}
