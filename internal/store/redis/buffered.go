package redis

import (
	"context"
	"log/slog"
	"sync"

	"cryptopulse/internal/strategy"
)

// BufferedPublisher sends signals through a circuit breaker. While the
// breaker is open signals are held in memory (oldest dropped past maxBuf)
// and replayed once it closes.
type BufferedPublisher struct {
	pub signalPublisher
	cb  *CircuitBreaker
	ctx context.Context
	log *slog.Logger

	mu     sync.Mutex
	buffer []strategy.Signal
	maxBuf int

	OnBuffer func()          // a signal was buffered
	OnFlush  func(count int) // buffered signals were replayed
}

// NewBufferedPublisher wraps pub. ctx bounds background flushes.
func NewBufferedPublisher(ctx context.Context, pub signalPublisher, cb *CircuitBreaker, maxBufferSize int) *BufferedPublisher {
	if maxBufferSize <= 0 {
		maxBufferSize = 10000
	}
	bp := &BufferedPublisher{
		pub:    pub,
		cb:     cb,
		ctx:    ctx,
		log:    slog.Default().With("component", "redis"),
		buffer: make([]strategy.Signal, 0, 64),
		maxBuf: maxBufferSize,
	}

	prev := cb.OnStateChange
	cb.OnStateChange = func(from, to State) {
		if prev != nil {
			prev(from, to)
		}
		if to == StateClosed {
			go bp.flush()
		}
	}
	return bp
}

// Publish sends sig through the breaker. A signal rejected by an open
// breaker is buffered and nil is returned.
func (bp *BufferedPublisher) Publish(ctx context.Context, sig strategy.Signal) error {
	err := bp.cb.Execute(func() error {
		return bp.pub.Publish(ctx, sig)
	})
	if err == ErrCircuitOpen {
		bp.bufferSignal(sig)
		return nil
	}
	return err
}

func (bp *BufferedPublisher) bufferSignal(sig strategy.Signal) {
	bp.mu.Lock()
	defer bp.mu.Unlock()

	if len(bp.buffer) >= bp.maxBuf {
		bp.buffer = bp.buffer[1:]
	}
	bp.buffer = append(bp.buffer, sig)

	if bp.OnBuffer != nil {
		bp.OnBuffer()
	}
}

func (bp *BufferedPublisher) flush() {
	bp.mu.Lock()
	if len(bp.buffer) == 0 {
		bp.mu.Unlock()
		return
	}
	toFlush := bp.buffer
	bp.buffer = make([]strategy.Signal, 0, 64)
	bp.mu.Unlock()

	flushed := 0
	for _, sig := range toFlush {
		if err := bp.pub.Publish(bp.ctx, sig); err != nil {
			bp.log.Warn("replay failed", "symbol", sig.Symbol, "error", err)
			continue
		}
		flushed++
	}

	bp.log.Info("flushed buffered signals", "count", flushed)
	if bp.OnFlush != nil {
		bp.OnFlush(flushed)
	}
}

// PendingCount returns the number of buffered signals.
func (bp *BufferedPublisher) PendingCount() int {
	bp.mu.Lock()
	defer bp.mu.Unlock()
	return len(bp.buffer)
}
