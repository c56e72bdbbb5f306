package redis

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"cryptopulse/internal/strategy"
)

type fakePublisher struct {
	mu   sync.Mutex
	fail bool
	got  []string
}

func (f *fakePublisher) Publish(_ context.Context, sig strategy.Signal) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errors.New("connection refused")
	}
	f.got = append(f.got, sig.TraceID)
	return nil
}

func (f *fakePublisher) setFail(v bool) {
	f.mu.Lock()
	f.fail = v
	f.mu.Unlock()
}

func (f *fakePublisher) published() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.got...)
}

func TestBufferedPublisher_BuffersWhileOpenAndFlushes(t *testing.T) {
	fake := &fakePublisher{fail: true}
	cb, clk := newTestBreaker(1)

	flushed := make(chan int, 1)
	bp := NewBufferedPublisher(context.Background(), fake, cb, 2)
	bp.OnFlush = func(n int) { flushed <- n }

	ctx := context.Background()
	if err := bp.Publish(ctx, strategy.Signal{TraceID: "a"}); err == nil {
		t.Fatal("first failure should surface")
	}
	for _, id := range []string{"b", "c", "d"} {
		if err := bp.Publish(ctx, strategy.Signal{TraceID: id}); err != nil {
			t.Fatalf("buffered publish returned %v", err)
		}
	}
	if n := bp.PendingCount(); n != 2 {
		t.Fatalf("pending = %d, want 2 (oldest dropped)", n)
	}

	fake.setFail(false)
	clk.advance(11 * time.Second)
	if err := bp.Publish(ctx, strategy.Signal{TraceID: "e"}); err != nil {
		t.Fatalf("probe publish: %v", err)
	}

	select {
	case n := <-flushed:
		if n != 2 {
			t.Errorf("flushed %d, want 2", n)
		}
	case <-time.After(time.Second):
		t.Fatal("buffer was not flushed")
	}

	got := fake.published()
	want := []string{"e", "c", "d"}
	if len(got) != len(want) {
		t.Fatalf("published = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("published = %v, want %v", got, want)
			break
		}
	}
	if bp.PendingCount() != 0 {
		t.Errorf("pending = %d after flush", bp.PendingCount())
	}
}

func TestKeys(t *testing.T) {
	if LatestKey("BTCUSDT") != "signal:latest:BTCUSDT" ||
		StreamKey("BTCUSDT") != "stream:signal:BTCUSDT" ||
		ChannelKey("BTCUSDT") != "pub:signal:BTCUSDT" {
		t.Error("unexpected key layout")
	}
}

func TestRun_ContinuesAfterErrors(t *testing.T) {
	fake := &fakePublisher{fail: true}
	ch := make(chan strategy.Signal, 2)
	ch <- strategy.Signal{TraceID: "x"}
	ch <- strategy.Signal{TraceID: "y"}
	close(ch)

	Run(context.Background(), fake, ch)
	if len(fake.published()) != 0 {
		t.Error("nothing should be published while failing")
	}
}
