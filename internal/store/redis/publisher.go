// Package redis publishes signals to Redis and reads the latest one back.
//
// Key layout per exchange symbol:
//
//	signal:latest:<sym>   string, latest signal JSON with TTL
//	stream:signal:<sym>   stream, field "data" holds signal JSON
//	pub:signal:<sym>      pub/sub channel, payload is signal JSON
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"cryptopulse/internal/strategy"
)

const (
	defaultStreamMaxLen = 10000
	defaultLatestTTL    = 24 * time.Hour
)

// Config configures the Redis connection.
type Config struct {
	Addr         string // e.g. "localhost:6379"
	Password     string
	DB           int
	StreamMaxLen int64 // approximate stream cap
}

func LatestKey(symbol string) string  { return "signal:latest:" + symbol }
func StreamKey(symbol string) string  { return "stream:signal:" + symbol }
func ChannelKey(symbol string) string { return "pub:signal:" + symbol }

// Publisher writes signals to Redis.
type Publisher struct {
	client *goredis.Client
	maxLen int64
	ttl    time.Duration
	log    *slog.Logger

	// OnWrite is called with the latency of every pipeline round trip.
	OnWrite func(time.Duration)
}

// Client returns the underlying Redis client for health checks.
func (p *Publisher) Client() *goredis.Client { return p.client }

// Dial creates a client and pings the server.
func Dial(cfg Config) (*goredis.Client, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	slog.Info("redis connected", "component", "redis", "addr", cfg.Addr)
	return client, nil
}

// NewPublisher wraps an existing client.
func NewPublisher(client *goredis.Client, streamMaxLen int64) *Publisher {
	if streamMaxLen <= 0 {
		streamMaxLen = defaultStreamMaxLen
	}
	return &Publisher{
		client: client,
		maxLen: streamMaxLen,
		ttl:    defaultLatestTTL,
		log:    slog.Default().With("component", "redis"),
	}
}

// Publish writes sig with one pipelined SET + XADD + PUBLISH.
func (p *Publisher) Publish(ctx context.Context, sig strategy.Signal) error {
	data, err := json.Marshal(sig)
	if err != nil {
		return fmt.Errorf("marshal signal: %w", err)
	}
	payload := string(data)

	start := time.Now()
	pipe := p.client.Pipeline()
	pipe.Set(ctx, LatestKey(sig.Symbol), payload, p.ttl)
	pipe.XAdd(ctx, &goredis.XAddArgs{
		Stream: StreamKey(sig.Symbol),
		MaxLen: p.maxLen,
		Approx: true,
		Values: map[string]interface{}{"data": payload},
	})
	pipe.Publish(ctx, ChannelKey(sig.Symbol), payload)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis publish %s: %w", sig.Symbol, err)
	}
	if p.OnWrite != nil {
		p.OnWrite(time.Since(start))
	}
	return nil
}

// Close closes the Redis client.
func (p *Publisher) Close() error {
	return p.client.Close()
}

type signalPublisher interface {
	Publish(ctx context.Context, sig strategy.Signal) error
}

// Run publishes signals from sigCh until ctx is cancelled or sigCh closes.
// Errors are logged and do not stop the loop.
func Run(ctx context.Context, pub signalPublisher, sigCh <-chan strategy.Signal) {
	log := slog.Default().With("component", "redis")
	for {
		select {
		case <-ctx.Done():
			return
		case sig, ok := <-sigCh:
			if !ok {
				return
			}
			if err := pub.Publish(ctx, sig); err != nil {
				log.Warn("publish failed", "symbol", sig.Symbol, "trace_id", sig.TraceID, "error", err)
			}
		}
	}
}
