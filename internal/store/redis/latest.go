package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	goredis "github.com/go-redis/redis/v8"

	"cryptopulse/internal/strategy"
)

// ErrNotFound is returned when no signal has been published for a symbol.
var ErrNotFound = errors.New("no signal for symbol")

// LatestStore reads published signals back.
type LatestStore struct {
	client *goredis.Client
}

func NewLatestStore(client *goredis.Client) *LatestStore {
	return &LatestStore{client: client}
}

// Latest returns the most recent signal for symbol.
func (s *LatestStore) Latest(ctx context.Context, symbol string) (strategy.Signal, error) {
	data, err := s.client.Get(ctx, LatestKey(symbol)).Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return strategy.Signal{}, ErrNotFound
		}
		return strategy.Signal{}, fmt.Errorf("redis GET %s: %w", LatestKey(symbol), err)
	}
	var sig strategy.Signal
	if err := json.Unmarshal([]byte(data), &sig); err != nil {
		return strategy.Signal{}, fmt.Errorf("unmarshal signal: %w", err)
	}
	return sig, nil
}

// Recent returns up to n signals from the stream, newest first.
func (s *LatestStore) Recent(ctx context.Context, symbol string, n int64) ([]strategy.Signal, error) {
	msgs, err := s.client.XRevRangeN(ctx, StreamKey(symbol), "+", "-", n).Result()
	if err != nil {
		return nil, fmt.Errorf("redis XREVRANGE %s: %w", StreamKey(symbol), err)
	}
	out := make([]strategy.Signal, 0, len(msgs))
	for _, m := range msgs {
		raw, ok := m.Values["data"].(string)
		if !ok {
			continue
		}
		var sig strategy.Signal
		if err := json.Unmarshal([]byte(raw), &sig); err != nil {
			continue
		}
		out = append(out, sig)
	}
	return out, nil
}
