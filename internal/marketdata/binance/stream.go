package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"cryptopulse/internal/model"
)

// DefaultStreamURL is the production combined-stream endpoint.
const DefaultStreamURL = "wss://stream.binance.com:9443"

// Event is one decoded stream message. Exactly one field is set.
type Event struct {
	Kline *model.Kline
	Book  *model.OrderBook
}

// StreamConfig holds configuration for the market stream.
type StreamConfig struct {
	// BaseURL of the stream server, e.g. "wss://stream.binance.com:9443".
	BaseURL  string
	Symbol   string
	Interval string

	// DepthLevels selects the partial book stream (5, 10 or 20). Zero
	// disables the book stream.
	DepthLevels int

	// ReconnectDelay is the initial delay before reconnection attempts.
	// Defaults to 1 second if zero.
	ReconnectDelay time.Duration

	// MaxReconnectDelay caps the exponential backoff. Defaults to 30s.
	MaxReconnectDelay time.Duration
}

func (c *StreamConfig) defaults() {
	if c.BaseURL == "" {
		c.BaseURL = DefaultStreamURL
	}
	if c.ReconnectDelay == 0 {
		c.ReconnectDelay = time.Second
	}
	if c.MaxReconnectDelay == 0 {
		c.MaxReconnectDelay = 30 * time.Second
	}
}

// partialDepth maps a REST depth limit onto a supported partial stream size.
func partialDepth(limit int) int {
	switch {
	case limit <= 0:
		return 0
	case limit <= 5:
		return 5
	case limit <= 10:
		return 10
	default:
		return 20
	}
}

// URL returns the combined-stream URL for the configured symbol.
func (c StreamConfig) URL() string {
	sym := strings.ToLower(c.Symbol)
	streams := []string{sym + "@kline_" + c.Interval}
	if n := partialDepth(c.DepthLevels); n > 0 {
		streams = append(streams, fmt.Sprintf("%s@depth%d", sym, n))
	}
	return strings.TrimRight(c.BaseURL, "/") + "/stream?streams=" + strings.Join(streams, "/")
}

// Stream consumes kline and partial-depth updates for one symbol.
type Stream struct {
	cfg StreamConfig
	log *slog.Logger

	// Optional hook, called each time a reconnection happens.
	OnReconnect func()
}

// NewStream creates a Stream. Symbol and Interval are required.
func NewStream(cfg StreamConfig, log *slog.Logger) (*Stream, error) {
	cfg.defaults()
	if cfg.Symbol == "" || cfg.Interval == "" {
		return nil, fmt.Errorf("binance stream requires symbol and interval")
	}
	if log == nil {
		log = slog.Default()
	}
	return &Stream{cfg: cfg, log: log}, nil
}

// Start connects and streams events into out. Blocks until ctx is
// cancelled. Reconnects automatically on disconnect.
func (s *Stream) Start(ctx context.Context, out chan<- Event) error {
	url := s.cfg.URL()
	delay := s.cfg.ReconnectDelay

	for {
		if ctx.Err() != nil {
			return nil
		}

		err := s.runOnce(ctx, url, out)
		if err == nil || ctx.Err() != nil {
			return nil
		}

		s.log.Warn("stream disconnected, reconnecting", "error", err, "delay", delay)
		if s.OnReconnect != nil {
			s.OnReconnect()
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(delay):
		}

		delay *= 2
		if delay > s.cfg.MaxReconnectDelay {
			delay = s.cfg.MaxReconnectDelay
		}
	}
}

func (s *Stream) runOnce(ctx context.Context, url string, out chan<- Event) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	s.log.Info("stream connected", "url", url)

	conn.SetReadLimit(1 << 20)
	conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	pingCtx, pingCancel := context.WithCancel(ctx)
	defer pingCancel()
	go func() {
		ticker := time.NewTicker(20 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
					return
				}
			case <-pingCtx.Done():
				conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "shutdown"),
					time.Now().Add(time.Second))
				conn.Close()
				return
			}
		}
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		conn.SetReadDeadline(time.Now().Add(60 * time.Second))

		ev, err := decodeEvent(raw)
		if err != nil {
			s.log.Warn("stream decode failed", "error", err)
			continue
		}
		if ev.Kline == nil && ev.Book == nil {
			continue
		}

		select {
		case out <- ev:
		case <-ctx.Done():
			return nil
		}
	}
}

type envelope struct {
	Stream string          `json:"stream"`
	Data   json.RawMessage `json:"data"`
}

type klinePayload struct {
	Symbol string `json:"s"`
	K      struct {
		OpenTime  int64  `json:"t"`
		CloseTime int64  `json:"T"`
		Interval  string `json:"i"`
		Open      string `json:"o"`
		Close     string `json:"c"`
		High      string `json:"h"`
		Low       string `json:"l"`
		Volume    string `json:"v"`
		Closed    bool   `json:"x"`
	} `json:"k"`
}

// decodeEvent parses one combined-stream frame. Unknown streams decode to
// an empty Event.
func decodeEvent(raw []byte) (Event, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Event{}, err
	}
	sym := strings.ToUpper(strings.SplitN(env.Stream, "@", 2)[0])

	switch {
	case strings.Contains(env.Stream, "@kline_"):
		var p klinePayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			return Event{}, fmt.Errorf("kline payload: %w", err)
		}
		k := &model.Kline{
			Symbol:    p.Symbol,
			Interval:  p.K.Interval,
			OpenTime:  time.UnixMilli(p.K.OpenTime).UTC(),
			CloseTime: time.UnixMilli(p.K.CloseTime).UTC(),
			Closed:    p.K.Closed,
		}
		for _, f := range []struct {
			dst *float64
			src string
		}{{&k.Open, p.K.Open}, {&k.High, p.K.High}, {&k.Low, p.K.Low}, {&k.Close, p.K.Close}, {&k.Volume, p.K.Volume}} {
			v, err := strconv.ParseFloat(f.src, 64)
			if err != nil {
				return Event{}, fmt.Errorf("kline field %q: %w", f.src, err)
			}
			*f.dst = v
		}
		if k.Symbol == "" {
			k.Symbol = sym
		}
		return Event{Kline: k}, nil

	case strings.Contains(env.Stream, "@depth"):
		var d depthResponse
		if err := json.Unmarshal(env.Data, &d); err != nil {
			return Event{}, fmt.Errorf("depth payload: %w", err)
		}
		book, err := d.book(sym)
		if err != nil {
			return Event{}, err
		}
		return Event{Book: book}, nil
	}
	return Event{}, nil
}
