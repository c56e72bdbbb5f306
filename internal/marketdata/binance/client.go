// Package binance reads public market data from the Binance spot API.
package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"cryptopulse/internal/model"
)

// DefaultBaseURL is the production spot REST endpoint.
const DefaultBaseURL = "https://api.binance.com"

// StatusError is returned for non-200 responses.
type StatusError struct {
	Endpoint string
	Code     int
	Body     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("binance %s: status %d: %s", e.Endpoint, e.Code, e.Body)
}

// Client wraps REST access to Binance. Requests share one rate limiter.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client

	limiter *rate.Limiter
}

// NewClient builds a REST client limited to rps requests per second.
func NewClient(baseURL string, rps float64, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if rps <= 0 {
		rps = 10
	}
	burst := int(rps)
	if burst < 1 {
		burst = 1
	}
	return &Client{
		BaseURL:    baseURL,
		HTTPClient: &http.Client{Timeout: timeout},
		limiter:    rate.NewLimiter(rate.Limit(rps), burst),
	}
}

// Klines fetches the most recent candles, oldest first. The last candle is
// usually still forming and is reported with Closed=false.
func (c *Client) Klines(ctx context.Context, symbol, interval string, limit int) ([]model.Kline, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("interval", interval)
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}

	var raw [][]any
	if err := c.get(ctx, "/api/v3/klines", params, &raw); err != nil {
		return nil, err
	}

	now := time.Now()
	klines := make([]model.Kline, 0, len(raw))
	for _, item := range raw {
		// open time, o, h, l, c, v, close time, ...
		if len(item) < 7 {
			continue
		}
		closeTime := time.UnixMilli(toInt64(item[6])).UTC()
		klines = append(klines, model.Kline{
			Symbol:    symbol,
			Interval:  interval,
			OpenTime:  time.UnixMilli(toInt64(item[0])).UTC(),
			CloseTime: closeTime,
			Open:      toFloat(item[1]),
			High:      toFloat(item[2]),
			Low:       toFloat(item[3]),
			Close:     toFloat(item[4]),
			Volume:    toFloat(item[5]),
			Closed:    closeTime.Before(now),
		})
	}
	return klines, nil
}

// Closes returns the closing prices of the most recent candles.
func (c *Client) Closes(ctx context.Context, symbol, interval string, limit int) ([]float64, error) {
	ks, err := c.Klines(ctx, symbol, interval, limit)
	if err != nil {
		return nil, err
	}
	return model.Closes(ks), nil
}

type depthResponse struct {
	LastUpdateID int64       `json:"lastUpdateId"`
	Bids         [][2]string `json:"bids"`
	Asks         [][2]string `json:"asks"`
}

func (d depthResponse) book(symbol string) (*model.OrderBook, error) {
	bids, err := parseLevels(d.Bids)
	if err != nil {
		return nil, fmt.Errorf("binance depth bids: %w", err)
	}
	asks, err := parseLevels(d.Asks)
	if err != nil {
		return nil, fmt.Errorf("binance depth asks: %w", err)
	}
	return &model.OrderBook{
		Symbol: symbol,
		Bids:   bids,
		Asks:   asks,
		TS:     time.Now().UTC(),
	}, nil
}

// Depth fetches the top limit levels of each side of the book.
func (c *Client) Depth(ctx context.Context, symbol string, limit int) (*model.OrderBook, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}

	var resp depthResponse
	if err := c.get(ctx, "/api/v3/depth", params, &resp); err != nil {
		return nil, err
	}
	return resp.book(symbol)
}

// Ticker returns the last traded price.
func (c *Client) Ticker(ctx context.Context, symbol string) (float64, error) {
	params := url.Values{}
	params.Set("symbol", symbol)

	var resp struct {
		Symbol string `json:"symbol"`
		Price  string `json:"price"`
	}
	if err := c.get(ctx, "/api/v3/ticker/price", params, &resp); err != nil {
		return 0, err
	}
	p, err := strconv.ParseFloat(resp.Price, 64)
	if err != nil {
		return 0, fmt.Errorf("binance ticker: parse price %q: %w", resp.Price, err)
	}
	return p, nil
}

func (c *Client) get(ctx context.Context, path string, params url.Values, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	u := fmt.Sprintf("%s%s?%s", c.BaseURL, path, params.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}

	res, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		var body struct {
			Code int    `json:"code"`
			Msg  string `json:"msg"`
		}
		_ = json.NewDecoder(res.Body).Decode(&body)
		return &StatusError{Endpoint: path, Code: res.StatusCode, Body: body.Msg}
	}

	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return fmt.Errorf("binance %s: decode: %w", path, err)
	}
	return nil
}

func parseLevels(raw [][2]string) ([]model.Level, error) {
	out := make([]model.Level, 0, len(raw))
	for _, lv := range raw {
		p, err := strconv.ParseFloat(lv[0], 64)
		if err != nil {
			return nil, fmt.Errorf("price %q: %w", lv[0], err)
		}
		q, err := strconv.ParseFloat(lv[1], 64)
		if err != nil {
			return nil, fmt.Errorf("qty %q: %w", lv[1], err)
		}
		out = append(out, model.Level{Price: p, Qty: q})
	}
	return out, nil
}

func toFloat(v any) float64 {
	switch t := v.(type) {
	case string:
		f, _ := strconv.ParseFloat(t, 64)
		return f
	case json.Number:
		f, _ := t.Float64()
		return f
	case float64:
		return t
	default:
		return 0
	}
}

func toInt64(v any) int64 {
	switch t := v.(type) {
	case float64:
		return int64(t)
	case int64:
		return t
	case json.Number:
		i, _ := t.Int64()
		return i
	case string:
		i, _ := strconv.ParseInt(t, 10, 64)
		return i
	default:
		return 0
	}
}
