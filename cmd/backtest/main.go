// cmd/backtest replays stored closing prices through the signal engine and
// prints the label tally. With --fetch it first pulls history from the
// exchange into SQLite.
//
// Usage:
//
//	go run ./cmd/backtest --symbol=BTCUSDT --interval=1h --limit=500 --fetch --mode=parallel
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"cryptopulse/config"
	"cryptopulse/internal/logger"
	"cryptopulse/internal/marketdata/binance"
	"cryptopulse/internal/metrics"
	"cryptopulse/internal/model"
	sqlitestore "cryptopulse/internal/store/sqlite"
	"cryptopulse/internal/strategy"
)

func main() {
	cfgPath := flag.String("config", "", "Optional config file for strategy parameters")
	dbPath := flag.String("db", "data/cryptopulse.db", "Path to SQLite database")
	symbol := flag.String("symbol", "", "Exchange symbol (default: config trade pair)")
	interval := flag.String("interval", "", "Kline interval (default: config interval)")
	limit := flag.Int("limit", 500, "Number of most recent closes to replay (0=all)")
	fetch := flag.Bool("fetch", false, "Fetch klines from the exchange before replaying")
	mode := flag.String("mode", "recompute", "Backtest mode: recompute, parallel or stream")
	workers := flag.Int("workers", 4, "Workers for parallel mode")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		slog.Error("config load failed", "error", err)
		os.Exit(1)
	}
	log := logger.Init("backtest", logger.ParseLevel(cfg.App.LogLevel), "text")

	if *symbol == "" {
		*symbol = cfg.Symbol()
	}
	*symbol = model.ExchangeSymbol(*symbol)
	if *interval == "" {
		*interval = cfg.Exchange.Interval
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	if err := os.MkdirAll(filepath.Dir(*dbPath), 0o755); err != nil {
		log.Error("create db directory", "error", err)
		os.Exit(1)
	}
	store, err := sqlitestore.Open(*dbPath)
	if err != nil {
		log.Error("sqlite open failed", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	if *fetch {
		client := binance.NewClient(cfg.Exchange.BaseURL, cfg.Exchange.RequestsPerSecond, cfg.Exchange.Timeout)
		n := *limit
		if n <= 0 || n > 1000 {
			n = 1000
		}
		ks, err := client.Klines(ctx, *symbol, *interval, n)
		if err != nil {
			log.Error("kline fetch failed", "error", err)
			os.Exit(1)
		}
		if err := store.SaveKlines(ctx, closedOnly(ks)); err != nil {
			log.Error("kline store failed", "error", err)
			os.Exit(1)
		}
		log.Info("klines fetched", "symbol", *symbol, "interval", *interval, "count", len(ks))
	}

	prices, err := store.ReadCloses(ctx, *symbol, *interval, *limit)
	if err != nil {
		log.Error("read closes failed", "error", err)
		os.Exit(1)
	}

	engine, err := cfg.NewEngine()
	if err != nil {
		log.Error("engine init failed", "error", err)
		os.Exit(1)
	}

	m := metrics.NewMetrics(nil)
	start := time.Now()
	labels, err := run(ctx, engine, *mode, prices, *workers)
	took := time.Since(start)
	if err != nil {
		log.Error("backtest failed", "mode", *mode, "error", err)
		os.Exit(1)
	}
	m.BacktestDur.WithLabelValues(*mode).Observe(took.Seconds())
	m.BacktestSteps.Add(float64(len(labels)))

	summary := strategy.Summarize(labels)
	id, err := store.SaveBacktest(ctx, sqlitestore.BacktestRun{
		Symbol:   *symbol,
		Interval: *interval,
		Mode:     *mode,
		Prices:   len(prices),
		Summary:  summary,
		Params:   engine.Params(),
		Duration: took,
	})
	if err != nil {
		log.Warn("backtest not recorded", "error", err)
	}

	out := map[string]any{
		"run_id":   id,
		"symbol":   *symbol,
		"interval": *interval,
		"mode":     *mode,
		"prices":   len(prices),
		"took":     took.String(),
		"summary":  summary,
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, e *strategy.Engine, mode string, prices []float64, workers int) ([]strategy.Action, error) {
	switch mode {
	case "recompute":
		return e.BacktestContext(ctx, prices)
	case "parallel":
		return e.BacktestParallel(ctx, prices, workers)
	case "stream":
		return e.BacktestStream(prices)
	default:
		return nil, fmt.Errorf("unknown mode %q", mode)
	}
}

func closedOnly(ks []model.Kline) []model.Kline {
	out := ks[:0]
	for _, k := range ks {
		if k.Closed {
			out = append(out, k)
		}
	}
	return out
}
