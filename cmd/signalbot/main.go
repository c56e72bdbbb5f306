// cmd/signalbot runs the live signal loop with its sinks: paper execution,
// Redis, SQLite, notifications and the HTTP API.
//
// Usage:
//
//	go run ./cmd/signalbot --config=config.yaml
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"cryptopulse/config"
	"cryptopulse/internal/bot"
	"cryptopulse/internal/logger"
)

func main() {
	cfgPath := flag.String("config", "config.yaml", "Path to YAML or JSON config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		slog.Error("config load failed", "error", err)
		os.Exit(1)
	}
	log := logger.Init(cfg.App.Name, logger.ParseLevel(cfg.App.LogLevel), cfg.App.LogFormat)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		s := <-sigCh
		log.Info("signal received", "signal", s.String())
		cancel()
	}()

	svc, err := bot.New(ctx, cfg, log)
	if err != nil {
		log.Error("init failed", "error", err)
		os.Exit(1)
	}
	if err := svc.Run(ctx); err != nil {
		log.Error("fatal", "error", err)
		os.Exit(1)
	}
}
