package bot

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"golang.org/x/sync/errgroup"

	"cryptopulse/config"
	"cryptopulse/internal/api"
	"cryptopulse/internal/bus"
	"cryptopulse/internal/execution"
	"cryptopulse/internal/marketdata/binance"
	"cryptopulse/internal/metrics"
	"cryptopulse/internal/model"
	"cryptopulse/internal/notification"
	redisstore "cryptopulse/internal/store/redis"
	sqlitestore "cryptopulse/internal/store/sqlite"
	"cryptopulse/internal/strategy"
)

// Service wires the bot to its sinks and manages their lifecycle.
type Service struct {
	cfg *config.Config
	log *slog.Logger

	bot     *Bot
	signals chan strategy.Signal
	fanout  *bus.FanOut[strategy.Signal]

	prom       *metrics.Metrics
	health     *metrics.HealthStatus
	metricsSrv *metrics.Server
	apiSrv     *http.Server
	hub        *api.Hub

	paper     *execution.PaperExecutor
	notifier  notification.Notifier
	sqlStore  *sqlitestore.Store
	rdb       *goredis.Client
	publisher *redisstore.BufferedPublisher
}

// New builds a Service from cfg. Redis and SQLite failures are logged and
// the service continues without them.
func New(ctx context.Context, cfg *config.Config, log *slog.Logger) (*Service, error) {
	engine, err := cfg.NewEngine()
	if err != nil {
		return nil, fmt.Errorf("strategy: %w", err)
	}
	symbol := cfg.Symbol()

	svc := &Service{
		cfg:     cfg,
		log:     log.With("component", "service"),
		signals: make(chan strategy.Signal, 64),
		fanout:  bus.New[strategy.Signal](256),
		prom:    metrics.NewMetrics(nil),
	}
	svc.fanout.OnDrop = func(name string) { svc.prom.FanoutDropsTotal.WithLabelValues(name).Inc() }

	// ---- Stores ----
	var klineStore model.KlineStore
	if cfg.SQLite.Enabled {
		if err := os.MkdirAll(filepath.Dir(cfg.SQLite.Path), 0o755); err != nil {
			svc.log.Warn("sqlite directory", "error", err)
		}
		st, err := sqlitestore.Open(cfg.SQLite.Path)
		if err != nil {
			svc.log.Warn("sqlite init failed, continuing without persistence", "error", err)
		} else {
			st.OnCommit = func(d time.Duration) { svc.prom.SQLiteCommitDur.Observe(d.Seconds()) }
			svc.sqlStore = st
			klineStore = st
		}
	}

	var latest api.LatestSource
	if cfg.Redis.Enabled {
		rdb, err := redisstore.Dial(redisstore.Config{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		if err != nil {
			svc.log.Warn("redis init failed, continuing without publishing", "error", err)
		} else {
			svc.rdb = rdb
			pub := redisstore.NewPublisher(rdb, cfg.Redis.StreamMaxLen)
			pub.OnWrite = func(d time.Duration) { svc.prom.RedisWriteDur.Observe(d.Seconds()) }

			cb := redisstore.NewCircuitBreaker(5, 10*time.Second)
			cb.OnStateChange = func(from, to redisstore.State) {
				svc.prom.RedisCircuitBreakerState.Set(float64(to))
				if to == redisstore.StateOpen {
					svc.prom.RedisCircuitBreakerTrips.Inc()
				}
				svc.log.Warn("redis circuit breaker", "from", from.String(), "to", to.String())
			}
			svc.publisher = redisstore.NewBufferedPublisher(ctx, pub, cb, 10000)
			svc.publisher.OnBuffer = svc.prom.RedisBufferedWrites.Inc
			latest = redisstore.NewLatestStore(rdb)
		}
	}

	svc.health = metrics.NewHealthStatus(symbol, svc.rdb != nil, svc.sqlStore != nil)
	if svc.rdb != nil {
		svc.health.SetRedisConnected(true)
	}
	if svc.sqlStore != nil {
		svc.health.SetSQLiteOK(true)
	}
	svc.metricsSrv = metrics.NewServer(cfg.App.MetricsAddr, svc.health, nil)

	// ---- Execution ----
	var journal *execution.Journal
	if cfg.Paper.Journal && svc.sqlStore != nil {
		journal, err = execution.NewJournalDB(svc.sqlStore.DB())
		if err != nil {
			svc.log.Warn("fill journal init failed", "error", err)
			journal = nil
		}
	}
	svc.paper = execution.NewPaperExecutor(64, cfg.Paper.OrderVolume, cfg.Paper.SlippageBps, journal, log)
	svc.paper.OnFill = func(f model.Fill) {
		svc.prom.PaperOrdersTotal.WithLabelValues(string(f.Side), f.Status).Inc()
	}

	// ---- Notifications ----
	notifiers := notification.Multi{notification.NewLogNotifier(log)}
	if cfg.Notify.WebhookURL != "" {
		notifiers = append(notifiers, notification.NewWebhookNotifier(cfg.Notify.WebhookURL))
	}
	if cfg.Notify.TelegramBotToken != "" && cfg.Notify.TelegramChatID != "" {
		notifiers = append(notifiers, notification.NewTelegramNotifier(cfg.Notify.TelegramBotToken, cfg.Notify.TelegramChatID))
	}
	svc.notifier = notifiers

	// ---- HTTP API ----
	svc.hub = api.NewHub(log)
	svc.hub.OnDrop = func() { svc.prom.FanoutDropsTotal.WithLabelValues("ws_client").Inc() }
	apiOpts := []api.Option{api.WithHub(svc.hub), api.WithFills(svc.paper)}
	if latest != nil {
		apiOpts = append(apiOpts, api.WithLatest(latest))
	}
	if svc.sqlStore != nil {
		apiOpts = append(apiOpts, api.WithHistory(svc.sqlStore))
	}
	svc.apiSrv = &http.Server{
		Addr:              cfg.App.HTTPAddr,
		Handler:           api.NewRouter(api.NewServer(engine, symbol, log, apiOpts...)),
		ReadHeaderTimeout: 5 * time.Second,
	}

	// ---- Market data + loop ----
	md := binance.NewClient(cfg.Exchange.BaseURL, cfg.Exchange.RequestsPerSecond, cfg.Exchange.Timeout)
	svc.bot = &Bot{
		Settings: Settings{
			Symbol:     symbol,
			Interval:   cfg.Exchange.Interval,
			KlineLimit: cfg.Exchange.KlineLimit,
			DepthLimit: cfg.Exchange.DepthLimit,
			SleepTime:  cfg.App.SleepTime,
		},
		Engine:  engine,
		Market:  md,
		Store:   klineStore,
		Metrics: svc.prom,
		Health:  svc.health,
		Log:     log.With("component", "bot"),
		Out:     svc.signals,
	}
	if cfg.App.Mode == "ws" {
		stream, err := binance.NewStream(binance.StreamConfig{
			BaseURL:     cfg.Exchange.StreamURL,
			Symbol:      symbol,
			Interval:    cfg.Exchange.Interval,
			DepthLevels: cfg.Exchange.DepthLimit,
		}, log.With("component", "stream"))
		if err != nil {
			return nil, err
		}
		stream.OnReconnect = svc.prom.WSReconnects.Inc
		svc.bot.Stream = stream
	}

	return svc, nil
}

// Run starts all subsystems and blocks until ctx is cancelled.
func (svc *Service) Run(ctx context.Context) error {
	cfg := svc.cfg
	svc.log.Info("starting signal bot",
		"symbol", svc.bot.Settings.Symbol,
		"interval", svc.bot.Settings.Interval,
		"mode", cfg.App.Mode,
		"sleep", cfg.App.SleepTime,
		"redis", svc.rdb != nil,
		"sqlite", svc.sqlStore != nil,
	)

	svc.metricsSrv.Start()
	var db *sql.DB
	if svc.sqlStore != nil {
		db = svc.sqlStore.DB()
	}
	svc.health.StartLivenessChecker(ctx, svc.rdb, db, 15*time.Second)

	g, gctx := errgroup.WithContext(ctx)

	// Subscribe everything before the fan-out starts.
	paperCh := svc.fanout.Subscribe("paper")
	notifyCh := svc.fanout.Subscribe("notify")
	hubCh := svc.fanout.Subscribe("ws")
	g.Go(func() error { svc.paper.Run(gctx, paperCh); return nil })
	g.Go(func() error {
		notification.Run(gctx, svc.notifier, notifyCh, 10*time.Second, func(error) {
			svc.prom.NotifyFailures.WithLabelValues("alert").Inc()
		})
		return nil
	})
	g.Go(func() error { svc.hub.Run(gctx, hubCh); return nil })
	if svc.publisher != nil {
		ch := svc.fanout.Subscribe("redis")
		g.Go(func() error { redisstore.Run(gctx, svc.publisher, ch); return nil })
	}
	if svc.sqlStore != nil {
		ch := svc.fanout.Subscribe("sqlite")
		g.Go(func() error { svc.sqlStore.Writer.Run(gctx, ch); return nil })
	}
	g.Go(func() error { svc.fanout.Run(gctx, svc.signals); return nil })
	g.Go(func() error { svc.watchBacklog(gctx, 30*time.Second); return nil })

	g.Go(func() error {
		svc.log.Info("api listening", "addr", svc.apiSrv.Addr)
		if err := svc.apiSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("api server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return svc.apiSrv.Shutdown(shutCtx)
	})

	g.Go(func() error {
		if cfg.App.Mode == "ws" {
			return svc.bot.RunStream(gctx)
		}
		return svc.bot.RunPoll(gctx)
	})

	err := g.Wait()
	svc.shutdown()
	return err
}

// watchBacklog warns when a subscriber's queue is at least 80% full.
func (svc *Service) watchBacklog(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, st := range svc.fanout.ChannelStats() {
				if st.Cap > 0 && st.Len*10 >= st.Cap*8 {
					svc.log.Warn("subscriber backlog", "subscriber", st.Name, "len", st.Len, "cap", st.Cap)
				}
			}
		}
	}
}

func (svc *Service) shutdown() {
	svc.log.Info("shutting down")

	shutCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	svc.metricsSrv.Stop(shutCtx)

	if n := svc.publisher; n != nil && n.PendingCount() > 0 {
		svc.log.Warn("dropping buffered signals", "count", n.PendingCount())
	}
	if svc.rdb != nil {
		svc.rdb.Close()
	}
	if svc.sqlStore != nil {
		svc.sqlStore.Close()
	}
	svc.log.Info("shutdown complete")
}
