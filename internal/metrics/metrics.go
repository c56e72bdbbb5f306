package metrics

import (
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"cryptopulse/internal/strategy"
)

// Metrics holds all Prometheus metrics for the signal bot.
type Metrics struct {
	// Decisions
	DecisionsTotal *prometheus.CounterVec // labels: symbol, label
	WeightedScore  *prometheus.GaugeVec   // labels: symbol
	IndicatorValue *prometheus.GaugeVec   // labels: symbol, indicator
	SignalDur      prometheus.Histogram

	// Market data
	FetchErrors        *prometheus.CounterVec // labels: source
	SimulatedFallbacks prometheus.Counter
	WSReconnects       prometheus.Counter
	KlinesTotal        prometheus.Counter

	// Execution
	PaperOrdersTotal *prometheus.CounterVec // labels: side, status

	// Fan-out backpressure
	FanoutDropsTotal *prometheus.CounterVec // labels: subscriber

	// Sinks
	RedisWriteDur            prometheus.Histogram
	RedisCircuitBreakerState prometheus.Gauge // 0=closed, 1=open, 2=half-open
	RedisCircuitBreakerTrips prometheus.Counter
	RedisBufferedWrites      prometheus.Counter
	SQLiteCommitDur          prometheus.Histogram
	NotifyFailures           *prometheus.CounterVec // labels: notifier

	// Backtests
	BacktestSteps prometheus.Counter
	BacktestDur   *prometheus.HistogramVec // labels: mode
}

// NewMetrics creates the metrics and registers them with reg. A nil reg
// means the default Prometheus registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	latency := []float64{0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05}

	m := &Metrics{
		DecisionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cryptopulse_decisions_total",
			Help: "Decisions produced, by symbol and label",
		}, []string{"symbol", "label"}),
		WeightedScore: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "cryptopulse_weighted_score",
			Help: "Latest weighted vote score in [-1, 1]",
		}, []string{"symbol"}),
		IndicatorValue: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "cryptopulse_indicator_value",
			Help: "Latest indicator readings",
		}, []string{"symbol", "indicator"}),
		SignalDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "cryptopulse_signal_duration_seconds",
			Help:    "Signal generation latency",
			Buckets: latency,
		}),

		FetchErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cryptopulse_fetch_errors_total",
			Help: "Market data fetch failures (klines, depth, stream)",
		}, []string{"source"}),
		SimulatedFallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cryptopulse_simulated_fallbacks_total",
			Help: "Evaluations that used simulated prices because history was unavailable",
		}),
		WSReconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cryptopulse_ws_reconnects_total",
			Help: "Total WebSocket reconnection attempts",
		}),
		KlinesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cryptopulse_klines_total",
			Help: "Closed klines received from the stream",
		}),

		PaperOrdersTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cryptopulse_paper_orders_total",
			Help: "Simulated orders, by side and status",
		}, []string{"side", "status"}),

		FanoutDropsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cryptopulse_fanout_drops_total",
			Help: "Signals dropped because a subscriber channel was full",
		}, []string{"subscriber"}),

		RedisWriteDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "cryptopulse_redis_write_duration_seconds",
			Help:    "Redis publish latency",
			Buckets: prometheus.DefBuckets,
		}),
		RedisCircuitBreakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "cryptopulse_redis_circuit_breaker_state",
			Help: "Redis circuit breaker state (0=closed, 1=open, 2=half-open)",
		}),
		RedisCircuitBreakerTrips: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cryptopulse_redis_circuit_breaker_trips_total",
			Help: "Times the Redis circuit breaker opened",
		}),
		RedisBufferedWrites: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cryptopulse_redis_buffered_writes_total",
			Help: "Signals buffered while the Redis circuit was open",
		}),
		SQLiteCommitDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "cryptopulse_sqlite_commit_duration_seconds",
			Help:    "SQLite write latency",
			Buckets: prometheus.DefBuckets,
		}),
		NotifyFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cryptopulse_notify_failures_total",
			Help: "Alert deliveries that failed, by notifier",
		}, []string{"notifier"}),

		BacktestSteps: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cryptopulse_backtest_steps_total",
			Help: "Backtest steps evaluated",
		}),
		BacktestDur: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "cryptopulse_backtest_duration_seconds",
			Help:    "Backtest wall time by mode",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 10),
		}, []string{"mode"}),
	}

	reg.MustRegister(
		m.DecisionsTotal,
		m.WeightedScore,
		m.IndicatorValue,
		m.SignalDur,
		m.FetchErrors,
		m.SimulatedFallbacks,
		m.WSReconnects,
		m.KlinesTotal,
		m.PaperOrdersTotal,
		m.FanoutDropsTotal,
		m.RedisWriteDur,
		m.RedisCircuitBreakerState,
		m.RedisCircuitBreakerTrips,
		m.RedisBufferedWrites,
		m.SQLiteCommitDur,
		m.NotifyFailures,
		m.BacktestSteps,
		m.BacktestDur,
	)

	return m
}

// ObserveDecision records a decision and its indicator readings.
func (m *Metrics) ObserveDecision(symbol string, d strategy.Decision, took time.Duration) {
	m.DecisionsTotal.WithLabelValues(symbol, string(d.Label)).Inc()
	m.WeightedScore.WithLabelValues(symbol).Set(d.WeightedScore)
	m.SignalDur.Observe(took.Seconds())

	set := func(name string, v float64) {
		m.IndicatorValue.WithLabelValues(symbol, name).Set(v)
	}
	set("rsi", d.RSI)
	set("macd_histogram", d.MACDHistogram)
	set("bollinger_sma", d.Bollinger.SMA)
	set("bollinger_upper", d.Bollinger.Upper)
	set("bollinger_lower", d.Bollinger.Lower)
	set("atr", d.ATR)
	set("stop_loss", d.Risk.StopLoss)
	set("take_profit", d.Risk.TakeProfit)
	if d.OrderBookPressure != nil {
		set("orderbook_pressure", *d.OrderBookPressure)
	}
}

// HealthStatus represents the bot's health.
type HealthStatus struct {
	mu sync.RWMutex

	FeedOK         bool      `json:"feed_ok"`
	LastDecisionAt time.Time `json:"last_decision_at"`
	LastLabel      string    `json:"last_label"`
	RedisConnected bool      `json:"redis_connected"`
	SQLiteOK       bool      `json:"sqlite_ok"`
	Symbol         string    `json:"symbol"`

	// Liveness probe results
	RedisLatencyMs  float64   `json:"redis_latency_ms"`
	SQLiteLatencyMs float64   `json:"sqlite_latency_ms"`
	LastCheckAt     time.Time `json:"last_check_at"`
	StartedAt       time.Time `json:"started_at"`

	redisRequired  bool
	sqliteRequired bool
}

// NewHealthStatus returns a default health status. Redis and SQLite only
// count against health when required.
func NewHealthStatus(symbol string, redisRequired, sqliteRequired bool) *HealthStatus {
	return &HealthStatus{
		Symbol:         symbol,
		StartedAt:      time.Now(),
		redisRequired:  redisRequired,
		sqliteRequired: sqliteRequired,
	}
}

func (h *HealthStatus) SetFeedOK(v bool) {
	h.mu.Lock()
	h.FeedOK = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetDecision(label string, at time.Time) {
	h.mu.Lock()
	h.LastLabel = label
	h.LastDecisionAt = at
	h.mu.Unlock()
}

func (h *HealthStatus) SetRedisConnected(v bool) {
	h.mu.Lock()
	h.RedisConnected = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetSQLiteOK(v bool) {
	h.mu.Lock()
	h.SQLiteOK = v
	h.mu.Unlock()
}

// CheckRedis pings Redis and records latency + connectivity.
func (h *HealthStatus) CheckRedis(ctx context.Context, rdb *goredis.Client) {
	start := time.Now()
	err := rdb.Ping(ctx).Err()
	latency := time.Since(start)

	h.mu.Lock()
	h.RedisConnected = err == nil
	h.RedisLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// CheckSQLite pings the database and records latency + health.
func (h *HealthStatus) CheckSQLite(ctx context.Context, db *sql.DB) {
	start := time.Now()
	err := db.PingContext(ctx)
	latency := time.Since(start)

	h.mu.Lock()
	h.SQLiteOK = err == nil
	h.SQLiteLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// StartLivenessChecker runs periodic dependency checks. Nil clients are
// skipped.
func (h *HealthStatus) StartLivenessChecker(ctx context.Context, rdb *goredis.Client, sqlDB *sql.DB, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
				if rdb != nil {
					h.CheckRedis(probeCtx, rdb)
				}
				if sqlDB != nil {
					h.CheckSQLite(probeCtx, sqlDB)
				}
				cancel()
			}
		}
	}()
}

// ServeHTTP handles the /healthz endpoint.
func (h *HealthStatus) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	overallStatus := "healthy"
	httpCode := http.StatusOK
	if !h.FeedOK || (h.redisRequired && !h.RedisConnected) || (h.sqliteRequired && !h.SQLiteOK) {
		overallStatus = "degraded"
		httpCode = http.StatusServiceUnavailable
	}

	decisionAge := ""
	if !h.LastDecisionAt.IsZero() {
		decisionAge = time.Since(h.LastDecisionAt).Round(time.Millisecond).String()
	}

	status := struct {
		Status          string  `json:"status"`
		Uptime          string  `json:"uptime"`
		Symbol          string  `json:"symbol"`
		FeedOK          bool    `json:"feed_ok"`
		LastLabel       string  `json:"last_label"`
		DecisionAge     string  `json:"decision_age"`
		RedisConnected  bool    `json:"redis_connected"`
		RedisLatencyMs  float64 `json:"redis_latency_ms"`
		SQLiteOK        bool    `json:"sqlite_ok"`
		SQLiteLatencyMs float64 `json:"sqlite_latency_ms"`
	}{
		Status:          overallStatus,
		Uptime:          time.Since(h.StartedAt).Round(time.Second).String(),
		Symbol:          h.Symbol,
		FeedOK:          h.FeedOK,
		LastLabel:       h.LastLabel,
		DecisionAge:     decisionAge,
		RedisConnected:  h.RedisConnected,
		RedisLatencyMs:  h.RedisLatencyMs,
		SQLiteOK:        h.SQLiteOK,
		SQLiteLatencyMs: h.SQLiteLatencyMs,
	}

	w.Header().Set("Content-Type", "application/json")
	if httpCode != http.StatusOK {
		w.WriteHeader(httpCode)
	}
	json.NewEncoder(w).Encode(status)
}

// Server runs an HTTP server exposing /metrics and /healthz.
type Server struct {
	addr string
	srv  *http.Server
}

// NewServer creates a metrics and health server. gatherer nil means the
// default registry.
func NewServer(addr string, health *HealthStatus, gatherer prometheus.Gatherer) *Server {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", health.ServeHTTP)

	return &Server{
		addr: addr,
		srv: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
}

// Handler exposes the mux for tests and embedding.
func (s *Server) Handler() http.Handler { return s.srv.Handler }

// Start launches the HTTP server in a goroutine.
func (s *Server) Start() {
	go func() {
		slog.Info("metrics server listening", "component", "metrics", "addr", s.addr)
		if err := s.srv.ListenAndServe(); err != http.ErrServerClosed {
			slog.Error("metrics server error", "component", "metrics", "error", err)
		}
	}()
}

// Stop gracefully shuts down the metrics server.
func (s *Server) Stop(ctx context.Context) {
	s.srv.Shutdown(ctx)
}
