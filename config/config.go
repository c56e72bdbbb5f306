// Package config loads bot settings from an optional YAML (or legacy flat
// JSON) file, a .env file and environment variables, in that order of
// increasing precedence.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"cryptopulse/internal/indicator"
	"cryptopulse/internal/model"
	"cryptopulse/internal/strategy"
)

// Config holds all application configuration.
type Config struct {
	App      App      `yaml:"app"`
	Exchange Exchange `yaml:"exchange"`
	Strategy Strategy `yaml:"strategy"`
	Paper    Paper    `yaml:"paper"`
	Redis    Redis    `yaml:"redis"`
	SQLite   SQLite   `yaml:"sqlite"`
	Notify   Notify   `yaml:"notify"`
}

// App holds process-wide settings.
type App struct {
	Name        string        `yaml:"name" default:"cryptopulse"`
	Mode        string        `yaml:"mode" default:"poll" validate:"oneof=poll ws"`
	SleepTime   time.Duration `yaml:"sleep_time" default:"10s" validate:"gt=0"`
	LogLevel    string        `yaml:"log_level" default:"info" validate:"oneof=debug info warn error"`
	LogFormat   string        `yaml:"log_format" default:"json" validate:"oneof=json text"`
	MetricsAddr string        `yaml:"metrics_addr" default:":9090"`
	HTTPAddr    string        `yaml:"http_addr" default:":8080"`
}

// Exchange describes where market data comes from.
type Exchange struct {
	Name              string        `yaml:"name" default:"binance" validate:"oneof=binance"`
	TradePair         string        `yaml:"trade_pair" default:"BTC/USDT" validate:"required"`
	BaseURL           string        `yaml:"base_url" default:"https://api.binance.com" validate:"url"`
	StreamURL         string        `yaml:"stream_url" default:"wss://stream.binance.com:9443" validate:"url"`
	Interval          string        `yaml:"interval" default:"1h" validate:"oneof=1m 3m 5m 15m 30m 1h 2h 4h 6h 8h 12h 1d 3d 1w 1M"`
	KlineLimit        int           `yaml:"kline_limit" default:"50" validate:"gt=0,lte=1000"`
	DepthLimit        int           `yaml:"depth_limit" default:"5" validate:"oneof=5 10 20 50 100 500 1000 5000"`
	RequestsPerSecond float64       `yaml:"requests_per_second" default:"10" validate:"gt=0"`
	Timeout           time.Duration `yaml:"timeout" default:"10s" validate:"gt=0"`
}

// Strategy holds indicator parameters. Weights left all zero mean the
// default weight table.
type Strategy struct {
	Name             string  `yaml:"name" default:"extended"`
	RSIPeriod        int     `yaml:"rsi_period" default:"14" validate:"gt=0"`
	RSIOverbought    float64 `yaml:"rsi_overbought" default:"70" validate:"gt=0,lte=100"`
	RSIOversold      float64 `yaml:"rsi_oversold" default:"30" validate:"gte=0,ltfield=RSIOverbought"`
	MACDFast         int     `yaml:"macd_fast" default:"12" validate:"gt=0"`
	MACDSlow         int     `yaml:"macd_slow" default:"26" validate:"gt=0"`
	MACDSignal       int     `yaml:"macd_signal" default:"9" validate:"gt=0"`
	BollingerPeriod  int     `yaml:"bollinger_period" default:"20" validate:"gt=0"`
	BollingerStd     float64 `yaml:"bollinger_std" default:"2" validate:"gt=0"`
	RiskMultiplier   float64 `yaml:"risk_multiplier" default:"1.5" validate:"gt=0"`
	RewardMultiplier float64 `yaml:"reward_multiplier" default:"2" validate:"gt=0"`
	Weights          Weights `yaml:"weights"`
}

type Weights struct {
	RSI       float64 `yaml:"rsi" validate:"gte=0"`
	MACD      float64 `yaml:"macd" validate:"gte=0"`
	OrderBook float64 `yaml:"orderbook" validate:"gte=0"`
	Bollinger float64 `yaml:"bollinger" validate:"gte=0"`
}

// Paper configures simulated order placement.
type Paper struct {
	OrderVolume float64 `yaml:"order_volume" default:"0.001" validate:"gt=0"`
	SlippageBps float64 `yaml:"slippage_bps" validate:"gte=0"`
	Journal     bool    `yaml:"journal"` // record fills in SQLite
}

type Redis struct {
	Enabled      bool   `yaml:"enabled"`
	Addr         string `yaml:"addr" default:"localhost:6379"`
	Password     string `yaml:"password"`
	DB           int    `yaml:"db" validate:"gte=0"`
	StreamMaxLen int64  `yaml:"stream_max_len" default:"10000" validate:"gt=0"`
}

type SQLite struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path" default:"data/cryptopulse.db"`
}

// Notify configures alert sinks. Empty values disable a sink.
type Notify struct {
	WebhookURL       string `yaml:"webhook_url" validate:"omitempty,url"`
	TelegramBotToken string `yaml:"telegram_bot_token"`
	TelegramChatID   string `yaml:"telegram_chat_id"`
}

var validate = validator.New()

// Load builds a Config. path may be empty; a path that does not exist falls
// back to defaults with a warning.
func Load(path string) (*Config, error) {
	// Ignore error so the app still starts when .env is missing.
	_ = godotenv.Load()

	// Defaults go in first so an explicit zero in the file survives.
	cfg := &Config{}
	if err := defaults.Set(cfg); err != nil {
		return nil, fmt.Errorf("apply defaults: %w", err)
	}
	if path != "" {
		if err := readFile(path, cfg); err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				return nil, err
			}
			slog.Warn("config file not found, using defaults", "path", path)
		}
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

func readFile(path string, cfg *Config) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}

	var probe map[string]any
	if err := yaml.Unmarshal(b, &probe); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	if _, flat := probe["trade_pair"]; flat {
		return readFlat(b, cfg)
	}
	if err := yaml.Unmarshal(b, cfg); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	return nil
}

// flatFile is the single-level layout of config.json:
// {"exchange", "trade_pair", "strategy", "order_volume", "sleep_time"}.
type flatFile struct {
	Exchange    string  `yaml:"exchange"`
	TradePair   string  `yaml:"trade_pair"`
	Strategy    string  `yaml:"strategy"`
	OrderVolume float64 `yaml:"order_volume"`
	SleepTime   float64 `yaml:"sleep_time"` // seconds
}

func readFlat(b []byte, cfg *Config) error {
	var f flatFile
	if err := yaml.Unmarshal(b, &f); err != nil {
		return fmt.Errorf("parse flat config: %w", err)
	}
	if f.Exchange != "" {
		cfg.Exchange.Name = f.Exchange
	}
	if f.TradePair != "" {
		cfg.Exchange.TradePair = f.TradePair
	}
	if f.Strategy != "" {
		cfg.Strategy.Name = f.Strategy
	}
	if f.OrderVolume != 0 {
		cfg.Paper.OrderVolume = f.OrderVolume
	}
	if f.SleepTime != 0 {
		cfg.App.SleepTime = time.Duration(f.SleepTime * float64(time.Second))
	}
	return nil
}

func applyEnv(c *Config) error {
	c.App.Mode = getEnv("BOT_MODE", c.App.Mode)
	c.App.LogLevel = getEnv("LOG_LEVEL", c.App.LogLevel)
	c.App.LogFormat = getEnv("LOG_FORMAT", c.App.LogFormat)
	c.App.MetricsAddr = getEnv("METRICS_ADDR", c.App.MetricsAddr)
	c.App.HTTPAddr = getEnv("HTTP_ADDR", c.App.HTTPAddr)

	c.Exchange.Name = getEnv("EXCHANGE", c.Exchange.Name)
	c.Exchange.TradePair = getEnv("TRADE_PAIR", c.Exchange.TradePair)
	c.Exchange.BaseURL = getEnv("BINANCE_BASE_URL", c.Exchange.BaseURL)
	c.Exchange.StreamURL = getEnv("BINANCE_STREAM_URL", c.Exchange.StreamURL)
	c.Exchange.Interval = getEnv("KLINE_INTERVAL", c.Exchange.Interval)

	c.Notify.WebhookURL = getEnv("WEBHOOK_URL", c.Notify.WebhookURL)
	c.Notify.TelegramBotToken = getEnv("TELEGRAM_BOT_TOKEN", c.Notify.TelegramBotToken)
	c.Notify.TelegramChatID = getEnv("TELEGRAM_CHAT_ID", c.Notify.TelegramChatID)

	c.Redis.Password = getEnv("REDIS_PASSWORD", c.Redis.Password)
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
		c.Redis.Enabled = true
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		c.SQLite.Path = v
		c.SQLite.Enabled = true
	}

	var err error
	if c.App.SleepTime, err = getEnvDuration("SLEEP_TIME", c.App.SleepTime); err != nil {
		return err
	}
	if c.Exchange.KlineLimit, err = getEnvInt("KLINE_LIMIT", c.Exchange.KlineLimit); err != nil {
		return err
	}
	if c.Exchange.DepthLimit, err = getEnvInt("DEPTH_LIMIT", c.Exchange.DepthLimit); err != nil {
		return err
	}
	if c.Paper.OrderVolume, err = getEnvFloat("ORDER_VOLUME", c.Paper.OrderVolume); err != nil {
		return err
	}
	if c.Paper.SlippageBps, err = getEnvFloat("SLIPPAGE_BPS", c.Paper.SlippageBps); err != nil {
		return err
	}
	return nil
}

// Symbol returns the trade pair in exchange form ("BTC/USDT" → "BTCUSDT").
func (c *Config) Symbol() string {
	return model.ExchangeSymbol(c.Exchange.TradePair)
}

// StrategyParams converts the strategy section for strategy.New.
func (c *Config) StrategyParams() strategy.Params {
	s := c.Strategy
	return strategy.Params{
		RSIPeriod:        s.RSIPeriod,
		RSIOverbought:    s.RSIOverbought,
		RSIOversold:      s.RSIOversold,
		MACDFast:         s.MACDFast,
		MACDSlow:         s.MACDSlow,
		MACDSignal:       s.MACDSignal,
		BollingerPeriod:  s.BollingerPeriod,
		BollingerStd:     s.BollingerStd,
		RiskMultiplier:   s.RiskMultiplier,
		RewardMultiplier: s.RewardMultiplier,
	}
}

// StrategyWeights returns the configured weights, or the defaults when
// none are set.
func (c *Config) StrategyWeights() strategy.Weights {
	w := c.Strategy.Weights
	if w == (Weights{}) {
		return strategy.DefaultWeights()
	}
	return strategy.Weights{RSI: w.RSI, MACD: w.MACD, OrderBook: w.OrderBook, Bollinger: w.Bollinger}
}

// NewEngine builds the strategy engine from the strategy section. The
// kline limit must cover the engine's minimum series length, otherwise
// every live evaluation would fail.
func (c *Config) NewEngine() (*strategy.Engine, error) {
	e, err := strategy.New(c.StrategyParams(), strategy.WithWeights(c.StrategyWeights()))
	if err != nil {
		return nil, err
	}
	if need := e.Params().MinPrices(); c.Exchange.KlineLimit < need {
		return nil, &indicator.InvalidParameterError{
			Name:   "kline_limit",
			Value:  c.Exchange.KlineLimit,
			Reason: fmt.Sprintf("must be at least %d for the configured strategy", need),
		}
	}
	return e, nil
}

func getEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func getEnvInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0, fmt.Errorf("env %s: %w", key, err)
	}
	return n, nil
}

func getEnvFloat(key string, fallback float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return 0, fmt.Errorf("env %s: %w", key, err)
	}
	return f, nil
}

// getEnvDuration accepts Go durations ("15s") or bare seconds ("10").
func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	if secs, err := strconv.ParseFloat(v, 64); err == nil {
		return time.Duration(secs * float64(time.Second)), nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("env %s: %w", key, err)
	}
	return d, nil
}
