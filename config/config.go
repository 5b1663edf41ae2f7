// Package config loads the signal engine configuration from environment
// variables, with a .env file picked up when present.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	// Market data
	WSURL       string
	ChainAPIURL string
	Symbols     []string

	// Indicator periods
	RSIPeriod  int
	MACDFast   int
	MACDSlow   int
	MACDSignal int

	// Window sizing
	MaxLookback    int
	IVLookbackDays int

	// Risk
	RiskPerTrade   float64
	PortfolioValue float64

	// Alerting
	DedupWindow      time.Duration
	AlertQueueSize   int
	TelegramBotToken string
	TelegramChatID   string
	WebhookURL       string

	// Chain sync
	ChainSyncInterval time.Duration

	// Infrastructure
	RedisAddr     string
	RedisPassword string
	SQLitePath    string
	MetricsAddr   string
	LogLevel      string

	// Pipeline sizing
	PipelineShards int
	ShardBuffer    int
}

// Load reads configuration from the environment, loading a local .env file
// first if one exists, and validates the result. A value that fails to
// parse is a fatal startup error, never a silent fallback to the default.
func Load() (*Config, error) {
	// Missing .env is fine; real deployments set the environment directly.
	_ = godotenv.Load()

	var errs []error
	cfg := &Config{
		WSURL:       getEnv("WS_URL", "ws://localhost:8081/stream"),
		ChainAPIURL: getEnv("CHAIN_API_URL", "http://localhost:8082"),
		Symbols:     splitList(getEnv("SYMBOLS", "")),

		RSIPeriod:  getEnvInt("RSI_PERIOD", 14, &errs),
		MACDFast:   getEnvInt("MACD_FAST", 12, &errs),
		MACDSlow:   getEnvInt("MACD_SLOW", 26, &errs),
		MACDSignal: getEnvInt("MACD_SIGNAL", 9, &errs),

		MaxLookback:    getEnvInt("MAX_LOOKBACK", 500, &errs),
		IVLookbackDays: getEnvInt("IV_LOOKBACK_DAYS", 252, &errs),

		RiskPerTrade:   getEnvFloat("RISK_PER_TRADE", 0.02, &errs),
		PortfolioValue: getEnvFloat("PORTFOLIO_VALUE", 100000, &errs),

		DedupWindow:      getEnvDuration("DEDUP_WINDOW", 15*time.Minute, &errs),
		AlertQueueSize:   getEnvInt("ALERT_QUEUE_SIZE", 64, &errs),
		TelegramBotToken: getEnv("TELEGRAM_BOT_TOKEN", ""),
		TelegramChatID:   getEnv("TELEGRAM_CHAT_ID", ""),
		WebhookURL:       getEnv("WEBHOOK_URL", ""),

		ChainSyncInterval: getEnvDuration("CHAIN_SYNC_INTERVAL", 5*time.Minute, &errs),

		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		SQLitePath:    getEnv("SQLITE_PATH", "data/signals.db"),
		MetricsAddr:   getEnv("METRICS_ADDR", ":9090"),
		LogLevel:      getEnv("LOG_LEVEL", "info"),

		PipelineShards: getEnvInt("PIPELINE_SHARDS", 4, &errs),
		ShardBuffer:    getEnvInt("SHARD_BUFFER", 1024, &errs),
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if len(c.Symbols) == 0 {
		return fmt.Errorf("config: SYMBOLS must list at least one symbol")
	}
	if c.RiskPerTrade <= 0 || c.RiskPerTrade >= 1 {
		return fmt.Errorf("config: RISK_PER_TRADE must be in (0, 1), got %v", c.RiskPerTrade)
	}
	if c.PortfolioValue <= 0 {
		return fmt.Errorf("config: PORTFOLIO_VALUE must be positive, got %v", c.PortfolioValue)
	}
	if c.RSIPeriod < 1 || c.MACDFast < 1 || c.MACDSlow < 1 || c.MACDSignal < 1 {
		return fmt.Errorf("config: indicator periods must be positive")
	}
	if c.MACDFast >= c.MACDSlow {
		return fmt.Errorf("config: MACD_FAST (%d) must be shorter than MACD_SLOW (%d)", c.MACDFast, c.MACDSlow)
	}
	if c.MaxLookback < 50 {
		return fmt.Errorf("config: MAX_LOOKBACK must be at least 50, got %d", c.MaxLookback)
	}
	if c.MaxLookback <= c.MACDSlow {
		return fmt.Errorf("config: MAX_LOOKBACK (%d) must exceed MACD_SLOW (%d)", c.MaxLookback, c.MACDSlow)
	}
	if c.IVLookbackDays < 1 {
		return fmt.Errorf("config: IV_LOOKBACK_DAYS must be positive, got %d", c.IVLookbackDays)
	}
	if c.DedupWindow <= 0 {
		return fmt.Errorf("config: DEDUP_WINDOW must be positive, got %v", c.DedupWindow)
	}
	if c.ChainSyncInterval <= 0 {
		return fmt.Errorf("config: CHAIN_SYNC_INTERVAL must be positive, got %v", c.ChainSyncInterval)
	}
	if c.AlertQueueSize < 1 {
		return fmt.Errorf("config: ALERT_QUEUE_SIZE must be positive, got %d", c.AlertQueueSize)
	}
	return nil
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func getEnvInt(key string, fallback int, errs *[]error) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("config: %s: invalid integer %q", key, v))
		return fallback
	}
	return n
}

func getEnvFloat(key string, fallback float64, errs *[]error) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("config: %s: invalid number %q", key, v))
		return fallback
	}
	return f
}

func getEnvDuration(key string, fallback time.Duration, errs *[]error) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("config: %s: invalid duration %q", key, v))
		return fallback
	}
	return d
}
