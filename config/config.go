package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"stock-dashboard/internal/model"
)

// Config holds all application configuration loaded from the environment.
type Config struct {
	ListenAddr  string `mapstructure:"LISTEN_ADDR"`
	MetricsAddr string `mapstructure:"METRICS_ADDR"`
	LogLevel    string `mapstructure:"LOG_LEVEL"`

	AccountsPath string `mapstructure:"ACCOUNTS_PATH"`
	// Comma-separated, empty means the built-in universe.
	SymbolList string `mapstructure:"SYMBOLS"`

	// Feed
	RefreshInterval  time.Duration `mapstructure:"REFRESH_INTERVAL"`
	FetchTimeout     time.Duration `mapstructure:"FETCH_TIMEOUT"`
	FetchConcurrency int           `mapstructure:"FETCH_CONCURRENCY"`
	ProviderList     string        `mapstructure:"PRICE_PROVIDERS"`
	FinnhubToken     string        `mapstructure:"FINNHUB_TOKEN"`

	// Infrastructure. An empty address or path disables the component.
	RedisAddr     string        `mapstructure:"REDIS_ADDR"`
	RedisPassword string        `mapstructure:"REDIS_PASSWORD"`
	RedisDB       int           `mapstructure:"REDIS_DB"`
	SessionTTL    time.Duration `mapstructure:"SESSION_TTL"`
	JournalPath   string        `mapstructure:"JOURNAL_PATH"`

	BreakerMaxFailures int           `mapstructure:"BREAKER_MAX_FAILURES"`
	BreakerReset       time.Duration `mapstructure:"BREAKER_RESET"`

	// Alerts
	WebhookURL       string `mapstructure:"WEBHOOK_URL"`
	TelegramBotToken string `mapstructure:"TELEGRAM_BOT_TOKEN"`
	TelegramChatID   string `mapstructure:"TELEGRAM_CHAT_ID"`
}

var defaults = map[string]any{
	"LISTEN_ADDR":          ":8080",
	"METRICS_ADDR":         ":9090",
	"LOG_LEVEL":            "info",
	"ACCOUNTS_PATH":        "data/companies.json",
	"SYMBOLS":              "",
	"REFRESH_INTERVAL":     "10s",
	"FETCH_TIMEOUT":        "5s",
	"FETCH_CONCURRENCY":    4,
	"PRICE_PROVIDERS":      "yahoo,finnhub,redis",
	"FINNHUB_TOKEN":        "demo",
	"REDIS_ADDR":           "",
	"REDIS_PASSWORD":       "",
	"REDIS_DB":             0,
	"SESSION_TTL":          "720h",
	"JOURNAL_PATH":         "",
	"BREAKER_MAX_FAILURES": 5,
	"BREAKER_RESET":        "30s",
	"WEBHOOK_URL":          "",
	"TELEGRAM_BOT_TOKEN":   "",
	"TELEGRAM_CHAT_ID":     "",
}

// Load reads an optional .env file, then environment variables over defaults.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("no .env file, using process environment")
	}

	v := viper.New()
	for key, val := range defaults {
		v.SetDefault(key, val)
	}
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the feed and breakers cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.RefreshInterval <= 0 {
		errs = append(errs, fmt.Errorf("REFRESH_INTERVAL must be positive, got %s", c.RefreshInterval))
	}
	if c.FetchTimeout <= 0 {
		errs = append(errs, fmt.Errorf("FETCH_TIMEOUT must be positive, got %s", c.FetchTimeout))
	}
	if c.FetchConcurrency <= 0 {
		errs = append(errs, fmt.Errorf("FETCH_CONCURRENCY must be positive, got %d", c.FetchConcurrency))
	}
	if c.BreakerMaxFailures <= 0 {
		errs = append(errs, fmt.Errorf("BREAKER_MAX_FAILURES must be positive, got %d", c.BreakerMaxFailures))
	}
	if c.SessionTTL <= 0 {
		errs = append(errs, fmt.Errorf("SESSION_TTL must be positive, got %s", c.SessionTTL))
	}
	if len(c.Providers()) == 0 {
		errs = append(errs, errors.New("PRICE_PROVIDERS is empty"))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// Symbols returns the configured symbols uppercased, or the default
// universe when SYMBOLS is unset.
func (c *Config) Symbols() []string {
	syms := splitList(c.SymbolList, strings.ToUpper)
	if len(syms) > 0 {
		return syms
	}
	out := make([]string, len(model.DefaultUniverse))
	for i, in := range model.DefaultUniverse {
		out[i] = in.Symbol
	}
	return out
}

// Providers returns the lowercased provider names in priority order.
func (c *Config) Providers() []string {
	return splitList(c.ProviderList, strings.ToLower)
}

func splitList(s string, norm func(string) string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	seen := make(map[string]bool, len(parts))
	for _, p := range parts {
		p = norm(strings.TrimSpace(p))
		if p == "" || seen[p] {
			continue
		}
		seen[p] = true
		out = append(out, p)
	}
	return out
}
