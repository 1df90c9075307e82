package quotes

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/shopspring/decimal"

	"stock-dashboard/internal/pricefeed"
)

// Options carries what the providers need.
type Options struct {
	HTTPClient   *http.Client
	FinnhubToken string
	Redis        *redis.Client // nil skips the "redis" provider
	RedisMaxAge  time.Duration
	Seed         map[string]decimal.Decimal // simulator start prices
	SimSeed      int64

	// Breaker settings for network providers; MaxFailures <= 0 disables.
	BreakerMaxFailures int
	BreakerReset       time.Duration
	OnBreakerChange    func(provider string, from, to State)

	Logger *slog.Logger
}

// Build creates the provider chain named by names, in order. Known names are
// yahoo, finnhub, redis and simulator.
func Build(names []string, opts Options) (pricefeed.Chain, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	chain := make(pricefeed.Chain, 0, len(names))
	seen := make(map[string]bool, len(names))

	for _, raw := range names {
		name := strings.ToLower(strings.TrimSpace(raw))
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true

		var p pricefeed.Provider
		switch name {
		case "yahoo":
			p = NewYahoo(opts.HTTPClient)
		case "finnhub":
			p = NewFinnhub(opts.FinnhubToken, opts.HTTPClient)
		case "redis":
			if opts.Redis == nil {
				logger.Warn("redis provider requested but no redis configured, skipping")
				continue
			}
			p = NewRedis(opts.Redis, opts.RedisMaxAge)
		case "simulator", "sim":
			chain = append(chain, NewSimulator(opts.Seed, opts.SimSeed))
			continue
		default:
			return nil, fmt.Errorf("unknown price provider %q", raw)
		}
		if opts.BreakerMaxFailures > 0 {
			p = NewBreaker(p, opts.BreakerMaxFailures, opts.BreakerReset, logger, opts.OnBreakerChange)
		}
		chain = append(chain, p)
	}
	logger.Info("price providers configured", slog.Any("chain", chain.Names()))
	return chain, nil
}
