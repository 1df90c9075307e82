package quotes

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/shopspring/decimal"

	"stock-dashboard/internal/model"
)

// Key helpers for the quote cache.
func QuoteKey(symbol string) string   { return "quote:" + symbol }
func QuoteTopic(symbol string) string { return "pub:quote:" + symbol }

// ErrNoQuote is returned when the cache holds nothing for a symbol.
var ErrNoQuote = errors.New("no quote in cache")

// Redis reads last-trade quotes published by cmd/quotesim (or any other
// writer using the same keys).
type Redis struct {
	rdb    *redis.Client
	maxAge time.Duration
	now    func() time.Time
}

// NewRedis creates a cache-backed provider. Quotes older than maxAge are
// treated as missing; zero disables the check.
func NewRedis(rdb *redis.Client, maxAge time.Duration) *Redis {
	return &Redis{rdb: rdb, maxAge: maxAge, now: time.Now}
}

func (r *Redis) Name() string { return "redis" }

func (r *Redis) Quote(ctx context.Context, symbol string) (decimal.Decimal, error) {
	raw, err := r.rdb.Get(ctx, QuoteKey(symbol)).Bytes()
	if errors.Is(err, redis.Nil) {
		return decimal.Zero, ErrNoQuote
	}
	if err != nil {
		return decimal.Zero, err
	}
	var q model.Quote
	if err := json.Unmarshal(raw, &q); err != nil {
		return decimal.Zero, fmt.Errorf("decode quote: %w", err)
	}
	if r.maxAge > 0 && q.TS > 0 && r.now().Sub(time.UnixMilli(q.TS)) > r.maxAge {
		return decimal.Zero, fmt.Errorf("%w: stale since %s", ErrNoQuote, time.UnixMilli(q.TS).UTC().Format(time.RFC3339))
	}
	return decimal.NewFromString(q.Price)
}

// Publisher writes quotes into the cache and announces them on a channel.
type Publisher struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewPublisher(rdb *redis.Client, ttl time.Duration) *Publisher {
	return &Publisher{rdb: rdb, ttl: ttl}
}

// Publish stores q under its quote key and publishes it in one pipeline.
func (p *Publisher) Publish(ctx context.Context, q model.Quote) error {
	b, err := json.Marshal(q)
	if err != nil {
		return err
	}
	pipe := p.rdb.Pipeline()
	pipe.Set(ctx, QuoteKey(q.Symbol), b, p.ttl)
	pipe.Publish(ctx, QuoteTopic(q.Symbol), b)
	_, err = pipe.Exec(ctx)
	return err
}
