package quotes

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"stock-dashboard/internal/model"
)

var (
	minPrice = decimal.RequireFromString("0.01")
	// max step is ±0.1%
	stepScale = decimal.RequireFromString("0.001")
)

// Simulator random-walks prices from a seed table. Each Quote call moves the
// symbol one step, so it never fails for a seeded symbol.
type Simulator struct {
	mu     sync.Mutex
	prices map[string]decimal.Decimal
	rng    *rand.Rand
}

// NewSimulator creates a Simulator. seed <= 0 uses the current time.
func NewSimulator(start map[string]decimal.Decimal, seed int64) *Simulator {
	if seed <= 0 {
		seed = time.Now().UnixNano()
	}
	prices := make(map[string]decimal.Decimal, len(start))
	for s, p := range start {
		prices[s] = p
	}
	return &Simulator{prices: prices, rng: rand.New(rand.NewSource(seed))}
}

func (s *Simulator) Name() string { return "simulator" }

func (s *Simulator) Quote(_ context.Context, symbol string) (decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.prices[symbol]
	if !ok {
		return decimal.Zero, fmt.Errorf("simulator has no seed for %s", symbol)
	}
	p = Walk(p, s.rng.Float64())
	s.prices[symbol] = p
	return p, nil
}

// Walk moves price by (2u-1) * 0.1% for u in [0,1), rounded to cents and
// floored at 0.01.
func Walk(price decimal.Decimal, u float64) decimal.Decimal {
	pct := decimal.NewFromFloat(u*2 - 1).Mul(stepScale)
	next := model.Round2(price.Add(price.Mul(pct)))
	if next.LessThan(minPrice) {
		return minPrice
	}
	return next
}
