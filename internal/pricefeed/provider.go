package pricefeed

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// ErrNoPrice is returned when no provider could produce a price.
var ErrNoPrice = errors.New("no price available")

// Provider is a single source of last-trade prices.
type Provider interface {
	Name() string
	Quote(ctx context.Context, symbol string) (decimal.Decimal, error)
}

// ProviderFunc adapts a function to the Provider interface.
type ProviderFunc struct {
	ID string
	Fn func(ctx context.Context, symbol string) (decimal.Decimal, error)
}

func (p ProviderFunc) Name() string { return p.ID }

func (p ProviderFunc) Quote(ctx context.Context, symbol string) (decimal.Decimal, error) {
	return p.Fn(ctx, symbol)
}

// ProviderError is one provider's failure for one symbol.
type ProviderError struct {
	Provider string
	Err      error
}

// FetchError reports that every provider in a chain failed for Symbol.
type FetchError struct {
	Symbol  string
	Reasons []ProviderError
}

func (e *FetchError) Error() string {
	if len(e.Reasons) == 0 {
		return fmt.Sprintf("%s: %v", e.Symbol, ErrNoPrice)
	}
	parts := make([]string, len(e.Reasons))
	for i, r := range e.Reasons {
		parts[i] = r.Provider + ": " + r.Err.Error()
	}
	return fmt.Sprintf("%s: %s", e.Symbol, strings.Join(parts, "; "))
}

// Unwrap exposes ErrNoPrice and each provider error to errors.Is.
func (e *FetchError) Unwrap() []error {
	errs := make([]error, 0, len(e.Reasons)+1)
	errs = append(errs, ErrNoPrice)
	for _, r := range e.Reasons {
		errs = append(errs, r.Err)
	}
	return errs
}

// Chain tries providers in order and returns the first positive price.
type Chain []Provider

// Quote returns the price and the name of the provider that produced it.
// When all providers fail the error is a *FetchError.
func (c Chain) Quote(ctx context.Context, symbol string) (decimal.Decimal, string, error) {
	fe := &FetchError{Symbol: symbol}
	for _, p := range c {
		if err := ctx.Err(); err != nil {
			fe.Reasons = append(fe.Reasons, ProviderError{Provider: p.Name(), Err: err})
			break
		}
		price, err := p.Quote(ctx, symbol)
		if err == nil && !price.IsPositive() {
			err = fmt.Errorf("non-positive price %s", price)
		}
		if err != nil {
			fe.Reasons = append(fe.Reasons, ProviderError{Provider: p.Name(), Err: err})
			continue
		}
		return price, p.Name(), nil
	}
	return decimal.Zero, "", fe
}

// Names lists the provider names in order.
func (c Chain) Names() []string {
	out := make([]string, len(c))
	for i, p := range c {
		out[i] = p.Name()
	}
	return out
}
