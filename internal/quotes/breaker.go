package quotes

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"stock-dashboard/internal/pricefeed"
)

// ErrCircuitOpen is returned without calling the provider while its breaker is open.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// State is a circuit breaker state.
type State int

const (
	StateClosed   State = iota // calls pass through
	StateOpen                  // calls rejected until the reset timeout elapses
	StateHalfOpen              // one probe call allowed
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// CircuitBreaker opens after maxFailures consecutive failures and rejects
// calls for resetTimeout. Then a single probe is let through: success closes
// the breaker, failure reopens it.
type CircuitBreaker struct {
	mu           sync.Mutex
	state        State
	failures     int
	maxFailures  int
	resetTimeout time.Duration
	openedAt     time.Time
	probing      bool
	now          func() time.Time

	OnStateChange func(from, to State)
}

func NewCircuitBreaker(maxFailures int, resetTimeout time.Duration) *CircuitBreaker {
	if maxFailures <= 0 {
		maxFailures = 1
	}
	return &CircuitBreaker{
		maxFailures:  maxFailures,
		resetTimeout: resetTimeout,
		now:          time.Now,
	}
}

// Execute runs fn unless the breaker is open.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	cb.mu.Lock()
	switch cb.state {
	case StateOpen:
		if cb.now().Sub(cb.openedAt) < cb.resetTimeout {
			cb.mu.Unlock()
			return ErrCircuitOpen
		}
		cb.transition(StateHalfOpen)
		cb.probing = true
	case StateHalfOpen:
		if cb.probing {
			cb.mu.Unlock()
			return ErrCircuitOpen
		}
		cb.probing = true
	}
	cb.mu.Unlock()

	err := fn()

	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.probing = false
	if err != nil {
		cb.failures++
		if cb.state == StateHalfOpen || cb.failures >= cb.maxFailures {
			cb.openedAt = cb.now()
			if cb.state != StateOpen {
				cb.transition(StateOpen)
			}
		}
		return err
	}
	if cb.state == StateHalfOpen {
		cb.transition(StateClosed)
	}
	cb.failures = 0
	return nil
}

// CurrentState returns the breaker state.
func (cb *CircuitBreaker) CurrentState() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

func (cb *CircuitBreaker) transition(to State) {
	from := cb.state
	cb.state = to
	if to == StateClosed {
		cb.failures = 0
	}
	if cb.OnStateChange != nil {
		cb.OnStateChange(from, to)
	}
}

// Breaker guards a provider with a CircuitBreaker so a dead upstream is
// skipped quickly instead of timing out on every symbol.
type Breaker struct {
	next pricefeed.Provider
	cb   *CircuitBreaker
}

// NewBreaker wraps p. onChange, if set, is called with the provider name on
// every state transition.
func NewBreaker(p pricefeed.Provider, maxFailures int, resetTimeout time.Duration, logger *slog.Logger, onChange func(provider string, from, to State)) *Breaker {
	if logger == nil {
		logger = slog.Default()
	}
	cb := NewCircuitBreaker(maxFailures, resetTimeout)
	name := p.Name()
	cb.OnStateChange = func(from, to State) {
		logger.Warn("provider circuit state changed",
			slog.String("provider", name),
			slog.String("from", from.String()),
			slog.String("to", to.String()),
		)
		if onChange != nil {
			onChange(name, from, to)
		}
	}
	return &Breaker{next: p, cb: cb}
}

func (b *Breaker) Name() string { return b.next.Name() }

// State returns the wrapped breaker's state.
func (b *Breaker) State() State { return b.cb.CurrentState() }

func (b *Breaker) Quote(ctx context.Context, symbol string) (decimal.Decimal, error) {
	var price decimal.Decimal
	var qerr error
	err := b.cb.Execute(func() error {
		price, qerr = b.next.Quote(ctx, symbol)
		// a caller giving up is not the provider's fault
		if qerr != nil && ctx.Err() != nil {
			return nil
		}
		return qerr
	})
	if err != nil {
		return decimal.Zero, err
	}
	if qerr != nil {
		return decimal.Zero, qerr
	}
	return price, nil
}
