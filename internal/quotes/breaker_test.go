package quotes

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"stock-dashboard/internal/pricefeed"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestBreaker(maxFailures int) (*CircuitBreaker, *fakeClock) {
	clk := &fakeClock{t: time.Date(2024, 1, 2, 15, 0, 0, 0, time.UTC)}
	cb := NewCircuitBreaker(maxFailures, time.Minute)
	cb.now = clk.now
	return cb, clk
}

var errFail = errors.New("fail")

func TestCircuitBreaker_StartsClosed(t *testing.T) {
	cb, _ := newTestBreaker(3)
	if cb.CurrentState() != StateClosed {
		t.Errorf("expected closed, got %v", cb.CurrentState())
	}
}

func TestCircuitBreaker_OpensAfterFailures(t *testing.T) {
	cb, _ := newTestBreaker(3)
	for i := 0; i < 3; i++ {
		if err := cb.Execute(func() error { return errFail }); err != errFail {
			t.Fatalf("call %d: expected errFail, got %v", i, err)
		}
	}
	if cb.CurrentState() != StateOpen {
		t.Fatalf("expected open after 3 failures, got %v", cb.CurrentState())
	}

	called := false
	err := cb.Execute(func() error { called = true; return nil })
	if err != ErrCircuitOpen {
		t.Errorf("expected ErrCircuitOpen, got %v", err)
	}
	if called {
		t.Error("fn must not run while open")
	}
}

func TestCircuitBreaker_HalfOpenRecovery(t *testing.T) {
	cb, clk := newTestBreaker(2)
	var transitions []State
	cb.OnStateChange = func(_, to State) { transitions = append(transitions, to) }

	cb.Execute(func() error { return errFail })
	cb.Execute(func() error { return errFail })

	clk.advance(30 * time.Second)
	if err := cb.Execute(func() error { return nil }); err != ErrCircuitOpen {
		t.Fatalf("expected still open, got %v", err)
	}

	clk.advance(31 * time.Second)
	if err := cb.Execute(func() error { return nil }); err != nil {
		t.Fatalf("probe: expected nil, got %v", err)
	}
	if cb.CurrentState() != StateClosed {
		t.Errorf("expected closed after probe, got %v", cb.CurrentState())
	}
	want := []State{StateOpen, StateHalfOpen, StateClosed}
	if len(transitions) != len(want) {
		t.Fatalf("transitions = %v, want %v", transitions, want)
	}
	for i := range want {
		if transitions[i] != want[i] {
			t.Errorf("transitions = %v, want %v", transitions, want)
		}
	}
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	cb, clk := newTestBreaker(1)
	cb.Execute(func() error { return errFail })
	clk.advance(2 * time.Minute)

	cb.Execute(func() error { return errFail })
	if cb.CurrentState() != StateOpen {
		t.Fatalf("expected open after failed probe, got %v", cb.CurrentState())
	}
	// the reset window restarts from the failed probe
	clk.advance(30 * time.Second)
	if err := cb.Execute(func() error { return nil }); err != ErrCircuitOpen {
		t.Errorf("expected ErrCircuitOpen, got %v", err)
	}
}

func TestCircuitBreaker_SingleProbe(t *testing.T) {
	cb, clk := newTestBreaker(1)
	cb.Execute(func() error { return errFail })
	clk.advance(2 * time.Minute)

	inProbe := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error)
	go func() {
		done <- cb.Execute(func() error {
			close(inProbe)
			<-release
			return nil
		})
	}()
	<-inProbe

	if err := cb.Execute(func() error { return nil }); err != ErrCircuitOpen {
		t.Errorf("second caller during probe: expected ErrCircuitOpen, got %v", err)
	}
	close(release)
	if err := <-done; err != nil {
		t.Fatalf("probe: %v", err)
	}
	if cb.CurrentState() != StateClosed {
		t.Errorf("expected closed, got %v", cb.CurrentState())
	}
}

func TestCircuitBreaker_SuccessResetsFailureCount(t *testing.T) {
	cb, _ := newTestBreaker(3)
	cb.Execute(func() error { return errFail })
	cb.Execute(func() error { return errFail })
	cb.Execute(func() error { return nil })
	cb.Execute(func() error { return errFail })
	cb.Execute(func() error { return errFail })

	if cb.CurrentState() != StateClosed {
		t.Errorf("expected closed, got %v", cb.CurrentState())
	}
}

func TestBreaker_WrapsProvider(t *testing.T) {
	calls := 0
	p := pricefeed.ProviderFunc{ID: "yahoo", Fn: func(context.Context, string) (decimal.Decimal, error) {
		calls++
		return decimal.Zero, errFail
	}}
	var changes []string
	b := NewBreaker(p, 2, time.Minute, nil, func(provider string, _, to State) {
		changes = append(changes, provider+":"+to.String())
	})

	if b.Name() != "yahoo" {
		t.Errorf("Name() = %q", b.Name())
	}
	for i := 0; i < 2; i++ {
		if _, err := b.Quote(context.Background(), "AAPL"); err != errFail {
			t.Fatalf("expected errFail, got %v", err)
		}
	}
	if _, err := b.Quote(context.Background(), "AAPL"); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected ErrCircuitOpen, got %v", err)
	}
	if calls != 2 {
		t.Errorf("provider calls = %d, want 2", calls)
	}
	if b.State() != StateOpen {
		t.Errorf("state = %v", b.State())
	}
	if len(changes) != 1 || changes[0] != "yahoo:open" {
		t.Errorf("changes = %v", changes)
	}
}

func TestBreaker_CallerCancelDoesNotTrip(t *testing.T) {
	p := pricefeed.ProviderFunc{ID: "slow", Fn: func(ctx context.Context, _ string) (decimal.Decimal, error) {
		return decimal.Zero, ctx.Err()
	}}
	b := NewBreaker(p, 1, time.Minute, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := b.Quote(ctx, "AAPL"); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if b.State() != StateClosed {
		t.Errorf("state = %v, want closed", b.State())
	}
}
