// Package ledger applies buy/sell trades and watch-list changes to accounts.
//
// Every operation validates first and then swaps in a fresh account snapshot,
// so a rejected trade leaves balance, holdings and history untouched and
// callers never share mutable state with the ledger.
package ledger

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"

	"stock-dashboard/internal/model"
)

// Ledger holds the in-memory accounts of one process.
type Ledger struct {
	mu       sync.RWMutex
	accounts map[string]model.Account
	order    []string // load order, for stable listing

	universe *model.Universe
	logger   *slog.Logger
	now      func() time.Time
	txSeq    atomic.Int64

	// OnTrade is called after a trade has been applied, outside the lock.
	OnTrade func(acct model.Account, tx model.Transaction)
	// OnReject is called when a trade is refused.
	OnReject func(accountID string, side model.Side, err error)
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithClock overrides the time source used for transaction timestamps.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Ledger) { l.logger = logger }
}

// New creates a Ledger seeded with accounts. universe restricts which symbols
// may be subscribed to; nil allows any symbol.
func New(accounts []model.Account, universe *model.Universe, opts ...Option) *Ledger {
	l := &Ledger{
		accounts: make(map[string]model.Account, len(accounts)),
		universe: universe,
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, o := range opts {
		o(l)
	}
	for _, a := range accounts {
		if a.ID == "" {
			continue
		}
		if _, dup := l.accounts[a.ID]; !dup {
			l.order = append(l.order, a.ID)
		}
		l.accounts[a.ID] = a.Clone()
	}
	return l
}

// Account returns a snapshot of the account.
func (l *Ledger) Account(id string) (model.Account, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	a, ok := l.accounts[id]
	if !ok {
		return model.Account{}, false
	}
	return a.Clone(), true
}

// Accounts returns snapshots of all accounts in load order.
func (l *Ledger) Accounts() []model.Account {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]model.Account, 0, len(l.order))
	for _, id := range l.order {
		out = append(out, l.accounts[id].Clone())
	}
	return out
}

// Buy purchases qty shares of symbol at price for account id.
func (l *Ledger) Buy(id, symbol string, qty int64, price decimal.Decimal) (model.Account, model.Transaction, error) {
	return l.trade(id, model.SideBuy, symbol, qty, price)
}

// Sell sells qty shares of symbol at price for account id.
func (l *Ledger) Sell(id, symbol string, qty int64, price decimal.Decimal) (model.Account, model.Transaction, error) {
	return l.trade(id, model.SideSell, symbol, qty, price)
}

// Trade dispatches to Buy or Sell by side.
func (l *Ledger) Trade(id string, side model.Side, symbol string, qty int64, price decimal.Decimal) (model.Account, model.Transaction, error) {
	if !side.Valid() {
		return model.Account{}, model.Transaction{}, fmt.Errorf("%w: %q", ErrInvalidSide, side)
	}
	return l.trade(id, side, symbol, qty, price)
}

func (l *Ledger) trade(id string, side model.Side, symbol string, qty int64, price decimal.Decimal) (model.Account, model.Transaction, error) {
	l.mu.Lock()
	cur, ok := l.accounts[id]
	if !ok {
		l.mu.Unlock()
		err := fmt.Errorf("%w: %s", ErrUnknownAccount, id)
		l.reject(id, side, err)
		return model.Account{}, model.Transaction{}, err
	}

	at := l.now()
	txID := l.nextTxID(at)
	apply := Buy
	if side == model.SideSell {
		apply = Sell
	}
	next, tx, err := apply(cur, symbol, qty, price, txID, at)
	if err != nil {
		l.mu.Unlock()
		l.reject(id, side, err)
		return model.Account{}, model.Transaction{}, err
	}
	l.accounts[id] = next
	snap := next.Clone()
	l.mu.Unlock()

	l.logger.Info("trade applied",
		slog.String("account", id),
		slog.String("side", string(side)),
		slog.String("symbol", symbol),
		slog.Int64("qty", qty),
		slog.String("price", price.StringFixed(2)),
		slog.String("balance", snap.Balance.StringFixed(2)),
	)
	if l.OnTrade != nil {
		l.OnTrade(snap, tx)
	}
	return snap, tx, nil
}

func (l *Ledger) reject(id string, side model.Side, err error) {
	l.logger.Warn("trade rejected",
		slog.String("account", id),
		slog.String("side", string(side)),
		slog.String("error", err.Error()),
	)
	if l.OnReject != nil {
		l.OnReject(id, side, err)
	}
}

// Subscribe adds symbol to the account's watch list.
func (l *Ledger) Subscribe(id, symbol string) (model.Account, error) {
	if l.universe != nil && !l.universe.Contains(symbol) {
		return model.Account{}, fmt.Errorf("%w: %s", ErrUnknownSymbol, symbol)
	}
	return l.update(id, func(a model.Account) model.Account { return Subscribe(a, symbol) })
}

// Unsubscribe removes symbol from the account's watch list.
func (l *Ledger) Unsubscribe(id, symbol string) (model.Account, error) {
	return l.update(id, func(a model.Account) model.Account { return Unsubscribe(a, symbol) })
}

func (l *Ledger) update(id string, fn func(model.Account) model.Account) (model.Account, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	cur, ok := l.accounts[id]
	if !ok {
		return model.Account{}, fmt.Errorf("%w: %s", ErrUnknownAccount, id)
	}
	next := fn(cur)
	l.accounts[id] = next
	return next.Clone(), nil
}

// nextTxID returns "{unixMillis}-{seq}". Must be called with l.mu held.
func (l *Ledger) nextTxID(at time.Time) string {
	return fmt.Sprintf("%d-%d", at.UnixMilli(), l.txSeq.Add(1))
}
