// Package pricefeed keeps one canonical price per symbol, refreshes it on a
// fixed interval while anyone is subscribed, and pushes each account the
// prices of the symbols it watches.
package pricefeed

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
)

// Price is the feed's view of one symbol.
type Price struct {
	Symbol    string          `json:"symbol"`
	Price     decimal.Decimal `json:"price"`
	Previous  decimal.Decimal `json:"previous"`
	Change    decimal.Decimal `json:"change"`
	Source    string          `json:"source"` // provider name, or "fallback"
	UpdatedAt time.Time       `json:"updatedAt"`
	Error     string          `json:"error,omitempty"` // last fetch failure, cleared on success
}

// Update is delivered to an account's handler once per refresh.
type Update struct {
	AccountID string                     `json:"accountId"`
	Prices    map[string]decimal.Decimal `json:"prices"`
	Quotes    map[string]Price           `json:"quotes"`
	Errors    map[string]string          `json:"errors,omitempty"`
	At        time.Time                  `json:"at"`
}

// Handler receives updates. It runs on the refresh goroutine and must not block.
type Handler func(Update)

const sourceFallback = "fallback"

// Config configures a Feed.
type Config struct {
	Interval     time.Duration
	FetchTimeout time.Duration
	Concurrency  int
	Fallback     map[string]decimal.Decimal
	Logger       *slog.Logger
	Now          func() time.Time
}

// subscriber holds an account's handler. Its identity marks one
// registration: a dropped and re-added account gets a new subscriber.
type subscriber struct {
	fn Handler
}

type entry struct {
	price     decimal.Decimal
	previous  decimal.Decimal
	known     bool
	source    string
	updatedAt time.Time
	err       string
}

// Feed is the price subscription engine.
type Feed struct {
	cfg    Config
	chain  Chain
	logger *slog.Logger

	mu       sync.Mutex
	table    map[string]*entry
	subs     map[string]map[string]struct{}
	handlers map[string]*subscriber
	cancel   context.CancelFunc // non-nil while the loop runs
	loopCtx  context.Context
	loopDone chan struct{}
	closed   bool

	refreshing atomic.Bool
	inflight   sync.WaitGroup

	// Optional hooks, set before the first Subscribe.
	OnRefresh    func(d time.Duration, failed int)
	OnSkip       func()
	OnFetchError func(symbol string, err error)
}

// New creates a Feed that asks chain for prices. Every symbol in
// cfg.Fallback is seeded into the price table.
func New(chain Chain, cfg Config) *Feed {
	if cfg.Interval <= 0 {
		cfg.Interval = 10 * time.Second
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = 5 * time.Second
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	f := &Feed{
		cfg:      cfg,
		chain:    chain,
		logger:   logger.With(slog.String("component", "pricefeed")),
		table:    make(map[string]*entry, len(cfg.Fallback)),
		subs:     make(map[string]map[string]struct{}),
		handlers: make(map[string]*subscriber),
	}
	now := cfg.Now()
	for sym, p := range cfg.Fallback {
		f.table[sym] = &entry{price: p, known: true, source: sourceFallback, updatedAt: now}
	}
	return f
}

// Subscribe registers symbols for accountID and sets its handler, replacing
// any previous one. It returns the current prices of the requested symbols
// without waiting for a fetch; a refresh is started in the background.
func (f *Feed) Subscribe(accountID string, symbols []string, h Handler) map[string]decimal.Decimal {
	f.mu.Lock()
	defer f.mu.Unlock()

	set, ok := f.subs[accountID]
	if !ok {
		set = make(map[string]struct{}, len(symbols))
		f.subs[accountID] = set
	}
	for _, s := range symbols {
		set[s] = struct{}{}
		if _, ok := f.table[s]; !ok {
			f.table[s] = &entry{}
		}
	}
	if h != nil {
		if sub, ok := f.handlers[accountID]; ok {
			sub.fn = h
		} else {
			f.handlers[accountID] = &subscriber{fn: h}
		}
	}

	if !f.closed && len(set) > 0 {
		if f.cancel == nil {
			f.startLoopLocked()
		} else {
			f.refreshAsyncLocked()
		}
	}
	if len(set) == 0 {
		delete(f.subs, accountID)
		delete(f.handlers, accountID)
	}
	return f.pricesLocked(symbols)
}

// Unsubscribe removes symbols from accountID. When its set becomes empty the
// account and its handler are dropped; when no account remains the refresh
// loop stops.
func (f *Feed) Unsubscribe(accountID string, symbols []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	set, ok := f.subs[accountID]
	if !ok {
		return
	}
	for _, s := range symbols {
		delete(set, s)
	}
	if len(set) == 0 {
		delete(f.subs, accountID)
		delete(f.handlers, accountID)
	}
	f.stopIfIdleLocked()
}

// UnsubscribeAll drops accountID and its handler.
func (f *Feed) UnsubscribeAll(accountID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.subs, accountID)
	delete(f.handlers, accountID)
	f.stopIfIdleLocked()
}

// Subscriptions returns the symbols accountID is registered for, sorted.
func (f *Feed) Subscriptions(accountID string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	set := f.subs[accountID]
	out := make([]string, 0, len(set))
	for s := range set {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// Running reports whether the refresh loop is active.
func (f *Feed) Running() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cancel != nil
}

// GetPrices returns the cached prices of symbols. Symbols without a known
// price are absent from the result.
func (f *Feed) GetPrices(symbols []string) map[string]decimal.Decimal {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pricesLocked(symbols)
}

// Quotes returns the detailed view of symbols, skipping unknown ones.
// A nil slice means every symbol in the table.
func (f *Feed) Quotes(symbols []string) []Price {
	f.mu.Lock()
	defer f.mu.Unlock()
	if symbols == nil {
		symbols = f.symbolsLocked()
	}
	out := make([]Price, 0, len(symbols))
	for _, s := range symbols {
		if e, ok := f.table[s]; ok && (e.known || e.err != "") {
			out = append(out, e.view(s))
		}
	}
	return out
}

// Symbols lists every symbol the feed refreshes, sorted.
func (f *Feed) Symbols() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.symbolsLocked()
}

// FetchOnDemand refreshes one symbol outside the periodic cycle. It updates
// the price table but does not notify handlers or touch the loop timer.
// A failed fetch of a symbol the table does not hold leaves the table as is.
func (f *Feed) FetchOnDemand(ctx context.Context, symbol string) (Price, error) {
	ctx, cancel := context.WithTimeout(ctx, f.cfg.FetchTimeout)
	defer cancel()
	price, source, err := f.chain.Quote(ctx, symbol)

	f.mu.Lock()
	e, ok := f.table[symbol]
	if !ok {
		if err != nil {
			f.mu.Unlock()
			f.fetchFailed(symbol, err)
			return Price{Symbol: symbol, Error: err.Error()}, err
		}
		e = &entry{}
		f.table[symbol] = e
	}
	e.apply(price, source, err, f.cfg.Now())
	view := e.view(symbol)
	f.mu.Unlock()

	if err != nil {
		f.fetchFailed(symbol, err)
		return view, err
	}
	return view, nil
}

// Refresh runs one refresh cycle over every known symbol and notifies each
// handler once. A handler removed before its turn is skipped. It returns false without doing anything when another
// refresh is already in flight. Results are discarded if ctx is cancelled
// before they are applied.
func (f *Feed) Refresh(ctx context.Context) bool {
	if !f.refreshing.CompareAndSwap(false, true) {
		f.logger.Debug("refresh skipped, previous still running")
		if f.OnSkip != nil {
			f.OnSkip()
		}
		return false
	}
	defer f.refreshing.Store(false)

	start := time.Now()
	symbols := f.Symbols()
	results := f.fetchAll(ctx, symbols)

	f.mu.Lock()
	if ctx.Err() != nil {
		f.mu.Unlock()
		f.logger.Debug("refresh discarded", slog.Int("symbols", len(symbols)))
		return true
	}
	now := f.cfg.Now()
	failed := 0
	for sym, r := range results {
		e := f.table[sym]
		if e == nil {
			e = &entry{}
			f.table[sym] = e
		}
		e.apply(r.price, r.source, r.err, now)
		if r.err != nil {
			failed++
		}
	}
	type call struct {
		sub *subscriber
		fn  Handler
		u   Update
	}
	calls := make([]call, 0, len(f.handlers))
	for acct, sub := range f.handlers {
		calls = append(calls, call{sub: sub, fn: sub.fn, u: f.updateLocked(acct, now)})
	}
	f.mu.Unlock()

	for sym, r := range results {
		if r.err != nil {
			f.fetchFailed(sym, r.err)
		}
	}
	for _, c := range calls {
		if f.registered(c.u.AccountID, c.sub) {
			c.fn(c.u)
		}
	}

	elapsed := time.Since(start)
	f.logger.Debug("refresh done",
		slog.Int("symbols", len(symbols)),
		slog.Int("failed", failed),
		slog.Int("accounts", len(calls)),
		slog.Duration("took", elapsed),
	)
	if f.OnRefresh != nil {
		f.OnRefresh(elapsed, failed)
	}
	return true
}

// Close stops the refresh loop and waits for in-flight refreshes. Further
// subscriptions are accepted but never start the loop again.
func (f *Feed) Close() {
	f.mu.Lock()
	f.closed = true
	done := f.stopLoopLocked()
	f.mu.Unlock()
	if done != nil {
		<-done
	}
	f.inflight.Wait()
}

type result struct {
	price  decimal.Decimal
	source string
	err    error
}

func (f *Feed) fetchAll(ctx context.Context, symbols []string) map[string]result {
	out := make(map[string]result, len(symbols))
	var mu sync.Mutex
	var wg sync.WaitGroup
	sem := make(chan struct{}, f.cfg.Concurrency)

	for _, sym := range symbols {
		wg.Add(1)
		sem <- struct{}{}
		go func(sym string) {
			defer func() {
				<-sem
				wg.Done()
			}()
			fctx, cancel := context.WithTimeout(ctx, f.cfg.FetchTimeout)
			defer cancel()
			price, source, err := f.chain.Quote(fctx, sym)
			mu.Lock()
			out[sym] = result{price: price, source: source, err: err}
			mu.Unlock()
		}(sym)
	}
	wg.Wait()
	return out
}

func (f *Feed) registered(accountID string, sub *subscriber) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.handlers[accountID] == sub
}

func (f *Feed) fetchFailed(symbol string, err error) {
	f.logger.Warn("price fetch failed", slog.String("symbol", symbol), slog.String("error", err.Error()))
	if f.OnFetchError != nil {
		f.OnFetchError(symbol, err)
	}
}

func (f *Feed) startLoopLocked() {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	f.cancel, f.loopCtx, f.loopDone = cancel, ctx, done
	f.logger.Info("refresh loop started", slog.Duration("interval", f.cfg.Interval))
	go f.run(ctx, done)
	f.refreshAsyncLocked()
}

func (f *Feed) stopIfIdleLocked() {
	if len(f.subs) == 0 {
		f.stopLoopLocked()
	}
}

func (f *Feed) stopLoopLocked() chan struct{} {
	if f.cancel == nil {
		return nil
	}
	f.cancel()
	done := f.loopDone
	f.cancel, f.loopCtx, f.loopDone = nil, nil, nil
	f.logger.Info("refresh loop stopped")
	return done
}

// refreshAsyncLocked kicks a refresh on the running loop's context.
func (f *Feed) refreshAsyncLocked() {
	ctx := f.loopCtx
	f.inflight.Add(1)
	go func() {
		defer f.inflight.Done()
		f.Refresh(ctx)
	}()
}

func (f *Feed) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(f.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			f.mu.Lock()
			if ctx.Err() == nil {
				f.refreshAsyncLocked()
			}
			f.mu.Unlock()
		}
	}
}

func (f *Feed) pricesLocked(symbols []string) map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal, len(symbols))
	for _, s := range symbols {
		if e, ok := f.table[s]; ok && e.known {
			out[s] = e.price
		}
	}
	return out
}

func (f *Feed) symbolsLocked() []string {
	seen := make(map[string]struct{}, len(f.table))
	for s := range f.table {
		seen[s] = struct{}{}
	}
	for _, set := range f.subs {
		for s := range set {
			seen[s] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for s := range seen {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

func (f *Feed) updateLocked(accountID string, at time.Time) Update {
	set := f.subs[accountID]
	u := Update{
		AccountID: accountID,
		Prices:    make(map[string]decimal.Decimal, len(set)),
		Quotes:    make(map[string]Price, len(set)),
		At:        at,
	}
	for s := range set {
		e, ok := f.table[s]
		if !ok {
			continue
		}
		if e.known {
			u.Prices[s] = e.price
			u.Quotes[s] = e.view(s)
		}
		if e.err != "" {
			if u.Errors == nil {
				u.Errors = make(map[string]string)
			}
			u.Errors[s] = e.err
		}
	}
	return u
}

func (e *entry) apply(price decimal.Decimal, source string, err error, at time.Time) {
	if err != nil {
		e.err = err.Error()
		return
	}
	if e.known {
		e.previous = e.price
	} else {
		e.previous = price
	}
	e.price = price
	e.known = true
	e.source = source
	e.updatedAt = at
	e.err = ""
}

func (e *entry) view(symbol string) Price {
	p := Price{
		Symbol:    symbol,
		Price:     e.price,
		Previous:  e.previous,
		Source:    e.source,
		UpdatedAt: e.updatedAt,
		Error:     e.err,
	}
	if e.known && !e.previous.IsZero() {
		p.Change = e.price.Sub(e.previous)
	}
	return p
}
