// Package gateway exposes the ledger and price feed over REST and WebSocket.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"

	"stock-dashboard/internal/journal"
	"stock-dashboard/internal/ledger"
	"stock-dashboard/internal/logger"
	"stock-dashboard/internal/markethours"
	"stock-dashboard/internal/model"
	"stock-dashboard/internal/pricefeed"
	"stock-dashboard/internal/session"
)

const sendBuffer = 64

// TradeLog reads back the trade audit journal for display.
type TradeLog interface {
	Trades(ctx context.Context, accountID string, limit int) ([]journal.Record, error)
}

// Deps are the services a Hub fronts.
type Deps struct {
	Ledger       *ledger.Ledger
	Feed         *pricefeed.Feed
	Universe     *model.Universe
	Sessions     session.Store
	Trades       TradeLog // optional
	Logger       *slog.Logger
	FetchTimeout time.Duration
	Now          func() time.Time
}

// Hub tracks WebSocket clients per account and fans feed updates out to them.
// Each account with at least one live connection holds one feed subscription.
type Hub struct {
	ledger       *ledger.Ledger
	feed         *pricefeed.Feed
	universe     *model.Universe
	sessions     session.Store
	trades       TradeLog
	logger       *slog.Logger
	fetchTimeout time.Duration
	now          func() time.Time

	mu      sync.RWMutex
	clients map[string]map[*Client]struct{} // account id → connections

	// Optional hooks, set before serving.
	OnDrop    func(accountID string)
	OnClients func(total int)
	OnCommand func(cmdType string)
}

// NewHub creates a Hub.
func NewHub(d Deps) *Hub {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.FetchTimeout <= 0 {
		d.FetchTimeout = 5 * time.Second
	}
	if d.Universe == nil {
		d.Universe = model.NewUniverse(model.DefaultUniverse)
	}
	return &Hub{
		ledger:       d.Ledger,
		feed:         d.Feed,
		universe:     d.Universe,
		sessions:     d.Sessions,
		trades:       d.Trades,
		logger:       d.Logger.With(slog.String("component", "gateway")),
		fetchTimeout: d.FetchTimeout,
		now:          d.Now,
		clients:      make(map[string]map[*Client]struct{}),
	}
}

// HandleWSRequest registers an upgraded connection for acct, queues the
// initial ACCOUNT and PRICES messages and starts the pumps.
func (h *Hub) HandleWSRequest(conn *websocket.Conn, acct model.Account) {
	c := &Client{
		conn:      conn,
		send:      make(chan []byte, sendBuffer),
		hub:       h,
		accountID: acct.ID,
	}

	h.mu.Lock()
	set, ok := h.clients[acct.ID]
	if !ok {
		set = make(map[*Client]struct{})
		h.clients[acct.ID] = set
	}
	set[c] = struct{}{}
	var prices map[string]decimal.Decimal
	if len(acct.SubscribedStocks) > 0 {
		prices = h.feed.Subscribe(acct.ID, acct.SubscribedStocks, h.fanout(acct.ID))
	}
	total := h.countLocked()
	h.mu.Unlock()

	h.logger.Info("ws client connected", slog.String("account", acct.ID), slog.Int("total", total))
	if h.OnClients != nil {
		h.OnClients(total)
	}

	c.queue(encode(h.accountMessage(acct, "")))
	c.queue(encode(h.pricesMessage(acct.ID, prices, nil, nil, h.now())))

	go c.writePump()
	go c.readPump()
}

// RemoveClient unregisters c. When it was the account's last connection the
// account's feed subscriptions are dropped.
func (h *Hub) RemoveClient(c *Client) {
	h.mu.Lock()
	set := h.clients[c.accountID]
	if _, ok := set[c]; !ok {
		h.mu.Unlock()
		return
	}
	delete(set, c)
	last := len(set) == 0
	if last {
		delete(h.clients, c.accountID)
		h.feed.UnsubscribeAll(c.accountID)
	}
	close(c.send)
	total := h.countLocked()
	h.mu.Unlock()

	h.logger.Info("ws client disconnected",
		slog.String("account", c.accountID),
		slog.Bool("last", last),
		slog.Int("total", total),
	)
	if h.OnClients != nil {
		h.OnClients(total)
	}
}

// ClientCount returns the number of connected WS clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.countLocked()
}

func (h *Hub) countLocked() int {
	n := 0
	for _, set := range h.clients {
		n += len(set)
	}
	return n
}

// fanout returns the feed handler for accountID. It runs on the refresh
// goroutine, so sends never block: a full client buffer drops the message.
func (h *Hub) fanout(accountID string) pricefeed.Handler {
	return func(u pricefeed.Update) {
		h.broadcast(accountID, encode(h.pricesMessage(accountID, u.Prices, u.Quotes, u.Errors, u.At)))
	}
}

func (h *Hub) broadcast(accountID string, data []byte) {
	if data == nil {
		return
	}
	dropped := 0
	h.mu.RLock()
	for c := range h.clients[accountID] {
		select {
		case c.send <- data:
		default:
			dropped++
		}
	}
	h.mu.RUnlock()

	if dropped > 0 {
		h.logger.Warn("client send buffer full, dropping message",
			slog.String("account", accountID), slog.Int("clients", dropped))
		if h.OnDrop != nil {
			for i := 0; i < dropped; i++ {
				h.OnDrop(accountID)
			}
		}
	}
}

func (h *Hub) pricesMessage(accountID string, prices map[string]decimal.Decimal, quotes map[string]pricefeed.Price, errs map[string]string, at time.Time) PricesMessage {
	if prices == nil {
		prices = map[string]decimal.Decimal{}
	}
	return PricesMessage{
		Type:      MsgPrices,
		AccountID: accountID,
		Prices:    prices,
		Quotes:    quotes,
		Errors:    errs,
		At:        at,
		Market:    markethours.StatusAt(at),
	}
}

func (h *Hub) accountMessage(acct model.Account, reqID string) AccountMessage {
	return AccountMessage{
		Type:    MsgAccount,
		ReqID:   reqID,
		Account: acct,
		Summary: h.summarize(acct),
	}
}

func (h *Hub) summarize(acct model.Account) ledger.Summary {
	symbols := make([]string, 0, len(acct.Holdings)+len(acct.SubscribedStocks))
	for sym := range acct.Holdings {
		symbols = append(symbols, sym)
	}
	symbols = append(symbols, acct.SubscribedStocks...)
	return ledger.Summarize(acct, h.feed.GetPrices(symbols))
}

// publishAccount pushes acct to every connection of that account.
func (h *Hub) publishAccount(acct model.Account) {
	h.broadcast(acct.ID, encode(h.accountMessage(acct, "")))
}

// ── Operations shared by REST and WebSocket ──

var errBadRequest = errors.New("bad request")

func normalizeSymbol(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// subscribe adds symbol to the account's watch list. While the account is
// connected its whole watch list is registered with the feed, which also
// resumes pushes paused by UNSUBSCRIBE_ALL.
func (h *Hub) subscribe(accountID, symbol string) (model.Account, map[string]decimal.Decimal, error) {
	symbol = normalizeSymbol(symbol)
	if symbol == "" {
		return model.Account{}, nil, fmt.Errorf("%w: symbol is required", errBadRequest)
	}
	acct, err := h.ledger.Subscribe(accountID, symbol)
	if err != nil {
		return model.Account{}, nil, err
	}

	var prices map[string]decimal.Decimal
	h.mu.Lock()
	if len(h.clients[accountID]) > 0 {
		prices = h.feed.Subscribe(accountID, acct.SubscribedStocks, h.fanout(accountID))
	}
	h.mu.Unlock()
	if prices == nil {
		prices = h.feed.GetPrices([]string{symbol})
	}
	return acct, prices, nil
}

func (h *Hub) unsubscribe(accountID, symbol string) (model.Account, error) {
	symbol = normalizeSymbol(symbol)
	if symbol == "" {
		return model.Account{}, fmt.Errorf("%w: symbol is required", errBadRequest)
	}
	acct, err := h.ledger.Unsubscribe(accountID, symbol)
	if err != nil {
		return model.Account{}, err
	}
	h.feed.Unsubscribe(accountID, []string{symbol})
	return acct, nil
}

// trade executes an order. A missing price means the feed's current price.
func (h *Hub) trade(ctx context.Context, accountID string, side model.Side, symbol string, qty int64, price *decimal.Decimal) (model.Account, model.Transaction, error) {
	symbol = normalizeSymbol(symbol)
	side = model.Side(strings.ToUpper(string(side)))
	if !side.Valid() {
		return model.Account{}, model.Transaction{}, fmt.Errorf("%w: %q", ledger.ErrInvalidSide, side)
	}
	if symbol == "" {
		return model.Account{}, model.Transaction{}, fmt.Errorf("%w: symbol is required", errBadRequest)
	}

	var p decimal.Decimal
	if price != nil {
		p = *price
	} else {
		cur, ok := h.feed.GetPrices([]string{symbol})[symbol]
		if !ok {
			return model.Account{}, model.Transaction{}, fmt.Errorf("%w: %s", pricefeed.ErrNoPrice, symbol)
		}
		p = cur
	}

	acct, tx, err := h.ledger.Trade(accountID, side, symbol, qty, p)
	if err != nil {
		return model.Account{}, model.Transaction{}, err
	}
	h.logger.Debug("order executed", append(logger.Attrs(ctx),
		slog.String("account", accountID), slog.String("tx", tx.ID))...)
	return acct, tx, nil
}

func (h *Hub) fetch(ctx context.Context, symbol string) (pricefeed.Price, error) {
	symbol = normalizeSymbol(symbol)
	if symbol == "" {
		return pricefeed.Price{}, fmt.Errorf("%w: symbol is required", errBadRequest)
	}
	if !h.universe.Contains(symbol) {
		return pricefeed.Price{}, fmt.Errorf("%w: %s", ledger.ErrUnknownSymbol, symbol)
	}
	ctx, cancel := context.WithTimeout(ctx, h.fetchTimeout)
	defer cancel()
	return h.feed.FetchOnDemand(ctx, symbol)
}
