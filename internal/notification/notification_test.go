package notification

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stock-dashboard/internal/model"
)

func TestTradeAlert(t *testing.T) {
	pnl := decimal.RequireFromString("-60")
	a := TradeAlert("A-1", model.Transaction{
		ID: "7", Type: model.SideSell, Symbol: "TSLA", Quantity: 6,
		Price: decimal.NewFromInt(90), Total: decimal.NewFromInt(540), ProfitLoss: &pnl,
	})
	assert.Equal(t, AlertInfo, a.Level)
	assert.Equal(t, "SELL TSLA", a.Title)
	assert.Contains(t, a.Message, "A-1 6 TSLA @ $90.00")
	assert.Contains(t, a.Message, "total $540.00")
	assert.Equal(t, "-60.00", a.Fields["profit_loss"])
	assert.Equal(t, KindTrade, a.Kind)
	assert.Equal(t, "A-1", a.Account)
	assert.Equal(t, "TSLA", a.Symbol)
}

func TestProviderAlert(t *testing.T) {
	assert.Equal(t, AlertWarning, ProviderAlert("yahoo", "closed", "open").Level)
	a := ProviderAlert("yahoo", "half-open", "closed")
	assert.Equal(t, AlertInfo, a.Level)
	assert.Equal(t, KindProvider, a.Kind)
	assert.Equal(t, "yahoo", a.Provider)
}

func TestWebhookNotifier(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	n := NewWebhookNotifier(srv.URL)
	err := n.Send(context.Background(), Alert{Level: AlertWarning, Title: "t", Message: "m", Fields: map[string]string{"k": "v"}})
	require.NoError(t, err)
	assert.Equal(t, "WARNING", got["level"])
	assert.Equal(t, "system", got["kind"])
	assert.Equal(t, "stock-dashboard", got["source"])
	assert.Equal(t, map[string]any{"k": "v"}, got["fields"])
	assert.NotContains(t, got, "account")
}

func TestWebhookNotifier_TradeCarriesAccountAndSymbol(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
	}))
	defer srv.Close()

	n := NewWebhookNotifier(srv.URL)
	n.now = func() time.Time { return time.Date(2024, 3, 1, 15, 0, 0, 0, time.UTC) }
	require.NoError(t, n.Send(context.Background(), TradeAlert("A-1", model.Transaction{
		ID: "9", Type: model.SideBuy, Symbol: "AAPL", Quantity: 3,
		Price: decimal.NewFromInt(180), Total: decimal.NewFromInt(540),
	})))

	assert.Equal(t, "trade", got["kind"])
	assert.Equal(t, "A-1", got["account"])
	assert.Equal(t, "AAPL", got["symbol"])
	assert.Equal(t, "2024-03-01T15:00:00Z", got["ts"])
}

func TestWebhookNotifier_BadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	err := NewWebhookNotifier(srv.URL).Send(context.Background(), Alert{Title: "x"})
	assert.ErrorContains(t, err, "unexpected status 502")
}

func TestTelegramNotifier(t *testing.T) {
	var body map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/botTOKEN/sendMessage", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
	}))
	defer srv.Close()

	n := NewTelegramNotifier("TOKEN", "42")
	n.baseURL = srv.URL
	require.NoError(t, n.Send(context.Background(), Alert{Level: AlertCritical, Title: "BUY AAPL", Message: "1.5", Fields: map[string]string{"b": "2", "a": "1"}}))

	assert.Equal(t, "42", body["chat_id"])
	assert.Equal(t, "MarkdownV2", body["parse_mode"])
	assert.Contains(t, body["text"], "1\\.5")
	assert.Less(t, strings.Index(body["text"], "`a`"), strings.Index(body["text"], "`b`"))
}

func TestTelegramText_Trade(t *testing.T) {
	text := telegramText(TradeAlert("A-1", model.Transaction{
		ID: "9", Type: model.SideSell, Symbol: "AAPL", Quantity: 3,
		Price: decimal.NewFromInt(180), Total: decimal.NewFromInt(540),
	}))
	lines := strings.Split(text, "\n")
	assert.Equal(t, "🔴 *SELL AAPL*", lines[0])
	assert.Equal(t, "Account: A\\-1", lines[1])
	assert.Contains(t, text, "`side` SELL")
}

func TestTelegramText_Provider(t *testing.T) {
	text := telegramText(ProviderAlert("finnhub", "closed", "open"))
	assert.True(t, strings.HasPrefix(text, "🔌 *finnhub*"), text)
	assert.Contains(t, text, "circuit closed \\-\\> open")

	text = telegramText(ProviderAlert("finnhub", "half-open", "closed"))
	assert.True(t, strings.HasPrefix(text, "✅"), text)
}

func TestEscapeMarkdown(t *testing.T) {
	if got := escapeMarkdown("P/L -60.00 (x)"); got != "P/L \\-60\\.00 \\(x\\)" {
		t.Errorf("escapeMarkdown = %q", got)
	}
}

type recorder struct {
	mu     sync.Mutex
	alerts []Alert
	err    error
	block  chan struct{}
}

func (r *recorder) Send(_ context.Context, a Alert) error {
	if r.block != nil {
		<-r.block
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.alerts = append(r.alerts, a)
	return r.err
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.alerts)
}

func TestMulti_JoinsErrors(t *testing.T) {
	errA := errors.New("a down")
	a, b := &recorder{err: errA}, &recorder{}
	err := Multi{a, b}.Send(context.Background(), Alert{Title: "x"})
	assert.ErrorIs(t, err, errA)
	assert.Equal(t, 1, a.count())
	assert.Equal(t, 1, b.count())
}

func TestDispatcher_DeliversAndDrops(t *testing.T) {
	rec := &recorder{block: make(chan struct{})}
	d := NewDispatcher(rec, 1, nil)
	var dropped int
	d.OnDrop = func(Alert) { dropped++ }

	d.Notify(Alert{Title: "1"}) // picked up by the worker, blocked in Send
	require.Eventually(t, func() bool { return len(d.queue) == 0 }, time.Second, time.Millisecond)
	d.Notify(Alert{Title: "2"}) // queued
	d.Notify(Alert{Title: "3"}) // queue full
	assert.Equal(t, 1, dropped)

	close(rec.block)
	d.Close()
	assert.Equal(t, 2, rec.count())

	d.Notify(Alert{Title: "after close"})
	assert.Equal(t, 2, rec.count())
}
