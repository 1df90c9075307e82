package quotes

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stock-dashboard/internal/model"
	"stock-dashboard/internal/pricefeed"
)

func TestYahoo_Quote(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/AAPL", r.URL.Path)
		assert.Equal(t, "1d", r.URL.Query().Get("interval"))
		assert.Equal(t, "1d", r.URL.Query().Get("range"))
		w.Write([]byte(`{"chart":{"result":[{"meta":{"symbol":"AAPL","currency":"USD","regularMarketPrice":189.8372}}],"error":null}}`))
	}))
	defer srv.Close()

	y := NewYahoo(srv.Client())
	y.BaseURL = srv.URL

	price, err := y.Quote(context.Background(), "AAPL")
	require.NoError(t, err)
	assert.Equal(t, "189.84", price.String())
	assert.Equal(t, "yahoo", y.Name())
}

func TestYahoo_Failures(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   string
	}{
		{"rate limited", http.StatusTooManyRequests, `Too Many Requests`, "status 429"},
		{"api error", http.StatusOK, `{"chart":{"result":null,"error":{"code":"Not Found","description":"No data found"}}}`, "Not Found"},
		{"empty result", http.StatusOK, `{"chart":{"result":[]}}`, "empty chart result"},
		{"no price", http.StatusOK, `{"chart":{"result":[{"meta":{"symbol":"X"}}]}}`, "missing regularMarketPrice"},
		{"garbage", http.StatusOK, `<html>`, "decode"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			y := NewYahoo(srv.Client())
			y.BaseURL = srv.URL
			_, err := y.Quote(context.Background(), "X")
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestFinnhub_Quote(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "TSLA", r.URL.Query().Get("symbol"))
		assert.Equal(t, "demo", r.URL.Query().Get("token"))
		if r.URL.Query().Get("symbol") == "TSLA" {
			w.Write([]byte(`{"c":251.456,"d":1.2,"dp":0.48,"h":255,"l":248,"o":250,"pc":250.25,"t":1709300000}`))
		}
	}))
	defer srv.Close()

	f := NewFinnhub("", srv.Client())
	f.BaseURL = srv.URL
	price, err := f.Quote(context.Background(), "TSLA")
	require.NoError(t, err)
	assert.Equal(t, "251.46", price.String())
}

func TestFinnhub_ZeroPriceIsFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"c":0,"d":null,"dp":null,"h":0,"l":0,"o":0,"pc":0,"t":0}`))
	}))
	defer srv.Close()

	f := NewFinnhub("tok", srv.Client())
	f.BaseURL = srv.URL
	_, err := f.Quote(context.Background(), "NOPE")
	assert.ErrorContains(t, err, "no current price")
}

func newMiniRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return mr, rdb
}

func TestRedis_PublishThenQuote(t *testing.T) {
	mr, rdb := newMiniRedis(t)
	ctx := context.Background()

	sub := rdb.Subscribe(ctx, QuoteTopic("KO"))
	defer sub.Close()
	_, err := sub.Receive(ctx)
	require.NoError(t, err)

	pub := NewPublisher(rdb, time.Minute)
	now := time.Now()
	require.NoError(t, pub.Publish(ctx, model.Quote{Symbol: "KO", Price: "60.12", TS: now.UnixMilli()}))

	assert.True(t, mr.Exists(QuoteKey("KO")))
	assert.Greater(t, mr.TTL(QuoteKey("KO")), time.Duration(0))

	select {
	case msg := <-sub.Channel():
		assert.Contains(t, msg.Payload, `"price":"60.12"`)
	case <-time.After(2 * time.Second):
		t.Fatal("no pubsub message")
	}

	p := NewRedis(rdb, time.Minute)
	price, err := p.Quote(ctx, "KO")
	require.NoError(t, err)
	assert.True(t, price.Equal(decimal.RequireFromString("60.12")))
}

func TestRedis_MissingAndStale(t *testing.T) {
	mr, rdb := newMiniRedis(t)
	ctx := context.Background()
	p := NewRedis(rdb, time.Minute)

	_, err := p.Quote(ctx, "PEP")
	assert.ErrorIs(t, err, ErrNoQuote)

	old := time.Now().Add(-time.Hour).UnixMilli()
	mr.Set(QuoteKey("PEP"), `{"symbol":"PEP","price":"170","ts":`+decimal.NewFromInt(old).String()+`}`)
	_, err = p.Quote(ctx, "PEP")
	assert.ErrorIs(t, err, ErrNoQuote)

	mr.Set(QuoteKey("BAD"), `not json`)
	_, err = p.Quote(ctx, "BAD")
	assert.ErrorContains(t, err, "decode quote")
}

func TestWalk(t *testing.T) {
	p := decimal.RequireFromString("100")
	tests := []struct {
		u    float64
		want string
	}{
		{0, "99.9"},
		{0.5, "100"},
		{0.75, "100.05"},
	}
	for _, tt := range tests {
		if got := Walk(p, tt.u); !got.Equal(decimal.RequireFromString(tt.want)) {
			t.Errorf("Walk(100, %v) = %s, want %s", tt.u, got, tt.want)
		}
	}
	if got := Walk(decimal.RequireFromString("0.01"), 0); !got.Equal(minPrice) {
		t.Errorf("floor: got %s", got)
	}
}

func TestSimulator_StaysWithinStep(t *testing.T) {
	start := decimal.RequireFromString("250.75")
	s := NewSimulator(map[string]decimal.Decimal{"TSLA": start}, 42)

	prev := start
	for i := 0; i < 200; i++ {
		p, err := s.Quote(context.Background(), "TSLA")
		require.NoError(t, err)
		limit := prev.Mul(decimal.RequireFromString("0.001")).Add(decimal.RequireFromString("0.005"))
		require.True(t, p.Sub(prev).Abs().LessThanOrEqual(limit), "step %d: %s -> %s", i, prev, p)
		require.True(t, p.IsPositive())
		prev = p
	}

	_, err := s.Quote(context.Background(), "ZZZ")
	assert.Error(t, err)
}

func TestBuild(t *testing.T) {
	_, rdb := newMiniRedis(t)

	chain, err := Build([]string{"yahoo", " Finnhub ", "redis", "simulator", "yahoo"}, Options{
		Redis:              rdb,
		BreakerMaxFailures: 3,
		BreakerReset:       time.Second,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"yahoo", "finnhub", "redis", "simulator"}, chain.Names())
	_, wrapped := chain[0].(*Breaker)
	assert.True(t, wrapped)
	_, wrapped = chain[3].(*Breaker)
	assert.False(t, wrapped)

	chain, err = Build([]string{"redis", "sim"}, Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{"simulator"}, chain.Names())

	_, err = Build([]string{"bloomberg"}, Options{})
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "bloomberg"))
}

type downTransport struct{}

func (downTransport) RoundTrip(*http.Request) (*http.Response, error) {
	return nil, errors.New("connection refused")
}

func TestBuild_DefaultChainReportsOutage(t *testing.T) {
	chain, err := Build([]string{"yahoo", "finnhub", "redis"}, Options{
		HTTPClient: &http.Client{Transport: downTransport{}},
		Seed:       map[string]decimal.Decimal{"GOOG": decimal.RequireFromString("150.5")},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"yahoo", "finnhub"}, chain.Names())

	feed := pricefeed.New(chain, pricefeed.Config{
		Interval:     time.Hour,
		FetchTimeout: time.Second,
		Fallback:     map[string]decimal.Decimal{"GOOG": decimal.RequireFromString("150.5")},
	})
	defer feed.Close()

	updates := make(chan pricefeed.Update, 4)
	feed.Subscribe("a1", []string{"GOOG"}, func(u pricefeed.Update) {
		select {
		case updates <- u:
		default:
		}
	})

	select {
	case u := <-updates:
		assert.Contains(t, u.Errors["GOOG"], "connection refused")
		assert.Equal(t, "150.5", u.Prices["GOOG"].String())
		assert.Equal(t, "fallback", u.Quotes["GOOG"].Source)
	case <-time.After(3 * time.Second):
		t.Fatal("no update")
	}
}
