// cmd/quotesim publishes random-walk quotes for the dashboard universe so the
// "redis" price provider has data without any market-data credentials.
//
// Every interval each symbol moves ±0.1% and is written to quote:<SYM> (with
// a TTL) and published on pub:quote:<SYM>. The same quotes are streamed to
// WebSocket clients on /ws.
//
// Config (env vars):
//
//	QUOTESIM_ADDR      listen address       (default ":9001")
//	QUOTESIM_INTERVAL  step interval        (default "1s")
//	QUOTESIM_TTL       quote key TTL        (default "1m")
//	REDIS_ADDR         redis address        (default "localhost:6379")
//	REDIS_PASSWORD, REDIS_DB
//	SYMBOLS            comma-separated, default is the whole universe
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/gorilla/websocket"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"stock-dashboard/internal/logger"
	"stock-dashboard/internal/model"
	"stock-dashboard/internal/quotes"
)

// ─── Hub ──────────────────────────────────────────────────────────────────────

type hub struct {
	mu      sync.RWMutex
	clients map[*websocket.Conn]chan []byte
}

func newHub() *hub {
	return &hub{clients: make(map[*websocket.Conn]chan []byte)}
}

func (h *hub) register(conn *websocket.Conn) chan []byte {
	ch := make(chan []byte, 256)
	h.mu.Lock()
	h.clients[conn] = ch
	h.mu.Unlock()
	return ch
}

func (h *hub) unregister(conn *websocket.Conn) {
	h.mu.Lock()
	if ch, ok := h.clients[conn]; ok {
		close(ch)
		delete(h.clients, conn)
	}
	h.mu.Unlock()
}

func (h *hub) broadcast(msg []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, ch := range h.clients {
		select {
		case ch <- msg:
		default: // slow client, drop quote
		}
	}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(_ *http.Request) bool { return true },
}

func wsHandler(h *hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			slog.Warn("upgrade error", slog.String("error", err.Error()))
			return
		}
		slog.Info("client connected", slog.String("remote", r.RemoteAddr))

		ch := h.register(conn)
		go func() {
			// Drain reads so close frames are processed.
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					h.unregister(conn)
					return
				}
			}
		}()
		defer func() {
			conn.Close()
			slog.Info("client disconnected", slog.String("remote", r.RemoteAddr))
		}()

		for msg := range ch {
			conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				h.unregister(conn)
				return
			}
		}
	}
}

// ─── Generator ────────────────────────────────────────────────────────────────

func runGenerator(ctx context.Context, h *hub, pub *quotes.Publisher, prices map[string]decimal.Decimal, symbols []string, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			failed := 0
			for _, sym := range symbols {
				prices[sym] = quotes.Walk(prices[sym], rng.Float64())
				q := model.Quote{Symbol: sym, Price: prices[sym].StringFixed(2), TS: now.UnixMilli()}
				if err := pub.Publish(ctx, q); err != nil {
					failed++
				}
				if b, err := json.Marshal(q); err == nil {
					h.broadcast(b)
				}
			}
			if failed > 0 {
				slog.Warn("quote publish failed", slog.Int("symbols", failed))
			}
		}
	}
}

// ─── main ─────────────────────────────────────────────────────────────────────

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Debug("no .env file")
	}
	v := viper.New()
	v.SetDefault("QUOTESIM_ADDR", ":9001")
	v.SetDefault("QUOTESIM_INTERVAL", "1s")
	v.SetDefault("QUOTESIM_TTL", "1m")
	v.SetDefault("REDIS_ADDR", "localhost:6379")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("SYMBOLS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.AutomaticEnv()

	log := logger.Init("quotesim", logger.ParseLevel(v.GetString("LOG_LEVEL")))

	universe := model.NewUniverse(model.DefaultUniverse)
	if s := v.GetString("SYMBOLS"); s != "" {
		universe = universe.Restrict(strings.Split(strings.ToUpper(strings.ReplaceAll(s, " ", "")), ","))
	}
	prices := universe.FallbackPrices()
	symbols := make([]string, 0, len(prices))
	for _, sym := range universe.Symbols() {
		if _, ok := prices[sym]; ok {
			symbols = append(symbols, sym)
		} else {
			log.Warn("no start price, skipping", slog.String("symbol", sym))
		}
	}
	if len(symbols) == 0 {
		log.Error("no symbols to simulate")
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rdb := goredis.NewClient(&goredis.Options{
		Addr:     v.GetString("REDIS_ADDR"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	})
	defer rdb.Close()
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Error("redis connection failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	interval := v.GetDuration("QUOTESIM_INTERVAL")
	if interval <= 0 {
		interval = time.Second
	}
	h := newHub()
	go runGenerator(ctx, h, quotes.NewPublisher(rdb, v.GetDuration("QUOTESIM_TTL")), prices, symbols, interval)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", wsHandler(h))
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprintln(w, `{"status":"ok","service":"quotesim"}`)
	})
	addr := v.GetString("QUOTESIM_ADDR")
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		log.Info("listening", slog.String("addr", addr), slog.Int("symbols", len(symbols)), slog.Duration("interval", interval))
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", slog.String("error", err.Error()))
			cancel()
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigCh:
	case <-ctx.Done():
	}
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	srv.Shutdown(shutdownCtx)
	log.Info("stopped")
}
