package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"

	"stock-dashboard/config"
	"stock-dashboard/internal/accounts"
	"stock-dashboard/internal/gateway"
	"stock-dashboard/internal/journal"
	"stock-dashboard/internal/ledger"
	"stock-dashboard/internal/logger"
	"stock-dashboard/internal/markethours"
	"stock-dashboard/internal/metrics"
	"stock-dashboard/internal/model"
	"stock-dashboard/internal/notification"
	"stock-dashboard/internal/pricefeed"
	"stock-dashboard/internal/quotes"
	"stock-dashboard/internal/session"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
	log := logger.Init("dashboard", logger.ParseLevel(cfg.LogLevel))
	log.Info("starting", slog.String("listen", cfg.ListenAddr), slog.String("metrics", cfg.MetricsAddr))

	// Prices and money go over the wire as JSON numbers.
	decimal.MarshalJSONWithoutQuotes = true

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// ---- Metrics & health ----
	reg := prometheus.NewRegistry()
	prom := metrics.NewMetrics(reg)
	health := metrics.NewHealthStatus()
	metricsSrv := metrics.NewServer(cfg.MetricsAddr, health, reg)
	metricsSrv.Start()

	// ---- Alerts ----
	notifiers := notification.Multi{notification.NewLogNotifier(log)}
	if cfg.WebhookURL != "" {
		notifiers = append(notifiers, notification.NewWebhookNotifier(cfg.WebhookURL))
	}
	if cfg.TelegramBotToken != "" && cfg.TelegramChatID != "" {
		notifiers = append(notifiers, notification.NewTelegramNotifier(cfg.TelegramBotToken, cfg.TelegramChatID))
	}
	alerts := notification.NewDispatcher(notifiers, 256, log)
	defer alerts.Close()

	// ---- Redis (optional) ----
	var rdb *goredis.Client
	if cfg.RedisAddr != "" {
		rdb = goredis.NewClient(&goredis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Warn("redis unreachable, continuing", slog.String("addr", cfg.RedisAddr), slog.String("error", err.Error()))
		} else {
			log.Info("redis connected", slog.String("addr", cfg.RedisAddr))
		}
	}

	// ---- Trade journal (optional) ----
	var jrnl *journal.Journal
	if cfg.JournalPath != "" {
		jrnl, err = openJournal(cfg.JournalPath)
		if err != nil {
			log.Error("trade journal init failed", slog.String("error", err.Error()))
			os.Exit(1)
		}
		defer jrnl.Close()
	}
	var pinger metrics.Pinger
	if jrnl != nil {
		pinger = jrnl
	}
	health.StartLivenessChecker(ctx, rdb, pinger, 10*time.Second)

	// ---- Accounts & ledger ----
	universe := model.NewUniverse(model.DefaultUniverse).Restrict(cfg.Symbols())
	dir := accounts.LoadOrEmpty(cfg.AccountsPath, log)
	accts := dir.Accounts()
	health.SetAccounts(len(accts))
	log.Info("accounts loaded", slog.Int("companies", len(dir.Companies)), slog.Int("accounts", len(accts)))

	led := ledger.New(accts, universe, ledger.WithLogger(log))
	led.OnTrade = func(acct model.Account, tx model.Transaction) {
		prom.TradesTotal.WithLabelValues(string(tx.Type)).Inc()
		if jrnl != nil {
			if err := jrnl.RecordTrade(context.Background(), acct.ID, tx); err != nil {
				prom.JournalErrors.Inc()
				log.Error("journal write failed", slog.String("tx", tx.ID), slog.String("error", err.Error()))
			}
		}
		alerts.Notify(notification.TradeAlert(acct.ID, tx))
	}
	led.OnReject = func(_ string, side model.Side, err error) {
		prom.TradeRejections.WithLabelValues(string(side), rejectReason(err)).Inc()
	}

	// ---- Price providers & feed ----
	chain, err := quotes.Build(cfg.Providers(), quotes.Options{
		HTTPClient:         &http.Client{Timeout: cfg.FetchTimeout},
		FinnhubToken:       cfg.FinnhubToken,
		Redis:              rdb,
		RedisMaxAge:        time.Minute,
		Seed:               universe.FallbackPrices(),
		SimSeed:            time.Now().UnixNano(),
		BreakerMaxFailures: cfg.BreakerMaxFailures,
		BreakerReset:       cfg.BreakerReset,
		OnBreakerChange: func(provider string, from, to quotes.State) {
			prom.ProviderBreakerState.WithLabelValues(provider).Set(float64(to))
			if to == quotes.StateOpen {
				prom.ProviderBreakerTrips.WithLabelValues(provider).Inc()
			}
			alerts.Notify(notification.ProviderAlert(provider, from.String(), to.String()))
		},
		Logger: log,
	})
	if err != nil {
		log.Error("price providers", slog.String("error", err.Error()))
		os.Exit(1)
	}

	feed := pricefeed.New(chain, pricefeed.Config{
		Interval:     cfg.RefreshInterval,
		FetchTimeout: cfg.FetchTimeout,
		Concurrency:  cfg.FetchConcurrency,
		Fallback:     universe.FallbackPrices(),
		Logger:       log,
	})
	feed.OnRefresh = func(d time.Duration, failed int) {
		prom.RefreshesTotal.Inc()
		prom.RefreshDur.Observe(d.Seconds())
		health.RecordRefresh(time.Now(), failed)
	}
	feed.OnSkip = func() { prom.RefreshSkipped.Inc() }
	feed.OnFetchError = func(symbol string, _ error) {
		prom.FetchErrorsTotal.WithLabelValues(symbol).Inc()
	}

	// ---- Sessions ----
	var sessions session.Store = session.NewMemory(cfg.SessionTTL)
	if rdb != nil {
		sessions = session.NewRedis(rdb, cfg.SessionTTL)
	}

	// ---- Gateway ----
	var trades gateway.TradeLog
	if jrnl != nil {
		trades = jrnl
	}
	hub := gateway.NewHub(gateway.Deps{
		Ledger:       led,
		Feed:         feed,
		Universe:     universe,
		Sessions:     sessions,
		Trades:       trades,
		Logger:       log,
		FetchTimeout: cfg.FetchTimeout,
	})
	hub.OnDrop = func(accountID string) { prom.FanoutDropsTotal.WithLabelValues(accountID).Inc() }
	hub.OnClients = func(n int) { prom.WSClients.Set(float64(n)) }
	hub.OnCommand = func(t string) { prom.WSMessagesIn.WithLabelValues(t).Inc() }

	mux := http.NewServeMux()
	gateway.RegisterRoutes(mux, hub, health)
	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Info("gateway listening", slog.String("addr", cfg.ListenAddr))
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			log.Error("gateway server error", slog.String("error", err.Error()))
			cancel()
		}
	}()

	go watchFeed(ctx, feed, prom, health)

	select {
	case sig := <-sigCh:
		log.Info("shutting down", slog.String("signal", sig.String()))
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	srv.Shutdown(shutdownCtx)
	feed.Close()
	metricsSrv.Stop(shutdownCtx)
	cancel()
	log.Info("stopped")
}

// watchFeed samples feed and market state for the gauges.
func watchFeed(ctx context.Context, feed *pricefeed.Feed, prom *metrics.Metrics, health *metrics.HealthStatus) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			running := feed.Running()
			health.SetFeedRunning(running)
			prom.FeedRunning.Set(boolGauge(running))
			prom.MarketState.Set(boolGauge(markethours.IsMarketOpen(now)))
		}
	}
}

// openJournal creates the journal's parent directory and opens it.
func openJournal(path string) (*journal.Journal, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create journal dir %s: %w", dir, err)
		}
	}
	return journal.Open(path)
}

func boolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, ledger.ErrInsufficientFunds):
		return "insufficient_funds"
	case errors.Is(err, ledger.ErrInsufficientShares):
		return "insufficient_shares"
	case errors.Is(err, ledger.ErrInvalidQuantity), errors.Is(err, ledger.ErrInvalidPrice), errors.Is(err, ledger.ErrInvalidSide):
		return "invalid"
	case errors.Is(err, ledger.ErrUnknownAccount):
		return "unknown_account"
	default:
		return "other"
	}
}
