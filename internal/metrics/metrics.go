package metrics

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the dashboard's Prometheus metrics.
type Metrics struct {
	// Price feed
	RefreshesTotal   prometheus.Counter
	RefreshSkipped   prometheus.Counter
	RefreshDur       prometheus.Histogram
	FetchErrorsTotal *prometheus.CounterVec // labels: symbol
	OnDemandFetches  *prometheus.CounterVec // labels: result=ok|error
	FeedRunning      prometheus.Gauge

	// Ledger
	TradesTotal     *prometheus.CounterVec // labels: side
	TradeRejections *prometheus.CounterVec // labels: side, reason
	JournalErrors   prometheus.Counter

	// Gateway
	WSClients        prometheus.Gauge
	WSMessagesIn     *prometheus.CounterVec // labels: type
	FanoutDropsTotal *prometheus.CounterVec // labels: account

	// Provider circuit breakers
	ProviderBreakerState *prometheus.GaugeVec   // labels: provider; 0=closed, 1=open, 2=half-open
	ProviderBreakerTrips *prometheus.CounterVec // labels: provider

	// Market session
	MarketState prometheus.Gauge // 0=closed, 1=open
}

// NewMetrics creates the metrics and registers them with reg. A nil reg uses
// the default registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		RefreshesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dashboard_price_refreshes_total",
			Help: "Completed price refresh cycles",
		}),
		RefreshSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dashboard_price_refreshes_skipped_total",
			Help: "Refresh ticks dropped because a refresh was already running",
		}),
		RefreshDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "dashboard_price_refresh_duration_seconds",
			Help:    "Wall time of one refresh cycle",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),
		FetchErrorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dashboard_price_fetch_errors_total",
			Help: "Per-symbol price fetch failures (all providers failed)",
		}, []string{"symbol"}),
		OnDemandFetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dashboard_price_on_demand_fetches_total",
			Help: "Single-symbol fetches requested by clients",
		}, []string{"result"}),
		FeedRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "dashboard_price_feed_running",
			Help: "1 while the refresh loop is active",
		}),

		TradesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dashboard_trades_total",
			Help: "Executed trades",
		}, []string{"side"}),
		TradeRejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dashboard_trade_rejections_total",
			Help: "Trades refused by the ledger",
		}, []string{"side", "reason"}),
		JournalErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dashboard_journal_errors_total",
			Help: "Trades that could not be written to the audit journal",
		}),

		WSClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "dashboard_ws_clients",
			Help: "Connected WebSocket clients",
		}),
		WSMessagesIn: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dashboard_ws_messages_total",
			Help: "Client commands received, by type",
		}, []string{"type"}),
		FanoutDropsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dashboard_fanout_drops_total",
			Help: "Messages dropped for slow clients, per account",
		}, []string{"account"}),

		ProviderBreakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "dashboard_provider_circuit_breaker_state",
			Help: "Price provider circuit breaker state (0=closed, 1=open, 2=half-open)",
		}, []string{"provider"}),
		ProviderBreakerTrips: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dashboard_provider_circuit_breaker_trips_total",
			Help: "Times a price provider breaker tripped open",
		}, []string{"provider"}),

		MarketState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "dashboard_market_state",
			Help: "US equity session state (0=closed, 1=open)",
		}),
	}

	reg.MustRegister(
		m.RefreshesTotal,
		m.RefreshSkipped,
		m.RefreshDur,
		m.FetchErrorsTotal,
		m.OnDemandFetches,
		m.FeedRunning,
		m.TradesTotal,
		m.TradeRejections,
		m.JournalErrors,
		m.WSClients,
		m.WSMessagesIn,
		m.FanoutDropsTotal,
		m.ProviderBreakerState,
		m.ProviderBreakerTrips,
		m.MarketState,
	)
	return m
}

// Pinger is anything with a liveness probe, e.g. the trade journal.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// HealthStatus represents the system health.
type HealthStatus struct {
	mu sync.RWMutex

	FeedRunning     bool      `json:"feed_running"`
	LastRefreshAt   time.Time `json:"last_refresh_at"`
	LastRefreshFail int       `json:"last_refresh_failed"`
	Accounts        int       `json:"accounts"`

	// Optional dependencies; only checked when enabled.
	RedisEnabled   bool    `json:"redis_enabled"`
	RedisConnected bool    `json:"redis_connected"`
	RedisLatencyMs float64 `json:"redis_latency_ms"`
	JournalEnabled bool    `json:"journal_enabled"`
	JournalOK      bool    `json:"journal_ok"`
	JournalLatency float64 `json:"journal_latency_ms"`

	LastCheckAt time.Time `json:"last_check_at"`
	StartedAt   time.Time `json:"started_at"`
}

// NewHealthStatus returns a default health status.
func NewHealthStatus() *HealthStatus {
	return &HealthStatus{StartedAt: time.Now()}
}

func (h *HealthStatus) SetFeedRunning(v bool) {
	h.mu.Lock()
	h.FeedRunning = v
	h.mu.Unlock()
}

// RecordRefresh notes a completed refresh cycle.
func (h *HealthStatus) RecordRefresh(at time.Time, failed int) {
	h.mu.Lock()
	h.LastRefreshAt = at
	h.LastRefreshFail = failed
	h.mu.Unlock()
}

func (h *HealthStatus) SetAccounts(n int) {
	h.mu.Lock()
	h.Accounts = n
	h.mu.Unlock()
}

// CheckRedis pings Redis and records latency and connectivity.
func (h *HealthStatus) CheckRedis(ctx context.Context, rdb *goredis.Client) {
	start := time.Now()
	err := rdb.Ping(ctx).Err()
	latency := time.Since(start)

	h.mu.Lock()
	h.RedisEnabled = true
	h.RedisConnected = err == nil
	h.RedisLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// CheckJournal pings the journal database.
func (h *HealthStatus) CheckJournal(ctx context.Context, p Pinger) {
	start := time.Now()
	err := p.PingContext(ctx)
	latency := time.Since(start)

	h.mu.Lock()
	h.JournalEnabled = true
	h.JournalOK = err == nil
	h.JournalLatency = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// StartLivenessChecker probes the optional dependencies every interval.
// Nil dependencies are skipped.
func (h *HealthStatus) StartLivenessChecker(ctx context.Context, rdb *goredis.Client, journal Pinger, interval time.Duration) {
	probe := func() {
		probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		defer cancel()
		if rdb != nil {
			h.CheckRedis(probeCtx, rdb)
		}
		if journal != nil {
			h.CheckJournal(probeCtx, journal)
		}
	}
	probe()
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				probe()
			}
		}
	}()
}

// Status returns the overall status string and matching HTTP code. The
// service is degraded when an enabled dependency is down; the price feed
// itself always has its fallback table, so it never makes us unhealthy.
func (h *HealthStatus) Status() (string, int) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.statusLocked()
}

func (h *HealthStatus) statusLocked() (string, int) {
	redisDown := h.RedisEnabled && !h.RedisConnected
	journalDown := h.JournalEnabled && !h.JournalOK
	switch {
	case redisDown && journalDown:
		return "unhealthy", http.StatusServiceUnavailable
	case redisDown || journalDown:
		return "degraded", http.StatusServiceUnavailable
	default:
		return "healthy", http.StatusOK
	}
}

// ServeHTTP handles the /healthz endpoint.
func (h *HealthStatus) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	overallStatus, httpCode := h.statusLocked()

	refreshAge := ""
	if !h.LastRefreshAt.IsZero() {
		refreshAge = time.Since(h.LastRefreshAt).Round(time.Millisecond).String()
	}

	status := struct {
		Status          string  `json:"status"`
		Uptime          string  `json:"uptime"`
		FeedRunning     bool    `json:"feed_running"`
		LastRefreshAt   string  `json:"last_refresh_at,omitempty"`
		RefreshAge      string  `json:"refresh_age,omitempty"`
		LastRefreshFail int     `json:"last_refresh_failed"`
		Accounts        int     `json:"accounts"`
		RedisEnabled    bool    `json:"redis_enabled"`
		RedisConnected  bool    `json:"redis_connected"`
		RedisLatencyMs  float64 `json:"redis_latency_ms"`
		JournalEnabled  bool    `json:"journal_enabled"`
		JournalOK       bool    `json:"journal_ok"`
		JournalLatency  float64 `json:"journal_latency_ms"`
		LastCheckAt     string  `json:"last_check_at,omitempty"`
	}{
		Status:          overallStatus,
		Uptime:          time.Since(h.StartedAt).Round(time.Second).String(),
		FeedRunning:     h.FeedRunning,
		RefreshAge:      refreshAge,
		LastRefreshFail: h.LastRefreshFail,
		Accounts:        h.Accounts,
		RedisEnabled:    h.RedisEnabled,
		RedisConnected:  h.RedisConnected,
		RedisLatencyMs:  h.RedisLatencyMs,
		JournalEnabled:  h.JournalEnabled,
		JournalOK:       h.JournalOK,
		JournalLatency:  h.JournalLatency,
	}
	if !h.LastRefreshAt.IsZero() {
		status.LastRefreshAt = h.LastRefreshAt.Format(time.RFC3339)
	}
	if !h.LastCheckAt.IsZero() {
		status.LastCheckAt = h.LastCheckAt.Format(time.RFC3339)
	}

	w.Header().Set("Content-Type", "application/json")
	if httpCode != http.StatusOK {
		w.WriteHeader(httpCode)
	}
	json.NewEncoder(w).Encode(status)
}

// Server runs an HTTP server exposing /metrics and /healthz.
type Server struct {
	addr string
	srv  *http.Server
}

// NewServer creates a metrics and health server. gatherer may be nil for the
// default registry.
func NewServer(addr string, health *HealthStatus, gatherer prometheus.Gatherer) *Server {
	handler := promhttp.Handler()
	if gatherer != nil {
		handler = promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", handler)
	mux.Handle("/healthz", health)

	return &Server{
		addr: addr,
		srv: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
}

// Start launches the HTTP server in a goroutine.
func (s *Server) Start() {
	go func() {
		slog.Info("metrics server listening", slog.String("addr", s.addr))
		if err := s.srv.ListenAndServe(); err != http.ErrServerClosed {
			slog.Error("metrics server error", slog.String("error", err.Error()))
		}
	}()
}

// Stop gracefully shuts down the metrics server.
func (s *Server) Stop(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
