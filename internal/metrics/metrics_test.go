package metrics

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNewMetrics_RegistersOnCustomRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.TradesTotal.WithLabelValues("BUY").Inc()
	m.TradesTotal.WithLabelValues("BUY").Inc()
	m.RefreshSkipped.Inc()

	if got := testutil.ToFloat64(m.TradesTotal.WithLabelValues("BUY")); got != 2 {
		t.Errorf("trades BUY = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.RefreshSkipped); got != 1 {
		t.Errorf("skipped = %v, want 1", got)
	}

	// a second set on a fresh registry must not panic
	NewMetrics(prometheus.NewRegistry())
}

type pinger struct{ err error }

func (p pinger) PingContext(context.Context) error { return p.err }

func TestHealthStatus_Status(t *testing.T) {
	tests := []struct {
		name       string
		journalErr error
		wantStatus string
		wantCode   int
	}{
		{"no deps", nil, "healthy", http.StatusOK},
		{"journal ok", nil, "healthy", http.StatusOK},
		{"journal down", errors.New("disk"), "degraded", http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHealthStatus()
			if tt.name != "no deps" {
				h.CheckJournal(context.Background(), pinger{err: tt.journalErr})
			}
			status, code := h.Status()
			if status != tt.wantStatus || code != tt.wantCode {
				t.Errorf("Status() = %s/%d, want %s/%d", status, code, tt.wantStatus, tt.wantCode)
			}
		})
	}
}

func TestHealthStatus_ServeHTTP(t *testing.T) {
	h := NewHealthStatus()
	h.SetFeedRunning(true)
	h.SetAccounts(3)
	h.RecordRefresh(time.Now(), 1)
	h.CheckJournal(context.Background(), pinger{})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("code = %d", rec.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body["status"] != "healthy" || body["feed_running"] != true || body["accounts"] != float64(3) {
		t.Errorf("unexpected body: %v", body)
	}
	if body["journal_ok"] != true {
		t.Errorf("journal_ok = %v", body["journal_ok"])
	}
}
