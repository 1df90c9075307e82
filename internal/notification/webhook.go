package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// WebhookNotifier POSTs alerts as JSON to an HTTP endpoint.
type WebhookNotifier struct {
	url    string
	client *http.Client
	now    func() time.Time
}

func NewWebhookNotifier(url string) *WebhookNotifier {
	return &WebhookNotifier{
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
		now:    time.Now,
	}
}

// webhookPayload is the body receivers get. Account, symbol and provider are
// top-level so receivers can route on them without parsing the message.
type webhookPayload struct {
	Source   string            `json:"source"`
	Kind     AlertKind         `json:"kind"`
	Level    AlertLevel        `json:"level"`
	Title    string            `json:"title"`
	Message  string            `json:"message"`
	Account  string            `json:"account,omitempty"`
	Symbol   string            `json:"symbol,omitempty"`
	Provider string            `json:"provider,omitempty"`
	Fields   map[string]string `json:"fields,omitempty"`
	TS       string            `json:"ts"`
}

func (w *WebhookNotifier) Send(ctx context.Context, alert Alert) error {
	body, err := json.Marshal(webhookPayload{
		Source:   "stock-dashboard",
		Kind:     alert.kind(),
		Level:    alert.Level,
		Title:    alert.Title,
		Message:  alert.Message,
		Account:  alert.Account,
		Symbol:   alert.Symbol,
		Provider: alert.Provider,
		Fields:   alert.Fields,
		TS:       w.now().UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return fmt.Errorf("webhook: marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("webhook: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook: send: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook: unexpected status %d", resp.StatusCode)
	}

	slog.Debug("webhook alert sent", slog.String("kind", string(alert.kind())), slog.String("title", alert.Title))
	return nil
}
