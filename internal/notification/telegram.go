package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"time"

	"stock-dashboard/internal/model"
)

const telegramAPI = "https://api.telegram.org"

// TelegramNotifier posts alerts to a chat through the Telegram Bot API.
type TelegramNotifier struct {
	botToken string
	chatID   string
	baseURL  string
	client   *http.Client
}

func NewTelegramNotifier(botToken, chatID string) *TelegramNotifier {
	return &TelegramNotifier{
		botToken: botToken,
		chatID:   chatID,
		baseURL:  telegramAPI,
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

func (t *TelegramNotifier) Send(ctx context.Context, alert Alert) error {
	body, err := json.Marshal(map[string]string{
		"chat_id":    t.chatID,
		"text":       telegramText(alert),
		"parse_mode": "MarkdownV2",
	})
	if err != nil {
		return fmt.Errorf("telegram: marshal: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", t.baseURL, t.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("telegram: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("telegram: send: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("telegram: unexpected status %d", resp.StatusCode)
	}

	slog.Debug("telegram alert sent", slog.String("kind", string(alert.kind())), slog.String("title", alert.Title))
	return nil
}

// telegramText renders alert as a MarkdownV2 message. Trades lead with the
// side and symbol, provider changes with the provider and its new state.
func telegramText(a Alert) string {
	var b strings.Builder
	switch a.kind() {
	case KindTrade:
		icon := "🟢"
		if a.Fields["side"] == string(model.SideSell) {
			icon = "🔴"
		}
		fmt.Fprintf(&b, "%s *%s*\n", icon, escapeMarkdown(a.Title))
		fmt.Fprintf(&b, "Account: %s\n", escapeMarkdown(a.Account))
		b.WriteString(escapeMarkdown(a.Message))
	case KindProvider:
		icon := "✅"
		if a.Fields["to"] != "closed" {
			icon = "🔌"
		}
		fmt.Fprintf(&b, "%s *%s*\n", icon, escapeMarkdown(a.Provider))
		b.WriteString(escapeMarkdown(a.Message))
	default:
		icon := "ℹ️"
		switch a.Level {
		case AlertWarning:
			icon = "⚠️"
		case AlertCritical:
			icon = "🚨"
		}
		fmt.Fprintf(&b, "%s *%s*\n\n%s", icon, escapeMarkdown(a.Title), escapeMarkdown(a.Message))
	}

	if len(a.Fields) > 0 {
		keys := make([]string, 0, len(a.Fields))
		for k := range a.Fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteString("\n")
		for _, k := range keys {
			fmt.Fprintf(&b, "\n`%s` %s", escapeMarkdown(k), escapeMarkdown(a.Fields[k]))
		}
	}
	return b.String()
}

// escapeMarkdown escapes special characters for Telegram MarkdownV2.
func escapeMarkdown(s string) string {
	const specials = "_*[]()~`>#+-=|{}.!"
	var buf bytes.Buffer
	for i := 0; i < len(s); i++ {
		if strings.IndexByte(specials, s[i]) >= 0 {
			buf.WriteByte('\\')
		}
		buf.WriteByte(s[i])
	}
	return buf.String()
}
