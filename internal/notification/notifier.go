// Package notification delivers dashboard alerts (executed trades, price
// provider outages) to external channels.
package notification

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"stock-dashboard/internal/model"
)

// AlertLevel represents the severity of an alert.
type AlertLevel string

const (
	AlertInfo     AlertLevel = "INFO"
	AlertWarning  AlertLevel = "WARNING"
	AlertCritical AlertLevel = "CRITICAL"
)

// AlertKind says what an alert is about; channels format each kind differently.
type AlertKind string

const (
	KindSystem   AlertKind = "system"
	KindTrade    AlertKind = "trade"
	KindProvider AlertKind = "provider"
)

// Alert represents a notification to be sent.
type Alert struct {
	Kind     AlertKind         `json:"kind,omitempty"`
	Level    AlertLevel        `json:"level"`
	Title    string            `json:"title"`
	Message  string            `json:"message"`
	Account  string            `json:"account,omitempty"`
	Symbol   string            `json:"symbol,omitempty"`
	Provider string            `json:"provider,omitempty"`
	Fields   map[string]string `json:"fields,omitempty"`
}

func (a Alert) kind() AlertKind {
	if a.Kind == "" {
		return KindSystem
	}
	return a.Kind
}

// Notifier is the interface for all notification backends.
type Notifier interface {
	// Send delivers an alert. Returns error if delivery fails.
	Send(ctx context.Context, alert Alert) error
}

// LogNotifier writes alerts to the structured log.
type LogNotifier struct {
	logger *slog.Logger
}

func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Send(_ context.Context, alert Alert) error {
	attrs := []any{
		slog.String("kind", string(alert.kind())),
		slog.String("level", string(alert.Level)),
		slog.String("title", alert.Title),
	}
	if alert.Account != "" {
		attrs = append(attrs, slog.String("account", alert.Account))
	}
	if alert.Symbol != "" {
		attrs = append(attrs, slog.String("symbol", alert.Symbol))
	}
	if alert.Provider != "" {
		attrs = append(attrs, slog.String("provider", alert.Provider))
	}
	for k, v := range alert.Fields {
		attrs = append(attrs, slog.String(k, v))
	}
	n.logger.Info(alert.Message, attrs...)
	return nil
}

// Multi sends to every notifier and joins their errors.
type Multi []Notifier

func (m Multi) Send(ctx context.Context, alert Alert) error {
	var errs []error
	for _, n := range m {
		if err := n.Send(ctx, alert); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// TradeAlert describes an executed trade.
func TradeAlert(accountID string, tx model.Transaction) Alert {
	a := Alert{
		Kind:    KindTrade,
		Level:   AlertInfo,
		Title:   fmt.Sprintf("%s %s", tx.Type, tx.Symbol),
		Account: accountID,
		Symbol:  tx.Symbol,
		Message: fmt.Sprintf("%s %d %s @ %s (total %s)",
			accountID, tx.Quantity, tx.Symbol, model.FormatUSD(tx.Price), model.FormatUSD(tx.Total)),
		Fields: map[string]string{
			"tx_id":    tx.ID,
			"side":     string(tx.Type),
			"quantity": fmt.Sprint(tx.Quantity),
			"price":    tx.Price.StringFixed(2),
		},
	}
	if tx.ProfitLoss != nil {
		a.Message += ", P/L " + model.FormatUSD(*tx.ProfitLoss)
		a.Fields["profit_loss"] = tx.ProfitLoss.StringFixed(2)
	}
	return a
}

// ProviderAlert describes a price provider circuit change.
func ProviderAlert(provider, from, to string) Alert {
	level := AlertInfo
	if to == "open" {
		level = AlertWarning
	}
	return Alert{
		Kind:     KindProvider,
		Level:    level,
		Title:    "price provider " + provider,
		Message:  fmt.Sprintf("circuit %s -> %s", from, to),
		Provider: provider,
		Fields:   map[string]string{"from": from, "to": to},
	}
}

// Dispatcher sends alerts from a background goroutine so callers on hot
// paths never wait on the network. When the queue is full alerts are dropped.
type Dispatcher struct {
	n       Notifier
	queue   chan Alert
	timeout time.Duration
	logger  *slog.Logger
	wg      sync.WaitGroup

	mu     sync.RWMutex
	closed bool

	// OnDrop is called when an alert is discarded because the queue is full.
	OnDrop func(Alert)
}

func NewDispatcher(n Notifier, size int, logger *slog.Logger) *Dispatcher {
	if size <= 0 {
		size = 64
	}
	if logger == nil {
		logger = slog.Default()
	}
	d := &Dispatcher{n: n, queue: make(chan Alert, size), timeout: 10 * time.Second, logger: logger}
	d.wg.Add(1)
	go d.run()
	return d
}

// Notify enqueues alert. It never blocks.
func (d *Dispatcher) Notify(alert Alert) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return
	}
	select {
	case d.queue <- alert:
	default:
		d.logger.Warn("alert dropped, queue full", slog.String("title", alert.Title))
		if d.OnDrop != nil {
			d.OnDrop(alert)
		}
	}
}

// Close stops accepting alerts and waits for queued ones to be sent.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()
	d.wg.Wait()
}

func (d *Dispatcher) run() {
	defer d.wg.Done()
	for alert := range d.queue {
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		if err := d.n.Send(ctx, alert); err != nil {
			d.logger.Warn("alert delivery failed", slog.String("title", alert.Title), slog.String("error", err.Error()))
		}
		cancel()
	}
}
