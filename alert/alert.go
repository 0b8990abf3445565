// Package alert surfaces cycle failures to the operator.
package alert

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Notifier delivers an operator-visible alert. Delivery is best effort; an
// alert channel being down must never make a cycle failure worse.
type Notifier interface {
	Notify(ctx context.Context, subject, message string)
}

// LogNotifier writes alerts to the service log at error level.
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier creates a log-backed notifier.
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

// Notify implements Notifier.
func (n *LogNotifier) Notify(_ context.Context, subject, message string) {
	n.logger.Error("operator alert",
		zap.String("subject", subject),
		zap.String("message", message))
}

// WebhookNotifier POSTs alerts as JSON to a configured endpoint, the usual
// bridge to a phone notification service.
type WebhookNotifier struct {
	url    string
	client *http.Client
	logger *zap.Logger
}

// NewWebhookNotifier creates a webhook-backed notifier.
func NewWebhookNotifier(url string, logger *zap.Logger) *WebhookNotifier {
	return &WebhookNotifier{
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
		logger: logger,
	}
}

// Notify implements Notifier.
func (n *WebhookNotifier) Notify(ctx context.Context, subject, message string) {
	payload, err := json.Marshal(map[string]string{
		"subject": subject,
		"message": message,
		"time":    time.Now().Format(time.RFC3339),
	})
	if err != nil {
		n.logger.Error("failed to encode alert payload", zap.Error(err))
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(payload))
	if err != nil {
		n.logger.Error("failed to create alert request", zap.Error(err))
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		n.logger.Error("failed to deliver alert webhook", zap.Error(err))
		return
	}
	resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		n.logger.Error("alert webhook rejected", zap.Int("status", resp.StatusCode))
	}
}

// Multi fans an alert out to several notifiers.
type Multi []Notifier

// Notify implements Notifier.
func (m Multi) Notify(ctx context.Context, subject, message string) {
	for _, n := range m {
		n.Notify(ctx, subject, message)
	}
}
