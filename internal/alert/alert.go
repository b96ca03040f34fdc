// Package alert delivers operator notifications and throttles repeated ones.
package alert

import (
	"context"
	"fmt"

	"github.com/slack-go/slack"
	"go.uber.org/zap"

	"github.com/skyfeed/skyfeed/pkg/config"
	"github.com/skyfeed/skyfeed/pkg/logging"
)

// Notifier sends a message to operators
type Notifier interface {
	Notify(ctx context.Context, message string) error
}

// New returns a Slack notifier when a webhook is configured, otherwise a log-only notifier
func New(cfg *config.AlertConfig) Notifier {
	if cfg.SlackWebhookURL == "" {
		return NewLogNotifier()
	}
	return &SlackNotifier{
		webhookURL: cfg.SlackWebhookURL,
		logger:     logging.WithComponent("alert"),
	}
}

// SlackNotifier posts alerts to a Slack incoming webhook
type SlackNotifier struct {
	webhookURL string
	logger     *zap.Logger
}

// Notify posts message to the webhook
func (n *SlackNotifier) Notify(ctx context.Context, message string) error {
	n.logger.Warn("Sending alert", zap.String("message", message))
	if err := slack.PostWebhookContext(ctx, n.webhookURL, &slack.WebhookMessage{Text: message}); err != nil {
		return fmt.Errorf("failed to post slack webhook: %w", err)
	}
	return nil
}

// LogNotifier only writes alerts to the application log
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier creates a log-only notifier
func NewLogNotifier() *LogNotifier {
	return &LogNotifier{logger: logging.WithComponent("alert")}
}

// Notify logs message at error level
func (n *LogNotifier) Notify(_ context.Context, message string) error {
	n.logger.Error("Alert", zap.String("message", message))
	return nil
}
