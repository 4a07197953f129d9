// Package line implements the notify.Notifier interface using the LINE
// Messaging API for user push notifications.
package line

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/driveflow/driveflow-api/internal/config"
	"github.com/driveflow/driveflow-api/internal/notify"
	"github.com/line/line-bot-sdk-go/v7/linebot"
)

// Notifier pushes processing outcomes to users over LINE.
type Notifier struct {
	bot    *linebot.Client
	logger *slog.Logger
}

// NewNotifier creates a Notifier from the messaging configuration.
func NewNotifier(logger *slog.Logger, cfg config.MessagingConfig) (*Notifier, error) {
	bot, err := linebot.New(cfg.ChannelSecret, cfg.ChannelToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create LINE client: %w", err)
	}

	return &Notifier{
		bot:    bot,
		logger: logger.With("component", "line_notifier"),
	}, nil
}

// Ensure Notifier implements notify.Notifier.
var _ notify.Notifier = (*Notifier)(nil)

// Notify implements notify.Notifier.Notify.
func (n *Notifier) Notify(ctx context.Context, userID string, kind notify.EventKind, payload notify.Payload) error {
	message := formatMessage(kind, payload)

	_, err := n.bot.PushMessage(userID, linebot.NewTextMessage(message)).WithContext(ctx).Do()
	if err != nil {
		return fmt.Errorf("failed to push LINE message: %w", err)
	}

	n.logger.DebugContext(ctx, "pushed notification", "user_id", userID, "kind", kind)
	return nil
}

// formatMessage renders the user-facing text for one event.
func formatMessage(kind notify.EventKind, payload notify.Payload) string {
	var sb strings.Builder

	switch kind {
	case notify.EventProcessingCompleted:
		fmt.Fprintf(&sb, "✅ %s is ready", payload.Filename)
		if payload.Summary != "" {
			fmt.Fprintf(&sb, "\n%s", payload.Summary)
		}
		if len(payload.Tags) > 0 {
			fmt.Fprintf(&sb, "\nTags: %s", strings.Join(payload.Tags, ", "))
		}

	case notify.EventProcessingFailed:
		fmt.Fprintf(&sb, "⚠️ Processing of %s failed", payload.Filename)
		if payload.Error != "" {
			fmt.Fprintf(&sb, "\n%s", payload.Error)
		}

	default:
		fmt.Fprintf(&sb, "%s: %s", kind, payload.Filename)
	}

	return sb.String()
}

// NopNotifier drops all notifications. It is used when no messaging
// credentials are configured.
type NopNotifier struct{}

// Notify implements notify.Notifier.Notify as a no-op.
func (NopNotifier) Notify(context.Context, string, notify.EventKind, notify.Payload) error {
	return nil
}

var _ notify.Notifier = NopNotifier{}
