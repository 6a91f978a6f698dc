// Package notify defines the outbound push-notification port. Delivery is
// handled by an external provider; the service only needs best-effort
// fan-out that never fails a state mutation.
package notify

import (
	"context"

	"go.uber.org/zap"

	"github.com/example/srdflow/internal/models"
)

// Pusher sends push notifications to users. Implementations must be
// best-effort: errors are for logging only.
type Pusher interface {
	PushTo(ctx context.Context, user models.User, title, body string) error
}

// LogPusher is the default Pusher used when no provider is configured; it
// records the notification and does nothing else.
type LogPusher struct {
	logger *zap.Logger
}

// NewLogPusher creates a logging-only pusher.
func NewLogPusher(logger *zap.Logger) *LogPusher {
	return &LogPusher{logger: logger}
}

// PushTo logs the would-be notification.
func (p *LogPusher) PushTo(ctx context.Context, user models.User, title, body string) error {
	p.logger.Info("push notification",
		zap.String("user", user.Username),
		zap.String("title", title),
		zap.String("body", body))
	return nil
}
