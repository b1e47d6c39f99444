package notify

import (
	"context"
	"log/slog"
	"time"

	"github.com/BradenHooton/passcode/internal/models"
)

// LogNotifier writes codes to the application log instead of sending them.
// Development only; configuration refuses it in production.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier creates a new LogNotifier
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

// Name identifies the provider in logs
func (n *LogNotifier) Name() string { return "log" }

// Send logs the code
func (n *LogNotifier) Send(ctx context.Context, email string, purpose models.Purpose, code string, expiresAt time.Time) error {
	n.logger.LogAttrs(ctx, slog.LevelWarn, "code delivery (development log notifier)",
		slog.String("email", email),
		slog.String("purpose", purpose.String()),
		slog.String("code", code),
		slog.Time("expires_at", expiresAt))
	return nil
}
