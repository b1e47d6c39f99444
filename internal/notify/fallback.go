package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/BradenHooton/passcode/internal/models"
	pkglogger "github.com/BradenHooton/passcode/pkg/logger"
)

// Provider is one named delivery channel
type Provider interface {
	Send(ctx context.Context, email string, purpose models.Purpose, code string, expiresAt time.Time) error
	Name() string
}

// ErrNoProviders is returned when a FallbackNotifier has nothing to try
var ErrNoProviders = errors.New("no email providers configured")

// FallbackNotifier tries providers in order until one succeeds
type FallbackNotifier struct {
	providers []Provider
	timeout   time.Duration
	logger    *slog.Logger
}

// NewFallbackNotifier creates a FallbackNotifier. A positive timeout bounds each provider attempt.
func NewFallbackNotifier(providers []Provider, timeout time.Duration, logger *slog.Logger) *FallbackNotifier {
	return &FallbackNotifier{
		providers: providers,
		timeout:   timeout,
		logger:    logger,
	}
}

// Send delivers through the first provider that succeeds
func (f *FallbackNotifier) Send(ctx context.Context, email string, purpose models.Purpose, code string, expiresAt time.Time) error {
	if len(f.providers) == 0 {
		return ErrNoProviders
	}

	var errs []error
	for _, provider := range f.providers {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}

		err := f.sendOne(ctx, provider, email, purpose, code, expiresAt)
		if err == nil {
			return nil
		}

		f.logger.Warn("email provider failed",
			slog.String("provider", provider.Name()),
			slog.String("email", pkglogger.SanitizedEmail(email)),
			slog.Any("error", err))
		errs = append(errs, fmt.Errorf("%s: %w", provider.Name(), err))
	}

	return fmt.Errorf("all email providers failed: %w", errors.Join(errs...))
}

func (f *FallbackNotifier) sendOne(ctx context.Context, provider Provider, email string, purpose models.Purpose, code string, expiresAt time.Time) error {
	if f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}
	return provider.Send(ctx, email, purpose, code, expiresAt)
}
