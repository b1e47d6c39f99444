package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/BradenHooton/passcode/internal/models"
	pkglogger "github.com/BradenHooton/passcode/pkg/logger"
	"github.com/resend/resend-go/v2"
)

// ResendAPI is the subset of the Resend emails service used for delivery
type ResendAPI interface {
	SendWithContext(ctx context.Context, params *resend.SendEmailRequest) (*resend.SendEmailResponse, error)
}

// ResendNotifier sends codes using the Resend API
type ResendNotifier struct {
	emails ResendAPI
	from   string
	logger *slog.Logger
}

// NewResendNotifier creates a ResendNotifier with an API key
func NewResendNotifier(apiKey, from string, logger *slog.Logger) *ResendNotifier {
	return NewResendNotifierWithClient(resend.NewClient(apiKey).Emails, from, logger)
}

// NewResendNotifierWithClient creates a ResendNotifier over an existing emails service
func NewResendNotifierWithClient(emails ResendAPI, from string, logger *slog.Logger) *ResendNotifier {
	return &ResendNotifier{
		emails: emails,
		from:   from,
		logger: logger,
	}
}

// Name identifies the provider in logs
func (n *ResendNotifier) Name() string { return "resend" }

// Send delivers the code email via Resend
func (n *ResendNotifier) Send(ctx context.Context, email string, purpose models.Purpose, code string, expiresAt time.Time) error {
	msg, err := RenderCodeMessage(email, purpose, code, expiresAt)
	if err != nil {
		return err
	}

	params := &resend.SendEmailRequest{
		From:    n.from,
		To:      []string{msg.To},
		Subject: msg.Subject,
		Html:    msg.HTML,
		Text:    msg.Text,
	}

	res, err := n.emails.SendWithContext(ctx, params)
	if err != nil {
		return fmt.Errorf("resend: failed to send email: %w", err)
	}

	n.logger.Info("code email sent",
		slog.String("provider", n.Name()),
		slog.String("email", pkglogger.SanitizedEmail(email)),
		slog.String("message_id", res.Id))

	return nil
}
