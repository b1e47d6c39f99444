package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/BradenHooton/passcode/internal/models"
	pkglogger "github.com/BradenHooton/passcode/pkg/logger"
	"gopkg.in/gomail.v2"
)

// MailDialer is the subset of gomail.Dialer used for delivery
type MailDialer interface {
	DialAndSend(m ...*gomail.Message) error
}

// SMTPNotifier sends codes through an SMTP relay
type SMTPNotifier struct {
	dialer MailDialer
	from   string
	logger *slog.Logger
}

// NewSMTPNotifier creates an SMTPNotifier for host:port
func NewSMTPNotifier(host string, port int, user, password, from string, logger *slog.Logger) *SMTPNotifier {
	return NewSMTPNotifierWithDialer(gomail.NewDialer(host, port, user, password), from, logger)
}

// NewSMTPNotifierWithDialer creates an SMTPNotifier over an existing dialer
func NewSMTPNotifierWithDialer(dialer MailDialer, from string, logger *slog.Logger) *SMTPNotifier {
	return &SMTPNotifier{
		dialer: dialer,
		from:   from,
		logger: logger,
	}
}

// Name identifies the provider in logs
func (n *SMTPNotifier) Name() string { return "smtp" }

// Send delivers the code email over SMTP. gomail has no context support, so
// the send is abandoned (not aborted) when ctx ends first.
func (n *SMTPNotifier) Send(ctx context.Context, email string, purpose models.Purpose, code string, expiresAt time.Time) error {
	msg, err := RenderCodeMessage(email, purpose, code, expiresAt)
	if err != nil {
		return err
	}

	m := gomail.NewMessage()
	m.SetHeader("From", n.from)
	m.SetHeader("To", msg.To)
	m.SetHeader("Subject", msg.Subject)
	m.SetBody("text/plain", msg.Text)
	m.AddAlternative("text/html", msg.HTML)

	done := make(chan error, 1)
	go func() {
		done <- n.dialer.DialAndSend(m)
	}()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("smtp: failed to send email: %w", err)
		}
	case <-ctx.Done():
		return fmt.Errorf("smtp: %w", ctx.Err())
	}

	n.logger.Info("code email sent",
		slog.String("provider", n.Name()),
		slog.String("email", pkglogger.SanitizedEmail(email)))

	return nil
}
