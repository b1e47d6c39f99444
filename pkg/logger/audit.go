package logger

import (
	"context"
	"log/slog"
	"time"
)

// OTP audit event types
const (
	EventOTPIssued         = "otp_issued"
	EventOTPRateLimited    = "otp_rate_limited"
	EventOTPDeliveryFailed = "otp_delivery_failed"
	EventOTPVerified       = "otp_verified"
	EventOTPVerifyFailed   = "otp_verify_failed"
)

// AuditEvent represents a security audit event
type AuditEvent struct {
	EventType     string
	Email         string
	Purpose       string
	IPAddress     string
	Success       bool
	FailureReason string
	Metadata      map[string]string
}

// AuditLogger writes security audit events. Failure reasons are recorded
// precisely here even though clients only ever see a generic message.
type AuditLogger struct {
	logger *slog.Logger
}

// NewAuditLogger creates a new audit logger
func NewAuditLogger(logger *slog.Logger) *AuditLogger {
	return &AuditLogger{
		logger: logger,
	}
}

// LogOTPEvent logs an issuance or verification event
func (al *AuditLogger) LogOTPEvent(ctx context.Context, event AuditEvent) {
	attrs := []slog.Attr{
		slog.String("audit_type", "otp"),
		slog.String("event_type", event.EventType),
		slog.Bool("success", event.Success),
		slog.String("timestamp", time.Now().UTC().Format(time.RFC3339)),
	}

	if event.Email != "" {
		attrs = append(attrs, slog.String("email", SanitizedEmail(event.Email)))
	}
	if event.Purpose != "" {
		attrs = append(attrs, slog.String("purpose", event.Purpose))
	}
	if event.IPAddress != "" {
		attrs = append(attrs, slog.String("ip_address", event.IPAddress))
	}
	if event.FailureReason != "" {
		attrs = append(attrs, slog.String("failure_reason", event.FailureReason))
	}
	for key, val := range event.Metadata {
		attrs = append(attrs, slog.String(key, val))
	}

	level := slog.LevelInfo
	if !event.Success {
		level = slog.LevelWarn
	}
	al.logger.LogAttrs(ctx, level, "audit", attrs...)
}

type ipKey struct{}

// WithClientIP stores the client IP on ctx so audit events deeper in the call
// chain can attribute themselves without threading the request through
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, ipKey{}, ip)
}

// ClientIP returns the IP stored by WithClientIP, or ""
func ClientIP(ctx context.Context) string {
	ip, _ := ctx.Value(ipKey{}).(string)
	return ip
}
