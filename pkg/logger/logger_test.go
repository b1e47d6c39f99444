package logger_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/BradenHooton/passcode/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizedEmail(t *testing.T) {
	tests := []struct {
		in       string
		expected string
	}{
		{"user@example.com", "u***@*******.com"},
		{"a@mail.example.org", "a@****.*******.org"},
		{"no-at-sign", "[invalid-email]"},
		{"@example.com", "[invalid-email]"},
		{"a@b@c", "[invalid-email]"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.expected, logger.SanitizedEmail(tt.in))
		})
	}
}

func TestSanitizeQueryString(t *testing.T) {
	assert.True(t, logger.SanitizeQueryString("email=a@b.com"))
	assert.True(t, logger.SanitizeQueryString("CODE=123456"))
	assert.False(t, logger.SanitizeQueryString("page=2"))
	assert.False(t, logger.SanitizeQueryString(""))
}

func TestAuditLogger_LogOTPEvent(t *testing.T) {
	var buf bytes.Buffer
	audit := logger.NewAuditLogger(slog.New(slog.NewJSONHandler(&buf, nil)))

	audit.LogOTPEvent(context.Background(), logger.AuditEvent{
		EventType:     logger.EventOTPVerifyFailed,
		Email:         "user@example.com",
		Purpose:       "signup",
		IPAddress:     "203.0.113.1",
		FailureReason: "mismatch",
	})

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "WARN", entry["level"])
	assert.Equal(t, "otp_verify_failed", entry["event_type"])
	assert.Equal(t, "u***@*******.com", entry["email"])
	assert.Equal(t, "mismatch", entry["failure_reason"])
	assert.Equal(t, "203.0.113.1", entry["ip_address"])
	assert.NotContains(t, buf.String(), "user@example.com")
}

func TestClientIP_RoundTrip(t *testing.T) {
	ctx := logger.WithClientIP(context.Background(), "198.51.100.9")

	assert.Equal(t, "198.51.100.9", logger.ClientIP(ctx))
	assert.Equal(t, "", logger.ClientIP(context.Background()))
}
