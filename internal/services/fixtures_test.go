package services

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/BradenHooton/passcode/pkg/auth"
	"github.com/BradenHooton/passcode/pkg/clock"
	pkglogger "github.com/BradenHooton/passcode/pkg/logger"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type otpFixture struct {
	svc      *OTPService
	repo     *MockCodeRepository
	clock    *clock.Fake
	notifier *MockNotifier
	hasher   *auth.CodeHasher
}

func newOTPFixture(t *testing.T) *otpFixture {
	t.Helper()

	hasher, err := auth.NewCodeHasher("test-pepper-0123456789")
	require.NoError(t, err)

	policy := DefaultOTPPolicy()
	repo := NewMockCodeRepository()
	clk := clock.NewFake(t0)
	notifier := &MockNotifier{}
	logger := discardLogger()

	svc := NewOTPService(
		NewRateLimitService(repo, policy, logger),
		NewVerifier(repo, hasher, policy.MaxAttempts, logger),
		auth.NewCodeGenerator(policy.CodeTTL),
		hasher,
		notifier,
		clk,
		logger,
		pkglogger.NewAuditLogger(logger),
	)

	return &otpFixture{svc: svc, repo: repo, clock: clk, notifier: notifier, hasher: hasher}
}
