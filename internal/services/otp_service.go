package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/BradenHooton/passcode/internal/models"
	"github.com/BradenHooton/passcode/internal/repositories"
	"github.com/BradenHooton/passcode/pkg/clock"
	pkglogger "github.com/BradenHooton/passcode/pkg/logger"
)

// IssueResult describes a successfully issued code. The code itself is only
// ever handed to the Notifier.
type IssueResult struct {
	RecordID  string
	Email     string
	Purpose   models.Purpose
	ExpiresAt time.Time
	ExpiresIn time.Duration
}

// OTPService orchestrates code issuance and verification
type OTPService struct {
	limiter     *RateLimitService
	verifier    *Verifier
	generator   CodeGenerator
	hasher      CodeHasher
	notifier    Notifier
	clock       clock.Clock
	logger      *slog.Logger
	auditLogger *pkglogger.AuditLogger
}

// NewOTPService creates a new OTPService
func NewOTPService(
	limiter *RateLimitService,
	verifier *Verifier,
	generator CodeGenerator,
	hasher CodeHasher,
	notifier Notifier,
	clk clock.Clock,
	logger *slog.Logger,
	auditLogger *pkglogger.AuditLogger,
) *OTPService {
	return &OTPService{
		limiter:     limiter,
		verifier:    verifier,
		generator:   generator,
		hasher:      hasher,
		notifier:    notifier,
		clock:       clk,
		logger:      logger,
		auditLogger: auditLogger,
	}
}

// RequestCode issues a code for (email, purpose) if the ceilings allow it and
// delivers it. A delivery failure leaves the issued record in place and
// returns an error wrapping models.ErrDeliveryFailed.
func (s *OTPService) RequestCode(ctx context.Context, email, purpose string) (*IssueResult, error) {
	email, err := NormalizeEmail(email)
	if err != nil {
		return nil, err
	}
	p, err := models.ParsePurpose(purpose)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()

	var code string
	var record *models.OTPRecord
	err = s.limiter.CheckAndReserve(ctx, email, now, func(ctx context.Context, store repositories.CodeStore) error {
		var expiresAt time.Time
		code, expiresAt = s.generator.Generate(now)
		record = &models.OTPRecord{
			Email:     email,
			Purpose:   p,
			CodeHash:  s.hasher.Digest(code),
			CreatedAt: now,
			ExpiresAt: expiresAt,
		}

		_, err := store.Insert(ctx, record)
		return err
	})

	var rlErr *models.RateLimitError
	if errors.As(err, &rlErr) {
		s.auditLogger.LogOTPEvent(ctx, pkglogger.AuditEvent{
			EventType:     pkglogger.EventOTPRateLimited,
			Email:         email,
			Purpose:       p.String(),
			IPAddress:     pkglogger.ClientIP(ctx),
			FailureReason: string(rlErr.Reason),
			Metadata:      map[string]string{"retry_after": rlErr.RetryAfter.String()},
		})
		return nil, rlErr
	}
	if err != nil {
		s.logger.Error("failed to issue code",
			slog.String("email", pkglogger.SanitizedEmail(email)),
			slog.String("purpose", p.String()),
			slog.Any("error", err))
		return nil, fmt.Errorf("failed to issue code: %w", err)
	}

	// Delivery happens outside the lock and never rolls back the record
	if err := s.notifier.Send(ctx, email, p, code, record.ExpiresAt); err != nil {
		s.logger.Error("failed to deliver code",
			slog.String("email", pkglogger.SanitizedEmail(email)),
			slog.String("record_id", record.ID),
			slog.Any("error", err))
		s.auditLogger.LogOTPEvent(ctx, pkglogger.AuditEvent{
			EventType:     pkglogger.EventOTPDeliveryFailed,
			Email:         email,
			Purpose:       p.String(),
			IPAddress:     pkglogger.ClientIP(ctx),
			FailureReason: "notifier_error",
		})
		return nil, fmt.Errorf("%w: %w", models.ErrDeliveryFailed, err)
	}

	s.auditLogger.LogOTPEvent(ctx, pkglogger.AuditEvent{
		EventType: pkglogger.EventOTPIssued,
		Email:     email,
		Purpose:   p.String(),
		IPAddress: pkglogger.ClientIP(ctx),
		Success:   true,
	})

	return &IssueResult{
		RecordID:  record.ID,
		Email:     email,
		Purpose:   p,
		ExpiresAt: record.ExpiresAt,
		ExpiresIn: record.ExpiresAt.Sub(now),
	}, nil
}

// VerifyCode checks code for (email, purpose). Validation failures are returned
// as errors with no side effects; every verification outcome, including
// failures, is returned as a models.VerifyResult.
func (s *OTPService) VerifyCode(ctx context.Context, email, purpose, code string) (models.VerifyResult, error) {
	email, err := NormalizeEmail(email)
	if err != nil {
		return 0, err
	}
	p, err := models.ParsePurpose(purpose)
	if err != nil {
		return 0, err
	}
	code = strings.TrimSpace(code)
	if code == "" {
		return 0, models.ErrMissingCode
	}

	result, err := s.verifier.Verify(ctx, email, p, code, s.clock.Now())
	if err != nil {
		s.logger.Error("failed to verify code",
			slog.String("email", pkglogger.SanitizedEmail(email)),
			slog.String("purpose", p.String()),
			slog.Any("error", err))
		return 0, fmt.Errorf("failed to verify code: %w", err)
	}

	event := pkglogger.AuditEvent{
		EventType: pkglogger.EventOTPVerified,
		Email:     email,
		Purpose:   p.String(),
		IPAddress: pkglogger.ClientIP(ctx),
		Success:   result == models.VerifySuccess,
	}
	if !event.Success {
		event.EventType = pkglogger.EventOTPVerifyFailed
		event.FailureReason = result.String()
	}
	s.auditLogger.LogOTPEvent(ctx, event)

	return result, nil
}
