package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/BradenHooton/passcode/internal/models"
	"github.com/BradenHooton/passcode/internal/repositories"
	pkglogger "github.com/BradenHooton/passcode/pkg/logger"
)

const (
	hourlyWindow = time.Hour
	dailyWindow  = 24 * time.Hour
)

// RateLimitService enforces the per-email issuance ceilings. The ledger is
// derived from stored records; nothing else is persisted.
type RateLimitService struct {
	repo   repositories.CodeRepository
	policy OTPPolicy
	logger *slog.Logger
}

// NewRateLimitService creates a new RateLimitService
func NewRateLimitService(repo repositories.CodeRepository, policy OTPPolicy, logger *slog.Logger) *RateLimitService {
	return &RateLimitService{
		repo:   repo,
		policy: policy,
		logger: logger,
	}
}

// CheckAndReserve evaluates the ceilings for email and, when allowed, runs
// reserve under the same per-email lock so no concurrent issuance can slip past
// a ceiling. A denial is returned as *models.RateLimitError.
func (s *RateLimitService) CheckAndReserve(ctx context.Context, email string, now time.Time, reserve func(ctx context.Context, store repositories.CodeStore) error) error {
	return s.repo.WithEmailLock(ctx, email, func(ctx context.Context, store repositories.CodeStore) error {
		denial, err := s.Evaluate(ctx, store, email, now)
		if err != nil {
			return err
		}
		if denial != nil {
			s.logger.Info("code issuance denied",
				slog.String("email", pkglogger.SanitizedEmail(email)),
				slog.String("reason", string(denial.Reason)),
				slog.Duration("retry_after", denial.RetryAfter))
			return denial
		}

		return reserve(ctx, store)
	})
}

// Evaluate checks cooldown, then the hourly and daily ceilings, in that order.
// It returns nil when issuance is allowed.
func (s *RateLimitService) Evaluate(ctx context.Context, store repositories.CodeStore, email string, now time.Time) (*models.RateLimitError, error) {
	// 1. Cooldown since the last issuance, any purpose
	last, err := store.LatestIssuedAt(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("failed to read last issuance: %w", err)
	}
	if last != nil {
		elapsed := now.Sub(*last)
		if elapsed < s.policy.Cooldown {
			wait := s.policy.Cooldown - elapsed
			if wait > s.policy.Cooldown {
				wait = s.policy.Cooldown // last issuance stamped in the future
			}
			return &models.RateLimitError{Reason: models.RateLimitCooldown, RetryAfter: roundUpToSecond(wait)}, nil
		}
	}

	// 2. Rolling hour
	denial, err := s.checkWindow(ctx, store, email, now, hourlyWindow, s.policy.HourlyLimit, models.RateLimitHourly)
	if err != nil || denial != nil {
		return denial, err
	}

	// 3. Rolling day
	return s.checkWindow(ctx, store, email, now, dailyWindow, s.policy.DailyLimit, models.RateLimitDaily)
}

func (s *RateLimitService) checkWindow(ctx context.Context, store repositories.CodeStore, email string, now time.Time, window time.Duration, limit int, reason models.RateLimitReason) (*models.RateLimitError, error) {
	since := now.Add(-window)

	count, err := store.CountSince(ctx, email, since)
	if err != nil {
		return nil, fmt.Errorf("failed to count %s issuances: %w", reason, err)
	}
	if count < limit {
		return nil, nil
	}

	oldest, err := store.OldestSince(ctx, email, since)
	if err != nil {
		return nil, fmt.Errorf("failed to read oldest %s issuance: %w", reason, err)
	}

	wait := time.Second
	if oldest != nil {
		if until := oldest.Add(window).Sub(now); until > 0 {
			wait = until
		}
	}

	return &models.RateLimitError{Reason: reason, RetryAfter: roundUpToSecond(wait)}, nil
}

// roundUpToSecond rounds d up to a whole, positive number of seconds
func roundUpToSecond(d time.Duration) time.Duration {
	if d <= 0 {
		return time.Second
	}
	return ((d + time.Second - 1) / time.Second) * time.Second
}
