package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/BradenHooton/passcode/internal/models"
	"github.com/BradenHooton/passcode/internal/repositories"
	pkglogger "github.com/BradenHooton/passcode/pkg/logger"
)

// Verifier checks a submitted code against the active record for (email, purpose)
type Verifier struct {
	store       repositories.CodeStore
	hasher      CodeHasher
	maxAttempts int
	logger      *slog.Logger
}

// NewVerifier creates a new Verifier
func NewVerifier(store repositories.CodeStore, hasher CodeHasher, maxAttempts int, logger *slog.Logger) *Verifier {
	return &Verifier{
		store:       store,
		hasher:      hasher,
		maxAttempts: maxAttempts,
		logger:      logger,
	}
}

// Verify evaluates submitted at now. Only a comparison counts as an attempt;
// records that are consumed, expired or exhausted are never mutated.
func (v *Verifier) Verify(ctx context.Context, email string, purpose models.Purpose, submitted string, now time.Time) (models.VerifyResult, error) {
	// A record accepts at most maxAttempts updates, so a caller can lose the
	// version race at most that many times before it observes a terminal state.
	tries := v.maxAttempts + 1
	for try := 0; try < tries; try++ {
		record, err := v.store.LatestByEmailAndPurpose(ctx, email, purpose)
		if errors.Is(err, models.ErrNotFound) {
			return models.VerifyNotFound, nil
		}
		if err != nil {
			return 0, fmt.Errorf("failed to load code: %w", err)
		}

		switch {
		case record.Consumed:
			return models.VerifyAlreadyUsed, nil
		case record.IsExpired(now):
			return models.VerifyExpired, nil
		case record.IsExhausted(v.maxAttempts):
			return models.VerifyTooManyAttempts, nil
		}

		match := v.hasher.Equal(submitted, record.CodeHash)
		record.Attempts++
		if match {
			record.Consumed = true
		}

		err = v.store.Update(ctx, record)
		if errors.Is(err, models.ErrConflict) {
			v.logger.Debug("code record changed during verification, retrying",
				slog.String("email", pkglogger.SanitizedEmail(email)),
				slog.Int("try", try+1))
			continue
		}
		if err != nil {
			return 0, fmt.Errorf("failed to record attempt: %w", err)
		}

		if match {
			return models.VerifySuccess, nil
		}
		return models.VerifyMismatch, nil
	}

	return 0, fmt.Errorf("verification did not settle after %d tries: %w", tries, models.ErrConflict)
}
