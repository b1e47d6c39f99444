package repositories

import (
	"context"
	"time"

	"github.com/BradenHooton/passcode/internal/models"
)

// CodeStore defines OTP record persistence operations
type CodeStore interface {
	// Insert stores a new record, assigning its ID and initial version
	Insert(ctx context.Context, record *models.OTPRecord) (string, error)
	// LatestByEmailAndPurpose returns the active record, or models.ErrNotFound
	LatestByEmailAndPurpose(ctx context.Context, email string, purpose models.Purpose) (*models.OTPRecord, error)
	// Update persists Attempts and Consumed when the stored version matches
	// record.Version, then bumps record.Version. A stale version yields models.ErrConflict.
	Update(ctx context.Context, record *models.OTPRecord) error
	// CountSince counts records for email, across purposes, created at or after since
	CountSince(ctx context.Context, email string, since time.Time) (int, error)
	// LatestIssuedAt returns the newest created_at for email across purposes, or nil
	LatestIssuedAt(ctx context.Context, email string) (*time.Time, error)
	// OldestSince returns the oldest created_at at or after since for email, or nil
	OldestSince(ctx context.Context, email string, since time.Time) (*time.Time, error)
}

// CodeRepository is a CodeStore with per-email serialization and retention
type CodeRepository interface {
	CodeStore
	// WithEmailLock runs fn while holding an exclusive lock on email. Writes made
	// through the CodeStore passed to fn are atomic with the reads made through it.
	WithEmailLock(ctx context.Context, email string, fn func(ctx context.Context, store CodeStore) error) error
	// DeleteCreatedBefore purges records created before the cutoff
	DeleteCreatedBefore(ctx context.Context, before time.Time) (int64, error)
	// HealthCheck reports whether the backing store is reachable
	HealthCheck(ctx context.Context) error
}
