package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/BradenHooton/passcode/internal/database"
	"github.com/BradenHooton/passcode/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// rowScanner is satisfied by pgx.Row and pgx.Rows
type rowScanner interface {
	Scan(dest ...any) error
}

const otpColumns = `id, email, purpose, code_hash, created_at, expires_at, attempts, consumed, version`

// OTPRepository is the Postgres-backed CodeRepository
type OTPRepository struct {
	db *database.DB
	otpStore
}

// NewOTPRepository creates a new OTPRepository
func NewOTPRepository(db *database.DB) *OTPRepository {
	return &OTPRepository{db: db, otpStore: otpStore{q: db.Pool}}
}

// otpStore implements CodeStore over a pool or a transaction
type otpStore struct {
	q querier
}

// scanOTPRow populates an OTPRecord model from a database row
func scanOTPRow(row rowScanner) (*models.OTPRecord, error) {
	var record models.OTPRecord
	var purpose string

	err := row.Scan(
		&record.ID, &record.Email, &purpose, &record.CodeHash,
		&record.CreatedAt, &record.ExpiresAt, &record.Attempts, &record.Consumed, &record.Version,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	record.Purpose = models.Purpose(purpose)
	record.CreatedAt = record.CreatedAt.UTC()
	record.ExpiresAt = record.ExpiresAt.UTC()
	return &record, nil
}

// Insert stores a new OTP record
func (s *otpStore) Insert(ctx context.Context, record *models.OTPRecord) (string, error) {
	query := `
		INSERT INTO otp_records (id, email, purpose, code_hash, created_at, expires_at, attempts, consumed, version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 1)
	`

	id := uuid.New().String()
	_, err := s.q.Exec(ctx, query,
		id, record.Email, string(record.Purpose), record.CodeHash,
		record.CreatedAt, record.ExpiresAt, record.Attempts, record.Consumed,
	)
	if err != nil {
		return "", fmt.Errorf("failed to insert otp record: %w", database.MapPostgresError(err))
	}

	record.ID = id
	record.Version = 1
	return id, nil
}

// LatestByEmailAndPurpose returns the most recently created record for (email, purpose)
func (s *otpStore) LatestByEmailAndPurpose(ctx context.Context, email string, purpose models.Purpose) (*models.OTPRecord, error) {
	query := `
		SELECT ` + otpColumns + `
		FROM otp_records
		WHERE email = $1 AND purpose = $2
		ORDER BY created_at DESC, seq DESC
		LIMIT 1
	`

	record, err := scanOTPRow(s.q.QueryRow(ctx, query, email, string(purpose)))
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("failed to load otp record: %w", err)
	}

	return record, nil
}

// Update persists attempts and consumed with an optimistic version check
func (s *otpStore) Update(ctx context.Context, record *models.OTPRecord) error {
	query := `
		UPDATE otp_records
		SET attempts = $1, consumed = $2, version = version + 1
		WHERE id = $3 AND version = $4
		  AND attempts <= $1
		  AND (consumed = FALSE OR $2 = TRUE)
	`

	result, err := s.q.Exec(ctx, query, record.Attempts, record.Consumed, record.ID, record.Version)
	if err != nil {
		return fmt.Errorf("failed to update otp record: %w", database.MapPostgresError(err))
	}

	if result.RowsAffected() == 0 {
		return models.ErrConflict
	}

	record.Version++
	return nil
}

// CountSince counts records for an email created at or after since
func (s *otpStore) CountSince(ctx context.Context, email string, since time.Time) (int, error) {
	query := `SELECT COUNT(*) FROM otp_records WHERE email = $1 AND created_at >= $2`

	var count int
	if err := s.q.QueryRow(ctx, query, email, since).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count otp records: %w", err)
	}

	return count, nil
}

// LatestIssuedAt returns the newest issuance time for an email
func (s *otpStore) LatestIssuedAt(ctx context.Context, email string) (*time.Time, error) {
	query := `SELECT MAX(created_at) FROM otp_records WHERE email = $1`

	return s.scanOptionalTime(ctx, query, email)
}

// OldestSince returns the oldest issuance time at or after since for an email
func (s *otpStore) OldestSince(ctx context.Context, email string, since time.Time) (*time.Time, error) {
	query := `SELECT MIN(created_at) FROM otp_records WHERE email = $1 AND created_at >= $2`

	return s.scanOptionalTime(ctx, query, email, since)
}

func (s *otpStore) scanOptionalTime(ctx context.Context, query string, args ...any) (*time.Time, error) {
	var t *time.Time
	if err := s.q.QueryRow(ctx, query, args...).Scan(&t); err != nil {
		return nil, fmt.Errorf("failed to query issuance time: %w", err)
	}

	if t != nil {
		utc := t.UTC()
		t = &utc
	}
	return t, nil
}

// WithEmailLock runs fn in a transaction holding an advisory lock keyed by email
func (r *OTPRepository) WithEmailLock(ctx context.Context, email string, fn func(ctx context.Context, store CodeStore) error) error {
	return r.db.WithKeyLock(ctx, "otp:"+email, func(tx pgx.Tx) error {
		return fn(ctx, &otpStore{q: tx})
	})
}

// DeleteCreatedBefore purges records created before the cutoff
func (r *OTPRepository) DeleteCreatedBefore(ctx context.Context, before time.Time) (int64, error) {
	query := `DELETE FROM otp_records WHERE created_at < $1`

	result, err := r.db.Pool.Exec(ctx, query, before)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old otp records: %w", err)
	}

	return result.RowsAffected(), nil
}

// LogStats logs the connection pool snapshot
func (r *OTPRepository) LogStats() {
	r.db.LogStats()
}

// HealthCheck pings the database
func (r *OTPRepository) HealthCheck(ctx context.Context) error {
	return r.db.HealthCheck(ctx)
}
