package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/BradenHooton/passcode/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// MapPostgresError translates driver errors into model sentinel errors.
// Unrecognized errors pass through unchanged.
func MapPostgresError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, pgx.ErrNoRows) {
		return models.ErrNotFound
	}

	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}

	switch pgErr.Code {
	case "23505", "40001", "40P01": // unique_violation, serialization_failure, deadlock_detected
		return fmt.Errorf("%w: %s", models.ErrConflict, pgErr.Code)
	case "23502", "23514", "22P02": // not_null_violation, check_violation, invalid_text_representation
		return fmt.Errorf("%w: %s", models.ErrBadRequest, pgErr.Code)
	}

	return err
}

// WithTransaction runs fn inside a transaction, committing on success and
// rolling back on error or panic
func (db *DB) WithTransaction(ctx context.Context, fn func(pgx.Tx) error) (err error) {
	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback(ctx)
			panic(p)
		} else if err != nil {
			_ = tx.Rollback(ctx)
		} else if cerr := tx.Commit(ctx); cerr != nil {
			err = fmt.Errorf("failed to commit transaction: %w", MapPostgresError(cerr))
		}
	}()

	return fn(tx)
}

// WithKeyLock runs fn in a transaction that first takes a transaction-scoped
// advisory lock on key. Callers locking the same key are serialized until the
// holder commits or rolls back.
func (db *DB) WithKeyLock(ctx context.Context, key string, fn func(pgx.Tx) error) error {
	return db.WithTransaction(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, key); err != nil {
			return fmt.Errorf("failed to acquire advisory lock: %w", err)
		}
		return fn(tx)
	})
}
