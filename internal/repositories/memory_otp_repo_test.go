package repositories_test

import (
	"context"
	"testing"
	"time"

	"github.com/BradenHooton/passcode/internal/models"
	"github.com/BradenHooton/passcode/internal/repositories"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryOTPRepository_Contract(t *testing.T) {
	runCodeStoreContract(t, func(t *testing.T) repositories.CodeRepository {
		return repositories.NewMemoryOTPRepository()
	})
}

func TestMemoryOTPRepository_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	repo := repositories.NewMemoryOTPRepository()
	rec := newRecord("copy@example.com", models.PurposeSignup, baseTime)
	_, err := repo.Insert(ctx, rec)
	require.NoError(t, err)

	got, err := repo.LatestByEmailAndPurpose(ctx, rec.Email, rec.Purpose)
	require.NoError(t, err)
	got.Consumed = true
	got.Attempts = 5

	again, err := repo.LatestByEmailAndPurpose(ctx, rec.Email, rec.Purpose)
	require.NoError(t, err)
	assert.False(t, again.Consumed)
	assert.Equal(t, 0, again.Attempts)
}

func TestMemoryOTPRepository_WithEmailLock_CanceledContext(t *testing.T) {
	repo := repositories.NewMemoryOTPRepository()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := repo.WithEmailLock(ctx, "x@example.com", func(ctx context.Context, store repositories.CodeStore) error {
		called = true
		return nil
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
}

func TestMemoryOTPRepository_Snapshot(t *testing.T) {
	ctx := context.Background()
	repo := repositories.NewMemoryOTPRepository()
	email := "snap@example.com"

	_, err := repo.Insert(ctx, newRecord(email, models.PurposeSignup, baseTime.Add(time.Minute)))
	require.NoError(t, err)
	_, err = repo.Insert(ctx, newRecord(email, models.PurposePasswordReset, baseTime))
	require.NoError(t, err)

	snap := repo.Snapshot(email)
	require.Len(t, snap, 2)
	assert.Equal(t, models.PurposePasswordReset, snap[0].Purpose)
	assert.Equal(t, models.PurposeSignup, snap[1].Purpose)
}
