package repositories_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/BradenHooton/passcode/internal/background"
	"github.com/BradenHooton/passcode/internal/models"
	"github.com/BradenHooton/passcode/internal/repositories"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// The Postgres store reports pool usage to the cleanup loop
var _ background.StatsReporter = (*repositories.OTPRepository)(nil)

var baseTime = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

func newRecord(email string, purpose models.Purpose, createdAt time.Time) *models.OTPRecord {
	return &models.OTPRecord{
		Email:     email,
		Purpose:   purpose,
		CodeHash:  "digest-" + createdAt.Format(time.RFC3339Nano),
		CreatedAt: createdAt,
		ExpiresAt: createdAt.Add(10 * time.Minute),
	}
}

// runCodeStoreContract exercises behavior every CodeRepository must share
func runCodeStoreContract(t *testing.T, newRepo func(t *testing.T) repositories.CodeRepository) {
	ctx := context.Background()

	t.Run("insert assigns id and version", func(t *testing.T) {
		repo := newRepo(t)
		rec := newRecord("a@example.com", models.PurposeSignup, baseTime)

		id, err := repo.Insert(ctx, rec)
		require.NoError(t, err)
		assert.NotEmpty(t, id)
		assert.Equal(t, id, rec.ID)
		assert.Equal(t, int64(1), rec.Version)
	})

	t.Run("latest returns newest record for the purpose", func(t *testing.T) {
		repo := newRepo(t)
		email := "latest@example.com"

		_, err := repo.Insert(ctx, newRecord(email, models.PurposeSignup, baseTime))
		require.NoError(t, err)
		newer := newRecord(email, models.PurposeSignup, baseTime.Add(2*time.Minute))
		_, err = repo.Insert(ctx, newer)
		require.NoError(t, err)
		_, err = repo.Insert(ctx, newRecord(email, models.PurposePasswordReset, baseTime.Add(5*time.Minute)))
		require.NoError(t, err)

		got, err := repo.LatestByEmailAndPurpose(ctx, email, models.PurposeSignup)
		require.NoError(t, err)
		assert.Equal(t, newer.ID, got.ID)
		assert.Equal(t, newer.CodeHash, got.CodeHash)
		assert.True(t, newer.CreatedAt.Equal(got.CreatedAt))
		assert.True(t, newer.ExpiresAt.Equal(got.ExpiresAt))
	})

	t.Run("latest prefers the later insert on a created_at tie", func(t *testing.T) {
		repo := newRepo(t)
		email := "tie@example.com"

		var last *models.OTPRecord
		for i := 0; i < 5; i++ {
			last = newRecord(email, models.PurposeSignup, baseTime)
			_, err := repo.Insert(ctx, last)
			require.NoError(t, err)
		}

		got, err := repo.LatestByEmailAndPurpose(ctx, email, models.PurposeSignup)
		require.NoError(t, err)
		assert.Equal(t, last.ID, got.ID)
	})

	t.Run("latest not found", func(t *testing.T) {
		repo := newRepo(t)

		_, err := repo.LatestByEmailAndPurpose(ctx, "nobody@example.com", models.PurposeSignup)
		assert.ErrorIs(t, err, models.ErrNotFound)
	})

	t.Run("update checks version", func(t *testing.T) {
		repo := newRepo(t)
		rec := newRecord("update@example.com", models.PurposeSignup, baseTime)
		_, err := repo.Insert(ctx, rec)
		require.NoError(t, err)

		stale := *rec

		rec.Attempts = 1
		require.NoError(t, repo.Update(ctx, rec))
		assert.Equal(t, int64(2), rec.Version)

		stale.Attempts = 1
		stale.Consumed = true
		assert.ErrorIs(t, repo.Update(ctx, &stale), models.ErrConflict)

		got, err := repo.LatestByEmailAndPurpose(ctx, rec.Email, rec.Purpose)
		require.NoError(t, err)
		assert.Equal(t, 1, got.Attempts)
		assert.False(t, got.Consumed)
	})

	t.Run("update never un-consumes or lowers attempts", func(t *testing.T) {
		repo := newRepo(t)
		rec := newRecord("mono@example.com", models.PurposeSignup, baseTime)
		_, err := repo.Insert(ctx, rec)
		require.NoError(t, err)

		rec.Attempts = 2
		rec.Consumed = true
		require.NoError(t, repo.Update(ctx, rec))

		rec.Attempts = 1
		rec.Consumed = false
		assert.ErrorIs(t, repo.Update(ctx, rec), models.ErrConflict)
	})

	t.Run("ledger queries span purposes", func(t *testing.T) {
		repo := newRepo(t)
		email := "ledger@example.com"

		for i, p := range []models.Purpose{models.PurposeSignup, models.PurposePasswordReset, models.PurposeSignup} {
			_, err := repo.Insert(ctx, newRecord(email, p, baseTime.Add(time.Duration(i)*20*time.Minute)))
			require.NoError(t, err)
		}
		_, err := repo.Insert(ctx, newRecord("other@example.com", models.PurposeSignup, baseTime.Add(time.Hour)))
		require.NoError(t, err)

		count, err := repo.CountSince(ctx, email, baseTime.Add(20*time.Minute))
		require.NoError(t, err)
		assert.Equal(t, 2, count)

		latest, err := repo.LatestIssuedAt(ctx, email)
		require.NoError(t, err)
		require.NotNil(t, latest)
		assert.True(t, latest.Equal(baseTime.Add(40*time.Minute)))

		oldest, err := repo.OldestSince(ctx, email, baseTime.Add(time.Minute))
		require.NoError(t, err)
		require.NotNil(t, oldest)
		assert.True(t, oldest.Equal(baseTime.Add(20*time.Minute)))

		none, err := repo.OldestSince(ctx, email, baseTime.Add(2*time.Hour))
		require.NoError(t, err)
		assert.Nil(t, none)

		never, err := repo.LatestIssuedAt(ctx, "fresh@example.com")
		require.NoError(t, err)
		assert.Nil(t, never)
	})

	t.Run("delete created before", func(t *testing.T) {
		repo := newRepo(t)
		email := "retention@example.com"

		_, err := repo.Insert(ctx, newRecord(email, models.PurposeSignup, baseTime))
		require.NoError(t, err)
		_, err = repo.Insert(ctx, newRecord(email, models.PurposeSignup, baseTime.Add(25*time.Hour)))
		require.NoError(t, err)

		deleted, err := repo.DeleteCreatedBefore(ctx, baseTime.Add(time.Hour))
		require.NoError(t, err)
		assert.Equal(t, int64(1), deleted)

		count, err := repo.CountSince(ctx, email, baseTime.Add(-time.Hour))
		require.NoError(t, err)
		assert.Equal(t, 1, count)
	})

	t.Run("email lock serializes critical sections", func(t *testing.T) {
		repo := newRepo(t)
		email := "lock@example.com"

		var inside, maxInside int32
		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				err := repo.WithEmailLock(ctx, email, func(ctx context.Context, store repositories.CodeStore) error {
					n := atomic.AddInt32(&inside, 1)
					for {
						cur := atomic.LoadInt32(&maxInside)
						if n <= cur || atomic.CompareAndSwapInt32(&maxInside, cur, n) {
							break
						}
					}
					count, err := store.CountSince(ctx, email, baseTime.Add(-time.Hour))
					if err != nil {
						return err
					}
					if count == 0 {
						_, err = store.Insert(ctx, newRecord(email, models.PurposeSignup, baseTime.Add(time.Duration(i)*time.Second)))
					}
					time.Sleep(5 * time.Millisecond)
					atomic.AddInt32(&inside, -1)
					return err
				})
				assert.NoError(t, err)
			}(i)
		}
		wg.Wait()

		assert.Equal(t, int32(1), maxInside)
		count, err := repo.CountSince(ctx, email, baseTime.Add(-time.Hour))
		require.NoError(t, err)
		assert.Equal(t, 1, count)
	})

	t.Run("email lock propagates fn error", func(t *testing.T) {
		repo := newRepo(t)
		email := "rollback@example.com"
		boom := errors.New("boom")

		err := repo.WithEmailLock(ctx, email, func(ctx context.Context, store repositories.CodeStore) error {
			if _, err := store.Insert(ctx, newRecord(email, models.PurposeSignup, baseTime)); err != nil {
				return err
			}
			return boom
		})
		assert.ErrorIs(t, err, boom)
	})
}
