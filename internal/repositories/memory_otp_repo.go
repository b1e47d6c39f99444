package repositories

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/BradenHooton/passcode/internal/models"
	"github.com/google/uuid"
)

// MemoryOTPRepository is an in-process CodeRepository for development and tests.
// Records are lost on restart.
type MemoryOTPRepository struct {
	mu      sync.RWMutex
	records map[string][]*models.OTPRecord // by email, in insertion order
	locks   *keyedMutex
}

// NewMemoryOTPRepository creates an empty MemoryOTPRepository
func NewMemoryOTPRepository() *MemoryOTPRepository {
	return &MemoryOTPRepository{
		records: make(map[string][]*models.OTPRecord),
		locks:   newKeyedMutex(),
	}
}

// Insert stores a copy of record
func (r *MemoryOTPRepository) Insert(_ context.Context, record *models.OTPRecord) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	record.ID = uuid.New().String()
	record.Version = 1

	stored := *record
	r.records[record.Email] = append(r.records[record.Email], &stored)
	return record.ID, nil
}

// LatestByEmailAndPurpose returns a copy of the active record for (email, purpose)
func (r *MemoryOTPRepository) LatestByEmailAndPurpose(_ context.Context, email string, purpose models.Purpose) (*models.OTPRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var latest *models.OTPRecord
	for _, record := range r.records[email] {
		if record.Purpose != purpose {
			continue
		}
		// Later inserts win ties on created_at
		if latest == nil || !record.CreatedAt.Before(latest.CreatedAt) {
			latest = record
		}
	}

	if latest == nil {
		return nil, models.ErrNotFound
	}

	found := *latest
	return &found, nil
}

// Update applies attempts and consumed when the version matches
func (r *MemoryOTPRepository) Update(_ context.Context, record *models.OTPRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, stored := range r.records[record.Email] {
		if stored.ID != record.ID {
			continue
		}
		if stored.Version != record.Version ||
			record.Attempts < stored.Attempts ||
			(stored.Consumed && !record.Consumed) {
			return models.ErrConflict
		}

		stored.Attempts = record.Attempts
		stored.Consumed = record.Consumed
		stored.Version++
		record.Version = stored.Version
		return nil
	}

	return models.ErrConflict
}

// CountSince counts records for email created at or after since
func (r *MemoryOTPRepository) CountSince(_ context.Context, email string, since time.Time) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	count := 0
	for _, record := range r.records[email] {
		if !record.CreatedAt.Before(since) {
			count++
		}
	}
	return count, nil
}

// LatestIssuedAt returns the newest created_at for email
func (r *MemoryOTPRepository) LatestIssuedAt(_ context.Context, email string) (*time.Time, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var latest *time.Time
	for _, record := range r.records[email] {
		if latest == nil || record.CreatedAt.After(*latest) {
			t := record.CreatedAt
			latest = &t
		}
	}
	return latest, nil
}

// OldestSince returns the oldest created_at at or after since for email
func (r *MemoryOTPRepository) OldestSince(_ context.Context, email string, since time.Time) (*time.Time, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var oldest *time.Time
	for _, record := range r.records[email] {
		if record.CreatedAt.Before(since) {
			continue
		}
		if oldest == nil || record.CreatedAt.Before(*oldest) {
			t := record.CreatedAt
			oldest = &t
		}
	}
	return oldest, nil
}

// WithEmailLock runs fn while holding the per-email mutex
func (r *MemoryOTPRepository) WithEmailLock(ctx context.Context, email string, fn func(ctx context.Context, store CodeStore) error) error {
	unlock := r.locks.Lock(email)
	defer unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	return fn(ctx, r)
}

// DeleteCreatedBefore purges records created before the cutoff
func (r *MemoryOTPRepository) DeleteCreatedBefore(_ context.Context, before time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var deleted int64
	for email, records := range r.records {
		kept := records[:0]
		for _, record := range records {
			if record.CreatedAt.Before(before) {
				deleted++
				continue
			}
			kept = append(kept, record)
		}
		if len(kept) == 0 {
			delete(r.records, email)
			continue
		}
		r.records[email] = kept
	}
	return deleted, nil
}

// HealthCheck always succeeds for the in-memory store
func (r *MemoryOTPRepository) HealthCheck(_ context.Context) error {
	return nil
}

// Snapshot returns copies of every record for email ordered by created_at
func (r *MemoryOTPRepository) Snapshot(email string) []models.OTPRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]models.OTPRecord, 0, len(r.records[email]))
	for _, record := range r.records[email] {
		out = append(out, *record)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// keyedMutex hands out one mutex per key, dropping it once nobody holds or waits on it
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*refMutex
}

type refMutex struct {
	sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*refMutex)}
}

// Lock blocks until key is held and returns the matching unlock func
func (k *keyedMutex) Lock(key string) func() {
	k.mu.Lock()
	m, ok := k.locks[key]
	if !ok {
		m = &refMutex{}
		k.locks[key] = m
	}
	m.refs++
	k.mu.Unlock()

	m.Lock()
	return func() {
		m.Unlock()

		k.mu.Lock()
		m.refs--
		if m.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
