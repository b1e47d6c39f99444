package services

import (
	"context"
	"sync"
	"time"

	"github.com/BradenHooton/passcode/internal/models"
	"github.com/BradenHooton/passcode/internal/repositories"
)

// MockNotifier implements Notifier for testing and records delivered codes
type MockNotifier struct {
	SendFunc func(ctx context.Context, email string, purpose models.Purpose, code string, expiresAt time.Time) error

	mu   sync.Mutex
	Sent []SentCode
}

// SentCode is one code handed to MockNotifier
type SentCode struct {
	Email     string
	Purpose   models.Purpose
	Code      string
	ExpiresAt time.Time
}

func (m *MockNotifier) Send(ctx context.Context, email string, purpose models.Purpose, code string, expiresAt time.Time) error {
	m.mu.Lock()
	m.Sent = append(m.Sent, SentCode{Email: email, Purpose: purpose, Code: code, ExpiresAt: expiresAt})
	m.mu.Unlock()

	if m.SendFunc != nil {
		return m.SendFunc(ctx, email, purpose, code, expiresAt)
	}
	return nil
}

// LastCode returns the most recently sent code, or ""
func (m *MockNotifier) LastCode() string {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.Sent) == 0 {
		return ""
	}
	return m.Sent[len(m.Sent)-1].Code
}

// Count returns how many codes were sent
func (m *MockNotifier) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Sent)
}

// MockCodeRepository implements repositories.CodeRepository for testing.
// Unset funcs fall through to an in-memory repository.
type MockCodeRepository struct {
	*repositories.MemoryOTPRepository

	InsertFunc                  func(ctx context.Context, record *models.OTPRecord) (string, error)
	LatestByEmailAndPurposeFunc func(ctx context.Context, email string, purpose models.Purpose) (*models.OTPRecord, error)
	UpdateFunc                  func(ctx context.Context, record *models.OTPRecord) error
	LatestIssuedAtFunc          func(ctx context.Context, email string) (*time.Time, error)
}

// NewMockCodeRepository creates a MockCodeRepository over an empty memory store
func NewMockCodeRepository() *MockCodeRepository {
	return &MockCodeRepository{MemoryOTPRepository: repositories.NewMemoryOTPRepository()}
}

func (m *MockCodeRepository) Insert(ctx context.Context, record *models.OTPRecord) (string, error) {
	if m.InsertFunc != nil {
		return m.InsertFunc(ctx, record)
	}
	return m.MemoryOTPRepository.Insert(ctx, record)
}

func (m *MockCodeRepository) LatestByEmailAndPurpose(ctx context.Context, email string, purpose models.Purpose) (*models.OTPRecord, error) {
	if m.LatestByEmailAndPurposeFunc != nil {
		return m.LatestByEmailAndPurposeFunc(ctx, email, purpose)
	}
	return m.MemoryOTPRepository.LatestByEmailAndPurpose(ctx, email, purpose)
}

func (m *MockCodeRepository) Update(ctx context.Context, record *models.OTPRecord) error {
	if m.UpdateFunc != nil {
		return m.UpdateFunc(ctx, record)
	}
	return m.MemoryOTPRepository.Update(ctx, record)
}

func (m *MockCodeRepository) LatestIssuedAt(ctx context.Context, email string) (*time.Time, error) {
	if m.LatestIssuedAtFunc != nil {
		return m.LatestIssuedAtFunc(ctx, email)
	}
	return m.MemoryOTPRepository.LatestIssuedAt(ctx, email)
}

// WithEmailLock hands the mock itself to fn so overridden funcs apply inside the lock
func (m *MockCodeRepository) WithEmailLock(ctx context.Context, email string, fn func(ctx context.Context, store repositories.CodeStore) error) error {
	return m.MemoryOTPRepository.WithEmailLock(ctx, email, func(ctx context.Context, _ repositories.CodeStore) error {
		return fn(ctx, m)
	})
}
