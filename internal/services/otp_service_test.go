package services

import (
	"context"
	"errors"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/BradenHooton/passcode/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var sixDigits = regexp.MustCompile(`^[0-9]{6}$`)

func TestOTPService_RequestCode_Success(t *testing.T) {
	f := newOTPFixture(t)

	result, err := f.svc.RequestCode(context.Background(), "  User@Example.COM ", "")
	require.NoError(t, err)

	assert.Equal(t, "user@example.com", result.Email)
	assert.Equal(t, models.PurposeSignup, result.Purpose)
	assert.Equal(t, t0.Add(10*time.Minute), result.ExpiresAt)
	assert.Equal(t, 10*time.Minute, result.ExpiresIn)

	require.Equal(t, 1, f.notifier.Count())
	sent := f.notifier.Sent[0]
	assert.Equal(t, "user@example.com", sent.Email)
	assert.Equal(t, models.PurposeSignup, sent.Purpose)
	assert.Regexp(t, sixDigits, sent.Code)
	assert.Equal(t, result.ExpiresAt, sent.ExpiresAt)

	records := f.repo.Snapshot("user@example.com")
	require.Len(t, records, 1)
	assert.Equal(t, result.RecordID, records[0].ID)
	assert.NotEqual(t, sent.Code, records[0].CodeHash)
	assert.True(t, f.hasher.Equal(sent.Code, records[0].CodeHash))
	assert.Equal(t, 0, records[0].Attempts)
	assert.False(t, records[0].Consumed)
}

func TestOTPService_RequestCode_ValidationHasNoSideEffects(t *testing.T) {
	tests := []struct {
		name    string
		email   string
		purpose string
		wantErr error
	}{
		{"empty email", "", "signup", models.ErrInvalidEmail},
		{"no at sign", "user.example.com", "signup", models.ErrInvalidEmail},
		{"display name", "User <user@example.com>", "signup", models.ErrInvalidEmail},
		{"unknown purpose", "user@example.com", "login", models.ErrInvalidPurpose},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newOTPFixture(t)
			f.repo.LatestIssuedAtFunc = func(ctx context.Context, email string) (*time.Time, error) {
				t.Fatal("rate limiter must not be consulted")
				return nil, nil
			}

			_, err := f.svc.RequestCode(context.Background(), tt.email, tt.purpose)

			assert.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, 0, f.notifier.Count())
		})
	}
}

func TestOTPService_RequestCode_SecondWithinCooldownDenied(t *testing.T) {
	f := newOTPFixture(t)
	ctx := context.Background()

	_, err := f.svc.RequestCode(ctx, "user@example.com", "signup")
	require.NoError(t, err)

	f.clock.Advance(30 * time.Second)
	_, err = f.svc.RequestCode(ctx, "user@example.com", "signup")

	var rlErr *models.RateLimitError
	require.True(t, errors.As(err, &rlErr))
	assert.Equal(t, models.RateLimitCooldown, rlErr.Reason)
	assert.Equal(t, 30*time.Second, rlErr.RetryAfter)
	assert.Equal(t, 1, f.notifier.Count())
	assert.Len(t, f.repo.Snapshot("user@example.com"), 1)
}

func TestOTPService_RequestCode_FourthInHourDeniedAcrossPurposes(t *testing.T) {
	f := newOTPFixture(t)
	ctx := context.Background()
	purposes := []string{"signup", "password_reset", "signup"}

	for _, p := range purposes {
		_, err := f.svc.RequestCode(ctx, "user@example.com", p)
		require.NoError(t, err)
		f.clock.Advance(2 * time.Minute)
	}

	_, err := f.svc.RequestCode(ctx, "user@example.com", "password_reset")
	var rlErr *models.RateLimitError
	require.True(t, errors.As(err, &rlErr))
	assert.Equal(t, models.RateLimitHourly, rlErr.Reason)
	assert.Equal(t, 54*time.Minute, rlErr.RetryAfter)
	assert.Equal(t, 3, f.notifier.Count())
}

func TestOTPService_RequestCode_EleventhInDayDenied(t *testing.T) {
	f := newOTPFixture(t)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		_, err := f.svc.RequestCode(ctx, "user@example.com", "signup")
		require.NoError(t, err, "request %d", i+1)
		f.clock.Advance(21 * time.Minute)
	}

	_, err := f.svc.RequestCode(ctx, "user@example.com", "signup")
	var rlErr *models.RateLimitError
	require.True(t, errors.As(err, &rlErr))
	assert.Equal(t, models.RateLimitDaily, rlErr.Reason)
	assert.Greater(t, rlErr.RetryAfter, time.Duration(0))
}

func TestOTPService_RequestCode_DeliveryFailureKeepsRecord(t *testing.T) {
	f := newOTPFixture(t)
	f.notifier.SendFunc = func(ctx context.Context, email string, purpose models.Purpose, code string, expiresAt time.Time) error {
		return errors.New("smtp: 421 service not available")
	}

	_, err := f.svc.RequestCode(context.Background(), "user@example.com", "signup")
	assert.ErrorIs(t, err, models.ErrDeliveryFailed)

	records := f.repo.Snapshot("user@example.com")
	require.Len(t, records, 1)

	// The issuance still counts toward the ceilings
	f.clock.Advance(10 * time.Second)
	_, err = f.svc.RequestCode(context.Background(), "user@example.com", "signup")
	assert.ErrorIs(t, err, models.ErrRateLimited)

	// and the code that was generated is still verifiable
	result, err := f.svc.VerifyCode(context.Background(), "user@example.com", "signup", f.notifier.Sent[0].Code)
	require.NoError(t, err)
	assert.Equal(t, models.VerifySuccess, result)
}

func TestOTPService_RequestCode_StoreFailure(t *testing.T) {
	f := newOTPFixture(t)
	f.repo.InsertFunc = func(ctx context.Context, record *models.OTPRecord) (string, error) {
		return "", errors.New("disk full")
	}

	_, err := f.svc.RequestCode(context.Background(), "user@example.com", "signup")

	require.Error(t, err)
	assert.NotErrorIs(t, err, models.ErrRateLimited)
	assert.Equal(t, 0, f.notifier.Count())
}

func TestOTPService_VerifyCode_Validation(t *testing.T) {
	f := newOTPFixture(t)
	ctx := context.Background()

	_, err := f.svc.VerifyCode(ctx, "bad-email", "signup", "123456")
	assert.ErrorIs(t, err, models.ErrInvalidEmail)

	_, err = f.svc.VerifyCode(ctx, "user@example.com", "other", "123456")
	assert.ErrorIs(t, err, models.ErrInvalidPurpose)

	_, err = f.svc.VerifyCode(ctx, "user@example.com", "signup", "   ")
	assert.ErrorIs(t, err, models.ErrMissingCode)
}

func TestOTPService_Scenario_MismatchSuccessAlreadyUsed(t *testing.T) {
	f := newOTPFixture(t)
	ctx := context.Background()

	_, err := f.svc.RequestCode(ctx, "user@example.com", "signup")
	require.NoError(t, err)
	c1 := f.notifier.LastCode()
	require.Regexp(t, sixDigits, c1)

	f.clock.Advance(time.Second)
	result, err := f.svc.VerifyCode(ctx, "user@example.com", "signup", "000000")
	require.NoError(t, err)
	assert.Equal(t, models.VerifyMismatch, result)
	assert.Equal(t, 1, f.repo.Snapshot("user@example.com")[0].Attempts)

	f.clock.Advance(time.Second)
	result, err = f.svc.VerifyCode(ctx, "USER@example.com", "signup", c1)
	require.NoError(t, err)
	assert.Equal(t, models.VerifySuccess, result)
	assert.True(t, f.repo.Snapshot("user@example.com")[0].Consumed)

	f.clock.Advance(time.Second)
	result, err = f.svc.VerifyCode(ctx, "user@example.com", "signup", c1)
	require.NoError(t, err)
	assert.Equal(t, models.VerifyAlreadyUsed, result)
}

func TestOTPService_Scenario_FiveWrongThenLocked(t *testing.T) {
	f := newOTPFixture(t)
	ctx := context.Background()

	_, err := f.svc.RequestCode(ctx, "user@example.com", "signup")
	require.NoError(t, err)
	c1 := f.notifier.LastCode()

	for i := 1; i <= 5; i++ {
		f.clock.Advance(time.Second)
		result, err := f.svc.VerifyCode(ctx, "user@example.com", "signup", "000000")
		require.NoError(t, err)
		assert.Equal(t, models.VerifyMismatch, result)
	}
	assert.Equal(t, 5, f.repo.Snapshot("user@example.com")[0].Attempts)

	f.clock.Advance(time.Second)
	result, err := f.svc.VerifyCode(ctx, "user@example.com", "signup", c1)
	require.NoError(t, err)
	assert.Equal(t, models.VerifyTooManyAttempts, result)
	assert.Equal(t, 5, f.repo.Snapshot("user@example.com")[0].Attempts)
}

func TestOTPService_Scenario_ExpiredCode(t *testing.T) {
	f := newOTPFixture(t)
	ctx := context.Background()

	_, err := f.svc.RequestCode(ctx, "user@example.com", "password_reset")
	require.NoError(t, err)
	c1 := f.notifier.LastCode()

	f.clock.Advance(10 * time.Minute)
	result, err := f.svc.VerifyCode(ctx, "user@example.com", "password_reset", c1)
	require.NoError(t, err)
	assert.Equal(t, models.VerifyExpired, result)
	assert.Equal(t, 0, f.repo.Snapshot("user@example.com")[0].Attempts)
}

func TestOTPService_NewCodeSupersedesOld(t *testing.T) {
	f := newOTPFixture(t)
	ctx := context.Background()

	_, err := f.svc.RequestCode(ctx, "user@example.com", "signup")
	require.NoError(t, err)
	first := f.notifier.LastCode()

	f.clock.Advance(2 * time.Minute)
	_, err = f.svc.RequestCode(ctx, "user@example.com", "signup")
	require.NoError(t, err)
	second := f.notifier.LastCode()

	if first != second {
		result, err := f.svc.VerifyCode(ctx, "user@example.com", "signup", first)
		require.NoError(t, err)
		assert.Equal(t, models.VerifyMismatch, result)
	}

	result, err := f.svc.VerifyCode(ctx, "user@example.com", "signup", second)
	require.NoError(t, err)
	assert.Equal(t, models.VerifySuccess, result)
}

func TestOTPService_ConcurrentRequestsIssueOnce(t *testing.T) {
	f := newOTPFixture(t)
	const callers = 12

	var wg sync.WaitGroup
	var mu sync.Mutex
	issued, denied := 0, 0
	start := make(chan struct{})
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := f.svc.RequestCode(context.Background(), "race@example.com", "signup")
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				issued++
			case errors.Is(err, models.ErrRateLimited):
				denied++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, 1, issued)
	assert.Equal(t, callers-1, denied)
	assert.Len(t, f.repo.Snapshot("race@example.com"), 1)
	assert.Equal(t, 1, f.notifier.Count())
}
