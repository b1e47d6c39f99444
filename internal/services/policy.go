package services

import (
	"context"
	"time"

	"github.com/BradenHooton/passcode/internal/models"
)

// OTPPolicy holds the issuance ceilings and verification limits
type OTPPolicy struct {
	CodeTTL     time.Duration
	MaxAttempts int
	Cooldown    time.Duration
	HourlyLimit int
	DailyLimit  int
}

// DefaultOTPPolicy returns the standard limits: 10 minute codes, 5 attempts,
// one issuance per 60s, 3 per hour and 10 per day per email
func DefaultOTPPolicy() OTPPolicy {
	return OTPPolicy{
		CodeTTL:     10 * time.Minute,
		MaxAttempts: 5,
		Cooldown:    60 * time.Second,
		HourlyLimit: 3,
		DailyLimit:  10,
	}
}

// CodeGenerator produces a fresh code and its expiry
type CodeGenerator interface {
	Generate(now time.Time) (code string, expiresAt time.Time)
}

// CodeHasher turns codes into storable digests and compares in constant time
type CodeHasher interface {
	Digest(code string) string
	Equal(code, digest string) bool
}

// Notifier delivers a code to its recipient
type Notifier interface {
	Send(ctx context.Context, email string, purpose models.Purpose, code string, expiresAt time.Time) error
}
