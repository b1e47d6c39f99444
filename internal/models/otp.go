package models

import (
	"fmt"
	"time"
)

// Purpose scopes a code to the flow it was issued for
type Purpose string

const (
	PurposeSignup        Purpose = "signup"
	PurposePasswordReset Purpose = "password_reset"
)

// DefaultPurpose is used when a caller omits the purpose
const DefaultPurpose = PurposeSignup

// ParsePurpose converts raw input into a Purpose. An empty value yields DefaultPurpose.
func ParsePurpose(s string) (Purpose, error) {
	switch Purpose(s) {
	case "":
		return DefaultPurpose, nil
	case PurposeSignup, PurposePasswordReset:
		return Purpose(s), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidPurpose, s)
	}
}

// Valid reports whether p is one of the known purposes
func (p Purpose) Valid() bool {
	return p == PurposeSignup || p == PurposePasswordReset
}

func (p Purpose) String() string {
	return string(p)
}

// OTPRecord is one issued code. The plaintext code is never stored.
type OTPRecord struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Purpose   Purpose   `json:"purpose"`
	CodeHash  string    `json:"-"` // Never expose code digest
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
	Attempts  int       `json:"attempts"`
	Consumed  bool      `json:"consumed"`
	Version   int64     `json:"-"`
}

// IsExpired reports whether the record has expired at now. The boundary instant counts as expired.
func (r *OTPRecord) IsExpired(now time.Time) bool {
	return !now.Before(r.ExpiresAt)
}

// IsExhausted reports whether the attempt cap has been reached
func (r *OTPRecord) IsExhausted(maxAttempts int) bool {
	return r.Attempts >= maxAttempts
}

// IsUsable reports whether the record can still be verified
func (r *OTPRecord) IsUsable(now time.Time, maxAttempts int) bool {
	return !r.Consumed && !r.IsExpired(now) && !r.IsExhausted(maxAttempts)
}

// VerifyResult is the outcome of a verification attempt
type VerifyResult int

const (
	VerifySuccess VerifyResult = iota
	VerifyNotFound
	VerifyAlreadyUsed
	VerifyExpired
	VerifyTooManyAttempts
	VerifyMismatch
)

func (v VerifyResult) String() string {
	switch v {
	case VerifySuccess:
		return "success"
	case VerifyNotFound:
		return "not_found"
	case VerifyAlreadyUsed:
		return "already_used"
	case VerifyExpired:
		return "expired"
	case VerifyTooManyAttempts:
		return "too_many_attempts"
	case VerifyMismatch:
		return "mismatch"
	default:
		return "unknown"
	}
}
