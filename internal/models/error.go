package models

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for common failure conditions
var (
	ErrNotFound       = errors.New("resource not found")
	ErrConflict       = errors.New("resource was modified concurrently")
	ErrBadRequest     = errors.New("bad request")
	ErrInternalServer = errors.New("internal server error")

	// Request validation errors
	ErrInvalidEmail   = errors.New("invalid email address")
	ErrInvalidPurpose = errors.New("invalid purpose")
	ErrMissingCode    = errors.New("code is required")

	// Issuance errors
	ErrRateLimited    = errors.New("too many code requests")
	ErrDeliveryFailed = errors.New("code delivery failed")
)

// RateLimitReason names the ceiling that denied an issuance
type RateLimitReason string

const (
	RateLimitCooldown RateLimitReason = "cooldown"
	RateLimitHourly   RateLimitReason = "hourly"
	RateLimitDaily    RateLimitReason = "daily"
)

// RateLimitError is returned when an issuance is denied by one of the ceilings.
// It unwraps to ErrRateLimited.
type RateLimitError struct {
	Reason     RateLimitReason
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited (%s): retry after %s", e.Reason, e.RetryAfter)
}

func (e *RateLimitError) Unwrap() error {
	return ErrRateLimited
}
