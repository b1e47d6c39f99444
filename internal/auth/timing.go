package auth

import (
	"context"
	"crypto/rand"
	"math/big"
	"time"
)

// ResponseFloor pads failed operations to a minimum duration plus random
// jitter, so a lookup miss and a wrong guess take about the same time
type ResponseFloor struct {
	floor  time.Duration
	jitter time.Duration
}

// NewResponseFloor creates a ResponseFloor. A zero floor disables padding.
func NewResponseFloor(floor, jitter time.Duration) *ResponseFloor {
	return &ResponseFloor{floor: floor, jitter: jitter}
}

// target returns the floor plus a uniformly random share of jitter
func (f *ResponseFloor) target() time.Duration {
	if f.jitter <= 0 {
		return f.floor
	}
	n, err := rand.Int(rand.Reader, big.NewInt(int64(f.jitter)))
	if err != nil {
		return f.floor + f.jitter
	}
	return f.floor + time.Duration(n.Int64())
}

// WaitFrom sleeps until at least the floor has elapsed since start, or ctx ends
func (f *ResponseFloor) WaitFrom(ctx context.Context, start time.Time) {
	if f == nil || f.floor <= 0 {
		return
	}

	remaining := f.target() - time.Since(start)
	if remaining <= 0 {
		return
	}

	timer := time.NewTimer(remaining)
	defer timer.Stop()

	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}
