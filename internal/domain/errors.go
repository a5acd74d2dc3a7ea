package domain

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNotFound signals a missing resource.
	ErrNotFound = errors.New("not found")
	// ErrDimensionMismatch signals a vector dimension mismatch.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
	// ErrCircuitOpen signals a fast-fail while the circuit breaker is open.
	ErrCircuitOpen = errors.New("circuit breaker is open")
	// ErrQueueCleared signals a pending task rejected because the queue was cleared.
	ErrQueueCleared = errors.New("queue cleared")
	// ErrStoreUnavailable signals a persistence or shared-store failure.
	ErrStoreUnavailable = errors.New("store unavailable")
	// ErrRateLimited signals a rate limit hit.
	ErrRateLimited = errors.New("rate limited")
	// ErrGenerationFailed signals a generation backend failure.
	ErrGenerationFailed = errors.New("generation failed")
)

// DimensionMismatchError wraps ErrDimensionMismatch with the offending lengths.
type DimensionMismatchError struct {
	Want int
	Got  int
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("%s: want %d, got %d", ErrDimensionMismatch.Error(), e.Want, e.Got)
}

func (e *DimensionMismatchError) Unwrap() error { return ErrDimensionMismatch }

// NewDimensionMismatch creates a dimension mismatch error.
func NewDimensionMismatch(want, got int) error {
	return &DimensionMismatchError{Want: want, Got: got}
}

// RateLimitedError wraps ErrRateLimited with the window reset time.
type RateLimitedError struct {
	ResetTime time.Time
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("%s: retry after %s", ErrRateLimited.Error(), e.ResetTime.Format(time.RFC3339))
}

func (e *RateLimitedError) Unwrap() error { return ErrRateLimited }
