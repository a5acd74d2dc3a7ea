package resilience

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kailas-cloud/ragdex/internal/domain"
)

// Retry is an exponential backoff strategy: attempt n waits base * 2^n.
type Retry struct {
	BaseDelay  time.Duration
	MaxRetries int
}

// Delay returns the backoff before retry number retryCount (0-based).
func (r Retry) Delay(retryCount int) time.Duration {
	return r.BaseDelay * (1 << retryCount)
}

// ShouldRetry reports whether another retry is allowed.
func (r Retry) ShouldRetry(retryCount int) bool {
	return retryCount < r.MaxRetries
}

// Do runs fn, retrying transient failures with exponential backoff. An open
// circuit breaker is never bypassed: domain.ErrCircuitOpen aborts the loop
// immediately, as does context cancellation.
func (r Retry) Do(ctx context.Context, fn func(context.Context) error) error {
	var err error
	for attempt := 0; ; attempt++ {
		err = fn(ctx)
		if err == nil {
			return nil
		}
		if errors.Is(err, domain.ErrCircuitOpen) {
			return err
		}
		if !r.ShouldRetry(attempt) {
			return fmt.Errorf("after %d retries: %w", r.MaxRetries, err)
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("retry aborted: %w", ctx.Err())
		case <-time.After(r.Delay(attempt)):
		}
	}
}
