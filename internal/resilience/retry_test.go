package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kailas-cloud/ragdex/internal/domain"
)

func TestRetry_DelayIsExponential(t *testing.T) {
	r := Retry{BaseDelay: 1000 * time.Millisecond, MaxRetries: 3}

	tests := []struct {
		retryCount int
		want       time.Duration
	}{
		{0, 1000 * time.Millisecond},
		{1, 2000 * time.Millisecond},
		{2, 4000 * time.Millisecond},
		{3, 8000 * time.Millisecond},
	}
	for _, tc := range tests {
		if got := r.Delay(tc.retryCount); got != tc.want {
			t.Errorf("Delay(%d) = %v, want %v", tc.retryCount, got, tc.want)
		}
	}
}

func TestRetry_ShouldRetry(t *testing.T) {
	r := Retry{BaseDelay: time.Millisecond, MaxRetries: 3}

	for i := 0; i < 3; i++ {
		if !r.ShouldRetry(i) {
			t.Errorf("ShouldRetry(%d) = false, want true", i)
		}
	}
	if r.ShouldRetry(3) {
		t.Error("ShouldRetry(3) = true, want false")
	}
}

func TestRetry_DoEventuallySucceeds(t *testing.T) {
	r := Retry{BaseDelay: time.Millisecond, MaxRetries: 3}

	calls := 0
	err := r.Do(context.Background(), func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
}

func TestRetry_DoExhaustsRetries(t *testing.T) {
	r := Retry{BaseDelay: time.Millisecond, MaxRetries: 2}

	calls := 0
	persistent := errors.New("persistent")
	err := r.Do(context.Background(), func(context.Context) error {
		calls++
		return persistent
	})
	if !errors.Is(err, persistent) {
		t.Fatalf("expected persistent error, got %v", err)
	}
	if calls != 3 { // initial attempt + 2 retries
		t.Errorf("expected 3 calls, got %d", calls)
	}
}

func TestRetry_DoNeverBypassesOpenBreaker(t *testing.T) {
	r := Retry{BaseDelay: time.Millisecond, MaxRetries: 5}

	calls := 0
	err := r.Do(context.Background(), func(context.Context) error {
		calls++
		return domain.ErrCircuitOpen
	})
	if !errors.Is(err, domain.ErrCircuitOpen) {
		t.Fatalf("expected ErrCircuitOpen, got %v", err)
	}
	if calls != 1 {
		t.Errorf("open breaker must not be retried, got %d calls", calls)
	}
}

func TestRetry_DoRespectsContextCancellation(t *testing.T) {
	r := Retry{BaseDelay: time.Hour, MaxRetries: 3}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := r.Do(ctx, func(context.Context) error {
		return errors.New("transient")
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
