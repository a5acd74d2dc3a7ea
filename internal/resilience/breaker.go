// Package resilience holds the concurrency-control primitives guarding
// calls to the generation backend: a circuit breaker, an exponential
// backoff retry strategy, and a bounded-concurrency FIFO request queue.
package resilience

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/ragdex/internal/domain"
	"github.com/kailas-cloud/ragdex/internal/metrics"
)

// State is the circuit breaker state.
type State int

const (
	// StateClosed passes requests through and tracks failures.
	StateClosed State = iota
	// StateOpen rejects requests without invoking the protected call.
	StateOpen
	// StateHalfOpen allows exactly one trial request.
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// rollingWindow caps the tracked call counts; beyond it both counters are
// halved so old outcomes decay instead of dominating the failure rate.
const rollingWindow = 100

// BreakerConfig holds circuit breaker thresholds.
type BreakerConfig struct {
	// ErrorThresholdPct opens the breaker when the failure percentage over
	// the tracked window reaches it (1-100).
	ErrorThresholdPct int
	// ResetTimeout is how long the breaker stays open before allowing a
	// half-open trial.
	ResetTimeout time.Duration
	// CallTimeout bounds each guarded call; exceeding it counts as failure.
	CallTimeout time.Duration
	// MinCalls is the minimum tracked calls before the breaker can open.
	MinCalls int
}

// CircuitBreaker guards a failing dependency: it stops calling it once the
// failure rate trips the threshold and probes it again after ResetTimeout.
type CircuitBreaker struct {
	cfg    BreakerConfig
	logger *zap.Logger
	clock  func() time.Time

	mu              sync.Mutex
	state           State
	failures        int
	successes       int
	lastFailureTime time.Time
	trialInFlight   bool
}

// NewCircuitBreaker creates a breaker in the closed state.
func NewCircuitBreaker(cfg BreakerConfig, logger *zap.Logger) *CircuitBreaker {
	if cfg.ErrorThresholdPct <= 0 {
		cfg.ErrorThresholdPct = 50
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = 30 * time.Second
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 30 * time.Second
	}
	if cfg.MinCalls <= 0 {
		cfg.MinCalls = 5
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CircuitBreaker{cfg: cfg, logger: logger, clock: time.Now}
}

// State returns the current breaker state.
func (b *CircuitBreaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Execute runs fn under the breaker. While open, fn is not invoked: the
// optional fallback runs instead, or the call fails fast with
// domain.ErrCircuitOpen. Each call is bounded by CallTimeout; a timeout
// counts as a failure.
func (b *CircuitBreaker) Execute(
	ctx context.Context,
	fn func(context.Context) error,
	fallback func(context.Context) error,
) error {
	if err := b.admit(); err != nil {
		if fallback != nil {
			return fallback(ctx)
		}
		return err
	}

	err := b.call(ctx, fn)
	if err != nil {
		b.onFailure()
		return err
	}
	b.onSuccess()
	return nil
}

// admit decides whether the call may proceed and performs the
// OPEN -> HALF_OPEN transition when the reset timeout has elapsed.
func (b *CircuitBreaker) admit() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return nil
	case StateOpen:
		if b.clock().Sub(b.lastFailureTime) < b.cfg.ResetTimeout {
			return domain.ErrCircuitOpen
		}
		b.transition(StateHalfOpen)
		b.trialInFlight = true
		return nil
	case StateHalfOpen:
		if b.trialInFlight {
			return domain.ErrCircuitOpen
		}
		b.trialInFlight = true
		return nil
	}
	return nil
}

func (b *CircuitBreaker) call(ctx context.Context, fn func(context.Context) error) error {
	callCtx, cancel := context.WithTimeout(ctx, b.cfg.CallTimeout)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- fn(callCtx) }()

	select {
	case err := <-done:
		return err
	case <-callCtx.Done():
		return fmt.Errorf("call timed out after %v: %w", b.cfg.CallTimeout, callCtx.Err())
	}
}

func (b *CircuitBreaker) onSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == StateHalfOpen {
		b.failures = 0
		b.successes = 0
		b.trialInFlight = false
		b.transition(StateClosed)
		return
	}

	b.successes++
	b.decay()
}

func (b *CircuitBreaker) onFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures++
	b.lastFailureTime = b.clock()

	if b.state == StateHalfOpen {
		b.trialInFlight = false
		b.transition(StateOpen)
		return
	}

	total := b.failures + b.successes
	if total >= b.cfg.MinCalls && b.failures*100/total >= b.cfg.ErrorThresholdPct {
		b.transition(StateOpen)
		return
	}
	b.decay()
}

func (b *CircuitBreaker) decay() {
	if b.failures+b.successes >= rollingWindow {
		b.failures /= 2
		b.successes /= 2
	}
}

func (b *CircuitBreaker) transition(next State) {
	if b.state == next {
		return
	}
	b.logger.Info("Circuit breaker state change",
		zap.String("from", b.state.String()),
		zap.String("to", next.String()),
		zap.Int("failures", b.failures),
		zap.Int("successes", b.successes),
	)
	b.state = next
	metrics.BreakerState.Set(float64(next))
}
