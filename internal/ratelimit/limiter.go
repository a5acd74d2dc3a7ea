// Package ratelimit bounds per-client request rates over a fixed window.
// The distributed variant counts on the shared key-value store; when the
// store is unavailable the limiter degrades to a process-local window,
// trading cross-instance accuracy for availability. Store failures never
// surface to callers.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/ragdex/internal/db"
	"github.com/kailas-cloud/ragdex/internal/metrics"
)

const keyPrefix = "ragdex:ratelimit:"

// Result is the outcome of a rate limit check.
type Result struct {
	Allowed   bool
	Remaining int
	ResetTime time.Time
}

type localWindow struct {
	count int
	start time.Time
}

// Limiter is a fixed-window rate limiter with a distributed primary and a
// local fallback. Close stops the fallback sweeper.
type Limiter struct {
	counter     db.Counter // nil runs local-only
	window      time.Duration
	maxRequests int
	logger      *zap.Logger
	clock       func() time.Time

	mu    sync.Mutex
	local map[string]*localWindow

	stop     chan struct{}
	stopOnce sync.Once
}

// New creates a limiter allowing maxRequests per window per key and starts
// the local-state sweeper. counter may be nil for local-only operation.
func New(counter db.Counter, window time.Duration, maxRequests int, logger *zap.Logger) *Limiter {
	if window <= 0 {
		window = time.Minute
	}
	if maxRequests <= 0 {
		maxRequests = 100
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	l := &Limiter{
		counter:     counter,
		window:      window,
		maxRequests: maxRequests,
		logger:      logger,
		clock:       time.Now,
		local:       make(map[string]*localWindow),
		stop:        make(chan struct{}),
	}
	go l.sweepLoop()
	return l
}

// Check counts a request against the client key. It never returns an error:
// shared-store failures fall back to the local window.
func (l *Limiter) Check(ctx context.Context, key string) Result {
	if l.counter != nil {
		if res, ok := l.checkDistributed(ctx, key); ok {
			l.observe(res)
			return res
		}
		metrics.RateLimitTotal.WithLabelValues("fallback").Inc()
	}
	res := l.checkLocal(key)
	l.observe(res)
	return res
}

// Close stops the background sweeper.
func (l *Limiter) Close() {
	l.stopOnce.Do(func() { close(l.stop) })
}

func (l *Limiter) observe(res Result) {
	if res.Allowed {
		metrics.RateLimitTotal.WithLabelValues("allowed").Inc()
	} else {
		metrics.RateLimitTotal.WithLabelValues("rejected").Inc()
	}
}

func (l *Limiter) checkDistributed(ctx context.Context, key string) (Result, bool) {
	k := keyPrefix + key

	count, err := l.counter.Incr(ctx, k)
	if err != nil {
		l.logger.Warn("Rate limit store unavailable, using local fallback",
			zap.String("key", key), zap.Error(err))
		return Result{}, false
	}
	// NX keeps the window anchored at the first request.
	if err := l.counter.Expire(ctx, k, l.window, true); err != nil {
		l.logger.Warn("Failed to set rate limit window expiry",
			zap.String("key", key), zap.Error(err))
		return Result{}, false
	}

	reset := l.clock().Add(l.window)
	if ttl, err := l.counter.TTL(ctx, k); err == nil && ttl > 0 {
		reset = l.clock().Add(ttl)
	}

	return Result{
		Allowed:   count <= int64(l.maxRequests),
		Remaining: remaining(l.maxRequests, int(count)),
		ResetTime: reset,
	}, true
}

func (l *Limiter) checkLocal(key string) Result {
	now := l.clock()

	l.mu.Lock()
	defer l.mu.Unlock()

	w := l.local[key]
	if w == nil || now.Sub(w.start) >= l.window {
		w = &localWindow{start: now}
		l.local[key] = w
	}
	w.count++

	return Result{
		Allowed:   w.count <= l.maxRequests,
		Remaining: remaining(l.maxRequests, w.count),
		ResetTime: w.start.Add(l.window),
	}
}

// sweepLoop periodically drops expired local windows so fallback state does
// not grow without bound.
func (l *Limiter) sweepLoop() {
	ticker := time.NewTicker(l.window)
	defer ticker.Stop()

	for {
		select {
		case <-l.stop:
			return
		case <-ticker.C:
			l.sweep()
		}
	}
}

func (l *Limiter) sweep() {
	now := l.clock()
	l.mu.Lock()
	defer l.mu.Unlock()
	for key, w := range l.local {
		if now.Sub(w.start) >= l.window {
			delete(l.local, key)
		}
	}
}

func remaining(max, count int) int {
	if count >= max {
		return 0
	}
	return max - count
}
