// Package health reports readiness of the service's dependencies.
package health

import (
	"context"

	"go.uber.org/zap"
)

// Pinger checks shared-store connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Checker verifies the embedding provider is reachable.
type Checker interface {
	HealthCheck(ctx context.Context) error
}

// Status is the aggregate health report. The service is degraded, not down,
// when an optional dependency is unreachable: the shared store only backs
// the cache and rate-limiter tiers, both of which have local fallbacks.
type Status struct {
	Healthy    bool              `json:"healthy"`
	Components map[string]string `json:"components"`
}

// Service aggregates dependency health checks.
type Service struct {
	store    Pinger  // nil when running without a shared store
	embedder Checker // nil when no provider is configured
	logger   *zap.Logger
}

// New creates a health service. Both dependencies are optional.
func New(store Pinger, embedder Checker, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, embedder: embedder, logger: logger}
}

// Check probes each configured dependency. Healthy is false only when the
// embedding provider fails; the shared store degrades gracefully.
func (s *Service) Check(ctx context.Context) Status {
	status := Status{Healthy: true, Components: map[string]string{}}

	if s.store != nil {
		if err := s.store.Ping(ctx); err != nil {
			s.logger.Warn("Shared store unreachable", zap.Error(err))
			status.Components["store"] = "degraded: " + err.Error()
		} else {
			status.Components["store"] = "ok"
		}
	} else {
		status.Components["store"] = "disabled"
	}

	if s.embedder != nil {
		if err := s.embedder.HealthCheck(ctx); err != nil {
			s.logger.Warn("Embedding provider unreachable", zap.Error(err))
			status.Healthy = false
			status.Components["embedding"] = "error: " + err.Error()
		} else {
			status.Components["embedding"] = "ok"
		}
	}

	return status
}
