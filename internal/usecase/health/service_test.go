package health

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"
)

type mockPinger struct{ err error }

func (m *mockPinger) Ping(context.Context) error { return m.err }

type mockChecker struct{ err error }

func (m *mockChecker) HealthCheck(context.Context) error { return m.err }

func TestCheck_AllHealthy(t *testing.T) {
	svc := New(&mockPinger{}, &mockChecker{}, zap.NewNop())

	status := svc.Check(context.Background())
	if !status.Healthy {
		t.Error("expected healthy")
	}
	if status.Components["store"] != "ok" || status.Components["embedding"] != "ok" {
		t.Errorf("components = %v", status.Components)
	}
}

func TestCheck_StoreDownOnlyDegrades(t *testing.T) {
	svc := New(&mockPinger{err: errors.New("refused")}, &mockChecker{}, zap.NewNop())

	status := svc.Check(context.Background())
	if !status.Healthy {
		t.Error("store outage must not mark the service unhealthy")
	}
}

func TestCheck_EmbedderDownIsUnhealthy(t *testing.T) {
	svc := New(&mockPinger{}, &mockChecker{err: errors.New("401")}, zap.NewNop())

	status := svc.Check(context.Background())
	if status.Healthy {
		t.Error("embedding provider outage must mark the service unhealthy")
	}
}

func TestCheck_NoStoreConfigured(t *testing.T) {
	svc := New(nil, &mockChecker{}, zap.NewNop())

	status := svc.Check(context.Background())
	if status.Components["store"] != "disabled" {
		t.Errorf("store component = %q, want disabled", status.Components["store"])
	}
}
