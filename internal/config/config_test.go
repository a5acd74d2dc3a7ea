package config

import (
	"os"
	"testing"
	"time"
)

func TestValidate_InvalidPort(t *testing.T) {
	cfg := Config{HTTP: HTTPConfig{Port: 0}}
	cfg.ApplyDefaults()
	cfg.HTTP.Port = 0

	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for invalid port")
	}
}

func TestValidate_BatchSizeOverThreshold(t *testing.T) {
	cfg := Config{
		HTTP: HTTPConfig{Port: 8080},
		Search: SearchConfig{
			ParallelThreshold: 100,
			BatchSize:         500,
		},
	}
	cfg.ApplyDefaults()

	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for batch_size > parallel_threshold")
	}
}

func TestValidate_BreakerThresholdOverHundred(t *testing.T) {
	cfg := Config{HTTP: HTTPConfig{Port: 8080}}
	cfg.ApplyDefaults()
	cfg.Resilience.BreakerErrorThresholdPct = 120

	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for threshold > 100")
	}
}

func TestApplyDefaults(t *testing.T) {
	cfg := Config{}
	cfg.ApplyDefaults()

	if cfg.HTTP.ReadTimeoutSec != 10 {
		t.Errorf("expected ReadTimeoutSec=10, got %d", cfg.HTTP.ReadTimeoutSec)
	}
	if cfg.Storage.DataDir != "data" {
		t.Errorf("expected DataDir=data, got %q", cfg.Storage.DataDir)
	}
	if cfg.Search.ParallelThreshold != 1000 {
		t.Errorf("expected ParallelThreshold=1000, got %d", cfg.Search.ParallelThreshold)
	}
	if cfg.Resilience.BreakerErrorThresholdPct != 50 {
		t.Errorf("expected BreakerErrorThresholdPct=50, got %d", cfg.Resilience.BreakerErrorThresholdPct)
	}
	if cfg.Resilience.QueueMaxConcurrent != 5 {
		t.Errorf("expected QueueMaxConcurrent=5, got %d", cfg.Resilience.QueueMaxConcurrent)
	}
	if cfg.RateLimit.MaxRequests != 100 {
		t.Errorf("expected MaxRequests=100, got %d", cfg.RateLimit.MaxRequests)
	}
	if cfg.RetryBaseDelay() != time.Second {
		t.Errorf("expected RetryBaseDelay=1s, got %v", cfg.RetryBaseDelay())
	}
	if cfg.RateLimitWindow() != time.Minute {
		t.Errorf("expected RateLimitWindow=1m, got %v", cfg.RateLimitWindow())
	}
}

func TestExpandEnvVars(t *testing.T) {
	os.Setenv("RAGDEX_TEST_KEY", "secret")
	defer os.Unsetenv("RAGDEX_TEST_KEY")

	in := []byte("api_key: ${RAGDEX_TEST_KEY}\nmodel: ${RAGDEX_TEST_MODEL:-gpt-default}\n")
	out := string(expandEnvVars(in))

	if out != "api_key: secret\nmodel: gpt-default\n" {
		t.Errorf("unexpected expansion: %q", out)
	}
}
