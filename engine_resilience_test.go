package authcore

import (
	"context"
	"errors"
	"testing"

	"github.com/retailops/authcore/role"
)

func TestStoreRetriesTransientFailures(t *testing.T) {
	ctx := context.Background()
	engine, deps := newTestEngine(t, testConfig(t))
	seedUser(t, deps, "staff1", "Str0ng!pass", role.Staff, StatusActive)

	// Two failed lookups, then the third attempt succeeds within one
	// Login call.
	deps.users.findFailures = 2

	if _, err := engine.Login(ctx, "staff1", "Str0ng!pass", ""); err != nil {
		t.Fatalf("login failed despite retry budget: %v", err)
	}
	if deps.users.findByIdentifierCalls != 3 {
		t.Fatalf("lookup called %d times, want 3", deps.users.findByIdentifierCalls)
	}
}

func TestStoreExhaustedRetries(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	cfg.Resilience.MaxRetries = 2
	engine, deps := newTestEngine(t, cfg)
	seedUser(t, deps, "staff1", "Str0ng!pass", role.Staff, StatusActive)

	deps.users.findFailures = 10

	_, err := engine.Login(ctx, "staff1", "Str0ng!pass", "")
	if !errors.Is(err, ErrDependencyUnavailable) {
		t.Fatalf("got %v, want ErrDependencyUnavailable", err)
	}
	if deps.users.findByIdentifierCalls != 3 {
		t.Fatalf("lookup called %d times, want 3", deps.users.findByIdentifierCalls)
	}
}

func TestTerminalFailuresAreNotRetried(t *testing.T) {
	ctx := context.Background()
	engine, deps := newTestEngine(t, testConfig(t))

	_, err := engine.Login(ctx, "nobody", "Str0ng!pass", "")
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("got %v, want ErrInvalidCredentials", err)
	}
	if deps.users.findByIdentifierCalls != 1 {
		t.Fatalf("terminal lookup retried: %d calls", deps.users.findByIdentifierCalls)
	}
}

func TestBreakerOpensAfterRepeatedFailures(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	cfg.Resilience.MaxRetries = 0
	cfg.Resilience.FailureThreshold = 3
	engine, deps := newTestEngine(t, cfg)
	seedUser(t, deps, "staff1", "Str0ng!pass", role.Staff, StatusActive)

	deps.users.findFailures = 100

	for i := 0; i < 5; i++ {
		if _, err := engine.Login(ctx, "staff1", "Str0ng!pass", ""); !errors.Is(err, ErrDependencyUnavailable) {
			t.Fatalf("attempt %d: got %v, want ErrDependencyUnavailable", i+1, err)
		}
	}

	// After the third failure the breaker stopped invoking the store.
	if deps.users.findByIdentifierCalls != 3 {
		t.Fatalf("store called %d times, want 3", deps.users.findByIdentifierCalls)
	}

	snap := engine.MetricsSnapshot()
	if snap[MetricBreakerOpen] != 1 {
		t.Fatalf("breaker open count %d, want 1", snap[MetricBreakerOpen])
	}
}

func TestThrottleFailsOpenWhenRedisDown(t *testing.T) {
	ctx := context.Background()
	engine, deps := newTestEngine(t, testConfig(t))
	seedUser(t, deps, "staff1", "Str0ng!pass", role.Staff, StatusActive)

	deps.redis.Close()

	// Logins keep working with the counter store down.
	for i := 0; i < 7; i++ {
		if _, err := engine.Login(ctx, "staff1", "Str0ng!pass", ""); err != nil {
			t.Fatalf("attempt %d: login should fail open, got %v", i+1, err)
		}
	}

	snap := engine.MetricsSnapshot()
	if snap[MetricThrottleFailOpen] == 0 {
		t.Fatal("expected fail-open increments")
	}
}
