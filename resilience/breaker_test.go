package resilience

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

var errBoom = errors.New("boom")

func newTestBreaker(threshold int, timeout time.Duration) (*Breaker, *time.Time) {
	b := NewBreaker(BreakerConfig{FailureThreshold: threshold, OpenTimeout: timeout})
	current := time.Unix(1000, 0)
	b.now = func() time.Time { return current }
	return b, &current
}

func TestBreakerOpensAfterThreshold(t *testing.T) {
	b, _ := newTestBreaker(3, time.Minute)
	ctx := context.Background()

	calls := 0
	fail := func(context.Context) error { calls++; return errBoom }

	for i := 0; i < 3; i++ {
		if err := b.Do(ctx, fail); !errors.Is(err, errBoom) {
			t.Fatalf("attempt %d: got %v", i, err)
		}
	}
	if b.State() != Open {
		t.Fatalf("expected Open after threshold, got %v", b.State())
	}

	// Open circuit rejects without invoking the operation.
	if err := b.Do(ctx, fail); !errors.Is(err, ErrOpen) {
		t.Fatalf("expected ErrOpen, got %v", err)
	}
	if calls != 3 {
		t.Fatalf("operation invoked while open: %d calls", calls)
	}
}

func TestBreakerSuccessResetsFailureCount(t *testing.T) {
	b, _ := newTestBreaker(3, time.Minute)
	ctx := context.Background()

	fail := func(context.Context) error { return errBoom }
	ok := func(context.Context) error { return nil }

	_ = b.Do(ctx, fail)
	_ = b.Do(ctx, fail)
	_ = b.Do(ctx, ok)
	_ = b.Do(ctx, fail)
	_ = b.Do(ctx, fail)

	if b.State() != Closed {
		t.Fatalf("expected Closed after non-consecutive failures, got %v", b.State())
	}
}

func TestBreakerHalfOpenProbeSuccessCloses(t *testing.T) {
	b, clock := newTestBreaker(2, time.Minute)
	ctx := context.Background()

	fail := func(context.Context) error { return errBoom }
	_ = b.Do(ctx, fail)
	_ = b.Do(ctx, fail)
	if b.State() != Open {
		t.Fatalf("expected Open, got %v", b.State())
	}

	*clock = clock.Add(time.Minute)
	if b.State() != HalfOpen {
		t.Fatalf("expected HalfOpen after timeout, got %v", b.State())
	}

	probes := 0
	if err := b.Do(ctx, func(context.Context) error { probes++; return nil }); err != nil {
		t.Fatalf("probe failed: %v", err)
	}
	if probes != 1 {
		t.Fatalf("expected exactly one probe, got %d", probes)
	}
	if b.State() != Closed {
		t.Fatalf("expected Closed after successful probe, got %v", b.State())
	}
}

func TestBreakerHalfOpenProbeFailureReopens(t *testing.T) {
	b, clock := newTestBreaker(2, time.Minute)
	ctx := context.Background()

	fail := func(context.Context) error { return errBoom }
	_ = b.Do(ctx, fail)
	_ = b.Do(ctx, fail)

	*clock = clock.Add(time.Minute)
	if err := b.Do(ctx, fail); !errors.Is(err, errBoom) {
		t.Fatalf("probe: got %v", err)
	}
	if b.State() != Open {
		t.Fatalf("expected Open after failed probe, got %v", b.State())
	}

	// The open timer restarts from the probe failure.
	*clock = clock.Add(30 * time.Second)
	if err := b.Do(ctx, fail); !errors.Is(err, ErrOpen) {
		t.Fatalf("expected ErrOpen before timer elapses again, got %v", err)
	}
}

func TestBreakerHalfOpenAllowsSingleConcurrentProbe(t *testing.T) {
	b, clock := newTestBreaker(1, time.Minute)
	ctx := context.Background()

	_ = b.Do(ctx, func(context.Context) error { return errBoom })
	*clock = clock.Add(time.Minute)

	var mu sync.Mutex
	invoked := 0
	rejected := 0

	release := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := b.Do(ctx, func(context.Context) error {
				mu.Lock()
				invoked++
				mu.Unlock()
				<-release
				return nil
			})
			if errors.Is(err, ErrOpen) {
				mu.Lock()
				rejected++
				mu.Unlock()
			}
		}()
	}

	// Give the goroutines a chance to race for the probe slot.
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	if invoked != 1 {
		t.Fatalf("expected exactly one probe through half-open, got %d", invoked)
	}
	if rejected != 3 {
		t.Fatalf("expected 3 rejected calls, got %d", rejected)
	}
}

func TestBreakerOnOpenFiresOnce(t *testing.T) {
	opened := 0
	b := NewBreaker(BreakerConfig{
		FailureThreshold: 2,
		OpenTimeout:      time.Minute,
		OnOpen:           func() { opened++ },
	})
	current := time.Unix(1000, 0)
	b.now = func() time.Time { return current }

	ctx := context.Background()
	fail := func(context.Context) error { return errBoom }

	_ = b.Do(ctx, fail)
	_ = b.Do(ctx, fail)
	_ = b.Do(ctx, fail) // rejected, no transition

	if opened != 1 {
		t.Fatalf("expected OnOpen once, got %d", opened)
	}
}

func TestBreakerDefaults(t *testing.T) {
	b := NewBreaker(BreakerConfig{})
	if b.config.FailureThreshold != 5 || b.config.OpenTimeout != 30*time.Second {
		t.Fatalf("unexpected defaults: %+v", b.config)
	}
}
