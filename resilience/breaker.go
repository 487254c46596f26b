package resilience

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrOpen is returned by Breaker.Do when the circuit is open and the
// wrapped operation was not invoked.
var ErrOpen = errors.New("circuit open")

// State is the breaker's position in its three-state machine.
type State uint8

const (
	// Closed passes calls through and counts failures.
	Closed State = iota
	// Open rejects calls without invoking the operation.
	Open
	// HalfOpen lets exactly one probe call through.
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Open:
		return "open"
	case HalfOpen:
		return "half-open"
	default:
		return "closed"
	}
}

// BreakerConfig tunes a Breaker. OnOpen, when set, fires on each
// Closed-to-Open transition (not on a failed probe returning to Open).
type BreakerConfig struct {
	FailureThreshold int
	OpenTimeout      time.Duration
	OnOpen           func()
}

// Breaker isolates one protected operation. Its state is shared by all
// concurrent callers within the process and guarded by a mutex; it is
// deliberately not shared across processes, since the goal is local
// back-pressure rather than global consensus.
type Breaker struct {
	config BreakerConfig

	mu          sync.Mutex
	state       State
	failures    int
	lastFailure time.Time
	probing     bool
	now         func() time.Time
}

// NewBreaker returns a closed Breaker. Zero or negative config fields
// fall back to a threshold of 5 failures and a 30s open timeout.
func NewBreaker(cfg BreakerConfig) *Breaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = 30 * time.Second
	}

	return &Breaker{
		config: cfg,
		now:    time.Now,
	}
}

// State returns the breaker's current state, accounting for an elapsed
// open timeout.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == Open && b.now().Sub(b.lastFailure) >= b.config.OpenTimeout {
		return HalfOpen
	}
	return b.state
}

// Do invokes op unless the circuit is open. While open, calls fail fast
// with ErrOpen until OpenTimeout has elapsed since the last failure;
// then a single probe is allowed through. A successful probe closes the
// circuit and clears the failure count; a failed probe reopens it and
// restarts the timer.
func (b *Breaker) Do(ctx context.Context, op func(context.Context) error) error {
	if err := b.before(); err != nil {
		return err
	}

	err := op(ctx)
	b.after(err)
	return err
}

func (b *Breaker) before() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Open:
		if b.now().Sub(b.lastFailure) < b.config.OpenTimeout {
			return ErrOpen
		}
		b.state = HalfOpen
		b.probing = true
		return nil
	case HalfOpen:
		if b.probing {
			return ErrOpen
		}
		b.probing = true
		return nil
	default:
		return nil
	}
}

func (b *Breaker) after(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err == nil {
		b.state = Closed
		b.failures = 0
		b.probing = false
		return
	}

	b.lastFailure = b.now()

	if b.state == HalfOpen {
		b.state = Open
		b.probing = false
		return
	}

	b.failures++
	if b.failures >= b.config.FailureThreshold {
		b.state = Open
		b.failures = 0
		if b.config.OnOpen != nil {
			b.config.OnOpen()
		}
	}
}
