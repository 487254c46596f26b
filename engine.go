package authcore

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/retailops/authcore/password"
	"github.com/retailops/authcore/resilience"
	"github.com/retailops/authcore/role"
	"github.com/retailops/authcore/session"
	"github.com/retailops/authcore/throttle"
	"github.com/retailops/authcore/token"
)

// Engine is the identity and access-control core. It owns credential
// hashing, token issuance and verification, the session registry, role
// checks, and request throttling; it reads and writes user records only
// through the injected UserStore. Construct it with Builder; an Engine
// is safe for concurrent use.
type Engine struct {
	config    Config
	users     UserStore
	sessions  *session.Registry
	tokens    *token.Manager
	hasher    *password.Hasher
	limiter   *throttle.Limiter
	dbBreaker *resilience.Breaker
	retry     resilience.Policy
	audit     *auditDispatcher
	metrics   *Metrics
}

// store runs op against the datastore through the retry policy and
// circuit breaker. Terminal outcomes pass through untouched; anything
// else that survives retries is reported as ErrDependencyUnavailable.
func (e *Engine) store(ctx context.Context, op func(context.Context) error) error {
	err := resilience.Retry(ctx, e.retry, func(ctx context.Context) error {
		return e.dbBreaker.Do(ctx, op)
	})
	if err == nil || Terminal(err) {
		return err
	}

	e.metricInc(MetricDependencyFailure)

	return fmt.Errorf("%w: %v", ErrDependencyUnavailable, err)
}

// Authenticate verifies an access token and confirms its session is
// still active. A structurally valid token whose session was revoked or
// expired returns ErrSessionRevoked; every other failure is
// ErrInvalidToken.
func (e *Engine) Authenticate(ctx context.Context, accessToken string) (*Identity, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}

	claims, err := e.tokens.Verify(accessToken, token.KindAccess)
	if err != nil {
		e.metricInc(MetricAuthenticateFailure)
		return nil, ErrInvalidToken
	}

	var active bool
	err = e.store(ctx, func(ctx context.Context) error {
		var err error
		active, err = e.sessions.IsActive(ctx, claims.SessionID)
		return err
	})
	if err != nil {
		return nil, err
	}
	if !active {
		e.metricInc(MetricAuthenticateFailure)
		return nil, ErrSessionRevoked
	}

	e.touchActivity(claims.Subject)

	return &Identity{
		UserID:    claims.Subject,
		Role:      claims.Role,
		SessionID: claims.SessionID,
	}, nil
}

// Authorize checks that the identity's role meets the required level.
func (e *Engine) Authorize(id *Identity, required role.Role) error {
	if e == nil {
		return ErrEngineNotReady
	}
	if id == nil {
		return ErrInvalidToken
	}
	if !role.Authorize(id.Role, required) {
		e.metricInc(MetricAuthorizeDenied)
		return ErrInsufficientRole
	}
	return nil
}

// Guard authenticates the access token, checks the required role, and
// applies the per-user API throttle, in that order. It is the single
// call sites put in front of a protected operation.
func (e *Engine) Guard(ctx context.Context, accessToken string, required role.Role) (*Identity, error) {
	id, err := e.Authenticate(ctx, accessToken)
	if err != nil {
		return nil, err
	}
	if err := e.Authorize(id, required); err != nil {
		return nil, err
	}

	if !e.limiter.Allow(ctx, "api:"+id.UserID, e.config.Throttle.APILimit, e.config.Throttle.APIWindow) {
		e.metricInc(MetricThrottleDenied)
		return nil, ErrRateLimited
	}

	return id, nil
}

// SweepExpiredSessions marks every expired-but-still-active session
// inactive and returns how many were swept. Intended for a periodic
// caller-owned job.
func (e *Engine) SweepExpiredSessions(ctx context.Context) (int64, error) {
	if e == nil {
		return 0, ErrEngineNotReady
	}

	var swept int64
	err := e.store(ctx, func(ctx context.Context) error {
		var err error
		swept, err = e.sessions.SweepExpired(ctx)
		return err
	})

	return swept, err
}

// touchActivity records activity for userID without blocking the
// caller. Failures are logged only; activity timestamps are advisory.
func (e *Engine) touchActivity(userID string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := e.users.UpdateLastActivity(ctx, userID, time.Now().UTC()); err != nil {
			log.Printf("authcore: last-activity update failed for user %s: %v", userID, err)
		}
	}()
}

// emitAudit queues one audit event. fields is lazy so call sites pay
// for map construction only when auditing is enabled.
func (e *Engine) emitAudit(ctx context.Context, event string, success bool, userID, sessionID string, opErr error, fields func() map[string]string) {
	if e == nil || e.audit == nil {
		return
	}

	ev := AuditEvent{
		Time:      time.Now().UTC(),
		Event:     event,
		Success:   success,
		UserID:    userID,
		SessionID: sessionID,
	}
	if opErr != nil {
		ev.Error = opErr.Error()
	}
	if fields != nil {
		ev.Fields = fields()
	}

	e.audit.Emit(ctx, ev)
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil {
		return
	}
	e.metrics.Inc(id)
}

// MetricsSnapshot returns a copy of the engine's counters.
func (e *Engine) MetricsSnapshot() map[MetricID]uint64 {
	if e == nil {
		return map[MetricID]uint64{}
	}
	return e.metrics.Snapshot()
}

// AuditDropped reports how many audit events were discarded because the
// dispatch buffer was full.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// Close flushes and stops the audit dispatcher. The engine must not be
// used after Close.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}
