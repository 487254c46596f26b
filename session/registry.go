// Package session tracks logical login sessions. A session outlives any
// single access token minted against it; revoking the session is what
// makes every later token presentation fail, regardless of the token's
// own signature and expiry.
//
// Records are persisted through the Store interface, owned by the
// relational datastore. The Registry adds lifetimes, id generation, and
// the invalidation semantics on top.
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned by Store implementations when a session id
// does not exist.
var ErrNotFound = errors.New("session not found")

// DefaultLifetime is how long a session stays valid without an explicit
// logout.
const DefaultLifetime = 7 * 24 * time.Hour

// Session is one logical login.
type Session struct {
	ID            string
	UserID        string
	Device        string
	CreatedAt     time.Time
	ExpiresAt     time.Time
	Active        bool
	InvalidatedAt *time.Time
}

// Store persists sessions. Implementations must support concurrent
// callers; mutations are single bounded calls to the backing store.
type Store interface {
	Insert(ctx context.Context, s Session) error
	Get(ctx context.Context, id string) (Session, error)
	// SetActive flips the active flag; deactivation records at as the
	// invalidation time. Unknown ids return ErrNotFound.
	SetActive(ctx context.Context, id string, active bool, at time.Time) error
	// InvalidateOthers marks every active session of userID inactive
	// except keepID, returning the number changed.
	InvalidateOthers(ctx context.Context, userID, keepID string, at time.Time) (int64, error)
	// InvalidateAll marks every active session of userID inactive,
	// returning the number changed.
	InvalidateAll(ctx context.Context, userID string, at time.Time) (int64, error)
	// SweepExpired marks inactive every active session whose expiry has
	// passed, returning the number swept.
	SweepExpired(ctx context.Context, now time.Time) (int64, error)
}

// Registry is the server-side record of logins.
type Registry struct {
	store    Store
	lifetime time.Duration
	now      func() time.Time
}

// NewRegistry returns a Registry creating sessions with the given
// lifetime; nonpositive lifetimes fall back to DefaultLifetime.
func NewRegistry(store Store, lifetime time.Duration) *Registry {
	if lifetime <= 0 {
		lifetime = DefaultLifetime
	}

	return &Registry{
		store:    store,
		lifetime: lifetime,
		now:      time.Now,
	}
}

// Create persists a new active session for userID and returns its
// opaque id.
func (r *Registry) Create(ctx context.Context, userID, device string) (string, error) {
	if userID == "" {
		return "", errors.New("session user id required")
	}

	now := r.now()
	s := Session{
		ID:        uuid.NewString(),
		UserID:    userID,
		Device:    device,
		CreatedAt: now,
		ExpiresAt: now.Add(r.lifetime),
		Active:    true,
	}

	if err := r.store.Insert(ctx, s); err != nil {
		return "", fmt.Errorf("insert session: %w", err)
	}

	return s.ID, nil
}

// Invalidate marks the session inactive. Invalidating twice, or an
// unknown id, is not an error.
func (r *Registry) Invalidate(ctx context.Context, sessionID string) error {
	err := r.store.SetActive(ctx, sessionID, false, r.now())
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	return err
}

// InvalidateAllExcept marks every other session of userID inactive,
// forcing re-authentication everywhere but the caller's own login.
// Used on password change.
func (r *Registry) InvalidateAllExcept(ctx context.Context, userID, keepSessionID string) error {
	_, err := r.store.InvalidateOthers(ctx, userID, keepSessionID, r.now())
	return err
}

// InvalidateAll marks every session of userID inactive. Used on
// password reset.
func (r *Registry) InvalidateAll(ctx context.Context, userID string) error {
	_, err := r.store.InvalidateAll(ctx, userID, r.now())
	return err
}

// SweepExpired marks inactive any session past its expiry. Maintenance
// operation for a scheduler, not a per-request step.
func (r *Registry) SweepExpired(ctx context.Context) (int64, error) {
	return r.store.SweepExpired(ctx, r.now())
}

// IsActive reports whether the session exists, is flagged active, and
// has not passed its expiry. Unknown ids are simply inactive, not
// errors.
func (r *Registry) IsActive(ctx context.Context, sessionID string) (bool, error) {
	if sessionID == "" {
		return false, nil
	}

	s, err := r.store.Get(ctx, sessionID)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	if !s.Active {
		return false, nil
	}
	if !s.ExpiresAt.After(r.now()) {
		return false, nil
	}
	return true, nil
}
