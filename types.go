package authcore

import (
	"context"
	"time"

	"github.com/retailops/authcore/role"
)

// Status is the lifecycle state of a principal's account.
type Status uint8

const (
	// StatusActive accounts may authenticate.
	StatusActive Status = iota
	// StatusDisabled accounts are rejected at login without revealing
	// that they exist.
	StatusDisabled
)

func (s Status) String() string {
	if s == StatusDisabled {
		return "disabled"
	}
	return "active"
}

// User is the identity record this core reads and writes. The
// datastore owns the record; only the auth-relevant fields appear here.
type User struct {
	ID             string
	Email          string
	Username       string
	PasswordHash   string
	Role           role.Role
	Status         Status
	LastLoginAt    *time.Time
	LastActivityAt *time.Time
}

// UserStore is the caller-implemented interface to the relational
// datastore's user records. Lookups return ErrUserNotFound for unknown
// ids and identifiers; CreateUser returns ErrAccountExists on duplicate
// email or username. All methods may fail transiently; the engine calls
// them only through its resilience wrappers.
type UserStore interface {
	// FindUserByIdentifier matches either email or username.
	FindUserByIdentifier(ctx context.Context, identifier string) (User, error)
	FindUserByID(ctx context.Context, id string) (User, error)
	CreateUser(ctx context.Context, u User) (User, error)
	UpdatePassword(ctx context.Context, userID, passwordHash string) error
	UpdateLastLogin(ctx context.Context, userID string, at time.Time) error
	UpdateLastActivity(ctx context.Context, userID string, at time.Time) error
}

// AuditStore persists audit events in the relational datastore.
type AuditStore interface {
	InsertAuditLog(ctx context.Context, e AuditEvent) error
}

// Identity is the authenticated principal attached to a request after
// Authenticate succeeds.
type Identity struct {
	UserID    string
	Role      role.Role
	SessionID string
}

// LoginResult is returned on successful login. ExpiresIn is the access
// token lifetime in seconds. User carries no password hash.
type LoginResult struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    int64
	SessionID    string
	User         User
}

// RefreshResult carries the newly minted access token.
type RefreshResult struct {
	AccessToken string
	ExpiresIn   int64
}

// RegisterRequest is the input to Engine.Register. Role defaults to
// the lowest role when empty.
type RegisterRequest struct {
	Email    string
	Username string
	Password string
	Role     role.Role
}
