package authcore

import (
	"errors"

	"github.com/retailops/authcore/session"
	"github.com/retailops/authcore/token"
)

var (
	// ErrInvalidCredentials covers every credential rejection: unknown
	// identifier, wrong password, and disabled account are deliberately
	// indistinguishable to avoid user enumeration.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrInvalidToken covers every token verification failure uniformly.
	ErrInvalidToken = errors.New("invalid token")
	// ErrSessionRevoked is returned when a structurally valid token
	// references a session that is no longer active.
	ErrSessionRevoked = errors.New("session revoked")
	// ErrInsufficientRole is returned when the caller's role does not
	// meet the required level.
	ErrInsufficientRole = errors.New("insufficient role")
	// ErrRateLimited tells the caller to retry later.
	ErrRateLimited = errors.New("rate limited")
	// ErrDependencyUnavailable wraps datastore or cache failures that
	// survived retries.
	ErrDependencyUnavailable = errors.New("dependency unavailable")
	// ErrPasswordPolicy is returned when a new password fails the
	// configured strength requirements.
	ErrPasswordPolicy = errors.New("password policy violation")
	// ErrPasswordReuse rejects a new password equal to the current one.
	ErrPasswordReuse = errors.New("new password must differ from current password")
	// ErrAccountExists is returned by user stores on duplicate email or
	// username.
	ErrAccountExists = errors.New("account already exists")
	// ErrInvalidRegistration rejects a malformed registration request.
	ErrInvalidRegistration = errors.New("invalid registration request")
	// ErrUserNotFound is returned by user stores for unknown ids or
	// identifiers. The engine maps it to ErrInvalidCredentials before
	// it reaches a caller.
	ErrUserNotFound = errors.New("user not found")
	// ErrEngineNotReady indicates use of an engine missing a required
	// dependency.
	ErrEngineNotReady = errors.New("engine not initialized")
)

var terminalErrors = []error{
	ErrInvalidCredentials,
	ErrInvalidToken,
	ErrSessionRevoked,
	ErrInsufficientRole,
	ErrRateLimited,
	ErrPasswordPolicy,
	ErrPasswordReuse,
	ErrAccountExists,
	ErrInvalidRegistration,
	ErrUserNotFound,
	ErrEngineNotReady,
	token.ErrInvalid,
	session.ErrNotFound,
}

// Terminal reports whether err is a deterministic outcome that retrying
// can never change. Terminal failures are returned immediately; all
// other failure classes are treated as transient and retried.
func Terminal(err error) bool {
	for _, t := range terminalErrors {
		if errors.Is(err, t) {
			return true
		}
	}
	return false
}
