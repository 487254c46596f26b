package authcore

import (
	"context"
	"errors"
	"strings"
	"unicode"

	"github.com/retailops/authcore/role"
	"github.com/retailops/authcore/token"
)

// Register creates a new user account. The password is checked against
// the configured policy and hashed before any datastore call; a
// duplicate email or username returns ErrAccountExists.
func (e *Engine) Register(ctx context.Context, req RegisterRequest) (User, error) {
	if e == nil {
		return User{}, ErrEngineNotReady
	}

	if req.Role == "" {
		req.Role = role.Staff
	}

	if !strings.Contains(req.Email, "@") || req.Username == "" || !role.Valid(req.Role) {
		e.metricInc(MetricRegisterFailure)
		return User{}, ErrInvalidRegistration
	}
	if err := e.validatePassword(req.Password); err != nil {
		e.metricInc(MetricRegisterFailure)
		return User{}, err
	}

	hash, err := e.hasher.Hash(req.Password)
	if err != nil {
		return User{}, err
	}

	var created User
	err = e.store(ctx, func(ctx context.Context) error {
		var err error
		created, err = e.users.CreateUser(ctx, User{
			Email:        req.Email,
			Username:     req.Username,
			PasswordHash: hash,
			Role:         req.Role,
			Status:       StatusActive,
		})
		return err
	})
	if err != nil {
		e.metricInc(MetricRegisterFailure)
		return User{}, err
	}

	e.metricInc(MetricRegisterSuccess)
	e.emitAudit(ctx, auditEventRegister, true, created.ID, "", nil, func() map[string]string {
		return map[string]string{"username": created.Username, "role": string(created.Role)}
	})

	created.PasswordHash = ""

	return created, nil
}

// ChangePassword replaces the caller's password after verifying the
// current one. Every other session of the user is invalidated; the
// session named by currentSessionID stays active so the caller is not
// logged out by their own change.
func (e *Engine) ChangePassword(ctx context.Context, userID, currentSessionID, currentPassword, newPassword string) error {
	if e == nil {
		return ErrEngineNotReady
	}

	var user User
	err := e.store(ctx, func(ctx context.Context) error {
		var err error
		user, err = e.users.FindUserByID(ctx, userID)
		return err
	})
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return ErrInvalidCredentials
		}
		return err
	}

	if !e.hasher.Verify(currentPassword, user.PasswordHash) {
		e.emitAudit(ctx, auditEventPasswordChange, false, userID, currentSessionID, ErrInvalidCredentials, nil)
		return ErrInvalidCredentials
	}
	if e.hasher.Verify(newPassword, user.PasswordHash) {
		return ErrPasswordReuse
	}
	if err := e.validatePassword(newPassword); err != nil {
		return err
	}

	hash, err := e.hasher.Hash(newPassword)
	if err != nil {
		return err
	}

	err = e.store(ctx, func(ctx context.Context) error {
		return e.users.UpdatePassword(ctx, userID, hash)
	})
	if err != nil {
		return err
	}

	err = e.store(ctx, func(ctx context.Context) error {
		return e.sessions.InvalidateAllExcept(ctx, userID, currentSessionID)
	})
	if err != nil {
		return err
	}

	e.metricInc(MetricPasswordChanged)
	e.metricInc(MetricSessionInvalidated)
	e.emitAudit(ctx, auditEventPasswordChange, true, userID, currentSessionID, nil, nil)
	e.emitAudit(ctx, auditEventSessionsRevoked, true, userID, currentSessionID, nil, func() map[string]string {
		return map[string]string{"kept": currentSessionID}
	})

	return nil
}

// RequestPasswordReset issues a single-purpose reset token for
// identifier. The caller is responsible for delivering it out of band.
//
// An unknown or disabled account returns an empty token and no error,
// so the response does not reveal whether the account exists. Requests
// count against the reset throttle either way.
func (e *Engine) RequestPasswordReset(ctx context.Context, identifier string) (string, error) {
	if e == nil {
		return "", ErrEngineNotReady
	}

	if !e.limiter.Allow(ctx, "pwreset:"+identifier, e.config.Throttle.ResetLimit, e.config.Throttle.ResetWindow) {
		e.metricInc(MetricThrottleDenied)
		e.emitAudit(ctx, auditEventResetThrottled, false, "", "", ErrRateLimited, func() map[string]string {
			return map[string]string{"identifier": identifier}
		})
		return "", ErrRateLimited
	}

	var user User
	err := e.store(ctx, func(ctx context.Context) error {
		var err error
		user, err = e.users.FindUserByIdentifier(ctx, identifier)
		return err
	})
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return "", nil
		}
		return "", err
	}
	if user.Status != StatusActive {
		return "", nil
	}

	reset, err := e.tokens.Issue(token.Claims{
		Subject: user.ID,
		Role:    user.Role,
	}, token.KindReset)
	if err != nil {
		return "", err
	}

	e.emitAudit(ctx, auditEventResetRequested, true, user.ID, "", nil, nil)

	return reset, nil
}

// ResetPassword sets a new password for the account named by a valid
// reset token and invalidates every session of that account.
func (e *Engine) ResetPassword(ctx context.Context, resetToken, newPassword string) error {
	if e == nil {
		return ErrEngineNotReady
	}

	claims, err := e.tokens.Verify(resetToken, token.KindReset)
	if err != nil {
		return ErrInvalidToken
	}
	if err := e.validatePassword(newPassword); err != nil {
		return err
	}

	hash, err := e.hasher.Hash(newPassword)
	if err != nil {
		return err
	}

	err = e.store(ctx, func(ctx context.Context) error {
		return e.users.UpdatePassword(ctx, claims.Subject, hash)
	})
	if err != nil {
		return err
	}

	err = e.store(ctx, func(ctx context.Context) error {
		return e.sessions.InvalidateAll(ctx, claims.Subject)
	})
	if err != nil {
		return err
	}

	e.metricInc(MetricPasswordReset)
	e.metricInc(MetricSessionInvalidated)
	e.emitAudit(ctx, auditEventPasswordReset, true, claims.Subject, "", nil, nil)
	e.emitAudit(ctx, auditEventSessionsRevoked, true, claims.Subject, "", nil, nil)

	return nil
}

// validatePassword enforces the configured strength policy.
func (e *Engine) validatePassword(passwd string) error {
	if len(passwd) < e.config.Password.MinLength {
		return ErrPasswordPolicy
	}

	var upper, lower, digit, symbol bool
	for _, r := range passwd {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			symbol = true
		}
	}

	p := e.config.Password
	if p.RequireUpper && !upper ||
		p.RequireLower && !lower ||
		p.RequireDigit && !digit ||
		p.RequireSymbol && !symbol {
		return ErrPasswordPolicy
	}

	return nil
}
