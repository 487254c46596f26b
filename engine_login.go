package authcore

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/retailops/authcore/token"
)

// Login verifies credentials for identifier (email or username) and, on
// success, opens a session and issues an access/refresh token pair.
//
// Unknown identifier, wrong password, and disabled account all return
// ErrInvalidCredentials; the response never reveals which check failed.
// Attempts count against the login throttle whether or not they
// succeed.
func (e *Engine) Login(ctx context.Context, identifier, passwd, device string) (*LoginResult, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}

	if !e.limiter.Allow(ctx, "login:"+identifier, e.config.Throttle.LoginLimit, e.config.Throttle.LoginWindow) {
		e.metricInc(MetricLoginThrottled)
		e.metricInc(MetricThrottleDenied)
		e.emitAudit(ctx, auditEventLoginThrottled, false, "", "", ErrRateLimited, func() map[string]string {
			return map[string]string{"identifier": identifier}
		})
		return nil, ErrRateLimited
	}

	var user User
	err := e.store(ctx, func(ctx context.Context) error {
		var err error
		user, err = e.users.FindUserByIdentifier(ctx, identifier)
		return err
	})
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, e.failLogin(ctx, identifier, "", errors.New("unknown identifier"))
		}
		return nil, err
	}

	if !e.hasher.Verify(passwd, user.PasswordHash) {
		return nil, e.failLogin(ctx, identifier, user.ID, errors.New("password mismatch"))
	}

	if user.Status != StatusActive {
		return nil, e.failLogin(ctx, identifier, user.ID, errors.New("account disabled"))
	}

	var sessionID string
	err = e.store(ctx, func(ctx context.Context) error {
		var err error
		sessionID, err = e.sessions.Create(ctx, user.ID, device)
		return err
	})
	if err != nil {
		return nil, err
	}

	claims := token.Claims{
		Subject:   user.ID,
		Role:      user.Role,
		SessionID: sessionID,
	}

	access, err := e.tokens.Issue(claims, token.KindAccess)
	if err != nil {
		return nil, err
	}
	refresh, err := e.tokens.Issue(claims, token.KindRefresh)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	if err := e.users.UpdateLastLogin(ctx, user.ID, now); err != nil {
		log.Printf("authcore: last-login update failed for user %s: %v", user.ID, err)
	}
	e.touchActivity(user.ID)

	e.metricInc(MetricLoginSuccess)
	e.metricInc(MetricSessionCreated)
	e.emitAudit(ctx, auditEventLoginSuccess, true, user.ID, sessionID, nil, nil)

	user.PasswordHash = ""

	return &LoginResult{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresIn:    int64(e.tokens.TTL(token.KindAccess) / time.Second),
		SessionID:    sessionID,
		User:         user,
	}, nil
}

func (e *Engine) failLogin(ctx context.Context, identifier, userID string, reason error) error {
	e.metricInc(MetricLoginFailure)
	e.emitAudit(ctx, auditEventLoginFailure, false, userID, "", reason, func() map[string]string {
		return map[string]string{"identifier": identifier}
	})
	return ErrInvalidCredentials
}

// Refresh mints a new access token from a refresh token whose session
// is still active. A revoked or expired session returns
// ErrSessionRevoked even when the refresh token itself verifies.
func (e *Engine) Refresh(ctx context.Context, refreshToken string) (*RefreshResult, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}

	claims, err := e.tokens.Verify(refreshToken, token.KindRefresh)
	if err != nil {
		e.metricInc(MetricRefreshFailure)
		e.emitAudit(ctx, auditEventRefreshFailure, false, "", "", ErrInvalidToken, nil)
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
		e.metricInc(MetricRefreshFailure)
		e.emitAudit(ctx, auditEventRefreshFailure, false, claims.Subject, claims.SessionID, ErrSessionRevoked, nil)
		return nil, ErrSessionRevoked
	}

	access, err := e.tokens.Issue(*claims, token.KindAccess)
	if err != nil {
		return nil, err
	}

	e.metricInc(MetricRefreshSuccess)
	e.emitAudit(ctx, auditEventRefreshSuccess, true, claims.Subject, claims.SessionID, nil, nil)

	return &RefreshResult{
		AccessToken: access,
		ExpiresIn:   int64(e.tokens.TTL(token.KindAccess) / time.Second),
	}, nil
}

// Logout invalidates the session referenced by accessToken. Logging out
// an already-invalidated session succeeds; the token itself must still
// verify.
func (e *Engine) Logout(ctx context.Context, accessToken string) error {
	if e == nil {
		return ErrEngineNotReady
	}

	claims, err := e.tokens.Verify(accessToken, token.KindAccess)
	if err != nil {
		return ErrInvalidToken
	}

	err = e.store(ctx, func(ctx context.Context) error {
		return e.sessions.Invalidate(ctx, claims.SessionID)
	})
	if err != nil {
		return err
	}

	e.metricInc(MetricSessionInvalidated)
	e.emitAudit(ctx, auditEventLogout, true, claims.Subject, claims.SessionID, nil, nil)

	return nil
}
