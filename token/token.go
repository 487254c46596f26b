// Package token issues and verifies the signed, time-bounded credentials
// carried by clients: short-lived access tokens, long-lived refresh
// tokens, and single-purpose password-reset tokens. Tokens are
// self-contained HS256 JWTs; the session they reference is checked
// separately by the caller.
package token

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/retailops/authcore/role"
)

// ErrInvalid is returned for every verification failure: malformed
// encoding, bad signature, expiry, and kind mismatch all collapse into
// this one value so callers cannot leak which check failed.
var ErrInvalid = errors.New("invalid token")

// Kind discriminates what a token may be used for.
type Kind string

const (
	// KindAccess proves recent authentication.
	KindAccess Kind = "access"
	// KindRefresh mints new access tokens while its session is active.
	KindRefresh Kind = "refresh"
	// KindReset authorizes a single password reset.
	KindReset Kind = "reset"
)

// Claims is the identity payload carried by every token.
type Claims struct {
	Subject   string
	Role      role.Role
	SessionID string
}

// Config holds signing material and per-kind lifetimes.
type Config struct {
	Secret     []byte
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	ResetTTL   time.Duration
	Issuer     string
}

// Manager signs and verifies tokens. Immutable after construction and
// safe for concurrent use.
type Manager struct {
	config Config
}

type tokenClaims struct {
	Role      string `json:"role,omitempty"`
	SessionID string `json:"sid,omitempty"`
	TokenKind string `json:"kind"`
	jwt.RegisteredClaims
}

// NewManager validates cfg and returns a Manager.
func NewManager(cfg Config) (*Manager, error) {
	if len(cfg.Secret) < 32 {
		return nil, errors.New("token secret must be at least 32 bytes")
	}
	if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 || cfg.ResetTTL <= 0 {
		return nil, errors.New("token TTLs must be positive")
	}
	if cfg.RefreshTTL < cfg.AccessTTL {
		return nil, errors.New("refresh TTL must not be shorter than access TTL")
	}

	return &Manager{config: cfg}, nil
}

// TTL returns the configured lifetime for the given kind.
func (m *Manager) TTL(kind Kind) time.Duration {
	switch kind {
	case KindRefresh:
		return m.config.RefreshTTL
	case KindReset:
		return m.config.ResetTTL
	default:
		return m.config.AccessTTL
	}
}

// Issue signs a token of the given kind carrying c, valid from now
// until now plus the kind's TTL.
func (m *Manager) Issue(c Claims, kind Kind) (string, error) {
	if c.Subject == "" {
		return "", errors.New("token subject required")
	}
	switch kind {
	case KindAccess, KindRefresh, KindReset:
	default:
		return "", errors.New("unsupported token kind")
	}

	now := time.Now()
	claims := tokenClaims{
		Role:      string(c.Role),
		SessionID: c.SessionID,
		TokenKind: string(kind),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   c.Subject,
			Issuer:    m.config.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.TTL(kind))),
		},
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.config.Secret)
}

// Verify decodes tokenStr, checks its signature and expiry, and checks
// that it was issued as expectedKind. Any failure yields ErrInvalid.
func (m *Manager) Verify(tokenStr string, expectedKind Kind) (*Claims, error) {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if m.config.Issuer != "" {
		options = append(options, jwt.WithIssuer(m.config.Issuer))
	}

	parser := jwt.NewParser(options...)
	parsed, err := parser.ParseWithClaims(tokenStr, &tokenClaims{}, func(t *jwt.Token) (interface{}, error) {
		return m.config.Secret, nil
	})
	if err != nil {
		return nil, ErrInvalid
	}

	claims, ok := parsed.Claims.(*tokenClaims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalid
	}
	if claims.TokenKind != string(expectedKind) {
		return nil, ErrInvalid
	}
	if claims.Subject == "" {
		return nil, ErrInvalid
	}

	return &Claims{
		Subject:   claims.Subject,
		Role:      role.Role(claims.Role),
		SessionID: claims.SessionID,
	}, nil
}
