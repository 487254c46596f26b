package authcore

import (
	"errors"
	"time"
)

// Environment tiers. Non-production tiers lower the hashing work factor
// so test suites stay fast; everything else keeps production defaults.
const (
	EnvProduction  = "production"
	EnvDevelopment = "development"
	EnvTest        = "test"
)

// Config is the engine's complete configuration. Construct it with
// DefaultConfig or FromEnv and adjust named fields; Validate runs at
// Build time.
type Config struct {
	Environment string
	JWT         JWTConfig
	Password    PasswordConfig
	Session     SessionConfig
	Throttle    ThrottleConfig
	Resilience  ResilienceConfig
	Audit       AuditConfig
	Metrics     MetricsConfig
}

// JWTConfig holds token signing material and per-kind lifetimes.
// Access tokens are deliberately short-lived to bound the blast radius
// of a stolen bearer token; refresh tokens are long-lived but die with
// their session.
type JWTConfig struct {
	Secret     []byte
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	ResetTTL   time.Duration
	Issuer     string
}

// PasswordConfig combines the argon2id work factor with the password
// strength policy enforced before any digest is computed.
type PasswordConfig struct {
	Memory      uint32 // in KB
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32

	MinLength     int
	RequireUpper  bool
	RequireLower  bool
	RequireDigit  bool
	RequireSymbol bool
}

// SessionConfig controls the session registry.
type SessionConfig struct {
	Lifetime time.Duration
}

// ThrottleConfig holds the three fixed-window budgets: tight limits for
// login and password-reset attempts, a loose one for authenticated API
// calls.
type ThrottleConfig struct {
	KeyPrefix   string
	LoginLimit  int
	LoginWindow time.Duration
	ResetLimit  int
	ResetWindow time.Duration
	APILimit    int
	APIWindow   time.Duration
}

// ResilienceConfig tunes the retry policy and circuit breakers wrapped
// around every datastore and cache call.
type ResilienceConfig struct {
	MaxRetries       int
	BaseDelay        time.Duration
	FailureThreshold int
	OpenTimeout      time.Duration
}

// AuditConfig controls the async audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig controls the in-process counters.
type MetricsConfig struct {
	Enabled bool
}

// DefaultConfig returns the documented defaults for the given
// environment tier. Unknown tiers get production defaults; Validate
// rejects them later.
func DefaultConfig(environment string) Config {
	cfg := Config{
		Environment: environment,
		JWT: JWTConfig{
			AccessTTL:  24 * time.Hour,
			RefreshTTL: 7 * 24 * time.Hour,
			ResetTTL:   30 * time.Minute,
			Issuer:     "authcore",
		},
		Password: PasswordConfig{
			Memory:       64 * 1024,
			Time:         3,
			Parallelism:  2,
			SaltLength:   16,
			KeyLength:    32,
			MinLength:    8,
			RequireUpper: true,
			RequireLower: true,
			RequireDigit: true,
		},
		Session: SessionConfig{
			Lifetime: 7 * 24 * time.Hour,
		},
		Throttle: ThrottleConfig{
			KeyPrefix:   "rl",
			LoginLimit:  5,
			LoginWindow: time.Minute,
			ResetLimit:  3,
			ResetWindow: 15 * time.Minute,
			APILimit:    120,
			APIWindow:   time.Minute,
		},
		Resilience: ResilienceConfig{
			MaxRetries:       3,
			BaseDelay:        100 * time.Millisecond,
			FailureThreshold: 5,
			OpenTimeout:      30 * time.Second,
		},
		Audit: AuditConfig{
			Enabled:    true,
			BufferSize: 256,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}

	if environment == EnvDevelopment || environment == EnvTest {
		// Minimum argon2id cost; login latency matters more than GPU
		// resistance outside production.
		cfg.Password.Memory = 8 * 1024
		cfg.Password.Time = 1
		cfg.Password.Parallelism = 1
		cfg.Resilience.BaseDelay = time.Millisecond
	}

	return cfg
}

// Validate checks cross-field invariants after the caller has filled in
// deployment-specific values such as the token secret.
func (c *Config) Validate() error {
	switch c.Environment {
	case EnvProduction, EnvDevelopment, EnvTest:
	default:
		return errors.New("config: unknown environment tier")
	}

	if len(c.JWT.Secret) < 32 {
		return errors.New("config: token secret must be at least 32 bytes")
	}
	if c.JWT.AccessTTL <= 0 || c.JWT.RefreshTTL <= 0 || c.JWT.ResetTTL <= 0 {
		return errors.New("config: token TTLs must be positive")
	}
	if c.JWT.RefreshTTL < c.JWT.AccessTTL {
		return errors.New("config: refresh TTL must not be shorter than access TTL")
	}

	if c.Password.MinLength < 8 {
		return errors.New("config: password minimum length must be at least 8")
	}

	if c.Session.Lifetime <= 0 {
		return errors.New("config: session lifetime must be positive")
	}

	if c.Throttle.LoginLimit <= 0 || c.Throttle.LoginWindow <= 0 {
		return errors.New("config: login throttle limit and window must be positive")
	}
	if c.Throttle.ResetLimit <= 0 || c.Throttle.ResetWindow <= 0 {
		return errors.New("config: reset throttle limit and window must be positive")
	}
	if c.Throttle.APILimit <= 0 || c.Throttle.APIWindow <= 0 {
		return errors.New("config: api throttle limit and window must be positive")
	}

	if c.Resilience.MaxRetries < 0 {
		return errors.New("config: max retries must not be negative")
	}
	if c.Resilience.BaseDelay <= 0 {
		return errors.New("config: retry base delay must be positive")
	}
	if c.Resilience.FailureThreshold <= 0 {
		return errors.New("config: breaker failure threshold must be positive")
	}
	if c.Resilience.OpenTimeout <= 0 {
		return errors.New("config: breaker open timeout must be positive")
	}

	return nil
}
