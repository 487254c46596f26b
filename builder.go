package authcore

import (
	"errors"
	"log"

	"github.com/redis/go-redis/v9"

	"github.com/retailops/authcore/password"
	"github.com/retailops/authcore/resilience"
	"github.com/retailops/authcore/session"
	"github.com/retailops/authcore/throttle"
	"github.com/retailops/authcore/token"
)

// Builder assembles an Engine. Configure it with the With* methods and
// call Build exactly once.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	userStore    UserStore
	sessionStore session.Store
	auditSink    AuditSink

	built bool
}

// New returns a Builder preloaded with production defaults.
func New() *Builder {
	return &Builder{
		config: DefaultConfig(EnvProduction),
	}
}

// WithConfig replaces the entire configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cfg
	return b
}

// WithRedis sets the client backing the rate-limit counters.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithUserStore sets the datastore for user records. Required.
func (b *Builder) WithUserStore(store UserStore) *Builder {
	b.userStore = store
	return b
}

// WithSessionStore sets the datastore for session records. Required.
func (b *Builder) WithSessionStore(store session.Store) *Builder {
	b.sessionStore = store
	return b
}

// WithAuditSink sets the destination for audit events. Defaults to
// NoOpSink; pair with NewStoreSink to persist events in the datastore.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// Build validates the configuration, wires the components, and returns
// a ready Engine. The builder cannot be reused.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := b.config

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if b.userStore == nil {
		return nil, errors.New("user store required")
	}
	if b.sessionStore == nil {
		return nil, errors.New("session store required")
	}
	if b.redis == nil {
		return nil, errors.New("redis client required")
	}

	hasher, err := password.New(password.Config{
		Memory:      cfg.Password.Memory,
		Time:        cfg.Password.Time,
		Parallelism: cfg.Password.Parallelism,
		SaltLength:  cfg.Password.SaltLength,
		KeyLength:   cfg.Password.KeyLength,
	})
	if err != nil {
		return nil, err
	}

	tokens, err := token.NewManager(token.Config{
		Secret:     cfg.JWT.Secret,
		AccessTTL:  cfg.JWT.AccessTTL,
		RefreshTTL: cfg.JWT.RefreshTTL,
		ResetTTL:   cfg.JWT.ResetTTL,
		Issuer:     cfg.JWT.Issuer,
	})
	if err != nil {
		return nil, err
	}

	metrics := NewMetrics(cfg.Metrics)

	dbBreaker := resilience.NewBreaker(resilience.BreakerConfig{
		FailureThreshold: cfg.Resilience.FailureThreshold,
		OpenTimeout:      cfg.Resilience.OpenTimeout,
		OnOpen: func() {
			metrics.Inc(MetricBreakerOpen)
			log.Printf("authcore: datastore circuit opened")
		},
	})
	cacheBreaker := resilience.NewBreaker(resilience.BreakerConfig{
		FailureThreshold: cfg.Resilience.FailureThreshold,
		OpenTimeout:      cfg.Resilience.OpenTimeout,
		OnOpen: func() {
			metrics.Inc(MetricBreakerOpen)
			log.Printf("authcore: counter-store circuit opened")
		},
	})

	limiter := throttle.New(b.redis, cfg.Throttle.KeyPrefix, cacheBreaker)
	limiter.OnFailOpen = func() {
		metrics.Inc(MetricThrottleFailOpen)
	}

	e := &Engine{
		config:    cfg,
		users:     b.userStore,
		sessions:  session.NewRegistry(b.sessionStore, cfg.Session.Lifetime),
		tokens:    tokens,
		hasher:    hasher,
		limiter:   limiter,
		dbBreaker: dbBreaker,
		retry: resilience.Policy{
			MaxRetries: cfg.Resilience.MaxRetries,
			BaseDelay:  cfg.Resilience.BaseDelay,
			RetryIf:    func(err error) bool { return !Terminal(err) },
		},
		audit:   newAuditDispatcher(cfg.Audit, b.auditSink),
		metrics: metrics,
	}

	b.built = true

	return e, nil
}
