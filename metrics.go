package authcore

import "sync/atomic"

// MetricID identifies one in-process counter.
type MetricID uint8

const (
	// MetricLoginSuccess is incremented on each successful login.
	MetricLoginSuccess MetricID = iota
	// MetricLoginFailure counts rejected credential checks.
	MetricLoginFailure
	// MetricLoginThrottled counts logins denied by the rate limiter.
	MetricLoginThrottled
	// MetricRefreshSuccess counts successful token refreshes.
	MetricRefreshSuccess
	// MetricRefreshFailure counts rejected refreshes.
	MetricRefreshFailure
	// MetricAuthenticateFailure counts rejected request authentications.
	MetricAuthenticateFailure
	// MetricAuthorizeDenied counts role checks that failed.
	MetricAuthorizeDenied
	// MetricSessionCreated counts new sessions.
	MetricSessionCreated
	// MetricSessionInvalidated counts session invalidations.
	MetricSessionInvalidated
	// MetricPasswordChanged counts successful password changes.
	MetricPasswordChanged
	// MetricPasswordReset counts successful password resets.
	MetricPasswordReset
	// MetricRegisterSuccess counts successful registrations.
	MetricRegisterSuccess
	// MetricRegisterFailure counts rejected registrations.
	MetricRegisterFailure
	// MetricThrottleDenied counts requests denied by any throttle.
	MetricThrottleDenied
	// MetricThrottleFailOpen counts throttle checks allowed because the
	// counter store failed.
	MetricThrottleFailOpen
	// MetricBreakerOpen counts circuit breaker open transitions.
	MetricBreakerOpen
	// MetricDependencyFailure counts store calls that exhausted retries.
	MetricDependencyFailure

	metricIDCount
)

// Metrics holds atomic counters. A nil or disabled instance is a no-op,
// so call sites never guard their increments.
type Metrics struct {
	enabled  bool
	counters [metricIDCount]atomic.Uint64
}

// NewMetrics returns a Metrics instance; when cfg.Enabled is false all
// operations are no-ops.
func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{enabled: cfg.Enabled}
}

// Inc adds one to the counter.
func (m *Metrics) Inc(id MetricID) {
	if m == nil || !m.enabled || id >= metricIDCount {
		return
	}
	m.counters[id].Add(1)
}

// Snapshot returns a point-in-time copy of all counters.
func (m *Metrics) Snapshot() map[MetricID]uint64 {
	out := make(map[MetricID]uint64, metricIDCount)
	if m == nil {
		return out
	}
	for id := MetricID(0); id < metricIDCount; id++ {
		out[id] = m.counters[id].Load()
	}
	return out
}
