package authcore

import "sync/atomic"

// MetricID identifies one engine counter.
type MetricID uint16

const (
	MetricRegisterSuccess MetricID = iota
	MetricRegisterDuplicate
	MetricLoginSuccess
	MetricLoginFailure
	MetricLoginRateLimited
	MetricAccountLocked
	MetricRefreshSuccess
	MetricRefreshFailure
	MetricRefreshReuseDetected
	MetricLineageRevoked
	MetricLogout
	MetricVerificationIssued
	MetricVerificationSuccess
	MetricVerificationFailure
	MetricVerificationRateLimited
	MetricResetRequested
	MetricResetSuccess
	MetricResetFailure
	MetricResetRateLimited
	metricIDCount
)

const cacheLineSize = 64

type paddedCounter struct {
	value uint64
	_     [cacheLineSize - 8]byte
}

// Metrics is the in-process counter set. All methods are safe for
// concurrent use; a nil or disabled Metrics is inert.
type Metrics struct {
	enabled  bool
	counters [metricIDCount]paddedCounter
}

// NewMetrics builds the counter set for cfg.
func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{enabled: cfg.Enabled}
}

// Inc increments one counter.
func (m *Metrics) Inc(id MetricID) {
	if m == nil || !m.enabled || id >= metricIDCount {
		return
	}
	atomic.AddUint64(&m.counters[id].value, 1)
}

// Get reads one counter.
func (m *Metrics) Get(id MetricID) uint64 {
	if m == nil || !m.enabled || id >= metricIDCount {
		return 0
	}
	return atomic.LoadUint64(&m.counters[id].value)
}

// MetricsSnapshot is a point-in-time copy of every counter.
type MetricsSnapshot struct {
	Counters map[MetricID]uint64
}

// Snapshot copies all counters. Counters are read individually, so the
// snapshot is consistent per counter, not across counters.
func (m *Metrics) Snapshot() MetricsSnapshot {
	snap := MetricsSnapshot{Counters: make(map[MetricID]uint64, int(metricIDCount))}
	if m == nil || !m.enabled {
		return snap
	}
	for id := MetricID(0); id < metricIDCount; id++ {
		snap.Counters[id] = atomic.LoadUint64(&m.counters[id].value)
	}
	return snap
}

// MetricName returns the stable exposition name for id. Used by the
// metrics/export packages.
func MetricName(id MetricID) string {
	switch id {
	case MetricRegisterSuccess:
		return "authcore_register_success_total"
	case MetricRegisterDuplicate:
		return "authcore_register_duplicate_total"
	case MetricLoginSuccess:
		return "authcore_login_success_total"
	case MetricLoginFailure:
		return "authcore_login_failure_total"
	case MetricLoginRateLimited:
		return "authcore_login_rate_limited_total"
	case MetricAccountLocked:
		return "authcore_account_locked_total"
	case MetricRefreshSuccess:
		return "authcore_refresh_success_total"
	case MetricRefreshFailure:
		return "authcore_refresh_failure_total"
	case MetricRefreshReuseDetected:
		return "authcore_refresh_reuse_detected_total"
	case MetricLineageRevoked:
		return "authcore_lineage_revoked_total"
	case MetricLogout:
		return "authcore_logout_total"
	case MetricVerificationIssued:
		return "authcore_verification_issued_total"
	case MetricVerificationSuccess:
		return "authcore_verification_success_total"
	case MetricVerificationFailure:
		return "authcore_verification_failure_total"
	case MetricVerificationRateLimited:
		return "authcore_verification_rate_limited_total"
	case MetricResetRequested:
		return "authcore_reset_requested_total"
	case MetricResetSuccess:
		return "authcore_reset_success_total"
	case MetricResetFailure:
		return "authcore_reset_failure_total"
	case MetricResetRateLimited:
		return "authcore_reset_rate_limited_total"
	}
	return "authcore_unknown_total"
}

// MetricIDs returns every defined counter ID in declaration order.
func MetricIDs() []MetricID {
	ids := make([]MetricID, 0, int(metricIDCount))
	for id := MetricID(0); id < metricIDCount; id++ {
		ids = append(ids, id)
	}
	return ids
}
