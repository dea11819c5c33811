package metrics

import "sync/atomic"

// MetricID identifies one counter in the in-process metrics set.
type MetricID uint8

const (
	// MetricValidateSuccess counts successful session validations.
	MetricValidateSuccess MetricID = iota
	// MetricValidateFailure counts rejected session validations.
	MetricValidateFailure
	// MetricSessionLocalHit counts validations served from the local
	// session cache without touching the distributed store.
	MetricSessionLocalHit
	// MetricSessionRevalidated counts re-validations against the system
	// of record.
	MetricSessionRevalidated
	// MetricSessionStoreDown counts fail-closed rejections caused by an
	// unreachable session store.
	MetricSessionStoreDown
	// MetricDecisionLocalHit counts decision-cache hits in the local tier.
	MetricDecisionLocalHit
	// MetricDecisionDistributedHit counts hits in the distributed tier.
	MetricDecisionDistributedHit
	// MetricDecisionOriginFetch counts authoritative rule fetches.
	MetricDecisionOriginFetch
	// MetricDecisionInvalidation counts cache invalidation calls.
	MetricDecisionInvalidation
	// MetricAuthorizeAllowed counts granted authorization checks.
	MetricAuthorizeAllowed
	// MetricAuthorizeDenied counts denied authorization checks.
	MetricAuthorizeDenied
	// MetricOverridesApplied counts override sets applied to a user.
	MetricOverridesApplied
	// MetricApprovalCreated counts pending approval rows created.
	MetricApprovalCreated
	// MetricApprovalApproved counts approvals that applied their payload.
	MetricApprovalApproved
	// MetricApprovalRejected counts rejected approvals.
	MetricApprovalRejected
	// MetricApprovalConflict counts review races lost to another reviewer.
	MetricApprovalConflict

	// MetricIDCount bounds the counter array; keep it last.
	MetricIDCount
)

// Config controls whether counters record anything.
type Config struct {
	Enabled bool
}

// Metrics is a fixed set of atomic counters. A disabled instance turns all
// operations into no-ops so call sites never branch.
type Metrics struct {
	enabled  bool
	counters [MetricIDCount]atomic.Uint64
}

// New creates a Metrics instance.
func New(cfg Config) *Metrics {
	return &Metrics{enabled: cfg.Enabled}
}

// Inc increments one counter.
func (m *Metrics) Inc(id MetricID) {
	if m == nil || !m.enabled || id >= MetricIDCount {
		return
	}
	m.counters[id].Add(1)
}

// Snapshot is a point-in-time copy of all counters.
type Snapshot struct {
	Counters map[MetricID]uint64
}

// Snapshot copies the current counter values.
func (m *Metrics) Snapshot() Snapshot {
	snap := Snapshot{Counters: make(map[MetricID]uint64, int(MetricIDCount))}
	if m == nil || !m.enabled {
		return snap
	}
	for id := MetricID(0); id < MetricIDCount; id++ {
		snap.Counters[id] = m.counters[id].Load()
	}
	return snap
}
