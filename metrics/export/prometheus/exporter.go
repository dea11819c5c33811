package prometheus

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lumapos/authcore"
	internalmetrics "github.com/lumapos/authcore/internal/metrics"
)

// Source is the slice of the engine the exporter reads. *authcore.Engine
// satisfies it.
type Source interface {
	MetricsSnapshot() authcore.MetricsSnapshot
	AuditDropped() uint64
}

type counterDef struct {
	id   authcore.MetricID
	name string
	help string
}

var counterDefs = []counterDef{
	{internalmetrics.MetricValidateSuccess, "authcore_validate_success_total", "Successful session validations."},
	{internalmetrics.MetricValidateFailure, "authcore_validate_failure_total", "Failed session validations."},
	{internalmetrics.MetricSessionLocalHit, "authcore_session_local_hit_total", "Session validations served from the per-process cache."},
	{internalmetrics.MetricSessionRevalidated, "authcore_session_revalidated_total", "Sessions re-checked against the system of record."},
	{internalmetrics.MetricSessionStoreDown, "authcore_session_store_down_total", "Session checks denied because the store was unreachable."},
	{internalmetrics.MetricDecisionLocalHit, "authcore_decision_local_hit_total", "Permission decisions served from the local cache tier."},
	{internalmetrics.MetricDecisionDistributedHit, "authcore_decision_distributed_hit_total", "Permission decisions served from the distributed cache tier."},
	{internalmetrics.MetricDecisionOriginFetch, "authcore_decision_origin_fetch_total", "Permission decisions fetched from the system of record."},
	{internalmetrics.MetricDecisionInvalidation, "authcore_decision_invalidation_total", "Decision cache invalidations."},
	{internalmetrics.MetricAuthorizeAllowed, "authcore_authorize_allowed_total", "Authorization checks that allowed the action."},
	{internalmetrics.MetricAuthorizeDenied, "authcore_authorize_denied_total", "Authorization checks that denied the action."},
	{internalmetrics.MetricOverridesApplied, "authcore_overrides_applied_total", "Override sets applied without approval."},
	{internalmetrics.MetricApprovalCreated, "authcore_approval_created_total", "High-risk override submissions staged for approval."},
	{internalmetrics.MetricApprovalApproved, "authcore_approval_approved_total", "Approvals applied by a second reviewer."},
	{internalmetrics.MetricApprovalRejected, "authcore_approval_rejected_total", "Approvals rejected by a second reviewer."},
	{internalmetrics.MetricApprovalConflict, "authcore_approval_conflict_total", "Reviews that lost the pending-state race."},
}

// Collector bridges the engine's internal counters into a Prometheus
// registry. Collect reads a consistent snapshot on every scrape, so the
// engine's hot paths stay free of Prometheus types.
type Collector struct {
	source Source
	descs  []*prometheus.Desc
	audit  *prometheus.Desc
}

var _ prometheus.Collector = (*Collector)(nil)

// NewCollector creates a collector reading from source.
func NewCollector(source Source) *Collector {
	c := &Collector{
		source: source,
		audit: prometheus.NewDesc(
			"authcore_audit_dropped_total",
			"Audit events shed under dispatcher backpressure.",
			nil, nil,
		),
	}
	for _, def := range counterDefs {
		c.descs = append(c.descs, prometheus.NewDesc(def.name, def.help, nil, nil))
	}
	return c
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range c.descs {
		ch <- d
	}
	ch <- c.audit
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	snapshot := c.source.MetricsSnapshot()
	for i, def := range counterDefs {
		ch <- prometheus.MustNewConstMetric(
			c.descs[i], prometheus.CounterValue, float64(snapshot.Counters[def.id]))
	}
	ch <- prometheus.MustNewConstMetric(
		c.audit, prometheus.CounterValue, float64(c.source.AuditDropped()))
}

// Handler returns an http.Handler serving the source's metrics on a
// dedicated registry.
func Handler(source Source) http.Handler {
	registry := prometheus.NewRegistry()
	registry.MustRegister(NewCollector(source))
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
