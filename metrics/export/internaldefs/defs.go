package internaldefs

import (
	"github.com/MrEthical07/gatekeeper"
)

// CounterDef binds an engine counter to its exported name.
type CounterDef struct {
	ID   gatekeeper.MetricID
	Name string
	Help string
}

// HistogramDef binds an engine histogram to its exported name.
type HistogramDef struct {
	ID   gatekeeper.MetricID
	Name string
	Help string
}

// CounterDefs lists every exported counter in exposition order.
var CounterDefs = []CounterDef{
	{ID: gatekeeper.MetricLoginSuccess, Name: "gatekeeper_login_success_total", Help: "Successful logins."},
	{ID: gatekeeper.MetricLoginFailure, Name: "gatekeeper_login_failure_total", Help: "Logins rejected with invalid credentials or throttled."},
	{ID: gatekeeper.MetricSessionCreated, Name: "gatekeeper_session_created_total", Help: "Created sessions."},
	{ID: gatekeeper.MetricSessionEvicted, Name: "gatekeeper_session_evicted_total", Help: "Sessions evicted by the per-user cap."},
	{ID: gatekeeper.MetricSessionExpired, Name: "gatekeeper_session_expired_total", Help: "Expired sessions detected and deleted on validation."},
	{ID: gatekeeper.MetricSessionInvalidated, Name: "gatekeeper_session_invalidated_total", Help: "Sessions deleted by logout or revocation."},
	{ID: gatekeeper.MetricLogout, Name: "gatekeeper_logout_total", Help: "Single-session logouts."},
	{ID: gatekeeper.MetricLogoutAll, Name: "gatekeeper_logout_all_total", Help: "Logout-all and revocation operations."},
	{ID: gatekeeper.MetricSessionsSwept, Name: "gatekeeper_sessions_swept_total", Help: "Expired sessions removed by the background sweep."},
	{ID: gatekeeper.MetricGateAllowed, Name: "gatekeeper_gate_allowed_total", Help: "Requests allowed by the gate."},
	{ID: gatekeeper.MetricGateUnauthenticated, Name: "gatekeeper_gate_unauthenticated_total", Help: "Requests denied for missing or invalid sessions."},
	{ID: gatekeeper.MetricGateForbidden, Name: "gatekeeper_gate_forbidden_total", Help: "Requests denied by the permission matrix."},
	{ID: gatekeeper.MetricGateCSRFRejected, Name: "gatekeeper_gate_csrf_rejected_total", Help: "Mutating requests with a missing or wrong CSRF token."},
	{ID: gatekeeper.MetricGateStorageFailure, Name: "gatekeeper_gate_storage_failure_total", Help: "Requests failed closed on session storage errors."},
	{ID: gatekeeper.MetricRoleChanged, Name: "gatekeeper_role_changed_total", Help: "User role changes."},
}

// HistogramDefs lists every exported histogram.
var HistogramDefs = []HistogramDef{
	{ID: gatekeeper.MetricValidateLatency, Name: "gatekeeper_validate_latency_seconds", Help: "Session validation latency."},
}

// AuditDroppedName is the counter for audit events lost to backpressure.
const AuditDroppedName = "gatekeeper_audit_dropped_total"

// AuditDroppedHelp describes [AuditDroppedName].
const AuditDroppedHelp = "Dropped audit events due to dispatcher backpressure."

// HistogramBounds are the Prometheus "le" labels of the latency buckets.
var HistogramBounds = [8]string{"0.005", "0.01", "0.025", "0.05", "0.1", "0.25", "0.5", "+Inf"}

// HistogramBoundSuffix are metric-name-safe forms of [HistogramBounds].
var HistogramBoundSuffix = [8]string{"0_005", "0_01", "0_025", "0_05", "0_1", "0_25", "0_5", "inf"}

// Histogram is one exported latency histogram.
type Histogram struct {
	// Cumulative holds the running bucket counts; the last entry is the
	// sample count.
	Cumulative [8]uint64
	// SumSeconds is the total observed latency.
	SumSeconds float64
}

// Count returns the number of observations.
func (h Histogram) Count() uint64 {
	return h.Cumulative[len(h.Cumulative)-1]
}

// Counter is one exported counter value.
type Counter struct {
	Def   CounterDef
	Value uint64
}

// Family pairs a histogram definition with its current value.
type Family struct {
	Def       HistogramDef
	Histogram Histogram
}

// Collection is the exporter-neutral view of one snapshot.
type Collection struct {
	Counters     []Counter
	Histograms   []Family
	AuditDropped uint64
}

// Empty reports whether there is nothing to export. Disabled metrics
// produce empty snapshots.
func (c Collection) Empty() bool {
	return c.Counters == nil && c.Histograms == nil && c.AuditDropped == 0
}

// Collect maps a snapshot onto the exported definitions in exposition order.
func Collect(s gatekeeper.MetricsSnapshot, dropped uint64) Collection {
	out := Collection{AuditDropped: dropped}
	if len(s.Counters) == 0 && len(s.Histograms) == 0 {
		return out
	}

	out.Counters = make([]Counter, 0, len(CounterDefs))
	for _, def := range CounterDefs {
		out.Counters = append(out.Counters, Counter{Def: def, Value: s.Counters[def.ID]})
	}

	out.Histograms = make([]Family, 0, len(HistogramDefs))
	for _, def := range HistogramDefs {
		out.Histograms = append(out.Histograms, Family{
			Def: def,
			Histogram: Histogram{
				Cumulative: cumulative(s.Histograms[def.ID]),
				SumSeconds: s.HistogramSums[def.ID].Seconds(),
			},
		})
	}
	return out
}

func cumulative(raw []uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := range out {
		if i < len(raw) {
			running += raw[i]
		}
		out[i] = running
	}
	return out
}
