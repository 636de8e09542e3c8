// Package prometheus renders gatekeeper metrics in Prometheus text
// exposition format.
//
// [NewPrometheusExporter] accepts a [gatekeeper.Engine] and exposes an
// [http.Handler]. Counter names are prefixed gatekeeper_*_total; the single
// histogram is gatekeeper_validate_latency_seconds.
//
// # What this package must NOT do
//
//   - Register metrics in a global Prometheus registry; callers mount the Handler.
//   - Mutate engine state.
package prometheus
