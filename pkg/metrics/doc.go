// Package metrics defines the Prometheus instrumentation for hubfleet:
// spawn/stop outcomes and latency, engine API call counts and duration, and
// liveness poll results. All collectors register in init; Handler exposes
// the scrape endpoint.
package metrics
