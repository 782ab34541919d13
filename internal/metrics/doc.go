// Package metrics exposes the runtime counters and gauges a Region and
// Coordinator accumulate, collected via github.com/prometheus/client_golang
// the way the rest of the pack's services instrument themselves.
// internal/region and internal/coordinator import this package only to
// accept an optional *Metrics and call its methods, which are no-ops on a
// nil receiver.
package metrics
