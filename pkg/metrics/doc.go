/*
Package metrics exposes quorumvault's Prometheus instrumentation: storage
occupancy, per-verb operation counters and latencies, replication-gate
rejections, integrity-check failures, and raft leadership/term/index
gauges. Handler() serves the standard promhttp collector; components
update the package-level collectors directly (the same pattern the
corpus uses throughout: a global registry, no DI of a metrics interface).
*/
package metrics
