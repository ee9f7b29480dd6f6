// Package prometheus exposes engine metrics as a client_golang Collector.
//
// Counters are published as authcore_*_total and token verification
// latency as the authcore_verify_latency_seconds histogram. Nothing is
// registered globally; callers register the Collector or mount Handler.
package prometheus
