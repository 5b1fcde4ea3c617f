// Package metric provides Prometheus metrics for checkpoint and recovery
// sessions.
//
// A Registry owns its own prometheus.Registry so tests and tools can
// create isolated instances; Global returns the process-wide one.
package metric
