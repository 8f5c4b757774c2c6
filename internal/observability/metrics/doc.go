// Package metrics exports scheduler counters to Prometheus and serves them
// over HTTP, optionally next to the pprof endpoints.
package metrics
