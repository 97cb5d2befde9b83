// Package progress holds the concurrency primitives the crawl engine shares
// between workers: per-phase counters (Tracker), the cooperative pause Gate,
// and a non-blocking Hub that batches progress events and fans them out to
// pluggable sinks such as logs, Prometheus metrics, or Pub/Sub.
package progress
