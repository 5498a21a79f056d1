// Package progress provides the event primitives, non-blocking hub, and emitter
// interface the pipeline uses to report per-keyword status. Events are batched
// on a background goroutine and fanned out to sinks such as structured logs or
// Prometheus collectors.
package progress
