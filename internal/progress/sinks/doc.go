// Package sinks implements concrete progress consumers for Prometheus and
// structured logging. Each sink satisfies the progress.Sink interface.
package sinks
