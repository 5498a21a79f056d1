// Package api hosts the operator HTTP surface that runs next to the pipeline:
//   - GET /healthz and /readyz for probes.
//   - GET /metrics for Prometheus scraping.
//   - GET /v1/status for the current run's keyword cursor, fed by a progress sink.
package api
