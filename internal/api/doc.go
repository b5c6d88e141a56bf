// Package api hosts the optional HTTP listener that runs beside a crawl.
// Routes:
//   - GET /healthz and /readyz for probes; readyz fails once the run errors.
//   - GET /metrics for Prometheus scraping.
//   - GET /v1/status for the tracked run status.
//   - GET /v1/results and /v1/results/{place_id} for resolved websites.
package api
