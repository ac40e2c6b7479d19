// Package api hosts the HTTP server and handlers for operator access. Routes:
//   - GET /healthz and /readyz for probes.
//   - GET /metrics for Prometheus scraping.
//   - POST /v1/runs to start an ingestion run, GET /v1/runs/latest for the last report.
//   - GET /v1/stats for a company and tag summary of the stored postings.
package api
