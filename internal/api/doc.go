// Package api hosts the optional operator HTTP server. Notable routes:
//   - GET /healthz and /readyz for probes.
//   - GET /metrics for Prometheus scraping.
//   - GET /v1/articles/{id} for inspecting one stored record.
package api
