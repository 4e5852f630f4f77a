// Package api hosts the admin HTTP server. Notable routes:
//   - GET /healthz and /readyz for probes; readiness checks the session registry.
//   - GET /metrics for Prometheus scraping.
//   - POST /v1/commands runs one chat command as the given sender and returns
//     its replies.
package api
