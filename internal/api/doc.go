// Package api hosts the HTTP server, middleware, and REST handlers for operator
// access. Notable routes:
//   - GET /healthz and /readyz for Kubernetes probes.
//   - GET /metrics for Prometheus scraping.
//   - POST /v1/targets/{target_id}/check for manual checks.
//   - GET /v1/targets/{target_id}/eligibility for the gate decision.
//   - POST /v1/ticks, /v1/owners/{owner_id}/ticks and /v1/retention/sweep for
//     operator-triggered batch runs.
package api
