// Package http serves the console's operational endpoints.
//
// # Endpoints
//
//	GET /metrics - Prometheus metrics of the query cache and API client
//	GET /health  - JSON health report: cache counts and session state
//
// The server only runs while the interactive console is open and
// telemetry.metrics_addr is configured.
package http
