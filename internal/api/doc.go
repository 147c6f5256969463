// Package api hosts the HTTP server, middleware, and handlers that render the
// dashboard for operators. Notable routes:
//   - GET /healthz and /readyz for Kubernetes probes; readyz fails until the
//     monitor holds a subscription.
//   - GET /metrics for Prometheus scraping.
//   - GET /v1/dashboard for the current view as JSON.
//   - GET /v1/dashboard/events and /v1/dashboard/ws for live views over SSE
//     and WebSocket.
//   - POST /v1/terminate to ask the batch process to stop.
package api
