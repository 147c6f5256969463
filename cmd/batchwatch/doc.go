// Package main hosts the batchwatch service entrypoint.
//
// Architecture overview:
//   - Subscription: internal/monitor.Monitor opens a subscription on the batch status channel through a
//     subscriber.Source (in-memory for local runs and replay, Google Cloud Pub/Sub in production). Once the
//     subscription is acknowledged the dashboard is reset, then notifications are applied one at a time in
//     arrival order.
//   - Dashboard: internal/dashboard applies each notification as a pure state transition. Notifications from a
//     process other than the tracked one are dropped; initialize binds a new process; user-message only prepends
//     to the user log. Job badges, the status line, progress and its footer are derived after each change.
//   - Fanout: every handled notification becomes a progress.Update that the Hub batches to sinks: the stream
//     broker (live SSE/WebSocket clients), Prometheus gauges, and an optional zap log sink. The Hub never blocks
//     the listener; updates are dropped with a rate-limited warning when its buffer is full.
//   - HTTP: internal/api.Server serves the current view, live streams, probes, /metrics, and POST /v1/terminate,
//     which fires a terminate request in the background and reports nothing back. Terminated jobs show up through
//     the regular notification stream.
//   - Configuration & plumbing: Viper populates config from a YAML file and BATCHWATCH_* env vars; zap provides
//     structured logging; OpenTelemetry trace context travels in Pub/Sub message attributes.
//
// Operational notes:
//   - Ephemeral Pub/Sub subscriptions are created per run and deleted on shutdown; configure
//     subscription.subscription_id to reuse a named one (replay=latest seeks it to now first).
//   - /readyz returns 503 until the subscription is established, and again after it ends.
//   - SIGINT/SIGTERM close live streams, drain HTTP, flush the Hub, and delete ephemeral subscriptions.
//
// Quick checklist:
//   - Run locally: go run ./cmd/batchwatch serve --config config.yaml
//   - Rebuild a dashboard from captured payloads: go run ./cmd/batchwatch replay captured.jsonl
//   - Stop a running process: go run ./cmd/batchwatch terminate (needs terminate.provider=pubsub).
package main
