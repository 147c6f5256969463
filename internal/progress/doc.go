// Package progress provides the update record, non-blocking hub, and emitter
// interfaces the monitor uses to publish dashboard changes. It batches
// updates on a background goroutine and fans them out to pluggable sinks such
// as Prometheus metrics, structured logs or live stream clients.
package progress
