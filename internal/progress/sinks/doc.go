// Package sinks implements concrete dashboard update consumers: Prometheus
// gauges and counters, and structured logging. Each sink satisfies the
// progress.Sink interface and is safe for repeated Consume/Close cycles.
package sinks
