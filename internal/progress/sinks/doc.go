// Package sinks implements concrete progress consumers: Prometheus collectors,
// sync run bookkeeping in the store, and structured logging.
package sinks
