// Package progress carries sync run events from the reconciler to pluggable
// sinks. The Hub accepts events without blocking the run and delivers them in
// batches on a background goroutine.
package progress
