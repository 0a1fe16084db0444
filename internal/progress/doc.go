// Package progress carries run and task lifecycle events from the scheduler
// and its workers to pluggable sinks. Emitting never blocks: events are
// buffered, batched on a background goroutine, and fanned out to sinks such
// as structured logs or Prometheus collectors.
package progress
