// Package export runs the export state machine.
//
// An Orchestrator validates settings, checks platform capability and the
// memory budget, pre-mixes all audio, starts a sink, then renders frames on
// a bounded worker pool. A reorder buffer feeds the sink in strict frame
// order. Every exit path releases the sink, mixer, compositor and frame
// pool exactly once. Cancellation is cooperative: the job settles with
// ErrCancelled at once while cleanup finishes in the background.
package export
