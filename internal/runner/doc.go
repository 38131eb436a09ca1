// Package runner assembles configured pipelines into a running process.
//
// A Stream owns an ordered list of stages, a control inbox and a data
// queue. One goroutine per stream drains both queues; control messages are
// always handled before pending data so a state change or parameter update
// takes effect on the very next message. App wires streams to the control
// broadcaster, the status aggregator, the output sinks and the HTTP control
// surface.
//
// CRITICAL PATTERNS:
//
// CP-1: One goroutine touches stage state.
// Stage tables, parameters and counters are mutated only by the stream
// goroutine while it holds the stream mutex. Status and RPC readers take
// the same mutex and receive copies.
//
// CP-2: Data is processed only in the Run state.
// Every other state discards inbound data and counts the discard, so a
// stopped pipeline never emits.
//
// CP-3: Encode once per emission.
// A message leaving the last stage is encoded a single time; every sink and
// the active recording receive the same bytes.
//
// CP-4: The status emitter is the only caller of Aggregator.Collect.
// Collect drains the log ring, so a second caller would steal log records
// from the periodic document.
package runner
