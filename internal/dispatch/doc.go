// Package dispatch routes messages between a pipeline stage and its
// configured input and output channels.
//
// A Table is built once per stage during single-threaded pipeline
// construction. Registration validates that a processor's expected type
// matches the channel it is installed on; any failure leaves the table
// exactly as it was. After construction the table is touched only by the
// owning pipeline goroutine, so Dispatch and Send take no locks.
//
// CRITICAL PATTERNS:
//
// CP-1: Configuration errors are fatal at build time.
// CHANNEL_TYPE_MISMATCH, DUPLICATE_PROCESSOR and NO_MATCHING_CHANNEL stop
// pipeline construction. UNROUTED_CHANNEL at dispatch time means the
// pipeline was built wrong and the pipeline should fail.
//
// CP-2: Send stamps per-channel sequence numbers.
// Each output channel has its own counter starting at 1. The counter is
// written into the message GUID before the message leaves the stage.
//
// CP-3: The one-past-the-end output index is a silent drop.
// When a stage has N > 0 output channels, Send(m, N) returns true without
// stamping or forwarding. Stage logic written against fixtures with no
// output wiring relies on this. Index 0 with no outputs is not a drop; it
// is the implicit default channel.
package dispatch
