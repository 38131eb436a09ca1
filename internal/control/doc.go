// Package control is the control plane shared by every pipeline in a
// runner process.
//
// It fans control messages out to pipeline inboxes, collects recent log
// records into a bounded ring, assembles status documents, and exposes the
// RPC surface that operators use to change state, start or stop recording
// and edit stage parameters.
//
// CRITICAL PATTERNS:
//
// CP-1: Broadcast is fire-and-forget.
// Each pipeline gets its own clone of the message buffer. A pipeline that
// refuses the message is logged as "failed to post message to stream NAME"
// and skipped; delivery to the remaining pipelines always proceeds and the
// caller never sees an error. The original buffer is released exactly once
// after every pipeline has been attempted.
//
// CP-2: Buffers are shared, not copied.
// Clone hands out a new handle over the same bytes and bumps a shared
// reference count. The release hook runs once, when the last handle is
// released.
//
// CP-3: The log tail never repeats.
// LogRing keeps at most N records, dropping the oldest. Drain returns the
// records oldest-first and empties the ring, so consecutive status
// documents never carry the same record twice.
//
// CP-4: Parameter changes jump the queue.
// SetParameters inserts at the head of the target pipeline's inbox so the
// change applies before any queued data.
package control
