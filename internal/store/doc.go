// Package store provides SQLite-backed storage for message recordings.
//
// A recording is one session of captured pipeline output, started and
// stopped through the control plane. Each recorded message keeps its
// encoded envelope bytes exactly as they left the stage, so replay decodes
// them with the same codec the runner used.
//
// # Critical Patterns
//
// CP-1: Idempotent Writes
//   - recordings are keyed by id, messages by (recording_id, seq)
//   - ON CONFLICT DO NOTHING makes retried writes harmless
//
// CP-2: Logical Ordering
//   - Messages are ordered by seq (assigned by the recorder), never by
//     timestamps
//   - Replay returns messages in the order they were recorded
//
// CP-3: Bytes Are Opaque
//   - payload holds the full encoded envelope; the store never decodes it
//   - type_key and guid are copied out only for filtering and display
//
// CP-4: Known Layout Only
//   - Open refuses files whose tables are not recordings (ErrNotRecordings)
//     or that a newer build migrated (ErrNewerRecordings)
//   - Migrations run in order, in one transaction, keyed by user_version
//
// # Database Configuration
//
// Set on every connection through the driver DSN: WAL journal, NORMAL
// synchronous, a 5 second busy timeout, and foreign keys on.
package store
