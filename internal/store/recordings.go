package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/sidecar/internal/msg"
)

// ErrRecordingNotFound is returned when a recording id is unknown.
var ErrRecordingNotFound = errors.New("recording not found")

// Recording is one capture session.
type Recording struct {
	ID        string    `json:"id"`
	Path      string    `json:"path"`
	Runner    string    `json:"runner"`
	StartedAt time.Time `json:"started_at"`

	// StoppedAt is zero while the recording is still running.
	StoppedAt time.Time `json:"stopped_at,omitempty"`
}

// Active reports whether the recording has not been stopped.
func (r Recording) Active() bool { return r.StoppedAt.IsZero() }

// RecordedMessage is one encoded message captured from a pipeline output.
type RecordedMessage struct {
	RecordingID string
	Seq         int64
	Pipeline    string
	Channel     string
	TypeKey     msg.TypeKey
	GUID        string
	EmittedAt   time.Time
	Payload     []byte
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}

// StartRecording inserts a recording.
// Uses ON CONFLICT(id) DO NOTHING for idempotency.
func (s *Store) StartRecording(ctx context.Context, rec Recording) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO recordings (id, path, runner, started_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, rec.ID, rec.Path, rec.Runner, formatTime(rec.StartedAt))
	if err != nil {
		return fmt.Errorf("start recording: %w", err)
	}
	return nil
}

// StopRecording marks a recording as stopped at the given time. Stopping
// an already stopped recording keeps the first stop time.
func (s *Store) StopRecording(ctx context.Context, id string, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE recordings SET stopped_at = COALESCE(stopped_at, ?)
		WHERE id = ?
	`, formatTime(at), id)
	if err != nil {
		return fmt.Errorf("stop recording: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("stop recording: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("stop recording %s: %w", id, ErrRecordingNotFound)
	}
	return nil
}

// WriteMessage inserts a recorded message.
// Uses ON CONFLICT DO NOTHING so a retried (recording_id, seq) is ignored.
//
// Note: The recording referenced by RecordingID must exist (foreign key constraint).
func (s *Store) WriteMessage(ctx context.Context, m RecordedMessage) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO messages
		(recording_id, seq, pipeline, channel, type_key, guid, emitted_at, payload)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT DO NOTHING
	`,
		m.RecordingID,
		m.Seq,
		m.Pipeline,
		m.Channel,
		int(m.TypeKey),
		m.GUID,
		formatTime(m.EmittedAt),
		m.Payload,
	)
	if err != nil {
		return fmt.Errorf("write message: %w", err)
	}
	return nil
}

// GetRecording returns one recording.
func (s *Store) GetRecording(ctx context.Context, id string) (Recording, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, path, runner, started_at, stopped_at
		FROM recordings WHERE id = ?
	`, id)
	rec, err := scanRecording(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Recording{}, fmt.Errorf("get recording %s: %w", id, ErrRecordingNotFound)
	}
	if err != nil {
		return Recording{}, fmt.Errorf("get recording %s: %w", id, err)
	}
	return rec, nil
}

// ListRecordings returns every recording, oldest first.
func (s *Store) ListRecordings(ctx context.Context) ([]Recording, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, path, runner, started_at, stopped_at
		FROM recordings
		ORDER BY started_at ASC, id ASC COLLATE BINARY
	`)
	if err != nil {
		return nil, fmt.Errorf("list recordings: %w", err)
	}
	defer rows.Close()

	var out []Recording
	for rows.Next() {
		rec, err := scanRecording(rows)
		if err != nil {
			return nil, fmt.Errorf("list recordings: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list recordings: %w", err)
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecording(row scanner) (Recording, error) {
	var (
		rec     Recording
		started string
		stopped sql.NullString
	)
	if err := row.Scan(&rec.ID, &rec.Path, &rec.Runner, &started, &stopped); err != nil {
		return Recording{}, err
	}
	var err error
	if rec.StartedAt, err = parseTime(started); err != nil {
		return Recording{}, fmt.Errorf("parse started_at: %w", err)
	}
	if stopped.Valid {
		if rec.StoppedAt, err = parseTime(stopped.String); err != nil {
			return Recording{}, fmt.Errorf("parse stopped_at: %w", err)
		}
	}
	return rec, nil
}

// ReadMessages returns the messages of one recording in seq order. A
// non-zero key restricts the result to that message kind.
func (s *Store) ReadMessages(ctx context.Context, recordingID string, key msg.TypeKey) ([]RecordedMessage, error) {
	query := `
		SELECT recording_id, seq, pipeline, channel, type_key, guid, emitted_at, payload
		FROM messages
		WHERE recording_id = ?`
	args := []any{recordingID}
	if key != msg.TypeInvalid {
		query += " AND type_key = ?"
		args = append(args, int(key))
	}
	query += " ORDER BY seq ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("read messages: %w", err)
	}
	defer rows.Close()

	var out []RecordedMessage
	for rows.Next() {
		var (
			m       RecordedMessage
			key     int
			emitted string
		)
		if err := rows.Scan(&m.RecordingID, &m.Seq, &m.Pipeline, &m.Channel, &key, &m.GUID, &emitted, &m.Payload); err != nil {
			return nil, fmt.Errorf("read messages: %w", err)
		}
		m.TypeKey = msg.TypeKey(key)
		if m.EmittedAt, err = parseTime(emitted); err != nil {
			return nil, fmt.Errorf("read messages: parse emitted_at: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read messages: %w", err)
	}
	return out, nil
}

// CountMessages returns the number of messages in a recording.
func (s *Store) CountMessages(ctx context.Context, recordingID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM messages WHERE recording_id = ?`, recordingID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count messages: %w", err)
	}
	return n, nil
}
