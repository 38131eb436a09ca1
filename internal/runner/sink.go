package runner

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/roach88/sidecar/internal/msg"
	"github.com/roach88/sidecar/internal/store"
)

// Sink receives every encoded message a stream emits.
type Sink interface {
	Publish(pipeline, channel string, m msg.Message, b []byte) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(pipeline, channel string, m msg.Message, b []byte) error

func (f SinkFunc) Publish(pipeline, channel string, m msg.Message, b []byte) error {
	return f(pipeline, channel, m, b)
}

// subjectToken replaces the characters NATS reserves in subject tokens.
var subjectToken = strings.NewReplacer(".", "_", " ", "_", "*", "_", ">", "_", "\t", "_")

// Subject returns the subject a pipeline output is published on:
// "<prefix>.<pipeline>.<channel>".
func Subject(prefix, pipeline, channel string) string {
	return prefix + "." + subjectToken.Replace(pipeline) + "." + subjectToken.Replace(channel)
}

// IngestSubject returns the subject a pipeline reads encoded input from:
// "<prefix>.ingest.<pipeline>".
func IngestSubject(prefix, pipeline string) string {
	return prefix + ".ingest." + subjectToken.Replace(pipeline)
}

// NATSSink publishes encoded messages on NATS.
type NATSSink struct {
	conn   *nats.Conn
	prefix string
	logger *slog.Logger
}

// ConnectNATS connects to url with automatic, unbounded reconnection.
func ConnectNATS(url, prefix, name string, logger *slog.Logger) (*NATSSink, error) {
	opts := []nats.Option{
		nats.Name(name),
		nats.ReconnectWait(2 * time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("nats disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats reconnected", "url", nc.ConnectedUrl())
		}),
		nats.ClosedHandler(func(*nats.Conn) {
			logger.Info("nats connection closed")
		}),
	}

	conn, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to nats %s: %w", url, err)
	}
	logger.Info("nats connected", "url", url, "prefix", prefix)
	return &NATSSink{conn: conn, prefix: prefix, logger: logger}, nil
}

// Publish sends b on the pipeline output's subject.
func (n *NATSSink) Publish(pipeline, channel string, _ msg.Message, b []byte) error {
	if err := n.conn.Publish(Subject(n.prefix, pipeline, channel), b); err != nil {
		return fmt.Errorf("publish %s/%s: %w", pipeline, channel, err)
	}
	return nil
}

// Subscribe delivers every payload published on the pipeline's ingest
// subject to fn.
func (n *NATSSink) Subscribe(pipeline string, fn func(b []byte)) (*nats.Subscription, error) {
	subject := IngestSubject(n.prefix, pipeline)
	sub, err := n.conn.Subscribe(subject, func(m *nats.Msg) { fn(m.Data) })
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", subject, err)
	}
	return sub, nil
}

// Close flushes pending publishes and closes the connection.
func (n *NATSSink) Close() error {
	return n.conn.Drain()
}

// Recorder opens recording sessions in the recordings store.
type Recorder struct {
	store  *store.Store
	runner string
	now    func() time.Time
}

// NewRecorder creates a recorder writing to st on behalf of runner.
func NewRecorder(st *store.Store, runner string, now func() time.Time) *Recorder {
	return &Recorder{store: st, runner: runner, now: now}
}

// Start opens a recording session for one pipeline.
func (r *Recorder) Start(ctx context.Context, path string) (*Session, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("recording id: %w", err)
	}
	rec := store.Recording{
		ID:        id.String(),
		Path:      path,
		Runner:    r.runner,
		StartedAt: r.now(),
	}
	if err := r.store.StartRecording(ctx, rec); err != nil {
		return nil, err
	}
	return &Session{recorder: r, rec: rec}, nil
}

// Session is one open recording.
type Session struct {
	recorder *Recorder
	rec      store.Recording
	seq      atomic.Int64
}

// ID returns the recording id.
func (s *Session) ID() string { return s.rec.ID }

// Path returns the path the recording was requested for.
func (s *Session) Path() string { return s.rec.Path }

// Write appends one encoded message to the recording.
func (s *Session) Write(ctx context.Context, pipeline, channel string, m msg.Message, b []byte) error {
	h := m.Header()
	return s.recorder.store.WriteMessage(ctx, store.RecordedMessage{
		RecordingID: s.rec.ID,
		Seq:         s.seq.Add(1),
		Pipeline:    pipeline,
		Channel:     channel,
		TypeKey:     m.TypeKey(),
		GUID:        h.GUID.String(),
		EmittedAt:   h.EmittedAt,
		Payload:     b,
	})
}

// Written returns the number of messages written so far.
func (s *Session) Written() int64 { return s.seq.Load() }

// Stop closes the recording.
func (s *Session) Stop(ctx context.Context) error {
	return s.recorder.store.StopRecording(ctx, s.rec.ID, s.recorder.now())
}
