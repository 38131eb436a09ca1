package control

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
)

// DefaultLogRingSize is the number of log records kept between status
// documents.
const DefaultLogRingSize = 200

// LogRecord is one entry in a status document's log tail.
type LogRecord struct {
	Seconds int64  `json:"seconds"`
	Micros  int64  `json:"micros"`
	Channel string `json:"channel"`
	Message string `json:"message"`
	Level   string `json:"level"`
}

// ChannelKey is the attribute that names a record's log channel. Loggers
// usually carry it through With.
const ChannelKey = "channel"

// LogRing is a slog.Handler that keeps the most recent records in a
// bounded ring. It is written concurrently by every pipeline and drained
// by the status emitter.
type LogRing struct {
	state *ringState
	level slog.Leveler

	// attrs and group come from WithAttrs/WithGroup.
	channel string
	prefix  string
	attrs   []string
}

type ringState struct {
	mu      sync.Mutex
	records []LogRecord
	head    int // next write position
	size    int
	dropped func()
}

// LogRingOption configures a LogRing.
type LogRingOption func(*LogRing)

// WithLevel sets the minimum level kept by the ring. Defaults to Info.
func WithLevel(l slog.Leveler) LogRingOption {
	return func(r *LogRing) { r.level = l }
}

// WithDropHook installs a function called for every record evicted to
// make room.
func WithDropHook(fn func()) LogRingOption {
	return func(r *LogRing) { r.state.dropped = fn }
}

// NewLogRing creates a ring holding at most capacity records.
func NewLogRing(capacity int, opts ...LogRingOption) *LogRing {
	if capacity <= 0 {
		capacity = DefaultLogRingSize
	}
	r := &LogRing{
		state: &ringState{records: make([]LogRecord, capacity)},
		level: slog.LevelInfo,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Capacity returns the maximum number of records kept.
func (r *LogRing) Capacity() int { return len(r.state.records) }

// Len returns the number of records waiting to be drained.
func (r *LogRing) Len() int {
	r.state.mu.Lock()
	defer r.state.mu.Unlock()
	return r.state.size
}

// Push adds rec, evicting the oldest record when full.
func (r *LogRing) Push(rec LogRecord) {
	s := r.state
	s.mu.Lock()
	evicted := s.size == len(s.records)
	s.records[s.head] = rec
	s.head = (s.head + 1) % len(s.records)
	if !evicted {
		s.size++
	}
	s.mu.Unlock()

	if evicted && s.dropped != nil {
		s.dropped()
	}
}

// Drain returns every kept record oldest-first and empties the ring.
func (r *LogRing) Drain() []LogRecord {
	s := r.state
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]LogRecord, s.size)
	start := (s.head - s.size + len(s.records)) % len(s.records)
	for i := range out {
		j := (start + i) % len(s.records)
		out[i] = s.records[j]
		s.records[j] = LogRecord{}
	}
	s.size = 0
	return out
}

// Enabled implements slog.Handler.
func (r *LogRing) Enabled(_ context.Context, l slog.Level) bool {
	return l >= r.level.Level()
}

// Handle implements slog.Handler.
func (r *LogRing) Handle(_ context.Context, rec slog.Record) error {
	channel := r.channel
	var b strings.Builder
	b.WriteString(rec.Message)
	for _, a := range r.attrs {
		b.WriteByte(' ')
		b.WriteString(a)
	}
	rec.Attrs(func(a slog.Attr) bool {
		if a.Key == ChannelKey && r.prefix == "" {
			channel = a.Value.String()
			return true
		}
		b.WriteByte(' ')
		b.WriteString(formatAttr(r.prefix, a))
		return true
	})
	if channel == "" {
		channel = "root"
	}

	t := rec.Time
	r.Push(LogRecord{
		Seconds: t.Unix(),
		Micros:  int64(t.Nanosecond() / 1000),
		Channel: channel,
		Message: b.String(),
		Level:   rec.Level.String(),
	})
	return nil
}

// WithAttrs implements slog.Handler.
func (r *LogRing) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := *r
	next.attrs = append([]string(nil), r.attrs...)
	for _, a := range attrs {
		if a.Key == ChannelKey && r.prefix == "" {
			next.channel = a.Value.String()
			continue
		}
		next.attrs = append(next.attrs, formatAttr(r.prefix, a))
	}
	return &next
}

// WithGroup implements slog.Handler.
func (r *LogRing) WithGroup(name string) slog.Handler {
	if name == "" {
		return r
	}
	next := *r
	next.prefix = r.prefix + name + "."
	return &next
}

func formatAttr(prefix string, a slog.Attr) string {
	v := a.Value.Resolve()
	if v.Kind() == slog.KindGroup {
		parts := make([]string, 0, len(v.Group()))
		for _, g := range v.Group() {
			parts = append(parts, formatAttr(prefix+a.Key+".", g))
		}
		return strings.Join(parts, " ")
	}
	return fmt.Sprintf("%s%s=%v", prefix, a.Key, v.Any())
}

// fanout sends every record to several handlers.
type fanout []slog.Handler

// Fanout returns a handler that forwards to every h. The first error is
// returned after all handlers have seen the record.
func Fanout(handlers ...slog.Handler) slog.Handler {
	return fanout(handlers)
}

func (f fanout) Enabled(ctx context.Context, l slog.Level) bool {
	for _, h := range f {
		if h.Enabled(ctx, l) {
			return true
		}
	}
	return false
}

func (f fanout) Handle(ctx context.Context, rec slog.Record) error {
	var first error
	for _, h := range f {
		if !h.Enabled(ctx, rec.Level) {
			continue
		}
		if err := h.Handle(ctx, rec.Clone()); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (f fanout) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := make(fanout, len(f))
	for i, h := range f {
		next[i] = h.WithAttrs(attrs)
	}
	return next
}

func (f fanout) WithGroup(name string) slog.Handler {
	next := make(fanout, len(f))
	for i, h := range f {
		next[i] = h.WithGroup(name)
	}
	return next
}
