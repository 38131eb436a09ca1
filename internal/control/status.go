package control

import (
	"time"

	"github.com/prometheus/procfs"
)

// StageStatus is the fragment one stage reports.
type StageStatus struct {
	Name     string            `json:"name"`
	Counters map[string]uint64 `json:"counters,omitempty"`
}

// PipelineStatus is the fragment one pipeline reports.
type PipelineStatus struct {
	Name   string        `json:"name"`
	State  string        `json:"state"`
	Stages []StageStatus `json:"stages"`
}

// StatusDocument is the periodic status report of a runner process.
type StatusDocument struct {
	Name       string           `json:"name"`
	Timestamp  time.Time        `json:"timestamp"`
	Pipelines  []PipelineStatus `json:"pipelines"`
	MemoryUsed float64          `json:"memory_used"`
	Logs       []LogRecord      `json:"logs"`
}

// StatusSource fills in one pipeline's fragment.
type StatusSource interface {
	Name() string
	FillStatus(s *PipelineStatus)
}

// Aggregator assembles status documents.
type Aggregator struct {
	name    string
	sources []StatusSource
	ring    *LogRing
	memory  func() float64
	now     func() time.Time
}

// AggregatorOption configures an Aggregator.
type AggregatorOption func(*Aggregator)

// WithMemoryProbe replaces the process memory probe.
func WithMemoryProbe(fn func() float64) AggregatorOption {
	return func(a *Aggregator) { a.memory = fn }
}

// WithStatusClock sets the clock used for document timestamps.
func WithStatusClock(now func() time.Time) AggregatorOption {
	return func(a *Aggregator) { a.now = now }
}

// NewAggregator creates an aggregator for the named runner. ring may be
// nil, in which case documents carry no log tail.
func NewAggregator(name string, sources []StatusSource, ring *LogRing, opts ...AggregatorOption) *Aggregator {
	a := &Aggregator{
		name:    name,
		sources: append([]StatusSource(nil), sources...),
		ring:    ring,
		memory:  MemoryUsed,
		now:     func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Collect builds a status document. The log tail holds the records logged
// since the previous call, oldest-first.
func (a *Aggregator) Collect() StatusDocument {
	doc := StatusDocument{
		Name:      a.name,
		Timestamp: a.now(),
		Pipelines: make([]PipelineStatus, 0, len(a.sources)),
		Logs:      []LogRecord{},
	}
	for _, s := range a.sources {
		ps := PipelineStatus{Name: s.Name(), Stages: []StageStatus{}}
		s.FillStatus(&ps)
		doc.Pipelines = append(doc.Pipelines, ps)
	}
	doc.MemoryUsed = a.memory()
	if a.ring != nil {
		doc.Logs = a.ring.Drain()
	}
	return doc
}

// MemoryUsed returns the writable memory of this process in bytes, the
// statm figure (resident - shared) x page size. It is read from
// /proc/self/status, which reports the same pages already scaled to bytes,
// and is 0 where /proc is unavailable.
func MemoryUsed() float64 {
	p, err := procfs.Self()
	if err != nil {
		return 0
	}
	st, err := p.NewStatus()
	if err != nil {
		return 0
	}
	return writableBytes(st)
}

// writableBytes is VmRSS less its file-backed and shared-memory parts.
func writableBytes(st procfs.ProcStatus) float64 {
	shared := st.RssFile + st.RssShmem
	if shared > st.VmRSS {
		return 0
	}
	return float64(st.VmRSS - shared)
}
