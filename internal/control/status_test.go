package control

import (
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/procfs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type source struct {
	name  string
	state string
	count uint64
}

func (s *source) Name() string { return s.name }

func (s *source) FillStatus(ps *PipelineStatus) {
	ps.State = s.state
	ps.Stages = append(ps.Stages, StageStatus{Name: "extract", Counters: map[string]uint64{"plots": s.count}})
}

func TestAggregatorCollect(t *testing.T) {
	ring := NewLogRing(DefaultLogRingSize)
	now := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	a := NewAggregator("runner-1",
		[]StatusSource{&source{name: "a", state: "Run", count: 3}, &source{name: "b", state: "Stop"}},
		ring,
		WithMemoryProbe(func() float64 { return 4096 }),
		WithStatusClock(func() time.Time { return now }))

	slog.New(ring).Info("hello")
	doc := a.Collect()

	assert.Equal(t, "runner-1", doc.Name)
	assert.Equal(t, now, doc.Timestamp)
	require.Len(t, doc.Pipelines, 2)
	assert.Equal(t, "a", doc.Pipelines[0].Name)
	assert.Equal(t, "Run", doc.Pipelines[0].State)
	assert.Equal(t, uint64(3), doc.Pipelines[0].Stages[0].Counters["plots"])
	assert.Equal(t, "b", doc.Pipelines[1].Name)
	assert.Equal(t, 4096.0, doc.MemoryUsed)
	require.Len(t, doc.Logs, 1)
	assert.Equal(t, "hello", doc.Logs[0].Message)
}

func TestAggregatorLogTailBounds(t *testing.T) {
	ring := NewLogRing(DefaultLogRingSize)
	a := NewAggregator("runner", nil, ring, WithMemoryProbe(func() float64 { return 0 }))
	logger := slog.New(ring)

	for i := 0; i < 10*DefaultLogRingSize; i++ {
		logger.Info(fmt.Sprintf("record %d", i))
	}

	first := a.Collect()
	require.Len(t, first.Logs, DefaultLogRingSize)
	assert.Equal(t, fmt.Sprintf("record %d", 9*DefaultLogRingSize), first.Logs[0].Message, "oldest kept record first")
	assert.Equal(t, fmt.Sprintf("record %d", 10*DefaultLogRingSize-1), first.Logs[DefaultLogRingSize-1].Message)

	second := a.Collect()
	assert.Empty(t, second.Logs)
	assert.NotNil(t, second.Logs)
}

func TestAggregatorWithoutRing(t *testing.T) {
	a := NewAggregator("runner", nil, nil, WithMemoryProbe(func() float64 { return 1 }))
	doc := a.Collect()
	assert.Empty(t, doc.Pipelines)
	assert.Empty(t, doc.Logs)
}

func TestMemoryUsedNeverNegative(t *testing.T) {
	assert.GreaterOrEqual(t, MemoryUsed(), 0.0)
}

func TestWritableBytesExcludesSharedPages(t *testing.T) {
	tests := []struct {
		name string
		st   procfs.ProcStatus
		want float64
	}{
		{
			name: "resident less shared",
			st:   procfs.ProcStatus{VmRSS: 40 << 20, RssAnon: 24 << 20, RssFile: 12 << 20, RssShmem: 4 << 20},
			want: 24 << 20,
		},
		{
			name: "nothing shared",
			st:   procfs.ProcStatus{VmRSS: 8192, RssAnon: 8192},
			want: 8192,
		},
		{
			name: "shared larger than resident",
			st:   procfs.ProcStatus{VmRSS: 4096, RssFile: 8192},
			want: 0,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, writableBytes(tt.st))
		})
	}
}
