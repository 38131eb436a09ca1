package control

import (
	"errors"
	"log/slog"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// inbox is a Target that records what it receives.
type inbox struct {
	name     string
	fail     error
	received []ControlMessage
	head     []ControlMessage
	params   map[int]map[string]any
	changed  map[string]map[string]any
}

func (i *inbox) Name() string { return i.name }

func (i *inbox) Put(m ControlMessage) error {
	if i.fail != nil {
		return i.fail
	}
	i.received = append(i.received, m)
	return nil
}

func (i *inbox) PutHead(m ControlMessage) error {
	if i.fail != nil {
		return i.fail
	}
	i.head = append(i.head, m)
	return nil
}

func (i *inbox) Parameters(stage int) (map[string]any, error) {
	p, ok := i.params[stage]
	if !ok {
		return nil, ErrNoSuchStage
	}
	return p, nil
}

func (i *inbox) ChangedParameters() map[string]map[string]any { return i.changed }

func TestBroadcastPartialFailure(t *testing.T) {
	ring := NewLogRing(10)
	reg := prometheus.NewRegistry()
	metrics, err := NewMetrics(reg)
	require.NoError(t, err)

	p0 := &inbox{name: "P0"}
	p1 := &inbox{name: "P1", fail: ErrQueueClosed}
	p2 := &inbox{name: "P2"}
	b := NewBroadcaster([]Target{p0, p1, p2}, WithLogger(slog.New(ring)), WithMetrics(metrics))

	freed := 0
	orig := ControlMessage{Kind: KindClearStats, Payload: NewBuffer([]byte{1, 2, 3}, func() { freed++ })}
	b.Broadcast(orig)

	require.Len(t, p0.received, 1)
	require.Len(t, p2.received, 1)
	assert.Empty(t, p1.received)
	assert.Equal(t, 1, orig.Payload.ReleaseCount())
	assert.Equal(t, 2, orig.Payload.Refs(), "P0 and P2 hold the only live handles")
	assert.Equal(t, []byte{1, 2, 3}, p2.received[0].Payload.Bytes())

	p0.received[0].Release()
	p2.received[0].Release()
	assert.Equal(t, 1, freed)

	var failure *LogRecord
	for _, rec := range ring.Drain() {
		if rec.Level == "ERROR" {
			failure = &rec
		}
	}
	require.NotNil(t, failure)
	assert.Contains(t, failure.Message, "failed to post message to stream P1")
	assert.Contains(t, failure.Message, "reason=queue closed")

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.BroadcastFailures.WithLabelValues("P1")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.BroadcastDeliveries.WithLabelValues("P0")))
	assert.Equal(t, 0.0, testutil.ToFloat64(metrics.BroadcastDeliveries.WithLabelValues("P1")))
}

func TestBroadcastAllFail(t *testing.T) {
	fail := errors.New("inbox full")
	targets := []Target{&inbox{name: "a", fail: fail}, &inbox{name: "b", fail: fail}}
	b := NewBroadcaster(targets, WithLogger(slog.New(NewLogRing(4))))

	freed := 0
	orig := ControlMessage{Kind: KindShutdown, Payload: NewBuffer(nil, func() { freed++ })}
	b.Broadcast(orig)

	assert.Equal(t, 1, orig.Payload.ReleaseCount())
	assert.Equal(t, 1, freed)
}

func TestBroadcastNoTargets(t *testing.T) {
	b := NewBroadcaster(nil, WithLogger(slog.New(NewLogRing(4))))
	m := NewClearStats()
	b.Broadcast(m)
	assert.Equal(t, 1, m.Payload.ReleaseCount())
	assert.Equal(t, 0, m.Payload.Refs())
}

func TestNewMetricsRejectsDoubleRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := NewMetrics(reg)
	require.NoError(t, err)
	_, err = NewMetrics(reg)
	assert.Error(t, err)
}
