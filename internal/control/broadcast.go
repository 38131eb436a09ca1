package control

import (
	"log/slog"
)

// Target is a pipeline inbox that accepts control messages.
type Target interface {
	Name() string
	Put(m ControlMessage) error
}

// Broadcaster delivers control messages to every pipeline.
type Broadcaster struct {
	targets []Target
	logger  *slog.Logger
	metrics *Metrics
}

// BroadcasterOption configures a Broadcaster.
type BroadcasterOption func(*Broadcaster)

// WithLogger sets the logger used for delivery failures.
func WithLogger(l *slog.Logger) BroadcasterOption {
	return func(b *Broadcaster) { b.logger = l }
}

// WithMetrics counts deliveries and failures per pipeline.
func WithMetrics(m *Metrics) BroadcasterOption {
	return func(b *Broadcaster) { b.metrics = m }
}

// NewBroadcaster creates a broadcaster over targets. The order of targets
// is the delivery order.
func NewBroadcaster(targets []Target, opts ...BroadcasterOption) *Broadcaster {
	b := &Broadcaster{
		targets: append([]Target(nil), targets...),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Broadcast gives every target a clone of m and releases m.
func (b *Broadcaster) Broadcast(m ControlMessage) {
	b.logger.Info("broadcast", "kind", m.Kind, "size", m.Payload.Len(), "pipelines", len(b.targets))

	for _, t := range b.targets {
		clone := m.Clone()
		if err := t.Put(clone); err != nil {
			clone.Release()
			b.logger.Error("failed to post message to stream "+t.Name(), "reason", err)
			if b.metrics != nil {
				b.metrics.BroadcastFailures.WithLabelValues(t.Name()).Inc()
			}
			continue
		}
		if b.metrics != nil {
			b.metrics.BroadcastDeliveries.WithLabelValues(t.Name()).Inc()
		}
	}

	m.Release()
}
