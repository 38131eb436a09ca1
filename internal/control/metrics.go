package control

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "sidecar"

// Metrics holds the process counters exported on /metrics.
type Metrics struct {
	BroadcastDeliveries *prometheus.CounterVec
	BroadcastFailures   *prometheus.CounterVec
	LogRecordsDropped   prometheus.Counter
	DecodeErrors        *prometheus.CounterVec
	MessagesSent        *prometheus.CounterVec
}

// NewMetrics creates the counters and registers them with reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		BroadcastDeliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "control",
			Name:      "broadcast_deliveries_total",
			Help:      "Control messages accepted by a pipeline inbox",
		}, []string{"pipeline"}),
		BroadcastFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "control",
			Name:      "broadcast_failures_total",
			Help:      "Control messages a pipeline inbox refused",
		}, []string{"pipeline"}),
		LogRecordsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "control",
			Name:      "log_records_dropped_total",
			Help:      "Log records evicted from the status log ring before being emitted",
		}),
		DecodeErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "decode_errors_total",
			Help:      "Inbound messages dropped because they could not be decoded",
		}, []string{"type"}),
		MessagesSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "messages_sent_total",
			Help:      "Messages sent on a stage output channel",
		}, []string{"pipeline", "channel"}),
	}

	for _, c := range []prometheus.Collector{
		m.BroadcastDeliveries,
		m.BroadcastFailures,
		m.LogRecordsDropped,
		m.DecodeErrors,
		m.MessagesSent,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}
