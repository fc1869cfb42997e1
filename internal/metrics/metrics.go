package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	opsEnqueued = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "opsync",
			Name:      "operations_enqueued_total",
			Help:      "Operations diverted into the durable queue, by type.",
		},
		[]string{"op_type"},
	)

	opsReplayed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "opsync",
			Name:      "operations_replayed_total",
			Help:      "Operations successfully replayed and removed.",
		},
	)

	opsFailed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "opsync",
			Name:      "operations_failed_total",
			Help:      "Operations that exhausted their retry budget.",
		},
	)

	drains = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "opsync",
			Name:      "drains_total",
			Help:      "Drain passes by result (completed, skipped, error).",
		},
		[]string{"result"},
	)

	queuePending = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "opsync",
			Name:      "queue_pending",
			Help:      "Operations currently pending in the durable queue.",
		},
	)
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(opsEnqueued, opsReplayed, opsFailed, drains, queuePending)
	})
}

func IncEnqueued(opType string) {
	opsEnqueued.WithLabelValues(opType).Inc()
}

func IncReplayed() {
	opsReplayed.Inc()
}

func IncFailed() {
	opsFailed.Inc()
}

func IncDrain(result string) {
	drains.WithLabelValues(result).Inc()
}

func SetQueuePending(n int) {
	queuePending.Set(float64(n))
}
