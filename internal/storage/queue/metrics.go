package queue

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/prefstore/prefstore/internal/storage"
)

var (
	// Shared across queue instances; registered once.
	opCounter  *prometheus.CounterVec  //nolint:gochecknoglobals
	opDuration *prometheus.HistogramVec //nolint:gochecknoglobals
	promOnce   sync.Once               //nolint:gochecknoglobals
)

func registerCollectors() {
	promOnce.Do(func() {
		opCounter = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "storage_operations_total",
				Help: "Number of storage operations, differentiated by type and outcome.",
			},
			[]string{"type", "outcome"},
		)

		opDuration = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "storage_operation_duration_seconds",
				Help:    "Duration of storage operations, differentiated by type.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"type"},
		)
	})
}

// MetricsSnapshot is a point-in-time copy of the queue's counters,
// retrievable without scraping the prometheus registry.
type MetricsSnapshot struct {
	ByType        map[OpType]uint64
	ByOutcome     map[string]uint64 // "ok" or an ErrorClass
	TotalDuration time.Duration
}

type metrics struct {
	mu            sync.Mutex
	byType        map[OpType]uint64
	byOutcome     map[string]uint64
	totalDuration time.Duration
}

func newMetrics() *metrics {
	registerCollectors()

	return &metrics{
		byType:    make(map[OpType]uint64),
		byOutcome: make(map[string]uint64),
	}
}

func (m *metrics) observe(op OpType, err error, elapsed time.Duration) {
	outcome := "ok"
	if err != nil {
		outcome = string(storage.Classify(err))
	}

	opCounter.WithLabelValues(string(op), outcome).Inc()
	opDuration.WithLabelValues(string(op)).Observe(elapsed.Seconds())

	m.mu.Lock()
	defer m.mu.Unlock()

	m.byType[op]++
	m.byOutcome[outcome]++
	m.totalDuration += elapsed
}

func (m *metrics) snapshot() MetricsSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := MetricsSnapshot{
		ByType:        make(map[OpType]uint64, len(m.byType)),
		ByOutcome:     make(map[string]uint64, len(m.byOutcome)),
		TotalDuration: m.totalDuration,
	}

	for k, v := range m.byType {
		out.ByType[k] = v
	}

	for k, v := range m.byOutcome {
		out.ByOutcome[k] = v
	}

	return out
}
