package observability

import (
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

type eventMetrics struct {
	journaled *prometheus.CounterVec
}

var (
	eventMetricsOnce sync.Once
	eventRegistry    *eventMetrics
)

// Events returns the metrics registry tracking journaled ledger events.
func Events() *eventMetrics {
	eventMetricsOnce.Do(func() {
		eventRegistry = &eventMetrics{
			journaled: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "stakevault",
				Subsystem: "events",
				Name:      "journaled_total",
				Help:      "Count of ledger events appended to the journal segmented by kind.",
			}, []string{"kind"}),
		}
		prometheus.MustRegister(eventRegistry.journaled)
	})
	return eventRegistry
}

// RecordJournaled increments the journal counter for the supplied event kind.
func (m *eventMetrics) RecordJournaled(kind string) {
	if m == nil {
		return
	}
	normalized := strings.TrimSpace(kind)
	if normalized == "" {
		normalized = "unknown"
	}
	m.journaled.WithLabelValues(normalized).Inc()
}
