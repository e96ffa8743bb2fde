package localsched

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics is the write-only sink the scheduler reports to. A nil *Metrics is
// a valid no-op sink.
type Metrics struct {
	// Assignments counts all processed data locations.
	Assignments prometheus.Counter

	// LocalAssignments counts data locations assigned to a co-resident worker.
	LocalAssignments prometheus.Counter

	// Initialized is set to 1 after the first successful worker set build.
	Initialized prometheus.Gauge
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Assignments: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "localsched",
			Subsystem: "scheduler",
			Name:      "assignments_total",
			Help:      "Total number of data locations assigned to a worker",
		}),
		LocalAssignments: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "localsched",
			Subsystem: "scheduler",
			Name:      "assignments_local_total",
			Help:      "Number of data locations assigned to a worker on the same host",
		}),
		Initialized: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "localsched",
			Subsystem: "scheduler",
			Name:      "initialized_bool",
			Help:      "Whether the worker set has been built at least once",
		}),
	}
}

func (m *Metrics) addAssignments(total, local int) {
	if m == nil {
		return
	}
	m.Assignments.Add(float64(total))
	if local > 0 {
		m.LocalAssignments.Add(float64(local))
	}
}

func (m *Metrics) markInitialized() {
	if m == nil {
		return
	}
	m.Initialized.Set(1)
}
