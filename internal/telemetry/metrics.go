package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics wraps the counters and histograms the executor and gateway server
// report against, injected as a capability rather than reached for through
// a package-global registry (Design Note: "Global tracer/metric registry
// ⇒ inject as a capability").
type Metrics struct {
	SubRequestLatency  *prometheus.HistogramVec
	SubRequestTotal    *prometheus.CounterVec
	PlanLayerCount     prometheus.Histogram
	FlattenRepresented *prometheus.HistogramVec
}

// NewMetrics registers and returns a fresh Metrics against reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		SubRequestLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "gqlfederate_gateway",
			Name:      "sub_request_duration_seconds",
			Help:      "Latency of one Fetch/Flatten sub-request to an upstream service.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"service", "kind"}),
		SubRequestTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gqlfederate_gateway",
			Name:      "sub_request_total",
			Help:      "Count of Fetch/Flatten sub-requests issued, by service and outcome.",
		}, []string{"service", "kind", "outcome"}),
		PlanLayerCount: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "gqlfederate_gateway",
			Name:      "plan_entity_layers",
			Help:      "Number of entity-loop layers a compiled plan required.",
			Buckets:   prometheus.LinearBuckets(0, 1, 8),
		}),
		FlattenRepresented: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "gqlfederate_gateway",
			Name:      "flatten_representations",
			Help:      "Count of representations a Flatten node extracted before issuing its sub-request.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
		}, []string{"service"}),
	}
	reg.MustRegister(m.SubRequestLatency, m.SubRequestTotal, m.PlanLayerCount, m.FlattenRepresented)
	return m
}
