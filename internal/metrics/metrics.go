// Package metrics holds the Prometheus instruments of one knowledge graph.
//
// Every graph owns its own registry, so two graphs in one process never
// share counters.
package metrics

import (
	"fmt"
	"io"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/common/expfmt"
)

// DefaultNamespace prefixes every metric name.
const DefaultNamespace = "kgraph"

// Metrics holds all instruments for one graph instance.
type Metrics struct {
	registry *prometheus.Registry
	enabled  bool

	// InferenceRounds counts fixpoint rounds across all calls.
	InferenceRounds prometheus.Counter
	// DerivedFacts counts facts newly added by inference.
	DerivedFacts prometheus.Counter
	// ConfirmedFacts counts re-derivations of facts already present.
	ConfirmedFacts prometheus.Counter
	// InferenceDuration measures whole inference calls.
	// Labels: strategy (semi-naive, naive)
	InferenceDuration *prometheus.HistogramVec
	// NonTermination counts calls aborted at the iteration cap.
	NonTermination prometheus.Counter

	// ConstraintWitnesses counts violation witnesses found during repair.
	ConstraintWitnesses prometheus.Counter
	// RepairRetractions counts facts removed by repair.
	// Labels: origin (asserted, derived)
	RepairRetractions *prometheus.CounterVec

	// StreamIngested counts timestamped facts accepted by streams.
	StreamIngested prometheus.Counter
	// StreamBatches counts non-empty window batches.
	// Labels: operator (rstream, istream, dstream)
	StreamBatches *prometheus.CounterVec

	// Facts is the current number of stored facts.
	Facts prometheus.Gauge
}

// New creates a fresh registry and registers every instrument under namespace.
func New(namespace string) *Metrics {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		enabled:  true,
		InferenceRounds: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "inference",
			Name:      "rounds_total",
			Help:      "Fixpoint rounds evaluated.",
		}),
		DerivedFacts: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "inference",
			Name:      "derived_facts_total",
			Help:      "Facts added by inference.",
		}),
		ConfirmedFacts: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "inference",
			Name:      "confirmed_facts_total",
			Help:      "Rule derivations of facts that were already stored.",
		}),
		InferenceDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "inference",
			Name:      "duration_seconds",
			Help:      "Duration of inference calls.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 10),
		}, []string{"strategy"}),
		NonTermination: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "inference",
			Name:      "non_termination_total",
			Help:      "Inference calls rolled back at the iteration cap.",
		}),
		ConstraintWitnesses: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "repair",
			Name:      "witnesses_total",
			Help:      "Constraint violation witnesses acted on by repair.",
		}),
		RepairRetractions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "repair",
			Name:      "retractions_total",
			Help:      "Facts retracted to restore consistency.",
		}, []string{"origin"}),
		StreamIngested: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "ingested_total",
			Help:      "Timestamped facts accepted by streams.",
		}),
		StreamBatches: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "batches_total",
			Help:      "Window batches emitted.",
		}, []string{"operator"}),
		Facts: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "facts",
			Help:      "Facts currently stored.",
		}),
	}
}

// NewDisabled returns instruments that still count but are never exposed:
// WriteText writes nothing.
func NewDisabled(namespace string) *Metrics {
	m := New(namespace)
	m.enabled = false
	return m
}

// Enabled reports whether the instruments are exposed.
func (m *Metrics) Enabled() bool {
	return m.enabled
}

// Registry returns the graph's private registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// WriteText renders every metric in the Prometheus text exposition format.
// Disabled metrics write nothing.
func (m *Metrics) WriteText(w io.Writer) error {
	if !m.enabled {
		return nil
	}
	families, err := m.registry.Gather()
	if err != nil {
		return fmt.Errorf("failed to gather metrics: %w", err)
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return fmt.Errorf("failed to encode %s: %w", mf.GetName(), err)
		}
	}
	return nil
}
