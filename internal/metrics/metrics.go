// Package metrics holds the run's prometheus collectors. All methods are
// safe on a nil *Metrics so components can run without instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "templategen"

// Batch outcomes.
const (
	OutcomeOK       = "ok"
	OutcomeDegraded = "degraded"
	OutcomeCanceled = "canceled"
)

// LLM call kinds.
const (
	CallExtract = "extract"
	CallCorrect = "correct"
)

type Metrics struct {
	Registry *prometheus.Registry

	batches        *prometheus.CounterVec
	records        *prometheus.CounterVec
	llmCalls       *prometheus.CounterVec
	leaks          prometheus.Counter
	corrections    *prometheus.CounterVec
	registryValues prometheus.Counter
	inflight       prometheus.Gauge
	batchDuration  prometheus.Histogram
}

// New registers the collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Metrics{
		Registry: reg,
		batches: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batches_total",
			Help:      "Batches finished, by outcome",
		}, []string{"outcome"}),
		records: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_written_total",
			Help:      "Output records written, by kind",
		}, []string{"kind"}),
		llmCalls: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_calls_total",
			Help:      "Extraction capability calls, by kind and status",
		}, []string{"kind", "status"}),
		leaks: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "leaked_entities_total",
			Help:      "Catalog values found as literal template text",
		}),
		corrections: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "corrections_total",
			Help:      "Correction round-trips, by result",
		}, []string{"result"}),
		registryValues: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "registry_merges_total",
			Help:      "Merges that added at least one registry value",
		}),
		inflight: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "batches_inflight",
			Help:      "Batches currently holding a concurrency slot",
		}),
		batchDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_duration_seconds",
			Help:      "Wall time of one batch pipeline",
			Buckets:   prometheus.ExponentialBuckets(0.25, 2, 10),
		}),
	}
}

func (m *Metrics) BatchFinished(outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.batches.WithLabelValues(outcome).Inc()
	m.batchDuration.Observe(seconds)
}

func (m *Metrics) RecordWritten(ignored bool) {
	if m == nil {
		return
	}
	kind := "template"
	if ignored {
		kind = "ignore"
	}
	m.records.WithLabelValues(kind).Inc()
}

func (m *Metrics) LLMCall(kind string, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.llmCalls.WithLabelValues(kind, status).Inc()
}

// InvalidResponse counts a call that returned text the validator rejected.
func (m *Metrics) InvalidResponse(kind string) {
	if m == nil {
		return
	}
	m.llmCalls.WithLabelValues(kind, "invalid").Inc()
}

func (m *Metrics) Leaks(n int) {
	if m == nil || n == 0 {
		return
	}
	m.leaks.Add(float64(n))
}

func (m *Metrics) Correction(accepted bool) {
	if m == nil {
		return
	}
	result := "rejected"
	if accepted {
		result = "accepted"
	}
	m.corrections.WithLabelValues(result).Inc()
}

func (m *Metrics) RegistryGrew() {
	if m == nil {
		return
	}
	m.registryValues.Inc()
}

func (m *Metrics) Inflight(delta float64) {
	if m == nil {
		return
	}
	m.inflight.Add(delta)
}
