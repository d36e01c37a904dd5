// classifier/pkg/metrics/metrics.go

// Package metrics holds the Prometheus collectors for classification and
// rule reloading. A nil *Metrics is valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	ReloadSuccess = "success"
	ReloadFailure = "failure"
)

type Metrics struct {
	evaluationsTotal   prometheus.Counter
	evaluationDuration prometheus.Histogram
	matchesTotal       prometheus.Counter
	reloadsTotal       *prometheus.CounterVec
	activeCategories   prometheus.Gauge
	diagnostics        prometheus.Gauge
	lastLoadTimestamp  prometheus.Gauge
}

// New creates the collectors and registers them with reg. It returns nil
// when reg is nil.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		return nil
	}

	m := &Metrics{
		evaluationsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "classifier",
			Subsystem: "engine",
			Name:      "evaluations_total",
			Help:      "Total records classified",
		}),
		evaluationDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "classifier",
			Subsystem: "engine",
			Name:      "evaluation_duration_seconds",
			Help:      "Time spent classifying a single record",
			Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
		}),
		matchesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "classifier",
			Subsystem: "engine",
			Name:      "category_matches_total",
			Help:      "Total categories returned across all classifications",
		}),
		reloadsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "classifier",
			Subsystem: "store",
			Name:      "reloads_total",
			Help:      "Rule reload attempts by result",
		}, []string{"result"}),
		activeCategories: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "classifier",
			Subsystem: "store",
			Name:      "active_categories",
			Help:      "Number of categories in the active rule set",
		}),
		diagnostics: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "classifier",
			Subsystem: "store",
			Name:      "rule_diagnostics",
			Help:      "Number of rules dropped from the active rule set",
		}),
		lastLoadTimestamp: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "classifier",
			Subsystem: "store",
			Name:      "last_load_timestamp_seconds",
			Help:      "Unix time the active rule set was loaded",
		}),
	}

	reg.MustRegister(
		m.evaluationsTotal,
		m.evaluationDuration,
		m.matchesTotal,
		m.reloadsTotal,
		m.activeCategories,
		m.diagnostics,
		m.lastLoadTimestamp,
	)
	return m
}

func (m *Metrics) ObserveEvaluation(d time.Duration, matched int) {
	if m == nil {
		return
	}
	m.evaluationsTotal.Inc()
	m.evaluationDuration.Observe(d.Seconds())
	m.matchesTotal.Add(float64(matched))
}

func (m *Metrics) ObserveReload(result string) {
	if m == nil {
		return
	}
	m.reloadsTotal.WithLabelValues(result).Inc()
}

// SetActive records the shape of a newly swapped-in rule set.
func (m *Metrics) SetActive(categories, diagnostics int, loadedAt time.Time) {
	if m == nil {
		return
	}
	m.activeCategories.Set(float64(categories))
	m.diagnostics.Set(float64(diagnostics))
	m.lastLoadTimestamp.Set(float64(loadedAt.UnixNano()) / 1e9)
}
