// Package metrics exposes Prometheus counters for derivation, import and audit.
package metrics

import (
	"errors"
	"net/http"

	"github.com/plew99/cytokines-metaanalysis/internal/effects"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics owns its registry so tests and multiple servers don't collide.
type Metrics struct {
	registry *prometheus.Registry

	derived         *prometheus.CounterVec
	derivationFails *prometheus.CounterVec
	importRows      *prometheus.CounterVec
	auditViolations prometheus.Gauge
	auditRuns       prometheus.Counter
}

// New registers all collectors on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		derived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "effects_derived_total",
			Help: "Effects derived and validated, by effect type.",
		}, []string{"effect_type"}),
		derivationFails: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "effect_derivation_failures_total",
			Help: "Failed derivations, by pipeline stage.",
		}, []string{"stage"}),
		importRows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "import_rows_total",
			Help: "Imported workbook rows, by result.",
		}, []string{"result"}),
		auditViolations: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "audit_violations",
			Help: "Stored effects that failed the last re-validation audit.",
		}),
		auditRuns: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "audit_runs_total",
			Help: "Completed re-validation audits.",
		}),
	}
	m.registry.MustRegister(m.derived, m.derivationFails, m.importRows, m.auditViolations, m.auditRuns)
	return m
}

// ObserveDerivation records the outcome of one derivation.
func (m *Metrics) ObserveDerivation(t effects.EffectType, err error) {
	if m == nil {
		return
	}
	if err == nil {
		m.derived.WithLabelValues(string(t)).Inc()
		return
	}
	stage := "unknown"
	var de *effects.DerivationError
	if errors.As(err, &de) {
		stage = string(de.Stage)
	}
	m.derivationFails.WithLabelValues(stage).Inc()
}

// ObserveImport records row counts of one import run.
func (m *Metrics) ObserveImport(imported, failed int) {
	if m == nil {
		return
	}
	m.importRows.WithLabelValues("imported").Add(float64(imported))
	m.importRows.WithLabelValues("failed").Add(float64(failed))
}

// ObserveAudit records the violation count of the latest audit.
func (m *Metrics) ObserveAudit(violations int) {
	if m == nil {
		return
	}
	m.auditViolations.Set(float64(violations))
	m.auditRuns.Inc()
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
