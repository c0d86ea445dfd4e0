package service

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the render counters. Register them on a private registry in
// tests and on prometheus.DefaultRegisterer in the binaries.
type Metrics struct {
	renders       *prometheus.CounterVec
	duration      *prometheus.HistogramVec
	auditFindings *prometheus.CounterVec
	templateInfo  *prometheus.GaugeVec
}

// NewMetrics creates the render metrics and registers them on reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		renders: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sqltemplate_renders_total",
				Help: "Total number of render calls by outcome",
			},
			[]string{"domain", "query_type", "outcome"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "sqltemplate_render_duration_seconds",
				Help:    "Duration of render calls",
				Buckets: prometheus.ExponentialBuckets(0.00005, 4, 8),
			},
			[]string{"domain"},
		),
		auditFindings: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sqltemplate_injection_audit_findings_total",
				Help: "Parameters flagged by the injection audit",
			},
			[]string{"domain", "parameter"},
		),
		templateInfo: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "sqltemplate_template_info",
				Help: "Registered templates by source hash",
			},
			[]string{"domain", "source_hash"},
		),
	}
	if reg != nil {
		reg.MustRegister(m.renders, m.duration, m.auditFindings, m.templateInfo)
	}
	return m
}

func (m *Metrics) observe(domain, queryType, outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.renders.WithLabelValues(domain, queryType, outcome).Inc()
	m.duration.WithLabelValues(domain).Observe(seconds)
}

func (m *Metrics) auditFinding(domain, parameter string) {
	if m == nil {
		return
	}
	m.auditFindings.WithLabelValues(domain, parameter).Inc()
}

func (m *Metrics) templateRegistered(domain, hash string) {
	if m == nil {
		return
	}
	m.templateInfo.WithLabelValues(domain, hash).Set(1)
}
