package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "todoctl"

// Refresh outcomes.
const (
	RefreshSuccess = "success"
	RefreshFailure = "failure"
	// RefreshUnsaved counts renewals whose credential could not be persisted.
	RefreshUnsaved = "unsaved"
)

// Metrics holds the client's counters on a private registry.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry
	refresh  *prometheus.CounterVec
	requests *prometheus.CounterVec
}

// NewMetrics registers the counters.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		refresh: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_refresh_total",
			Help:      "Access token renewals by outcome.",
		}, []string{"outcome"}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "API calls by operation and result code.",
		}, []string{"operation", "code"}),
	}
	m.registry.MustRegister(m.refresh, m.requests)
	return m
}

// RecordRefresh counts a renewal outcome.
func (m *Metrics) RecordRefresh(outcome string) {
	if m == nil {
		return
	}
	m.refresh.WithLabelValues(outcome).Inc()
}

// RecordRequest counts an API call. code is "ok" on success.
func (m *Metrics) RecordRequest(operation, code string) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(operation, code).Inc()
}

// RefreshCounter exposes the refresh counter for an outcome.
func (m *Metrics) RefreshCounter(outcome string) prometheus.Counter {
	return m.refresh.WithLabelValues(outcome)
}

// RequestCounter exposes the request counter for an operation and code.
func (m *Metrics) RequestCounter(operation, code string) prometheus.Counter {
	return m.requests.WithLabelValues(operation, code)
}

// WriteTextfile dumps all counters in the text exposition format, for the
// node exporter textfile collector.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil || path == "" {
		return nil
	}
	return prometheus.WriteToTextfile(path, m.registry)
}
