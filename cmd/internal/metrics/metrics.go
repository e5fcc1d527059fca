// Package metrics exposes Prometheus collectors for the auth core.
//
// All recorder methods are safe on a nil *Metrics so packages can take an
// optional dependency without guarding every call site.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "binhacken"

// Metrics owns a private registry and the collectors registered on it.
type Metrics struct {
	reg *prometheus.Registry

	sessionsCreated   prometheus.Counter
	validations       *prometheus.CounterVec
	sessionsRevoked   *prometheus.CounterVec
	sessionsPurged    prometheus.Counter
	logins            *prometheus.CounterVec
	resumes           *prometheus.CounterVec
	notifyClients     prometheus.Gauge
	notifyDropped     prometheus.Counter
	validateDurations prometheus.Histogram
}

// New builds a Metrics with Go runtime and process collectors included.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		reg: reg,
		sessionsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "session", Name: "created_total",
			Help: "Persistent sessions created.",
		}),
		validations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "session", Name: "validations_total",
			Help: "Session validations by outcome.",
		}, []string{"outcome"}),
		sessionsRevoked: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "session", Name: "revoked_total",
			Help: "Session rows deleted, by reason.",
		}, []string{"reason"}),
		sessionsPurged: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "session", Name: "purged_total",
			Help: "Expired session rows removed by the sweeper.",
		}),
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "auth", Name: "logins_total",
			Help: "Login attempts by result.",
		}, []string{"result"}),
		resumes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "auth", Name: "resumes_total",
			Help: "Request resume outcomes by state.",
		}, []string{"state"}),
		notifyClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "notify", Name: "clients",
			Help: "Connected notification sockets.",
		}),
		notifyDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "notify", Name: "dropped_total",
			Help: "Events dropped for slow notification clients.",
		}),
		validateDurations: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "session", Name: "validate_seconds",
			Help:    "Latency of validate-and-rotate against the store.",
			Buckets: []float64{.001, .0025, .005, .01, .025, .05, .1, .25, .5, 1},
		}),
	}

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.sessionsCreated,
		m.validations,
		m.sessionsRevoked,
		m.sessionsPurged,
		m.logins,
		m.resumes,
		m.notifyClients,
		m.notifyDropped,
		m.validateDurations,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.reg
}

func (m *Metrics) SessionCreated() {
	if m != nil {
		m.sessionsCreated.Inc()
	}
}

// SessionValidated records a validate-and-rotate outcome and its latency.
func (m *Metrics) SessionValidated(outcome string, seconds float64) {
	if m != nil {
		m.validations.WithLabelValues(outcome).Inc()
		m.validateDurations.Observe(seconds)
	}
}

func (m *Metrics) SessionsRevoked(reason string, n int64) {
	if m != nil && n > 0 {
		m.sessionsRevoked.WithLabelValues(reason).Add(float64(n))
	}
}

func (m *Metrics) SessionsPurged(n int64) {
	if m != nil && n > 0 {
		m.sessionsPurged.Add(float64(n))
	}
}

func (m *Metrics) Login(result string) {
	if m != nil {
		m.logins.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) Resume(state string) {
	if m != nil {
		m.resumes.WithLabelValues(state).Inc()
	}
}

func (m *Metrics) NotifyClients(delta float64) {
	if m != nil {
		m.notifyClients.Add(delta)
	}
}

func (m *Metrics) NotifyDropped() {
	if m != nil {
		m.notifyDropped.Inc()
	}
}
