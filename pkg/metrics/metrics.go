// Package metrics counts capability issuance and authorization decisions and exposes them in
// Prometheus format.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics owns a private registry so that several gateways in one process (tests) do not collide.
// A nil *Metrics records nothing.
type Metrics struct {
	registry       *prometheus.Registry
	issued         *prometheus.CounterVec
	proxyDecisions *prometheus.CounterVec
	authResults    *prometheus.CounterVec
}

func New(namespace string) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		issued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "capabilities_issued_total",
			Help:      "Capabilities minted, by kind.",
		}, []string{"kind"}),
		proxyDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "proxy_requests_total",
			Help:      "Proxy requests, by outcome.",
		}, []string{"outcome"}),
		authResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "auth_checks_total",
			Help:      "Authentication gate checks, by result.",
		}, []string{"result"}),
	}
	m.registry.MustRegister(m.issued, m.proxyDecisions, m.authResults)
	return m
}

// Handler serves the registry for scraping.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

func (m *Metrics) CapabilityIssued(kind string) {
	if m == nil {
		return
	}
	m.issued.WithLabelValues(kind).Inc()
}

func (m *Metrics) ProxyDecision(outcome string) {
	if m == nil {
		return
	}
	m.proxyDecisions.WithLabelValues(outcome).Inc()
}

func (m *Metrics) AuthResult(result string) {
	if m == nil {
		return
	}
	m.authResults.WithLabelValues(result).Inc()
}
