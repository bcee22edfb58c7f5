// Package metrics counts account-flow outcomes and serves them to
// Prometheus.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Flow names used as the "flow" label.
const (
	FlowSignup       = "signup"
	FlowConfirm      = "signup_confirm"
	FlowLogin        = "login"
	FlowResetRequest = "reset_request"
	FlowResetRedeem  = "reset_redeem"
	FlowChange       = "password_change"
	FlowClose        = "account_close"
	FlowNotify       = "notification"
)

// Outcomes used as the "outcome" label.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeError   = "error"
)

// Metrics owns a private registry rather than the global default.
type Metrics struct {
	registry *prometheus.Registry
	flows    *prometheus.CounterVec
	sessions prometheus.GaugeFunc
}

// New registers the flow counter, Go runtime collectors and, when
// liveSessions is non-nil, a gauge reporting its value.
func New(liveSessions func() int) *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		flows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "accountkeeper",
			Name:      "flow_total",
			Help:      "Account flow invocations by flow and outcome.",
		}, []string{"flow", "outcome"}),
	}
	reg.MustRegister(m.flows, collectors.NewGoCollector())

	if liveSessions != nil {
		m.sessions = prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "accountkeeper",
			Name:      "sessions_live",
			Help:      "Session contexts currently held in memory.",
		}, func() float64 { return float64(liveSessions()) })
		reg.MustRegister(m.sessions)
	}
	return m
}

// Observe counts one outcome of flow. A nil *Metrics is a no-op.
func (m *Metrics) Observe(flow, outcome string) {
	if m == nil {
		return
	}
	m.flows.WithLabelValues(flow, outcome).Inc()
}

// ObserveErr is Observe with the outcome derived from err: nil is success,
// an expected user-facing failure (isFailure) is failure, anything else is
// error.
func (m *Metrics) ObserveErr(flow string, err error, isFailure func(error) bool) {
	switch {
	case err == nil:
		m.Observe(flow, OutcomeSuccess)
	case isFailure != nil && isFailure(err):
		m.Observe(flow, OutcomeFailure)
	default:
		m.Observe(flow, OutcomeError)
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// FlowCounter returns the counter behind one flow/outcome pair.
func (m *Metrics) FlowCounter(flow, outcome string) prometheus.Counter {
	return m.flows.WithLabelValues(flow, outcome)
}
