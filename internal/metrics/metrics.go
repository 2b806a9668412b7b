// Package metrics owns the process Prometheus registry.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry wraps the collectors the gateway exports. All methods are safe to
// call on a nil *Registry, which records nothing.
type Registry struct {
	registry      *prometheus.Registry
	evaluations   *prometheus.CounterVec
	confirmations *prometheus.CounterVec
	polls         prometheus.Histogram
	notifications *prometheus.CounterVec
	funderBalance prometheus.Gauge
}

func New() *Registry {
	evaluations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tronfunder_evaluations_total",
		Help: "Funding evaluations by result",
	}, []string{"result"})

	confirmations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tronfunder_confirmations_total",
		Help: "Approval confirmation watches by outcome",
	}, []string{"outcome"})

	polls := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "tronfunder_confirmation_polls",
		Help:    "Status polls issued per confirmation watch",
		Buckets: []float64{1, 2, 3, 5, 10, 20, 48},
	})

	notifications := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tronfunder_notifications_total",
		Help: "Outbound notifications by result",
	}, []string{"result"})

	funderBalance := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "tronfunder_funder_balance_trx",
		Help: "Last observed balance of the funding account in TRX",
	})

	r := prometheus.NewRegistry()
	r.MustRegister(evaluations, confirmations, polls, notifications, funderBalance)

	return &Registry{
		registry:      r,
		evaluations:   evaluations,
		confirmations: confirmations,
		polls:         polls,
		notifications: notifications,
		funderBalance: funderBalance,
	}
}

func (m *Registry) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Registry) IncEvaluation(result string) {
	if m == nil {
		return
	}
	m.evaluations.WithLabelValues(result).Inc()
}

func (m *Registry) IncConfirmation(outcome string) {
	if m == nil {
		return
	}
	m.confirmations.WithLabelValues(outcome).Inc()
}

func (m *Registry) ObservePolls(n int) {
	if m == nil {
		return
	}
	m.polls.Observe(float64(n))
}

func (m *Registry) IncNotification(result string) {
	if m == nil {
		return
	}
	m.notifications.WithLabelValues(result).Inc()
}

func (m *Registry) SetFunderBalance(trx float64) {
	if m == nil {
		return
	}
	m.funderBalance.Set(trx)
}
