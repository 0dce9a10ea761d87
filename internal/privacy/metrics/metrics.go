package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for differentially private queries and the
// budget they draw on.
type Metrics struct {
	Queries          *prometheus.CounterVec
	EpsilonConsumed  prometheus.Gauge
	BudgetRejections prometheus.Counter
	BudgetResets     prometheus.Counter
}

// New registers the privacy metrics on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Queries: f.NewCounterVec(prometheus.CounterOpts{
			Name: "lexaudit_privacy_queries_total",
			Help: "Total noisy queries answered by mechanism and query kind",
		}, []string{"kind"}), // count, sum, average, histogram

		EpsilonConsumed: f.NewGauge(prometheus.GaugeOpts{
			Name: "lexaudit_privacy_epsilon_consumed",
			Help: "Privacy budget consumed since the last reset",
		}),

		BudgetRejections: f.NewCounter(prometheus.CounterOpts{
			Name: "lexaudit_privacy_budget_rejections_total",
			Help: "Queries rejected because they would exceed the privacy budget",
		}),

		BudgetResets: f.NewCounter(prometheus.CounterOpts{
			Name: "lexaudit_privacy_budget_resets_total",
			Help: "Explicit privacy budget resets",
		}),
	}
}

func (m *Metrics) IncQuery(kind string) {
	if m != nil {
		m.Queries.WithLabelValues(kind).Inc()
	}
}

func (m *Metrics) SetConsumed(epsilon float64) {
	if m != nil {
		m.EpsilonConsumed.Set(epsilon)
	}
}

func (m *Metrics) IncRejection() {
	if m != nil {
		m.BudgetRejections.Inc()
	}
}

func (m *Metrics) IncReset() {
	if m != nil {
		m.BudgetResets.Inc()
	}
}
