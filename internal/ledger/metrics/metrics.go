package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the ledger.
type Metrics struct {
	Appends        *prometheus.CounterVec
	Records        prometheus.Gauge
	VerifyLatency  prometheus.Histogram
	TamperDetected prometheus.Counter
}

// New registers the ledger metrics on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Appends: f.NewCounterVec(prometheus.CounterOpts{
			Name: "lexaudit_ledger_appends_total",
			Help: "Total records appended to the ledger by event type",
		}, []string{"event_type"}),

		Records: f.NewGauge(prometheus.GaugeOpts{
			Name: "lexaudit_ledger_records",
			Help: "Number of records currently in the ledger",
		}),

		VerifyLatency: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "lexaudit_ledger_verify_duration_seconds",
			Help:    "Duration of ledger integrity verification",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 30},
		}),

		TamperDetected: f.NewCounter(prometheus.CounterOpts{
			Name: "lexaudit_ledger_tamper_detected_total",
			Help: "Total integrity checks that detected tampering",
		}),
	}
}

func (m *Metrics) IncAppends(eventType string) {
	if m != nil {
		m.Appends.WithLabelValues(eventType).Inc()
	}
}

func (m *Metrics) SetRecords(n int) {
	if m != nil {
		m.Records.Set(float64(n))
	}
}

func (m *Metrics) ObserveVerify(d time.Duration) {
	if m != nil {
		m.VerifyLatency.Observe(d.Seconds())
	}
}

func (m *Metrics) IncTamperDetected() {
	if m != nil {
		m.TamperDetected.Inc()
	}
}
