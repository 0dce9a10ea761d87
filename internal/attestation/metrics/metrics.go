package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for threshold signing and witness notarization.
type Metrics struct {
	PartySignatures     *prometheus.CounterVec
	ThresholdsCompleted prometheus.Counter
	WitnessSignatures   prometheus.Counter
	Verifications       *prometheus.CounterVec
}

// New registers the attestation metrics on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		PartySignatures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "lexaudit_threshold_party_signatures_total",
			Help: "Total party signatures collected by party",
		}, []string{"party_id"}),

		ThresholdsCompleted: f.NewCounter(prometheus.CounterOpts{
			Name: "lexaudit_threshold_completed_total",
			Help: "Total fingerprints that reached their signature threshold",
		}),

		WitnessSignatures: f.NewCounter(prometheus.CounterOpts{
			Name: "lexaudit_witness_signatures_total",
			Help: "Total witness signatures registered",
		}),

		Verifications: f.NewCounterVec(prometheus.CounterOpts{
			Name: "lexaudit_attestation_verifications_total",
			Help: "Attestation verifications by kind and outcome",
		}, []string{"kind", "outcome"}), // kind: "threshold", "witness"
	}
}

func (m *Metrics) IncPartySignature(partyID string) {
	if m != nil {
		m.PartySignatures.WithLabelValues(partyID).Inc()
	}
}

func (m *Metrics) IncThresholdCompleted() {
	if m != nil {
		m.ThresholdsCompleted.Inc()
	}
}

func (m *Metrics) IncWitnessSignature() {
	if m != nil {
		m.WitnessSignatures.Inc()
	}
}

func (m *Metrics) IncVerification(kind string, ok bool) {
	if m == nil {
		return
	}
	outcome := "invalid"
	if ok {
		outcome = "valid"
	}
	m.Verifications.WithLabelValues(kind, outcome).Inc()
}
