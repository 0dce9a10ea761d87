package handler

import (
	"time"

	"lexaudit/internal/attestation/threshold"
	"lexaudit/internal/attestation/witness"
	"lexaudit/internal/ledger/models"
	"lexaudit/internal/privacy"
)

// RecordsResponse is the response for GET /ledger/records.
type RecordsResponse struct {
	Count   int                  `json:"count"`
	Records []models.AuditRecord `json:"records"`
}

// VerifyResponse is the response for GET /ledger/verify.
type VerifyResponse struct {
	Valid    bool   `json:"valid"`
	Records  int    `json:"records"`
	LastHash string `json:"last_hash,omitempty"`
	RecordID string `json:"record_id,omitempty"`
	Position *int   `json:"position,omitempty"`
	Reason   string `json:"reason,omitempty"`
}

// ThresholdResponse is the response for GET /attestations/threshold.
type ThresholdResponse struct {
	Fingerprint   string                     `json:"fingerprint"`
	Threshold     int                        `json:"threshold"`
	UniqueSigners int                        `json:"unique_signers"`
	Signatures    []threshold.PartySignature `json:"signatures"`
	CompletedAt   *time.Time                 `json:"completed_at,omitempty"`
	Valid         bool                       `json:"valid"`
}

func FromMultiPartySignature(sig threshold.MultiPartySignature, required int, valid bool) *ThresholdResponse {
	return &ThresholdResponse{
		Fingerprint:   sig.DataHash,
		Threshold:     required,
		UniqueSigners: sig.UniqueSigners(),
		Signatures:    nonNil(sig.Signatures),
		CompletedAt:   sig.CompletedAt,
		Valid:         valid,
	}
}

// RecordWitnessesResponse is the response for GET /attestations/witness/{recordID}.
type RecordWitnessesResponse struct {
	RecordID   string                     `json:"record_id"`
	Signatures []witness.WitnessSignature `json:"signatures"`
	Verified   bool                       `json:"verified"`
	Notarized  bool                       `json:"notarized"`
}

// WitnessSignaturesResponse is the response for GET /attestations/witness/by-witness/{witnessID}.
type WitnessSignaturesResponse struct {
	WitnessID  string                     `json:"witness_id"`
	Count      int                        `json:"count"`
	Signatures []witness.WitnessSignature `json:"signatures"`
}

// BudgetResponse is the response for GET /privacy/budget.
type BudgetResponse struct {
	TotalBudget float64         `json:"total_budget"`
	Consumed    float64         `json:"consumed"`
	Remaining   float64         `json:"remaining"`
	Queries     []QueryResponse `json:"queries"`
}

type QueryResponse struct {
	Epsilon     float64   `json:"epsilon"`
	Description string    `json:"description"`
	Timestamp   time.Time `json:"timestamp"`
}

func FromBudgetStatus(st privacy.BudgetStatus) *BudgetResponse {
	resp := &BudgetResponse{
		TotalBudget: st.Total,
		Consumed:    st.Consumed,
		Remaining:   st.Remaining,
		Queries:     make([]QueryResponse, 0, len(st.History)),
	}
	for _, q := range st.History {
		resp.Queries = append(resp.Queries, QueryResponse(q))
	}
	return resp
}

// NoisyValueResponse releases a noisy answer. The true value is never
// included.
type NoisyValueResponse struct {
	Value     float64 `json:"value"`
	Epsilon   float64 `json:"epsilon"`
	Delta     float64 `json:"delta"`
	Mechanism string  `json:"mechanism"`
}

func FromQueryResult(r privacy.DpQueryResult) *NoisyValueResponse {
	return &NoisyValueResponse{
		Value:     r.Value,
		Epsilon:   r.Epsilon,
		Delta:     r.Delta,
		Mechanism: r.Mechanism,
	}
}

// HistogramResponse is the response for GET /privacy/histogram.
type HistogramResponse struct {
	Buckets map[string]NoisyValueResponse `json:"buckets"`
	Epsilon float64                       `json:"epsilon"`
}

func FromHistogram(h privacy.HistogramResult) *HistogramResponse {
	resp := &HistogramResponse{
		Buckets: make(map[string]NoisyValueResponse, len(h.Buckets)),
		Epsilon: h.Epsilon,
	}
	for k, b := range h.Buckets {
		resp.Buckets[k] = *FromQueryResult(b)
	}
	return resp
}
