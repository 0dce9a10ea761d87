package privacy

import (
	"time"

	"lexaudit/internal/ledger/models"
)

// MechanismLaplace is the only noise mechanism the engine implements.
const MechanismLaplace = "laplace"

// DpQueryResult is a noisy answer. TrueValue is kept for diagnostics and
// tests and must never be released to a data consumer.
type DpQueryResult struct {
	Value     float64 `json:"value"`
	TrueValue float64 `json:"-"`
	Epsilon   float64 `json:"epsilon"`
	Delta     float64 `json:"delta"`
	Mechanism string  `json:"mechanism"`
}

// HistogramResult holds one noisy count per observed bucket. Epsilon is the
// total cost of the query.
type HistogramResult struct {
	Buckets map[string]DpQueryResult `json:"buckets"`
	Epsilon float64                  `json:"epsilon"`
	Delta   float64                  `json:"delta"`
}

// Predicate selects records for a count.
type Predicate func(models.AuditRecord) bool

// Extractor maps a record to the numeric value being summed or averaged.
type Extractor func(models.AuditRecord) float64

// KeyFunc assigns a record to a histogram bucket.
type KeyFunc func(models.AuditRecord) string

// QueryEntry is one charge against the privacy budget.
type QueryEntry struct {
	Epsilon     float64   `json:"epsilon"`
	Description string    `json:"description"`
	Timestamp   time.Time `json:"timestamp"`
}

// BudgetStatus is a consistent view of a tracker.
type BudgetStatus struct {
	Total     float64      `json:"total_budget"`
	Consumed  float64      `json:"consumed"`
	Remaining float64      `json:"remaining"`
	History   []QueryEntry `json:"history"`
}
