package privacy

import (
	"strconv"

	"lexaudit/internal/ledger/models"
)

// StatuteIs matches records decided under statuteID.
func StatuteIs(statuteID string) Predicate {
	return func(r models.AuditRecord) bool { return r.StatuteID == statuteID }
}

// EventTypeIs matches records of the given event type.
func EventTypeIs(t models.EventType) Predicate {
	return func(r models.AuditRecord) bool { return r.EventType == t }
}

// All matches every record.
func All(models.AuditRecord) bool { return true }

func ByStatute(r models.AuditRecord) string { return r.StatuteID }

func ByEventType(r models.AuditRecord) string { return string(r.EventType) }

// ByResultKind buckets records by decision outcome (deterministic, void, ...).
func ByResultKind(r models.AuditRecord) string { return string(r.Result.Kind) }

// ParameterValue extracts a numeric decision parameter. Missing or
// non-numeric values count as zero.
func ParameterValue(name string) Extractor {
	return func(r models.AuditRecord) float64 {
		v, err := strconv.ParseFloat(r.Result.Parameters[name], 64)
		if err != nil {
			return 0
		}
		return v
	}
}
