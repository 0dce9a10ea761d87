package ledger

import (
	"encoding/json"
	"maps"
	"time"

	"lexaudit/internal/ledger/models"
	dErrors "lexaudit/pkg/domain-errors"
	"lexaudit/pkg/platform/hashing"
)

// ComputeHash derives a record's hash from its id, timestamp, statute id,
// subject id, previous hash and serialized result. It is a pure function of
// those fields; everything else on the record is not covered.
func ComputeHash(h hashing.Hasher, r models.AuditRecord) (string, error) {
	result, err := json.Marshal(r.Result)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeSerialization, "serialize decision result")
	}
	return h.Digest(
		r.ID.String(),
		r.Timestamp.UTC().Format(time.RFC3339Nano),
		r.StatuteID,
		r.SubjectID.String(),
		r.PreviousHash,
		string(result),
	), nil
}

func cloneRecord(r models.AuditRecord) models.AuditRecord {
	r.Context = models.DecisionContext{
		Attributes:          maps.Clone(r.Context.Attributes),
		Metadata:            maps.Clone(r.Context.Metadata),
		EvaluatedConditions: append([]models.EvaluatedCondition(nil), r.Context.EvaluatedConditions...),
	}
	r.Result = cloneResult(r.Result)
	return r
}

func cloneResult(res models.DecisionResult) models.DecisionResult {
	res.Parameters = maps.Clone(res.Parameters)
	if res.Original != nil {
		o := cloneResult(*res.Original)
		res.Original = &o
	}
	if res.New != nil {
		n := cloneResult(*res.New)
		res.New = &n
	}
	return res
}
