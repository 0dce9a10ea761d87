package handler

import (
	"time"

	"github.com/google/uuid"

	"lexaudit/internal/ledger/models"
	dErrors "lexaudit/pkg/domain-errors"
)

// AppendRecordRequest is the body of POST /ledger/records. ID and Timestamp
// are optional; the ledger fills them in when absent. Hashes are always
// assigned by the ledger.
type AppendRecordRequest struct {
	ID        uuid.UUID              `json:"id"`
	Timestamp time.Time              `json:"timestamp"`
	EventType models.EventType       `json:"event_type"`
	Actor     models.Actor           `json:"actor"`
	StatuteID string                 `json:"statute_id"`
	SubjectID uuid.UUID              `json:"subject_id"`
	Context   models.DecisionContext `json:"context"`
	Result    models.DecisionResult  `json:"result"`
}

// Validate checks the fields the ledger does not: event type and subject.
func (r AppendRecordRequest) Validate() error {
	if !r.EventType.Valid() {
		return dErrors.Newf(dErrors.CodeBadRequest, "unknown event_type %q", r.EventType)
	}
	if r.SubjectID == uuid.Nil {
		return dErrors.New(dErrors.CodeBadRequest, "subject_id is required")
	}
	return nil
}

func (r AppendRecordRequest) ToRecord() models.AuditRecord {
	return models.AuditRecord{
		ID:        r.ID,
		Timestamp: r.Timestamp,
		EventType: r.EventType,
		Actor:     r.Actor,
		StatuteID: r.StatuteID,
		SubjectID: r.SubjectID,
		Context:   r.Context,
		Result:    r.Result,
	}
}
