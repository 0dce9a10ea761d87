package models

import (
	"time"

	"github.com/google/uuid"
)

// EventType tags what kind of decision event a record captures.
type EventType string

const (
	EventAutomaticDecision   EventType = "automatic_decision"
	EventDiscretionaryReview EventType = "discretionary_review"
	EventHumanOverride       EventType = "human_override"
	EventAppeal              EventType = "appeal"
	EventRuleUpdated         EventType = "rule_updated"
)

// Valid reports whether e is one of the known event types.
func (e EventType) Valid() bool {
	switch e {
	case EventAutomaticDecision, EventDiscretionaryReview, EventHumanOverride, EventAppeal, EventRuleUpdated:
		return true
	}
	return false
}

// EvaluatedCondition is one condition checked while reaching a decision.
type EvaluatedCondition struct {
	Description string `json:"description"`
	Result      bool   `json:"result"`
	InputValue  string `json:"input_value,omitempty"`
	Threshold   string `json:"threshold,omitempty"`
}

// DecisionContext captures the inputs a decision was based on.
type DecisionContext struct {
	Attributes          map[string]string    `json:"attributes"`
	Metadata            map[string]string    `json:"metadata"`
	EvaluatedConditions []EvaluatedCondition `json:"evaluated_conditions"`
}

// AuditRecord is one immutable ledger entry. PreviousHash and RecordHash are
// assigned by the ledger at append time; an empty PreviousHash marks the
// genesis record.
type AuditRecord struct {
	ID           uuid.UUID       `json:"id"`
	Timestamp    time.Time       `json:"timestamp"`
	EventType    EventType       `json:"event_type"`
	Actor        Actor           `json:"actor"`
	StatuteID    string          `json:"statute_id"`
	SubjectID    uuid.UUID       `json:"subject_id"`
	Context      DecisionContext `json:"context"`
	Result       DecisionResult  `json:"result"`
	PreviousHash string          `json:"previous_hash,omitempty"`
	RecordHash   string          `json:"record_hash"`
}

// NewRecord builds an unsealed record with a fresh id.
func NewRecord(
	eventType EventType,
	actor Actor,
	statuteID string,
	subjectID uuid.UUID,
	ctx DecisionContext,
	result DecisionResult,
	at time.Time,
) AuditRecord {
	return AuditRecord{
		ID:        uuid.New(),
		Timestamp: at,
		EventType: eventType,
		Actor:     actor,
		StatuteID: statuteID,
		SubjectID: subjectID,
		Context:   ctx,
		Result:    result,
	}
}

// IsGenesis reports whether the record has no predecessor.
func (r AuditRecord) IsGenesis() bool {
	return r.PreviousHash == ""
}
