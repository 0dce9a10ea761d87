// Package audit records administrative and security actions taken against the
// integrity subsystem itself (budget resets, attestation imports, detected
// tampering). It is separate from the decision ledger: these events describe
// operators and failures, not legal decisions.
package audit

import (
	"context"
	"time"
)

// EventCategory classifies audit events by their primary purpose.
type EventCategory string

const (
	// CategoryCompliance covers administrative actions with regulatory
	// significance, such as resetting a privacy budget.
	CategoryCompliance EventCategory = "compliance"

	// CategorySecurity covers integrity failures that need investigation.
	CategorySecurity EventCategory = "security"

	// CategoryOperations covers routine activity.
	CategoryOperations EventCategory = "operations"
)

type AuditEvent string

const (
	EventBudgetReset          AuditEvent = "privacy_budget_reset"
	EventBudgetExceeded       AuditEvent = "privacy_budget_exceeded"
	EventTamperDetected       AuditEvent = "ledger_tamper_detected"
	EventLedgerImported       AuditEvent = "ledger_imported"
	EventSignaturesImported   AuditEvent = "threshold_signatures_imported"
	EventWitnessesImported    AuditEvent = "witness_signatures_imported"
	EventThresholdCompleted   AuditEvent = "threshold_completed"
	EventSnapshotSaved        AuditEvent = "snapshot_saved"
	EventSnapshotRestoreEmpty AuditEvent = "snapshot_restore_empty"
)

var eventCategories = map[AuditEvent]EventCategory{
	EventBudgetReset:        CategoryCompliance,
	EventLedgerImported:     CategoryCompliance,
	EventSignaturesImported: CategoryCompliance,
	EventWitnessesImported:  CategoryCompliance,

	EventTamperDetected: CategorySecurity,
	EventBudgetExceeded: CategorySecurity,

	EventThresholdCompleted:   CategoryOperations,
	EventSnapshotSaved:        CategoryOperations,
	EventSnapshotRestoreEmpty: CategoryOperations,
}

// Category returns the EventCategory for this audit event.
// Unknown events default to CategoryOperations.
func (e AuditEvent) Category() EventCategory {
	if cat, ok := eventCategories[e]; ok {
		return cat
	}
	return CategoryOperations
}

// Event is emitted by services to capture key actions.
type Event struct {
	Category  EventCategory
	Timestamp time.Time
	Action    AuditEvent
	// Subject is the affected resource: a record id, fingerprint or tracker name.
	Subject   string
	Reason    string
	RequestID string
	ActorID   string
}

// Store persists platform audit events.
type Store interface {
	Append(ctx context.Context, event Event) error
	ListAll(ctx context.Context) ([]Event, error)
}

// Emitter is the consumer-side interface services depend on.
type Emitter interface {
	Emit(ctx context.Context, event Event) error
}
