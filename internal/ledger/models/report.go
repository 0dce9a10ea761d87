package models

import "time"

// ComplianceReport summarises the ledger for dashboards and timeline tools.
type ComplianceReport struct {
	TotalDecisions         int       `json:"total_decisions"`
	AutomaticDecisions     int       `json:"automatic_decisions"`
	DiscretionaryDecisions int       `json:"discretionary_decisions"`
	HumanOverrides         int       `json:"human_overrides"`
	VoidDecisions          int       `json:"void_decisions"`
	IntegrityVerified      bool      `json:"integrity_verified"`
	GeneratedAt            time.Time `json:"generated_at"`
}
