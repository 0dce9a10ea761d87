package ledger

import (
	"context"

	"lexaudit/internal/ledger/models"
	dErrors "lexaudit/pkg/domain-errors"
)

// GenerateReport counts decisions by result variant and runs a full
// integrity check. A detected tamper is reported as IntegrityVerified=false,
// not as an error; other verification failures (cancellation) are returned.
func (l *Ledger) GenerateReport(ctx context.Context) (models.ComplianceReport, error) {
	records, _ := l.snapshot()

	report := models.ComplianceReport{
		TotalDecisions: len(records),
		GeneratedAt:    l.clock().UTC(),
	}
	for i := range records {
		switch records[i].Result.Kind {
		case models.ResultDeterministic:
			report.AutomaticDecisions++
		case models.ResultRequiresDiscretion:
			report.DiscretionaryDecisions++
		case models.ResultOverridden:
			report.HumanOverrides++
		case models.ResultVoid:
			report.VoidDecisions++
		}
	}

	err := l.VerifyIntegrity(ctx)
	switch {
	case err == nil:
		report.IntegrityVerified = true
	case dErrors.HasCode(err, dErrors.CodeTamperDetected):
		report.IntegrityVerified = false
	default:
		return models.ComplianceReport{}, err
	}
	return report, nil
}
