package privacy

import (
	"context"
	"fmt"
	"log/slog"

	"lexaudit/internal/ledger/models"
	dErrors "lexaudit/pkg/domain-errors"
)

// RecordSource supplies the records queries run over. *ledger.Ledger
// satisfies it.
type RecordSource interface {
	Records() []models.AuditRecord
}

// Service answers queries from an Engine and charges each one to a
// BudgetTracker. A result whose charge is refused is discarded, never
// returned.
type Service struct {
	source RecordSource
	engine *Engine
	budget *BudgetTracker
	logger *slog.Logger
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

func WithServiceLogger(logger *slog.Logger) ServiceOption {
	return func(s *Service) {
		s.logger = logger
	}
}

func NewService(source RecordSource, engine *Engine, budget *BudgetTracker, opts ...ServiceOption) *Service {
	s := &Service{
		source: source,
		engine: engine,
		budget: budget,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Budget returns the tracker backing this service.
func (s *Service) Budget() *BudgetTracker {
	return s.budget
}

func (s *Service) charge(ctx context.Context, epsilon float64, description string) error {
	if epsilon == 0 {
		return nil
	}
	if err := s.budget.RecordQuery(ctx, epsilon, description); err != nil {
		if dErrors.HasCode(err, dErrors.CodeBudgetExceeded) {
			s.logger.InfoContext(ctx, "noisy result discarded", "query", description)
		}
		return err
	}
	return nil
}

func (s *Service) Count(ctx context.Context, pred Predicate, description string) (DpQueryResult, error) {
	result := s.engine.Count(s.source.Records(), pred)
	if err := s.charge(ctx, result.Epsilon, describe("count", description)); err != nil {
		return DpQueryResult{}, err
	}
	return result, nil
}

func (s *Service) Sum(ctx context.Context, extract Extractor, description string) (DpQueryResult, error) {
	result := s.engine.Sum(s.source.Records(), extract)
	if err := s.charge(ctx, result.Epsilon, describe("sum", description)); err != nil {
		return DpQueryResult{}, err
	}
	return result, nil
}

func (s *Service) Average(ctx context.Context, extract Extractor, description string) (DpQueryResult, error) {
	result := s.engine.Average(s.source.Records(), extract)
	if err := s.charge(ctx, result.Epsilon, describe("average", description)); err != nil {
		return DpQueryResult{}, err
	}
	return result, nil
}

func (s *Service) Histogram(ctx context.Context, key KeyFunc, description string) (HistogramResult, error) {
	result := s.engine.Histogram(s.source.Records(), key)
	if err := s.charge(ctx, result.Epsilon, describe("histogram", description)); err != nil {
		return HistogramResult{}, err
	}
	return result, nil
}

func describe(kind, description string) string {
	if description == "" {
		return kind
	}
	return fmt.Sprintf("%s: %s", kind, description)
}
