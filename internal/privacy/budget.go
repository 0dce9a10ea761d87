package privacy

import (
	"context"
	"log/slog"
	"math"
	"slices"
	"sync"
	"time"

	"lexaudit/internal/privacy/metrics"
	dErrors "lexaudit/pkg/domain-errors"
	audit "lexaudit/pkg/platform/audit"
)

// BudgetTracker enforces a cumulative epsilon allowance. Consumed only grows,
// except through Reset.
type BudgetTracker struct {
	total float64

	mu       sync.Mutex
	consumed float64
	history  []QueryEntry

	clock   func() time.Time
	logger  *slog.Logger
	metrics *metrics.Metrics
	auditor audit.Emitter
}

// BudgetOption configures a BudgetTracker.
type BudgetOption func(*BudgetTracker)

func WithBudgetClock(clock func() time.Time) BudgetOption {
	return func(t *BudgetTracker) {
		t.clock = clock
	}
}

func WithBudgetLogger(logger *slog.Logger) BudgetOption {
	return func(t *BudgetTracker) {
		t.logger = logger
	}
}

func WithBudgetMetrics(m *metrics.Metrics) BudgetOption {
	return func(t *BudgetTracker) {
		t.metrics = m
	}
}

// WithBudgetAuditEmitter records resets and rejected charges.
func WithBudgetAuditEmitter(e audit.Emitter) BudgetOption {
	return func(t *BudgetTracker) {
		t.auditor = e
	}
}

// NewBudgetTracker returns a tracker with nothing consumed.
func NewBudgetTracker(total float64, opts ...BudgetOption) (*BudgetTracker, error) {
	if !(total > 0) || math.IsInf(total, 0) {
		return nil, dErrors.Newf(dErrors.CodeInvalidRecord, "total budget must be positive, got %v", total)
	}
	t := &BudgetTracker{
		total:  total,
		clock:  time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

// RecordQuery charges epsilon against the budget. The check and the charge
// happen under one lock, so concurrent callers cannot jointly overspend.
func (t *BudgetTracker) RecordQuery(ctx context.Context, epsilon float64, description string) error {
	if !(epsilon >= 0) || math.IsInf(epsilon, 0) {
		return dErrors.Newf(dErrors.CodeInvalidRecord, "epsilon must be non-negative, got %v", epsilon)
	}

	t.mu.Lock()
	if t.consumed+epsilon > t.total {
		remaining := t.total - t.consumed
		t.mu.Unlock()

		t.metrics.IncRejection()
		t.logger.WarnContext(ctx, "privacy budget exceeded",
			"requested", epsilon,
			"remaining", remaining,
			"description", description,
		)
		t.emit(ctx, audit.Event{Action: audit.EventBudgetExceeded, Subject: description})
		return dErrors.Newf(dErrors.CodeBudgetExceeded,
			"query needs epsilon %v but only %v remains", epsilon, remaining)
	}
	t.consumed += epsilon
	t.history = append(t.history, QueryEntry{
		Epsilon:     epsilon,
		Description: description,
		Timestamp:   t.clock().UTC(),
	})
	consumed := t.consumed
	t.mu.Unlock()

	t.metrics.SetConsumed(consumed)
	return nil
}

// Remaining returns the unspent budget.
func (t *BudgetTracker) Remaining() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.total - t.consumed
}

// Consumed returns the budget spent since the last reset.
func (t *BudgetTracker) Consumed() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.consumed
}

func (t *BudgetTracker) Total() float64 { return t.total }

// History returns a copy of the charges since the last reset, oldest first.
func (t *BudgetTracker) History() []QueryEntry {
	t.mu.Lock()
	defer t.mu.Unlock()
	return slices.Clone(t.history)
}

// Status returns total, consumed, remaining and history from one critical
// section.
func (t *BudgetTracker) Status() BudgetStatus {
	t.mu.Lock()
	defer t.mu.Unlock()
	return BudgetStatus{
		Total:     t.total,
		Consumed:  t.consumed,
		Remaining: t.total - t.consumed,
		History:   slices.Clone(t.history),
	}
}

// Reset clears consumed and the history. The reset itself is written to the
// audit trail; if that write fails the budget is left untouched.
func (t *BudgetTracker) Reset(ctx context.Context, reason string) error {
	if t.auditor != nil {
		err := t.auditor.Emit(ctx, audit.Event{
			Action: audit.EventBudgetReset,
			Reason: reason,
		})
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeStorage, "record budget reset")
		}
	}

	t.mu.Lock()
	spent := t.consumed
	t.consumed = 0
	t.history = nil
	t.mu.Unlock()

	t.metrics.IncReset()
	t.metrics.SetConsumed(0)
	t.logger.InfoContext(ctx, "privacy budget reset",
		"previously_consumed", spent,
		"reason", reason,
	)
	return nil
}

func (t *BudgetTracker) emit(ctx context.Context, event audit.Event) {
	if t.auditor == nil {
		return
	}
	if err := t.auditor.Emit(ctx, event); err != nil {
		t.logger.ErrorContext(ctx, "privacy audit failed",
			"action", event.Action,
			"error", err,
		)
	}
}
