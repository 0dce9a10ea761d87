package compliance

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	audit "lexaudit/pkg/platform/audit"
	"lexaudit/pkg/platform/audit/store/memory"
	"lexaudit/pkg/requestcontext"
)

type failingStore struct{}

func (failingStore) Append(context.Context, audit.Event) error { return errors.New("disk full") }
func (failingStore) ListAll(context.Context) ([]audit.Event, error) {
	return nil, nil
}

func TestPublisher_EmitFillsDefaults(t *testing.T) {
	store := memory.NewInMemoryStore()
	pub := New(store, WithMetrics(NewMetrics(prometheus.NewRegistry())))

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	ctx := requestcontext.WithTime(context.Background(), now)
	ctx = requestcontext.WithRequestID(ctx, "req-1")

	err := pub.Emit(ctx, audit.Event{Action: audit.EventBudgetReset, Subject: "analytics"})
	require.NoError(t, err)

	events, err := store.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, audit.CategoryCompliance, events[0].Category)
	assert.Equal(t, now, events[0].Timestamp)
	assert.Equal(t, "req-1", events[0].RequestID)
}

func TestPublisher_FailClosed(t *testing.T) {
	pub := New(failingStore{})
	err := pub.Emit(context.Background(), audit.Event{Action: audit.EventTamperDetected})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
}

func TestPublisher_RequiresAction(t *testing.T) {
	pub := New(memory.NewInMemoryStore())
	require.Error(t, pub.Emit(context.Background(), audit.Event{}))
}

func TestAuditEventCategory(t *testing.T) {
	assert.Equal(t, audit.CategorySecurity, audit.EventTamperDetected.Category())
	assert.Equal(t, audit.CategoryOperations, audit.AuditEvent("unknown").Category())
}
