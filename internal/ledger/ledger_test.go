package ledger

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/suite"

	"lexaudit/internal/ledger/metrics"
	"lexaudit/internal/ledger/models"
	dErrors "lexaudit/pkg/domain-errors"
	audit "lexaudit/pkg/platform/audit"
	"lexaudit/pkg/platform/audit/store/memory"
	"lexaudit/pkg/platform/hashing"
)

var baseTime = time.Date(2026, 5, 4, 9, 30, 0, 0, time.UTC)

type LedgerSuite struct {
	suite.Suite
	ledger *Ledger
	ctx    context.Context
	now    time.Time
}

func TestLedgerSuite(t *testing.T) {
	suite.Run(t, new(LedgerSuite))
}

func (s *LedgerSuite) SetupTest() {
	s.now = baseTime
	s.ctx = context.Background()
	s.ledger = New(
		WithClock(func() time.Time { return s.now }),
		WithMetrics(metrics.New(prometheus.NewRegistry())),
	)
}

func decision(statute string, subject uuid.UUID, result models.DecisionResult) models.AuditRecord {
	return models.AuditRecord{
		EventType: models.EventAutomaticDecision,
		Actor:     models.SystemActor("eligibility-engine"),
		StatuteID: statute,
		SubjectID: subject,
		Context: models.DecisionContext{
			Attributes: map[string]string{"age": "67"},
			EvaluatedConditions: []models.EvaluatedCondition{
				{Description: "age >= 65", Result: true, InputValue: "67", Threshold: "65"},
			},
		},
		Result: result,
	}
}

func (s *LedgerSuite) appendN(n int) []uuid.UUID {
	ids := make([]uuid.UUID, 0, n)
	for i := range n {
		s.now = baseTime.Add(time.Duration(i) * time.Minute)
		id, err := s.ledger.Append(s.ctx, decision("pension-act-12", uuid.New(), models.Deterministic("grant", nil)))
		s.Require().NoError(err)
		ids = append(ids, id)
	}
	return ids
}

func (s *LedgerSuite) requireTamper(err error, id uuid.UUID, reason TamperReason) {
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeTamperDetected), "expected tamper_detected, got %v", err)
	var te *TamperError
	s.Require().True(errors.As(err, &te))
	s.Equal(id, te.RecordID)
	s.Equal(reason, te.Reason)
	s.Contains(err.Error(), id.String())
}

func (s *LedgerSuite) TestSequentialAppendVerifies() {
	s.appendN(3)

	s.NoError(s.ledger.VerifyIntegrity(s.ctx))
	s.Equal(3, s.ledger.Count())
}

func (s *LedgerSuite) TestAppendLinksRecords() {
	ids := s.appendN(3)

	first, err := s.ledger.Get(s.ctx, ids[0])
	s.Require().NoError(err)
	s.True(first.IsGenesis())
	s.NotEmpty(first.RecordHash)

	second, err := s.ledger.Get(s.ctx, ids[1])
	s.Require().NoError(err)
	s.Equal(first.RecordHash, second.PreviousHash)

	third, err := s.ledger.Get(s.ctx, ids[2])
	s.Require().NoError(err)
	s.Equal(third.RecordHash, s.ledger.LastHash())
}

func (s *LedgerSuite) TestAppendIgnoresCallerHashes() {
	rec := decision("s-1", uuid.New(), models.Void("statute repealed"))
	rec.PreviousHash = "forged"
	rec.RecordHash = "forged"

	id, err := s.ledger.Append(s.ctx, rec)
	s.Require().NoError(err)

	got, err := s.ledger.Get(s.ctx, id)
	s.Require().NoError(err)
	s.Empty(got.PreviousHash)
	s.NotEqual("forged", got.RecordHash)
	s.NoError(s.ledger.VerifyIntegrity(s.ctx))
}

func (s *LedgerSuite) TestAppendDefaults() {
	id, err := s.ledger.Append(s.ctx, decision("s-1", uuid.New(), models.Deterministic("grant", nil)))
	s.Require().NoError(err)
	s.NotEqual(uuid.Nil, id)

	got, err := s.ledger.Get(s.ctx, id)
	s.Require().NoError(err)
	s.Equal(baseTime, got.Timestamp)
}

func (s *LedgerSuite) TestAppendValidation() {
	s.Run("missing statute", func() {
		_, err := s.ledger.Append(s.ctx, decision("", uuid.New(), models.Void("x")))
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidRecord))
	})

	s.Run("invalid actor", func() {
		rec := decision("s-1", uuid.New(), models.Void("x"))
		rec.Actor = models.Actor{Kind: models.ActorUser}
		_, err := s.ledger.Append(s.ctx, rec)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidRecord))
	})

	s.Run("override without justification", func() {
		res := models.Overridden(models.Deterministic("deny", nil), models.Deterministic("grant", nil), "")
		_, err := s.ledger.Append(s.ctx, decision("s-1", uuid.New(), res))
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidRecord))
	})

	s.Run("duplicate id", func() {
		rec := decision("s-1", uuid.New(), models.Void("x"))
		rec.ID = uuid.New()
		_, err := s.ledger.Append(s.ctx, rec)
		s.Require().NoError(err)
		_, err = s.ledger.Append(s.ctx, rec)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidRecord))
	})

	s.Equal(1, s.ledger.Count())
}

func (s *LedgerSuite) TestGetNotFound() {
	_, err := s.ledger.Get(s.ctx, uuid.New())
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *LedgerSuite) TestStoredRecordIsImmutable() {
	params := map[string]string{"amount": "1200"}
	rec := decision("s-1", uuid.New(), models.Deterministic("grant", params))
	id, err := s.ledger.Append(s.ctx, rec)
	s.Require().NoError(err)

	params["amount"] = "9999"
	got, err := s.ledger.Get(s.ctx, id)
	s.Require().NoError(err)
	got.Result.Parameters["amount"] = "1"

	again, err := s.ledger.Get(s.ctx, id)
	s.Require().NoError(err)
	s.Equal("1200", again.Result.Parameters["amount"])
	s.NoError(s.ledger.VerifyIntegrity(s.ctx))
}

func (s *LedgerSuite) TestQueries() {
	alice, bob := uuid.New(), uuid.New()
	s.now = baseTime
	_, _ = s.ledger.Append(s.ctx, decision("pension-act-12", alice, models.Deterministic("grant", nil)))
	s.now = baseTime.Add(time.Hour)
	_, _ = s.ledger.Append(s.ctx, decision("housing-act-3", alice, models.RequiresDiscretion("income unclear", "", "")))
	s.now = baseTime.Add(2 * time.Hour)
	_, _ = s.ledger.Append(s.ctx, decision("pension-act-12", bob, models.Void("duplicate claim")))

	s.Run("by statute", func() {
		got := s.ledger.QueryByStatute(s.ctx, "pension-act-12")
		s.Require().Len(got, 2)
		s.Equal(alice, got[0].SubjectID)
		s.Equal(bob, got[1].SubjectID)
	})

	s.Run("by subject", func() {
		s.Len(s.ledger.QueryBySubject(s.ctx, alice), 2)
		s.Empty(s.ledger.QueryBySubject(s.ctx, uuid.New()))
	})

	s.Run("by time range is inclusive", func() {
		got := s.ledger.QueryByTimeRange(s.ctx, baseTime.Add(time.Hour), baseTime.Add(2*time.Hour))
		s.Require().Len(got, 2)
		s.Equal("housing-act-3", got[0].StatuteID)
	})
}

func (s *LedgerSuite) TestTamperedRecordHash() {
	ids := s.appendN(4)
	s.ledger.records[2].RecordHash = "00ff"

	err := s.ledger.VerifyIntegrity(s.ctx)
	s.requireTamper(err, ids[2], ReasonHashMismatch)
}

func (s *LedgerSuite) TestTamperedPreviousHash() {
	ids := s.appendN(4)
	s.ledger.records[1].PreviousHash = s.ledger.records[1].RecordHash

	err := s.ledger.VerifyIntegrity(s.ctx)
	// previous_hash is covered by the record hash, so the recomputation fails first
	s.requireTamper(err, ids[1], ReasonHashMismatch)
}

func (s *LedgerSuite) TestRelinkedRecordBreaksChain() {
	ids := s.appendN(3)

	// Re-seal record 1 on top of a forged predecessor: its own hash is
	// consistent but the link to record 0 is broken.
	forged := s.ledger.records[1]
	forged.PreviousHash = "deadbeef"
	hash, err := ComputeHash(s.ledger.hasher, forged)
	s.Require().NoError(err)
	forged.RecordHash = hash
	s.ledger.records[1] = forged

	err = s.ledger.VerifyIntegrity(s.ctx)
	s.requireTamper(err, ids[1], ReasonBrokenLink)
}

func (s *LedgerSuite) TestTamperedResult() {
	ids := s.appendN(2)
	s.ledger.records[0].Result = models.Deterministic("deny", nil)

	err := s.ledger.VerifyIntegrity(s.ctx)
	s.requireTamper(err, ids[0], ReasonHashMismatch)
}

func (s *LedgerSuite) TestTamperedTail() {
	ids := s.appendN(2)
	s.ledger.lastHash = "abc"

	err := s.ledger.VerifyIntegrity(s.ctx)
	s.requireTamper(err, ids[1], ReasonTailMismatch)
}

func (s *LedgerSuite) TestParallelVerificationReportsFirstMismatch() {
	l := New(WithVerifyWorkers(4))
	var ids []uuid.UUID
	for range 3 * minChunk {
		id, err := l.Append(s.ctx, decision("s-1", uuid.New(), models.Deterministic("grant", nil)))
		s.Require().NoError(err)
		ids = append(ids, id)
	}
	s.Require().NoError(l.VerifyIntegrity(s.ctx))

	l.records[2*minChunk+7].RecordHash = "x"
	l.records[minChunk+3].RecordHash = "y"

	err := l.VerifyIntegrity(s.ctx)
	s.requireTamper(err, ids[minChunk+3], ReasonHashMismatch)
}

func (s *LedgerSuite) TestVerifyHonoursCancellation() {
	l := New(WithVerifyWorkers(2))
	for range 2 * minChunk {
		_, err := l.Append(s.ctx, decision("s-1", uuid.New(), models.Void("x")))
		s.Require().NoError(err)
	}
	ctx, cancel := context.WithCancel(s.ctx)
	cancel()

	err := l.VerifyIntegrity(ctx)
	s.ErrorIs(err, context.Canceled)
	s.False(dErrors.HasCode(err, dErrors.CodeTamperDetected))
}

func (s *LedgerSuite) TestIncrementalVerification() {
	s.appendN(3)
	cp, err := s.ledger.VerifyFrom(s.ctx, Checkpoint{})
	s.Require().NoError(err)
	s.Equal(3, cp.Position)
	s.Equal(s.ledger.LastHash(), cp.Hash)

	s.appendN(2)
	cp, err = s.ledger.VerifyFrom(s.ctx, cp)
	s.Require().NoError(err)
	s.Equal(5, cp.Position)

	s.Run("stale checkpoint hash", func() {
		_, err := s.ledger.VerifyFrom(s.ctx, Checkpoint{Position: 2, Hash: "nope"})
		s.True(dErrors.HasCode(err, dErrors.CodeTamperDetected))
	})

	s.Run("checkpoint beyond ledger", func() {
		_, err := s.ledger.VerifyFrom(s.ctx, Checkpoint{Position: 9})
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidRecord))
	})
}

func (s *LedgerSuite) TestChainVerifierStreams() {
	s.appendN(4)
	records := s.ledger.Records()

	v := NewChainVerifier(s.ledger.Hasher())
	for _, r := range records[:2] {
		s.Require().NoError(v.Next(r))
	}
	resumed := ResumeChainVerifier(s.ledger.Hasher(), v.Checkpoint())
	for _, r := range records[2:] {
		s.Require().NoError(resumed.Next(r))
	}
	s.Equal(4, resumed.Verified())
	s.Equal(s.ledger.LastHash(), resumed.LastHash())

	out := NewChainVerifier(s.ledger.Hasher())
	err := out.Next(records[1])
	s.requireTamper(err, records[1].ID, ReasonBrokenLink)
}

func (s *LedgerSuite) TestConcurrentAppendsNeverFork() {
	var wg sync.WaitGroup
	for range 64 {
		wg.Go(func() {
			for range 10 {
				_, err := s.ledger.Append(s.ctx, decision("s-1", uuid.New(), models.Deterministic("grant", nil)))
				s.NoError(err)
			}
		})
		wg.Go(func() {
			_ = s.ledger.QueryByStatute(s.ctx, "s-1")
		})
	}
	wg.Wait()

	s.Equal(640, s.ledger.Count())
	s.NoError(s.ledger.VerifyIntegrity(s.ctx))

	seen := make(map[string]bool)
	for _, r := range s.ledger.Records() {
		s.False(seen[r.PreviousHash], "two records share predecessor %q", r.PreviousHash)
		seen[r.PreviousHash] = true
	}
}

func (s *LedgerSuite) TestGenerateReport() {
	subject := uuid.New()
	_, _ = s.ledger.Append(s.ctx, decision("s-1", subject, models.Deterministic("grant", nil)))
	_, _ = s.ledger.Append(s.ctx, decision("s-1", subject, models.Deterministic("grant", nil)))
	_, _ = s.ledger.Append(s.ctx, decision("s-1", subject, models.RequiresDiscretion("hardship", "", "caseworker-7")))
	_, _ = s.ledger.Append(s.ctx, decision("s-1", subject,
		models.Overridden(models.Deterministic("deny", nil), models.Deterministic("grant", nil), "appeal upheld")))
	_, _ = s.ledger.Append(s.ctx, decision("s-1", subject, models.Void("withdrawn")))

	report, err := s.ledger.GenerateReport(s.ctx)
	s.Require().NoError(err)
	s.Equal(5, report.TotalDecisions)
	s.Equal(2, report.AutomaticDecisions)
	s.Equal(1, report.DiscretionaryDecisions)
	s.Equal(1, report.HumanOverrides)
	s.Equal(1, report.VoidDecisions)
	s.True(report.IntegrityVerified)
	s.Equal(baseTime, report.GeneratedAt)

	s.ledger.records[0].RecordHash = "x"
	report, err = s.ledger.GenerateReport(s.ctx)
	s.Require().NoError(err)
	s.False(report.IntegrityVerified)
}

func (s *LedgerSuite) TestExportImport() {
	s.appendN(3)
	data, err := s.ledger.Export()
	s.Require().NoError(err)

	s.Run("round trip", func() {
		fresh := New()
		s.Require().NoError(fresh.Import(s.ctx, data))
		s.Equal(3, fresh.Count())
		s.Equal(s.ledger.LastHash(), fresh.LastHash())
		s.NoError(fresh.VerifyIntegrity(s.ctx))

		_, err := fresh.Append(s.ctx, decision("s-2", uuid.New(), models.Void("x")))
		s.Require().NoError(err)
		s.NoError(fresh.VerifyIntegrity(s.ctx))
	})

	s.Run("non-empty target", func() {
		err := s.ledger.Import(s.ctx, data)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidRecord))
	})

	s.Run("malformed json", func() {
		err := New().Import(s.ctx, []byte("{"))
		s.True(dErrors.HasCode(err, dErrors.CodeSerialization))
	})

	s.Run("broken chain", func() {
		s.ledger.records[1].StatuteID = "edited"
		tampered, err := s.ledger.Export()
		s.Require().NoError(err)

		store := memory.NewInMemoryStore()
		fresh := New(WithAuditEmitter(emitterFunc(store.Append)))
		err = fresh.Import(s.ctx, tampered)
		s.True(dErrors.HasCode(err, dErrors.CodeTamperDetected))
		s.Zero(fresh.Count())

		events, _ := store.ListByAction(s.ctx, audit.EventTamperDetected)
		s.Require().Len(events, 1)
		s.Equal(s.ledger.records[1].ID.String(), events[0].Subject)
	})
}

func (s *LedgerSuite) TestAppendHook() {
	var mu sync.Mutex
	var seen []uuid.UUID
	l := New(
		WithAppendHook(func(_ context.Context, r models.AuditRecord) error {
			mu.Lock()
			defer mu.Unlock()
			seen = append(seen, r.ID)
			return nil
		}),
		WithAppendHook(func(context.Context, models.AuditRecord) error {
			return errors.New("broker down")
		}),
	)

	id, err := l.Append(s.ctx, decision("s-1", uuid.New(), models.Void("x")))
	s.Require().NoError(err)
	s.Equal([]uuid.UUID{id}, seen)
}

func (s *LedgerSuite) TestAlternativeHasher() {
	h, err := hashing.New(hashing.BLAKE2b256)
	s.Require().NoError(err)
	l := New(WithHasher(h))
	for range 3 {
		_, err := l.Append(s.ctx, decision("s-1", uuid.New(), models.Void("x")))
		s.Require().NoError(err)
	}
	s.NoError(l.VerifyIntegrity(s.ctx))

	// A chain sealed with one algorithm does not verify under another.
	data, _ := l.Export()
	s.True(dErrors.HasCode(New().Import(s.ctx, data), dErrors.CodeTamperDetected))
}

type emitterFunc func(context.Context, audit.Event) error

func (f emitterFunc) Emit(ctx context.Context, e audit.Event) error { return f(ctx, e) }
