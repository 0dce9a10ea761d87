package handler

import (
	"bytes"
	"context"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"lexaudit/internal/attestation/threshold"
	"lexaudit/internal/attestation/witness"
	"lexaudit/internal/ledger"
	"lexaudit/internal/ledger/models"
	"lexaudit/internal/privacy"
	dErrors "lexaudit/pkg/domain-errors"
	"lexaudit/pkg/platform/middleware/requesttime"
	"lexaudit/pkg/platform/signing"
	"lexaudit/pkg/testutil"
)

var recordTime = time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)

// HandlerSuite drives the router with real ledger, attestation and privacy
// components; only the integrity check is faked for the tamper case.
type HandlerSuite struct {
	suite.Suite
	ctx       context.Context
	ledger    *ledger.Ledger
	coord     *threshold.Coordinator
	witnesses *witness.Registry
	budget    *privacy.BudgetTracker
	signers   map[string]*signing.Ed25519Signer
	subject   uuid.UUID
	ids       []uuid.UUID
	router    http.Handler
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) SetupTest() {
	s.ctx = context.Background()
	s.ledger = ledger.New()
	s.subject = uuid.New()
	s.ids = nil
	for i, statute := range []string{"housing", "housing", "tax"} {
		id, err := s.ledger.Append(s.ctx, models.AuditRecord{
			Timestamp: recordTime.Add(time.Duration(i) * time.Hour),
			EventType: models.EventAutomaticDecision,
			Actor:     models.SystemActor("engine"),
			StatuteID: statute,
			SubjectID: s.subject,
			Result:    models.Deterministic("grant", nil),
		})
		s.Require().NoError(err)
		s.ids = append(s.ids, id)
	}

	s.signers = make(map[string]*signing.Ed25519Signer)
	var parties []threshold.Party
	for _, id := range []string{"court", "ombudsman"} {
		signer, pub, err := signing.GenerateEd25519()
		s.Require().NoError(err)
		s.signers[id] = signer
		parties = append(parties, threshold.Party{ID: id, Name: id, PublicKey: pub})
	}
	cfg, err := threshold.NewConfig(parties, 2)
	s.Require().NoError(err)
	s.coord, err = threshold.New(cfg, signing.Ed25519Verifier{})
	s.Require().NoError(err)

	s.witnesses = witness.NewRegistry(witness.WithVerifier(signing.Ed25519Verifier{}))

	s.budget, err = privacy.NewBudgetTracker(1.5)
	s.Require().NoError(err)

	s.router = s.newRouter(s.ledger)
}

func (s *HandlerSuite) newRouter(l Ledger) http.Handler {
	engine, err := privacy.NewEngine(1.0, 0, privacy.WithSource(rand.NewPCG(4, 2)))
	s.Require().NoError(err)
	svc := privacy.NewService(s.ledger, engine, s.budget)

	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	h := New(l, s.coord, s.witnesses, svc, witness.NotarizationPolicy{MinSignatures: 1}, logger)

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(requesttime.Middleware)
	h.Register(r)
	return r
}

func (s *HandlerSuite) get(path string) *httptest.ResponseRecorder {
	return testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, path))
}

func (s *HandlerSuite) TestGetRecord() {
	s.Run("found", func() {
		rr := s.get("/ledger/records/" + s.ids[1].String())
		testutil.AssertStatusOK(s.T(), rr)
		rec := testutil.UnmarshalResponse[models.AuditRecord](s.T(), rr)
		s.Equal(s.ids[1], rec.ID)
		s.NotEmpty(rec.PreviousHash)
	})

	s.Run("unknown id", func() {
		rr := s.get("/ledger/records/" + uuid.NewString())
		testutil.AssertStatusAndError(s.T(), rr, http.StatusNotFound, string(dErrors.CodeNotFound))
	})

	s.Run("malformed id", func() {
		rr := s.get("/ledger/records/not-a-uuid")
		testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, string(dErrors.CodeBadRequest))
	})
}

func (s *HandlerSuite) TestListRecords() {
	s.Run("all records in chain order", func() {
		rr := s.get("/ledger/records")
		testutil.AssertStatusOK(s.T(), rr)
		resp := testutil.UnmarshalResponse[RecordsResponse](s.T(), rr)
		s.Require().Equal(3, resp.Count)
		for i, rec := range resp.Records {
			s.Equal(s.ids[i], rec.ID)
		}
	})

	s.Run("by statute", func() {
		resp := testutil.UnmarshalResponse[RecordsResponse](s.T(), s.get("/ledger/records?statute=housing"))
		s.Equal(2, resp.Count)
	})

	s.Run("by subject", func() {
		resp := testutil.UnmarshalResponse[RecordsResponse](s.T(), s.get("/ledger/records?subject="+s.subject.String()))
		s.Equal(3, resp.Count)
	})

	s.Run("by inclusive time range", func() {
		from := recordTime.Format(time.RFC3339)
		to := recordTime.Add(time.Hour).Format(time.RFC3339)
		resp := testutil.UnmarshalResponse[RecordsResponse](s.T(), s.get("/ledger/records?from="+from+"&to="+to))
		s.Equal(2, resp.Count)
	})

	s.Run("no match is an empty list", func() {
		rr := s.get("/ledger/records?statute=none")
		testutil.AssertStatusOK(s.T(), rr)
		s.Contains(rr.Body.String(), `"records":[]`)
	})

	s.Run("rejects bad filters", func() {
		for _, q := range []string{
			"statute=housing&subject=" + s.subject.String(),
			"from=" + recordTime.Format(time.RFC3339),
			"from=yesterday&to=today",
			"subject=abc",
		} {
			rr := s.get("/ledger/records?" + q)
			testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, string(dErrors.CodeBadRequest))
		}
	})
}

func (s *HandlerSuite) TestVerify() {
	s.Run("intact chain", func() {
		rr := s.get("/ledger/verify")
		testutil.AssertStatusOK(s.T(), rr)
		resp := testutil.UnmarshalResponse[VerifyResponse](s.T(), rr)
		s.True(resp.Valid)
		s.Equal(3, resp.Records)
		s.Equal(s.ledger.LastHash(), resp.LastHash)
	})

	s.Run("tampered chain", func() {
		s.router = s.newRouter(tamperedLedger{Ledger: s.ledger, id: s.ids[1]})
		rr := s.get("/ledger/verify")
		testutil.AssertStatus(s.T(), rr, http.StatusConflict)
		resp := testutil.UnmarshalResponse[VerifyResponse](s.T(), rr)
		s.False(resp.Valid)
		s.Equal(s.ids[1].String(), resp.RecordID)
		s.Require().NotNil(resp.Position)
		s.Equal(1, *resp.Position)
		s.Equal(string(ledger.ReasonHashMismatch), resp.Reason)
	})
}

func (s *HandlerSuite) TestReport() {
	rr := s.get("/ledger/report")
	testutil.AssertStatusOK(s.T(), rr)
	report := testutil.UnmarshalResponse[models.ComplianceReport](s.T(), rr)
	s.Equal(3, report.TotalDecisions)
	s.Equal(3, report.AutomaticDecisions)
	s.True(report.IntegrityVerified)
}

func (s *HandlerSuite) TestThresholdStatus() {
	batch := s.ledger.Records()[:2]
	path := "/attestations/threshold?ids=" + s.ids[0].String() + "," + s.ids[1].String()

	s.Run("unsigned batch", func() {
		rr := s.get(path)
		testutil.AssertStatusAndError(s.T(), rr, http.StatusNotFound, string(dErrors.CodeNotFound))
	})

	s.Run("partially signed", func() {
		_, err := s.coord.Sign(s.ctx, batch, "court", s.signers["court"])
		s.Require().NoError(err)
		resp := testutil.UnmarshalResponse[ThresholdResponse](s.T(), s.get(path))
		s.Equal(1, resp.UniqueSigners)
		s.Equal(2, resp.Threshold)
		s.Nil(resp.CompletedAt)
		s.False(resp.Valid)
	})

	s.Run("complete", func() {
		_, err := s.coord.Sign(s.ctx, batch, "ombudsman", s.signers["ombudsman"])
		s.Require().NoError(err)
		resp := testutil.UnmarshalResponse[ThresholdResponse](s.T(), s.get(path))
		s.Equal(2, resp.UniqueSigners)
		s.NotNil(resp.CompletedAt)
		s.True(resp.Valid)
	})

	s.Run("ids required", func() {
		rr := s.get("/attestations/threshold")
		testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, string(dErrors.CodeBadRequest))
	})

	s.Run("no parties configured", func() {
		h := New(s.ledger, nil, s.witnesses, nil, witness.NotarizationPolicy{}, slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)))
		r := chi.NewRouter()
		h.Register(r)
		rr := testutil.DoRequest(r, testutil.NewRequest(s.T(), http.MethodGet, path))
		testutil.AssertStatusAndError(s.T(), rr, http.StatusNotFound, string(dErrors.CodeNotFound))
	})
}

func (s *HandlerSuite) TestWitnesses() {
	record, err := s.ledger.Get(s.ctx, s.ids[0])
	s.Require().NoError(err)

	s.Run("no witnesses yet", func() {
		resp := testutil.UnmarshalResponse[RecordWitnessesResponse](s.T(), s.get("/attestations/witness/"+s.ids[0].String()))
		s.Empty(resp.Signatures)
		s.True(resp.Verified)
		s.False(resp.Notarized)
	})

	signer, pub, err := signing.GenerateEd25519()
	s.Require().NoError(err)
	_, err = s.witnesses.Sign(s.ctx, record, witness.Witness{ID: "notary", Name: "Notary", PublicKey: pub}, signer, nil)
	s.Require().NoError(err)

	s.Run("signed record is notarized", func() {
		resp := testutil.UnmarshalResponse[RecordWitnessesResponse](s.T(), s.get("/attestations/witness/"+s.ids[0].String()))
		s.Len(resp.Signatures, 1)
		s.True(resp.Verified)
		s.True(resp.Notarized)
	})

	s.Run("by witness", func() {
		resp := testutil.UnmarshalResponse[WitnessSignaturesResponse](s.T(), s.get("/attestations/witness/by-witness/notary"))
		s.Equal(1, resp.Count)
		s.Equal(s.ids[0], resp.Signatures[0].RecordID)
	})

	s.Run("unknown record", func() {
		rr := s.get("/attestations/witness/" + uuid.NewString())
		testutil.AssertStatusAndError(s.T(), rr, http.StatusNotFound, string(dErrors.CodeNotFound))
	})
}

func (s *HandlerSuite) TestHistogramRejectsUnknownKey() {
	rr := s.get("/privacy/histogram?by=subject")
	testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, string(dErrors.CodeBadRequest))
	s.Empty(s.budget.History())
}

func (s *HandlerSuite) TestCountRejectsUnknownEventType() {
	rr := s.get("/privacy/count?event_type=coup")
	testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, string(dErrors.CodeBadRequest))
}

func (s *HandlerSuite) TestPrivacyBudgetExhaustion() {
	t := s.T()
	testutil.Given(t, "a budget of 1.5 and queries costing 1.0", func(t *testing.T) {
		testutil.When(t, "the first count is requested", func(t *testing.T) {
			rr := s.get("/privacy/count?statute=housing")
			require.Equal(t, http.StatusOK, rr.Code)

			testutil.Then(t, "a noisy value is released without the true count", func(t *testing.T) {
				assert.NotContains(t, rr.Body.String(), "true_value")
				resp := testutil.UnmarshalResponse[NoisyValueResponse](t, rr)
				assert.Equal(t, 1.0, resp.Epsilon)
				assert.Equal(t, privacy.MechanismLaplace, resp.Mechanism)
			})
		})

		testutil.When(t, "a second count is requested", func(t *testing.T) {
			rr := s.get("/privacy/count?event_type=automatic_decision")

			testutil.Then(t, "it is refused with budget_exceeded", func(t *testing.T) {
				testutil.AssertStatusAndError(t, rr, http.StatusForbidden, string(dErrors.CodeBudgetExceeded))
			})
		})

		testutil.Then(t, "the budget shows one charge", func(t *testing.T) {
			rr := s.get("/privacy/budget")
			testutil.AssertStatusOK(t, rr)
			resp := testutil.UnmarshalResponse[BudgetResponse](t, rr)
			assert.Equal(t, 1.5, resp.TotalBudget)
			assert.Equal(t, 1.0, resp.Consumed)
			assert.Equal(t, 0.5, resp.Remaining)
			require.Len(t, resp.Queries, 1)
			assert.True(t, strings.Contains(resp.Queries[0].Description, "statute=housing"))
		})
	})
}

// tamperedLedger reports a hash mismatch on id regardless of the chain.
type tamperedLedger struct {
	*ledger.Ledger
	id uuid.UUID
}

func (l tamperedLedger) VerifyIntegrity(context.Context) error {
	return dErrors.Wrap(
		&ledger.TamperError{RecordID: l.id, Position: 1, Reason: ledger.ReasonHashMismatch},
		dErrors.CodeTamperDetected,
		"integrity violation",
	)
}
