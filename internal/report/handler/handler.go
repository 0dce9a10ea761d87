// Package handler exposes the ledger, its attestations and the privacy layer
// over a read-only HTTP surface for dashboards and timeline tools.
package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"lexaudit/internal/attestation/threshold"
	"lexaudit/internal/attestation/witness"
	"lexaudit/internal/ledger"
	"lexaudit/internal/ledger/models"
	"lexaudit/internal/privacy"
	dErrors "lexaudit/pkg/domain-errors"
	"lexaudit/pkg/platform/httputil"
	"lexaudit/pkg/requestcontext"
)

// Ledger is the read side of the hash chain.
type Ledger interface {
	Get(ctx context.Context, id uuid.UUID) (models.AuditRecord, error)
	QueryByStatute(ctx context.Context, statuteID string) []models.AuditRecord
	QueryBySubject(ctx context.Context, subjectID uuid.UUID) []models.AuditRecord
	QueryByTimeRange(ctx context.Context, from, to time.Time) []models.AuditRecord
	Records() []models.AuditRecord
	Count() int
	LastHash() string
	VerifyIntegrity(ctx context.Context) error
	GenerateReport(ctx context.Context) (models.ComplianceReport, error)
}

// Threshold reports multi-party signature progress for a batch.
type Threshold interface {
	Status(records []models.AuditRecord) (threshold.MultiPartySignature, error)
	Verify(ctx context.Context, records []models.AuditRecord) (bool, error)
	Threshold() int
}

// Witnesses reads witness attestations.
type Witnesses interface {
	GetSignatures(recordID uuid.UUID) []witness.WitnessSignature
	GetWitnessSignatures(witnessID string) []witness.WitnessSignature
	VerifyRecord(ctx context.Context, record models.AuditRecord) bool
}

// Privacy answers budgeted noisy queries.
type Privacy interface {
	Count(ctx context.Context, pred privacy.Predicate, description string) (privacy.DpQueryResult, error)
	Histogram(ctx context.Context, key privacy.KeyFunc, description string) (privacy.HistogramResult, error)
	Budget() *privacy.BudgetTracker
}

// Handler serves the read-only report endpoints.
type Handler struct {
	ledger    Ledger
	threshold Threshold
	witnesses Witnesses
	privacy   Privacy
	policy    witness.NotarizationPolicy
	logger    *slog.Logger
}

// New constructs the report handler. t may be nil when no signing parties
// are configured. policy is the acceptance rule applied
// when reporting whether a record is notarized.
func New(l Ledger, t Threshold, w Witnesses, p Privacy, policy witness.NotarizationPolicy, logger *slog.Logger) *Handler {
	return &Handler{
		ledger:    l,
		threshold: t,
		witnesses: w,
		privacy:   p,
		policy:    policy,
		logger:    logger,
	}
}

// Register mounts the report endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Get("/ledger/records", h.HandleListRecords)
	r.Get("/ledger/records/{id}", h.HandleGetRecord)
	r.Get("/ledger/verify", h.HandleVerify)
	r.Get("/ledger/report", h.HandleReport)

	r.Get("/attestations/threshold", h.HandleThresholdStatus)
	r.Get("/attestations/witness/{recordID}", h.HandleRecordWitnesses)
	r.Get("/attestations/witness/by-witness/{witnessID}", h.HandleWitnessSignatures)

	r.Get("/privacy/budget", h.HandleBudget)
	r.Get("/privacy/count", h.HandleCount)
	r.Get("/privacy/histogram", h.HandleHistogram)
}

// HandleGetRecord handles GET /ledger/records/{id}.
func (h *Handler) HandleGetRecord(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := parseUUID(chi.URLParam(r, "id"), "id")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	record, err := h.ledger.Get(ctx, id)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, record)
}

// HandleListRecords handles GET /ledger/records. At most one of statute,
// subject or the from/to range may be given; with none, every record is
// returned in chain order.
func (h *Handler) HandleListRecords(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q, err := parseRecordQuery(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	var records []models.AuditRecord
	switch {
	case q.Statute != "":
		records = h.ledger.QueryByStatute(ctx, q.Statute)
	case q.Subject != uuid.Nil:
		records = h.ledger.QueryBySubject(ctx, q.Subject)
	case q.HasRange:
		records = h.ledger.QueryByTimeRange(ctx, q.From, q.To)
	default:
		records = h.ledger.Records()
	}
	httputil.WriteJSON(w, http.StatusOK, RecordsResponse{Count: len(records), Records: nonNil(records)})
}

// HandleVerify handles GET /ledger/verify. A broken chain is reported with
// 409 and the first offending record.
func (h *Handler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	err := h.ledger.VerifyIntegrity(ctx)
	if err == nil {
		httputil.WriteJSON(w, http.StatusOK, VerifyResponse{
			Valid:    true,
			Records:  h.ledger.Count(),
			LastHash: h.ledger.LastHash(),
		})
		return
	}

	var te *ledger.TamperError
	if errors.As(err, &te) {
		h.logger.ErrorContext(ctx, "integrity check failed",
			"request_id", requestID,
			"record_id", te.RecordID,
			"reason", te.Reason,
		)
		httputil.WriteJSON(w, http.StatusConflict, VerifyResponse{
			Valid:    false,
			Records:  h.ledger.Count(),
			RecordID: te.RecordID.String(),
			Position: &te.Position,
			Reason:   string(te.Reason),
		})
		return
	}
	h.logger.ErrorContext(ctx, "integrity check errored", "request_id", requestID, "error", err)
	httputil.WriteError(w, err)
}

// HandleReport handles GET /ledger/report.
func (h *Handler) HandleReport(w http.ResponseWriter, r *http.Request) {
	report, err := h.ledger.GenerateReport(r.Context())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, report)
}

// HandleThresholdStatus handles GET /attestations/threshold?ids=a,b,c. The
// batch is the listed records in the given order.
func (h *Handler) HandleThresholdStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.threshold == nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeNotFound, "threshold signing is not configured"))
		return
	}
	raw := r.URL.Query().Get("ids")
	if raw == "" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "ids is required"))
		return
	}

	var batch []models.AuditRecord
	for _, part := range strings.Split(raw, ",") {
		id, err := parseUUID(strings.TrimSpace(part), "ids")
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		record, err := h.ledger.Get(ctx, id)
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		batch = append(batch, record)
	}

	sig, err := h.threshold.Status(batch)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	valid, err := h.threshold.Verify(ctx, batch)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromMultiPartySignature(sig, h.threshold.Threshold(), valid))
}

// HandleRecordWitnesses handles GET /attestations/witness/{recordID}.
func (h *Handler) HandleRecordWitnesses(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := parseUUID(chi.URLParam(r, "recordID"), "recordID")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	record, err := h.ledger.Get(ctx, id)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	sigs := h.witnesses.GetSignatures(id)
	verified := h.witnesses.VerifyRecord(ctx, record)
	httputil.WriteJSON(w, http.StatusOK, RecordWitnessesResponse{
		RecordID:   id.String(),
		Signatures: nonNil(sigs),
		Verified:   verified,
		Notarized:  verified && h.policy.IsSatisfiedAt(sigs, requestcontext.Now(ctx)),
	})
}

// HandleWitnessSignatures handles GET /attestations/witness/by-witness/{witnessID}.
func (h *Handler) HandleWitnessSignatures(w http.ResponseWriter, r *http.Request) {
	witnessID := chi.URLParam(r, "witnessID")
	sigs := h.witnesses.GetWitnessSignatures(witnessID)
	httputil.WriteJSON(w, http.StatusOK, WitnessSignaturesResponse{
		WitnessID:  witnessID,
		Count:      len(sigs),
		Signatures: nonNil(sigs),
	})
}

// HandleBudget handles GET /privacy/budget.
func (h *Handler) HandleBudget(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, FromBudgetStatus(h.privacy.Budget().Status()))
}

// HandleCount handles GET /privacy/count?statute=&event_type=. Each call is
// charged against the privacy budget.
func (h *Handler) HandleCount(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	pred, description, err := parseCountQuery(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	result, err := h.privacy.Count(ctx, pred, description)
	if err != nil {
		h.logger.WarnContext(ctx, "noisy count refused",
			"request_id", requestcontext.RequestID(ctx),
			"query", description,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromQueryResult(result))
}

// HandleHistogram handles GET /privacy/histogram?by=statute|event_type|result.
func (h *Handler) HandleHistogram(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	by := r.URL.Query().Get("by")
	key, ok := histogramKeys[by]
	if !ok {
		httputil.WriteError(w, dErrors.Newf(dErrors.CodeBadRequest, "by must be one of statute, event_type, result; got %q", by))
		return
	}
	result, err := h.privacy.Histogram(ctx, key, "by "+by)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromHistogram(result))
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
