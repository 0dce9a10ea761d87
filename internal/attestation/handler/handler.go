// Package handler accepts party and witness signatures produced outside the
// process. Signatures are checked against the stored records before they are
// registered.
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"lexaudit/internal/attestation/threshold"
	"lexaudit/internal/attestation/witness"
	"lexaudit/internal/ledger/models"
	dErrors "lexaudit/pkg/domain-errors"
	"lexaudit/pkg/platform/httputil"
	"lexaudit/pkg/requestcontext"
)

const maxBodyBytes = 1 << 20

// Records looks up sealed ledger records.
type Records interface {
	Get(ctx context.Context, id uuid.UUID) (models.AuditRecord, error)
}

// Threshold accepts party signatures over batch fingerprints.
type Threshold interface {
	Submit(ctx context.Context, records []models.AuditRecord, partyID, signatureHex string) (threshold.MultiPartySignature, error)
	Threshold() int
}

// Witnesses accepts witness signatures over record hashes.
type Witnesses interface {
	Submit(ctx context.Context, record models.AuditRecord, sig witness.WitnessSignature) (witness.WitnessSignature, error)
}

type Handler struct {
	records   Records
	threshold Threshold
	witnesses Witnesses
	logger    *slog.Logger
}

// New constructs the handler. t may be nil when no signing parties are
// configured.
func New(records Records, t Threshold, w Witnesses, logger *slog.Logger) *Handler {
	return &Handler{records: records, threshold: t, witnesses: w, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.Post("/attestations/threshold/sign", h.HandleThresholdSign)
	r.Post("/attestations/witness", h.HandleWitnessSign)
}

// HandleThresholdSign handles POST /attestations/threshold/sign.
func (h *Handler) HandleThresholdSign(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	if h.threshold == nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeNotFound, "threshold signing is not configured"))
		return
	}

	var req ThresholdSignRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := req.Validate(); err != nil {
		httputil.WriteError(w, err)
		return
	}

	batch := make([]models.AuditRecord, 0, len(req.RecordIDs))
	for _, id := range req.RecordIDs {
		record, err := h.records.Get(ctx, id)
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		batch = append(batch, record)
	}

	sig, err := h.threshold.Submit(ctx, batch, req.PartyID, req.Signature)
	if err != nil {
		h.logger.WarnContext(ctx, "party signature rejected",
			"request_id", requestID,
			"party_id", req.PartyID,
			"error", err.Error(),
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, ThresholdSignResponse{
		Fingerprint:   sig.DataHash,
		Threshold:     h.threshold.Threshold(),
		UniqueSigners: sig.UniqueSigners(),
		Complete:      sig.IsComplete(),
		CompletedAt:   sig.CompletedAt,
	})
}

// HandleWitnessSign handles POST /attestations/witness.
func (h *Handler) HandleWitnessSign(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	var req WitnessSignRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := req.Validate(); err != nil {
		httputil.WriteError(w, err)
		return
	}
	record, err := h.records.Get(ctx, req.RecordID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	sig, err := h.witnesses.Submit(ctx, record, req.ToSignature())
	if err != nil {
		h.logger.WarnContext(ctx, "witness signature rejected",
			"request_id", requestID,
			"witness_id", req.WitnessID,
			"record_id", req.RecordID,
			"error", err.Error(),
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, sig)
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v); err != nil {
		h.logger.WarnContext(r.Context(), "invalid attestation request",
			"request_id", requestcontext.RequestID(r.Context()),
			"error", err.Error(),
		)
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return false
	}
	return true
}

// ThresholdSignResponse reports the batch's progress after a signature.
type ThresholdSignResponse struct {
	Fingerprint   string     `json:"fingerprint"`
	Threshold     int        `json:"threshold"`
	UniqueSigners int        `json:"unique_signers"`
	Complete      bool       `json:"complete"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
}
