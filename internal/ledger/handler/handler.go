// Package handler accepts decision records over HTTP and appends them to the
// ledger.
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"lexaudit/internal/ledger/models"
	dErrors "lexaudit/pkg/domain-errors"
	"lexaudit/pkg/platform/httputil"
	"lexaudit/pkg/requestcontext"
)

const maxBodyBytes = 1 << 20

// Ledger is the write side of the hash chain.
type Ledger interface {
	Append(ctx context.Context, record models.AuditRecord) (uuid.UUID, error)
	Get(ctx context.Context, id uuid.UUID) (models.AuditRecord, error)
}

// Handler serves the ledger ingestion endpoint.
type Handler struct {
	ledger Ledger
	logger *slog.Logger
}

func New(l Ledger, logger *slog.Logger) *Handler {
	return &Handler{ledger: l, logger: logger}
}

// Register mounts the ingestion routes on the router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/ledger/records", h.HandleAppend)
}

// HandleAppend handles POST /ledger/records. The sealed record is returned
// with 201 and a Location header.
func (h *Handler) HandleAppend(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	var req AppendRecordRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		h.logger.WarnContext(ctx, "invalid append request",
			"request_id", requestID,
			"error", err.Error(),
		)
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	if err := req.Validate(); err != nil {
		httputil.WriteError(w, err)
		return
	}

	id, err := h.ledger.Append(ctx, req.ToRecord())
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeInvalidRecord) {
			h.logger.WarnContext(ctx, "record rejected",
				"request_id", requestID,
				"error", err.Error(),
			)
		} else {
			h.logger.ErrorContext(ctx, "failed to append record",
				"request_id", requestID,
				"error", err.Error(),
			)
		}
		httputil.WriteError(w, err)
		return
	}

	record, err := h.ledger.Get(ctx, id)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	h.logger.InfoContext(ctx, "record appended",
		"request_id", requestID,
		"record_id", id,
		"statute_id", record.StatuteID,
	)
	w.Header().Set("Location", "/ledger/records/"+id.String())
	httputil.WriteJSON(w, http.StatusCreated, record)
}
