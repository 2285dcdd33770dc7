// Package handler exposes the periodic-review due list and outcome
// submission over HTTP.
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"recordvault/internal/lifecycle/models"
	"recordvault/internal/platform/middleware"
	"recordvault/internal/review"
	"recordvault/internal/transport/http/shared"
	"recordvault/pkg/domain"
	dErrors "recordvault/pkg/domain-errors"
)

// Service is the scheduler surface this handler needs.
type Service interface {
	DueRecords(ctx context.Context, now time.Time) ([]review.DueRecord, error)
	RecordOutcome(ctx context.Context, ref domain.VersionRef, outcome review.Outcome, actor domain.UserID, notes string) (*models.Record, error)
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.Get("/reviews/due", h.handleDue)
	r.Post("/reviews/{versionRef}/outcome", h.handleOutcome)
}

type dueResponse struct {
	VersionRef string    `json:"version_ref"`
	RecordID   string    `json:"record_id"`
	RecordType string    `json:"record_type"`
	DueSince   time.Time `json:"due_since"`
}

func (h *Handler) handleDue(w http.ResponseWriter, r *http.Request) {
	due, err := h.service.DueRecords(r.Context(), time.Now())
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	resp := make([]dueResponse, 0, len(due))
	for _, d := range due {
		resp = append(resp, dueResponse{
			VersionRef: d.VersionRef.String(),
			RecordID:   d.RecordID.String(),
			RecordType: d.RecordType.String(),
			DueSince:   d.DueSince,
		})
	}
	shared.WriteJSON(w, http.StatusOK, resp)
}

type outcomeRequest struct {
	Outcome string `json:"outcome"`
	Notes   string `json:"notes,omitempty"`
}

type outcomeResponse struct {
	VersionRef string `json:"version_ref"`
	State      string `json:"state"`
	Version    string `json:"version"`
}

func (h *Handler) handleOutcome(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	actor := middleware.GetActorID(ctx)
	if actor.IsNil() {
		shared.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "X-Actor-ID header is required"))
		return
	}
	ref, err := domain.ParseVersionRef(chi.URLParam(r, "versionRef"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	var req outcomeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	record, err := h.service.RecordOutcome(ctx, ref, review.Outcome(req.Outcome), actor, req.Notes)
	if err != nil {
		h.logger.WarnContext(ctx, "review outcome failed",
			"request_id", middleware.GetRequestID(ctx),
			"error", err.Error(),
		)
		shared.WriteError(w, err)
		return
	}

	shared.WriteJSON(w, http.StatusOK, outcomeResponse{
		VersionRef: record.VersionRef.String(),
		State:      string(record.State),
		Version:    record.Version.String(),
	})
}
