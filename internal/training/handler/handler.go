// Package handler exposes training assignment and acknowledgement over
// HTTP.
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"recordvault/internal/lifecycle/models"
	"recordvault/internal/platform/middleware"
	"recordvault/internal/transport/http/shared"
	"recordvault/pkg/domain"
	dErrors "recordvault/pkg/domain-errors"
)

// Service is the engine surface this handler needs. Acknowledgement goes
// through the engine so the last sign-off can promote the record.
type Service interface {
	AssignTraining(ctx context.Context, ref domain.VersionRef, assignedBy domain.UserID, trainees []domain.UserID) error
	AcknowledgeTraining(ctx context.Context, ref domain.VersionRef, userID domain.UserID) (*models.Record, error)
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.Post("/records/{versionRef}/training", h.handleAssign)
	r.Post("/records/{versionRef}/training/ack", h.handleAcknowledge)
}

type assignTrainingRequest struct {
	Trainees []string `json:"trainees"`
}

func (h *Handler) handleAssign(w http.ResponseWriter, r *http.Request) {
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

	var req assignTrainingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	trainees := make([]domain.UserID, 0, len(req.Trainees))
	for _, raw := range req.Trainees {
		userID, err := domain.ParseUserID(raw)
		if err != nil {
			shared.WriteError(w, err)
			return
		}
		trainees = append(trainees, userID)
	}

	if err := h.service.AssignTraining(ctx, ref, actor, trainees); err != nil {
		shared.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type acknowledgeResponse struct {
	State   string `json:"state"`
	Version string `json:"version"`
}

func (h *Handler) handleAcknowledge(w http.ResponseWriter, r *http.Request) {
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

	record, err := h.service.AcknowledgeTraining(ctx, ref, actor)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, acknowledgeResponse{
		State:   string(record.State),
		Version: record.Version.String(),
	})
}
