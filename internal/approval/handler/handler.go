// Package handler exposes reviewer assignment, signature recording and
// gate status over HTTP.
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"recordvault/internal/approval"
	"recordvault/internal/lifecycle"
	"recordvault/internal/platform/middleware"
	"recordvault/internal/reauth"
	"recordvault/internal/transport/http/shared"
	"recordvault/pkg/domain"
	dErrors "recordvault/pkg/domain-errors"
)

// Service is the engine surface this handler needs. Signatures go
// through the engine so the final signature and the approval commit stay
// in one transaction.
type Service interface {
	AssignReviewers(ctx context.Context, ref domain.VersionRef, assignedBy domain.UserID, pairs []approval.ReviewerPair) error
	RecordSignature(ctx context.Context, req lifecycle.SignatureRequest) (*lifecycle.SignatureResult, error)
}

// StatusSource answers gate-progress queries.
type StatusSource interface {
	Status(ctx context.Context, ref domain.VersionRef) (approval.Status, error)
}

type Handler struct {
	service Service
	status  StatusSource
	logger  *slog.Logger
}

func New(service Service, status StatusSource, logger *slog.Logger) *Handler {
	return &Handler{service: service, status: status, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.Post("/records/{versionRef}/reviewers", h.handleAssignReviewers)
	r.Post("/records/{versionRef}/signatures", h.handleSign)
	r.Get("/records/{versionRef}/approval", h.handleStatus)
}

type assignRequest struct {
	Reviewers []struct {
		Role   string `json:"role"`
		UserID string `json:"user_id"`
	} `json:"reviewers"`
}

func (h *Handler) handleAssignReviewers(w http.ResponseWriter, r *http.Request) {
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

	var req assignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	pairs := make([]approval.ReviewerPair, 0, len(req.Reviewers))
	for _, reviewer := range req.Reviewers {
		userID, err := domain.ParseUserID(reviewer.UserID)
		if err != nil {
			shared.WriteError(w, err)
			return
		}
		pairs = append(pairs, approval.ReviewerPair{
			Role: domain.Role(reviewer.Role),
			User: userID,
		})
	}

	if err := h.service.AssignReviewers(ctx, ref, actor, pairs); err != nil {
		shared.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type signRequest struct {
	Meaning  string `json:"meaning"`
	Token    string `json:"reauth_token,omitempty"`
	Password string `json:"password,omitempty"`
}

type signResponse struct {
	SignatureHash string     `json:"signature_hash"`
	Role          string     `json:"role"`
	SignedAt      time.Time  `json:"signed_at"`
	GateSatisfied bool       `json:"gate_satisfied"`
	NewState      string     `json:"new_state,omitempty"`
	NewVersion    string     `json:"new_version,omitempty"`
	NewVersionRef string     `json:"new_version_ref,omitempty"`
	ApprovedAt    *time.Time `json:"approved_at,omitempty"`
}

func (h *Handler) handleSign(w http.ResponseWriter, r *http.Request) {
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

	var req signRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	result, err := h.service.RecordSignature(ctx, lifecycle.SignatureRequest{
		VersionRef: ref,
		Signer:     actor,
		Meaning:    req.Meaning,
		Proof:      reauth.Proof{Token: req.Token, Password: req.Password},
	})
	if err != nil {
		h.logger.WarnContext(ctx, "signature attempt failed",
			"request_id", middleware.GetRequestID(ctx),
			"error", err.Error(),
		)
		shared.WriteError(w, err)
		return
	}

	resp := signResponse{
		SignatureHash: result.Signature.SignatureHash,
		Role:          string(result.Signature.Role),
		SignedAt:      result.Signature.SignedAt,
		GateSatisfied: result.Approved != nil,
	}
	if result.Approved != nil {
		resp.NewState = string(result.Approved.State)
		resp.NewVersion = result.Approved.Version.String()
		resp.NewVersionRef = result.Approved.VersionRef.String()
		approvedAt := result.Approved.CreatedAt
		resp.ApprovedAt = &approvedAt
	}
	shared.WriteJSON(w, http.StatusCreated, resp)
}

type statusResponse struct {
	Pending   []string `json:"pending"`
	Satisfied bool     `json:"satisfied"`
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	ref, err := domain.ParseVersionRef(chi.URLParam(r, "versionRef"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	status, err := h.status.Status(r.Context(), ref)
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	resp := statusResponse{Pending: make([]string, 0, len(status.Pending)), Satisfied: status.Satisfied}
	for _, role := range status.Pending {
		resp.Pending = append(resp.Pending, string(role))
	}
	shared.WriteJSON(w, http.StatusOK, resp)
}
