// Package handler exposes record creation, transitions, reads and the
// family history query over HTTP. It is a thin translation layer; every
// rule lives in the engine.
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"recordvault/internal/lifecycle"
	"recordvault/internal/lifecycle/models"
	"recordvault/internal/platform/middleware"
	"recordvault/internal/transport/http/shared"
	"recordvault/internal/version"
	"recordvault/pkg/domain"
	dErrors "recordvault/pkg/domain-errors"
)

// Service is the engine surface this handler needs.
type Service interface {
	Create(ctx context.Context, req lifecycle.CreateRequest) (*models.Record, error)
	RequestTransition(ctx context.Context, req lifecycle.TransitionRequest) (*models.Record, error)
	Archive(ctx context.Context, ref domain.VersionRef, actor domain.UserID) (*models.Record, error)
	Read(ctx context.Context, ref domain.VersionRef, reader domain.UserID) (*models.Record, error)
	ReadVersion(ctx context.Context, recordID domain.RecordID, label version.Label, reader domain.UserID) (*models.Record, error)
	History(ctx context.Context, recordID domain.RecordID) (*lifecycle.History, error)
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.Post("/records", h.handleCreate)
	r.Get("/records/{versionRef}", h.handleRead)
	r.Post("/records/{versionRef}/transitions", h.handleTransition)
	r.Post("/records/{versionRef}/archive", h.handleArchive)
	// Family-scoped: the key is the display identifier, not a version ref.
	r.Get("/families/{recordId}/history", h.handleHistory)
	r.Get("/families/{recordId}/versions/{version}", h.handleReadVersion)
}

type createRequest struct {
	RecordType           string     `json:"record_type"`
	ContentRef           string     `json:"content_ref"`
	ScheduledEffectiveAt *time.Time `json:"scheduled_effective_at,omitempty"`
}

type recordResponse struct {
	VersionRef string     `json:"version_ref"`
	RecordID   string     `json:"record_id"`
	RecordType string     `json:"record_type"`
	Version    string     `json:"version"`
	State      string     `json:"state"`
	OwnerID    string     `json:"owner_id"`
	ContentRef string     `json:"content_ref"`
	Effective  *time.Time `json:"effective_at,omitempty"`
	Retired    *time.Time `json:"retired_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

func toRecordResponse(r *models.Record) recordResponse {
	return recordResponse{
		VersionRef: r.VersionRef.String(),
		RecordID:   r.RecordID.String(),
		RecordType: r.RecordType.String(),
		Version:    r.Version.String(),
		State:      string(r.State),
		OwnerID:    r.OwnerID.String(),
		ContentRef: string(r.ContentRef),
		Effective:  r.EffectiveAt,
		Retired:    r.RetiredAt,
		CreatedAt:  r.CreatedAt,
		UpdatedAt:  r.UpdatedAt,
	}
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	actor := middleware.GetActorID(ctx)
	if actor.IsNil() {
		shared.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "X-Actor-ID header is required"))
		return
	}

	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	recordType, err := domain.ParseRecordType(req.RecordType)
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	record, err := h.service.Create(ctx, lifecycle.CreateRequest{
		RecordType:           recordType,
		OwnerID:              actor,
		ContentRef:           domain.ContentRef(req.ContentRef),
		ScheduledEffectiveAt: req.ScheduledEffectiveAt,
	})
	if err != nil {
		h.logger.WarnContext(ctx, "record creation failed",
			"request_id", middleware.GetRequestID(ctx),
			"error", err.Error(),
		)
		shared.WriteError(w, err)
		return
	}

	shared.WriteJSON(w, http.StatusCreated, toRecordResponse(record))
}

type transitionRequest struct {
	ToState   string `json:"to_state"`
	Rationale string `json:"rationale,omitempty"`
}

func (h *Handler) handleTransition(w http.ResponseWriter, r *http.Request) {
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

	var req transitionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	record, err := h.service.RequestTransition(ctx, lifecycle.TransitionRequest{
		VersionRef: ref,
		ToState:    models.State(req.ToState),
		ActorID:    actor,
		Rationale:  req.Rationale,
	})
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	shared.WriteJSON(w, http.StatusOK, toRecordResponse(record))
}

func (h *Handler) handleArchive(w http.ResponseWriter, r *http.Request) {
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

	record, err := h.service.Archive(ctx, ref, actor)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, toRecordResponse(record))
}

func (h *Handler) handleRead(w http.ResponseWriter, r *http.Request) {
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

	record, err := h.service.Read(ctx, ref, actor)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, toRecordResponse(record))
}

// handleReadVersion addresses a family member by its display label
// (e.g. 1.0) instead of the opaque version ref.
func (h *Handler) handleReadVersion(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	actor := middleware.GetActorID(ctx)
	if actor.IsNil() {
		shared.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "X-Actor-ID header is required"))
		return
	}
	recordID, err := domain.ParseRecordID(chi.URLParam(r, "recordId"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	label, err := version.Parse(chi.URLParam(r, "version"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	record, err := h.service.ReadVersion(ctx, recordID, label, actor)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, toRecordResponse(record))
}

type historyResponse struct {
	Records     []recordResponse     `json:"records"`
	Transitions []transitionResponse `json:"transitions"`
	Signatures  []signatureResponse  `json:"signatures"`
	AuditTrail  []auditResponse      `json:"audit_trail"`
}

type transitionResponse struct {
	VersionRef   string    `json:"version_ref"`
	FromState    string    `json:"from_state"`
	ToState      string    `json:"to_state"`
	ActorID      string    `json:"actor_id"`
	Rationale    string    `json:"rationale,omitempty"`
	SignatureRef string    `json:"signature_ref,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

type signatureResponse struct {
	VersionRef    string    `json:"version_ref"`
	SignerID      string    `json:"signer_id"`
	Role          string    `json:"role"`
	Meaning       string    `json:"meaning"`
	ContentHash   string    `json:"content_hash"`
	SignatureHash string    `json:"signature_hash"`
	SignedAt      time.Time `json:"signed_at"`
}

type auditResponse struct {
	VersionRef    string          `json:"version_ref"`
	ActorID       string          `json:"actor_id"`
	EventType     string          `json:"event_type"`
	Payload       json.RawMessage `json:"payload,omitempty"`
	PayloadDigest string          `json:"payload_digest"`
	Timestamp     time.Time       `json:"timestamp"`
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	recordID, err := domain.ParseRecordID(chi.URLParam(r, "recordId"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	history, err := h.service.History(ctx, recordID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	resp := historyResponse{
		Records:     make([]recordResponse, 0, len(history.Records)),
		Transitions: make([]transitionResponse, 0, len(history.Transitions)),
		Signatures:  make([]signatureResponse, 0, len(history.Signatures)),
		AuditTrail:  make([]auditResponse, 0, len(history.AuditEntries)),
	}
	for _, record := range history.Records {
		resp.Records = append(resp.Records, toRecordResponse(record))
	}
	for _, t := range history.Transitions {
		tr := transitionResponse{
			VersionRef: t.VersionRef.String(),
			FromState:  string(t.FromState),
			ToState:    string(t.ToState),
			ActorID:    t.ActorID.String(),
			Rationale:  t.Rationale,
			Timestamp:  t.Timestamp,
		}
		if t.SignatureRef != nil {
			tr.SignatureRef = t.SignatureRef.String()
		}
		resp.Transitions = append(resp.Transitions, tr)
	}
	for _, sig := range history.Signatures {
		resp.Signatures = append(resp.Signatures, signatureResponse{
			VersionRef:    sig.VersionRef.String(),
			SignerID:      sig.SignerID.String(),
			Role:          string(sig.Role),
			Meaning:       sig.Meaning,
			ContentHash:   sig.ContentHash,
			SignatureHash: sig.SignatureHash,
			SignedAt:      sig.SignedAt,
		})
	}
	for _, e := range history.AuditEntries {
		resp.AuditTrail = append(resp.AuditTrail, auditResponse{
			VersionRef:    e.VersionRef.String(),
			ActorID:       e.ActorID.String(),
			EventType:     string(e.EventType),
			Payload:       e.Payload,
			PayloadDigest: e.PayloadDigest,
			Timestamp:     e.Timestamp,
		})
	}

	shared.WriteJSON(w, http.StatusOK, resp)
}
