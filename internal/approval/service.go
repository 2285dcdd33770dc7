package approval

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"recordvault/internal/platform/metrics"
	"recordvault/internal/reauth"
	"recordvault/internal/registry"
	"recordvault/pkg/domain"
	dErrors "recordvault/pkg/domain-errors"
)

// Store persists assignments and signatures. Signatures are write-once;
// only pending assignments may be discarded.
type Store interface {
	PutAssignments(ctx context.Context, ref domain.VersionRef, assignments []Assignment) error
	Assignments(ctx context.Context, ref domain.VersionRef) ([]Assignment, error)
	DiscardAssignments(ctx context.Context, ref domain.VersionRef) error
	AddSignature(ctx context.Context, sig Signature) error
	Signatures(ctx context.Context, ref domain.VersionRef) ([]Signature, error)
}

// DefinitionSource resolves the lifecycle definition for a record type;
// satisfied by *registry.Registry.
type DefinitionSource interface {
	GraphFor(recordType domain.RecordType) (registry.Definition, error)
}

// ReviewerPair binds one required role to the user who will sign for it.
type ReviewerPair struct {
	Role domain.Role
	User domain.UserID
}

// SignRequest carries everything needed to record one signature.
type SignRequest struct {
	VersionRef domain.VersionRef
	RecordType domain.RecordType
	Signer     domain.UserID
	Meaning    string
	ContentRef domain.ContentRef
	Proof      reauth.Proof
}

type Service struct {
	store       Store
	definitions DefinitionSource
	verifier    reauth.Verifier
	logger      *slog.Logger
	metrics     *metrics.Metrics
	now         func() time.Time
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func New(store Store, definitions DefinitionSource, verifier reauth.Verifier, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("approval store is required")
	}
	if definitions == nil {
		return nil, fmt.Errorf("definition source is required")
	}
	if verifier == nil {
		return nil, fmt.Errorf("reauth verifier is required")
	}

	s := &Service{
		store:       store,
		definitions: definitions,
		verifier:    verifier,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// AssignReviewers opens the gate for one record version. Every role the
// definition requires must be covered exactly once; assignment positions
// follow definition order so sequential mode has a fixed predecessor
// chain.
func (s *Service) AssignReviewers(ctx context.Context, ref domain.VersionRef, recordType domain.RecordType, assignedBy domain.UserID, pairs []ReviewerPair) error {
	def, err := s.definitions.GraphFor(recordType)
	if err != nil {
		return err
	}

	required := requiredRoles(def)
	if len(required) == 0 {
		return dErrors.Newf(dErrors.CodeBadRequest, "record type %s has no gated transitions", recordType)
	}

	existing, err := s.store.Assignments(ctx, ref)
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		return dErrors.New(dErrors.CodeConflict, "reviewers already assigned for this version")
	}

	byRole := make(map[domain.Role]domain.UserID, len(pairs))
	seenUsers := make(map[domain.UserID]struct{}, len(pairs))
	for _, p := range pairs {
		if p.User.IsNil() {
			return dErrors.Newf(dErrors.CodeBadRequest, "role %s has no assignee", p.Role)
		}
		if _, dup := byRole[p.Role]; dup {
			return dErrors.Newf(dErrors.CodeBadRequest, "role %s assigned twice", p.Role)
		}
		if _, dup := seenUsers[p.User]; dup {
			return dErrors.Newf(dErrors.CodeBadRequest, "user %s assigned to more than one role", p.User)
		}
		byRole[p.Role] = p.User
		seenUsers[p.User] = struct{}{}
	}

	assignments := make([]Assignment, 0, len(required))
	now := s.now().UTC()
	for i, role := range required {
		user, ok := byRole[role]
		if !ok {
			return dErrors.Newf(dErrors.CodeBadRequest, "required role %s is not covered", role)
		}
		assignments = append(assignments, Assignment{
			ID:         uuid.New(),
			VersionRef: ref,
			Role:       role,
			AssigneeID: user,
			Position:   i,
			AssignedBy: assignedBy,
			AssignedAt: now,
		})
		delete(byRole, role)
	}
	for role := range byRole {
		return dErrors.Newf(dErrors.CodeBadRequest, "role %s is not required by the %s definition", role, recordType)
	}

	if err := s.store.PutAssignments(ctx, ref, assignments); err != nil {
		return err
	}

	if s.logger != nil {
		s.logger.InfoContext(ctx, "reviewers assigned",
			"version_ref", ref,
			"record_type", recordType,
			"roles", len(assignments),
		)
	}
	return nil
}

// RecordSignature verifies the signer's fresh credential and records one
// signature. Sequential definitions demand that every predecessor role
// has signed first.
func (s *Service) RecordSignature(ctx context.Context, req SignRequest) (Signature, error) {
	if req.Meaning == "" {
		return Signature{}, dErrors.New(dErrors.CodeBadRequest, "signature meaning is required")
	}

	if err := s.verifier.Verify(ctx, req.Signer, req.Proof); err != nil {
		s.observeRejection(ctx, "reauth_failed", req)
		return Signature{}, err
	}

	def, err := s.definitions.GraphFor(req.RecordType)
	if err != nil {
		return Signature{}, err
	}

	assignments, err := s.store.Assignments(ctx, req.VersionRef)
	if err != nil {
		return Signature{}, err
	}
	if len(assignments) == 0 {
		return Signature{}, dErrors.New(dErrors.CodeNotFound, "no approval gate is pending for this version")
	}

	var mine *Assignment
	for i := range assignments {
		if assignments[i].AssigneeID == req.Signer {
			mine = &assignments[i]
			break
		}
	}
	if mine == nil {
		s.observeRejection(ctx, "not_assigned", req)
		return Signature{}, dErrors.New(dErrors.CodeForbidden, "signer is not an assigned reviewer for this version")
	}

	signatures, err := s.store.Signatures(ctx, req.VersionRef)
	if err != nil {
		return Signature{}, err
	}
	signedRoles := make(map[domain.Role]struct{}, len(signatures))
	for _, sig := range signatures {
		if sig.SignerID == req.Signer {
			s.observeRejection(ctx, "duplicate_signer", req)
			return Signature{}, dErrors.New(dErrors.CodeSignatureRejected, "signer has already signed this version")
		}
		signedRoles[sig.Role] = struct{}{}
	}
	if _, done := signedRoles[mine.Role]; done {
		s.observeRejection(ctx, "duplicate_role", req)
		return Signature{}, dErrors.Newf(dErrors.CodeSignatureRejected, "role %s has already signed this version", mine.Role)
	}

	if def.Sequential {
		for _, a := range assignments {
			if a.Position >= mine.Position {
				continue
			}
			if _, done := signedRoles[a.Role]; !done {
				s.observeRejection(ctx, "out_of_order", req)
				return Signature{}, dErrors.Newf(dErrors.CodeOutOfOrder, "role %s must sign before %s", a.Role, mine.Role)
			}
		}
	}

	signedAt := s.now().UTC()
	contentHash := hashContent(req.ContentRef)
	sig := Signature{
		ID:            uuid.New(),
		VersionRef:    req.VersionRef,
		SignerID:      req.Signer,
		Role:          mine.Role,
		Meaning:       req.Meaning,
		ContentHash:   contentHash,
		SignatureHash: hashSignature(req.Signer, contentHash, signedAt),
		SignedAt:      signedAt,
	}
	if err := s.store.AddSignature(ctx, sig); err != nil {
		return Signature{}, err
	}

	if s.metrics != nil {
		s.metrics.SignaturesRecorded.WithLabelValues(string(mine.Role)).Inc()
	}
	if s.logger != nil {
		s.logger.InfoContext(ctx, "signature recorded",
			"version_ref", req.VersionRef,
			"role", mine.Role,
			"meaning", req.Meaning,
		)
	}
	return sig, nil
}

// Status reports which roles are still pending for a version.
func (s *Service) Status(ctx context.Context, ref domain.VersionRef) (Status, error) {
	assignments, err := s.store.Assignments(ctx, ref)
	if err != nil {
		return Status{}, err
	}
	if len(assignments) == 0 {
		return Status{}, dErrors.New(dErrors.CodeNotFound, "no approval gate exists for this version")
	}

	signatures, err := s.store.Signatures(ctx, ref)
	if err != nil {
		return Status{}, err
	}
	signed := make(map[domain.Role]struct{}, len(signatures))
	for _, sig := range signatures {
		signed[sig.Role] = struct{}{}
	}

	var pending []domain.Role
	for _, a := range assignments {
		if _, done := signed[a.Role]; !done {
			pending = append(pending, a.Role)
		}
	}
	return Status{Pending: pending, Satisfied: len(pending) == 0}, nil
}

// Signatures returns the recorded signatures for a version, oldest first.
func (s *Service) Signatures(ctx context.Context, ref domain.VersionRef) ([]Signature, error) {
	return s.store.Signatures(ctx, ref)
}

// Assignments returns the reviewer assignments for a version in position
// order. Empty when no gate is open.
func (s *Service) Assignments(ctx context.Context, ref domain.VersionRef) ([]Assignment, error) {
	return s.store.Assignments(ctx, ref)
}

// DiscardPending drops all open assignments for a version. Called on
// rejection: the next draft is a new version and gets fresh reviewers.
// Recorded signatures are immutable facts and stay put.
func (s *Service) DiscardPending(ctx context.Context, ref domain.VersionRef) error {
	return s.store.DiscardAssignments(ctx, ref)
}

func (s *Service) observeRejection(ctx context.Context, reason string, req SignRequest) {
	if s.metrics != nil {
		s.metrics.SignaturesRejected.Inc()
	}
	if s.logger != nil {
		s.logger.WarnContext(ctx, "signature rejected",
			"version_ref", req.VersionRef,
			"signer", req.Signer,
			"reason", reason,
		)
	}
}

func requiredRoles(def registry.Definition) []domain.Role {
	for _, edge := range def.Edges {
		if len(edge.Roles) > 0 {
			return append([]domain.Role(nil), edge.Roles...)
		}
	}
	return nil
}
