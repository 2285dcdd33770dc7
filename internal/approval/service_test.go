package approval

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"recordvault/internal/reauth"
	"recordvault/internal/registry"
	"recordvault/pkg/domain"
	dErrors "recordvault/pkg/domain-errors"
)

const testSigningKey = "approval-suite-signing-key"

type ApprovalSuite struct {
	suite.Suite
	store    *InMemoryStore
	tokens   *reauth.TokenVerifier
	service  *Service
	ref      domain.VersionRef
	owner    domain.UserID
	quality  domain.UserID
	regulate domain.UserID
	final    domain.UserID
}

func TestApprovalSuite(t *testing.T) {
	suite.Run(t, new(ApprovalSuite))
}

func (s *ApprovalSuite) SetupTest() {
	reg, err := registry.New(registry.Defaults()...)
	s.Require().NoError(err)

	s.store = NewMemoryStore()
	s.tokens = reauth.NewTokenVerifier(testSigningKey, 2*time.Minute)

	s.service, err = New(s.store, reg, s.tokens)
	s.Require().NoError(err)

	s.ref = domain.NewVersionRef()
	s.owner = domain.NewUserID()
	s.quality = domain.NewUserID()
	s.regulate = domain.NewUserID()
	s.final = domain.NewUserID()
}

func (s *ApprovalSuite) assignSOP() {
	err := s.service.AssignReviewers(context.Background(), s.ref, "sop", s.owner, []ReviewerPair{
		{Role: registry.RoleQualityReviewer, User: s.quality},
		{Role: registry.RoleRegulatoryReviewer, User: s.regulate},
		{Role: registry.RoleFinalApprover, User: s.final},
	})
	s.Require().NoError(err)
}

func (s *ApprovalSuite) proofFor(user domain.UserID) reauth.Proof {
	token, err := s.tokens.Issue(user)
	s.Require().NoError(err)
	return reauth.Proof{Token: token}
}

func (s *ApprovalSuite) sign(user domain.UserID, meaning string) (Signature, error) {
	return s.service.RecordSignature(context.Background(), SignRequest{
		VersionRef: s.ref,
		RecordType: "sop",
		Signer:     user,
		Meaning:    meaning,
		ContentRef: "s3://vault/sop-0001/v0.2.pdf",
		Proof:      s.proofFor(user),
	})
}

func (s *ApprovalSuite) TestAssignReviewers() {
	ctx := context.Background()

	s.Run("all required roles covered succeeds", func() {
		s.assignSOP()

		status, err := s.service.Status(ctx, s.ref)
		s.Require().NoError(err)
		s.False(status.Satisfied)
		s.Len(status.Pending, 3)
	})

	s.Run("double assignment conflicts", func() {
		err := s.service.AssignReviewers(ctx, s.ref, "sop", s.owner, []ReviewerPair{
			{Role: registry.RoleQualityReviewer, User: s.quality},
			{Role: registry.RoleRegulatoryReviewer, User: s.regulate},
			{Role: registry.RoleFinalApprover, User: s.final},
		})
		s.True(dErrors.Is(err, dErrors.CodeConflict))
	})

	s.Run("missing required role fails", func() {
		err := s.service.AssignReviewers(ctx, domain.NewVersionRef(), "sop", s.owner, []ReviewerPair{
			{Role: registry.RoleQualityReviewer, User: s.quality},
		})
		s.True(dErrors.Is(err, dErrors.CodeBadRequest))
	})

	s.Run("one user cannot hold two roles", func() {
		err := s.service.AssignReviewers(ctx, domain.NewVersionRef(), "sop", s.owner, []ReviewerPair{
			{Role: registry.RoleQualityReviewer, User: s.quality},
			{Role: registry.RoleRegulatoryReviewer, User: s.quality},
			{Role: registry.RoleFinalApprover, User: s.final},
		})
		s.True(dErrors.Is(err, dErrors.CodeBadRequest))
	})

	s.Run("unknown record type fails", func() {
		err := s.service.AssignReviewers(ctx, domain.NewVersionRef(), "nope", s.owner, nil)
		s.True(dErrors.Is(err, dErrors.CodeNotFound))
	})
}

func (s *ApprovalSuite) TestRecordSignature() {
	ctx := context.Background()
	s.assignSOP()

	s.Run("assigned reviewer with fresh proof signs", func() {
		sig, err := s.sign(s.quality, "quality review complete")
		s.Require().NoError(err)
		s.Equal(registry.RoleQualityReviewer, sig.Role)
		s.NotEmpty(sig.ContentHash)
		s.NotEmpty(sig.SignatureHash)
		s.NotEqual(sig.ContentHash, sig.SignatureHash)
	})

	s.Run("same signer cannot sign twice", func() {
		_, err := s.sign(s.quality, "again")
		s.True(dErrors.Is(err, dErrors.CodeSignatureRejected))
	})

	s.Run("unassigned user is forbidden", func() {
		_, err := s.sign(domain.NewUserID(), "drive-by")
		s.True(dErrors.Is(err, dErrors.CodeForbidden))
	})

	s.Run("stale or missing proof is unauthorized", func() {
		_, err := s.service.RecordSignature(ctx, SignRequest{
			VersionRef: s.ref,
			RecordType: "sop",
			Signer:     s.regulate,
			Meaning:    "regulatory review",
			Proof:      reauth.Proof{},
		})
		s.True(dErrors.Is(err, dErrors.CodeUnauthorized))
	})

	s.Run("empty meaning is rejected", func() {
		_, err := s.sign(s.regulate, "")
		s.True(dErrors.Is(err, dErrors.CodeBadRequest))
	})

	s.Run("gate satisfied after every role signs", func() {
		_, err := s.sign(s.regulate, "regulatory review complete")
		s.Require().NoError(err)
		_, err = s.sign(s.final, "final approval")
		s.Require().NoError(err)

		status, err := s.service.Status(ctx, s.ref)
		s.Require().NoError(err)
		s.True(status.Satisfied)
		s.Empty(status.Pending)
	})
}

func (s *ApprovalSuite) TestSequentialOrdering() {
	ctx := context.Background()
	technical := domain.NewUserID()

	err := s.service.AssignReviewers(ctx, s.ref, "vp", s.owner, []ReviewerPair{
		{Role: registry.RoleTechnicalReviewer, User: technical},
		{Role: registry.RoleQualityReviewer, User: s.quality},
		{Role: registry.RoleFinalApprover, User: s.final},
	})
	s.Require().NoError(err)

	signVP := func(user domain.UserID, meaning string) error {
		_, err := s.service.RecordSignature(ctx, SignRequest{
			VersionRef: s.ref,
			RecordType: "vp",
			Signer:     user,
			Meaning:    meaning,
			ContentRef: "s3://vault/vp-0001/v0.2.pdf",
			Proof:      s.proofFor(user),
		})
		return err
	}

	s.Run("later role before predecessor fails out of order", func() {
		err := signVP(s.final, "final approval")
		s.True(dErrors.Is(err, dErrors.CodeOutOfOrder))
	})

	s.Run("definition order is accepted", func() {
		s.NoError(signVP(technical, "technical review"))
		s.NoError(signVP(s.quality, "quality review"))
		s.NoError(signVP(s.final, "final approval"))

		status, err := s.service.Status(ctx, s.ref)
		s.Require().NoError(err)
		s.True(status.Satisfied)
	})
}

func (s *ApprovalSuite) TestDiscardPending() {
	ctx := context.Background()
	s.assignSOP()

	_, err := s.sign(s.quality, "quality review complete")
	s.Require().NoError(err)

	s.Require().NoError(s.service.DiscardPending(ctx, s.ref))

	s.Run("gate is gone", func() {
		_, err := s.service.Status(ctx, s.ref)
		s.True(dErrors.Is(err, dErrors.CodeNotFound))
	})

	s.Run("recorded signatures remain as immutable facts", func() {
		sigs, err := s.store.Signatures(ctx, s.ref)
		s.Require().NoError(err)
		s.Len(sigs, 1)
	})
}

func (s *ApprovalSuite) TestSignatureHashBindsSignerContentTime() {
	s.assignSOP()

	sig, err := s.sign(s.quality, "quality review complete")
	s.Require().NoError(err)

	s.Equal(hashContent("s3://vault/sop-0001/v0.2.pdf"), sig.ContentHash)
	s.Equal(hashSignature(s.quality, sig.ContentHash, sig.SignedAt), sig.SignatureHash)
	s.NotEqual(hashSignature(s.final, sig.ContentHash, sig.SignedAt), sig.SignatureHash)
}
