package httptransport

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"recordvault/internal/approval"
	approvalhandler "recordvault/internal/approval/handler"
	"recordvault/internal/audit"
	"recordvault/internal/identifier"
	"recordvault/internal/lifecycle"
	lifecyclehandler "recordvault/internal/lifecycle/handler"
	"recordvault/internal/platform/metrics"
	"recordvault/internal/reauth"
	"recordvault/internal/registry"
	"recordvault/internal/review"
	reviewhandler "recordvault/internal/review/handler"
	"recordvault/internal/training"
	traininghandler "recordvault/internal/training/handler"
	"recordvault/pkg/domain"
	"recordvault/pkg/testutil"
)

// RouterSuite drives the whole stack through the HTTP surface: real
// engine, in-memory stores, real middleware chain.
type RouterSuite struct {
	suite.Suite
	router http.Handler
	tokens *reauth.TokenVerifier

	owner    domain.UserID
	quality  domain.UserID
	approver domain.UserID
}

func TestRouterSuite(t *testing.T) {
	suite.Run(t, new(RouterSuite))
}

func (s *RouterSuite) SetupTest() {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	m := metrics.NewForTest()

	reg, err := registry.New(registry.Defaults()...)
	s.Require().NoError(err)

	trail, err := audit.NewTrail(audit.NewMemoryStore(), audit.WithLogger(log), audit.WithMetrics(m))
	s.Require().NoError(err)

	s.tokens = reauth.NewTokenVerifier("router-test-key", time.Minute)

	approvals, err := approval.New(approval.NewMemoryStore(), reg, reauth.Chain{s.tokens},
		approval.WithLogger(log), approval.WithMetrics(m))
	s.Require().NoError(err)

	gate, err := training.New(training.NewMemoryStore(), training.WithLogger(log), training.WithMetrics(m))
	s.Require().NoError(err)

	allocator, err := identifier.New(identifier.NewMemory(), reg, identifier.WithLogger(log))
	s.Require().NoError(err)

	store := lifecycle.NewMemoryStore()
	engine, err := lifecycle.NewEngine(store, reg, allocator, approvals, gate, trail,
		lifecycle.WithLogger(log), lifecycle.WithMetrics(m))
	s.Require().NoError(err)

	scheduler, err := review.New(engine, store, reg, trail,
		review.WithLogger(log), review.WithMetrics(m))
	s.Require().NoError(err)

	s.router = NewRouter(Config{
		Logger: log,
		Handlers: []Registrar{
			lifecyclehandler.New(engine, log),
			approvalhandler.New(engine, approvals, log),
			traininghandler.New(engine, log),
			reviewhandler.New(scheduler, log),
		},
		Checks: map[string]HealthCheck{
			"self": func(ctx context.Context) error { return nil },
		},
	})

	s.owner = domain.NewUserID()
	s.quality = domain.NewUserID()
	s.approver = domain.NewUserID()
}

func (s *RouterSuite) do(actor domain.UserID, method, path string, body any) *httptest.ResponseRecorder {
	req := testutil.NewJSONRequest(s.T(), method, path, body)
	if !actor.IsNil() {
		req.Header.Set("X-Actor-ID", actor.String())
	}
	return testutil.DoRequest(s.router, req)
}

type recordDTO struct {
	VersionRef string `json:"version_ref"`
	RecordID   string `json:"record_id"`
	Version    string `json:"version"`
	State      string `json:"state"`
}

func (s *RouterSuite) TestHealthAndMetrics() {
	rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/healthz"))
	testutil.AssertStatusOK(s.T(), rr)
	testutil.AssertJSONContains(s.T(), rr, "self", "ok")

	rr = testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/metrics"))
	testutil.AssertStatusOK(s.T(), rr)
}

func (s *RouterSuite) TestActorHeaderRequired() {
	rr := s.do(domain.UserID{}, http.MethodPost, "/records",
		map[string]string{"record_type": "bpr", "content_ref": "s3://c/1"})
	testutil.AssertStatusAndError(s.T(), rr, http.StatusUnauthorized, "unauthorized")
}

func (s *RouterSuite) TestMalformedBodyRejected() {
	req := testutil.NewRequestWithBody(s.T(), http.MethodPost, "/records", "{not json")
	req.Header.Set("X-Actor-ID", s.owner.String())
	rr := testutil.DoRequest(s.router, req)
	testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, "bad_request")
}

func (s *RouterSuite) TestFullApprovalFlow() {
	rr := s.do(s.owner, http.MethodPost, "/records",
		map[string]string{"record_type": "bpr", "content_ref": "s3://c/batch-7"})
	testutil.AssertStatus(s.T(), rr, http.StatusCreated)
	draft := testutil.UnmarshalResponse[recordDTO](s.T(), rr)
	s.Equal("0.1", draft.Version)
	s.Equal("draft", draft.State)

	rr = s.do(s.owner, http.MethodPost, "/records/"+draft.VersionRef+"/transitions",
		map[string]string{"to_state": "in_review"})
	testutil.AssertStatusOK(s.T(), rr)
	inReview := testutil.UnmarshalResponse[recordDTO](s.T(), rr)
	s.Equal("0.2", inReview.Version)
	s.Equal("in_review", inReview.State)

	rr = s.do(s.owner, http.MethodPost, "/records/"+inReview.VersionRef+"/reviewers",
		map[string]any{"reviewers": []map[string]string{
			{"role": "quality_reviewer", "user_id": s.quality.String()},
			{"role": "final_approver", "user_id": s.approver.String()},
		}})
	testutil.AssertStatus(s.T(), rr, http.StatusNoContent)

	// Committing the gated edge before anyone signed must refuse.
	rr = s.do(s.owner, http.MethodPost, "/records/"+inReview.VersionRef+"/transitions",
		map[string]string{"to_state": "approved"})
	testutil.AssertErrorCode(s.T(), rr, "approval_pending")

	rr = s.sign(s.quality, inReview.VersionRef, "reviewed for quality")
	testutil.AssertStatus(s.T(), rr, http.StatusCreated)
	testutil.AssertJSONContains(s.T(), rr, "gate_satisfied", false)

	rr = s.sign(s.approver, inReview.VersionRef, "approved for release")
	testutil.AssertStatus(s.T(), rr, http.StatusCreated)
	testutil.AssertJSONContains(s.T(), rr, "gate_satisfied", true)
	testutil.AssertJSONContains(s.T(), rr, "new_state", "approved")
	testutil.AssertJSONContains(s.T(), rr, "new_version", "1.0")

	approved := testutil.UnmarshalResponse[struct {
		NewVersionRef string `json:"new_version_ref"`
	}](s.T(), rr)

	rr = s.do(s.owner, http.MethodPost, "/records/"+approved.NewVersionRef+"/transitions",
		map[string]string{"to_state": "effective"})
	testutil.AssertStatusOK(s.T(), rr)
	effective := testutil.UnmarshalResponse[recordDTO](s.T(), rr)
	s.Equal("effective", effective.State)
	s.Equal("1.0", effective.Version)

	rr = s.do(s.owner, http.MethodGet, "/families/"+draft.RecordID+"/versions/1.0", nil)
	testutil.AssertStatusOK(s.T(), rr)
	byLabel := testutil.UnmarshalResponse[recordDTO](s.T(), rr)
	s.Equal(effective.VersionRef, byLabel.VersionRef)

	rr = s.do(s.owner, http.MethodGet, "/families/"+draft.RecordID+"/versions/banana", nil)
	testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, "bad_request")

	rr = s.do(s.owner, http.MethodGet, "/families/"+draft.RecordID+"/history", nil)
	testutil.AssertStatusOK(s.T(), rr)
	history := testutil.UnmarshalResponse[struct {
		Records    []recordDTO      `json:"records"`
		Signatures []map[string]any `json:"signatures"`
	}](s.T(), rr)
	s.Len(history.Records, 3)
	s.Len(history.Signatures, 2)
}

func (s *RouterSuite) TestSignatureWithoutProofIsUnauthorized() {
	draft := s.createAndSubmit()

	s.Require().NoError(s.assignDefaultReviewers(draft))

	rr := s.do(s.quality, http.MethodPost, "/records/"+draft+"/signatures",
		map[string]string{"meaning": "reviewed"})
	testutil.AssertStatusAndError(s.T(), rr, http.StatusUnauthorized, "unauthorized")
}

func (s *RouterSuite) TestApprovalStatusEndpoint() {
	draft := s.createAndSubmit()
	s.Require().NoError(s.assignDefaultReviewers(draft))

	rr := s.do(s.owner, http.MethodGet, "/records/"+draft+"/approval", nil)
	testutil.AssertStatusOK(s.T(), rr)
	status := testutil.UnmarshalResponse[struct {
		Pending   []string `json:"pending"`
		Satisfied bool     `json:"satisfied"`
	}](s.T(), rr)
	s.False(status.Satisfied)
	s.Len(status.Pending, 2)
}

func (s *RouterSuite) sign(signer domain.UserID, ref, meaning string) *httptest.ResponseRecorder {
	token, err := s.tokens.Issue(signer)
	s.Require().NoError(err)
	return s.do(signer, http.MethodPost, "/records/"+ref+"/signatures",
		map[string]string{"meaning": meaning, "reauth_token": token})
}

// createAndSubmit returns the version ref of a bpr sitting in review.
func (s *RouterSuite) createAndSubmit() string {
	rr := s.do(s.owner, http.MethodPost, "/records",
		map[string]string{"record_type": "bpr", "content_ref": "s3://c/x"})
	testutil.AssertStatus(s.T(), rr, http.StatusCreated)
	draft := testutil.UnmarshalResponse[recordDTO](s.T(), rr)

	rr = s.do(s.owner, http.MethodPost, "/records/"+draft.VersionRef+"/transitions",
		map[string]string{"to_state": "in_review"})
	testutil.AssertStatusOK(s.T(), rr)
	return testutil.UnmarshalResponse[recordDTO](s.T(), rr).VersionRef
}

func (s *RouterSuite) assignDefaultReviewers(ref string) error {
	rr := s.do(s.owner, http.MethodPost, "/records/"+ref+"/reviewers",
		map[string]any{"reviewers": []map[string]string{
			{"role": "quality_reviewer", "user_id": s.quality.String()},
			{"role": "final_approver", "user_id": s.approver.String()},
		}})
	if rr.Code != http.StatusNoContent {
		return fmt.Errorf("assign reviewers: status %d", rr.Code)
	}
	return nil
}
