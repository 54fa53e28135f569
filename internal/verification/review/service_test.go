package review_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"

	"mobirides/internal/verification/events"
	"mobirides/internal/verification/metrics"
	"mobirides/internal/verification/models"
	"mobirides/internal/verification/review"
	"mobirides/internal/verification/store"
	id "mobirides/pkg/domain"
	dErrors "mobirides/pkg/domain-errors"
	"mobirides/pkg/platform/audit"
	"mobirides/pkg/platform/audit/publishers/compliance"
	auditmemory "mobirides/pkg/platform/audit/store/memory"
	"mobirides/pkg/requestcontext"
)

var reviewNow = time.Date(2026, 4, 2, 15, 0, 0, 0, time.UTC)

type recordingPublisher struct {
	events []events.StatusChanged
	err    error
}

func (p *recordingPublisher) PublishStatusChanged(_ context.Context, event events.StatusChanged) error {
	p.events = append(p.events, event)
	return p.err
}

type failingAudit struct{}

func (failingAudit) Emit(context.Context, audit.ComplianceEvent) error {
	return errors.New("audit store unavailable")
}

// snapshotTx restores the pre-transaction record when fn fails, standing in
// for a database rollback.
type snapshotTx struct {
	store  *store.InMemory
	userID id.UserID
}

func (t snapshotTx) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	before, err := t.store.Get(ctx, t.userID)
	if err != nil {
		return fn(ctx)
	}
	if err := fn(ctx); err != nil {
		_, _ = t.store.Upsert(ctx, before)
		return err
	}
	return nil
}

type invalidatingStore struct {
	*store.InMemory
	invalidated []id.UserID
}

func (s *invalidatingStore) Invalidate(_ context.Context, userID id.UserID) {
	s.invalidated = append(s.invalidated, userID)
}

type ReviewServiceSuite struct {
	suite.Suite
	ctx        context.Context
	store      *store.InMemory
	auditStore *auditmemory.InMemoryStore
	publisher  *recordingPublisher
	metrics    *metrics.Metrics
	service    *review.Service
	userID     id.UserID
	reviewerID id.UserID
}

func TestReviewServiceSuite(t *testing.T) {
	suite.Run(t, new(ReviewServiceSuite))
}

func (s *ReviewServiceSuite) SetupTest() {
	s.ctx = requestcontext.WithRequestID(requestcontext.WithTime(context.Background(), reviewNow), "req-42")
	s.store = store.NewInMemory()
	s.auditStore = auditmemory.NewInMemoryStore()
	s.publisher = &recordingPublisher{}
	s.metrics = metrics.NewWithRegistry(prometheus.NewRegistry())
	s.service = review.New(s.store, compliance.New(s.auditStore),
		review.WithStatusPublisher(s.publisher),
		review.WithMetrics(s.metrics),
	)
	s.userID = id.UserID(uuid.New())
	s.reviewerID = id.UserID(uuid.New())
}

func (s *ReviewServiceSuite) seed(status models.Status, complete bool) {
	data, err := models.NewVerificationData(s.userID, id.RoleHost, reviewNow.Add(-24*time.Hour))
	s.Require().NoError(err)
	data.OverallStatus = status
	data.PersonalInfo = models.PersonalInfo{FullName: "Thabo Moeng", NationalID: "987654321"}
	data.PersonalInfoStatus = models.SubStatusCompleted
	if complete {
		data.Documents.Status = models.SubStatusCompleted
		data.SelfieStatus = models.SubStatusCompleted
		data.Phone = models.PhoneVerification{PhoneNumber: "+26772000000", Verified: true}
	}
	if status == models.StatusSubmitted {
		submittedAt := reviewNow.Add(-time.Hour)
		data.SubmittedAt = &submittedAt
		data.CurrentStep = models.StepReview
	}
	_, err = s.store.Create(s.ctx, data)
	s.Require().NoError(err)
}

func (s *ReviewServiceSuite) TestApprove() {
	s.seed(models.StatusSubmitted, true)

	data, err := s.service.Approve(s.ctx, s.userID, s.reviewerID)
	s.Require().NoError(err)
	s.Equal(models.StatusApproved, data.OverallStatus)
	s.Require().NotNil(data.ReviewedBy)
	s.Equal(s.reviewerID, *data.ReviewedBy)
	s.Equal(reviewNow, *data.ReviewedAt)

	logged, err := s.auditStore.ListByUser(s.ctx, s.userID)
	s.Require().NoError(err)
	s.Require().Len(logged, 1)
	s.Equal(string(audit.EventVerificationApproved), logged[0].Action)
	s.Equal(s.reviewerID.String(), logged[0].ActorID)
	s.Equal(audit.HashSubjectID("987654321"), logged[0].SubjectIDHash)
	s.Equal("req-42", logged[0].RequestID)

	s.Require().Len(s.publisher.events, 1)
	s.Equal(models.StatusSubmitted, s.publisher.events[0].From)
	s.Equal(models.StatusApproved, s.publisher.events[0].To)
	s.Equal(1.0, testutil.ToFloat64(s.metrics.ReviewDecisions.WithLabelValues("approve")))
}

func (s *ReviewServiceSuite) TestApproveRequiresCompleteSteps() {
	s.seed(models.StatusSubmitted, false)

	_, err := s.service.Approve(s.ctx, s.userID, s.reviewerID)
	s.True(dErrors.HasCode(err, dErrors.CodePrecondition))

	stored, err := s.store.Get(s.ctx, s.userID)
	s.Require().NoError(err)
	s.Equal(models.StatusSubmitted, stored.OverallStatus)
	s.Empty(s.publisher.events)
}

func (s *ReviewServiceSuite) TestApproveOnlyFromSubmitted() {
	s.seed(models.StatusInProgress, true)

	_, err := s.service.Approve(s.ctx, s.userID, s.reviewerID)
	s.True(dErrors.HasCode(err, dErrors.CodePrecondition))
}

func (s *ReviewServiceSuite) TestReject() {
	s.seed(models.StatusSubmitted, true)

	s.Run("reason required", func() {
		_, err := s.service.Reject(s.ctx, s.userID, s.reviewerID, "   ")
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("rejects with reason", func() {
		data, err := s.service.Reject(s.ctx, s.userID, s.reviewerID, " selfie does not match ")
		s.Require().NoError(err)
		s.Equal(models.StatusRejected, data.OverallStatus)
		s.Equal("selfie does not match", data.RejectionReason)
		s.Equal(models.StepPersonalInfo, data.CurrentStep)
	})

	s.Run("cannot reject twice", func() {
		_, err := s.service.Reject(s.ctx, s.userID, s.reviewerID, "again")
		s.True(dErrors.HasCode(err, dErrors.CodePrecondition))
	})
}

func (s *ReviewServiceSuite) TestRequireReverification() {
	s.seed(models.StatusApproved, true)

	data, err := s.service.RequireReverification(s.ctx, s.userID, s.reviewerID, "license expired")
	s.Require().NoError(err)
	s.Equal(models.StatusRequiresReverification, data.OverallStatus)

	_, err = s.service.RequireReverification(s.ctx, s.userID, s.reviewerID, "again")
	s.True(dErrors.HasCode(err, dErrors.CodePrecondition))
}

func (s *ReviewServiceSuite) TestRequireReverificationNotStarted() {
	s.seed(models.StatusNotStarted, false)

	_, err := s.service.RequireReverification(s.ctx, s.userID, s.reviewerID, "")
	s.True(dErrors.HasCode(err, dErrors.CodePrecondition))
}

func (s *ReviewServiceSuite) TestUnknownUser() {
	_, err := s.service.Approve(s.ctx, id.UserID(uuid.New()), s.reviewerID)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))

	_, err = s.service.Approve(s.ctx, id.UserID{}, s.reviewerID)
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
}

func (s *ReviewServiceSuite) TestAuditFailureAbortsDecision() {
	s.seed(models.StatusSubmitted, true)
	backend := &invalidatingStore{InMemory: s.store}
	service := review.New(backend, failingAudit{},
		review.WithTxRunner(snapshotTx{store: s.store, userID: s.userID}),
		review.WithStatusPublisher(s.publisher),
	)

	_, err := service.Approve(s.ctx, s.userID, s.reviewerID)
	s.True(dErrors.HasCode(err, dErrors.CodeInternal))

	stored, err := s.store.Get(s.ctx, s.userID)
	s.Require().NoError(err)
	s.Equal(models.StatusSubmitted, stored.OverallStatus)
	s.Equal([]id.UserID{s.userID}, backend.invalidated)
	s.Empty(s.publisher.events)
}

func (s *ReviewServiceSuite) TestAuditFailureAbortsDecisionWithoutTransaction() {
	s.seed(models.StatusSubmitted, true)
	service := review.New(s.store, failingAudit{}, review.WithStatusPublisher(s.publisher))

	_, err := service.Reject(s.ctx, s.userID, s.reviewerID, "document expired")
	s.True(dErrors.HasCode(err, dErrors.CodeInternal))

	stored, err := s.store.Get(s.ctx, s.userID)
	s.Require().NoError(err)
	s.Equal(models.StatusSubmitted, stored.OverallStatus)
	s.Empty(stored.RejectionReason)
	s.Nil(stored.ReviewedAt)
	s.Empty(s.publisher.events)
}

func (s *ReviewServiceSuite) TestPublishFailureDoesNotFailDecision() {
	s.seed(models.StatusSubmitted, true)
	s.publisher.err = errors.New("broker down")

	data, err := s.service.Approve(s.ctx, s.userID, s.reviewerID)
	s.Require().NoError(err)
	s.Equal(models.StatusApproved, data.OverallStatus)
	s.Equal(1.0, testutil.ToFloat64(s.metrics.EventsPublished.WithLabelValues("failed")))
}

func (s *ReviewServiceSuite) TestListByStatus() {
	s.seed(models.StatusSubmitted, true)

	records, err := s.service.ListByStatus(s.ctx, models.StatusSubmitted)
	s.Require().NoError(err)
	s.Require().Len(records, 1)
	s.Equal(s.userID, records[0].UserID)

	_, err = s.service.ListByStatus(s.ctx, models.Status("archived"))
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
}
