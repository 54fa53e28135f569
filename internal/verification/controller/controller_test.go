package controller_test

//go:generate mockgen -source=controller.go -destination=mocks/mocks.go -package=mocks Store,AuditPublisher,StatusPublisher

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"mobirides/internal/verification/controller"
	"mobirides/internal/verification/controller/mocks"
	"mobirides/internal/verification/events"
	"mobirides/internal/verification/metrics"
	"mobirides/internal/verification/models"
	"mobirides/internal/verification/store"
	id "mobirides/pkg/domain"
	dErrors "mobirides/pkg/domain-errors"
	"mobirides/pkg/platform/audit"
	"mobirides/pkg/platform/sentinel"
	"mobirides/pkg/requestcontext"
)

var fixedNow = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

func ptr[T any](v T) *T { return &v }

type ControllerSuite struct {
	suite.Suite
	ctx     context.Context
	store   *store.InMemory
	metrics *metrics.Metrics
	ctrl    *controller.Controller
	userID  id.UserID
}

func TestControllerSuite(t *testing.T) {
	suite.Run(t, new(ControllerSuite))
}

func (s *ControllerSuite) SetupTest() {
	s.ctx = requestcontext.WithTime(context.Background(), fixedNow)
	s.store = store.NewInMemory()
	s.metrics = metrics.NewWithRegistry(prometheus.NewRegistry())
	s.ctrl = controller.New(s.store, controller.WithMetrics(s.metrics))
	s.userID = id.UserID(uuid.New())
}

func (s *ControllerSuite) initialize() *models.VerificationData {
	data, err := s.ctrl.InitializeVerification(s.ctx, s.userID, id.RoleRenter)
	s.Require().NoError(err)
	return data
}

func (s *ControllerSuite) completeAllSteps() {
	_, err := s.ctrl.UpdatePersonalInfo(s.ctx, models.PersonalInfoUpdate{FullName: ptr("Jane Doe"), NationalID: ptr("123456789")})
	s.Require().NoError(err)
	_, err = s.ctrl.CompleteDocumentUpload(s.ctx, s.userID, models.DocumentNationalIDFront, models.DocumentNationalIDBack)
	s.Require().NoError(err)
	_, err = s.ctrl.CompleteSelfieVerification(s.ctx)
	s.Require().NoError(err)
	_, err = s.ctrl.UpdatePhoneVerification(s.ctx, models.PhoneVerificationUpdate{PhoneNumber: ptr("+26771000000"), Verified: ptr(true)})
	s.Require().NoError(err)
}

func (s *ControllerSuite) TestFreshUserCreatesRecord() {
	data := s.initialize()

	s.Equal(models.StatusNotStarted, data.OverallStatus)
	s.Equal(models.StepPersonalInfo, data.CurrentStep)
	s.Equal(fixedNow, data.CreatedAt)
	s.Equal(controller.StateReady, s.ctrl.State())
	s.False(s.ctrl.CanNavigateToStep(models.StepDocumentUpload))

	stored, err := s.store.Get(s.ctx, s.userID)
	s.Require().NoError(err)
	s.Equal(models.StatusNotStarted, stored.OverallStatus)
	s.Equal(1.0, testutil.ToFloat64(s.metrics.Initializations.WithLabelValues("created")))
}

func (s *ControllerSuite) TestInitializeLoadsExistingRecord() {
	existing, err := models.NewVerificationData(s.userID, id.RoleHost, fixedNow.Add(-time.Hour))
	s.Require().NoError(err)
	existing.OverallStatus = models.StatusInProgress
	existing.PersonalInfo.FullName = "Jane"
	existing.PersonalInfoStatus = models.SubStatusCompleted
	existing.CurrentStep = models.StepDocumentUpload
	_, err = s.store.Create(s.ctx, existing)
	s.Require().NoError(err)

	data := s.initialize()

	s.Equal(models.StatusInProgress, data.OverallStatus)
	s.Equal(id.RoleHost, data.Role)
	s.Equal("Jane", data.PersonalInfo.FullName)
	s.Equal(1.0, testutil.ToFloat64(s.metrics.Initializations.WithLabelValues("loaded")))
}

func (s *ControllerSuite) TestInitializeValidation() {
	s.Run("nil user", func() {
		_, err := s.ctrl.InitializeVerification(s.ctx, id.UserID{}, id.RoleRenter)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})
	s.Run("admin role", func() {
		_, err := s.ctrl.InitializeVerification(s.ctx, s.userID, id.RoleAdmin)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})
	s.Equal(controller.StateUninitialized, s.ctrl.State())
}

func (s *ControllerSuite) TestPersonalInfoAdvancesStep() {
	s.initialize()

	data, err := s.ctrl.UpdatePersonalInfo(s.ctx, models.PersonalInfoUpdate{FullName: ptr("  Jane  ")})
	s.Require().NoError(err)

	s.Equal("Jane", data.PersonalInfo.FullName)
	s.Equal(models.StatusInProgress, data.OverallStatus)
	s.Equal(models.StepDocumentUpload, data.CurrentStep)
	s.True(s.ctrl.CanNavigateToStep(models.StepDocumentUpload))
	s.False(s.ctrl.CanNavigateToStep(models.StepSelfie))
}

func (s *ControllerSuite) TestSubmitLocksTheFlow() {
	s.initialize()
	s.completeAllSteps()
	s.True(s.ctrl.Progress().CanSubmit)

	data, err := s.ctrl.SubmitForReview(s.ctx)
	s.Require().NoError(err)
	s.Equal(models.StatusSubmitted, data.OverallStatus)
	s.Equal(models.StepReview, data.CurrentStep)
	s.Require().NotNil(data.SubmittedAt)
	s.Equal(fixedNow, *data.SubmittedAt)

	_, err = s.ctrl.UpdatePersonalInfo(s.ctx, models.PersonalInfoUpdate{FullName: ptr("Janet")})
	s.True(dErrors.HasCode(err, dErrors.CodePrecondition))
	s.Equal("Jane Doe", s.ctrl.Data().PersonalInfo.FullName)

	_, err = s.ctrl.NavigateToStep(s.ctx, models.StepPersonalInfo)
	s.True(dErrors.HasCode(err, dErrors.CodePrecondition))

	_, err = s.ctrl.SubmitForReview(s.ctx)
	s.True(dErrors.HasCode(err, dErrors.CodePrecondition))
	s.Equal(1.0, testutil.ToFloat64(s.metrics.Submissions))
}

func (s *ControllerSuite) TestSubmitWithMissingSteps() {
	s.initialize()
	_, err := s.ctrl.UpdatePersonalInfo(s.ctx, models.PersonalInfoUpdate{FullName: ptr("Jane")})
	s.Require().NoError(err)

	_, err = s.ctrl.SubmitForReview(s.ctx)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodePrecondition))
	s.Contains(err.Error(), "document_upload, selfie, phone")
	s.Equal(models.StatusInProgress, s.ctrl.Data().OverallStatus)
}

func (s *ControllerSuite) TestStepsCompleteInAnyOrder() {
	s.initialize()

	_, err := s.ctrl.CompleteSelfieVerification(s.ctx)
	s.Require().NoError(err)
	data, err := s.ctrl.UpdatePhoneVerification(s.ctx, models.PhoneVerificationUpdate{PhoneNumber: ptr("+26771000000"), Verified: ptr(true)})
	s.Require().NoError(err)
	s.Equal(models.StepPersonalInfo, data.CurrentStep)
	s.True(data.SelfieComplete())
	s.True(data.PhoneComplete())

	_, err = s.ctrl.UpdatePersonalInfo(s.ctx, models.PersonalInfoUpdate{FullName: ptr("Jane")})
	s.Require().NoError(err)
	data, err = s.ctrl.CompleteDocumentUpload(s.ctx, s.userID)
	s.Require().NoError(err)
	s.Equal(models.StepReview, data.CurrentStep)
}

func (s *ControllerSuite) TestRepeatedActionsAreIdempotent() {
	s.initialize()

	first, err := s.ctrl.CompleteSelfieVerification(s.ctx)
	s.Require().NoError(err)
	second, err := s.ctrl.CompleteSelfieVerification(s.ctx)
	s.Require().NoError(err)
	s.Equal(first.SelfieStatus, second.SelfieStatus)
	s.Equal(first.CurrentStep, second.CurrentStep)

	_, err = s.ctrl.CompleteDocumentUpload(s.ctx, s.userID, models.DocumentDriversLicense)
	s.Require().NoError(err)
	data, err := s.ctrl.CompleteDocumentUpload(s.ctx, s.userID, models.DocumentDriversLicense)
	s.Require().NoError(err)
	s.Equal([]models.DocumentKind{models.DocumentDriversLicense}, data.Documents.Kinds)
}

func (s *ControllerSuite) TestEmptyUpdateIsNoop() {
	s.initialize()

	data, err := s.ctrl.UpdatePersonalInfo(s.ctx, models.PersonalInfoUpdate{})
	s.Require().NoError(err)
	s.Equal(models.StatusNotStarted, data.OverallStatus)
	s.Equal(1.0, testutil.ToFloat64(s.metrics.Mutations.WithLabelValues("update_personal_info", "noop")))
}

func (s *ControllerSuite) TestDocumentsForAnotherUser() {
	s.initialize()

	_, err := s.ctrl.CompleteDocumentUpload(s.ctx, id.UserID(uuid.New()))
	s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	s.False(s.ctrl.Data().DocumentsComplete())
}

func (s *ControllerSuite) TestVerifyingEmptyPhoneIsRejected() {
	s.initialize()

	_, err := s.ctrl.UpdatePhoneVerification(s.ctx, models.PhoneVerificationUpdate{Verified: ptr(true)})
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
}

func (s *ControllerSuite) TestNavigateToStep() {
	s.initialize()

	_, err := s.ctrl.NavigateToStep(s.ctx, models.StepSelfie)
	s.True(dErrors.HasCode(err, dErrors.CodeNavigationDenied))

	_, err = s.ctrl.UpdatePersonalInfo(s.ctx, models.PersonalInfoUpdate{FullName: ptr("Jane")})
	s.Require().NoError(err)

	data, err := s.ctrl.NavigateToStep(s.ctx, models.StepPersonalInfo)
	s.Require().NoError(err)
	s.Equal(models.StepPersonalInfo, data.CurrentStep)

	stored, err := s.store.Get(s.ctx, s.userID)
	s.Require().NoError(err)
	s.Equal(models.StepPersonalInfo, stored.CurrentStep)
}

func (s *ControllerSuite) TestRefreshPicksUpReviewDecision() {
	s.initialize()
	s.completeAllSteps()
	_, err := s.ctrl.SubmitForReview(s.ctx)
	s.Require().NoError(err)

	reviewer := id.UserID(uuid.New())
	_, err = s.store.Execute(s.ctx, s.userID, func(d *models.VerificationData) error {
		return d.CanReject("blurry selfie")
	}, func(d *models.VerificationData) {
		d.ApplyRejection(reviewer, "blurry selfie", fixedNow)
	})
	s.Require().NoError(err)

	data, err := s.ctrl.RefreshData(s.ctx)
	s.Require().NoError(err)
	s.Equal(models.StatusRejected, data.OverallStatus)
	s.Equal("blurry selfie", data.RejectionReason)

	// A rejected flow reopens for edits.
	data, err = s.ctrl.UpdatePersonalInfo(s.ctx, models.PersonalInfoUpdate{FullName: ptr("Jane Q Doe")})
	s.Require().NoError(err)
	s.Equal(models.StatusInProgress, data.OverallStatus)
}

func (s *ControllerSuite) TestReverificationRestartKeepsPrefill() {
	s.initialize()
	s.completeAllSteps()
	_, err := s.store.Execute(s.ctx, s.userID, func(d *models.VerificationData) error {
		return d.CanRequireReverification()
	}, func(d *models.VerificationData) {
		d.ApplyReverification(id.UserID(uuid.New()), "license expired", fixedNow)
	})
	s.Require().NoError(err)
	_, err = s.ctrl.RefreshData(s.ctx)
	s.Require().NoError(err)
	s.Equal(0, s.ctrl.Progress().CompletedSteps.Len())

	data, err := s.ctrl.CompleteSelfieVerification(s.ctx)
	s.Require().NoError(err)

	s.Equal(models.StatusInProgress, data.OverallStatus)
	s.Equal(models.StepPersonalInfo, data.CurrentStep)
	s.False(data.PersonalInfoComplete())
	s.False(data.DocumentsComplete())
	s.False(data.Phone.Verified)
	s.True(data.SelfieComplete())
	s.Equal("Jane Doe", data.PersonalInfo.FullName)
	s.Equal("+26771000000", data.Phone.PhoneNumber)
}

func (s *ControllerSuite) TestActionsBeforeInitialize() {
	_, err := s.ctrl.RefreshData(s.ctx)
	s.True(dErrors.HasCode(err, dErrors.CodePrecondition))
	_, err = s.ctrl.SubmitForReview(s.ctx)
	s.True(dErrors.HasCode(err, dErrors.CodePrecondition))
	s.False(s.ctrl.CanNavigateToStep(models.StepPersonalInfo))
}

func (s *ControllerSuite) TestResetClearsLocalStateOnly() {
	s.initialize()
	_, err := s.ctrl.UpdatePersonalInfo(s.ctx, models.PersonalInfoUpdate{FullName: ptr("Jane")})
	s.Require().NoError(err)

	s.ctrl.ResetVerification()
	s.False(s.ctrl.Initialized())
	s.Equal(controller.StateUninitialized, s.ctrl.State())
	s.Equal(-1, s.ctrl.Progress().CurrentStepIndex)

	_, err = s.ctrl.CompleteSelfieVerification(s.ctx)
	s.True(dErrors.HasCode(err, dErrors.CodePrecondition))

	data := s.initialize()
	s.Equal("Jane", data.PersonalInfo.FullName)
}

func (s *ControllerSuite) TestClosedControllerRejectsActions() {
	s.initialize()
	s.ctrl.Close()
	s.ctrl.Close()

	s.False(s.ctrl.Active())
	s.Nil(s.ctrl.Data())
	_, err := s.ctrl.UpdatePersonalInfo(s.ctx, models.PersonalInfoUpdate{FullName: ptr("Jane")})
	s.True(dErrors.HasCode(err, dErrors.CodePrecondition))
	_, err = s.ctrl.InitializeVerification(s.ctx, s.userID, id.RoleRenter)
	s.True(dErrors.HasCode(err, dErrors.CodePrecondition))

	select {
	case <-s.ctrl.Done():
	default:
		s.Fail("done channel not closed")
	}
}

type ControllerMockSuite struct {
	suite.Suite
	ctx       context.Context
	mockCtrl  *gomock.Controller
	store     *mocks.MockStore
	audit     *mocks.MockAuditPublisher
	publisher *mocks.MockStatusPublisher
	metrics   *metrics.Metrics
	ctrl      *controller.Controller
	userID    id.UserID
}

func TestControllerMockSuite(t *testing.T) {
	suite.Run(t, new(ControllerMockSuite))
}

func (s *ControllerMockSuite) SetupTest() {
	s.ctx = requestcontext.WithTime(context.Background(), fixedNow)
	s.ctx = requestcontext.WithRequestID(s.ctx, "req-1")
	s.mockCtrl = gomock.NewController(s.T())
	s.store = mocks.NewMockStore(s.mockCtrl)
	s.audit = mocks.NewMockAuditPublisher(s.mockCtrl)
	s.publisher = mocks.NewMockStatusPublisher(s.mockCtrl)
	s.metrics = metrics.NewWithRegistry(prometheus.NewRegistry())
	s.ctrl = controller.New(s.store,
		controller.WithMetrics(s.metrics),
		controller.WithAuditPublisher(s.audit),
		controller.WithStatusPublisher(s.publisher),
	)
	s.userID = id.UserID(uuid.New())
}

func (s *ControllerMockSuite) record() *models.VerificationData {
	data, err := models.NewVerificationData(s.userID, id.RoleRenter, fixedNow)
	s.Require().NoError(err)
	return data
}

func (s *ControllerMockSuite) ready(data *models.VerificationData) {
	s.store.EXPECT().Get(gomock.Any(), s.userID).Return(data, nil)
	_, err := s.ctrl.InitializeVerification(s.ctx, s.userID, id.RoleRenter)
	s.Require().NoError(err)
}

func echo(_ context.Context, data *models.VerificationData) (*models.VerificationData, error) {
	return data.Clone(), nil
}

func (s *ControllerMockSuite) TestWriteFailureRollsBack() {
	data := s.record()
	data.OverallStatus = models.StatusInProgress
	data.Phone.PhoneNumber = "+26771000000"
	s.ready(data)
	before := s.ctrl.Data()

	s.store.EXPECT().Upsert(gomock.Any(), gomock.Any()).Return(nil, errors.New("connection reset"))

	_, err := s.ctrl.UpdatePhoneVerification(s.ctx, models.PhoneVerificationUpdate{Verified: ptr(true)})
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodePersistence))
	s.Equal(before, s.ctrl.Data())
	s.Equal(controller.StateReady, s.ctrl.State())
	s.Equal(1.0, testutil.ToFloat64(s.metrics.Rollbacks.WithLabelValues("update_phone")))
}

func (s *ControllerMockSuite) TestStoredRecordIsAdopted() {
	s.ready(s.record())

	s.store.EXPECT().Upsert(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, d *models.VerificationData) (*models.VerificationData, error) {
			out := d.Clone()
			out.UpdatedAt = fixedNow.Add(time.Second)
			return out, nil
		})
	s.publisher.EXPECT().PublishStatusChanged(gomock.Any(), gomock.Any()).Return(nil)

	_, err := s.ctrl.CompleteSelfieVerification(s.ctx)
	s.Require().NoError(err)
	s.Equal(fixedNow.Add(time.Second), s.ctrl.Data().UpdatedAt)
}

func (s *ControllerMockSuite) TestInitializeFailure() {
	s.store.EXPECT().Get(gomock.Any(), s.userID).Return(nil, errors.New("timeout"))

	_, err := s.ctrl.InitializeVerification(s.ctx, s.userID, id.RoleRenter)
	s.True(dErrors.HasCode(err, dErrors.CodeInitialization))
	s.Equal(controller.StateUninitialized, s.ctrl.State())
	s.False(s.ctrl.Initialized())
}

func (s *ControllerMockSuite) TestInitializeAdoptsConcurrentCreate() {
	winner := s.record()
	winner.PersonalInfo.FullName = "Jane"
	gomock.InOrder(
		s.store.EXPECT().Get(gomock.Any(), s.userID).Return(nil, sentinel.ErrNotFound),
		s.store.EXPECT().Create(gomock.Any(), gomock.Any()).Return(nil, sentinel.ErrConflict),
		s.store.EXPECT().Get(gomock.Any(), s.userID).Return(winner, nil),
	)

	data, err := s.ctrl.InitializeVerification(s.ctx, s.userID, id.RoleRenter)
	s.Require().NoError(err)
	s.Equal("Jane", data.PersonalInfo.FullName)
}

func (s *ControllerMockSuite) TestRefreshErrors() {
	s.ready(s.record())

	s.Run("record gone", func() {
		s.store.EXPECT().Get(gomock.Any(), s.userID).Return(nil, sentinel.ErrNotFound)
		_, err := s.ctrl.RefreshData(s.ctx)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
	s.Run("store failure", func() {
		s.store.EXPECT().Get(gomock.Any(), s.userID).Return(nil, errors.New("boom"))
		_, err := s.ctrl.RefreshData(s.ctx)
		s.True(dErrors.HasCode(err, dErrors.CodeInitialization))
	})
	s.True(s.ctrl.Initialized())
}

func (s *ControllerMockSuite) TestSubmitEmitsAuditAndStatusEvent() {
	data := s.record()
	data.OverallStatus = models.StatusInProgress
	data.PersonalInfo = models.PersonalInfo{FullName: "Jane", NationalID: "123456789"}
	data.PersonalInfoStatus = models.SubStatusCompleted
	data.Documents.Status = models.SubStatusCompleted
	data.SelfieStatus = models.SubStatusCompleted
	data.Phone = models.PhoneVerification{PhoneNumber: "+26771000000", Verified: true}
	s.ready(data)

	s.store.EXPECT().Upsert(gomock.Any(), gomock.Any()).DoAndReturn(echo)
	s.publisher.EXPECT().PublishStatusChanged(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, event events.StatusChanged) error {
			s.Equal(models.StatusInProgress, event.From)
			s.Equal(models.StatusSubmitted, event.To)
			s.Equal("req-1", event.CorrelationID)
			return nil
		})
	s.audit.EXPECT().Emit(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, event audit.ComplianceEvent) error {
			s.Equal(audit.EventVerificationSubmitted, event.Action)
			s.Equal(s.userID, event.UserID)
			s.Equal(audit.HashSubjectID("123456789"), event.SubjectIDHash)
			s.Equal("req-1", event.RequestID)
			return nil
		})

	saved, err := s.ctrl.SubmitForReview(s.ctx)
	s.Require().NoError(err)
	s.Equal(models.StatusSubmitted, saved.OverallStatus)
	s.Equal(1.0, testutil.ToFloat64(s.metrics.EventsPublished.WithLabelValues("published")))
}

func (s *ControllerMockSuite) TestSideEffectFailuresDoNotFailSubmission() {
	data := s.record()
	data.OverallStatus = models.StatusInProgress
	data.PersonalInfo.FullName = "Jane"
	data.PersonalInfoStatus = models.SubStatusCompleted
	data.Documents.Status = models.SubStatusCompleted
	data.SelfieStatus = models.SubStatusCompleted
	data.Phone = models.PhoneVerification{PhoneNumber: "+26771000000", Verified: true}
	s.ready(data)

	s.store.EXPECT().Upsert(gomock.Any(), gomock.Any()).DoAndReturn(echo)
	s.publisher.EXPECT().PublishStatusChanged(gomock.Any(), gomock.Any()).Return(errors.New("broker down"))
	s.audit.EXPECT().Emit(gomock.Any(), gomock.Any()).Return(errors.New("audit down"))

	saved, err := s.ctrl.SubmitForReview(s.ctx)
	s.Require().NoError(err)
	s.Equal(models.StatusSubmitted, saved.OverallStatus)
	s.Equal(models.StatusSubmitted, s.ctrl.Data().OverallStatus)
	s.Equal(1.0, testutil.ToFloat64(s.metrics.EventsPublished.WithLabelValues("failed")))
}

func (s *ControllerMockSuite) TestResultDiscardedAfterReset() {
	s.ready(s.record())

	s.store.EXPECT().Upsert(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, d *models.VerificationData) (*models.VerificationData, error) {
			s.ctrl.ResetVerification()
			return d.Clone(), nil
		})
	s.publisher.EXPECT().PublishStatusChanged(gomock.Any(), gomock.Any()).Return(nil)

	saved, err := s.ctrl.CompleteSelfieVerification(s.ctx)
	s.Require().NoError(err)
	s.True(saved.SelfieComplete())
	s.Nil(s.ctrl.Data())
	s.Equal(controller.StateUninitialized, s.ctrl.State())
}

func (s *ControllerMockSuite) TestFailureDiscardedAfterClose() {
	s.ready(s.record())

	s.store.EXPECT().Upsert(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, _ *models.VerificationData) (*models.VerificationData, error) {
			s.ctrl.Close()
			return nil, errors.New("late failure")
		})

	_, err := s.ctrl.CompleteSelfieVerification(s.ctx)
	s.True(dErrors.HasCode(err, dErrors.CodePersistence))
	s.Nil(s.ctrl.Data())
	s.Equal(controller.StateClosed, s.ctrl.State())
}

func (s *ControllerMockSuite) TestReadsDoNotBlockDuringWrite() {
	s.ready(s.record())

	entered := make(chan struct{})
	release := make(chan struct{})
	s.store.EXPECT().Upsert(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, d *models.VerificationData) (*models.VerificationData, error) {
			close(entered)
			<-release
			return d.Clone(), nil
		})
	s.publisher.EXPECT().PublishStatusChanged(gomock.Any(), gomock.Any()).Return(nil)

	done := make(chan error, 1)
	go func() {
		_, err := s.ctrl.CompleteSelfieVerification(s.ctx)
		done <- err
	}()

	<-entered
	s.Equal(controller.StateMutating, s.ctrl.State())
	s.True(s.ctrl.Data().SelfieComplete())
	close(release)
	s.Require().NoError(<-done)
	s.Equal(controller.StateReady, s.ctrl.State())
}

type activityLog struct {
	mu     sync.Mutex
	events []audit.Event
}

func (l *activityLog) Emit(_ context.Context, event audit.Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, event)
}

func (s *ControllerSuite) TestActivityIsRecorded() {
	journal := &activityLog{}
	s.ctrl = controller.New(s.store, controller.WithActivityRecorder(journal))
	s.initialize()

	_, err := s.ctrl.NavigateToStep(s.ctx, models.StepPersonalInfo)
	s.Require().NoError(err)

	s.Require().Len(journal.events, 2)
	s.Equal(string(audit.EventVerificationStarted), journal.events[0].Action)
	s.Equal(audit.CategoryOperations, journal.events[0].Category)
	s.Equal(string(audit.EventVerificationStepNavigate), journal.events[1].Action)
	s.Equal("personal_info", journal.events[1].Decision)
}

func (s *ControllerSuite) TestRefreshReproducesWrittenFields() {
	s.initialize()
	written, err := s.ctrl.UpdatePersonalInfo(s.ctx, models.PersonalInfoUpdate{
		FullName:    ptr("Jane Doe"),
		DateOfBirth: ptr("1990-01-31"),
		Address:     &models.AddressUpdate{City: ptr("Gaborone"), Country: ptr("BW")},
	})
	s.Require().NoError(err)

	refreshed, err := s.ctrl.RefreshData(s.ctx)
	s.Require().NoError(err)
	s.Equal(written, refreshed)
	s.Equal("Gaborone", refreshed.PersonalInfo.Address.City)
}
