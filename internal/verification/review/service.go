// Package review applies back-office decisions to submitted verifications.
// Each decision and its compliance audit record commit together.
package review

import (
	"context"
	"errors"
	"log/slog"

	"mobirides/internal/verification/events"
	"mobirides/internal/verification/metrics"
	"mobirides/internal/verification/models"
	id "mobirides/pkg/domain"
	dErrors "mobirides/pkg/domain-errors"
	"mobirides/pkg/platform/audit"
	"mobirides/pkg/platform/sentinel"
	"mobirides/pkg/requestcontext"
)

// Store is the subset of the record store used for review decisions.
type Store interface {
	Execute(ctx context.Context, userID id.UserID, validate func(*models.VerificationData) error, mutate func(*models.VerificationData)) (*models.VerificationData, error)
	ListByStatus(ctx context.Context, status models.Status) ([]*models.VerificationData, error)
}

// TxRunner opens the transaction shared by the record update and its audit
// event. The callback context carries the transaction.
type TxRunner interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.ComplianceEvent) error
}

type StatusPublisher interface {
	PublishStatusChanged(ctx context.Context, event events.StatusChanged) error
}

type invalidator interface {
	Invalidate(ctx context.Context, userID id.UserID)
}

type inlineRunner struct{}

func (inlineRunner) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type Service struct {
	store   Store
	audit   AuditPublisher
	tx      TxRunner
	events  StatusPublisher
	metrics *metrics.Metrics
	logger  *slog.Logger
}

type Option func(*Service)

// WithTxRunner sets the transaction runner. With one, the audit row and the
// record update commit together; without one, the audit is written first and
// a failed audit leaves the record untouched, but a record write failing
// after a successful audit leaves that audit row behind.
func WithTxRunner(tx TxRunner) Option {
	return func(s *Service) {
		s.tx = tx
	}
}

func WithStatusPublisher(p StatusPublisher) Option {
	return func(s *Service) {
		s.events = p
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func New(store Store, auditor AuditPublisher, opts ...Option) *Service {
	s := &Service{
		store:  store,
		audit:  auditor,
		tx:     inlineRunner{},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type decision struct {
	kind     events.Decision
	action   audit.AuditEvent
	reason   string
	validate func(*models.VerificationData) error
	mutate   func(*models.VerificationData)
}

// Approve accepts a submitted verification. Every required step must be
// complete.
func (s *Service) Approve(ctx context.Context, userID, reviewerID id.UserID) (*models.VerificationData, error) {
	now := requestcontext.Now(ctx)
	return s.decide(ctx, userID, reviewerID, decision{
		kind:     events.DecisionApprove,
		action:   audit.EventVerificationApproved,
		validate: (*models.VerificationData).CanApprove,
		mutate: func(d *models.VerificationData) {
			d.ApplyApproval(reviewerID, now)
		},
	})
}

// Reject returns a submitted verification to the user with a reason.
func (s *Service) Reject(ctx context.Context, userID, reviewerID id.UserID, reason string) (*models.VerificationData, error) {
	now := requestcontext.Now(ctx)
	return s.decide(ctx, userID, reviewerID, decision{
		kind:   events.DecisionReject,
		action: audit.EventVerificationRejected,
		reason: reason,
		validate: func(d *models.VerificationData) error {
			return d.CanReject(reason)
		},
		mutate: func(d *models.VerificationData) {
			d.ApplyRejection(reviewerID, reason, now)
		},
	})
}

// RequireReverification restarts the flow for a user who has started it.
func (s *Service) RequireReverification(ctx context.Context, userID, reviewerID id.UserID, reason string) (*models.VerificationData, error) {
	now := requestcontext.Now(ctx)
	return s.decide(ctx, userID, reviewerID, decision{
		kind:     events.DecisionRequireReverification,
		action:   audit.EventReverificationRequired,
		reason:   reason,
		validate: (*models.VerificationData).CanRequireReverification,
		mutate: func(d *models.VerificationData) {
			d.ApplyReverification(reviewerID, reason, now)
		},
	})
}

// ListByStatus returns the review queue for status, oldest first.
func (s *Service) ListByStatus(ctx context.Context, status models.Status) ([]*models.VerificationData, error) {
	if !status.IsValid() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "unknown status: "+string(status))
	}
	records, err := s.store.ListByStatus(ctx, status)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list verifications")
	}
	return records, nil
}

func (s *Service) decide(ctx context.Context, userID, reviewerID id.UserID, d decision) (*models.VerificationData, error) {
	if userID.IsNil() || reviewerID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "user id and reviewer id are required")
	}

	var (
		saved *models.VerificationData
		from  models.Status
	)
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		record, err := s.store.Execute(ctx, userID, func(data *models.VerificationData) error {
			from = data.OverallStatus
			if err := d.validate(data); err != nil {
				return err
			}
			return s.emitAudit(ctx, userID, reviewerID, d, data)
		}, d.mutate)
		if err != nil {
			return err
		}
		saved = record
		return nil
	})
	if err != nil {
		s.invalidate(ctx, userID)
		return nil, s.translate(ctx, userID, d.kind, err)
	}

	if s.metrics != nil {
		s.metrics.IncReviewDecision(string(d.kind))
	}
	s.logger.InfoContext(ctx, "verification review decision applied",
		"user_id", userID.String(),
		"reviewer_id", reviewerID.String(),
		"decision", string(d.kind),
		"from", string(from),
		"to", string(saved.OverallStatus),
	)
	s.publish(ctx, saved, from, reviewerID)
	return saved, nil
}

// emitAudit records the decision before the store writes it. The event is
// built from a projection of the mutation, so an audit failure aborts the
// decision whether or not a transaction is open.
func (s *Service) emitAudit(ctx context.Context, userID, reviewerID id.UserID, d decision, current *models.VerificationData) error {
	projected := current.Clone()
	d.mutate(projected)
	if err := s.audit.Emit(ctx, audit.ComplianceEvent{
		Timestamp:     requestcontext.Now(ctx),
		UserID:        userID,
		Action:        d.action,
		Decision:      string(projected.OverallStatus),
		Reason:        projected.RejectionReason,
		SubjectIDHash: audit.HashSubjectID(projected.PersonalInfo.NationalID),
		RequestID:     requestcontext.RequestID(ctx),
		ActorID:       reviewerID.String(),
	}); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to record review audit")
	}
	return nil
}

// invalidate drops a cached copy that may hold a write the transaction
// rolled back.
func (s *Service) invalidate(ctx context.Context, userID id.UserID) {
	if inv, ok := s.store.(invalidator); ok {
		inv.Invalidate(ctx, userID)
	}
}

func (s *Service) translate(ctx context.Context, userID id.UserID, kind events.Decision, err error) error {
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.New(dErrors.CodeNotFound, "verification not found")
	}
	if _, ok := dErrors.As(err); ok {
		return err
	}
	s.logger.ErrorContext(ctx, "verification review decision failed",
		"user_id", userID.String(),
		"decision", string(kind),
		"error", err,
	)
	return dErrors.Wrap(err, dErrors.CodePersistence, "failed to apply review decision")
}

func (s *Service) publish(ctx context.Context, saved *models.VerificationData, from models.Status, reviewerID id.UserID) {
	if s.events == nil {
		return
	}
	event := events.NewStatusChanged(saved, from, reviewerID.String(), requestcontext.RequestID(ctx), requestcontext.Now(ctx))
	if err := s.events.PublishStatusChanged(ctx, event); err != nil {
		if s.metrics != nil {
			s.metrics.IncEventPublished("failed")
		}
		s.logger.ErrorContext(ctx, "failed to publish verification status change",
			"user_id", saved.UserID.String(),
			"error", err,
		)
		return
	}
	if s.metrics != nil {
		s.metrics.IncEventPublished("published")
	}
}
