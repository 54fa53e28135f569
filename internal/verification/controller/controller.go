// Package controller holds the in-memory state of one user's verification
// flow. It mirrors the stored record, exposes the user actions, and
// reconciles optimistic local changes with the outcome of each remote write.
//
// One Controller serves one user. Actions are serialized; reads never block
// on a remote call. Results of remote calls are applied only while the
// controller is still active and has not been reset since the call started.
package controller

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"mobirides/internal/verification/events"
	"mobirides/internal/verification/metrics"
	"mobirides/internal/verification/models"
	"mobirides/internal/verification/policy"
	id "mobirides/pkg/domain"
	dErrors "mobirides/pkg/domain-errors"
	"mobirides/pkg/platform/audit"
	"mobirides/pkg/platform/sentinel"
	"mobirides/pkg/requestcontext"
)

// Store is the remote record store used by the controller.
type Store interface {
	Get(ctx context.Context, userID id.UserID) (*models.VerificationData, error)
	Create(ctx context.Context, data *models.VerificationData) (*models.VerificationData, error)
	Upsert(ctx context.Context, data *models.VerificationData) (*models.VerificationData, error)
}

// AuditPublisher records compliance events for submissions.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.ComplianceEvent) error
}

// StatusPublisher announces overall status changes.
type StatusPublisher interface {
	PublishStatusChanged(ctx context.Context, event events.StatusChanged) error
}

// ActivityRecorder takes operational audit events. Emit must not block.
type ActivityRecorder interface {
	Emit(ctx context.Context, event audit.Event)
}

// State is the controller lifecycle phase. The verification status itself
// lives on the record.
type State string

const (
	StateUninitialized State = "uninitialized"
	StateLoading       State = "loading"
	StateReady         State = "ready"
	StateMutating      State = "mutating"
	StateClosed        State = "closed"
)

type Controller struct {
	store   Store
	audit   AuditPublisher
	events  StatusPublisher
	journal ActivityRecorder
	metrics *metrics.Metrics
	logger  *slog.Logger
	tracer  trace.Tracer

	// ops serializes actions so mutations never interleave.
	ops sync.Mutex

	mu         sync.RWMutex
	state      State
	data       *models.VerificationData
	userID     id.UserID
	generation uint64
	closed     bool
	done       chan struct{}
}

type Option func(*Controller)

func WithLogger(logger *slog.Logger) Option {
	return func(c *Controller) {
		c.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Controller) {
		c.metrics = m
	}
}

func WithAuditPublisher(p AuditPublisher) Option {
	return func(c *Controller) {
		c.audit = p
	}
}

func WithStatusPublisher(p StatusPublisher) Option {
	return func(c *Controller) {
		c.events = p
	}
}

func WithActivityRecorder(r ActivityRecorder) Option {
	return func(c *Controller) {
		c.journal = r
	}
}

func WithTracer(t trace.Tracer) Option {
	return func(c *Controller) {
		c.tracer = t
	}
}

func New(store Store, opts ...Option) *Controller {
	c := &Controller{
		store:  store,
		logger: slog.Default(),
		tracer: otel.Tracer("mobirides/verification/controller"),
		state:  StateUninitialized,
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

var (
	errClosed         = dErrors.New(dErrors.CodePrecondition, "verification session is closed")
	errNotInitialized = dErrors.New(dErrors.CodePrecondition, "verification is not initialized")
)

// InitializeVerification loads the user's record, creating it on first use.
func (c *Controller) InitializeVerification(ctx context.Context, userID id.UserID, role id.Role) (*models.VerificationData, error) {
	c.ops.Lock()
	defer c.ops.Unlock()

	ctx, span := c.startSpan(ctx, "initialize", userID)
	defer span.End()

	if userID.IsNil() {
		return nil, spanError(span, dErrors.New(dErrors.CodeInvalidInput, "user id is required"))
	}
	if !role.CanVerify() {
		return nil, spanError(span, dErrors.New(dErrors.CodeInvalidInput, "role cannot start verification: "+role.String()))
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, spanError(span, errClosed)
	}
	gen := c.generation
	prevState := c.state
	c.state = StateLoading
	c.mu.Unlock()

	data, outcome, err := c.loadOrCreate(ctx, userID, role)
	if err != nil {
		c.apply(gen, func() { c.state = prevState })
		c.incInitialization("failed")
		c.logger.ErrorContext(ctx, "verification initialization failed",
			"user_id", userID.String(),
			"error", err,
		)
		return nil, spanError(span, dErrors.Wrap(err, dErrors.CodeInitialization, "failed to initialize verification"))
	}
	c.incInitialization(outcome)

	applied := c.apply(gen, func() {
		c.userID = userID
		c.data = data.Clone()
		c.state = StateReady
	})
	if !applied {
		c.logger.DebugContext(ctx, "discarding initialization result for inactive controller", "user_id", userID.String())
	}
	if outcome == "created" {
		c.logger.InfoContext(ctx, "verification record created",
			"user_id", userID.String(),
			"role", role.String(),
		)
		c.record(ctx, userID, audit.EventVerificationStarted, string(models.StatusNotStarted))
	}
	return data, nil
}

func (c *Controller) loadOrCreate(ctx context.Context, userID id.UserID, role id.Role) (*models.VerificationData, string, error) {
	start := time.Now()
	data, err := c.store.Get(ctx, userID)
	c.observeStore("get", start)
	if err == nil {
		return models.Normalize(data), "loaded", nil
	}
	if !errors.Is(err, sentinel.ErrNotFound) {
		return nil, "", err
	}

	fresh, err := models.NewVerificationData(userID, role, requestcontext.Now(ctx))
	if err != nil {
		return nil, "", err
	}
	start = time.Now()
	created, err := c.store.Create(ctx, fresh)
	c.observeStore("create", start)
	if errors.Is(err, sentinel.ErrConflict) {
		// Another session created the record first; adopt theirs.
		data, err = c.store.Get(ctx, userID)
		if err != nil {
			return nil, "", err
		}
		return models.Normalize(data), "loaded", nil
	}
	if err != nil {
		return nil, "", err
	}
	return models.Normalize(created), "created", nil
}

// RefreshData re-reads the record and overwrites local state. Out-of-band
// writes, such as a review decision, win over what the controller held.
func (c *Controller) RefreshData(ctx context.Context) (*models.VerificationData, error) {
	c.ops.Lock()
	defer c.ops.Unlock()

	c.mu.RLock()
	if err := c.usableLocked(); err != nil {
		c.mu.RUnlock()
		return nil, err
	}
	gen := c.generation
	userID := c.userID
	c.mu.RUnlock()

	ctx, span := c.startSpan(ctx, "refresh", userID)
	defer span.End()

	start := time.Now()
	data, err := c.store.Get(ctx, userID)
	c.observeStore("get", start)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, spanError(span, dErrors.New(dErrors.CodeNotFound, "verification record no longer exists"))
		}
		return nil, spanError(span, dErrors.Wrap(err, dErrors.CodeInitialization, "failed to refresh verification"))
	}
	data = models.Normalize(data)
	c.apply(gen, func() {
		c.data = data.Clone()
		c.state = StateReady
	})
	return data, nil
}

// RefreshFromProfile reloads after the user's profile changed elsewhere.
func (c *Controller) RefreshFromProfile(ctx context.Context) (*models.VerificationData, error) {
	return c.RefreshData(ctx)
}

// ResetVerification clears local state only. The stored record is kept and
// the next InitializeVerification reloads it. In-flight results are dropped.
func (c *Controller) ResetVerification() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.generation++
	c.data = nil
	c.userID = id.UserID{}
	c.state = StateUninitialized
}

// Close deactivates the controller. Remote calls already in flight still
// complete, but their results are never applied.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	c.generation++
	c.data = nil
	c.state = StateClosed
	close(c.done)
}

// Done is closed when the controller is closed.
func (c *Controller) Done() <-chan struct{} {
	return c.done
}

// Data returns a copy of the current record, or nil before initialization.
func (c *Controller) Data() *models.VerificationData {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.data.Clone()
}

func (c *Controller) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

func (c *Controller) Active() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return !c.closed
}

func (c *Controller) Initialized() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.data != nil
}

// Progress projects the current record for display.
func (c *Controller) Progress() policy.VerificationProgress {
	return policy.Progress(c.Data())
}

// CanNavigateToStep reports whether the policy permits opening step now.
func (c *Controller) CanNavigateToStep(step models.Step) bool {
	return policy.CanNavigateToStep(c.Data(), step)
}

func (c *Controller) usableLocked() error {
	if c.closed {
		return errClosed
	}
	if c.data == nil {
		return errNotInitialized
	}
	return nil
}

// apply runs fn under the state lock if the controller is still active and
// no reset happened since gen was captured.
func (c *Controller) apply(gen uint64, fn func()) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.generation != gen {
		return false
	}
	fn()
	return true
}

func (c *Controller) startSpan(ctx context.Context, action string, userID id.UserID) (context.Context, trace.Span) {
	ctx, span := c.tracer.Start(ctx, "verification."+action)
	if !userID.IsNil() {
		span.SetAttributes(attribute.String("user_id", userID.String()))
	}
	return ctx, span
}

func spanError(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

func (c *Controller) incInitialization(outcome string) {
	if c.metrics != nil {
		c.metrics.IncInitialization(outcome)
	}
}

func (c *Controller) record(ctx context.Context, userID id.UserID, action audit.AuditEvent, decision string) {
	if c.journal == nil {
		return
	}
	c.journal.Emit(ctx, audit.Event{
		Category:  action.Category(),
		Timestamp: requestcontext.Now(ctx),
		UserID:    userID,
		Action:    string(action),
		Decision:  decision,
		RequestID: requestcontext.RequestID(ctx),
		Device:    requestcontext.Device(ctx),
	})
}

func (c *Controller) observeStore(operation string, start time.Time) {
	if c.metrics != nil {
		c.metrics.ObserveStore(operation, start)
	}
}
