package controller

import (
	"context"
	"strings"
	"time"

	"mobirides/internal/verification/events"
	"mobirides/internal/verification/models"
	"mobirides/internal/verification/policy"
	id "mobirides/pkg/domain"
	dErrors "mobirides/pkg/domain-errors"
	"mobirides/pkg/platform/audit"
	"mobirides/pkg/requestcontext"
)

const (
	actionUpdatePersonalInfo = "update_personal_info"
	actionUpdatePhone        = "update_phone"
	actionCompleteDocuments  = "complete_documents"
	actionCompleteSelfie     = "complete_selfie"
	actionSubmit             = "submit"
	actionNavigate           = "navigate"
)

// change edits a working copy of the record. Returning false with a nil
// error means there is nothing to persist.
type change func(data *models.VerificationData, now time.Time) (bool, error)

// UpdatePersonalInfo merges the set fields of update. An empty update is a
// no-op and nothing is written.
func (c *Controller) UpdatePersonalInfo(ctx context.Context, update models.PersonalInfoUpdate) (*models.VerificationData, error) {
	return c.mutate(ctx, actionUpdatePersonalInfo, func(d *models.VerificationData, now time.Time) (bool, error) {
		if err := d.CanEdit(); err != nil {
			return false, err
		}
		if update.IsEmpty() {
			return false, nil
		}
		d.BeginEdit()
		d.ApplyPersonalInfo(update, now)
		d.CurrentStep = policy.DeriveCurrentStep(d)
		return true, nil
	})
}

// UpdatePhoneVerification merges the set fields of update. An empty update
// is a no-op and nothing is written.
func (c *Controller) UpdatePhoneVerification(ctx context.Context, update models.PhoneVerificationUpdate) (*models.VerificationData, error) {
	return c.mutate(ctx, actionUpdatePhone, func(d *models.VerificationData, now time.Time) (bool, error) {
		if err := d.CanEdit(); err != nil {
			return false, err
		}
		if update.IsEmpty() {
			return false, nil
		}
		number := d.Phone.PhoneNumber
		if update.PhoneNumber != nil {
			number = strings.TrimSpace(*update.PhoneNumber)
		}
		if number == "" && update.Verified != nil && *update.Verified {
			return false, dErrors.New(dErrors.CodeValidation, "cannot verify an empty phone number")
		}
		d.BeginEdit()
		d.ApplyPhone(update, now)
		d.CurrentStep = policy.DeriveCurrentStep(d)
		return true, nil
	})
}

// CompleteDocumentUpload marks the document step complete for userID, which
// must be the controller's user, and records the uploaded kinds.
func (c *Controller) CompleteDocumentUpload(ctx context.Context, userID id.UserID, kinds ...models.DocumentKind) (*models.VerificationData, error) {
	for _, k := range kinds {
		if !k.IsValid() {
			return nil, dErrors.New(dErrors.CodeInvalidInput, "unknown document kind: "+string(k))
		}
	}
	return c.mutate(ctx, actionCompleteDocuments, func(d *models.VerificationData, now time.Time) (bool, error) {
		if d.UserID != userID {
			return false, dErrors.New(dErrors.CodeForbidden, "documents belong to a different user")
		}
		if err := d.CanEdit(); err != nil {
			return false, err
		}
		d.BeginEdit()
		d.ApplyDocumentsCompleted(kinds, now)
		d.CurrentStep = policy.DeriveCurrentStep(d)
		return true, nil
	})
}

// CompleteSelfieVerification marks the selfie step complete.
func (c *Controller) CompleteSelfieVerification(ctx context.Context) (*models.VerificationData, error) {
	return c.mutate(ctx, actionCompleteSelfie, func(d *models.VerificationData, now time.Time) (bool, error) {
		if err := d.CanEdit(); err != nil {
			return false, err
		}
		d.BeginEdit()
		d.ApplySelfieCompleted(now)
		d.CurrentStep = policy.DeriveCurrentStep(d)
		return true, nil
	})
}

// SubmitForReview locks the record for back-office review. Every required
// step must be complete.
func (c *Controller) SubmitForReview(ctx context.Context) (*models.VerificationData, error) {
	saved, err := c.mutate(ctx, actionSubmit, func(d *models.VerificationData, now time.Time) (bool, error) {
		if d.IsLocked() {
			return false, dErrors.New(dErrors.CodePrecondition, "verification already "+d.OverallStatus.String())
		}
		if missing := policy.MissingSteps(d); len(missing) > 0 {
			return false, dErrors.New(dErrors.CodePrecondition, "cannot submit verification with incomplete steps: "+joinSteps(missing))
		}
		d.ApplySubmission(now)
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	if c.metrics != nil {
		c.metrics.IncSubmission()
	}
	c.emitSubmitted(ctx, saved)
	return saved, nil
}

// NavigateToStep moves the user to step when the policy allows it.
func (c *Controller) NavigateToStep(ctx context.Context, step models.Step) (*models.VerificationData, error) {
	saved, err := c.mutate(ctx, actionNavigate, func(d *models.VerificationData, now time.Time) (bool, error) {
		if err := d.CanEdit(); err != nil {
			return false, err
		}
		if !policy.CanNavigateToStep(d, step) {
			return false, dErrors.New(dErrors.CodeNavigationDenied, "cannot navigate to step "+step.String())
		}
		if d.CurrentStep == step {
			return false, nil
		}
		d.CurrentStep = step
		d.UpdatedAt = now
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	c.record(ctx, saved.UserID, audit.EventVerificationStepNavigate, step.String())
	return saved, nil
}

// mutate applies fn optimistically, persists the result and then either
// adopts the stored record or restores the snapshot taken before fn ran.
func (c *Controller) mutate(ctx context.Context, action string, fn change) (*models.VerificationData, error) {
	c.ops.Lock()
	defer c.ops.Unlock()

	c.mu.Lock()
	if err := c.usableLocked(); err != nil {
		c.mu.Unlock()
		c.incMutation(action, "rejected")
		return nil, err
	}
	gen := c.generation
	userID := c.userID
	snapshot := c.data.Clone()
	working := snapshot.Clone()
	changed, err := fn(working, requestcontext.Now(ctx))
	if err != nil || !changed {
		c.mu.Unlock()
		if err != nil {
			c.incMutation(action, "rejected")
			return nil, err
		}
		c.incMutation(action, "noop")
		return snapshot, nil
	}
	c.data = working.Clone()
	c.state = StateMutating
	c.mu.Unlock()

	ctx, span := c.startSpan(ctx, action, userID)
	defer span.End()

	start := time.Now()
	saved, err := c.store.Upsert(ctx, working)
	c.observeStore("upsert", start)

	if err != nil {
		c.apply(gen, func() {
			c.data = snapshot
			c.state = StateReady
		})
		c.incMutation(action, "failed")
		if c.metrics != nil {
			c.metrics.IncRollback(action)
		}
		c.logger.WarnContext(ctx, "verification write failed, local changes rolled back",
			"user_id", userID.String(),
			"action", action,
			"error", err,
		)
		return nil, spanError(span, dErrors.Wrap(err, dErrors.CodePersistence, "failed to save verification"))
	}

	saved = models.Normalize(saved)
	applied := c.apply(gen, func() {
		c.data = saved.Clone()
		c.state = StateReady
	})
	if !applied {
		c.logger.DebugContext(ctx, "discarding write result for inactive controller",
			"user_id", userID.String(),
			"action", action,
		)
	}
	c.incMutation(action, "success")
	if saved.OverallStatus != snapshot.OverallStatus {
		c.publishStatusChange(ctx, saved, snapshot.OverallStatus)
	}
	return saved, nil
}

// emitSubmitted records the compliance event after the submission is stored.
// The write cannot be undone at this point, so a failure is logged rather
// than returned.
func (c *Controller) emitSubmitted(ctx context.Context, saved *models.VerificationData) {
	if c.audit == nil {
		return
	}
	err := c.audit.Emit(ctx, audit.ComplianceEvent{
		Timestamp:     requestcontext.Now(ctx),
		UserID:        saved.UserID,
		Action:        audit.EventVerificationSubmitted,
		Decision:      string(models.StatusSubmitted),
		SubjectIDHash: audit.HashSubjectID(saved.PersonalInfo.NationalID),
		RequestID:     requestcontext.RequestID(ctx),
		Device:        requestcontext.Device(ctx),
	})
	if err != nil {
		c.logger.ErrorContext(ctx, "submission audit failed",
			"user_id", saved.UserID.String(),
			"error", err,
		)
	}
}

func (c *Controller) publishStatusChange(ctx context.Context, saved *models.VerificationData, from models.Status) {
	if c.events == nil {
		return
	}
	event := events.NewStatusChanged(saved, from, saved.UserID.String(), requestcontext.RequestID(ctx), requestcontext.Now(ctx))
	if err := c.events.PublishStatusChanged(ctx, event); err != nil {
		if c.metrics != nil {
			c.metrics.IncEventPublished("failed")
		}
		c.logger.ErrorContext(ctx, "failed to publish verification status change",
			"user_id", saved.UserID.String(),
			"to", string(saved.OverallStatus),
			"error", err,
		)
		return
	}
	if c.metrics != nil {
		c.metrics.IncEventPublished("published")
	}
}

func (c *Controller) incMutation(action, outcome string) {
	if c.metrics != nil {
		c.metrics.IncMutation(action, outcome)
	}
}

func joinSteps(steps []models.Step) string {
	names := make([]string, len(steps))
	for i, s := range steps {
		names[i] = s.String()
	}
	return strings.Join(names, ", ")
}
