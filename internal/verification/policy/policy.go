// Package policy holds the pure step rules of the verification flow: which
// steps are complete, which may be visited, and where the user belongs next.
// Nothing here performs I/O.
package policy

import (
	"encoding/json"

	"mobirides/internal/verification/models"
)

// StepSet is an unordered set of steps. It marshals as an ordered JSON array.
type StepSet map[models.Step]struct{}

func (s StepSet) Has(step models.Step) bool {
	_, ok := s[step]
	return ok
}

func (s StepSet) Len() int {
	return len(s)
}

// Ordered returns the members in flow order.
func (s StepSet) Ordered() []models.Step {
	out := make([]models.Step, 0, len(s))
	for _, step := range models.Steps() {
		if s.Has(step) {
			out = append(out, step)
		}
	}
	return out
}

func (s StepSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Ordered())
}

func (s *StepSet) UnmarshalJSON(b []byte) error {
	var steps []models.Step
	if err := json.Unmarshal(b, &steps); err != nil {
		return err
	}
	set := make(StepSet, len(steps))
	for _, step := range steps {
		set[step] = struct{}{}
	}
	*s = set
	return nil
}

// Steps returns the fixed step order.
func Steps() []models.Step {
	return models.Steps()
}

// CompletedSteps returns the steps whose sub-status is complete. A record
// awaiting reverification has no completed steps regardless of its fields.
func CompletedSteps(data *models.VerificationData) StepSet {
	done := StepSet{}
	if data == nil || data.OverallStatus == models.StatusRequiresReverification {
		return done
	}
	for _, step := range models.Steps() {
		if isStepComplete(data, step) {
			done[step] = struct{}{}
		}
	}
	return done
}

func isStepComplete(data *models.VerificationData, step models.Step) bool {
	switch step {
	case models.StepPersonalInfo:
		return data.PersonalInfoComplete()
	case models.StepDocumentUpload:
		return data.DocumentsComplete()
	case models.StepSelfie:
		return data.SelfieComplete()
	case models.StepPhone:
		return data.PhoneComplete()
	case models.StepReview:
		return data.OverallStatus == models.StatusSubmitted || data.OverallStatus == models.StatusApproved
	default:
		return false
	}
}

// CanNavigateToStep reports whether the user may open step: either it is the
// current step, or every step before it is complete.
func CanNavigateToStep(data *models.VerificationData, step models.Step) bool {
	if data == nil || !step.IsValid() {
		return false
	}
	if step == data.CurrentStep {
		return true
	}
	done := CompletedSteps(data)
	for _, prior := range models.Steps()[:step.Index()] {
		if !done.Has(prior) {
			return false
		}
	}
	return true
}

// DeriveCurrentStep returns the first incomplete step before review, or
// review once all of them are done.
func DeriveCurrentStep(data *models.VerificationData) models.Step {
	done := CompletedSteps(data)
	for _, step := range RequiredSteps() {
		if !done.Has(step) {
			return step
		}
	}
	return models.StepReview
}

// RequiredSteps lists the steps that must be complete before submission.
func RequiredSteps() []models.Step {
	steps := models.Steps()
	return steps[:len(steps)-1]
}

// MissingSteps returns the required steps that are still incomplete, in order.
func MissingSteps(data *models.VerificationData) []models.Step {
	done := CompletedSteps(data)
	var missing []models.Step
	for _, step := range RequiredSteps() {
		if !done.Has(step) {
			missing = append(missing, step)
		}
	}
	return missing
}

// CanSubmit reports whether all required steps are complete.
func CanSubmit(data *models.VerificationData) bool {
	return data != nil && len(MissingSteps(data)) == 0
}
