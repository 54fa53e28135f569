package policy

import "mobirides/internal/verification/models"

// StepState is the display projection of a single step.
type StepState struct {
	Step      models.Step `json:"step"`
	Completed bool        `json:"completed"`
	Navigable bool        `json:"navigable"`
	Current   bool        `json:"current"`
}

// VerificationProgress is the display-ready summary of a record.
type VerificationProgress struct {
	CurrentStep      models.Step   `json:"current_step"`
	CurrentStepIndex int           `json:"current_step_index"`
	TotalSteps       int           `json:"total_steps"`
	CompletedSteps   StepSet       `json:"completed_steps"`
	OverallStatus    models.Status `json:"overall_status"`
	PercentComplete  int           `json:"percent_complete"`
	CanSubmit        bool          `json:"can_submit"`
	Steps            []StepState   `json:"steps"`
}

// Progress projects data into a progress summary. Percent complete counts
// every step including review, so a submitted record reads 100.
func Progress(data *models.VerificationData) VerificationProgress {
	steps := models.Steps()
	done := CompletedSteps(data)
	progress := VerificationProgress{
		TotalSteps:     len(steps),
		CompletedSteps: done,
		Steps:          make([]StepState, 0, len(steps)),
	}
	if data == nil {
		progress.CurrentStepIndex = -1
		return progress
	}

	progress.CurrentStep = data.CurrentStep
	progress.CurrentStepIndex = data.CurrentStep.Index()
	progress.OverallStatus = data.OverallStatus
	progress.PercentComplete = done.Len() * 100 / len(steps)
	progress.CanSubmit = CanSubmit(data) && !data.IsLocked()
	for _, step := range steps {
		progress.Steps = append(progress.Steps, StepState{
			Step:      step,
			Completed: done.Has(step),
			Navigable: CanNavigateToStep(data, step),
			Current:   step == data.CurrentStep,
		})
	}
	return progress
}
