package models

import (
	"strings"

	dErrors "mobirides/pkg/domain-errors"
)

// Step is one stage of the verification flow. The order is fixed and total;
// there are no branches.
type Step string

const (
	StepPersonalInfo   Step = "personal_info"
	StepDocumentUpload Step = "document_upload"
	StepSelfie         Step = "selfie"
	StepPhone          Step = "phone"
	StepReview         Step = "review"
)

var orderedSteps = []Step{
	StepPersonalInfo,
	StepDocumentUpload,
	StepSelfie,
	StepPhone,
	StepReview,
}

// Steps returns the ordered step list. The slice is a copy.
func Steps() []Step {
	return append([]Step(nil), orderedSteps...)
}

// Index returns the step's position in the flow, or -1 for unknown steps.
func (s Step) Index() int {
	for i, step := range orderedSteps {
		if step == s {
			return i
		}
	}
	return -1
}

func (s Step) IsValid() bool {
	return s.Index() >= 0
}

func (s Step) String() string {
	return string(s)
}

// ParseStep validates a step name from external input. Hyphenated names
// ("document-upload") are accepted for client compatibility.
func ParseStep(raw string) (Step, error) {
	if raw == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "step cannot be empty")
	}
	s := Step(strings.ReplaceAll(strings.TrimSpace(raw), "-", "_"))
	if !s.IsValid() {
		return "", dErrors.New(dErrors.CodeInvalidInput, "unknown step: "+raw)
	}
	return s, nil
}
