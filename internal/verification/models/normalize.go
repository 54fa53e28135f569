package models

// Normalize repairs a record read from storage so downstream code never sees
// unknown enum values. An unknown overall status is treated as in_progress
// with every sub-status reset; unknown sub-statuses become pending and an
// unknown step falls back to the first step.
func Normalize(v *VerificationData) *VerificationData {
	if v == nil {
		return nil
	}
	if !v.OverallStatus.IsValid() {
		v.OverallStatus = StatusInProgress
		v.PersonalInfoStatus = SubStatusPending
		v.Documents = DocumentUpload{Status: SubStatusPending}
		v.SelfieStatus = SubStatusPending
		v.Phone.Verified = false
		v.Phone.VerifiedAt = nil
	}
	if !v.PersonalInfoStatus.IsValid() {
		v.PersonalInfoStatus = SubStatusPending
	}
	if !v.Documents.Status.IsValid() {
		v.Documents.Status = SubStatusPending
	}
	if !v.SelfieStatus.IsValid() {
		v.SelfieStatus = SubStatusPending
	}
	if len(v.Documents.Kinds) > 0 {
		kinds := v.Documents.Kinds[:0]
		for _, k := range v.Documents.Kinds {
			if k.IsValid() {
				kinds = append(kinds, k)
			}
		}
		v.Documents.Kinds = kinds
	}
	if !v.CurrentStep.IsValid() {
		v.CurrentStep = StepPersonalInfo
	}
	return v
}
