package models

import (
	"strings"
	"time"

	id "mobirides/pkg/domain"
	dErrors "mobirides/pkg/domain-errors"
)

// Address is the postal address captured in the personal info step.
type Address struct {
	Street  string `json:"street"`
	City    string `json:"city"`
	Country string `json:"country"`
}

// PersonalInfo is filled incrementally; any field may be empty until the
// user confirms the step.
type PersonalInfo struct {
	FullName    string  `json:"full_name"`
	DateOfBirth string  `json:"date_of_birth"`
	NationalID  string  `json:"national_id"`
	Address     Address `json:"address"`
}

// HasRequiredFields reports whether the step can be marked complete.
func (p PersonalInfo) HasRequiredFields() bool {
	return strings.TrimSpace(p.FullName) != ""
}

// PhoneVerification tracks the phone number and its OTP confirmation.
type PhoneVerification struct {
	PhoneNumber string     `json:"phone_number"`
	Verified    bool       `json:"verified"`
	VerifiedAt  *time.Time `json:"verified_at,omitempty"`
}

// IsComplete requires both a number and a confirmed OTP.
func (p PhoneVerification) IsComplete() bool {
	return strings.TrimSpace(p.PhoneNumber) != "" && p.Verified
}

// VerificationData is the aggregate root for a user's identity verification.
//
// Invariants:
//   - exactly one record per UserID
//   - OverallStatus cannot be approved while a required sub-status is incomplete
//   - CurrentStep is always a known step
//   - CreatedAt is immutable after construction
type VerificationData struct {
	UserID             id.UserID         `json:"user_id"`
	Role               id.Role           `json:"role"`
	OverallStatus      Status            `json:"overall_status"`
	CurrentStep        Step              `json:"current_step"`
	PersonalInfoStatus SubStatus         `json:"personal_info_status"`
	PersonalInfo       PersonalInfo      `json:"personal_info"`
	Documents          DocumentUpload    `json:"document_upload"`
	SelfieStatus       SubStatus         `json:"selfie_status"`
	Phone              PhoneVerification `json:"phone_verification"`
	RejectionReason    string            `json:"rejection_reason,omitempty"`
	SubmittedAt        *time.Time        `json:"submitted_at,omitempty"`
	ReviewedAt         *time.Time        `json:"reviewed_at,omitempty"`
	ReviewedBy         *id.UserID        `json:"reviewed_by,omitempty"`
	CreatedAt          time.Time         `json:"created_at"`
	UpdatedAt          time.Time         `json:"updated_at"`
}

// NewVerificationData builds the record created on a user's first visit.
func NewVerificationData(userID id.UserID, role id.Role, now time.Time) (*VerificationData, error) {
	if userID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "user id cannot be nil")
	}
	if !role.CanVerify() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "role cannot start verification: "+role.String())
	}
	return &VerificationData{
		UserID:             userID,
		Role:               role,
		OverallStatus:      StatusNotStarted,
		CurrentStep:        StepPersonalInfo,
		PersonalInfoStatus: SubStatusPending,
		Documents:          DocumentUpload{Status: SubStatusPending},
		SelfieStatus:       SubStatusPending,
		CreatedAt:          now,
		UpdatedAt:          now,
	}, nil
}

func (v *VerificationData) PersonalInfoComplete() bool {
	return v.PersonalInfoStatus.IsCompleted()
}

func (v *VerificationData) DocumentsComplete() bool {
	return v.Documents.Status.IsCompleted()
}

func (v *VerificationData) SelfieComplete() bool {
	return v.SelfieStatus.IsCompleted()
}

func (v *VerificationData) PhoneComplete() bool {
	return v.Phone.IsComplete()
}

// RequiredStepsComplete reports whether every sub-step before review is done,
// ignoring the overall status.
func (v *VerificationData) RequiredStepsComplete() bool {
	return v.PersonalInfoComplete() && v.DocumentsComplete() && v.SelfieComplete() && v.PhoneComplete()
}

func (v *VerificationData) IsLocked() bool {
	return v.OverallStatus.IsLocked()
}

// CanEdit returns a precondition error while the record is locked for review.
func (v *VerificationData) CanEdit() error {
	if v.IsLocked() {
		return dErrors.New(dErrors.CodePrecondition, "verification is locked while "+v.OverallStatus.String())
	}
	return nil
}

// BeginEdit moves the record into in_progress ahead of a user mutation.
// A reverification restart clears every completion marker but keeps the
// entered personal data and phone number so the forms are prefilled.
// Call CanEdit first.
func (v *VerificationData) BeginEdit() {
	switch v.OverallStatus {
	case StatusRequiresReverification:
		v.PersonalInfoStatus = SubStatusPending
		v.Documents = DocumentUpload{Status: SubStatusPending}
		v.SelfieStatus = SubStatusPending
		v.Phone.Verified = false
		v.Phone.VerifiedAt = nil
		v.CurrentStep = StepPersonalInfo
		v.OverallStatus = StatusInProgress
	case StatusNotStarted, StatusRejected:
		v.OverallStatus = StatusInProgress
	}
}

// ApplyPersonalInfo merges the update and recomputes the step's sub-status.
func (v *VerificationData) ApplyPersonalInfo(update PersonalInfoUpdate, now time.Time) {
	update.ApplyTo(&v.PersonalInfo)
	if v.PersonalInfo.HasRequiredFields() {
		v.PersonalInfoStatus = SubStatusCompleted
	} else {
		v.PersonalInfoStatus = SubStatusPending
	}
	v.UpdatedAt = now
}

// ApplyPhone merges the update. Changing the number drops a prior
// confirmation unless the same update confirms the new number.
func (v *VerificationData) ApplyPhone(update PhoneVerificationUpdate, now time.Time) {
	if update.PhoneNumber != nil {
		number := strings.TrimSpace(*update.PhoneNumber)
		if number != v.Phone.PhoneNumber {
			v.Phone.PhoneNumber = number
			v.Phone.Verified = false
			v.Phone.VerifiedAt = nil
		}
	}
	if update.Verified != nil {
		v.Phone.Verified = *update.Verified
		if v.Phone.Verified {
			verifiedAt := now
			v.Phone.VerifiedAt = &verifiedAt
		} else {
			v.Phone.VerifiedAt = nil
		}
	}
	v.UpdatedAt = now
}

func (v *VerificationData) ApplyDocumentsCompleted(kinds []DocumentKind, now time.Time) {
	v.Documents.MergeKinds(kinds)
	v.Documents.Status = SubStatusCompleted
	v.UpdatedAt = now
}

func (v *VerificationData) ApplySelfieCompleted(now time.Time) {
	v.SelfieStatus = SubStatusCompleted
	v.UpdatedAt = now
}

// ApplySubmission locks the record for review. Call CanEdit and check the
// step policy first.
func (v *VerificationData) ApplySubmission(now time.Time) {
	submittedAt := now
	v.OverallStatus = StatusSubmitted
	v.CurrentStep = StepReview
	v.SubmittedAt = &submittedAt
	v.RejectionReason = ""
	v.ReviewedAt = nil
	v.ReviewedBy = nil
	v.UpdatedAt = now
}

// CanApprove enforces the approval invariant.
func (v *VerificationData) CanApprove() error {
	if v.OverallStatus != StatusSubmitted {
		return dErrors.New(dErrors.CodePrecondition, "only submitted verifications can be approved")
	}
	if !v.RequiredStepsComplete() {
		return dErrors.New(dErrors.CodePrecondition, "cannot approve verification with incomplete steps")
	}
	return nil
}

func (v *VerificationData) ApplyApproval(reviewer id.UserID, now time.Time) {
	v.OverallStatus = StatusApproved
	v.RejectionReason = ""
	v.markReviewed(reviewer, now)
}

func (v *VerificationData) CanReject(reason string) error {
	if strings.TrimSpace(reason) == "" {
		return dErrors.New(dErrors.CodeValidation, "rejection reason is required")
	}
	if v.OverallStatus != StatusSubmitted {
		return dErrors.New(dErrors.CodePrecondition, "only submitted verifications can be rejected")
	}
	return nil
}

// ApplyRejection reopens the flow; the user lands on the first step whose
// data needs another look.
func (v *VerificationData) ApplyRejection(reviewer id.UserID, reason string, now time.Time) {
	v.OverallStatus = StatusRejected
	v.RejectionReason = strings.TrimSpace(reason)
	v.CurrentStep = StepPersonalInfo
	v.markReviewed(reviewer, now)
}

func (v *VerificationData) CanRequireReverification() error {
	if v.OverallStatus == StatusNotStarted {
		return dErrors.New(dErrors.CodePrecondition, "verification has not been started")
	}
	if v.OverallStatus == StatusRequiresReverification {
		return dErrors.New(dErrors.CodePrecondition, "reverification already required")
	}
	return nil
}

func (v *VerificationData) ApplyReverification(reviewer id.UserID, reason string, now time.Time) {
	v.OverallStatus = StatusRequiresReverification
	v.RejectionReason = strings.TrimSpace(reason)
	v.CurrentStep = StepPersonalInfo
	v.markReviewed(reviewer, now)
}

func (v *VerificationData) markReviewed(reviewer id.UserID, now time.Time) {
	reviewedAt := now
	reviewedBy := reviewer
	v.ReviewedAt = &reviewedAt
	v.ReviewedBy = &reviewedBy
	v.UpdatedAt = now
}

// Clone returns a deep copy safe to hand across goroutines.
func (v *VerificationData) Clone() *VerificationData {
	if v == nil {
		return nil
	}
	out := *v
	out.Documents.Kinds = append([]DocumentKind(nil), v.Documents.Kinds...)
	out.Phone.VerifiedAt = cloneTime(v.Phone.VerifiedAt)
	out.SubmittedAt = cloneTime(v.SubmittedAt)
	out.ReviewedAt = cloneTime(v.ReviewedAt)
	if v.ReviewedBy != nil {
		reviewer := *v.ReviewedBy
		out.ReviewedBy = &reviewer
	}
	return &out
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}
