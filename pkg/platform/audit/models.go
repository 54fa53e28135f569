package audit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	id "mobirides/pkg/domain"
)

// EventCategory classifies audit events by their primary purpose so stores
// can apply different retention.
type EventCategory string

const (
	// CategoryCompliance covers events with regulatory significance
	// (verification submissions and review decisions). Long retention.
	CategoryCompliance EventCategory = "compliance"

	// CategoryOperations covers routine activity useful for debugging.
	CategoryOperations EventCategory = "operations"
)

// Event is the persisted audit record. Keep it transport-agnostic so stores
// and sinks can fan out.
type Event struct {
	Category  EventCategory
	Timestamp time.Time
	UserID    id.UserID
	Action    string
	Decision  string
	Reason    string
	RequestID string
	// ActorID tracks who performed the action when different from UserID,
	// e.g. the reviewer approving a verification.
	ActorID string
	// Device is the client device label for user-initiated events.
	Device string
	// SubjectIDHash is a SHA-256 hash of the national ID under review, kept
	// for traceability without storing raw PII.
	SubjectIDHash string
}

type AuditEvent string

const (
	EventVerificationStarted      AuditEvent = "verification_started"
	EventVerificationSubmitted    AuditEvent = "verification_submitted"
	EventVerificationApproved     AuditEvent = "verification_approved"
	EventVerificationRejected     AuditEvent = "verification_rejected"
	EventReverificationRequired   AuditEvent = "verification_reverification_required"
	EventVerificationStepNavigate AuditEvent = "verification_step_navigated"
)

var eventCategories = map[AuditEvent]EventCategory{
	EventVerificationSubmitted:  CategoryCompliance,
	EventVerificationApproved:   CategoryCompliance,
	EventVerificationRejected:   CategoryCompliance,
	EventReverificationRequired: CategoryCompliance,

	EventVerificationStarted:      CategoryOperations,
	EventVerificationStepNavigate: CategoryOperations,
}

// Category returns the EventCategory for this audit event.
// Unknown events default to CategoryOperations.
func (e AuditEvent) Category() EventCategory {
	if cat, ok := eventCategories[e]; ok {
		return cat
	}
	return CategoryOperations
}

// ComplianceEvent captures regulatory-significant actions requiring
// guaranteed persistence. Use with the compliance publisher for fail-closed
// semantics.
type ComplianceEvent struct {
	Timestamp     time.Time
	UserID        id.UserID
	Action        AuditEvent
	Decision      string
	Reason        string
	SubjectIDHash string
	RequestID     string
	ActorID       string
	Device        string
}

// ToEvent converts to the stored Event shape.
func (e ComplianceEvent) ToEvent() Event {
	return Event{
		Category:      CategoryCompliance,
		Timestamp:     e.Timestamp,
		UserID:        e.UserID,
		Action:        string(e.Action),
		Decision:      e.Decision,
		Reason:        e.Reason,
		SubjectIDHash: e.SubjectIDHash,
		RequestID:     e.RequestID,
		ActorID:       e.ActorID,
		Device:        e.Device,
	}
}

// Store persists audit events.
type Store interface {
	Append(ctx context.Context, event Event) error
	ListByUser(ctx context.Context, userID id.UserID) ([]Event, error)
}

// HashSubjectID returns the hex SHA-256 of a national ID, or "" when empty.
func HashSubjectID(nationalID string) string {
	nationalID = strings.TrimSpace(nationalID)
	if nationalID == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(nationalID))
	return hex.EncodeToString(sum[:])
}
