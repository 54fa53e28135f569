// Package events carries verification status changes to Kafka and feeds
// back-office review decisions from Kafka into the review service.
package events

import (
	"time"

	"github.com/google/uuid"

	"mobirides/internal/verification/models"
	id "mobirides/pkg/domain"
)

const (
	EventTypeStatusChanged = "verification.status_changed"
	statusChangedVersion   = 1
)

// Envelope is the metadata shared by every published event.
type Envelope struct {
	EventID       string    `json:"event_id"`
	EventType     string    `json:"event_type"`
	EventVersion  int       `json:"event_version"`
	Timestamp     time.Time `json:"timestamp"`
	CorrelationID string    `json:"correlation_id,omitempty"`
}

// StatusChanged is published whenever a record's overall status moves.
type StatusChanged struct {
	Envelope
	UserID  id.UserID     `json:"user_id"`
	Role    id.Role       `json:"role"`
	From    models.Status `json:"from"`
	To      models.Status `json:"to"`
	Reason  string        `json:"reason,omitempty"`
	ActorID string        `json:"actor_id,omitempty"`
}

// NewStatusChanged builds the event for a transition of data from prior.
// requestID becomes the correlation ID.
func NewStatusChanged(data *models.VerificationData, from models.Status, actorID, requestID string, now time.Time) StatusChanged {
	return StatusChanged{
		Envelope: Envelope{
			EventID:       uuid.NewString(),
			EventType:     EventTypeStatusChanged,
			EventVersion:  statusChangedVersion,
			Timestamp:     now,
			CorrelationID: requestID,
		},
		UserID:  data.UserID,
		Role:    data.Role,
		From:    from,
		To:      data.OverallStatus,
		Reason:  data.RejectionReason,
		ActorID: actorID,
	}
}

// Decision is a back-office review outcome.
type Decision string

const (
	DecisionApprove               Decision = "approve"
	DecisionReject                Decision = "reject"
	DecisionRequireReverification Decision = "require_reverification"
)

func (d Decision) IsValid() bool {
	return d == DecisionApprove || d == DecisionReject || d == DecisionRequireReverification
}

// ReviewDecision is the payload consumed from the review topic.
type ReviewDecision struct {
	UserID     string   `json:"user_id"`
	ReviewerID string   `json:"reviewer_id"`
	Decision   Decision `json:"decision"`
	Reason     string   `json:"reason,omitempty"`
}
