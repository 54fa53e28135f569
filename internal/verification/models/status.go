package models

// Status is the aggregate verification state spanning the whole flow.
type Status string

const (
	StatusNotStarted             Status = "not_started"
	StatusInProgress             Status = "in_progress"
	StatusSubmitted              Status = "submitted"
	StatusApproved               Status = "approved"
	StatusRejected               Status = "rejected"
	StatusRequiresReverification Status = "requires_reverification"
)

var validStatuses = map[Status]bool{
	StatusNotStarted:             true,
	StatusInProgress:             true,
	StatusSubmitted:              true,
	StatusApproved:               true,
	StatusRejected:               true,
	StatusRequiresReverification: true,
}

func (s Status) IsValid() bool {
	return validStatuses[s]
}

// IsLocked reports whether user-side mutations are refused. A submitted
// record waits for review; an approved one is final until an admin forces
// reverification.
func (s Status) IsLocked() bool {
	return s == StatusSubmitted || s == StatusApproved
}

func (s Status) String() string {
	return string(s)
}

// SubStatus is the completion state of a single verification step.
type SubStatus string

const (
	SubStatusPending   SubStatus = "pending"
	SubStatusCompleted SubStatus = "completed"
)

func (s SubStatus) IsValid() bool {
	return s == SubStatusPending || s == SubStatusCompleted
}

func (s SubStatus) IsCompleted() bool {
	return s == SubStatusCompleted
}
