package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores return these (optionally
// wrapped) and services translate them into domain errors:
//   - ErrNotFound: no verification record for the key
//   - ErrConflict: record already exists (lazy create raced)
//   - ErrInvalidState: record in the wrong state for an Execute callback
//   - ErrUnavailable: backing store or cache temporarily unreachable
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrInvalidState = errors.New("invalid state")
	ErrUnavailable  = errors.New("unavailable")
)
