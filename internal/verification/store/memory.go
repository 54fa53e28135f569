package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"mobirides/internal/verification/models"
	id "mobirides/pkg/domain"
	"mobirides/pkg/platform/sentinel"
)

// InMemory stores records in a map guarded by a RWMutex. Records are cloned
// on the way in and out so callers never share memory with the store.
type InMemory struct {
	mu      sync.RWMutex
	records map[id.UserID]*models.VerificationData
}

func NewInMemory() *InMemory {
	return &InMemory{records: make(map[id.UserID]*models.VerificationData)}
}

func (s *InMemory) Get(_ context.Context, userID id.UserID) (*models.VerificationData, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.records[userID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return record.Clone(), nil
}

func (s *InMemory) Create(_ context.Context, data *models.VerificationData) (*models.VerificationData, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[data.UserID]; ok {
		return nil, sentinel.ErrConflict
	}
	s.records[data.UserID] = data.Clone()
	return data.Clone(), nil
}

// Upsert writes the record, keeping the original created_at when one exists.
func (s *InMemory) Upsert(_ context.Context, data *models.VerificationData) (*models.VerificationData, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := data.Clone()
	if existing, ok := s.records[data.UserID]; ok {
		stored.CreatedAt = existing.CreatedAt
	}
	s.records[data.UserID] = stored
	return stored.Clone(), nil
}

// Execute runs validate and mutate under the write lock. mutate only runs
// when validate returns nil; the stored record is untouched on error.
func (s *InMemory) Execute(_ context.Context, userID id.UserID, validate func(*models.VerificationData) error, mutate func(*models.VerificationData)) (*models.VerificationData, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.records[userID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	working := record.Clone()
	if err := validate(working); err != nil {
		return nil, err
	}
	mutate(working)
	s.records[userID] = working
	return working.Clone(), nil
}

// ListByStatus returns matching records, oldest submission first.
func (s *InMemory) ListByStatus(_ context.Context, status models.Status) ([]*models.VerificationData, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.VerificationData
	for _, record := range s.records {
		if record.OverallStatus == status {
			out = append(out, record.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return queueTime(out[i]).Before(queueTime(out[j]))
	})
	return out, nil
}

func queueTime(v *models.VerificationData) time.Time {
	if v.SubmittedAt != nil {
		return *v.SubmittedAt
	}
	return v.CreatedAt
}
