// Package store persists verification records. The in-memory store backs
// tests and local development; PostgresStore is the production store and
// RedisCache decorates either with a read-through cache.
package store

import (
	"context"

	"mobirides/internal/verification/models"
	id "mobirides/pkg/domain"
)

// Backend is the full store contract shared by every implementation.
//
// Get returns sentinel.ErrNotFound for unknown users. Create returns
// sentinel.ErrConflict when a record already exists. Upsert and Execute
// return the record as stored.
type Backend interface {
	Get(ctx context.Context, userID id.UserID) (*models.VerificationData, error)
	Create(ctx context.Context, data *models.VerificationData) (*models.VerificationData, error)
	Upsert(ctx context.Context, data *models.VerificationData) (*models.VerificationData, error)
	Execute(ctx context.Context, userID id.UserID, validate func(*models.VerificationData) error, mutate func(*models.VerificationData)) (*models.VerificationData, error)
	ListByStatus(ctx context.Context, status models.Status) ([]*models.VerificationData, error)
}
