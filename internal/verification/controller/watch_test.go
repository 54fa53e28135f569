package controller_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mobirides/internal/verification/controller"
	"mobirides/internal/verification/models"
	"mobirides/internal/verification/store"
	id "mobirides/pkg/domain"
)

func TestWatchReportsOutOfBandChanges(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	backend := store.NewInMemory()
	ctrl := controller.New(backend)
	userID := id.UserID(uuid.New())
	_, err := ctrl.InitializeVerification(ctx, userID, id.RoleRenter)
	require.NoError(t, err)

	changes := make(chan *models.VerificationData, 1)
	watchErr := make(chan error, 1)
	go func() {
		watchErr <- ctrl.Watch(ctx, 10*time.Millisecond, func(d *models.VerificationData) {
			select {
			case changes <- d:
			default:
			}
		})
	}()

	_, err = backend.Execute(ctx, userID, func(*models.VerificationData) error { return nil }, func(d *models.VerificationData) {
		d.SelfieStatus = models.SubStatusCompleted
		d.OverallStatus = models.StatusInProgress
		d.UpdatedAt = d.UpdatedAt.Add(time.Minute)
	})
	require.NoError(t, err)

	select {
	case d := <-changes:
		assert.Equal(t, models.StatusInProgress, d.OverallStatus)
	case <-ctx.Done():
		t.Fatal("no change observed")
	}
	assert.True(t, ctrl.Data().SelfieComplete())

	ctrl.Close()
	select {
	case err := <-watchErr:
		assert.NoError(t, err)
	case <-ctx.Done():
		t.Fatal("watch did not stop on close")
	}
}

func TestWatchStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	ctrl := controller.New(store.NewInMemory())
	cancel()

	err := ctrl.Watch(ctx, time.Millisecond, nil)
	assert.True(t, errors.Is(err, context.Canceled))
}
