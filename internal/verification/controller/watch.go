package controller

import (
	"context"
	"time"

	"mobirides/internal/verification/models"
)

// Watch refreshes the record every interval until ctx is cancelled or the
// controller is closed. onChange, when set, receives the record whenever
// its status, step or update time moved. Refresh failures are logged and
// retried on the next tick.
func (c *Controller) Watch(ctx context.Context, interval time.Duration, onChange func(*models.VerificationData)) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.done:
			return nil
		case <-ticker.C:
		}

		before := c.Data()
		if before == nil {
			continue
		}
		after, err := c.RefreshData(ctx)
		if err != nil {
			if !c.Active() {
				return nil
			}
			c.logger.WarnContext(ctx, "verification watch refresh failed",
				"user_id", before.UserID.String(),
				"error", err,
			)
			continue
		}
		if onChange != nil && hasChanged(before, after) {
			onChange(after)
		}
	}
}

func hasChanged(before, after *models.VerificationData) bool {
	return before.OverallStatus != after.OverallStatus ||
		before.CurrentStep != after.CurrentStep ||
		!before.UpdatedAt.Equal(after.UpdatedAt)
}
