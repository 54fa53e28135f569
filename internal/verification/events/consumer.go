package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/twmb/franz-go/pkg/kgo"

	"mobirides/internal/verification/models"
	id "mobirides/pkg/domain"
	dErrors "mobirides/pkg/domain-errors"
)

// ReviewDecider applies review decisions. Implemented by the review service.
type ReviewDecider interface {
	Approve(ctx context.Context, userID, reviewerID id.UserID) (*models.VerificationData, error)
	Reject(ctx context.Context, userID, reviewerID id.UserID, reason string) (*models.VerificationData, error)
	RequireReverification(ctx context.Context, userID, reviewerID id.UserID, reason string) (*models.VerificationData, error)
}

type fetcher interface {
	PollFetches(ctx context.Context) kgo.Fetches
	CommitUncommittedOffsets(ctx context.Context) error
}

// ReviewConsumer polls the review topic and dispatches each decision.
// Malformed or rejected decisions are logged and skipped so one bad message
// never blocks the partition. A decision that fails for a transient reason
// (see Retryable) stops the consumer before offsets are committed, and the
// group redelivers it after restart or rebalance.
type ReviewConsumer struct {
	client  fetcher
	decider ReviewDecider
	logger  *slog.Logger
}

func NewReviewConsumer(client fetcher, decider ReviewDecider, logger *slog.Logger) *ReviewConsumer {
	if logger == nil {
		logger = slog.Default()
	}
	return &ReviewConsumer{client: client, decider: decider, logger: logger}
}

// Run polls until ctx is cancelled or the client is closed.
func (c *ReviewConsumer) Run(ctx context.Context) error {
	for {
		fetches := c.client.PollFetches(ctx)
		if fetches.IsClientClosed() {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		fetches.EachError(func(topic string, partition int32, err error) {
			if errors.Is(err, context.Canceled) {
				return
			}
			c.logger.ErrorContext(ctx, "kafka fetch error", "topic", topic, "partition", partition, "error", err)
		})
		var failed error
		fetches.EachRecord(func(record *kgo.Record) {
			if failed != nil {
				return
			}
			if err := c.HandleRecord(ctx, record); err != nil && Retryable(err) {
				failed = err
			}
		})
		if failed != nil {
			return fmt.Errorf("review decision not applied, offsets left uncommitted: %w", failed)
		}
		if err := c.client.CommitUncommittedOffsets(ctx); err != nil && ctx.Err() == nil {
			c.logger.ErrorContext(ctx, "kafka offset commit failed", "error", err)
		}
	}
}

// HandleRecord decodes and applies one decision. It returns the error that
// caused the record to be skipped, or nil when it was applied.
func (c *ReviewConsumer) HandleRecord(ctx context.Context, record *kgo.Record) error {
	var decision ReviewDecision
	if err := json.Unmarshal(record.Value, &decision); err != nil {
		err = dErrors.Wrap(err, dErrors.CodeBadRequest, "malformed review decision")
		c.skip(ctx, record, "malformed review decision", err)
		return err
	}
	userID, err := id.ParseUserID(decision.UserID)
	if err != nil {
		c.skip(ctx, record, "invalid user_id in review decision", err)
		return err
	}
	reviewerID, err := id.ParseUserID(decision.ReviewerID)
	if err != nil {
		c.skip(ctx, record, "invalid reviewer_id in review decision", err)
		return err
	}

	switch decision.Decision {
	case DecisionApprove:
		_, err = c.decider.Approve(ctx, userID, reviewerID)
	case DecisionReject:
		_, err = c.decider.Reject(ctx, userID, reviewerID, decision.Reason)
	case DecisionRequireReverification:
		_, err = c.decider.RequireReverification(ctx, userID, reviewerID, decision.Reason)
	default:
		err = dErrors.New(dErrors.CodeInvalidInput, "unknown decision: "+string(decision.Decision))
	}
	if err != nil {
		if Retryable(err) {
			c.logger.ErrorContext(ctx, "review decision failed, awaiting redelivery",
				"topic", record.Topic,
				"partition", record.Partition,
				"offset", record.Offset,
				"error", err,
			)
			return err
		}
		c.skip(ctx, record, "review decision not applied", err)
		return err
	}

	c.logger.InfoContext(ctx, "review decision applied",
		"user_id", userID.String(),
		"reviewer_id", reviewerID.String(),
		"decision", string(decision.Decision),
	)
	return nil
}

// Retryable reports whether err came from infrastructure rather than from
// the decision itself. Replaying an already applied decision fails its
// precondition and is skipped, so redelivery is safe.
func Retryable(err error) bool {
	switch dErrors.CodeOf(err) {
	case dErrors.CodeInternal, dErrors.CodePersistence, dErrors.CodeTimeout:
		return true
	default:
		return false
	}
}

func (c *ReviewConsumer) skip(ctx context.Context, record *kgo.Record, msg string, err error) {
	c.logger.WarnContext(ctx, msg,
		"topic", record.Topic,
		"partition", record.Partition,
		"offset", record.Offset,
		"error", err,
	)
}
