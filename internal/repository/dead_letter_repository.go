package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dinedesk/dinedesk/internal/database"
	"github.com/dinedesk/dinedesk/internal/models"
	apperrors "github.com/dinedesk/dinedesk/pkg/errors"
	"github.com/dinedesk/dinedesk/pkg/logger"
)

// DeadLetterRepository handles database operations for dead letter messages
type DeadLetterRepository struct {
	db     *database.Database
	logger logger.Logger
}

// NewDeadLetterRepository creates a new DeadLetterRepository
func NewDeadLetterRepository(db *database.Database, logger logger.Logger) *DeadLetterRepository {
	return &DeadLetterRepository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a new dead letter message
func (r *DeadLetterRepository) Create(ctx context.Context, message *models.DeadLetterMessage) error {
	query := `
		INSERT INTO dead_letter_messages (
			original_message_id, aggregate_type, aggregate_id, event_type, payload,
			error_message, failure_reason, retry_count, status, created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10
		) RETURNING id
	`

	var id int64

	err := r.db.DB.QueryRowContext(
		ctx,
		query,
		message.OriginalMessageID,
		message.AggregateType,
		message.AggregateID,
		message.EventType,
		message.Payload,
		message.ErrorMessage,
		message.FailureReason,
		message.RetryCount,
		message.Status,
		message.CreatedAt,
	).Scan(&id)

	if err != nil {
		r.logger.Error("Failed to create dead letter message", "error", err)
		return fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	message.ID = id
	return nil
}

// GetPendingMessages retrieves pending dead letter messages, oldest first
func (r *DeadLetterRepository) GetPendingMessages(ctx context.Context, limit int) ([]*models.DeadLetterMessage, error) {
	query := `
		SELECT id, original_message_id, aggregate_type, aggregate_id, event_type, payload,
		       error_message, failure_reason, retry_count, last_retry_at, status, created_at, resolved_at
		FROM dead_letter_messages
		WHERE status = $1
		ORDER BY created_at ASC, id ASC
		LIMIT $2
	`

	var messages []*models.DeadLetterMessage

	err := r.db.DB.SelectContext(
		ctx,
		&messages,
		query,
		string(models.DeadLetterStatusPending),
		limit,
	)

	if err != nil {
		r.logger.Error("Failed to get pending dead letter messages", "error", err)
		return nil, fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	return messages, nil
}

// GetMessage retrieves a dead letter message by ID
func (r *DeadLetterRepository) GetMessage(ctx context.Context, id int64) (*models.DeadLetterMessage, error) {
	query := `
		SELECT id, original_message_id, aggregate_type, aggregate_id, event_type, payload,
		       error_message, failure_reason, retry_count, last_retry_at, status, created_at, resolved_at
		FROM dead_letter_messages
		WHERE id = $1
	`

	var message models.DeadLetterMessage
	err := r.db.DB.GetContext(ctx, &message, query, id)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.NewNotFoundError(fmt.Sprintf("dead letter message %d not found", id))
		}
		r.logger.Error("Failed to get dead letter message", "error", err, "messageID", id)
		return nil, fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	return &message, nil
}

// MarkAsRetrying marks a message as being retried
func (r *DeadLetterRepository) MarkAsRetrying(ctx context.Context, id int64) error {
	query := `
		UPDATE dead_letter_messages
		SET status = $1, retry_count = retry_count + 1, last_retry_at = $2
		WHERE id = $3
	`

	_, err := r.db.DB.ExecContext(ctx, query, string(models.DeadLetterStatusRetrying), time.Now().UTC(), id)

	if err != nil {
		r.logger.Error("Failed to mark dead letter message as retrying", "error", err, "messageID", id)
		return fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	return nil
}

// MarkAsResolved marks a message as successfully relayed
func (r *DeadLetterRepository) MarkAsResolved(ctx context.Context, id int64) error {
	query := `
		UPDATE dead_letter_messages
		SET status = $1, resolved_at = $2
		WHERE id = $3
	`

	_, err := r.db.DB.ExecContext(ctx, query, string(models.DeadLetterStatusResolved), time.Now().UTC(), id)

	if err != nil {
		r.logger.Error("Failed to mark dead letter message as resolved", "error", err, "messageID", id)
		return fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	return nil
}

// MarkAsDiscarded marks a message as permanently discarded
func (r *DeadLetterRepository) MarkAsDiscarded(ctx context.Context, id int64, reason string) error {
	query := `
		UPDATE dead_letter_messages
		SET status = $1,
		    failure_reason = CONCAT(failure_reason, ' | Discarded: ', $2::text),
		    resolved_at = $3
		WHERE id = $4
	`

	_, err := r.db.DB.ExecContext(ctx, query, string(models.DeadLetterStatusDiscarded), reason, time.Now().UTC(), id)

	if err != nil {
		r.logger.Error("Failed to mark dead letter message as discarded", "error", err, "messageID", id)
		return fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	return nil
}

// ResetToRetry returns a retrying message to the pending state
func (r *DeadLetterRepository) ResetToRetry(ctx context.Context, id int64) error {
	query := `
		UPDATE dead_letter_messages
		SET status = $1
		WHERE id = $2 AND status = $3
	`

	_, err := r.db.DB.ExecContext(
		ctx,
		query,
		string(models.DeadLetterStatusPending),
		id,
		string(models.DeadLetterStatusRetrying),
	)

	if err != nil {
		r.logger.Error("Failed to reset dead letter message to pending", "error", err, "messageID", id)
		return fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	return nil
}

// RequeueForRetry re-arms a message for the replay loop: back to pending
// with its retry budget reset. Used by the admin API on messages that have
// exhausted automatic retries.
func (r *DeadLetterRepository) RequeueForRetry(ctx context.Context, id int64) error {
	query := `
		UPDATE dead_letter_messages
		SET status = $1, retry_count = 0, last_retry_at = NULL
		WHERE id = $2
	`

	_, err := r.db.DB.ExecContext(ctx, query, string(models.DeadLetterStatusPending), id)

	if err != nil {
		r.logger.Error("Failed to requeue dead letter message", "error", err, "messageID", id)
		return fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	return nil
}

// GetRetryableMessages retrieves pending messages that still have retry
// budget left, oldest first. Messages past maxRetries are left for the
// admin API and do not occupy replay batches.
func (r *DeadLetterRepository) GetRetryableMessages(ctx context.Context, maxRetries, limit int) ([]*models.DeadLetterMessage, error) {
	query := `
		SELECT id, original_message_id, aggregate_type, aggregate_id, event_type, payload,
		       error_message, failure_reason, retry_count, last_retry_at, status, created_at, resolved_at
		FROM dead_letter_messages
		WHERE status = $1 AND retry_count < $2
		ORDER BY created_at ASC, id ASC
		LIMIT $3
	`

	var messages []*models.DeadLetterMessage

	err := r.db.DB.SelectContext(
		ctx,
		&messages,
		query,
		string(models.DeadLetterStatusPending),
		maxRetries,
		limit,
	)

	if err != nil {
		r.logger.Error("Failed to get retryable dead letter messages", "error", err)
		return nil, fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	return messages, nil
}
