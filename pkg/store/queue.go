package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/umputun/dealscope/pkg/domain"
)

// EnqueueDeal adds a deal to the processing queue unless it already has a
// non-terminal queue item
func (s *Store) EnqueueDeal(ctx context.Context, dealID int64, maxAttempts int) (*domain.QueueItem, error) {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}

	var existing int
	err := s.conn.GetContext(ctx, &existing,
		`SELECT COUNT(*) FROM queue WHERE deal_id = ? AND status IN ('pending', 'processing', 'completed')`, dealID)
	if err != nil {
		return nil, fmt.Errorf("check existing queue item: %w", err)
	}
	if existing > 0 {
		return nil, nil // already queued
	}

	var result sql.Result
	err = s.withLockRetry(ctx, func() error {
		var execErr error
		result, execErr = s.conn.ExecContext(ctx,
			`INSERT INTO queue (deal_id, status, max_attempts, scheduled_at) VALUES (?, ?, ?, ?)`,
			dealID, domain.QueuePending, maxAttempts, time.Now().UTC())
		if execErr != nil {
			return fmt.Errorf("insert queue item: %w", execErr)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("get last insert id: %w", err)
	}
	return s.GetQueueItem(ctx, id)
}

// GetQueueItem retrieves a queue item by ID
func (s *Store) GetQueueItem(ctx context.Context, id int64) (*domain.QueueItem, error) {
	var item domain.QueueItem
	err := s.conn.GetContext(ctx, &item, `SELECT * FROM queue WHERE id = ?`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("queue item not found")
		}
		return nil, fmt.Errorf("get queue item: %w", err)
	}
	return &item, nil
}

// ClaimNextQueueItem atomically claims the oldest due pending item by
// flipping it to processing. The conditional update is the exclusivity
// guarantee: of any number of concurrent claimers exactly one sees a row
// affected. Returns nil when nothing is claimable.
func (s *Store) ClaimNextQueueItem(ctx context.Context, now time.Time) (*domain.QueueItem, error) {
	for {
		var candidate domain.QueueItem
		err := s.conn.GetContext(ctx, &candidate, `
			SELECT * FROM queue
			WHERE status = ? AND scheduled_at <= ?
			ORDER BY scheduled_at ASC, id ASC
			LIMIT 1
		`, domain.QueuePending, now.UTC())
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		if err != nil {
			return nil, fmt.Errorf("find pending queue item: %w", err)
		}

		var result sql.Result
		err = s.withLockRetry(ctx, func() error {
			var execErr error
			result, execErr = s.conn.ExecContext(ctx,
				`UPDATE queue SET status = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ? AND status = ?`,
				domain.QueueProcessing, candidate.ID, domain.QueuePending)
			if execErr != nil {
				return fmt.Errorf("claim queue item: %w", execErr)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}

		rowsAffected, err := result.RowsAffected()
		if err != nil {
			return nil, fmt.Errorf("get rows affected: %w", err)
		}
		if rowsAffected == 1 {
			candidate.Status = domain.QueueProcessing
			return &candidate, nil
		}
		// lost the race for this item, try the next one
	}
}

// CompleteQueueItem marks a claimed item as completed
func (s *Store) CompleteQueueItem(ctx context.Context, id int64) error {
	return s.withLockRetry(ctx, func() error {
		query := `
			UPDATE queue
			SET status = ?, processed_at = ?, error_message = '', updated_at = CURRENT_TIMESTAMP
			WHERE id = ? AND status = ?
		`
		if _, err := s.conn.ExecContext(ctx, query, domain.QueueCompleted, time.Now().UTC(), id, domain.QueueProcessing); err != nil {
			return fmt.Errorf("complete queue item: %w", err)
		}
		return nil
	})
}

// FailQueueItem records a processing failure, incrementing attempts. The
// item stays failed; RequeueFailed returns it to pending while attempts
// remain, once attempts reach max_attempts it is terminal.
func (s *Store) FailQueueItem(ctx context.Context, id int64, errMsg string) error {
	return s.withLockRetry(ctx, func() error {
		query := `
			UPDATE queue
			SET status = ?, attempts = attempts + 1, error_message = ?, processed_at = ?, updated_at = CURRENT_TIMESTAMP
			WHERE id = ? AND status = ?
		`
		if _, err := s.conn.ExecContext(ctx, query, domain.QueueFailed, errMsg, time.Now().UTC(), id, domain.QueueProcessing); err != nil {
			return fmt.Errorf("fail queue item: %w", err)
		}
		return nil
	})
}

// RequeueFailed returns retryable failed items to pending with a delay,
// leaving terminal items untouched. Returns the number requeued.
func (s *Store) RequeueFailed(ctx context.Context, retryDelay time.Duration) (int64, error) {
	var result sql.Result
	err := s.withLockRetry(ctx, func() error {
		query := `
			UPDATE queue
			SET status = ?, scheduled_at = ?, updated_at = CURRENT_TIMESTAMP
			WHERE status = ? AND attempts < max_attempts
		`
		var execErr error
		result, execErr = s.conn.ExecContext(ctx, query,
			domain.QueuePending, time.Now().UTC().Add(retryDelay), domain.QueueFailed)
		if execErr != nil {
			return fmt.Errorf("requeue failed items: %w", execErr)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// ReclaimStale returns processing items stuck past the deadline back to
// pending without burning an attempt, so interrupted runs are resumable
func (s *Store) ReclaimStale(ctx context.Context, olderThan time.Duration) (int64, error) {
	var result sql.Result
	err := s.withLockRetry(ctx, func() error {
		query := `
			UPDATE queue
			SET status = ?, updated_at = CURRENT_TIMESTAMP
			WHERE status = ? AND updated_at <= ?
		`
		var execErr error
		result, execErr = s.conn.ExecContext(ctx, query,
			domain.QueuePending, domain.QueueProcessing, time.Now().UTC().Add(-olderThan))
		if execErr != nil {
			return fmt.Errorf("reclaim stale items: %w", execErr)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// GetQueueStats returns counts per queue status
func (s *Store) GetQueueStats(ctx context.Context) (*domain.QueueStats, error) {
	var stats domain.QueueStats
	query := `
		SELECT
			COUNT(CASE WHEN status = 'pending' THEN 1 END) AS pending,
			COUNT(CASE WHEN status = 'processing' THEN 1 END) AS processing,
			COUNT(CASE WHEN status = 'completed' THEN 1 END) AS completed,
			COUNT(CASE WHEN status = 'failed' THEN 1 END) AS failed
		FROM queue
	`
	if err := s.conn.GetContext(ctx, &stats, query); err != nil {
		return nil, fmt.Errorf("get queue stats: %w", err)
	}
	return &stats, nil
}

// GetQueueItems retrieves recent queue items for observability
func (s *Store) GetQueueItems(ctx context.Context, limit int) ([]domain.QueueItem, error) {
	if limit <= 0 {
		limit = 50
	}
	var items []domain.QueueItem
	query := `SELECT * FROM queue ORDER BY updated_at DESC, id DESC LIMIT ?`
	if err := s.conn.SelectContext(ctx, &items, query, limit); err != nil {
		return nil, fmt.Errorf("get queue items: %w", err)
	}
	return items, nil
}

// GetCompletedQueueItems retrieves completed items whose deals are approved,
// best scores first, for the publisher
func (s *Store) GetCompletedQueueItems(ctx context.Context, limit int) ([]domain.QueueItem, error) {
	var items []domain.QueueItem
	query := `
		SELECT q.* FROM queue q
		JOIN deals d ON d.id = q.deal_id
		WHERE q.status = ? AND d.status = ?
		ORDER BY d.evaluation_score DESC, q.id ASC
		LIMIT ?
	`
	err := s.conn.SelectContext(ctx, &items, query, domain.QueueCompleted, domain.DealStatusApproved, limit)
	if err != nil {
		return nil, fmt.Errorf("get completed queue items: %w", err)
	}
	return items, nil
}
