package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"github.com/umputun/dealscope/pkg/domain"
)

// CreateDeal inserts a deal unless its dedup key is already present. The
// unique index on dedup_key is the authoritative guard, so concurrent
// writers of the same key leave exactly one row. Returns true when the deal
// was inserted, false for a duplicate.
func (s *Store) CreateDeal(ctx context.Context, deal *domain.Deal) (inserted bool, err error) {
	query := `
		INSERT INTO deals (source_id, title, description, destination, original_price, discounted_price,
			currency, travel_start, travel_end, booking_url, raw_payload, dedup_key, provenance, status)
		VALUES (:source_id, :title, :description, :destination, :original_price, :discounted_price,
			:currency, :travel_start, :travel_end, :booking_url, :raw_payload, :dedup_key, :provenance, :status)
		ON CONFLICT(dedup_key) DO NOTHING
	`

	var result sql.Result
	err = s.withLockRetry(ctx, func() error {
		var execErr error
		result, execErr = s.conn.NamedExecContext(ctx, query, deal)
		if execErr != nil {
			return fmt.Errorf("insert deal: %w", execErr)
		}
		return nil
	})
	if err != nil {
		return false, err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return false, nil // duplicate
	}

	id, err := result.LastInsertId()
	if err != nil {
		return false, fmt.Errorf("get last insert id: %w", err)
	}
	deal.ID = id
	return true, nil
}

// GetDeal retrieves a deal by ID
func (s *Store) GetDeal(ctx context.Context, id int64) (*domain.Deal, error) {
	var deal domain.Deal
	err := s.conn.GetContext(ctx, &deal, `SELECT * FROM deals WHERE id = ?`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("deal not found")
		}
		return nil, fmt.Errorf("get deal: %w", err)
	}
	return &deal, nil
}

// ListDeals retrieves deals matching the filter, newest first
func (s *Store) ListDeals(ctx context.Context, filter domain.DealFilter) ([]domain.Deal, error) {
	builder := sq.Select("*").From("deals").OrderBy("created_at DESC", "id DESC")

	if filter.Status != "" {
		builder = builder.Where(sq.Eq{"status": filter.Status})
	}
	if filter.SourceID != 0 {
		builder = builder.Where(sq.Eq{"source_id": filter.SourceID})
	}
	if filter.Destination != "" {
		builder = builder.Where(sq.Like{"destination": "%" + filter.Destination + "%"})
	}
	if filter.MinScore > 0 {
		builder = builder.Where(sq.GtOrEq{"evaluation_score": filter.MinScore})
	}

	limit := filter.Limit
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	builder = builder.Limit(uint64(limit)) //nolint:gosec // limit is bounded above
	if filter.Offset > 0 {
		builder = builder.Offset(uint64(filter.Offset)) //nolint:gosec // offset is non-negative
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build deals query: %w", err)
	}

	var deals []domain.Deal
	if err := s.conn.SelectContext(ctx, &deals, query, args...); err != nil {
		return nil, fmt.Errorf("list deals: %w", err)
	}
	return deals, nil
}

// GetPendingDeals retrieves deals awaiting evaluation
func (s *Store) GetPendingDeals(ctx context.Context, limit int) ([]domain.Deal, error) {
	var deals []domain.Deal
	query := `SELECT * FROM deals WHERE status = ? ORDER BY created_at ASC LIMIT ?`
	err := s.conn.SelectContext(ctx, &deals, query, domain.DealStatusPending, limit)
	if err != nil {
		return nil, fmt.Errorf("get pending deals: %w", err)
	}
	return deals, nil
}

// UpdateDealEvaluation stores the evaluation outcome and the resulting status
func (s *Store) UpdateDealEvaluation(ctx context.Context, dealID int64, score float64, reasoning string, status domain.DealStatus) error {
	return s.withLockRetry(ctx, func() error {
		query := `
			UPDATE deals
			SET evaluation_score = ?, evaluation_reasoning = ?, status = ?, updated_at = CURRENT_TIMESTAMP
			WHERE id = ?
		`
		if _, err := s.conn.ExecContext(ctx, query, score, reasoning, status, dealID); err != nil {
			return fmt.Errorf("update deal evaluation: %w", err)
		}
		return nil
	})
}

// UpdateDealStatus transitions a deal status
func (s *Store) UpdateDealStatus(ctx context.Context, dealID int64, status domain.DealStatus) error {
	return s.withLockRetry(ctx, func() error {
		query := `UPDATE deals SET status = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`
		if _, err := s.conn.ExecContext(ctx, query, status, dealID); err != nil {
			return fmt.Errorf("update deal status: %w", err)
		}
		return nil
	})
}

// MarkDealPublished sets the published status and the article reference
func (s *Store) MarkDealPublished(ctx context.Context, dealID, articleID int64) error {
	return s.withLockRetry(ctx, func() error {
		query := `
			UPDATE deals
			SET status = ?, published_ref = ?, updated_at = CURRENT_TIMESTAMP
			WHERE id = ?
		`
		if _, err := s.conn.ExecContext(ctx, query, domain.DealStatusPublished, articleID, dealID); err != nil {
			return fmt.Errorf("mark deal published: %w", err)
		}
		return nil
	})
}

// CountDeals returns the total number of deals
func (s *Store) CountDeals(ctx context.Context) (int64, error) {
	var count int64
	if err := s.conn.GetContext(ctx, &count, `SELECT COUNT(*) FROM deals`); err != nil {
		return 0, fmt.Errorf("count deals: %w", err)
	}
	return count, nil
}
