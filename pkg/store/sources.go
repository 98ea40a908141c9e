package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/umputun/dealscope/pkg/domain"
)

// CreateSource creates a new source. The (kind, name) pair is unique.
func (s *Store) CreateSource(ctx context.Context, src *domain.Source) error {
	query := `
		INSERT INTO sources (kind, name, active, sync_interval, config)
		VALUES (:kind, :name, :active, :sync_interval, :config)
	`
	result, err := s.conn.NamedExecContext(ctx, query, src)
	if err != nil {
		return fmt.Errorf("insert source: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("get last insert id: %w", err)
	}
	src.ID = id
	return nil
}

// UpsertSource creates a source or updates the existing (kind, name) row.
// Used for seeding from configuration at startup.
func (s *Store) UpsertSource(ctx context.Context, src *domain.Source) error {
	query := `
		INSERT INTO sources (kind, name, active, sync_interval, config)
		VALUES (:kind, :name, :active, :sync_interval, :config)
		ON CONFLICT(kind, name) DO UPDATE SET
			active = excluded.active,
			sync_interval = excluded.sync_interval,
			config = excluded.config,
			updated_at = CURRENT_TIMESTAMP
	`
	if _, err := s.conn.NamedExecContext(ctx, query, src); err != nil {
		return fmt.Errorf("upsert source: %w", err)
	}

	var id int64
	if err := s.conn.GetContext(ctx, &id, `SELECT id FROM sources WHERE kind = ? AND name = ?`, src.Kind, src.Name); err != nil {
		return fmt.Errorf("get source id: %w", err)
	}
	src.ID = id
	return nil
}

// GetSource retrieves a source by ID
func (s *Store) GetSource(ctx context.Context, id int64) (*domain.Source, error) {
	var src domain.Source
	err := s.conn.GetContext(ctx, &src, `SELECT * FROM sources WHERE id = ?`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("source not found")
		}
		return nil, fmt.Errorf("get source: %w", err)
	}
	return &src, nil
}

// GetSources retrieves all sources
func (s *Store) GetSources(ctx context.Context) ([]domain.Source, error) {
	var sources []domain.Source
	err := s.conn.SelectContext(ctx, &sources, `SELECT * FROM sources ORDER BY kind, name`)
	if err != nil {
		return nil, fmt.Errorf("get sources: %w", err)
	}
	return sources, nil
}

// GetSourcesDue retrieves active sources whose sync interval elapsed, or
// that never synced at all
func (s *Store) GetSourcesDue(ctx context.Context, now time.Time) ([]domain.Source, error) {
	var sources []domain.Source
	query := `
		SELECT * FROM sources
		WHERE active = 1
		  AND (last_sync_at IS NULL OR last_sync_at <= datetime(?, '-' || sync_interval || ' minutes'))
		ORDER BY last_sync_at ASC
	`
	err := s.conn.SelectContext(ctx, &sources, query, now.UTC().Format("2006-01-02 15:04:05"))
	if err != nil {
		return nil, fmt.Errorf("get sources due: %w", err)
	}
	return sources, nil
}

// UpdateSourceSynced records a successful sync and clears the error state
func (s *Store) UpdateSourceSynced(ctx context.Context, sourceID int64, at time.Time) error {
	return s.withLockRetry(ctx, func() error {
		query := `
			UPDATE sources
			SET last_sync_at = ?, last_error = '', error_count = 0, updated_at = CURRENT_TIMESTAMP
			WHERE id = ?
		`
		if _, err := s.conn.ExecContext(ctx, query, at.UTC(), sourceID); err != nil {
			return fmt.Errorf("update source synced: %w", err)
		}
		return nil
	})
}

// UpdateSourceError records a failed sync. The sync timestamp still advances
// so a broken source doesn't get hammered every cycle.
func (s *Store) UpdateSourceError(ctx context.Context, sourceID int64, at time.Time, errMsg string) error {
	return s.withLockRetry(ctx, func() error {
		query := `
			UPDATE sources
			SET last_sync_at = ?, last_error = ?, error_count = error_count + 1, updated_at = CURRENT_TIMESTAMP
			WHERE id = ?
		`
		if _, err := s.conn.ExecContext(ctx, query, at.UTC(), errMsg, sourceID); err != nil {
			return fmt.Errorf("update source error: %w", err)
		}
		return nil
	})
}
