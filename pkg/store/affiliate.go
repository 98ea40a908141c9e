package store

import (
	"context"
	"fmt"

	"github.com/umputun/dealscope/pkg/domain"
)

// UpsertAffiliateProgram creates or updates a program by name. Used for
// seeding from configuration at startup.
func (s *Store) UpsertAffiliateProgram(ctx context.Context, program *domain.AffiliateProgram) error {
	query := `
		INSERT INTO affiliate_programs (name, url_pattern, commission_rate, active, priority)
		VALUES (:name, :url_pattern, :commission_rate, :active, :priority)
		ON CONFLICT(name) DO UPDATE SET
			url_pattern = excluded.url_pattern,
			commission_rate = excluded.commission_rate,
			active = excluded.active,
			priority = excluded.priority
	`
	if _, err := s.conn.NamedExecContext(ctx, query, program); err != nil {
		return fmt.Errorf("upsert affiliate program: %w", err)
	}
	return nil
}

// GetActiveAffiliatePrograms returns active programs in precedence order:
// lowest priority value first, ties broken by id
func (s *Store) GetActiveAffiliatePrograms(ctx context.Context) ([]domain.AffiliateProgram, error) {
	var programs []domain.AffiliateProgram
	query := `SELECT * FROM affiliate_programs WHERE active = 1 ORDER BY priority ASC, id ASC`
	if err := s.conn.SelectContext(ctx, &programs, query); err != nil {
		return nil, fmt.Errorf("get active affiliate programs: %w", err)
	}
	return programs, nil
}
