package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/umputun/dealscope/pkg/domain"
)

// SaveContent stores generated copy for a deal, replacing any previous
// generation attempt
func (s *Store) SaveContent(ctx context.Context, content *domain.Content) error {
	return s.withLockRetry(ctx, func() error {
		query := `
			INSERT INTO contents (deal_id, title, body, excerpt, meta_description, tags, fallback, generated_at)
			VALUES (:deal_id, :title, :body, :excerpt, :meta_description, :tags, :fallback, :generated_at)
			ON CONFLICT(deal_id) DO UPDATE SET
				title = excluded.title,
				body = excluded.body,
				excerpt = excluded.excerpt,
				meta_description = excluded.meta_description,
				tags = excluded.tags,
				fallback = excluded.fallback,
				generated_at = excluded.generated_at
		`
		if content.GeneratedAt.IsZero() {
			content.GeneratedAt = time.Now().UTC()
		}
		if _, err := s.conn.NamedExecContext(ctx, query, content); err != nil {
			return fmt.Errorf("save content: %w", err)
		}
		return nil
	})
}

// GetContent retrieves generated copy for a deal
func (s *Store) GetContent(ctx context.Context, dealID int64) (*domain.Content, error) {
	var content domain.Content
	err := s.conn.GetContext(ctx, &content, `SELECT * FROM contents WHERE deal_id = ?`, dealID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("content not found")
		}
		return nil, fmt.Errorf("get content: %w", err)
	}
	return &content, nil
}

// CreateArticle persists a published artifact
func (s *Store) CreateArticle(ctx context.Context, article *domain.Article) error {
	var result sql.Result
	err := s.withLockRetry(ctx, func() error {
		query := `
			INSERT INTO articles (deal_id, title, body, excerpt, meta_description, tags, published_at)
			VALUES (:deal_id, :title, :body, :excerpt, :meta_description, :tags, :published_at)
		`
		if article.PublishedAt.IsZero() {
			article.PublishedAt = time.Now().UTC()
		}
		var execErr error
		result, execErr = s.conn.NamedExecContext(ctx, query, article)
		if execErr != nil {
			return fmt.Errorf("insert article: %w", execErr)
		}
		return nil
	})
	if err != nil {
		return err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("get last insert id: %w", err)
	}
	article.ID = id
	return nil
}

// GetArticles retrieves published articles, newest first
func (s *Store) GetArticles(ctx context.Context, limit, offset int) ([]domain.Article, error) {
	if limit <= 0 {
		limit = 50
	}
	var articles []domain.Article
	query := `SELECT * FROM articles ORDER BY published_at DESC, id DESC LIMIT ? OFFSET ?`
	if err := s.conn.SelectContext(ctx, &articles, query, limit, offset); err != nil {
		return nil, fmt.Errorf("get articles: %w", err)
	}
	return articles, nil
}
