package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/umputun/dealscope/pkg/domain"
)

func TestStore_SaveContent(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	src := makeTestSource(t, s, "content-source")
	deal := makeTestDeal(t, s, src.ID, "Content Deal")

	content := &domain.Content{
		DealID:          deal.ID,
		Title:           "Paris for Less",
		Body:            "<p>body</p>",
		Excerpt:         "short teaser",
		MetaDescription: "meta",
		Tags:            `["travel","paris"]`,
		Fallback:        false,
	}
	require.NoError(t, s.SaveContent(ctx, content))

	got, err := s.GetContent(ctx, deal.ID)
	require.NoError(t, err)
	assert.Equal(t, "Paris for Less", got.Title)
	assert.False(t, got.Fallback)
	assert.False(t, got.GeneratedAt.IsZero())

	// regeneration replaces the previous row
	content.Title = "Paris, Regenerated"
	content.Fallback = true
	require.NoError(t, s.SaveContent(ctx, content))

	got, err = s.GetContent(ctx, deal.ID)
	require.NoError(t, err)
	assert.Equal(t, "Paris, Regenerated", got.Title)
	assert.True(t, got.Fallback)

	var count int
	require.NoError(t, s.conn.GetContext(ctx, &count, `SELECT COUNT(*) FROM contents WHERE deal_id = ?`, deal.ID))
	assert.Equal(t, 1, count, "one content row per deal")
}

func TestStore_GetContent_NotFound(t *testing.T) {
	s := setupTestStore(t)
	_, err := s.GetContent(context.Background(), 12345)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestStore_CreateArticle(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	src := makeTestSource(t, s, "article-source")
	deal := makeTestDeal(t, s, src.ID, "Article Deal")

	article := &domain.Article{
		DealID:   deal.ID,
		Title:    "Published Piece",
		Body:     "<p>article body</p>",
		Excerpt:  "excerpt",
		MetaDesc: "meta",
		Tags:     `["travel"]`,
	}
	require.NoError(t, s.CreateArticle(ctx, article))
	require.NotZero(t, article.ID)

	articles, err := s.GetArticles(ctx, 10, 0)
	require.NoError(t, err)
	require.Len(t, articles, 1)
	assert.Equal(t, "Published Piece", articles[0].Title)
	assert.False(t, articles[0].PublishedAt.IsZero())
}

func TestStore_UpsertAffiliateProgram(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	primary := &domain.AffiliateProgram{Name: "primary", URLPattern: "https://aff.one/c?u={url}", Active: true, Priority: 10}
	secondary := &domain.AffiliateProgram{Name: "secondary", URLPattern: "https://aff.two/c?u={url}", Active: true, Priority: 20}
	disabled := &domain.AffiliateProgram{Name: "disabled", URLPattern: "https://aff.off/c?u={url}", Active: false, Priority: 1}

	for _, p := range []*domain.AffiliateProgram{primary, secondary, disabled} {
		require.NoError(t, s.UpsertAffiliateProgram(ctx, p))
	}

	programs, err := s.GetActiveAffiliatePrograms(ctx)
	require.NoError(t, err)
	require.Len(t, programs, 2, "inactive programs excluded")
	assert.Equal(t, "primary", programs[0].Name, "lowest priority value first")
	assert.Equal(t, "secondary", programs[1].Name)

	// same name updates in place
	primary.Priority = 30
	primary.URLPattern = "https://aff.one/v2?u={url}"
	require.NoError(t, s.UpsertAffiliateProgram(ctx, primary))

	programs, err = s.GetActiveAffiliatePrograms(ctx)
	require.NoError(t, err)
	require.Len(t, programs, 2)
	assert.Equal(t, "secondary", programs[0].Name, "priority change reorders precedence")
	assert.Contains(t, programs[1].URLPattern, "v2")
}
