package affiliate

import (
	"context"
	"fmt"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/umputun/dealscope/pkg/domain"
)

type programsFunc func(ctx context.Context) ([]domain.AffiliateProgram, error)

func (f programsFunc) GetActiveAffiliatePrograms(ctx context.Context) ([]domain.AffiliateProgram, error) {
	return f(ctx)
}

func TestLinker_Rewrite(t *testing.T) {
	bookingURL := "https://hotels.example.com/paris?room=2"

	t.Run("first program wins", func(t *testing.T) {
		l := NewLinker(programsFunc(func(context.Context) ([]domain.AffiliateProgram, error) {
			return []domain.AffiliateProgram{
				{Name: "primary", URLPattern: "https://aff.one/c?u={url}", Priority: 10},
				{Name: "secondary", URLPattern: "https://aff.two/c?u={url}", Priority: 20},
			}, nil
		}))

		got := l.Rewrite(context.Background(), bookingURL)
		assert.Equal(t, "https://aff.one/c?u="+url.QueryEscape(bookingURL), got)
	})

	t.Run("url percent-encoded exactly once", func(t *testing.T) {
		l := NewLinker(programsFunc(func(context.Context) ([]domain.AffiliateProgram, error) {
			return []domain.AffiliateProgram{{Name: "p", URLPattern: "https://aff/c?u={url}"}}, nil
		}))

		got := l.Rewrite(context.Background(), bookingURL)
		assert.Contains(t, got, "room%3D2")
		assert.NotContains(t, got, "room=2")
	})

	t.Run("no programs passes through", func(t *testing.T) {
		l := NewLinker(programsFunc(func(context.Context) ([]domain.AffiliateProgram, error) {
			return nil, nil
		}))
		assert.Equal(t, bookingURL, l.Rewrite(context.Background(), bookingURL))
	})

	t.Run("lookup error passes through", func(t *testing.T) {
		l := NewLinker(programsFunc(func(context.Context) ([]domain.AffiliateProgram, error) {
			return nil, fmt.Errorf("db down")
		}))
		assert.Equal(t, bookingURL, l.Rewrite(context.Background(), bookingURL))
	})

	t.Run("pattern without placeholder passes through", func(t *testing.T) {
		l := NewLinker(programsFunc(func(context.Context) ([]domain.AffiliateProgram, error) {
			return []domain.AffiliateProgram{{Name: "broken", URLPattern: "https://aff/static"}}, nil
		}))
		assert.Equal(t, bookingURL, l.Rewrite(context.Background(), bookingURL))
	})

	t.Run("empty url untouched", func(t *testing.T) {
		l := NewLinker(programsFunc(func(context.Context) ([]domain.AffiliateProgram, error) {
			t.Fatal("lookup should not run for empty url")
			return nil, nil
		}))
		assert.Equal(t, "", l.Rewrite(context.Background(), ""))
	})

	t.Run("invalid url untouched", func(t *testing.T) {
		l := NewLinker(programsFunc(func(context.Context) ([]domain.AffiliateProgram, error) {
			return []domain.AffiliateProgram{{Name: "p", URLPattern: "https://aff/c?u={url}"}}, nil
		}))
		assert.Equal(t, "not a url", l.Rewrite(context.Background(), "not a url"))
	})
}
