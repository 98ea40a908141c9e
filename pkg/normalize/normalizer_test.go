package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/umputun/dealscope/pkg/domain"
)

func TestNormalizer_Normalize(t *testing.T) {
	n := New()
	src := domain.Source{ID: 7, Kind: domain.SourceCatalog, Name: "partner-csv"}

	t.Run("structured item", func(t *testing.T) {
		raw := domain.RawItem{
			"title":            "Paris Getaway",
			"description":      "<p>5 nights in the <b>city of light</b> &amp; more</p>",
			"destination":      "Paris, France",
			"original_price":   "1,299.00",
			"discounted_price": "$899",
			"currency":         "usd",
			"booking_url":      "https://x/paris",
		}

		deal, err := n.Normalize(raw, src)
		require.NoError(t, err)

		assert.Equal(t, int64(7), deal.SourceID)
		assert.Equal(t, "Paris Getaway", deal.Title)
		assert.Equal(t, "5 nights in the city of light & more", deal.Description, "html stripped, entities unescaped")
		assert.Equal(t, "Paris, France", deal.Destination)
		assert.InDelta(t, 1299.0, deal.OriginalPrice, 0.001)
		assert.InDelta(t, 899.0, deal.DiscountedPrice, 0.001)
		assert.Equal(t, "USD", deal.Currency)
		assert.Equal(t, "paris getaway|paris, france|https://x/paris", deal.DedupKey)
		assert.Equal(t, domain.ProvenanceStructured, deal.Provenance)
		assert.Equal(t, domain.DealStatusPending, deal.Status)
		assert.NotEmpty(t, deal.RawPayload)
	})

	t.Run("missing title rejected", func(t *testing.T) {
		_, err := n.Normalize(domain.RawItem{"description": "something"}, src)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrReject)
	})

	t.Run("whitespace-only title rejected", func(t *testing.T) {
		_, err := n.Normalize(domain.RawItem{"title": "   "}, src)
		assert.ErrorIs(t, err, ErrReject)
	})

	t.Run("inverted prices swapped", func(t *testing.T) {
		raw := domain.RawItem{
			"title":            "Swapped",
			"original_price":   "500",
			"discounted_price": "800",
		}
		deal, err := n.Normalize(raw, src)
		require.NoError(t, err)
		assert.InDelta(t, 800.0, deal.OriginalPrice, 0.001)
		assert.InDelta(t, 500.0, deal.DiscountedPrice, 0.001)
	})

	t.Run("default currency", func(t *testing.T) {
		deal, err := n.Normalize(domain.RawItem{"title": "No Currency", "discounted_price": "100"}, src)
		require.NoError(t, err)
		assert.Equal(t, "USD", deal.Currency)
	})

	t.Run("date upgraded to iso form", func(t *testing.T) {
		raw := domain.RawItem{"title": "Dated", "travel_start": "Mar 15, 2026", "travel_end": "not a date"}
		deal, err := n.Normalize(raw, src)
		require.NoError(t, err)
		assert.Equal(t, "2026-03-15", deal.TravelStart)
		assert.Equal(t, "not a date", deal.TravelEnd, "unparsable dates pass through")
	})
}

func TestNormalizer_FeedHeuristics(t *testing.T) {
	n := New()
	feedSrc := domain.Source{ID: 2, Kind: domain.SourceFeed, Name: "travel-blog"}

	t.Run("two prices and destination extracted", func(t *testing.T) {
		raw := domain.RawItem{
			"title":       "Paris flash sale",
			"description": "5 nights was $1,299 now only $899, book fast",
			"booking_url": "https://blog.example.com/paris-sale",
		}
		deal, err := n.Normalize(raw, feedSrc)
		require.NoError(t, err)

		assert.Equal(t, "Paris, France", deal.Destination)
		assert.InDelta(t, 1299.0, deal.OriginalPrice, 0.001)
		assert.InDelta(t, 899.0, deal.DiscountedPrice, 0.001)
		assert.Equal(t, "USD", deal.Currency)
		assert.Equal(t, domain.ProvenanceHeuristic, deal.Provenance)
	})

	t.Run("single price estimates original", func(t *testing.T) {
		raw := domain.RawItem{"title": "Bali escape from $499", "description": "limited availability"}
		deal, err := n.Normalize(raw, feedSrc)
		require.NoError(t, err)

		assert.InDelta(t, 499.0, deal.DiscountedPrice, 0.001)
		assert.InDelta(t, 748.5, deal.OriginalPrice, 0.001)
		assert.Equal(t, domain.ProvenanceHeuristic, deal.Provenance)
	})

	t.Run("no signal stays structured", func(t *testing.T) {
		raw := domain.RawItem{"title": "Travel insurance tips", "description": "what to know"}
		deal, err := n.Normalize(raw, feedSrc)
		require.NoError(t, err)

		assert.Zero(t, deal.OriginalPrice)
		assert.Zero(t, deal.DiscountedPrice)
		assert.Equal(t, domain.ProvenanceStructured, deal.Provenance)
	})

	t.Run("heuristics skipped when feed carries structured prices", func(t *testing.T) {
		raw := domain.RawItem{
			"title":            "Rome deal for $100",
			"discounted_price": "250",
		}
		deal, err := n.Normalize(raw, feedSrc)
		require.NoError(t, err)
		assert.InDelta(t, 250.0, deal.DiscountedPrice, 0.001, "structured field wins over free text")
		assert.Equal(t, domain.ProvenanceStructured, deal.Provenance)
	})

	t.Run("euro currency picked up from symbol", func(t *testing.T) {
		raw := domain.RawItem{"title": "Lisbon city break", "description": "now €450 per person"}
		deal, err := n.Normalize(raw, feedSrc)
		require.NoError(t, err)
		assert.Equal(t, "EUR", deal.Currency)
		assert.Equal(t, "Lisbon, Portugal", deal.Destination)
	})
}

func TestParsePrice(t *testing.T) {
	tests := []struct {
		in       string
		expected float64
	}{
		{"$899", 899},
		{"899", 899},
		{"1,299.00", 1299},
		{"1 299,00 €", 1299},
		{"1.299", 1299},
		{"899.50", 899.5},
		{"USD 1,234", 1234},
		{"2,50", 2.5},
		{"free", 0},
		{"", 0},
		{"  ", 0},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.InDelta(t, tt.expected, ParsePrice(tt.in), 0.001)
		})
	}
}
