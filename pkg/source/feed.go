package source

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/mmcdole/gofeed"

	"github.com/umputun/dealscope/pkg/domain"
)

// defaultKeywords filter feed items down to travel-deal material when the
// source doesn't configure its own set
var defaultKeywords = []string{
	"deal", "sale", "discount", "offer", "cheap", "error fare",
	"flight", "hotel", "vacation", "getaway", "travel", "trip", "package",
}

// FeedAdapter reads RSS/Atom feeds. Feeds are rarely deal-specific, so items
// must match at least one travel keyword to pass.
type FeedAdapter struct {
	settings domain.SourceSettings
	parser   *gofeed.Parser
	keywords []string
}

// NewFeedAdapter creates a feed adapter, fetching through the shared client
// so feeds get the same timeout and user agent as the other source kinds
func NewFeedAdapter(settings domain.SourceSettings, client *http.Client) *FeedAdapter {
	keywords := settings.Keywords
	if len(keywords) == 0 {
		keywords = defaultKeywords
	}
	parser := gofeed.NewParser()
	parser.Client = client
	parser.UserAgent = "Dealscope/1.0"
	return &FeedAdapter{
		settings: settings,
		parser:   parser,
		keywords: keywords,
	}
}

// Kind returns the adapter variant
func (a *FeedAdapter) Kind() domain.SourceKind { return domain.SourceFeed }

// Validate checks the feed configuration
func (a *FeedAdapter) Validate() error {
	if a.settings.URL == "" {
		return fmt.Errorf("feed url is required")
	}
	if !strings.HasPrefix(a.settings.URL, "http://") && !strings.HasPrefix(a.settings.URL, "https://") {
		return fmt.Errorf("feed url %q is not resolvable", a.settings.URL)
	}
	return nil
}

// Fetch retrieves and parses the feed, keeping only relevant items
func (a *FeedAdapter) Fetch(ctx context.Context) ([]domain.RawItem, error) {
	feed, err := a.parser.ParseURLWithContext(a.settings.URL, ctx)
	if err != nil {
		return nil, fmt.Errorf("parse feed %s: %w", a.settings.URL, err)
	}

	items := make([]domain.RawItem, 0, len(feed.Items))
	for _, item := range feed.Items {
		if item.Title == "" || item.Link == "" {
			continue
		}

		description := item.Description
		if description == "" {
			description = item.Content
		}

		if !a.relevant(item.Title, description) {
			continue
		}

		raw := domain.RawItem{
			domain.FieldTitle:       item.Title,
			domain.FieldDescription: description,
			domain.FieldBookingURL:  item.Link,
		}
		if item.PublishedParsed != nil {
			raw["published"] = item.PublishedParsed.Format("2006-01-02")
		}
		items = append(items, raw)
	}

	return capItems(items, a.settings.MaxDeals), nil
}

// relevant reports whether the item mentions at least one travel keyword
func (a *FeedAdapter) relevant(title, description string) bool {
	text := strings.ToLower(title + " " + description)
	for _, kw := range a.keywords {
		if strings.Contains(text, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}
