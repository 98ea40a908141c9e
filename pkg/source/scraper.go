package source

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/umputun/dealscope/pkg/domain"
)

// ScraperAdapter fetches a page and extracts deal records via configured
// CSS selectors. Relative links are resolved against the page URL.
type ScraperAdapter struct {
	settings domain.SourceSettings
	client   *http.Client
}

// NewScraperAdapter creates a scraper adapter
func NewScraperAdapter(settings domain.SourceSettings, client *http.Client) *ScraperAdapter {
	return &ScraperAdapter{settings: settings, client: client}
}

// Kind returns the adapter variant
func (a *ScraperAdapter) Kind() domain.SourceKind { return domain.SourceScraper }

// Validate checks the scraper configuration: page url, container and title
// selectors are mandatory
func (a *ScraperAdapter) Validate() error {
	if a.settings.URL == "" {
		return fmt.Errorf("scraper url is required")
	}
	if _, err := url.ParseRequestURI(a.settings.URL); err != nil {
		return fmt.Errorf("scraper url %q is not resolvable: %w", a.settings.URL, err)
	}
	if a.settings.Selectors.Container == "" {
		return fmt.Errorf("container selector is required")
	}
	if a.settings.Selectors.Title == "" {
		return fmt.Errorf("title selector is required")
	}
	return nil
}

// Fetch downloads the page and extracts one raw item per container match.
// Containers without a title are skipped.
func (a *ScraperAdapter) Fetch(ctx context.Context) ([]domain.RawItem, error) {
	body, err := fetchBody(ctx, a.client, a.settings.URL)
	if err != nil {
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse page %s: %w", a.settings.URL, err)
	}

	base, err := url.Parse(a.settings.URL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}

	sel := a.settings.Selectors
	var items []domain.RawItem
	doc.Find(sel.Container).Each(func(_ int, node *goquery.Selection) {
		title := text(node, sel.Title)
		if title == "" {
			return
		}

		item := domain.RawItem{domain.FieldTitle: title}
		if v := text(node, sel.Description); v != "" {
			item[domain.FieldDescription] = v
		}
		if v := text(node, sel.OriginalPrice); v != "" {
			item[domain.FieldOriginalPrice] = v
		}
		if v := text(node, sel.DiscountedPrice); v != "" {
			item[domain.FieldDiscountedPrice] = v
		}
		if v := text(node, sel.Destination); v != "" {
			item[domain.FieldDestination] = v
		}
		if v := text(node, sel.Dates); v != "" {
			item[domain.FieldTravelStart] = v
		}
		if link := a.extractLink(node, sel.Link, base); link != "" {
			item[domain.FieldBookingURL] = link
		}
		items = append(items, item)
	})

	return capItems(items, a.settings.MaxDeals), nil
}

// extractLink pulls href from the link selector (or the container itself when
// it is an anchor) and resolves it to an absolute url
func (a *ScraperAdapter) extractLink(node *goquery.Selection, selector string, base *url.URL) string {
	target := node
	if selector != "" {
		target = node.Find(selector).First()
	}
	href, ok := target.Attr("href")
	if !ok {
		href, ok = target.Find("a").First().Attr("href")
	}
	if !ok || href == "" {
		return ""
	}

	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return ""
	}
	return base.ResolveReference(ref).String()
}

// text returns trimmed text of the first selector match, empty selector
// yields empty string
func text(node *goquery.Selection, selector string) string {
	if selector == "" {
		return ""
	}
	return strings.TrimSpace(node.Find(selector).First().Text())
}
