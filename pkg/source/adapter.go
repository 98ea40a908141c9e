package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/umputun/dealscope/pkg/domain"
)

// Adapter turns a source-specific payload into a list of raw field maps.
// Implementations skip malformed individual items instead of failing the
// whole fetch.
type Adapter interface {
	Fetch(ctx context.Context) ([]domain.RawItem, error)
	Validate() error
	Kind() domain.SourceKind
}

// defaultMaxDeals caps adapter output when the source doesn't set its own limit
const defaultMaxDeals = 50

// maxBodySize limits remote response bodies to 10MB
const maxBodySize = 10 * 1024 * 1024

// New constructs the adapter for the source kind. The kind is resolved here
// once, adapters never re-dispatch on it per call.
func New(src domain.Source, client *http.Client) (Adapter, error) {
	var settings domain.SourceSettings
	if src.Config != "" {
		if err := json.Unmarshal([]byte(src.Config), &settings); err != nil {
			return nil, fmt.Errorf("parse config for source %q: %w", src.Name, err)
		}
	}

	if client == nil {
		client = &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		}
	}

	switch src.Kind {
	case domain.SourceCatalog:
		return NewCatalogAdapter(settings, client), nil
	case domain.SourceFeed:
		return NewFeedAdapter(settings, client), nil
	case domain.SourceAPI:
		return NewAPIAdapter(settings, client), nil
	case domain.SourceScraper:
		return NewScraperAdapter(settings, client), nil
	default:
		return nil, fmt.Errorf("unknown source kind %q for source %q", src.Kind, src.Name)
	}
}

// capItems enforces the per-source output limit
func capItems(items []domain.RawItem, limit int) []domain.RawItem {
	if limit <= 0 {
		limit = defaultMaxDeals
	}
	if len(items) > limit {
		return items[:limit]
	}
	return items
}

// fetchBody retrieves a URL and returns its body, limited to maxBodySize
func fetchBody(ctx context.Context, client *http.Client, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", "Dealscope/1.0")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code %d from %s", resp.StatusCode, url)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("read body from %s: %w", url, err)
	}
	return body, nil
}
