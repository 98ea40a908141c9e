package source

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-pkgz/lgr"
	"github.com/tidwall/gjson"

	"github.com/umputun/dealscope/pkg/domain"
)

// APIAdapter performs a single HTTP call against a JSON API and extracts
// records via a dot-path into the response body.
type APIAdapter struct {
	settings domain.SourceSettings
	client   *http.Client
	auth     func(*http.Request) // resolved from auth mode at construction
}

// NewAPIAdapter creates an API adapter. The auth mode is resolved here once.
func NewAPIAdapter(settings domain.SourceSettings, client *http.Client) *APIAdapter {
	var auth func(*http.Request)
	switch settings.AuthMode {
	case "bearer":
		auth = func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+settings.AuthValue) }
	case "header":
		auth = func(r *http.Request) { r.Header.Set(settings.AuthName, settings.AuthValue) }
	case "query":
		auth = func(r *http.Request) {
			q := r.URL.Query()
			q.Set(settings.AuthName, settings.AuthValue)
			r.URL.RawQuery = q.Encode()
		}
	default:
		auth = func(*http.Request) {}
	}
	return &APIAdapter{settings: settings, client: client, auth: auth}
}

// Kind returns the adapter variant
func (a *APIAdapter) Kind() domain.SourceKind { return domain.SourceAPI }

// Validate checks the API configuration
func (a *APIAdapter) Validate() error {
	if a.settings.URL == "" {
		return fmt.Errorf("api url is required")
	}
	if !strings.HasPrefix(a.settings.URL, "http://") && !strings.HasPrefix(a.settings.URL, "https://") {
		return fmt.Errorf("api url %q is not resolvable", a.settings.URL)
	}
	switch a.settings.AuthMode {
	case "", "bearer":
	case "header", "query":
		if a.settings.AuthName == "" {
			return fmt.Errorf("auth_name is required for auth mode %q", a.settings.AuthMode)
		}
	default:
		return fmt.Errorf("unknown auth mode %q", a.settings.AuthMode)
	}
	return nil
}

// Fetch calls the API once and flattens each record of the configured
// dot-path into a raw item. Non-object records are skipped.
func (a *APIAdapter) Fetch(ctx context.Context) ([]domain.RawItem, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.settings.URL, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "Dealscope/1.0")
	a.auth(req)

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call api %s: %w", a.settings.URL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code %d from %s", resp.StatusCode, a.settings.URL)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("read api response: %w", err)
	}

	records := gjson.ParseBytes(body)
	if a.settings.RecordsPath != "" {
		records = records.Get(a.settings.RecordsPath)
	}
	if !records.IsArray() {
		return nil, fmt.Errorf("records path %q did not resolve to an array", a.settings.RecordsPath)
	}

	var items []domain.RawItem
	for _, rec := range records.Array() {
		if !rec.IsObject() {
			lgr.Printf("[WARN] skipping non-object api record: %s", rec.Type)
			continue
		}
		item := domain.RawItem{}
		rec.ForEach(func(key, value gjson.Result) bool {
			if v := strings.TrimSpace(value.String()); v != "" {
				item[key.String()] = v
			}
			return true
		})
		if len(item) == 0 {
			continue
		}
		items = append(items, item)
	}

	return capItems(items, a.settings.MaxDeals), nil
}
