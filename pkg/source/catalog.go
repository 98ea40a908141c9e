package source

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/go-pkgz/lgr"

	"github.com/umputun/dealscope/pkg/domain"
)

// CatalogAdapter reads a tabular CSV catalog from a local path or URL and
// maps configured columns to canonical raw fields.
type CatalogAdapter struct {
	settings domain.SourceSettings
	client   *http.Client
}

// NewCatalogAdapter creates a catalog adapter
func NewCatalogAdapter(settings domain.SourceSettings, client *http.Client) *CatalogAdapter {
	return &CatalogAdapter{settings: settings, client: client}
}

// Kind returns the adapter variant
func (a *CatalogAdapter) Kind() domain.SourceKind { return domain.SourceCatalog }

// Validate checks the catalog configuration: a location and a field mapping
// with at least a title column are required
func (a *CatalogAdapter) Validate() error {
	if a.settings.URL == "" {
		return fmt.Errorf("catalog location is required")
	}
	if len(a.settings.Mapping) == 0 {
		return fmt.Errorf("catalog field mapping is required")
	}
	if _, ok := a.settings.Mapping[domain.FieldTitle]; !ok {
		return fmt.Errorf("catalog field mapping must include %q", domain.FieldTitle)
	}
	return nil
}

// Fetch reads the catalog and returns raw items. Rows that fail to parse or
// lack a title are skipped.
func (a *CatalogAdapter) Fetch(ctx context.Context) ([]domain.RawItem, error) {
	data, err := a.read(ctx)
	if err != nil {
		return nil, err
	}

	r := csv.NewReader(bytes.NewReader(data))
	r.LazyQuotes = true
	r.FieldsPerRecord = -1 // rows may be ragged, malformed ones are skipped below

	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("read catalog header: %w", err)
	}

	colIdx := make(map[string]int, len(header))
	for i, name := range header {
		colIdx[strings.ToLower(strings.TrimSpace(name))] = i
	}

	var items []domain.RawItem
	for {
		row, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			lgr.Printf("[WARN] skipping malformed catalog row: %v", err)
			continue
		}

		item := domain.RawItem{}
		for field, column := range a.settings.Mapping {
			idx, ok := colIdx[strings.ToLower(strings.TrimSpace(column))]
			if !ok || idx >= len(row) {
				continue
			}
			if v := strings.TrimSpace(row[idx]); v != "" {
				item[field] = v
			}
		}
		if item[domain.FieldTitle] == "" {
			continue
		}
		items = append(items, item)
	}

	return capItems(items, a.settings.MaxDeals), nil
}

// read loads catalog bytes from a URL or a local file path
func (a *CatalogAdapter) read(ctx context.Context) ([]byte, error) {
	loc := a.settings.URL
	if strings.HasPrefix(loc, "http://") || strings.HasPrefix(loc, "https://") {
		return fetchBody(ctx, a.client, loc)
	}
	data, err := os.ReadFile(loc) //nolint:gosec // path comes from source configuration
	if err != nil {
		return nil, fmt.Errorf("read catalog file: %w", err)
	}
	return data, nil
}
