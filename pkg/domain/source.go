package domain

import "time"

// SourceKind identifies the adapter variant for a source
type SourceKind string

// source kinds, a closed set resolved once at adapter construction
const (
	SourceCatalog SourceKind = "catalog"
	SourceFeed    SourceKind = "feed"
	SourceAPI     SourceKind = "api"
	SourceScraper SourceKind = "scraper"
)

// Valid reports whether the kind is one of the known variants
func (k SourceKind) Valid() bool {
	switch k {
	case SourceCatalog, SourceFeed, SourceAPI, SourceScraper:
		return true
	}
	return false
}

// RawItem is the adapter output shape, an unordered string-keyed field map
// with no assumed schema
type RawItem map[string]string

// well-known raw field names produced by adapters
const (
	FieldTitle           = "title"
	FieldDescription     = "description"
	FieldDestination     = "destination"
	FieldOriginalPrice   = "original_price"
	FieldDiscountedPrice = "discounted_price"
	FieldCurrency        = "currency"
	FieldTravelStart     = "travel_start"
	FieldTravelEnd       = "travel_end"
	FieldBookingURL      = "booking_url"
)

// Source is a configured origin of raw deal data
type Source struct {
	ID           int64      `db:"id" json:"id"`
	Kind         SourceKind `db:"kind" json:"kind"`
	Name         string     `db:"name" json:"name"`
	Active       bool       `db:"active" json:"active"`
	SyncInterval int        `db:"sync_interval" json:"sync_interval"` // minutes
	LastSyncAt   *time.Time `db:"last_sync_at" json:"last_sync_at,omitempty"`
	LastError    string     `db:"last_error" json:"last_error,omitempty"`
	ErrorCount   int        `db:"error_count" json:"error_count"`
	Config       string     `db:"config" json:"-"` // kind-specific json blob
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updated_at"`
}

// Due reports whether the source sync interval elapsed since the last sync
func (s *Source) Due(now time.Time) bool {
	if !s.Active {
		return false
	}
	if s.LastSyncAt == nil {
		return true
	}
	return now.Sub(*s.LastSyncAt) >= time.Duration(s.SyncInterval)*time.Minute
}

// SourceSettings is the kind-specific configuration blob. A single struct
// covers all variants, each adapter validates the parts it needs.
type SourceSettings struct {
	URL      string `yaml:"url" json:"url"`                                 // feed url, api endpoint, page url or catalog location
	MaxDeals int    `yaml:"max_deals,omitempty" json:"max_deals,omitempty"` // output cap, 0 means default

	// catalog
	Mapping map[string]string `yaml:"mapping,omitempty" json:"mapping,omitempty"` // canonical field -> csv column

	// feed
	Keywords []string `yaml:"keywords,omitempty" json:"keywords,omitempty"` // relevance filter terms

	// api
	AuthMode    string `yaml:"auth_mode,omitempty" json:"auth_mode,omitempty"` // bearer | header | query
	AuthName    string `yaml:"auth_name,omitempty" json:"auth_name,omitempty"` // header or query parameter name
	AuthValue   string `yaml:"auth_value,omitempty" json:"auth_value,omitempty"`
	RecordsPath string `yaml:"records_path,omitempty" json:"records_path,omitempty"` // dot-path to records array

	// scraper
	Selectors ScraperSelectors `yaml:"selectors,omitempty" json:"selectors,omitempty"`
}

// ScraperSelectors holds CSS selectors for page extraction
type ScraperSelectors struct {
	Container       string `yaml:"container" json:"container"`
	Title           string `yaml:"title" json:"title"`
	Description     string `yaml:"description,omitempty" json:"description,omitempty"`
	OriginalPrice   string `yaml:"original_price,omitempty" json:"original_price,omitempty"`
	DiscountedPrice string `yaml:"discounted_price,omitempty" json:"discounted_price,omitempty"`
	Destination     string `yaml:"destination,omitempty" json:"destination,omitempty"`
	Link            string `yaml:"link,omitempty" json:"link,omitempty"`
	Dates           string `yaml:"dates,omitempty" json:"dates,omitempty"`
}
