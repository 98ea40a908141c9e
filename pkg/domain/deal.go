package domain

import (
	"regexp"
	"strings"
	"time"
)

// DealStatus is the lifecycle state of a deal record
type DealStatus string

// deal statuses
const (
	DealStatusPending   DealStatus = "pending"
	DealStatusApproved  DealStatus = "approved"
	DealStatusRejected  DealStatus = "rejected"
	DealStatusReview    DealStatus = "review"
	DealStatusPublished DealStatus = "published"
)

// Provenance marks how price/destination fields were obtained
type Provenance string

// field provenance values
const (
	ProvenanceStructured Provenance = "structured"
	ProvenanceHeuristic  Provenance = "heuristic"
)

// Deal is the canonical normalized deal record
type Deal struct {
	ID              int64      `db:"id" json:"id"`
	SourceID        int64      `db:"source_id" json:"source_id"`
	Title           string     `db:"title" json:"title"`
	Description     string     `db:"description" json:"description"`
	Destination     string     `db:"destination" json:"destination"`
	OriginalPrice   float64    `db:"original_price" json:"original_price"`
	DiscountedPrice float64    `db:"discounted_price" json:"discounted_price"`
	Currency        string     `db:"currency" json:"currency"`
	TravelStart     string     `db:"travel_start" json:"travel_start,omitempty"`
	TravelEnd       string     `db:"travel_end" json:"travel_end,omitempty"`
	BookingURL      string     `db:"booking_url" json:"booking_url"`
	RawPayload      string     `db:"raw_payload" json:"-"`
	DedupKey        string     `db:"dedup_key" json:"dedup_key"`
	Provenance      Provenance `db:"provenance" json:"provenance"`
	Status          DealStatus `db:"status" json:"status"`
	Score           float64    `db:"evaluation_score" json:"evaluation_score"`
	Reasoning       string     `db:"evaluation_reasoning" json:"evaluation_reasoning,omitempty"`
	PublishedRef    *int64     `db:"published_ref" json:"published_ref,omitempty"`
	CreatedAt       time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time  `db:"updated_at" json:"updated_at"`
}

// DiscountFraction returns the relative discount, 0 when prices are unusable
func (d *Deal) DiscountFraction() float64 {
	if d.OriginalPrice <= 0 || d.DiscountedPrice <= 0 || d.DiscountedPrice > d.OriginalPrice {
		return 0
	}
	return (d.OriginalPrice - d.DiscountedPrice) / d.OriginalPrice
}

var spacesRe = regexp.MustCompile(`\s+`)

// MakeDedupKey derives the dedup identity from title, destination and booking url.
// Title and destination are lowercased with whitespace collapsed, the url is
// taken as-is since it is already canonical for a given source.
func MakeDedupKey(title, destination, bookingURL string) string {
	norm := func(s string) string {
		return spacesRe.ReplaceAllString(strings.ToLower(strings.TrimSpace(s)), " ")
	}
	return norm(title) + "|" + norm(destination) + "|" + strings.TrimSpace(bookingURL)
}

// DealFilter selects deals for listing queries
type DealFilter struct {
	Status      DealStatus
	SourceID    int64
	Destination string
	MinScore    float64
	Limit       int
	Offset      int
}

// Content is generated publishable copy for a deal
type Content struct {
	ID              int64     `db:"id" json:"id"`
	DealID          int64     `db:"deal_id" json:"deal_id"`
	Title           string    `db:"title" json:"title"`
	Body            string    `db:"body" json:"body"`
	Excerpt         string    `db:"excerpt" json:"excerpt"`
	MetaDescription string    `db:"meta_description" json:"meta_description"`
	Tags            string    `db:"tags" json:"tags"` // json-encoded list
	Fallback        bool      `db:"fallback" json:"fallback"`
	GeneratedAt     time.Time `db:"generated_at" json:"generated_at"`
}

// Article is a published artifact produced from a deal and its content
type Article struct {
	ID          int64     `db:"id" json:"id"`
	DealID      int64     `db:"deal_id" json:"deal_id"`
	Title       string    `db:"title" json:"title"`
	Body        string    `db:"body" json:"body"`
	Excerpt     string    `db:"excerpt" json:"excerpt"`
	MetaDesc    string    `db:"meta_description" json:"meta_description"`
	Tags        string    `db:"tags" json:"tags"`
	PublishedAt time.Time `db:"published_at" json:"published_at"`
}
