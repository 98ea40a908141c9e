package normalize

import (
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"github.com/microcosm-cc/bluemonday"

	"github.com/umputun/dealscope/pkg/domain"
)

// ErrReject marks a raw item that can't become a deal record. Callers count
// rejects, they never abort the batch.
var ErrReject = errors.New("item rejected")

// Normalizer maps raw adapter field maps to canonical deal records
type Normalizer struct {
	sanitizer *bluemonday.Policy
}

// New creates a normalizer
func New() *Normalizer {
	return &Normalizer{sanitizer: bluemonday.StrictPolicy()}
}

// Normalize converts a raw item to a deal record or rejects it, never a
// partial write. Missing title is the only hard reject, everything else is
// coerced best-effort.
func (n *Normalizer) Normalize(raw domain.RawItem, src domain.Source) (domain.Deal, error) {
	title := strings.TrimSpace(raw[domain.FieldTitle])
	if title == "" {
		return domain.Deal{}, fmt.Errorf("missing title: %w", ErrReject)
	}

	deal := domain.Deal{
		SourceID:    src.ID,
		Title:       title,
		Description: n.cleanText(raw[domain.FieldDescription]),
		Destination: strings.TrimSpace(raw[domain.FieldDestination]),
		BookingURL:  strings.TrimSpace(raw[domain.FieldBookingURL]),
		Currency:    strings.ToUpper(strings.TrimSpace(raw[domain.FieldCurrency])),
		TravelStart: normalizeDate(raw[domain.FieldTravelStart]),
		TravelEnd:   normalizeDate(raw[domain.FieldTravelEnd]),
		Status:      domain.DealStatusPending,
		Provenance:  domain.ProvenanceStructured,
	}

	deal.OriginalPrice = ParsePrice(raw[domain.FieldOriginalPrice])
	deal.DiscountedPrice = ParsePrice(raw[domain.FieldDiscountedPrice])

	// feed items rarely carry structured fields, take a best-effort pass over
	// the free text and mark the result as heuristic
	if src.Kind == domain.SourceFeed && deal.OriginalPrice == 0 && deal.DiscountedPrice == 0 {
		n.applyHeuristics(&deal, title+" "+deal.Description)
	}

	if deal.Currency == "" {
		deal.Currency = "USD"
	}

	// both known and inverted means the source swapped them
	if deal.OriginalPrice > 0 && deal.DiscountedPrice > deal.OriginalPrice {
		deal.OriginalPrice, deal.DiscountedPrice = deal.DiscountedPrice, deal.OriginalPrice
	}

	deal.DedupKey = domain.MakeDedupKey(deal.Title, deal.Destination, deal.BookingURL)

	if payload, err := json.Marshal(raw); err == nil {
		deal.RawPayload = string(payload)
	}

	return deal, nil
}

// applyHeuristics extracts destination and a price pair from free text using
// the gazetteer and the currency-price regex. Two detected prices: max is
// original, min is discounted. One price: treated as discounted with the
// original estimated at 1.5x.
func (n *Normalizer) applyHeuristics(deal *domain.Deal, text string) {
	found := false

	if deal.Destination == "" {
		if dest := MatchDestination(text); dest != "" {
			deal.Destination = dest
			found = true
		}
	}

	prices, currency := ExtractPrices(text)
	switch {
	case len(prices) >= 2:
		minP, maxP := prices[0], prices[0]
		for _, p := range prices[1:] {
			if p < minP {
				minP = p
			}
			if p > maxP {
				maxP = p
			}
		}
		deal.OriginalPrice, deal.DiscountedPrice = maxP, minP
		found = true
	case len(prices) == 1:
		deal.DiscountedPrice = prices[0]
		deal.OriginalPrice = prices[0] * 1.5
		found = true
	}
	if currency != "" && deal.Currency == "" {
		deal.Currency = currency
	}

	if found {
		deal.Provenance = domain.ProvenanceHeuristic
	}
}

// cleanText strips html tags and unescapes entities
func (n *Normalizer) cleanText(s string) string {
	return strings.TrimSpace(html.UnescapeString(n.sanitizer.Sanitize(s)))
}

// ParsePrice coerces free text like "$899", "1,299.00" or "1 299,00 €" into
// a float. Unparsable input yields 0.
func ParsePrice(s string) float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}

	// keep digits and separators only
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' || r == '.' || r == ',' {
			b.WriteRune(r)
		}
	}
	cleaned := b.String()
	if cleaned == "" {
		return 0
	}

	lastDot := strings.LastIndex(cleaned, ".")
	lastComma := strings.LastIndex(cleaned, ",")
	switch {
	case lastDot >= 0 && lastComma >= 0:
		// the later separator is the decimal one, drop the other
		if lastDot > lastComma {
			cleaned = strings.ReplaceAll(cleaned, ",", "")
		} else {
			cleaned = strings.ReplaceAll(cleaned, ".", "")
			cleaned = strings.ReplaceAll(cleaned, ",", ".")
		}
	case lastComma >= 0:
		// comma with two trailing digits reads as decimal, otherwise thousands
		if len(cleaned)-lastComma-1 == 2 {
			cleaned = strings.ReplaceAll(cleaned, ",", ".")
		} else {
			cleaned = strings.ReplaceAll(cleaned, ",", "")
		}
	case lastDot >= 0 && len(cleaned)-lastDot-1 == 3 && strings.Count(cleaned, ".") == 1 && lastDot > 0:
		// lone dot followed by three digits is a thousands separator ("1.299")
		cleaned = strings.ReplaceAll(cleaned, ".", "")
	}

	v, err := strconv.ParseFloat(cleaned, 64)
	if err != nil || v < 0 {
		return 0
	}
	return v
}

// normalizeDate passes dates through as opaque strings, upgrading to
// YYYY-MM-DD when the value parses
func normalizeDate(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	if t, err := dateparse.ParseAny(s); err == nil && t.After(time.Time{}) {
		return t.Format("2006-01-02")
	}
	return s
}
