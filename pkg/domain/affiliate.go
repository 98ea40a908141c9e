package domain

import "time"

// AffiliateProgram defines a monetization url rewrite rule.
// Precedence among multiple active programs is explicit: lowest Priority
// value wins, ties broken by id.
type AffiliateProgram struct {
	ID             int64     `db:"id" json:"id"`
	Name           string    `db:"name" json:"name"`
	URLPattern     string    `db:"url_pattern" json:"url_pattern"` // contains {url} placeholder
	CommissionRate float64   `db:"commission_rate" json:"commission_rate"`
	Active         bool      `db:"active" json:"active"`
	Priority       int       `db:"priority" json:"priority"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}
