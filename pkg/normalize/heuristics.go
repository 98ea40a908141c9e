package normalize

import (
	"regexp"
	"strings"
)

// gazetteer of destinations recognized in free text. Matching is
// case-insensitive on word boundaries, list order sets precedence.
var gazetteer = []string{
	"Paris, France", "Rome, Italy", "Barcelona, Spain", "Lisbon, Portugal",
	"Amsterdam, Netherlands", "Berlin, Germany", "Prague, Czech Republic",
	"Vienna, Austria", "Budapest, Hungary", "Athens, Greece",
	"Dublin, Ireland", "Edinburgh, Scotland", "Copenhagen, Denmark",
	"Stockholm, Sweden", "Oslo, Norway", "Reykjavik, Iceland",
	"Istanbul, Turkey", "Dubai, UAE", "Marrakech, Morocco",
	"Cairo, Egypt", "Cape Town, South Africa", "Nairobi, Kenya",
	"Tokyo, Japan", "Kyoto, Japan", "Seoul, South Korea",
	"Bangkok, Thailand", "Phuket, Thailand", "Bali, Indonesia",
	"Singapore", "Hanoi, Vietnam", "Hong Kong", "Mumbai, India",
	"Sydney, Australia", "Melbourne, Australia", "Auckland, New Zealand",
	"New York", "Los Angeles", "San Francisco", "Las Vegas", "Miami",
	"Chicago", "New Orleans", "Honolulu", "Hawaii", "Alaska",
	"Vancouver, Canada", "Toronto, Canada", "Montreal, Canada",
	"Mexico City", "Cancun, Mexico", "Tulum, Mexico", "Havana, Cuba",
	"San Juan, Puerto Rico", "Rio de Janeiro, Brazil",
	"Buenos Aires, Argentina", "Lima, Peru", "Cusco, Peru",
	"Santorini, Greece", "Mykonos, Greece", "Maldives", "Fiji",
	"Tahiti", "Bora Bora", "Seychelles", "Mauritius",
	"London", "Madrid, Spain", "Venice, Italy", "Florence, Italy",
	"Malta", "Croatia", "Iceland", "Portugal", "Costa Rica", "Panama",
	"Jamaica", "Bahamas", "Bermuda", "Aruba", "Barbados",
}

type gazetteerEntry struct {
	key  string // lowercased leading city/region word, what the text is scanned for
	dest string // canonical form
}

// destination lookup in gazetteer order, built once
var gazetteerIndex = func() []gazetteerEntry {
	idx := make([]gazetteerEntry, 0, len(gazetteer))
	for _, dest := range gazetteer {
		key := dest
		if i := strings.Index(dest, ","); i > 0 {
			key = dest[:i]
		}
		idx = append(idx, gazetteerEntry{key: strings.ToLower(key), dest: dest})
	}
	return idx
}()

// MatchDestination scans free text for a known destination, returning its
// canonical gazetteer form or empty string. Text mentioning several known
// destinations resolves to the earliest gazetteer entry.
func MatchDestination(text string) string {
	lower := strings.ToLower(text)
	for _, entry := range gazetteerIndex {
		key, dest := entry.key, entry.dest
		idx := strings.Index(lower, key)
		if idx < 0 {
			continue
		}
		// require word boundaries so "rome" doesn't match "chrome"
		if idx > 0 && isWordChar(lower[idx-1]) {
			continue
		}
		if end := idx + len(key); end < len(lower) && isWordChar(lower[end]) {
			continue
		}
		return dest
	}
	return ""
}

func isWordChar(b byte) bool {
	return b >= 'a' && b <= 'z' || b >= '0' && b <= '9'
}

// priceRe matches a currency symbol followed by an amount, e.g. "$1,299.00"
var priceRe = regexp.MustCompile(`([$€£¥])\s?(\d{1,3}(?:[.,\s]\d{3})*(?:[.,]\d{2})?|\d+)`)

var symbolCurrency = map[string]string{
	"$": "USD",
	"€": "EUR",
	"£": "GBP",
	"¥": "JPY",
}

// ExtractPrices pulls all currency-tagged amounts out of free text,
// returning the values and the currency code of the first match
func ExtractPrices(text string) (prices []float64, currency string) {
	for _, m := range priceRe.FindAllStringSubmatch(text, -1) {
		v := ParsePrice(m[2])
		if v <= 0 {
			continue
		}
		prices = append(prices, v)
		if currency == "" {
			currency = symbolCurrency[m[1]]
		}
	}
	return prices, currency
}
