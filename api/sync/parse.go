package sync

import (
	"strconv"
	"strings"
	"time"

	"LoanCollectSaas/internal/config"

	"github.com/shopspring/decimal"
)

// Parsing policy: unparseable input is treated as "no update", never as a
// fatal error. Zero is a meaningful value for amounts and integers (zero
// arrears = cleared) and is NOT collapsed into the empty sentinel.

// Feed extracts use several spellings for "no value". Matched
// case-insensitively after trimming.
var emptySentinels = map[string]bool{
	"":     true,
	"n/a":  true,
	"#n/a": true,
	"na":   true,
	"null": true,
	"nil":  true,
	"-":    true,
	"none": true,
}

var feedDateLayouts = []string{
	"2006-01-02",
	"02-01-2006",
	"02/01/2006",
	"01/02/2006",
	"2 Jan 2006",
	"2006/01/02",
	"2006-01-02 15:04:05",
	"02-01-2006 15:04:05",
}

func isEmptySentinel(raw string) bool {
	return emptySentinels[strings.ToLower(strings.TrimSpace(raw))]
}

// cleanNumeric strips currency symbols, thousands separators and surrounding
// whitespace so "ZMW 12,500.50" parses the same as "12500.50".
func cleanNumeric(raw string) string {
	s := strings.TrimSpace(raw)
	s = strings.ReplaceAll(s, ",", "")
	s = strings.TrimFunc(s, func(r rune) bool {
		return !(r >= '0' && r <= '9') && r != '.' && r != '-' && r != '+'
	})
	return s
}

// ParseAmount normalizes a raw amount cell. Empty sentinels and unparseable
// input both yield nil ("no new information").
func ParseAmount(raw string) *decimal.Decimal {
	if isEmptySentinel(raw) {
		return nil
	}
	d, err := decimal.NewFromString(cleanNumeric(raw))
	if err != nil {
		return nil
	}
	return &d
}

// ParseInteger normalizes a raw integer cell with the same empty-sentinel
// policy as ParseAmount. Non-integer input yields nil.
func ParseInteger(raw string) *int {
	if isEmptySentinel(raw) {
		return nil
	}
	n, err := strconv.Atoi(cleanNumeric(raw))
	if err != nil {
		return nil
	}
	return &n
}

// ParseDate normalizes a raw date cell. Any parsed year outside the
// accepted window is rejected as spreadsheet serial corruption and yields
// nil.
func ParseDate(raw string) *time.Time {
	if isEmptySentinel(raw) {
		return nil
	}
	s := strings.TrimSpace(raw)
	for _, layout := range feedDateLayouts {
		t, err := time.Parse(layout, s)
		if err != nil {
			continue
		}
		if t.Year() < config.MinFeedYear || t.Year() > config.MaxFeedYear {
			return nil
		}
		return &t
	}
	return nil
}
