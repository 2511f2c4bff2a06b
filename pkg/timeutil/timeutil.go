// Package timeutil holds the civil-time helpers for the Istanbul calendar.
// Delivery windows and order time groups are defined in local wall-clock
// time while the service itself runs in UTC; every date/hour comparison in
// the automation path must go through these functions.
package timeutil

import (
	"strings"
	"time"
)

// DateKeyLayout is the canonical delivery-date key format.
const DateKeyLayout = "2006-01-02"

var istanbul *time.Location

func init() {
	loc, err := time.LoadLocation("Europe/Istanbul")
	if err != nil {
		// Istanbul has been fixed at UTC+3 since 2016.
		loc = time.FixedZone("TRT", 3*60*60)
	}
	istanbul = loc
}

// Location returns the fixed civil timezone.
func Location() *time.Location {
	return istanbul
}

// CivilDateKey renders an instant as YYYY-MM-DD in Istanbul time,
// independent of the process timezone.
func CivilDateKey(t time.Time) string {
	return t.In(istanbul).Format(DateKeyLayout)
}

// CivilHour returns the Istanbul hour of day (0..23) for an instant.
func CivilHour(t time.Time) int {
	return t.In(istanbul).Hour()
}

// deliveryDateLayouts are the formats observed in stored delivery dates.
// Layouts without a zone are interpreted as Istanbul wall-clock time.
var deliveryDateLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"02.01.2006",
	"02/01/2006",
	"Mon Jan 2 2006",
}

// NormalizeDeliveryDate reduces a stored delivery-date value to the
// canonical YYYY-MM-DD key. Values already prefixed with a key keep the
// prefix; anything else is parsed and converted to the Istanbul civil
// date. Returns "" when the value is unparseable.
func NormalizeDeliveryDate(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if isDateKeyPrefix(raw) {
		return raw[:len(DateKeyLayout)]
	}
	for _, layout := range deliveryDateLayouts {
		t, err := time.ParseInLocation(layout, raw, istanbul)
		if err != nil {
			continue
		}
		return CivilDateKey(t)
	}
	return ""
}

func isDateKeyPrefix(s string) bool {
	if len(s) < len(DateKeyLayout) {
		return false
	}
	for i := 0; i < len(DateKeyLayout); i++ {
		switch i {
		case 4, 7:
			if s[i] != '-' {
				return false
			}
		default:
			if s[i] < '0' || s[i] > '9' {
				return false
			}
		}
	}
	return true
}
