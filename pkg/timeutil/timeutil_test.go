package timeutil

import (
	"testing"
	"time"
)

func TestCivilDateKeyCrossesMidnight(t *testing.T) {
	// 22:30 UTC is already the next civil day in Istanbul (UTC+3).
	instant := time.Date(2024, 6, 14, 22, 30, 0, 0, time.UTC)
	if got := CivilDateKey(instant); got != "2024-06-15" {
		t.Fatalf("expected 2024-06-15, got %s", got)
	}
	if got := CivilHour(instant); got != 1 {
		t.Fatalf("expected hour 1, got %d", got)
	}
}

func TestCivilDateKeyIgnoresSourceZone(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	utc := time.Date(2024, 6, 15, 8, 0, 0, 0, time.UTC)
	if CivilDateKey(utc) != CivilDateKey(utc.In(ny)) {
		t.Fatalf("date key must not depend on the source location")
	}
}

func TestNormalizeDeliveryDate(t *testing.T) {
	cases := []struct {
		raw  string
		want string
	}{
		{"2024-06-15", "2024-06-15"},
		{"2024-06-15T13:00:00Z", "2024-06-15"}, // prefixed key wins
		{"2024-06-15 10:00:00", "2024-06-15"},
		{"15.06.2024", "2024-06-15"},
		{"15/06/2024", "2024-06-15"},
		{"  2024-06-15  ", "2024-06-15"},
		{"next tuesday", ""},
		{"2024-6-5", ""},
		{"", ""},
	}
	for _, c := range cases {
		if got := NormalizeDeliveryDate(c.raw); got != c.want {
			t.Errorf("NormalizeDeliveryDate(%q) = %q, want %q", c.raw, got, c.want)
		}
	}
}
