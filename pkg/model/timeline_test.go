package model

import (
	"encoding/json"
	"testing"
	"time"
)

func TestTimelineScanToleratesForeignEntries(t *testing.T) {
	column := `[
		{"status":"confirmed","timestamp":"2024-06-15T08:00:00Z","automated":true},
		{"type":"notification","channel":"email","event":"order_status","status":"confirmed","timestamp":"2024-06-15T08:00:01Z","success":true},
		{"type":"refund_request","amount":120},
		42,
		{"note":"hand-written entry with no status"}
	]`

	var tl Timeline
	if err := tl.Scan([]byte(column)); err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(tl) != 5 {
		t.Fatalf("expected 5 entries preserved, got %d", len(tl))
	}
	if tl[0].StatusChange == nil || tl[0].StatusChange.Status != StatusConfirmed {
		t.Fatalf("entry 0 should be a confirmed status change: %+v", tl[0])
	}
	if tl[1].Notification == nil || !tl[1].Notification.Success {
		t.Fatalf("entry 1 should be a successful notification: %+v", tl[1])
	}
	for i := 2; i < 5; i++ {
		if tl[i].StatusChange != nil || tl[i].Notification != nil {
			t.Fatalf("entry %d should be foreign/raw: %+v", i, tl[i])
		}
	}

	if !tl.HasStatus(StatusConfirmed) {
		t.Fatal("HasStatus(confirmed) = false")
	}
	if !tl.HasSentNotification(StatusConfirmed) {
		t.Fatal("HasSentNotification(confirmed) = false")
	}
	if tl.HasSentNotification(StatusShipped) {
		t.Fatal("HasSentNotification(shipped) = true")
	}
}

func TestTimelineRoundTripKeepsForeignEntries(t *testing.T) {
	column := `[{"type":"refund_request","amount":120}]`
	var tl Timeline
	if err := tl.Scan(column); err != nil {
		t.Fatalf("scan: %v", err)
	}
	tl = tl.WithStatus(StatusProcessing, "", true, time.Date(2024, 6, 15, 8, 0, 0, 0, time.UTC))

	v, err := tl.Value()
	if err != nil {
		t.Fatalf("value: %v", err)
	}
	var entries []map[string]interface{}
	if err := json.Unmarshal([]byte(v.(string)), &entries); err != nil {
		t.Fatalf("unmarshal rewritten column: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0]["type"] != "refund_request" {
		t.Fatalf("foreign entry not preserved: %v", entries[0])
	}
	if entries[1]["status"] != string(StatusProcessing) {
		t.Fatalf("appended entry wrong: %v", entries[1])
	}
}

func TestTimelineScanCorruptColumn(t *testing.T) {
	var tl Timeline
	if err := tl.Scan([]byte("{not json")); err != nil {
		t.Fatalf("corrupt column must not error: %v", err)
	}
	if tl != nil {
		t.Fatalf("expected empty timeline, got %v", tl)
	}
}

func TestNotificationStatusCaseInsensitive(t *testing.T) {
	tl := Timeline{}.WithNotification("Confirmed", true, true, time.Now())
	if !tl.HasSentNotification(StatusConfirmed) {
		t.Fatal("status match must be case-insensitive")
	}
}

func TestTimeGroupForHour(t *testing.T) {
	cases := []struct {
		hour int
		want TimeGroup
	}{
		{11, TimeGroupNoon},
		{16, TimeGroupNoon},
		{17, TimeGroupEvening},
		{21, TimeGroupEvening},
		{22, TimeGroupOvernight},
		{3, TimeGroupOvernight},
		{10, TimeGroupOvernight},
	}
	for _, c := range cases {
		if got := TimeGroupForHour(c.hour); got != c.want {
			t.Errorf("hour %d: %s, want %s", c.hour, got, c.want)
		}
	}
}
