package model

import (
	"database/sql/driver"
	"encoding/json"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Timeline entry discriminator values. Entries without a type field are
// status-change records; that matches the historical rows in production.
const (
	entryTypeNotification = "notification"

	NotificationChannelEmail = "email"
	NotificationEventStatus  = "order_status"
)

// StatusEntry records a status transition.
type StatusEntry struct {
	Status    Status    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Note      string    `json:"note,omitempty"`
	Automated bool      `json:"automated,omitempty"`
}

// NotificationEntry records a notification attempt. Successful entries are
// the idempotency source of truth: a status email is sent at most once per
// order per status, decided by scanning these.
type NotificationEntry struct {
	Channel   string    `json:"channel"`
	Event     string    `json:"event"`
	Status    Status    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Success   bool      `json:"success"`
	Automated bool      `json:"automated,omitempty"`
}

// TimelineEntry is a tagged union: exactly one of StatusChange or
// Notification is set. Entries written by other subsystems that match
// neither shape are kept as raw JSON so a rewrite of the column does not
// drop them.
type TimelineEntry struct {
	StatusChange *StatusEntry
	Notification *NotificationEntry

	raw json.RawMessage
}

func (e TimelineEntry) MarshalJSON() ([]byte, error) {
	switch {
	case e.StatusChange != nil:
		return json.Marshal(e.StatusChange)
	case e.Notification != nil:
		return json.Marshal(struct {
			Type string `json:"type"`
			NotificationEntry
		}{entryTypeNotification, *e.Notification})
	case e.raw != nil:
		return e.raw, nil
	}
	return nil, errors.New("timeline entry has no variant set")
}

func (e *TimelineEntry) UnmarshalJSON(data []byte) error {
	var probe struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		// Malformed or foreign entry; keep the bytes, ignore the content.
		e.raw = append(json.RawMessage(nil), data...)
		return nil
	}

	switch probe.Type {
	case entryTypeNotification:
		var n NotificationEntry
		if err := json.Unmarshal(data, &n); err != nil {
			e.raw = append(json.RawMessage(nil), data...)
			return nil
		}
		e.Notification = &n
	case "":
		var s StatusEntry
		if err := json.Unmarshal(data, &s); err != nil || s.Status == "" {
			e.raw = append(json.RawMessage(nil), data...)
			return nil
		}
		e.StatusChange = &s
	default:
		e.raw = append(json.RawMessage(nil), data...)
	}
	return nil
}

// Timeline is the per-order append-only log stored as a JSON column.
type Timeline []TimelineEntry

func (t Timeline) Value() (driver.Value, error) {
	if t == nil {
		t = Timeline{}
	}
	b, err := json.Marshal(t)
	if err != nil {
		return nil, errors.Wrap(err, "marshal timeline")
	}
	return string(b), nil
}

func (t *Timeline) Scan(value interface{}) error {
	var data []byte
	switch v := value.(type) {
	case nil:
		*t = nil
		return nil
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return errors.Errorf("unsupported timeline column type %T", value)
	}
	if len(data) == 0 {
		*t = nil
		return nil
	}
	var entries []TimelineEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		// A corrupt column must not fail the whole order read.
		*t = nil
		return nil
	}
	*t = entries
	return nil
}

// HasStatus reports whether a status-change entry for s already exists.
func (t Timeline) HasStatus(s Status) bool {
	for _, e := range t {
		if e.StatusChange != nil && e.StatusChange.Status == s {
			return true
		}
	}
	return false
}

// HasSentNotification reports whether a successful email status
// notification for s was already recorded. Status comparison is
// case-insensitive to tolerate entries written by older code.
func (t Timeline) HasSentNotification(s Status) bool {
	for _, e := range t {
		n := e.Notification
		if n == nil || !n.Success {
			continue
		}
		if n.Channel != NotificationChannelEmail || n.Event != NotificationEventStatus {
			continue
		}
		if strings.EqualFold(string(n.Status), string(s)) {
			return true
		}
	}
	return false
}

// WithStatus returns the timeline with a status-change entry appended.
func (t Timeline) WithStatus(s Status, note string, automated bool, at time.Time) Timeline {
	out := make(Timeline, len(t), len(t)+1)
	copy(out, t)
	return append(out, TimelineEntry{StatusChange: &StatusEntry{
		Status:    s,
		Timestamp: at,
		Note:      note,
		Automated: automated,
	}})
}

// WithNotification returns the timeline with an email notification entry
// appended.
func (t Timeline) WithNotification(s Status, success, automated bool, at time.Time) Timeline {
	out := make(Timeline, len(t), len(t)+1)
	copy(out, t)
	return append(out, TimelineEntry{Notification: &NotificationEntry{
		Channel:   NotificationChannelEmail,
		Event:     NotificationEventStatus,
		Status:    s,
		Timestamp: at,
		Success:   success,
		Automated: automated,
	}})
}
