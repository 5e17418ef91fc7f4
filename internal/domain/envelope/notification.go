package envelope

import (
	"encoding/json"
	"strings"
	"time"
)

// Notification is the channel-independent view of the event fields most
// channels render.
type Notification struct {
	Application    string            `json:"application"`
	Bundle         string            `json:"bundle"`
	EventType      string            `json:"event_type"`
	Severity       string            `json:"severity"`
	Timestamp      string            `json:"timestamp"`
	Context        json.RawMessage   `json:"context"`
	Events         []json.RawMessage `json:"events"`
	Message        string            `json:"message"` // rendered body, opaque here
	InventoryURL   string            `json:"inventory_url"`
	ApplicationURL string            `json:"application_url"`
	Source         *SourceNames      `json:"source"`
}

// SourceNames carries display names of the event origin.
type SourceNames struct {
	Application DisplayName `json:"application"`
	Bundle      DisplayName `json:"bundle"`
	EventType   DisplayName `json:"event_type"`
}

// DisplayName wraps a human-readable label.
type DisplayName struct {
	DisplayName string `json:"display_name"`
}

// Notification decodes the common event fields.
func (e *Envelope) Notification() (Notification, error) {
	var n Notification
	if err := e.Decode(&n); err != nil {
		return Notification{}, err
	}
	return n, nil
}

// OccurredAt returns the event timestamp, falling back to the CloudEvent
// time and then to now. Timestamps without a zone are taken as UTC.
func (n Notification) OccurredAt(e *Envelope, now func() time.Time) time.Time {
	if ts := strings.TrimSpace(n.Timestamp); ts != "" {
		if t, err := time.Parse(time.RFC3339Nano, ts); err == nil {
			return t.UTC()
		}
		if t, err := time.ParseInLocation("2006-01-02T15:04:05.999999999", ts, time.UTC); err == nil {
			return t
		}
	}
	if !e.Time.IsZero() {
		return e.Time.UTC()
	}
	return now().UTC()
}

// ContextText renders Context as plain text: a JSON string is unquoted,
// anything else is returned as compact JSON.
func (n Notification) ContextText() string {
	raw := strings.TrimSpace(string(n.Context))
	if raw == "" || raw == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(n.Context, &s); err == nil {
		return s
	}
	return raw
}
