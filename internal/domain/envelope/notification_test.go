package envelope

import (
	"testing"
	"time"
)

func TestNotification(t *testing.T) {
	env, err := Parse([]byte(`{"id":"1","time":"2026-01-02T03:04:05Z","data":{"org_id":"1",
	  "application":"policies","bundle":"rhel","event_type":"policy-triggered","severity":"critical",
	  "context":{"host":"web-1"},"events":[{"a":1},{"b":2}],
	  "source":{"application":{"display_name":"Policies"}}}}`))
	if err != nil {
		t.Fatal(err)
	}
	n, err := env.Notification()
	if err != nil {
		t.Fatal(err)
	}
	if n.Application != "policies" || n.Severity != "critical" || len(n.Events) != 2 {
		t.Errorf("notification = %+v", n)
	}
	if n.Source == nil || n.Source.Application.DisplayName != "Policies" {
		t.Errorf("source = %+v", n.Source)
	}
	if got := n.ContextText(); got != `{"host":"web-1"}` {
		t.Errorf("context text = %q", got)
	}
	if got := n.OccurredAt(env, time.Now); !got.Equal(time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)) {
		t.Errorf("occurred at = %v", got)
	}
}

func TestOccurredAt(t *testing.T) {
	fixed := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	now := func() time.Time { return fixed }
	env := &Envelope{}

	tests := []struct {
		ts   string
		want time.Time
	}{
		{"2026-05-06T07:08:09.123456", time.Date(2026, 5, 6, 7, 8, 9, 123456000, time.UTC)},
		{"2026-05-06T07:08:09+02:00", time.Date(2026, 5, 6, 5, 8, 9, 0, time.UTC)},
		{"garbage", fixed},
		{"", fixed},
	}
	for _, tt := range tests {
		if got := (Notification{Timestamp: tt.ts}).OccurredAt(env, now); !got.Equal(tt.want) {
			t.Errorf("OccurredAt(%q) = %v, want %v", tt.ts, got, tt.want)
		}
	}
}

func TestContextText(t *testing.T) {
	if got := (Notification{Context: []byte(`"plain"`)}).ContextText(); got != "plain" {
		t.Errorf("got %q", got)
	}
	if got := (Notification{}).ContextText(); got != "" {
		t.Errorf("got %q", got)
	}
}
