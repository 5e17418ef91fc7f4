package splunk

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/Strob0t/Courier/internal/domain/auth"
	"github.com/Strob0t/Courier/internal/domain/envelope"
	"github.com/Strob0t/Courier/internal/port/connector"
)

// Compile-time interface check.
var _ connector.Transformer = (*Transformer)(nil)

func transform(t *testing.T, data string) *connector.WireRequest {
	t.Helper()
	env, err := envelope.Parse([]byte(`{"id":"evt-9","data":` + data + `}`))
	if err != nil {
		t.Fatal(err)
	}
	req, err := New("", "").Transform(context.Background(), env, envelope.Target{URL: "https://splunk.example:8088"}, auth.SecretToken("hec"))
	if err != nil {
		t.Fatal(err)
	}
	return req
}

func TestCollectorURL(t *testing.T) {
	tests := []struct{ in, want string }{
		{"https://h:8088", "https://h:8088/services/collector/event"},
		{"https://h:8088/", "https://h:8088/services/collector/event"},
		{"https://h:8088/services/collector", "https://h:8088/services/collector/event"},
		{"https://h:8088/services/collector/", "https://h:8088/services/collector/event"},
		{"https://h:8088/services/collector/raw", "https://h:8088/services/collector/event"},
		{"https://h:8088/services/collector/event", "https://h:8088/services/collector/event"},
	}
	for _, tt := range tests {
		if got := CollectorURL(tt.in); got != tt.want {
			t.Errorf("CollectorURL(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestTransform_SingleEventIsOneRecord(t *testing.T) {
	req := transform(t, `{"org_id":"1","events":[{"n":1}],"notif-metadata":{"url":"x"}}`)

	want, _ := json.Marshal(Wrapped{
		Source:     DefaultSource,
		SourceType: DefaultSourceType,
		Event:      map[string]any{"org_id": "1", "events": []any{map[string]any{"n": float64(1)}}},
	})
	if string(req.Body) != string(want) {
		t.Errorf("body = %s\nwant %s", req.Body, want)
	}
	if got := req.Header.Get("Authorization"); got != "Splunk hec" {
		t.Errorf("authorization = %q", got)
	}
	if req.URL != "https://splunk.example:8088/services/collector/event" {
		t.Errorf("url = %q", req.URL)
	}
}

func TestTransform_MultipleEventsAreConcatenated(t *testing.T) {
	req := transform(t, `{"org_id":"1","events":[{"n":1},{"n":2}]}`)

	wrap := func(n float64) string {
		b, _ := json.Marshal(Wrapped{
			Source:     DefaultSource,
			SourceType: DefaultSourceType,
			Event:      map[string]any{"org_id": "1", "events": []any{map[string]any{"n": n}}},
		})
		return string(b)
	}
	if want := wrap(1) + wrap(2); string(req.Body) != want {
		t.Errorf("body = %s\nwant %s", req.Body, want)
	}
	if req.Body[0] == '[' {
		t.Error("body must not be a JSON array")
	}
	if req.Details["events"] != 2 {
		t.Errorf("details = %v", req.Details)
	}
}

func TestTransform_MissingToken(t *testing.T) {
	env, _ := envelope.Parse([]byte(`{"id":"e","data":{"org_id":"1"}}`))
	_, err := New("", "").Transform(context.Background(), env, envelope.Target{URL: "https://h"}, auth.Basic("u", "p"))
	if !errors.Is(err, ErrMissingToken) {
		t.Fatalf("expected ErrMissingToken, got %v", err)
	}
}
