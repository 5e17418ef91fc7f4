package teams

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/Strob0t/Courier/internal/domain/auth"
	"github.com/Strob0t/Courier/internal/domain/envelope"
	"github.com/Strob0t/Courier/internal/port/connector"
)

// Compile-time interface check.
var _ connector.Transformer = (*Transformer)(nil)

func transform(t *testing.T, data string, cred auth.Descriptor) *connector.WireRequest {
	t.Helper()
	env, err := envelope.Parse([]byte(`{"id":"evt-7","data":` + data + `}`))
	if err != nil {
		t.Fatal(err)
	}
	req, err := New().Transform(context.Background(), env, envelope.Target{URL: "https://example.webhook.office.com/webhookb2/X"}, cred)
	if err != nil {
		t.Fatal(err)
	}
	return req
}

func TestTransform_MessageCard(t *testing.T) {
	req := transform(t, `{"org_id":"org-9","application":"test-app","bundle":"rhel",
	  "event_type":"test-event","severity":"error","context":"Something broke"}`, auth.None())

	if req.Summary != "Teams message evt-7 sent successfully" {
		t.Errorf("summary = %q", req.Summary)
	}
	if req.ContentType != "application/json" {
		t.Errorf("content type = %q", req.ContentType)
	}

	var card MessageCard
	if err := json.Unmarshal(req.Body, &card); err != nil {
		t.Fatal(err)
	}
	if card.Type != "MessageCard" || card.Context != "https://schema.org/extensions" {
		t.Errorf("card type = %q %q", card.Type, card.Context)
	}
	if card.Summary != "test-app Notification" || card.Title != "test-app" || card.Text != "Something broke" {
		t.Errorf("card = %+v", card)
	}
	if card.ThemeColor != ColorRed {
		t.Errorf("theme color = %q", card.ThemeColor)
	}
	want := []Fact{{"Bundle", "rhel"}, {"Event Type", "test-event"}, {"Organization", "org-9"}}
	if len(card.Sections) != 1 || len(card.Sections[0].Facts) != len(want) {
		t.Fatalf("sections = %+v", card.Sections)
	}
	for i, f := range card.Sections[0].Facts {
		if f != want[i] {
			t.Errorf("fact %d = %+v, want %+v", i, f, want[i])
		}
	}
}

func TestBuild_DefaultsWithoutFacts(t *testing.T) {
	card := Build(envelope.Notification{}, "")
	if card.Title != "Red Hat Console" || card.Summary != "Red Hat Console Notification" {
		t.Errorf("card = %+v", card)
	}
	if card.Text != "Notification from Red Hat Console" {
		t.Errorf("text = %q", card.Text)
	}
	if card.Sections != nil {
		t.Errorf("sections must be omitted without facts: %+v", card.Sections)
	}
	body, err := json.Marshal(card)
	if err != nil {
		t.Fatal(err)
	}
	var m map[string]any
	if err := json.Unmarshal(body, &m); err != nil {
		t.Fatal(err)
	}
	if _, ok := m["sections"]; ok {
		t.Errorf("sections key present: %s", body)
	}
}

func TestSeverityColor(t *testing.T) {
	cases := map[string]string{
		"critical":  ColorRed,
		"CRITICAL":  ColorRed,
		"error":     ColorRed,
		"Warning":   ColorOrange,
		"info":      ColorBlue,
		"moderate":  ColorBlue,
		"":          ColorBlue,
		" warning ": ColorOrange,
	}
	for in, want := range cases {
		if got := SeverityColor(in); got != want {
			t.Errorf("SeverityColor(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestTransform_Authorization(t *testing.T) {
	cases := []struct {
		name string
		cred auth.Descriptor
		want string
	}{
		{"none", auth.None(), ""},
		{"secret token as bearer", auth.SecretToken("s3cr3t"), "Bearer s3cr3t"},
		{"bearer", auth.Bearer("tok"), "Bearer tok"},
		{"basic", auth.Basic("u", "p"), "Basic dTpw"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := transform(t, `{"org_id":"1"}`, tc.cred)
			if got := req.Header.Get("Authorization"); got != tc.want {
				t.Errorf("Authorization = %q, want %q", got, tc.want)
			}
		})
	}
}
