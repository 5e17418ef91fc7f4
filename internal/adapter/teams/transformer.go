// Package teams implements the Microsoft Teams incoming-webhook channel
// using the legacy MessageCard format.
package teams

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/Strob0t/Courier/internal/domain/auth"
	"github.com/Strob0t/Courier/internal/domain/envelope"
	"github.com/Strob0t/Courier/internal/port/connector"
)

const channelName = "teams"

const (
	defaultApp     = "Red Hat Console"
	defaultContext = "Notification from Red Hat Console"
)

// Theme colors by severity.
const (
	ColorRed    = "FF0000"
	ColorOrange = "FFA500"
	ColorBlue   = "0078D4"
)

// MessageCard is the Teams webhook body.
type MessageCard struct {
	Type       string    `json:"@type"`
	Context    string    `json:"@context"`
	Summary    string    `json:"summary"`
	Title      string    `json:"title"`
	Text       string    `json:"text"`
	ThemeColor string    `json:"themeColor"`
	Sections   []Section `json:"sections,omitempty"`
}

type Section struct {
	Facts []Fact `json:"facts"`
}

type Fact struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Transformer builds Teams webhook requests.
type Transformer struct{}

// New returns a Teams Transformer.
func New() *Transformer { return &Transformer{} }

func (*Transformer) Name() string                  { return channelName }
func (*Transformer) URLPolicy() envelope.URLPolicy { return envelope.URLRequired }

func (t *Transformer) Transform(_ context.Context, env *envelope.Envelope, target envelope.Target, cred auth.Descriptor) (*connector.WireRequest, error) {
	n, err := env.Notification()
	if err != nil {
		return nil, fmt.Errorf("decode teams fields: %w", err)
	}

	body, err := json.Marshal(Build(n, env.OrgID))
	if err != nil {
		return nil, fmt.Errorf("marshal teams card: %w", err)
	}

	header := http.Header{}
	if v, ok := authorization(cred); ok {
		header.Set("Authorization", v)
	}

	return &connector.WireRequest{
		Transport:   connector.TransportHTTP,
		Method:      http.MethodPost,
		URL:         target.URL,
		Header:      header,
		Body:        body,
		ContentType: "application/json",
		Summary:     fmt.Sprintf("Teams message %s sent successfully", env.ID),
		Details:     map[string]any{},
	}, nil
}

// Build renders the MessageCard of n for the org.
func Build(n envelope.Notification, orgID string) MessageCard {
	app := n.Application
	if app == "" {
		app = defaultApp
	}
	text := n.ContextText()
	if text == "" {
		text = defaultContext
	}

	card := MessageCard{
		Type:       "MessageCard",
		Context:    "https://schema.org/extensions",
		Summary:    app + " Notification",
		Title:      app,
		Text:       text,
		ThemeColor: SeverityColor(n.Severity),
	}

	var facts []Fact
	if n.Bundle != "" {
		facts = append(facts, Fact{Name: "Bundle", Value: n.Bundle})
	}
	if n.EventType != "" {
		facts = append(facts, Fact{Name: "Event Type", Value: n.EventType})
	}
	if orgID != "" {
		facts = append(facts, Fact{Name: "Organization", Value: orgID})
	}
	if len(facts) > 0 {
		card.Sections = []Section{{Facts: facts}}
	}
	return card
}

// SeverityColor maps an event severity to a theme color. Unknown
// severities are blue.
func SeverityColor(severity string) string {
	switch strings.ToLower(strings.TrimSpace(severity)) {
	case "critical", "error":
		return ColorRed
	case "warning":
		return ColorOrange
	default:
		return ColorBlue
	}
}

// authorization sends secret tokens as bearer tokens.
func authorization(cred auth.Descriptor) (string, bool) {
	if cred.Kind == auth.KindSecretToken && cred.Token != "" {
		return "Bearer " + cred.Token, true
	}
	return cred.AuthorizationHeader()
}
