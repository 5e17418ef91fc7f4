// Package googlechat implements the Google Chat incoming-webhook channel.
package googlechat

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/Strob0t/Courier/internal/domain/auth"
	"github.com/Strob0t/Courier/internal/domain/envelope"
	"github.com/Strob0t/Courier/internal/port/connector"
)

const channelName = "google_chat"

const (
	defaultTitle   = "Red Hat Console"
	defaultApp     = "Unknown Application"
	defaultContext = "Notification from Red Hat Console"
	iconURL        = "https://console.redhat.com/favicon.ico"
)

// Message is the Google Chat webhook body: a plain text line plus one card.
type Message struct {
	Text  string `json:"text"`
	Cards []Card `json:"cards"`
}

type Card struct {
	Sections []Section `json:"sections"`
}

type Section struct {
	Header  *Header  `json:"header,omitempty"`
	Widgets []Widget `json:"widgets,omitempty"`
}

type Header struct {
	Title    string `json:"title"`
	Subtitle string `json:"subtitle"`
	ImageURL string `json:"imageUrl"`
}

// Widget holds exactly one of its fields.
type Widget struct {
	TextParagraph *TextParagraph `json:"textParagraph,omitempty"`
	KeyValue      *KeyValue      `json:"keyValue,omitempty"`
}

type TextParagraph struct {
	Text string `json:"text"`
}

type KeyValue struct {
	TopLabel string `json:"topLabel"`
	Content  string `json:"content"`
}

// Transformer builds Google Chat webhook requests.
type Transformer struct{}

// New returns a Google Chat Transformer.
func New() *Transformer { return &Transformer{} }

func (*Transformer) Name() string                  { return channelName }
func (*Transformer) URLPolicy() envelope.URLPolicy { return envelope.URLRequired }

func (t *Transformer) Transform(_ context.Context, env *envelope.Envelope, target envelope.Target, cred auth.Descriptor) (*connector.WireRequest, error) {
	n, err := env.Notification()
	if err != nil {
		return nil, fmt.Errorf("decode google chat fields: %w", err)
	}

	body, err := json.Marshal(Build(n))
	if err != nil {
		return nil, fmt.Errorf("marshal google chat message: %w", err)
	}

	header := http.Header{}
	if v, ok := cred.AuthorizationHeader(); ok {
		header.Set("Authorization", v)
	}

	return &connector.WireRequest{
		Transport:   connector.TransportHTTP,
		Method:      http.MethodPost,
		URL:         target.URL,
		Header:      header,
		Body:        body,
		ContentType: "application/json",
		Summary:     fmt.Sprintf("Google Chat message %s sent successfully", env.ID),
		Details:     map[string]any{},
	}, nil
}

// Build renders the chat message of n. Bundle and event type each get a
// key/value widget when present.
func Build(n envelope.Notification) Message {
	summary := n.ContextText()
	if summary == "" {
		summary = defaultContext
	}
	app := n.Application
	if app == "" {
		app = defaultApp
	}
	title := n.Application
	if title == "" {
		title = defaultTitle
	}

	widgets := []Widget{{TextParagraph: &TextParagraph{Text: summary}}}
	if n.Bundle != "" {
		widgets = append(widgets, Widget{KeyValue: &KeyValue{TopLabel: "Bundle", Content: n.Bundle}})
	}
	if n.EventType != "" {
		widgets = append(widgets, Widget{KeyValue: &KeyValue{TopLabel: "Event Type", Content: n.EventType}})
	}

	return Message{
		Text: fmt.Sprintf("%s: %s", app, summary),
		Cards: []Card{{Sections: []Section{{
			Header:  &Header{Title: title, Subtitle: "Notification", ImageURL: iconURL},
			Widgets: widgets,
		}}}},
	}
}
