// Package slack implements the Slack incoming-webhook channel.
package slack

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/Strob0t/Courier/internal/domain/auth"
	"github.com/Strob0t/Courier/internal/domain/envelope"
	"github.com/Strob0t/Courier/internal/port/connector"
)

const channelName = "slack"

// ErrEmptyMessage is returned when neither a rendered message nor the
// fields for a fallback text are available.
var ErrEmptyMessage = errors.New("slack message text is empty")

// Message is the Slack webhook body.
type Message struct {
	Text    string          `json:"text"`
	Channel string          `json:"channel,omitempty"`
	Blocks  json.RawMessage `json:"blocks,omitempty"`
}

type slackData struct {
	Channel  string          `json:"channel"`
	Blocks   json.RawMessage `json:"blocks"`
	Metadata struct {
		Channel string `json:"channel"`
		Extras  struct {
			Channel string `json:"channel"`
		} `json:"extras"`
	} `json:"notif-metadata"`
}

// Transformer builds Slack webhook requests.
type Transformer struct{}

// New returns a Slack Transformer.
func New() *Transformer { return &Transformer{} }

func (*Transformer) Name() string                  { return channelName }
func (*Transformer) URLPolicy() envelope.URLPolicy { return envelope.URLRequired }

func (t *Transformer) Transform(_ context.Context, env *envelope.Envelope, target envelope.Target, cred auth.Descriptor) (*connector.WireRequest, error) {
	n, err := env.Notification()
	if err != nil {
		return nil, fmt.Errorf("decode slack fields: %w", err)
	}
	var d slackData
	if err := env.Decode(&d); err != nil {
		return nil, fmt.Errorf("decode slack fields: %w", err)
	}

	text := strings.TrimSpace(n.Message)
	if text == "" && n.Application != "" {
		text = fmt.Sprintf("*%s*: %s", n.Application, n.EventType)
	}
	if text == "" {
		return nil, ErrEmptyMessage
	}

	msg := Message{Text: text, Channel: firstNonEmpty(d.Metadata.Extras.Channel, d.Metadata.Channel, d.Channel)}
	if b := strings.TrimSpace(string(d.Blocks)); b != "" && b != "null" {
		msg.Blocks = d.Blocks
	}
	body, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("marshal slack message: %w", err)
	}

	header := http.Header{}
	if v, ok := cred.AuthorizationHeader(); ok {
		header.Set("Authorization", v)
	}

	details := map[string]any{}
	if msg.Channel != "" {
		details["channel"] = msg.Channel
	}
	return &connector.WireRequest{
		Transport:   connector.TransportHTTP,
		Method:      http.MethodPost,
		URL:         target.URL,
		Header:      header,
		Body:        body,
		ContentType: "application/json",
		Summary:     fmt.Sprintf("Slack message %s sent successfully", env.ID),
		Details:     details,
	}, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
