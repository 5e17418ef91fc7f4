// Package pagerduty implements the PagerDuty Events API v2 channel.
package pagerduty

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/Strob0t/Courier/internal/domain/auth"
	"github.com/Strob0t/Courier/internal/domain/envelope"
	"github.com/Strob0t/Courier/internal/port/connector"
)

const channelName = "pagerduty"

// DefaultAPIURL is the public events endpoint used when the endpoint has no URL.
const DefaultAPIURL = "https://events.pagerduty.com/v2/enqueue"

// ErrMissingRoutingKey is returned when the endpoint has no integration key.
var ErrMissingRoutingKey = errors.New("pagerduty routing key is required")

const timestampLayout = "2006-01-02T15:04:05.000"

// Event is the Events API v2 request body.
type Event struct {
	RoutingKey  string  `json:"routing_key"`
	EventAction string  `json:"event_action"`
	DedupKey    string  `json:"dedup_key"`
	Payload     Payload `json:"payload"`
	Client      string  `json:"client,omitempty"`
	ClientURL   string  `json:"client_url,omitempty"`
	Links       []Link  `json:"links,omitempty"`
}

// Payload is the event payload block.
type Payload struct {
	Summary       string         `json:"summary"`
	Source        string         `json:"source"`
	Severity      string         `json:"severity"`
	Timestamp     string         `json:"timestamp"`
	Component     string         `json:"component,omitempty"`
	Group         string         `json:"group,omitempty"`
	Class         string         `json:"class,omitempty"`
	CustomDetails map[string]any `json:"custom_details"`
}

// Link is an attached hyperlink.
type Link struct {
	Href string `json:"href"`
	Text string `json:"text"`
}

// MapSeverity converts an event severity to a PagerDuty severity.
func MapSeverity(s string) string {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "critical":
		return "critical"
	case "error":
		return "error"
	case "warning":
		return "warning"
	default:
		return "info"
	}
}

// DedupKey derives the deduplication key of an envelope.
func DedupKey(env *envelope.Envelope) string {
	return env.ID + "-" + env.OrgID
}

type pagerdutyData struct {
	EventAction string `json:"event_action"`
	Metadata    struct {
		Severity string `json:"severity"`
	} `json:"notif-metadata"`
}

// Transformer builds PagerDuty events.
type Transformer struct {
	apiURL string
	now    func() time.Time
}

// New returns a PagerDuty Transformer that falls back to apiURL.
func New(apiURL string) *Transformer {
	if apiURL == "" {
		apiURL = DefaultAPIURL
	}
	return &Transformer{apiURL: apiURL, now: time.Now}
}

func (*Transformer) Name() string                  { return channelName }
func (*Transformer) URLPolicy() envelope.URLPolicy { return envelope.URLOptional }

func (t *Transformer) Transform(ctx context.Context, env *envelope.Envelope, target envelope.Target, cred auth.Descriptor) (*connector.WireRequest, error) {
	var routingKey string
	switch cred.Kind {
	case auth.KindSecretToken, auth.KindBearer:
		routingKey = cred.Token
	}
	if routingKey == "" {
		return nil, ErrMissingRoutingKey
	}

	n, err := env.Notification()
	if err != nil {
		return nil, fmt.Errorf("decode pagerduty fields: %w", err)
	}
	var d pagerdutyData
	if err := env.Decode(&d); err != nil {
		return nil, fmt.Errorf("decode pagerduty fields: %w", err)
	}

	action := strings.ToLower(strings.TrimSpace(d.EventAction))
	switch action {
	case "trigger", "acknowledge", "resolve":
	default:
		if action != "" {
			slog.WarnContext(ctx, "invalid pagerduty event_action, using trigger", "event_action", action)
		}
		action = "trigger"
	}

	severity := n.Severity
	if severity == "" {
		severity = d.Metadata.Severity
	}

	ev := Event{
		RoutingKey:  routingKey,
		EventAction: action,
		DedupKey:    DedupKey(env),
		Payload: Payload{
			Summary:       summary(n),
			Source:        source(env, n),
			Severity:      MapSeverity(severity),
			Timestamp:     n.OccurredAt(env, t.now).Format(timestampLayout) + "+0000",
			Component:     n.Application,
			Group:         n.Bundle,
			Class:         n.EventType,
			CustomDetails: customDetails(env, n),
		},
	}
	if n.ApplicationURL != "" {
		ev.Client = displayApplication(n)
		ev.ClientURL = n.ApplicationURL
	}
	if n.InventoryURL != "" {
		ev.Links = []Link{{Href: n.InventoryURL, Text: "Host"}}
	}

	body, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("marshal pagerduty event: %w", err)
	}

	url := target.URL
	if url == "" {
		url = t.apiURL
	}
	return &connector.WireRequest{
		Transport:   connector.TransportHTTP,
		Method:      http.MethodPost,
		URL:         url,
		Header:      http.Header{},
		Body:        body,
		ContentType: "application/json",
		Summary:     fmt.Sprintf("PagerDuty event %s sent successfully", env.ID),
		Details:     map[string]any{"event_action": action, "dedup_key": ev.DedupKey},
	}, nil
}

func summary(n envelope.Notification) string {
	return fmt.Sprintf("%s - %s: %s", displayApplication(n), displayBundle(n), displayEventType(n))
}

func source(env *envelope.Envelope, n envelope.Notification) string {
	if n.Application != "" {
		return n.Application
	}
	if env.Source != "" {
		return env.Source
	}
	return "console"
}

func customDetails(env *envelope.Envelope, n envelope.Notification) map[string]any {
	cd := map[string]any{
		"event_id": env.ID,
		"org_id":   env.OrgID,
	}
	if env.AccountID != "" {
		cd["account_id"] = env.AccountID
	}
	if n.ContextText() != "" {
		cd["context"] = n.Context
	}
	if len(n.Events) > 0 {
		cd["events"] = n.Events
	}
	return cd
}

func displayApplication(n envelope.Notification) string {
	if n.Source != nil && n.Source.Application.DisplayName != "" {
		return n.Source.Application.DisplayName
	}
	return n.Application
}

func displayBundle(n envelope.Notification) string {
	if n.Source != nil && n.Source.Bundle.DisplayName != "" {
		return n.Source.Bundle.DisplayName
	}
	return n.Bundle
}

func displayEventType(n envelope.Notification) string {
	if n.Source != nil && n.Source.EventType.DisplayName != "" {
		return n.Source.EventType.DisplayName
	}
	return n.EventType
}
