// Package splunk implements the Splunk HTTP Event Collector channel.
package splunk

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"net/http"
	"strings"

	"github.com/Strob0t/Courier/internal/domain/auth"
	"github.com/Strob0t/Courier/internal/domain/envelope"
	"github.com/Strob0t/Courier/internal/port/connector"
)

const channelName = "splunk"

const (
	DefaultSource     = "eventing"
	DefaultSourceType = "Insights event"
)

const (
	collectorPath = "/services/collector"
	eventPath     = collectorPath + "/event"
	rawPath       = collectorPath + "/raw"
)

// ErrMissingToken is returned when the endpoint has no HEC token.
var ErrMissingToken = errors.New("splunk HEC token is required")

// Wrapped is one HEC event record.
type Wrapped struct {
	Source     string         `json:"source"`
	SourceType string         `json:"sourcetype"`
	Event      map[string]any `json:"event"`
}

// Transformer builds HEC requests.
type Transformer struct {
	source     string
	sourceType string
}

func New(source, sourceType string) *Transformer {
	if source == "" {
		source = DefaultSource
	}
	if sourceType == "" {
		sourceType = DefaultSourceType
	}
	return &Transformer{source: source, sourceType: sourceType}
}

func (*Transformer) Name() string                  { return channelName }
func (*Transformer) URLPolicy() envelope.URLPolicy { return envelope.URLRequired }

// Transform wraps the event data. When data.events holds more than one
// element, one record per element is written and the records are
// concatenated without a surrounding array.
func (t *Transformer) Transform(_ context.Context, env *envelope.Envelope, target envelope.Target, cred auth.Descriptor) (*connector.WireRequest, error) {
	var token string
	switch cred.Kind {
	case auth.KindSecretToken, auth.KindBearer:
		token = cred.Token
	}
	if token == "" {
		return nil, ErrMissingToken
	}

	fields, err := env.Fields()
	if err != nil {
		return nil, fmt.Errorf("decode splunk fields: %w", err)
	}
	delete(fields, envelope.MetadataKey)

	body, count, err := t.encode(fields)
	if err != nil {
		return nil, err
	}

	header := http.Header{}
	header.Set("Authorization", "Splunk "+token)
	return &connector.WireRequest{
		Transport:   connector.TransportHTTP,
		Method:      http.MethodPost,
		URL:         CollectorURL(target.URL),
		Header:      header,
		Body:        body,
		ContentType: "application/json",
		Summary:     fmt.Sprintf("Splunk events %s sent successfully", env.ID),
		Details:     map[string]any{"events": count},
	}, nil
}

func (t *Transformer) encode(fields map[string]any) ([]byte, int, error) {
	events, _ := fields["events"].([]any)
	if len(events) <= 1 {
		b, err := json.Marshal(t.wrap(fields))
		if err != nil {
			return nil, 0, fmt.Errorf("marshal splunk event: %w", err)
		}
		return b, 1, nil
	}

	var buf bytes.Buffer
	for _, e := range events {
		split := maps.Clone(fields)
		split["events"] = []any{e}
		b, err := json.Marshal(t.wrap(split))
		if err != nil {
			return nil, 0, fmt.Errorf("marshal splunk event: %w", err)
		}
		buf.Write(b)
	}
	return buf.Bytes(), len(events), nil
}

func (t *Transformer) wrap(event map[string]any) Wrapped {
	return Wrapped{Source: t.source, SourceType: t.sourceType, Event: event}
}

// CollectorURL normalizes an endpoint URL to the HEC event endpoint.
func CollectorURL(raw string) string {
	u := strings.TrimRight(raw, "/")
	switch {
	case strings.HasSuffix(u, eventPath):
		return u
	case strings.HasSuffix(u, rawPath):
		return strings.TrimSuffix(u, rawPath) + eventPath
	case strings.HasSuffix(u, collectorPath):
		return u + "/event"
	default:
		return u + eventPath
	}
}
