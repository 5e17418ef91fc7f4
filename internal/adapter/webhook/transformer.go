// Package webhook implements the generic webhook channel: the event payload
// is passed through as JSON to the endpoint URL.
package webhook

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/Strob0t/Courier/internal/domain/auth"
	"github.com/Strob0t/Courier/internal/domain/envelope"
	"github.com/Strob0t/Courier/internal/port/connector"
)

const channelName = "webhook"

// ContentType is sent with every webhook body.
const ContentType = "application/json; charset=utf-8"

// HeaderInsightToken carries a SECRET_TOKEN credential.
const HeaderInsightToken = "X-Insight-Token"

// Transformer builds webhook requests.
type Transformer struct{}

// New returns a webhook Transformer.
func New() *Transformer { return &Transformer{} }

func (*Transformer) Name() string                  { return channelName }
func (*Transformer) URLPolicy() envelope.URLPolicy { return envelope.URLRequired }

// Transform sends data.payload, or the whole data object minus routing
// metadata when no payload field exists.
func (t *Transformer) Transform(_ context.Context, env *envelope.Envelope, target envelope.Target, cred auth.Descriptor) (*connector.WireRequest, error) {
	body, err := payload(env)
	if err != nil {
		return nil, err
	}

	method := target.Method
	if method == "" {
		method = http.MethodPost
	}

	header := http.Header{}
	switch cred.Kind {
	case auth.KindSecretToken:
		header.Set(HeaderInsightToken, cred.Token)
	case auth.KindBasic, auth.KindBearer:
		v, _ := cred.AuthorizationHeader()
		header.Set("Authorization", v)
	}

	return &connector.WireRequest{
		Transport:   connector.TransportHTTP,
		Method:      method,
		URL:         target.URL,
		Header:      header,
		Body:        body,
		ContentType: ContentType,
		Summary:     fmt.Sprintf("Event %s sent successfully", env.ID),
		Details:     map[string]any{"method": method},
	}, nil
}

func payload(env *envelope.Envelope) ([]byte, error) {
	var shape struct {
		Payload json.RawMessage `json:"payload"`
	}
	if err := env.Decode(&shape); err != nil {
		return nil, fmt.Errorf("decode webhook payload: %w", err)
	}
	if len(shape.Payload) > 0 && string(shape.Payload) != "null" {
		return shape.Payload, nil
	}

	fields, err := env.Fields()
	if err != nil {
		return nil, fmt.Errorf("decode webhook payload: %w", err)
	}
	for _, k := range []string{envelope.MetadataKey, "endpoint_properties", "authentication"} {
		delete(fields, k)
	}
	return json.Marshal(fields)
}
