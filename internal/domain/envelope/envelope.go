// Package envelope defines the normalized unit of delivery work and the
// extraction of its delivery target.
package envelope

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// TypePrefix prefixes the CloudEvent type of every inbound delivery request.
// The remainder names the channel, e.g. "...toCamel.slack".
const TypePrefix = "com.redhat.console.notification.toCamel."

// ErrMalformed is returned when an inbound message cannot be parsed.
var ErrMalformed = errors.New("malformed envelope")

// Envelope is an inbound delivery request. It must not be modified after
// Parse returns; transformers use Fields or Decode to work on copies.
type Envelope struct {
	ID          string
	Type        string
	SpecVersion string
	Source      string
	Time        time.Time
	OrgID       string
	EndpointID  string
	AccountID   string
	Data        json.RawMessage
}

type cloudEvent struct {
	ID          string          `json:"id"`
	Type        string          `json:"type"`
	SpecVersion string          `json:"specversion"`
	Source      string          `json:"source"`
	Time        string          `json:"time"`
	Data        json.RawMessage `json:"data"`
}

type commonFields struct {
	OrgID      flexString `json:"org_id"`
	EndpointID flexString `json:"endpoint_id"`
	AccountID  flexString `json:"account_id"`
}

// Parse decodes a CloudEvent-shaped message. id, a JSON object data and
// data.org_id are required.
func Parse(raw []byte) (*Envelope, error) {
	var ce cloudEvent
	if err := json.Unmarshal(raw, &ce); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if ce.ID == "" {
		return nil, fmt.Errorf("%w: id is required", ErrMalformed)
	}
	data := json.RawMessage(strings.TrimSpace(string(ce.Data)))
	if len(data) == 0 || data[0] != '{' {
		return nil, fmt.Errorf("%w: data must be a JSON object", ErrMalformed)
	}

	var common commonFields
	if err := json.Unmarshal(data, &common); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if common.OrgID == "" {
		return nil, fmt.Errorf("%w: data.org_id is required", ErrMalformed)
	}

	env := &Envelope{
		ID:          ce.ID,
		Type:        ce.Type,
		SpecVersion: ce.SpecVersion,
		Source:      ce.Source,
		OrgID:       string(common.OrgID),
		EndpointID:  string(common.EndpointID),
		AccountID:   string(common.AccountID),
		Data:        data,
	}
	if ce.Time != "" {
		ts, err := time.Parse(time.RFC3339Nano, ce.Time)
		if err != nil {
			return nil, fmt.Errorf("%w: time: %v", ErrMalformed, err)
		}
		env.Time = ts
	}
	return env, nil
}

// Channel returns the channel named by the CloudEvent type, or "" when the
// type does not carry the delivery prefix.
func (e *Envelope) Channel() string {
	if !strings.HasPrefix(e.Type, TypePrefix) {
		return ""
	}
	return strings.TrimPrefix(e.Type, TypePrefix)
}

// Decode unmarshals the data object into v.
func (e *Envelope) Decode(v any) error {
	return json.Unmarshal(e.Data, v)
}

// Fields returns a fresh generic copy of the data object.
func (e *Envelope) Fields() (map[string]any, error) {
	var m map[string]any
	if err := json.Unmarshal(e.Data, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// flexString accepts JSON strings and numbers.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "null" {
		*f = ""
		return nil
	}
	if strings.HasPrefix(s, `"`) {
		var v string
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		*f = flexString(v)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("expected string or number, got %s", s)
	}
	*f = flexString(n.String())
	return nil
}

// flexBool accepts JSON booleans and the strings "true"/"false".
type flexBool bool

func (f *flexBool) UnmarshalJSON(b []byte) error {
	switch strings.Trim(strings.ToLower(strings.TrimSpace(string(b))), `"`) {
	case "true":
		*f = true
	case "false", "", "null":
		*f = false
	default:
		return fmt.Errorf("expected boolean, got %s", b)
	}
	return nil
}
