// Package servicenow implements the ServiceNow incident channel.
package servicenow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/Strob0t/Courier/internal/domain/auth"
	"github.com/Strob0t/Courier/internal/domain/envelope"
	"github.com/Strob0t/Courier/internal/port/connector"
)

const channelName = "servicenow"

// IncidentPath is the table API path incidents are created under.
const IncidentPath = "/api/now/table/incident"

// DefaultCallerID is reported as the incident caller unless configured.
const DefaultCallerID = "Console Notifications"

// ErrAuthRequired is returned when the endpoint has no credential.
var ErrAuthRequired = errors.New("servicenow endpoint requires authentication")

const openedAtLayout = "2006-01-02 15:04:05"

// Incident is the ServiceNow incident record.
type Incident struct {
	ShortDescription  string `json:"short_description"`
	Description       string `json:"description"`
	Urgency           string `json:"urgency"`
	Impact            string `json:"impact"`
	Category          string `json:"category"`
	Subcategory       string `json:"subcategory"`
	CallerID          string `json:"caller_id"`
	OpenedAt          string `json:"opened_at"`
	AssignmentGroup   string `json:"assignment_group,omitempty"`
	EventID           string `json:"u_event_id"`
	OrgID             string `json:"u_org_id"`
	AccountID         string `json:"u_account_id"`
	SourceApplication string `json:"u_source_application"`
	SourceBundle      string `json:"u_source_bundle"`
	EventType         string `json:"u_event_type"`
}

// MapUrgency converts an event severity to a ServiceNow urgency.
func MapUrgency(severity string) string {
	switch strings.ToLower(strings.TrimSpace(severity)) {
	case "critical":
		return "1"
	case "error":
		return "2"
	default:
		return "3"
	}
}

type servicenowData struct {
	AssignmentGroup string `json:"assignment_group"`
	Metadata        struct {
		AssignmentGroup string `json:"assignment_group"`
	} `json:"notif-metadata"`
}

// Transformer builds incident creation requests.
type Transformer struct {
	callerID string
	now      func() time.Time
}

func New(callerID string) *Transformer {
	if callerID == "" {
		callerID = DefaultCallerID
	}
	return &Transformer{callerID: callerID, now: time.Now}
}

func (*Transformer) Name() string                  { return channelName }
func (*Transformer) URLPolicy() envelope.URLPolicy { return envelope.URLRequired }

func (t *Transformer) Transform(_ context.Context, env *envelope.Envelope, target envelope.Target, cred auth.Descriptor) (*connector.WireRequest, error) {
	header := http.Header{}
	switch cred.Kind {
	case auth.KindBasic, auth.KindBearer:
		v, _ := cred.AuthorizationHeader()
		header.Set("Authorization", v)
	case auth.KindSecretToken:
		header.Set("Authorization", "Bearer "+cred.Token)
	default:
		return nil, ErrAuthRequired
	}
	header.Set("Accept", "application/json")

	n, err := env.Notification()
	if err != nil {
		return nil, fmt.Errorf("decode servicenow fields: %w", err)
	}
	var d servicenowData
	if err := env.Decode(&d); err != nil {
		return nil, fmt.Errorf("decode servicenow fields: %w", err)
	}

	inc := Incident{
		ShortDescription:  shortDescription(n),
		Description:       description(n),
		Urgency:           MapUrgency(n.Severity),
		Impact:            "3",
		Category:          "Software",
		Subcategory:       "Application",
		CallerID:          t.callerID,
		OpenedAt:          n.OccurredAt(env, t.now).Format(openedAtLayout),
		AssignmentGroup:   d.Metadata.AssignmentGroup,
		EventID:           env.ID,
		OrgID:             env.OrgID,
		AccountID:         env.AccountID,
		SourceApplication: n.Application,
		SourceBundle:      n.Bundle,
		EventType:         n.EventType,
	}
	if inc.AssignmentGroup == "" {
		inc.AssignmentGroup = d.AssignmentGroup
	}

	body, err := json.Marshal(inc)
	if err != nil {
		return nil, fmt.Errorf("marshal servicenow incident: %w", err)
	}
	return &connector.WireRequest{
		Transport:   connector.TransportHTTP,
		Method:      http.MethodPost,
		URL:         IncidentURL(target.URL),
		Header:      header,
		Body:        body,
		ContentType: "application/json",
		Summary:     fmt.Sprintf("ServiceNow incident %s created successfully", env.ID),
		Details:     map[string]any{"urgency": inc.Urgency},
	}, nil
}

// IncidentURL appends the incident table path unless the URL already ends with it.
func IncidentURL(raw string) string {
	u := strings.TrimRight(raw, "/")
	if strings.HasSuffix(u, IncidentPath) {
		return u
	}
	return u + IncidentPath
}

func shortDescription(n envelope.Notification) string {
	app, bundle, eventType := n.Application, n.Bundle, n.EventType
	if n.Source != nil {
		app = orDefault(n.Source.Application.DisplayName, app)
		bundle = orDefault(n.Source.Bundle.DisplayName, bundle)
		eventType = orDefault(n.Source.EventType.DisplayName, eventType)
	}
	return fmt.Sprintf("%s - %s: %s", app, bundle, eventType)
}

func description(n envelope.Notification) string {
	if m := strings.TrimSpace(n.Message); m != "" {
		return m
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Event %s from %s/%s", n.EventType, n.Bundle, n.Application)
	if c := n.ContextText(); c != "" {
		b.WriteString("\nContext: ")
		b.WriteString(c)
	}
	if n.InventoryURL != "" {
		b.WriteString("\nInventory: ")
		b.WriteString(n.InventoryURL)
	}
	return b.String()
}

func orDefault(v, def string) string {
	if v != "" {
		return v
	}
	return def
}
