// Package drawer implements the in-app drawer channel. Entries are fanned
// out to resolved recipients over the message queue.
package drawer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Strob0t/Courier/internal/domain/auth"
	"github.com/Strob0t/Courier/internal/domain/envelope"
	"github.com/Strob0t/Courier/internal/port/connector"
	"github.com/Strob0t/Courier/internal/port/recipients"
)

const channelName = "drawer"

// Entry is the rendered drawer entry stored for every recipient.
type Entry struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Created     time.Time `json:"created"`
	Source      string    `json:"source"`
	Bundle      string    `json:"bundle"`
	Read        bool      `json:"read"`
}

// Delivery is the queue message body.
type Delivery struct {
	OrgID     string   `json:"org_id"`
	Usernames []string `json:"usernames"`
	Payload   Entry    `json:"payload"`
}

type drawerData struct {
	RecipientSettings json.RawMessage `json:"recipient_settings"`
	Unsubscribers     []string        `json:"unsubscribers"`
	DrawerEntry       *struct {
		ID          string `json:"id"`
		Title       string `json:"title"`
		Description string `json:"description"`
	} `json:"drawer_entry"`
}

// Transformer resolves recipients and builds drawer deliveries.
type Transformer struct {
	resolver recipients.Resolver
	subject  string
	now      func() time.Time
	newID    func() string
}

func New(resolver recipients.Resolver, subject string) (*Transformer, error) {
	if resolver == nil {
		return nil, errors.New("drawer: recipients resolver is required")
	}
	if subject == "" {
		return nil, errors.New("drawer: subject is required")
	}
	return &Transformer{
		resolver: resolver,
		subject:  subject,
		now:      time.Now,
		newID:    uuid.NewString,
	}, nil
}

func (*Transformer) Name() string                  { return channelName }
func (*Transformer) URLPolicy() envelope.URLPolicy { return envelope.URLExempt }

// Transform returns connector.ErrNothingToDeliver when no recipient matches.
func (t *Transformer) Transform(ctx context.Context, env *envelope.Envelope, _ envelope.Target, _ auth.Descriptor) (*connector.WireRequest, error) {
	n, err := env.Notification()
	if err != nil {
		return nil, fmt.Errorf("decode drawer fields: %w", err)
	}
	var d drawerData
	if err := env.Decode(&d); err != nil {
		return nil, fmt.Errorf("decode drawer fields: %w", err)
	}

	users, err := t.resolver.Resolve(ctx, recipients.Query{
		OrgID:         env.OrgID,
		Settings:      d.RecipientSettings,
		Unsubscribers: d.Unsubscribers,
	})
	if err != nil {
		return nil, fmt.Errorf("resolve drawer recipients: %w", err)
	}
	if len(users) == 0 {
		slog.InfoContext(ctx, "no drawer recipients resolved", "org_id", env.OrgID)
		return nil, connector.ErrNothingToDeliver
	}

	entry := t.entry(env, n, d)
	body, err := json.Marshal(Delivery{OrgID: env.OrgID, Usernames: users, Payload: entry})
	if err != nil {
		return nil, fmt.Errorf("marshal drawer delivery: %w", err)
	}
	return &connector.WireRequest{
		Transport:   connector.TransportQueue,
		URL:         t.subject,
		Body:        body,
		ContentType: "application/json",
		Summary:     fmt.Sprintf("Drawer entry %s sent to %d recipients", entry.ID, len(users)),
		Details:     map[string]any{"recipients": len(users)},
	}, nil
}

func (t *Transformer) entry(env *envelope.Envelope, n envelope.Notification, d drawerData) Entry {
	e := Entry{
		Created: n.OccurredAt(env, t.now),
		Source:  fmt.Sprintf("%s - %s", n.Application, n.Bundle),
		Bundle:  n.Bundle,
	}
	if d.DrawerEntry != nil {
		e.ID = d.DrawerEntry.ID
		e.Title = d.DrawerEntry.Title
		e.Description = d.DrawerEntry.Description
	}
	if e.ID == "" {
		e.ID = t.newID()
	}
	if e.Title == "" {
		e.Title = n.EventType
		if n.Source != nil && n.Source.EventType.DisplayName != "" {
			e.Title = n.Source.EventType.DisplayName
		}
	}
	if e.Description == "" {
		e.Description = strings.TrimSpace(n.Message)
	}
	return e
}
