// Package recipients defines the port for resolving the users that should
// receive an in-app (drawer) notification.
package recipients

import (
	"context"
	"encoding/json"
)

// Query selects recipients within an org. Settings and Unsubscribers are
// passed through to the resolver untouched.
type Query struct {
	OrgID         string          `json:"org_id"`
	Settings      json.RawMessage `json:"recipient_settings,omitempty"`
	Unsubscribers []string        `json:"unsubscribers,omitempty"`
}

// Resolver returns the usernames matching the query. An empty result is
// not an error.
type Resolver interface {
	Resolve(ctx context.Context, q Query) ([]string, error)
}
