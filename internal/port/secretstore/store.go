// Package secretstore defines the port for the external secret store that
// holds per-endpoint credentials.
package secretstore

import (
	"context"
	"errors"
)

// ErrNotFound is returned when the secret does not exist for the org.
var ErrNotFound = errors.New("secret not found")

// Secret is the raw credential material. Username is empty for token secrets.
type Secret struct {
	Username string `json:"username,omitempty"`
	Password string `json:"password"`
}

// Store loads secrets by id within an org. Implementations are safe for
// concurrent use.
type Store interface {
	Get(ctx context.Context, id, orgID string) (Secret, error)
}
