// Package service contains the delivery pipeline and its collaborators.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Strob0t/Courier/internal/domain/auth"
	"github.com/Strob0t/Courier/internal/domain/envelope"
	"github.com/Strob0t/Courier/internal/port/secretstore"
)

// AuthResolver turns secret references into credentials. Only the kind and
// presence of a credential are ever logged.
type AuthResolver struct {
	store secretstore.Store
}

// NewAuthResolver creates an AuthResolver. store may be nil when no
// endpoint uses stored credentials; references then fail to resolve.
func NewAuthResolver(store secretstore.Store) *AuthResolver {
	return &AuthResolver{store: store}
}

// Resolve loads the secret secretRef of orgID and shapes it as typ.
func (r *AuthResolver) Resolve(ctx context.Context, typ auth.Type, secretRef, orgID string) (auth.Descriptor, error) {
	switch typ {
	case auth.TypeBasic, auth.TypeBearer, auth.TypeSecretToken:
	default:
		return auth.None(), fmt.Errorf("%w: %q", auth.ErrUnsupportedType, typ)
	}
	if secretRef == "" {
		return auth.None(), auth.ErrMissingSecretRef
	}
	if r.store == nil {
		return auth.None(), errors.New("no secret store configured")
	}

	secret, err := r.store.Get(ctx, secretRef, orgID)
	if err != nil {
		return auth.None(), fmt.Errorf("load secret %s: %w", secretRef, err)
	}

	var d auth.Descriptor
	switch typ {
	case auth.TypeBasic:
		d = auth.Basic(secret.Username, secret.Password)
	case auth.TypeBearer:
		d = auth.Bearer(secret.Password)
	case auth.TypeSecretToken:
		d = auth.SecretToken(secret.Password)
	}
	slog.DebugContext(ctx, "credential resolved", "secret_id", secretRef, "auth", d)
	return d, nil
}

// ForTarget resolves the credential of a delivery target: a stored
// reference first, then an inline secret token, else none.
func (r *AuthResolver) ForTarget(ctx context.Context, target envelope.Target, orgID string) (auth.Descriptor, error) {
	if target.Auth != nil {
		return r.Resolve(ctx, target.Auth.Type, target.Auth.SecretID, orgID)
	}
	if target.InlineToken != "" {
		return auth.SecretToken(target.InlineToken), nil
	}
	return auth.None(), nil
}
