// Package auth defines the credential types attached to outbound deliveries.
package auth

import (
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// Type is the authentication scheme declared on an endpoint.
type Type string

const (
	TypeBasic       Type = "BASIC"
	TypeBearer      Type = "BEARER"
	TypeSecretToken Type = "SECRET_TOKEN"
)

var (
	// ErrUnsupportedType is returned for an authentication type outside the known set.
	ErrUnsupportedType = errors.New("unsupported authentication type")
	// ErrMissingSecretRef is returned when an authentication block has no secret id.
	ErrMissingSecretRef = errors.New("authentication secret reference is missing")
)

// ParseType normalizes s into a known Type.
func ParseType(s string) (Type, error) {
	switch t := Type(strings.ToUpper(strings.TrimSpace(s))); t {
	case TypeBasic, TypeBearer, TypeSecretToken:
		return t, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedType, s)
	}
}

// Reference points at a credential held by the external secret store.
type Reference struct {
	Type     Type
	SecretID string
}

// Kind tags the variant carried by a Descriptor.
type Kind int

const (
	KindNone Kind = iota
	KindBasic
	KindBearer
	KindSecretToken
)

func (k Kind) String() string {
	switch k {
	case KindBasic:
		return "basic"
	case KindBearer:
		return "bearer"
	case KindSecretToken:
		return "secret_token"
	default:
		return "none"
	}
}

// Descriptor is a resolved credential. It is held in memory for one
// delivery only. String and LogValue never expose the secret material.
type Descriptor struct {
	Kind     Kind
	Username string
	Password string
	Token    string
}

// None returns the empty descriptor.
func None() Descriptor { return Descriptor{} }

// Basic returns a username/password descriptor.
func Basic(username, password string) Descriptor {
	return Descriptor{Kind: KindBasic, Username: username, Password: password}
}

// Bearer returns a bearer token descriptor.
func Bearer(token string) Descriptor {
	return Descriptor{Kind: KindBearer, Token: token}
}

// SecretToken returns an opaque token descriptor. Channels decide how to apply it.
func SecretToken(token string) Descriptor {
	return Descriptor{Kind: KindSecretToken, Token: token}
}

// Present reports whether the descriptor carries a credential.
func (d Descriptor) Present() bool { return d.Kind != KindNone }

// AuthorizationHeader returns the standard Authorization value for Basic and
// Bearer descriptors.
func (d Descriptor) AuthorizationHeader() (string, bool) {
	switch d.Kind {
	case KindBasic:
		raw := d.Username + ":" + d.Password
		return "Basic " + base64.StdEncoding.EncodeToString([]byte(raw)), true
	case KindBearer:
		return "Bearer " + d.Token, true
	default:
		return "", false
	}
}

func (d Descriptor) String() string { return "auth." + d.Kind.String() }

// LogValue implements slog.LogValuer.
func (d Descriptor) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("kind", d.Kind.String()),
		slog.Bool("present", d.Present()),
	)
}
