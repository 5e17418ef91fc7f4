package service

import (
	"context"
	"errors"
	"testing"

	"github.com/Strob0t/Courier/internal/domain/auth"
	"github.com/Strob0t/Courier/internal/domain/envelope"
	"github.com/Strob0t/Courier/internal/port/secretstore"
)

func TestAuthResolver_Resolve(t *testing.T) {
	store := &fakeStore{secrets: map[string]secretstore.Secret{
		"42/s1": {Username: "svc", Password: "pw"},
		"42/s2": {Password: "tok"},
	}}
	r := NewAuthResolver(store)
	ctx := context.Background()

	tests := []struct {
		name string
		typ  auth.Type
		ref  string
		want auth.Descriptor
	}{
		{"basic", auth.TypeBasic, "s1", auth.Basic("svc", "pw")},
		{"bearer", auth.TypeBearer, "s2", auth.Bearer("tok")},
		{"secret token", auth.TypeSecretToken, "s2", auth.SecretToken("tok")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.Resolve(ctx, tt.typ, tt.ref, "42")
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAuthResolver_Errors(t *testing.T) {
	store := &fakeStore{}
	r := NewAuthResolver(store)
	ctx := context.Background()

	if _, err := r.Resolve(ctx, auth.Type("OAUTH"), "s", "1"); !errors.Is(err, auth.ErrUnsupportedType) {
		t.Errorf("expected ErrUnsupportedType, got %v", err)
	}
	if _, err := r.Resolve(ctx, auth.TypeBasic, "", "1"); !errors.Is(err, auth.ErrMissingSecretRef) {
		t.Errorf("expected ErrMissingSecretRef, got %v", err)
	}
	if _, err := r.Resolve(ctx, auth.TypeBasic, "missing", "1"); !errors.Is(err, secretstore.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if store.calls != 1 {
		t.Errorf("store calls = %d, want 1", store.calls)
	}
}

func TestAuthResolver_ForTarget(t *testing.T) {
	r := NewAuthResolver(nil)
	ctx := context.Background()

	got, err := r.ForTarget(ctx, envelope.Target{InlineToken: "inline"}, "1")
	if err != nil || got != auth.SecretToken("inline") {
		t.Errorf("inline token: got %v, %v", got, err)
	}
	got, err = r.ForTarget(ctx, envelope.Target{}, "1")
	if err != nil || got.Present() {
		t.Errorf("no auth: got %v, %v", got, err)
	}
	ref := &auth.Reference{Type: auth.TypeBearer, SecretID: "x"}
	if _, err := r.ForTarget(ctx, envelope.Target{Auth: ref}, "1"); err == nil {
		t.Error("expected error without a secret store")
	}
}
