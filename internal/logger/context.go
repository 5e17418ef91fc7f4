package logger

import (
	"context"
	"log/slog"
)

type contextKey struct{}

var deliveryKey = contextKey{}

type deliveryAttrs struct {
	envelopeID string
	orgID      string
}

// WithEnvelope returns a context whose log records carry envelope_id and org_id.
func WithEnvelope(ctx context.Context, envelopeID, orgID string) context.Context {
	return context.WithValue(ctx, deliveryKey, deliveryAttrs{envelopeID: envelopeID, orgID: orgID})
}

// EnvelopeID extracts the envelope ID from the context, or "".
func EnvelopeID(ctx context.Context) string {
	a, _ := ctx.Value(deliveryKey).(deliveryAttrs)
	return a.envelopeID
}

// ContextHandler adds the delivery attributes stored in the context to
// every record.
type ContextHandler struct {
	inner slog.Handler
}

// NewContextHandler wraps inner.
func NewContextHandler(inner slog.Handler) *ContextHandler {
	return &ContextHandler{inner: inner}
}

func (h *ContextHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *ContextHandler) Handle(ctx context.Context, rec slog.Record) error { //nolint:gocritic // slog.Handler interface requires value receiver
	if a, ok := ctx.Value(deliveryKey).(deliveryAttrs); ok {
		rec.AddAttrs(slog.String("envelope_id", a.envelopeID), slog.String("org_id", a.orgID))
	}
	return h.inner.Handle(ctx, rec)
}

func (h *ContextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &ContextHandler{inner: h.inner.WithAttrs(attrs)}
}

func (h *ContextHandler) WithGroup(name string) slog.Handler {
	return &ContextHandler{inner: h.inner.WithGroup(name)}
}
