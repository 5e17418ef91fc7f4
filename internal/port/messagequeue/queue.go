// Package messagequeue defines the message queue port (interface).
package messagequeue

import (
	"context"
	"strings"
)

// Header names carried on delivery messages.
const (
	// HeaderConnector names the channel that must handle an inbound message.
	HeaderConnector = "x-rh-notifications-connector"
	// HeaderHistoryID correlates an outcome with the engine's history record.
	HeaderHistoryID = "x-rh-notifications-history-id"
)

// Message is one queue delivery.
type Message struct {
	Subject string
	Data    []byte
	Header  map[string]string
	// Deliveries counts delivery attempts of this message, 1 on first
	// delivery. Zero when the queue does not track it.
	Deliveries int
}

// HeaderValue looks up a header case-insensitively.
func (m Message) HeaderValue(key string) string {
	if v, ok := m.Header[key]; ok {
		return v
	}
	for k, v := range m.Header {
		if strings.EqualFold(k, key) {
			return v
		}
	}
	return ""
}

// Handler processes a message received from the queue. A non-nil error
// asks the queue to redeliver the message; it is reserved for crashes.
type Handler func(ctx context.Context, msg Message) error

// Publisher sends messages.
type Publisher interface {
	Publish(ctx context.Context, subject string, data []byte, header map[string]string) error
}

// Queue is the port interface for publishing and subscribing to messages.
type Queue interface {
	Publisher

	// Subscribe registers a handler for messages on the given subject.
	// At most concurrency handlers run at once. The returned function
	// stops the subscription.
	Subscribe(ctx context.Context, subject string, concurrency int, handler Handler) (cancel func(), err error)

	// Drain gracefully drains all subscriptions before closing.
	Drain() error

	// Close shuts down the queue connection immediately.
	Close() error

	// IsConnected reports whether the queue is currently connected.
	IsConnected() bool
}
