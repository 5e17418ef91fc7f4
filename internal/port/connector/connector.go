// Package connector defines the port every delivery channel implements and
// the registry channels add themselves to.
package connector

import (
	"context"
	"errors"
	"net/http"

	"github.com/Strob0t/Courier/internal/domain/auth"
	"github.com/Strob0t/Courier/internal/domain/envelope"
	"github.com/Strob0t/Courier/internal/port/recipients"
)

// ErrNothingToDeliver signals that a transform produced no request. The
// envelope is reported as successful and skipped.
var ErrNothingToDeliver = errors.New("nothing to deliver")

// Transport selects how a WireRequest leaves the process.
type Transport int

const (
	// TransportHTTP sends the request through the HTTP delivery client.
	TransportHTTP Transport = iota
	// TransportQueue publishes the body to the subject held in URL.
	TransportQueue
)

// WireRequest is a fully built outbound delivery.
type WireRequest struct {
	Transport   Transport
	Method      string
	URL         string
	Header      http.Header
	Body        []byte
	ContentType string
	// Summary is the outcome text reported on success.
	Summary string
	// Details are merged into the outcome details.
	Details map[string]any
}

// Transformer converts an envelope into the wire format of one channel.
type Transformer interface {
	// Name is the channel name, also used as the connector identity.
	Name() string
	// URLPolicy tells the pipeline how to validate the target URL.
	URLPolicy() envelope.URLPolicy
	// Transform builds the outbound request. Errors are final and not retried.
	Transform(ctx context.Context, env *envelope.Envelope, target envelope.Target, cred auth.Descriptor) (*WireRequest, error)
}

// Deps carries what a channel may need at construction time.
type Deps struct {
	// Settings holds channel tunables keyed like "splunk.source".
	Settings map[string]string
	// Recipients resolves drawer recipients. Nil for channels that do not use it.
	Recipients recipients.Resolver
	// DrawerSubject is the queue subject drawer entries are published to.
	DrawerSubject string
}

// Setting returns Settings[key] or def when unset.
func (d Deps) Setting(key, def string) string {
	if v, ok := d.Settings[key]; ok && v != "" {
		return v
	}
	return def
}
