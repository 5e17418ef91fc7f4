package envelope

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/Strob0t/Courier/internal/domain/auth"
)

// MetadataKey holds the endpoint metadata inside the data object.
const MetadataKey = "notif-metadata"

var (
	ErrInvalidTargetURL     = errors.New("invalid target URL")
	ErrURLValidation        = errors.New("URL validation failed")
	ErrProtocolNotSupported = errors.New("protocol not supported")
)

// URLPolicy controls how the target URL of a channel is validated.
type URLPolicy int

const (
	// URLRequired demands an https URL.
	URLRequired URLPolicy = iota
	// URLOptional validates the URL only when present; the channel supplies a default.
	URLOptional
	// URLExempt skips validation entirely (internal channels).
	URLExempt
)

// Target is the channel-independent delivery metadata of an envelope.
type Target struct {
	URL      string
	Method   string
	TrustAll bool
	// Auth is nil when the endpoint has no stored credential.
	Auth *auth.Reference
	// InlineToken is a secret token carried directly in the metadata.
	InlineToken string
}

type metadata struct {
	URL            string     `json:"url"`
	Method         string     `json:"method"`
	TrustAll       flexBool   `json:"trustAll"`
	InsightToken   string     `json:"X-Insight-Token"`
	Authentication *authBlock `json:"authentication"`
}

type authBlock struct {
	Type     string     `json:"type"`
	SecretID flexString `json:"secretId"`
}

type targetShape struct {
	Metadata           *metadata  `json:"notif-metadata"`
	EndpointProperties *metadata  `json:"endpoint_properties"`
	Authentication     *authBlock `json:"authentication"`
	TargetURL          string     `json:"target_url"`
}

// ExtractTarget reads the delivery target from the envelope. The metadata
// is looked up in notif-metadata, then endpoint_properties, then target_url.
func ExtractTarget(e *Envelope, policy URLPolicy) (Target, error) {
	var shape targetShape
	if err := e.Decode(&shape); err != nil {
		return Target{}, fmt.Errorf("decode target: %w", err)
	}

	md := shape.Metadata
	if md == nil {
		md = shape.EndpointProperties
	}
	if md == nil {
		md = &metadata{URL: shape.TargetURL}
	}
	if md.Authentication == nil {
		md.Authentication = shape.Authentication
	}

	t := Target{
		URL:         strings.TrimSpace(md.URL),
		Method:      strings.ToUpper(strings.TrimSpace(md.Method)),
		TrustAll:    bool(md.TrustAll),
		InlineToken: md.InsightToken,
	}

	if a := md.Authentication; a != nil && a.Type != "" {
		typ, err := auth.ParseType(a.Type)
		if err != nil {
			return Target{}, err
		}
		if a.SecretID == "" {
			return Target{}, auth.ErrMissingSecretRef
		}
		t.Auth = &auth.Reference{Type: typ, SecretID: string(a.SecretID)}
	}

	switch policy {
	case URLExempt:
	case URLOptional:
		if t.URL != "" {
			if err := ValidateURL(t.URL); err != nil {
				return Target{}, err
			}
		}
	default:
		if err := ValidateURL(t.URL); err != nil {
			return Target{}, err
		}
	}
	return t, nil
}

// ValidateURL accepts only absolute https URLs. http gets a distinct error.
func ValidateURL(raw string) error {
	if strings.TrimSpace(raw) == "" {
		return ErrInvalidTargetURL
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrURLValidation, err)
	}
	switch strings.ToLower(u.Scheme) {
	case "https":
		if u.Host == "" {
			return fmt.Errorf("%w: missing host", ErrURLValidation)
		}
		return nil
	case "http":
		return fmt.Errorf("%w: %s", ErrProtocolNotSupported, u.Scheme)
	default:
		return fmt.Errorf("%w: unsupported scheme %q", ErrURLValidation, u.Scheme)
	}
}
