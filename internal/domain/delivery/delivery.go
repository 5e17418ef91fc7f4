// Package delivery defines the error taxonomy and outcome of a delivery.
package delivery

// ErrorKind classifies a failed delivery attempt. The string values appear
// in outcome events and dashboards.
type ErrorKind string

const (
	KindSocketTimeout         ErrorKind = "SOCKET_TIMEOUT"
	KindConnectTimeout        ErrorKind = "CONNECT_TIMEOUT"
	KindConnectionRefused     ErrorKind = "CONNECTION_REFUSED"
	KindHTTP3xx               ErrorKind = "HTTP_3XX"
	KindHTTP4xx               ErrorKind = "HTTP_4XX"
	KindHTTP5xx               ErrorKind = "HTTP_5XX"
	KindSSLHandshake          ErrorKind = "SSL_HANDSHAKE"
	KindUnknownHost           ErrorKind = "UNKNOWN_HOST"
	KindUnsupportedSSLMessage ErrorKind = "UNSUPPORTED_SSL_MESSAGE"
	// KindUnknown is the fallback for errors outside the taxonomy.
	KindUnknown ErrorKind = "UNKNOWN"
)

// IsHTTP reports whether the kind was derived from an HTTP status code.
func (k ErrorKind) IsHTTP() bool {
	return k == KindHTTP3xx || k == KindHTTP4xx || k == KindHTTP5xx
}

// KindForStatus maps a non-2xx status code to its kind.
// 429 is grouped with server errors.
func KindForStatus(code int) ErrorKind {
	switch {
	case code == 429:
		return KindHTTP5xx
	case code >= 300 && code < 400:
		return KindHTTP3xx
	case code >= 400 && code < 500:
		return KindHTTP4xx
	case code >= 500 && code < 600:
		return KindHTTP5xx
	default:
		return KindUnknown
	}
}

// Outcome is the terminal result of one envelope, built once regardless of
// the number of attempts.
type Outcome struct {
	Successful bool
	Message    string
	// DurationMs runs from receipt to final resolution.
	DurationMs int64
	TargetURL  string
	Details    map[string]any
	// ErrorKind is set on failure only.
	ErrorKind  ErrorKind
	StatusCode int
	Attempts   int
}

// Result is returned to the caller and emitted downstream.
type Result struct {
	EnvelopeID string
	OrgID      string
	Outcome    Outcome
}
