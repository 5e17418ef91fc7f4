// Package config provides hierarchical configuration loading for Courier.
// Precedence: defaults < YAML file < environment variables.
package config

import "time"

// Config holds all runtime configuration for one connector process.
type Config struct {
	Connector  Connector  `yaml:"connector"`
	NATS       NATS       `yaml:"nats"`
	HTTP       HTTP       `yaml:"http"`
	Redelivery Redelivery `yaml:"redelivery"`
	Worker     Worker     `yaml:"worker"`
	Sources    Sources    `yaml:"sources"`
	Recipients Recipients `yaml:"recipients"`
	Dedup      Dedup      `yaml:"dedup"`
	Breaker    Breaker    `yaml:"breaker"`
	Server     Server     `yaml:"server"`
	Telemetry  Telemetry  `yaml:"telemetry"`
	Logging    Logging    `yaml:"logging"`
}

// Connector identifies the channel this process delivers for.
type Connector struct {
	Name       string            `yaml:"name"`       // registered channel name, e.g. "slack"
	Identities []string          `yaml:"identities"` // connector header values accepted; defaults to [Name]
	Paused     bool              `yaml:"paused"`
	Settings   map[string]string `yaml:"settings"` // channel tunables, e.g. "splunk.source"
}

// AcceptedIdentities returns Identities or, when empty, the channel name.
func (c Connector) AcceptedIdentities() []string {
	if len(c.Identities) > 0 {
		return c.Identities
	}
	return []string{c.Name}
}

// NATS holds NATS JetStream configuration.
type NATS struct {
	URL             string        `yaml:"url"`
	Stream          string        `yaml:"stream"`
	IncomingSubject string        `yaml:"incoming_subject"`
	OutgoingSubject string        `yaml:"outgoing_subject"`
	DrawerSubject   string        `yaml:"drawer_subject"`
	Durable         string        `yaml:"durable"` // defaults to courier-<connector name>
	AckWait         time.Duration `yaml:"ack_wait"`
	// MaxDeliver bounds queue redelivery of a message whose handler keeps failing.
	MaxDeliver int `yaml:"max_deliver"`
}

// HTTP holds outbound delivery client configuration.
type HTTP struct {
	ConnectTimeout      time.Duration `yaml:"connect_timeout"`
	SocketTimeout       time.Duration `yaml:"socket_timeout"`
	MaxConnsPerRoute    int           `yaml:"max_conns_per_route"`
	MaxTotalConns       int           `yaml:"max_total_conns"`
	FollowRedirects     bool          `yaml:"follow_redirects"`
	ClientErrorLogLevel string        `yaml:"client_error_log_level"` // level for 4xx failures
	ServerErrorLogLevel string        `yaml:"server_error_log_level"` // level for 5xx failures
}

// Redelivery holds in-process retry configuration.
type Redelivery struct {
	MaxAttempts  int           `yaml:"max_attempts"` // total attempts, first one included
	InitialDelay time.Duration `yaml:"initial_delay"`
	MaxDelay     time.Duration `yaml:"max_delay"`
	Multiplier   float64       `yaml:"multiplier"`
	Jitter       float64       `yaml:"jitter"` // randomization factor in [0, 1)
}

// Worker holds ingestion concurrency configuration.
type Worker struct {
	Concurrency int `yaml:"concurrency"`
}

// Sources holds the secret store client configuration.
type Sources struct {
	URL     string        `yaml:"url"`
	Timeout time.Duration `yaml:"timeout"`
}

// Recipients holds the recipient resolver client configuration.
type Recipients struct {
	URL     string        `yaml:"url"`
	Timeout time.Duration `yaml:"timeout"`
}

// Dedup holds outcome deduplication configuration.
type Dedup struct {
	Enabled    bool          `yaml:"enabled"`
	L1MaxItems int64         `yaml:"l1_max_items"`
	L2Bucket   string        `yaml:"l2_bucket"`
	TTL        time.Duration `yaml:"ttl"`
}

// Breaker holds circuit breaker configuration for the secret store.
type Breaker struct {
	MaxFailures int           `yaml:"max_failures"`
	Timeout     time.Duration `yaml:"timeout"`
}

// Server holds the operations HTTP server configuration.
type Server struct {
	Port string `yaml:"port"`
}

// Telemetry holds tracing and metrics configuration.
type Telemetry struct {
	ServiceName    string `yaml:"service_name"`
	OTLPEndpoint   string `yaml:"otlp_endpoint"`   // empty disables OTLP export
	MetricsBackend string `yaml:"metrics_backend"` // "prometheus" | "otlp" | "none"
}

// Logging holds structured logging configuration.
type Logging struct {
	Level   string `yaml:"level"`
	Service string `yaml:"service"`
	Async   bool   `yaml:"async"`
}

// Defaults returns a Config with sensible default values.
func Defaults() Config {
	return Config{
		NATS: NATS{
			URL:             "nats://localhost:4222",
			Stream:          "NOTIFICATIONS",
			IncomingSubject: "notifications.toconnector",
			OutgoingSubject: "notifications.fromconnector",
			DrawerSubject:   "notifications.drawer",
			AckWait:         2 * time.Minute,
			MaxDeliver:      5,
		},
		HTTP: HTTP{
			ConnectTimeout:      2500 * time.Millisecond,
			SocketTimeout:       2500 * time.Millisecond,
			MaxConnsPerRoute:    20,
			MaxTotalConns:       100,
			ClientErrorLogLevel: "debug",
			ServerErrorLogLevel: "error",
		},
		Redelivery: Redelivery{
			MaxAttempts:  3,
			InitialDelay: time.Second,
			MaxDelay:     10 * time.Second,
			Multiplier:   2,
			Jitter:       0.1,
		},
		Worker: Worker{
			Concurrency: 16,
		},
		Sources: Sources{
			Timeout: 5 * time.Second,
		},
		Recipients: Recipients{
			Timeout: 5 * time.Second,
		},
		Dedup: Dedup{
			Enabled:    true,
			L1MaxItems: 100_000,
			L2Bucket:   "courier-outcomes",
			TTL:        24 * time.Hour,
		},
		Breaker: Breaker{
			MaxFailures: 5,
			Timeout:     30 * time.Second,
		},
		Server: Server{
			Port: "8080",
		},
		Telemetry: Telemetry{
			ServiceName:    "courier",
			MetricsBackend: "prometheus",
		},
		Logging: Logging{
			Level:   "info",
			Service: "courier",
		},
	}
}
