package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the path checked for YAML configuration.
const DefaultConfigFile = "courier.yaml"

// Load returns a Config using the hierarchy: defaults < YAML < ENV.
// YAML file is optional; missing file is not an error.
func Load() (*Config, error) {
	return LoadFrom(Path())
}

// Path returns $COURIER_CONFIG, or DefaultConfigFile when unset.
func Path() string {
	if p := os.Getenv("COURIER_CONFIG"); p != "" {
		return p
	}
	return DefaultConfigFile
}

// LoadFrom returns a Config loaded from the given YAML path using the
// hierarchy: defaults < YAML < ENV. The YAML file is optional.
func LoadFrom(yamlPath string) (*Config, error) {
	return LoadWith(yamlPath)
}

// LoadWith is LoadFrom with overrides applied after the environment and
// before derived values and validation, e.g. for command-line flags.
func LoadWith(yamlPath string, overrides ...func(*Config)) (*Config, error) {
	cfg := Defaults()

	if err := loadYAML(&cfg, yamlPath); err != nil {
		return nil, fmt.Errorf("config yaml: %w", err)
	}

	loadEnv(&cfg)
	for _, o := range overrides {
		o(&cfg)
	}
	applyDerived(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validate: %w", err)
	}

	return &cfg, nil
}

// loadYAML reads the YAML file and unmarshals it over cfg.
// Returns nil if the file does not exist.
func loadYAML(cfg *Config, path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path comes from operator configuration
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	return nil
}

// loadEnv overlays environment variables onto cfg.
// Only non-empty env values override the current config.
func loadEnv(cfg *Config) {
	setString(&cfg.Connector.Name, "COURIER_CONNECTOR")
	setList(&cfg.Connector.Identities, "COURIER_CONNECTOR_IDENTITIES")
	setBool(&cfg.Connector.Paused, "COURIER_PAUSED")

	setString(&cfg.NATS.URL, "NATS_URL")
	setString(&cfg.NATS.Stream, "COURIER_NATS_STREAM")
	setString(&cfg.NATS.IncomingSubject, "COURIER_NATS_INCOMING_SUBJECT")
	setString(&cfg.NATS.OutgoingSubject, "COURIER_NATS_OUTGOING_SUBJECT")
	setString(&cfg.NATS.DrawerSubject, "COURIER_NATS_DRAWER_SUBJECT")
	setString(&cfg.NATS.Durable, "COURIER_NATS_DURABLE")
	setDuration(&cfg.NATS.AckWait, "COURIER_NATS_ACK_WAIT")
	setInt(&cfg.NATS.MaxDeliver, "COURIER_NATS_MAX_DELIVER")

	setDuration(&cfg.HTTP.ConnectTimeout, "COURIER_HTTP_CONNECT_TIMEOUT")
	setDuration(&cfg.HTTP.SocketTimeout, "COURIER_HTTP_SOCKET_TIMEOUT")
	setInt(&cfg.HTTP.MaxConnsPerRoute, "COURIER_HTTP_MAX_CONNS_PER_ROUTE")
	setInt(&cfg.HTTP.MaxTotalConns, "COURIER_HTTP_MAX_TOTAL_CONNS")
	setBool(&cfg.HTTP.FollowRedirects, "COURIER_HTTP_FOLLOW_REDIRECTS")
	setString(&cfg.HTTP.ClientErrorLogLevel, "COURIER_HTTP_4XX_LOG_LEVEL")
	setString(&cfg.HTTP.ServerErrorLogLevel, "COURIER_HTTP_5XX_LOG_LEVEL")

	setInt(&cfg.Redelivery.MaxAttempts, "COURIER_REDELIVERY_MAX_ATTEMPTS")
	setDuration(&cfg.Redelivery.InitialDelay, "COURIER_REDELIVERY_DELAY")
	setDuration(&cfg.Redelivery.MaxDelay, "COURIER_REDELIVERY_MAX_DELAY")
	setFloat64(&cfg.Redelivery.Multiplier, "COURIER_REDELIVERY_MULTIPLIER")
	setFloat64(&cfg.Redelivery.Jitter, "COURIER_REDELIVERY_JITTER")

	setInt(&cfg.Worker.Concurrency, "COURIER_WORKER_CONCURRENCY")

	setString(&cfg.Sources.URL, "COURIER_SOURCES_URL")
	setDuration(&cfg.Sources.Timeout, "COURIER_SOURCES_TIMEOUT")
	setString(&cfg.Recipients.URL, "COURIER_RECIPIENTS_URL")
	setDuration(&cfg.Recipients.Timeout, "COURIER_RECIPIENTS_TIMEOUT")

	setBool(&cfg.Dedup.Enabled, "COURIER_DEDUP_ENABLED")
	setInt64(&cfg.Dedup.L1MaxItems, "COURIER_DEDUP_L1_MAX_ITEMS")
	setString(&cfg.Dedup.L2Bucket, "COURIER_DEDUP_L2_BUCKET")
	setDuration(&cfg.Dedup.TTL, "COURIER_DEDUP_TTL")

	setInt(&cfg.Breaker.MaxFailures, "COURIER_BREAKER_MAX_FAILURES")
	setDuration(&cfg.Breaker.Timeout, "COURIER_BREAKER_TIMEOUT")

	setString(&cfg.Server.Port, "COURIER_PORT")

	setString(&cfg.Telemetry.ServiceName, "OTEL_SERVICE_NAME")
	setString(&cfg.Telemetry.OTLPEndpoint, "OTEL_EXPORTER_OTLP_ENDPOINT")
	setString(&cfg.Telemetry.MetricsBackend, "COURIER_METRICS_BACKEND")

	setString(&cfg.Logging.Level, "COURIER_LOG_LEVEL")
	setString(&cfg.Logging.Service, "COURIER_LOG_SERVICE")
	setBool(&cfg.Logging.Async, "COURIER_LOG_ASYNC")
}

// applyDerived fills values that default from other fields.
func applyDerived(cfg *Config) {
	if cfg.NATS.Durable == "" && cfg.Connector.Name != "" {
		cfg.NATS.Durable = "courier-" + cfg.Connector.Name
	}
}

// validate checks that required fields are set.
func validate(cfg *Config) error {
	if cfg.Connector.Name == "" {
		return errors.New("connector.name is required")
	}
	if cfg.NATS.URL == "" {
		return errors.New("nats.url is required")
	}
	if cfg.NATS.IncomingSubject == "" || cfg.NATS.OutgoingSubject == "" {
		return errors.New("nats.incoming_subject and nats.outgoing_subject are required")
	}
	if cfg.NATS.MaxDeliver < 1 {
		return errors.New("nats.max_deliver must be >= 1")
	}
	if cfg.Sources.URL == "" {
		return errors.New("sources.url is required")
	}
	if cfg.HTTP.ConnectTimeout <= 0 || cfg.HTTP.SocketTimeout <= 0 {
		return errors.New("http timeouts must be > 0")
	}
	if cfg.HTTP.MaxConnsPerRoute < 1 {
		return errors.New("http.max_conns_per_route must be >= 1")
	}
	if cfg.HTTP.MaxTotalConns < cfg.HTTP.MaxConnsPerRoute {
		return errors.New("http.max_total_conns must be >= http.max_conns_per_route")
	}
	if cfg.Redelivery.MaxAttempts < 1 {
		return errors.New("redelivery.max_attempts must be >= 1")
	}
	if cfg.Redelivery.Multiplier < 1 {
		return errors.New("redelivery.multiplier must be >= 1")
	}
	if cfg.Redelivery.Jitter < 0 || cfg.Redelivery.Jitter >= 1 {
		return errors.New("redelivery.jitter must be in [0, 1)")
	}
	if cfg.Worker.Concurrency < 1 {
		return errors.New("worker.concurrency must be >= 1")
	}
	if cfg.Breaker.MaxFailures < 1 {
		return errors.New("breaker.max_failures must be >= 1")
	}
	switch cfg.Telemetry.MetricsBackend {
	case "prometheus", "otlp", "none":
	default:
		return fmt.Errorf("telemetry.metrics_backend %q is not one of prometheus, otlp, none", cfg.Telemetry.MetricsBackend)
	}
	return nil
}

// Holder publishes an immutable Config and swaps it on explicit reload.
type Holder struct {
	path string
	cur  atomic.Pointer[Config]
	mu   sync.Mutex // serializes Reload
}

// NewHolder wraps cfg. Reload re-reads path.
func NewHolder(cfg *Config, path string) *Holder {
	h := &Holder{path: path}
	h.cur.Store(cfg)
	return h
}

// Get returns the current configuration. Callers must not modify it.
func (h *Holder) Get() *Config {
	return h.cur.Load()
}

// Reload loads the file again. On failure the previous value is kept.
func (h *Holder) Reload() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	cfg, err := LoadFrom(h.path)
	if err != nil {
		return err
	}
	h.cur.Store(cfg)
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setList(dst *[]string, key string) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	if len(out) > 0 {
		*dst = out
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
