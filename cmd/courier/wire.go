package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Strob0t/Courier/internal/adapter/httpclient"
	cotel "github.com/Strob0t/Courier/internal/adapter/otel"
	"github.com/Strob0t/Courier/internal/adapter/recipients"
	"github.com/Strob0t/Courier/internal/adapter/sources"
	"github.com/Strob0t/Courier/internal/config"
	"github.com/Strob0t/Courier/internal/logger"
	"github.com/Strob0t/Courier/internal/metrics"
	"github.com/Strob0t/Courier/internal/port/connector"
	"github.com/Strob0t/Courier/internal/port/messagequeue"
	"github.com/Strob0t/Courier/internal/port/secretstore"
	"github.com/Strob0t/Courier/internal/resilience"
	"github.com/Strob0t/Courier/internal/secrets"
	"github.com/Strob0t/Courier/internal/service"
)

// core holds the collaborators shared by serve and deliver.
type core struct {
	pipeline *service.Pipeline
	client   *httpclient.Client
	breaker  *resilience.Breaker
}

// newVault loads the service credentials from the environment, overridden by
// files in $COURIER_SECRETS_DIR when set.
func newVault() (*secrets.Vault, error) {
	keys := []string{secrets.KeySourcesPSK, secrets.KeyRecipientsToken}
	loader := secrets.EnvLoader(keys...)
	if dir := os.Getenv("COURIER_SECRETS_DIR"); dir != "" {
		loader = secrets.Chain(loader, secrets.DirLoader(dir, keys...))
	}
	return secrets.NewVault(loader)
}

// newMetrics picks the sink for the configured backend. The returned handler
// serves /metrics and is nil unless the backend is prometheus.
func newMetrics(backend string) (metrics.Sink, http.Handler, error) {
	switch backend {
	case "prometheus":
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		return metrics.NewPrometheusSink(reg), promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), nil
	case "otlp":
		sink, err := cotel.NewSink()
		if err != nil {
			return nil, nil, fmt.Errorf("otel metrics: %w", err)
		}
		return sink, nil, nil
	default:
		return metrics.NoopSink{}, nil, nil
	}
}

// newCore builds the channel pipeline. queue carries queue-transport
// deliveries and may be nil for HTTP-only channels.
func newCore(cfg *config.Config, vault *secrets.Vault, queue messagequeue.Publisher, sink metrics.Sink) (*core, error) {
	breaker := resilience.NewBreaker(cfg.Breaker.MaxFailures, cfg.Breaker.Timeout,
		resilience.WithFailureFilter(func(err error) bool { return !sources.IsNotFound(err) }))

	var store secretstore.Store
	if cfg.Sources.URL != "" {
		store = sources.New(cfg.Sources.URL, cfg.Sources.Timeout,
			func() string { return vault.Get(secrets.KeySourcesPSK) }, breaker)
	}

	deps := connector.Deps{
		Settings:      cfg.Connector.Settings,
		DrawerSubject: cfg.NATS.DrawerSubject,
	}
	if cfg.Recipients.URL != "" {
		deps.Recipients = recipients.New(cfg.Recipients.URL, cfg.Recipients.Timeout,
			func() string { return vault.Get(secrets.KeyRecipientsToken) })
	}
	transformer, err := connector.New(cfg.Connector.Name, deps)
	if err != nil {
		return nil, fmt.Errorf("channel %q: %w", cfg.Connector.Name, err)
	}

	client := httpclient.New(httpclient.Options{
		ConnectTimeout:   cfg.HTTP.ConnectTimeout,
		SocketTimeout:    cfg.HTTP.SocketTimeout,
		MaxConnsPerRoute: cfg.HTTP.MaxConnsPerRoute,
		MaxTotalConns:    cfg.HTTP.MaxTotalConns,
		FollowRedirects:  cfg.HTTP.FollowRedirects,
		WrapTransport:    cotel.Transport,
	})

	pipeline := service.NewPipeline(service.PipelineConfig{
		Transformer:    transformer,
		Identities:     cfg.Connector.AcceptedIdentities(),
		Auth:           service.NewAuthResolver(store),
		Sender:         client,
		Queue:          queue,
		Policy:         service.NewRedeliveryPolicy(cfg.Redelivery),
		Metrics:        sink,
		ClientErrLevel: logger.ParseLevel(cfg.HTTP.ClientErrorLogLevel),
		ServerErrLevel: logger.ParseLevel(cfg.HTTP.ServerErrorLogLevel),
	})
	slog.Info("channel ready", "channel", transformer.Name(), "identities", cfg.Connector.AcceptedIdentities())

	return &core{pipeline: pipeline, client: client, breaker: breaker}, nil
}
