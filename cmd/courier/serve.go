package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	cfhttp "github.com/Strob0t/Courier/internal/adapter/http"
	cfnats "github.com/Strob0t/Courier/internal/adapter/nats"
	"github.com/Strob0t/Courier/internal/adapter/natskv"
	cotel "github.com/Strob0t/Courier/internal/adapter/otel"
	"github.com/Strob0t/Courier/internal/adapter/ristretto"
	"github.com/Strob0t/Courier/internal/adapter/tiered"
	"github.com/Strob0t/Courier/internal/config"
	"github.com/Strob0t/Courier/internal/logger"
	"github.com/Strob0t/Courier/internal/port/cache"
	"github.com/Strob0t/Courier/internal/resilience"
	"github.com/Strob0t/Courier/internal/secrets"
	"github.com/Strob0t/Courier/internal/service"
)

// l1Expire caps how long a dedup entry lives in process memory.
const l1Expire = 10 * time.Minute

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Consume delivery requests and deliver them",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context(), configPath(cmd))
		},
	}
}

func serve(ctx context.Context, path string) error {
	cfg, err := config.LoadFrom(path)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	holder := config.NewHolder(cfg, path)

	log, logCloser := logger.New(cfg.Logging)
	defer logCloser.Close()
	slog.SetDefault(log)

	slog.Info("config loaded",
		"channel", cfg.Connector.Name,
		"port", cfg.Server.Port,
		"log_level", cfg.Logging.Level,
		"concurrency", cfg.Worker.Concurrency,
		"max_attempts", cfg.Redelivery.MaxAttempts,
	)

	// --- Infrastructure ---

	otelShutdown, err := cotel.Setup(ctx, cfg.Telemetry, version)
	if err != nil {
		return fmt.Errorf("otel: %w", err)
	}

	vault, err := newVault()
	if err != nil {
		return fmt.Errorf("secrets: %w", err)
	}

	queue, err := cfnats.Connect(ctx, cfg.NATS)
	if err != nil {
		return fmt.Errorf("nats: %w", err)
	}
	defer func() { _ = queue.Close() }()

	var dedup cache.Cache
	var l1 *ristretto.Cache
	if cfg.Dedup.Enabled {
		l1, err = ristretto.New(cfg.Dedup.L1MaxItems)
		if err != nil {
			return fmt.Errorf("dedup l1: %w", err)
		}
		defer l1.Close()

		var l2 cache.Cache
		if cfg.Dedup.L2Bucket != "" {
			kv, err := queue.KeyValue(ctx, cfg.Dedup.L2Bucket, cfg.Dedup.TTL)
			if err != nil {
				return fmt.Errorf("dedup l2: %w", err)
			}
			l2 = natskv.New(kv)
		}
		dedup = tiered.New(l1, l2, l1Expire)
	}

	sink, metricsHandler, err := newMetrics(cfg.Telemetry.MetricsBackend)
	if err != nil {
		return err
	}

	// --- Services ---

	c, err := newCore(cfg, vault, queue, sink)
	if err != nil {
		return err
	}
	defer c.client.CloseIdle()

	ingestor := service.NewIngestor(service.IngestorConfig{
		Queue:       queue,
		Subject:     cfg.NATS.IncomingSubject,
		Concurrency: cfg.Worker.Concurrency,
		Pipeline:    c.pipeline,
		Reporter:    service.NewOutcomeReporter(queue, cfg.NATS.OutgoingSubject, cfg.Connector.Name),
		Dedup:       dedup,
		DedupTTL:    cfg.Dedup.TTL,
		Metrics:     sink,
	})
	if cfg.Connector.Paused {
		ingestor.Pause()
	} else if err := ingestor.Start(ctx); err != nil {
		return fmt.Errorf("ingestor: %w", err)
	}
	defer ingestor.Stop()

	// --- HTTP ---

	router := cfhttp.NewRouter(cfhttp.RouterConfig{
		ServiceName: cfg.Telemetry.ServiceName,
		Channel:     c.pipeline.Channel(),
		Paused:      ingestor.Paused,
		Metrics:     metricsHandler,
		Checks: []cfhttp.Check{
			{Name: "nats", Probe: func(context.Context) error {
				if !queue.IsConnected() {
					return errors.New("disconnected")
				}
				return nil
			}},
			{Name: "sources", Probe: func(context.Context) error {
				if c.breaker.State() == resilience.StateOpen {
					return resilience.ErrCircuitOpen
				}
				return nil
			}},
		},
	})

	addr := ":" + cfg.Server.Port
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		slog.Info("starting ops server", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("ops server failed", "error", err)
		}
	}()

	// SIGHUP reloads config and secrets; SIGINT and SIGTERM shut down.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigs)

	for sig := range sigs {
		if sig != syscall.SIGHUP {
			slog.Info("shutting down", "signal", sig.String())
			break
		}
		reload(ctx, holder, vault, ingestor)
	}

	ingestor.Stop()
	if err := queue.Drain(); err != nil {
		slog.Warn("nats drain failed", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("ops server shutdown failed", "error", err)
	}
	if err := otelShutdown(shutdownCtx); err != nil {
		slog.Warn("otel shutdown failed", "error", err)
	}
	return nil
}

// reload applies the paused flag of a re-read config and refreshes secrets.
// Other settings need a restart.
func reload(ctx context.Context, holder *config.Holder, vault *secrets.Vault, ingestor *service.Ingestor) {
	if err := vault.Reload(); err != nil {
		slog.Error("secrets reload failed", "error", err)
	}
	if err := holder.Reload(); err != nil {
		slog.Error("config reload failed, keeping previous config", "error", err)
		return
	}
	paused := holder.Get().Connector.Paused
	switch {
	case paused && !ingestor.Paused():
		ingestor.Pause()
	case !paused && ingestor.Paused():
		if err := ingestor.Resume(ctx); err != nil {
			slog.Error("ingestion resume failed", "error", err)
		}
	}
	slog.Info("config reloaded", "paused", paused)
}
