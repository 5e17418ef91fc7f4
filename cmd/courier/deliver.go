package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/Strob0t/Courier/internal/config"
	"github.com/Strob0t/Courier/internal/domain/envelope"
	"github.com/Strob0t/Courier/internal/logger"
	"github.com/Strob0t/Courier/internal/metrics"
	"github.com/Strob0t/Courier/internal/service"
)

func newDeliverCmd() *cobra.Command {
	var file, channel string

	cmd := &cobra.Command{
		Use:   "deliver",
		Short: "Deliver one event file and print the outcome",
		Long: `deliver runs a single CloudEvent through the channel pipeline without
consuming from NATS. Queue-transport payloads and the outcome event are
written to stdout as JSON lines.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return deliver(cmd.Context(), configPath(cmd), file, channel, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "CloudEvent JSON file, - for stdin")
	cmd.Flags().StringVar(&channel, "channel", "", "channel to deliver with, overrides connector.name")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

// deliver runs the event in file through the pipeline. A non-empty channel
// replaces connector.name and its identities.
func deliver(ctx context.Context, path, file, channel string, out io.Writer) error {
	cfg, err := config.LoadWith(path, func(c *config.Config) {
		if channel != "" {
			c.Connector.Name = channel
			c.Connector.Identities = nil
		}
	})
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	log, closer := logger.NewWithWriter(cfg.Logging, os.Stderr)
	defer closer.Close()
	slog.SetDefault(log)

	raw, err := readEvent(file)
	if err != nil {
		return err
	}
	env, err := envelope.Parse(raw)
	if err != nil {
		return fmt.Errorf("parse %s: %w", file, err)
	}
	if _, err := uuid.Parse(env.ID); err != nil {
		slog.Warn("event id is not a uuid, the engine will not correlate the outcome", "id", env.ID)
	}

	pub := &linePublisher{w: out}
	vault, err := newVault()
	if err != nil {
		return fmt.Errorf("secrets: %w", err)
	}
	c, err := newCore(cfg, vault, pub, metrics.NoopSink{})
	if err != nil {
		return err
	}
	defer c.client.CloseIdle()

	res := c.pipeline.Process(ctx, env)
	reporter := service.NewOutcomeReporter(pub, cfg.NATS.OutgoingSubject, cfg.Connector.Name)
	if err := reporter.Report(ctx, env, res.Outcome); err != nil {
		return err
	}
	if !res.Outcome.Successful {
		return fmt.Errorf("delivery failed: %s", res.Outcome.Message)
	}
	return nil
}

func readEvent(file string) ([]byte, error) {
	if file == "-" {
		return io.ReadAll(os.Stdin)
	}
	raw, err := os.ReadFile(file) //nolint:gosec // G304: path comes from the operator
	if err != nil {
		return nil, fmt.Errorf("read event: %w", err)
	}
	return raw, nil
}

// linePublisher writes each published message as one JSON line.
type linePublisher struct {
	mu sync.Mutex
	w  io.Writer
}

type publishedLine struct {
	Subject string            `json:"subject"`
	Header  map[string]string `json:"header,omitempty"`
	Data    json.RawMessage   `json:"data"`
}

func (p *linePublisher) Publish(_ context.Context, subject string, data []byte, header map[string]string) error {
	line := publishedLine{Subject: subject, Header: header, Data: data}
	if !json.Valid(data) {
		quoted, _ := json.Marshal(string(data))
		line.Data = quoted
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return json.NewEncoder(p.w).Encode(line)
}
