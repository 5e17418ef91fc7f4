package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/Strob0t/Courier/internal/domain/delivery"
	"github.com/Strob0t/Courier/internal/domain/envelope"
	"github.com/Strob0t/Courier/internal/metrics"
	"github.com/Strob0t/Courier/internal/port/cache"
	"github.com/Strob0t/Courier/internal/port/messagequeue"
)

// dedupPrefix namespaces reported envelope ids in the dedup cache.
const dedupPrefix = "outcome."

// IngestorConfig holds the collaborators of an Ingestor.
type IngestorConfig struct {
	Queue       messagequeue.Queue
	Subject     string
	Concurrency int
	Pipeline    *Pipeline
	Reporter    *OutcomeReporter
	// Dedup remembers reported envelope ids. Nil disables deduplication.
	Dedup    cache.Cache
	DedupTTL time.Duration
	Metrics  metrics.Sink
}

// Ingestor consumes delivery requests from the queue and runs them through
// the pipeline. Every accepted envelope is acknowledged after its outcome
// is reported; only crashes and reporting failures ask for redelivery.
type Ingestor struct {
	cfg IngestorConfig

	mu     sync.Mutex
	cancel func()
	paused bool
}

// NewIngestor creates an Ingestor.
func NewIngestor(cfg IngestorConfig) *Ingestor {
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.NoopSink{}
	}
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	return &Ingestor{cfg: cfg}
}

// Start subscribes to the ingress subject.
func (i *Ingestor) Start(ctx context.Context) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.paused = false
	return i.subscribeLocked(ctx)
}

// Pause stops consuming without closing the queue connection.
func (i *Ingestor) Pause() {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.paused {
		return
	}
	i.paused = true
	if i.cancel != nil {
		i.cancel()
		i.cancel = nil
	}
	slog.Info("ingestion paused", "channel", i.cfg.Pipeline.Channel())
}

// Resume restarts consumption after Pause.
func (i *Ingestor) Resume(ctx context.Context) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if !i.paused {
		return nil
	}
	i.paused = false
	slog.Info("ingestion resumed", "channel", i.cfg.Pipeline.Channel())
	return i.subscribeLocked(ctx)
}

// Paused reports whether ingestion is paused.
func (i *Ingestor) Paused() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.paused
}

// Stop ends the subscription.
func (i *Ingestor) Stop() {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.cancel != nil {
		i.cancel()
		i.cancel = nil
	}
}

func (i *Ingestor) subscribeLocked(ctx context.Context) error {
	if i.cancel != nil {
		return nil
	}
	cancel, err := i.cfg.Queue.Subscribe(ctx, i.cfg.Subject, i.cfg.Concurrency, i.Handle)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", i.cfg.Subject, err)
	}
	i.cancel = cancel
	slog.Info("ingestion started", "channel", i.cfg.Pipeline.Channel(), "subject", i.cfg.Subject, "concurrency", i.cfg.Concurrency)
	return nil
}

// Handle processes one queue message. It returns an error only when the
// message must be redelivered. A crash after the envelope was accepted is
// reported as a failed outcome, so redelivery never replays a poison
// envelope.
func (i *Ingestor) Handle(ctx context.Context, msg messagequeue.Message) (err error) {
	channel := i.cfg.Pipeline.Channel()
	var accepted *envelope.Envelope
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		slog.Error("delivery worker panic", "channel", channel, "deliveries", msg.Deliveries, "panic", r, "stack", string(debug.Stack()))
		if accepted == nil {
			err = fmt.Errorf("delivery worker panic: %v", r)
			return
		}
		i.cfg.Metrics.DeliveryOutcome(channel, false, string(delivery.KindUnknown))
		err = i.report(ctx, accepted, crashOutcome(r))
	}()

	env, err := envelope.Parse(msg.Data)
	if err != nil {
		slog.Warn("dropping malformed message", "channel", channel, "subject", msg.Subject, "error", err)
		i.cfg.Metrics.MessageSkipped(channel, metrics.SkipMalformed)
		return nil
	}

	if !i.cfg.Pipeline.Accept(msg.HeaderValue(messagequeue.HeaderConnector), env) {
		i.cfg.Metrics.MessageSkipped(channel, metrics.SkipFiltered)
		return nil
	}

	if i.alreadyReported(ctx, env.ID) {
		slog.Info("outcome already reported, skipping", "channel", channel, "envelope_id", env.ID)
		i.cfg.Metrics.MessageSkipped(channel, metrics.SkipDuplicate)
		return nil
	}

	accepted = env
	result := i.cfg.Pipeline.Process(ctx, env)
	accepted = nil
	return i.report(ctx, env, result.Outcome)
}

// report publishes the outcome and remembers the envelope as reported.
func (i *Ingestor) report(ctx context.Context, env *envelope.Envelope, o delivery.Outcome) error {
	if err := i.cfg.Reporter.Report(ctx, env, o); err != nil {
		return err
	}
	i.markReported(ctx, env.ID)
	return nil
}

func crashOutcome(r any) delivery.Outcome {
	return delivery.Outcome{
		Successful: false,
		Message:    fmt.Sprintf("%s: delivery worker panic: %v", delivery.KindUnknown, r),
		ErrorKind:  delivery.KindUnknown,
	}
}

func (i *Ingestor) alreadyReported(ctx context.Context, id string) bool {
	if i.cfg.Dedup == nil {
		return false
	}
	_, ok, err := i.cfg.Dedup.Get(ctx, dedupPrefix+id)
	if err != nil {
		slog.Warn("dedup lookup failed", "envelope_id", id, "error", err)
		return false
	}
	return ok
}

func (i *Ingestor) markReported(ctx context.Context, id string) {
	if i.cfg.Dedup == nil {
		return
	}
	stamp := []byte(time.Now().UTC().Format(time.RFC3339))
	if err := i.cfg.Dedup.Set(ctx, dedupPrefix+id, stamp, i.cfg.DedupTTL); err != nil && !errors.Is(err, context.Canceled) {
		slog.Warn("dedup store failed", "envelope_id", id, "error", err)
	}
}
