package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"net/http"
	"time"

	cotel "github.com/Strob0t/Courier/internal/adapter/otel"
	"github.com/Strob0t/Courier/internal/adapter/httpclient"
	"github.com/Strob0t/Courier/internal/domain/auth"
	"github.com/Strob0t/Courier/internal/domain/delivery"
	"github.com/Strob0t/Courier/internal/domain/envelope"
	"github.com/Strob0t/Courier/internal/logger"
	"github.com/Strob0t/Courier/internal/metrics"
	"github.com/Strob0t/Courier/internal/port/connector"
	"github.com/Strob0t/Courier/internal/port/messagequeue"
)

// Sender performs one outbound HTTP call. Non-2xx responses are returned
// as *httpclient.StatusError.
type Sender interface {
	Send(ctx context.Context, r httpclient.Request) (*httpclient.Response, error)
}

// PipelineConfig holds the collaborators of a Pipeline.
type PipelineConfig struct {
	Transformer connector.Transformer
	// Identities are the connector header values this pipeline accepts.
	// Defaults to the transformer name.
	Identities []string
	Auth       *AuthResolver
	Sender     Sender
	// Queue carries queue-transport deliveries. Optional for HTTP-only channels.
	Queue  messagequeue.Publisher
	Policy RedeliveryPolicy
	// Metrics defaults to metrics.NoopSink.
	Metrics        metrics.Sink
	ClientErrLevel slog.Level
	ServerErrLevel slog.Level
}

// Pipeline runs one envelope through extraction, authentication,
// transformation, dispatch and outcome building.
type Pipeline struct {
	transformer    connector.Transformer
	identities     map[string]bool
	auth           *AuthResolver
	sender         Sender
	queue          messagequeue.Publisher
	policy         RedeliveryPolicy
	metrics        metrics.Sink
	clientErrLevel slog.Level
	serverErrLevel slog.Level
	now            func() time.Time
}

// NewPipeline creates a Pipeline.
func NewPipeline(cfg PipelineConfig) *Pipeline {
	ids := cfg.Identities
	if len(ids) == 0 {
		ids = []string{cfg.Transformer.Name()}
	}
	p := &Pipeline{
		transformer:    cfg.Transformer,
		identities:     make(map[string]bool, len(ids)),
		auth:           cfg.Auth,
		sender:         cfg.Sender,
		queue:          cfg.Queue,
		policy:         cfg.Policy,
		metrics:        cfg.Metrics,
		clientErrLevel: cfg.ClientErrLevel,
		serverErrLevel: cfg.ServerErrLevel,
		now:            time.Now,
	}
	for _, id := range ids {
		p.identities[id] = true
	}
	if p.auth == nil {
		p.auth = NewAuthResolver(nil)
	}
	if p.metrics == nil {
		p.metrics = metrics.NoopSink{}
	}
	return p
}

// Channel returns the channel name of the pipeline.
func (p *Pipeline) Channel() string { return p.transformer.Name() }

// Accept reports whether the envelope is addressed to this pipeline. The
// connector header is authoritative; without it the channel is taken from
// the CloudEvent type.
func (p *Pipeline) Accept(connectorHeader string, env *envelope.Envelope) bool {
	if connectorHeader != "" {
		return p.identities[connectorHeader]
	}
	return p.identities[env.Channel()]
}

// Process delivers env and returns its outcome. It never panics on
// delivery failures and always yields exactly one result.
func (p *Pipeline) Process(ctx context.Context, env *envelope.Envelope) delivery.Result {
	start := p.now()
	ctx = logger.WithEnvelope(ctx, env.ID, env.OrgID)
	ctx, span := cotel.StartProcessSpan(ctx, p.Channel(), env.ID, env.OrgID)

	p.metrics.InFlightIncr()
	defer p.metrics.InFlightDecr()

	outcome, err := p.run(ctx, env)
	outcome.DurationMs = p.now().Sub(start).Milliseconds()
	p.metrics.DeliveryOutcome(p.Channel(), outcome.Successful, string(outcome.ErrorKind))
	cotel.EndSpan(span, err, string(outcome.ErrorKind))

	return delivery.Result{EnvelopeID: env.ID, OrgID: env.OrgID, Outcome: outcome}
}

func (p *Pipeline) run(ctx context.Context, env *envelope.Envelope) (delivery.Outcome, error) {
	target, err := envelope.ExtractTarget(env, p.transformer.URLPolicy())
	if err != nil {
		return p.fail(ctx, target, fmt.Errorf("extract target: %w", err), 0, false), err
	}

	cred, err := p.auth.ForTarget(ctx, target, env.OrgID)
	if err != nil {
		return p.fail(ctx, target, fmt.Errorf("resolve authentication: %w", err), 0, false), err
	}

	req, err := p.transformer.Transform(ctx, env, target, cred)
	if errors.Is(err, connector.ErrNothingToDeliver) {
		slog.InfoContext(ctx, "nothing to deliver", "channel", p.Channel())
		return delivery.Outcome{
			Successful: true,
			Message:    fmt.Sprintf("Event %s skipped: nothing to deliver", env.ID),
			TargetURL:  target.URL,
			Details:    map[string]any{"skipped": true},
		}, nil
	}
	if err != nil {
		return p.fail(ctx, target, fmt.Errorf("transform: %w", err), 0, false), err
	}
	if req.URL != "" && target.URL == "" {
		target.URL = req.URL
	}

	attempts, err := p.policy.Run(ctx, func(ctx context.Context, n int) error {
		return p.dispatch(ctx, req, target, cred, n)
	}, func(kind delivery.ErrorKind, next int, wait time.Duration) {
		p.metrics.Retry(p.Channel(), string(kind))
		slog.InfoContext(ctx, "retrying delivery", "channel", p.Channel(), "error_kind", kind, "attempt", next, "wait", wait)
	})
	if err != nil {
		return p.fail(ctx, target, err, attempts, true), err
	}

	details := make(map[string]any, len(req.Details))
	maps.Copy(details, req.Details)
	slog.InfoContext(ctx, "message sent", "channel", p.Channel(), "attempts", attempts)
	return delivery.Outcome{
		Successful: true,
		Message:    req.Summary,
		TargetURL:  target.URL,
		Details:    details,
		Attempts:   attempts,
	}, nil
}

func (p *Pipeline) dispatch(ctx context.Context, req *connector.WireRequest, target envelope.Target, cred auth.Descriptor, n int) error {
	ctx, span := cotel.StartAttemptSpan(ctx, p.Channel(), n)
	start := time.Now()

	var err error
	switch req.Transport {
	case connector.TransportQueue:
		err = p.publish(ctx, req)
	default:
		err = p.send(ctx, req, target)
	}

	result := metrics.ResultSuccess
	kind := ""
	if err != nil {
		kind = string(Classify(err))
		result = kind
	}
	p.metrics.DeliveryAttempt(p.Channel(), n, result, time.Since(start))
	cotel.EndSpan(span, err, kind)
	slog.DebugContext(ctx, "delivery attempt", "channel", p.Channel(), "attempt", n, "result", result, "auth", cred)
	return err
}

func (p *Pipeline) send(ctx context.Context, req *connector.WireRequest, target envelope.Target) error {
	if p.sender == nil {
		return errors.New("no http sender configured")
	}
	header := req.Header.Clone()
	if header == nil {
		header = http.Header{}
	}
	if req.ContentType != "" {
		header.Set("Content-Type", req.ContentType)
	}
	method := req.Method
	if method == "" {
		method = http.MethodPost
	}
	_, err := p.sender.Send(ctx, httpclient.Request{
		Method:   method,
		URL:      req.URL,
		Header:   header,
		Body:     req.Body,
		TrustAll: target.TrustAll,
	})
	return err
}

func (p *Pipeline) publish(ctx context.Context, req *connector.WireRequest) error {
	if p.queue == nil {
		return errors.New("no queue publisher configured")
	}
	header := map[string]string{}
	for k := range req.Header {
		header[k] = req.Header.Get(k)
	}
	if req.ContentType != "" {
		header["Content-Type"] = req.ContentType
	}
	return p.queue.Publish(ctx, req.URL, req.Body, header)
}

// fail builds a failed outcome and logs it. dispatched is false for errors
// raised before any attempt, which are reported as UNKNOWN.
func (p *Pipeline) fail(ctx context.Context, target envelope.Target, err error, attempts int, dispatched bool) delivery.Outcome {
	kind := delivery.KindUnknown
	if dispatched {
		kind = Classify(err)
	}
	status := StatusCode(err)

	var (
		msg       string
		statusErr *httpclient.StatusError
	)
	if kind.IsHTTP() && errors.As(err, &statusErr) {
		msg = statusErr.Error()
	} else {
		msg = fmt.Sprintf("%s: %s", kind, err)
	}

	level := slog.LevelError
	switch kind {
	case delivery.KindHTTP4xx:
		level = p.clientErrLevel
	case delivery.KindHTTP5xx:
		level = p.serverErrLevel
	}
	slog.Log(ctx, level, "message sending failed",
		"channel", p.Channel(),
		"target_url", target.URL,
		"error_kind", kind,
		"attempts", attempts,
		"error", err,
	)

	return delivery.Outcome{
		Successful: false,
		Message:    msg,
		TargetURL:  target.URL,
		Details:    map[string]any{},
		ErrorKind:  kind,
		StatusCode: status,
		Attempts:   attempts,
	}
}
