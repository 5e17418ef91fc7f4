// Package nats implements the message queue port using NATS JetStream.
package nats

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"golang.org/x/sync/errgroup"

	"github.com/Strob0t/Courier/internal/config"
	"github.com/Strob0t/Courier/internal/port/messagequeue"
)

// Queue implements messagequeue.Queue using NATS JetStream.
type Queue struct {
	nc      *nats.Conn
	js      jetstream.JetStream
	stream  string
	durable string
	ackWait time.Duration
	// maxDeliver caps redeliveries of a nacked message.
	maxDeliver int
}

// Connect establishes a connection to NATS and ensures the JetStream stream
// exists with the ingress, outcome and drawer subjects.
func Connect(ctx context.Context, cfg config.NATS) (*Queue, error) {
	nc, err := nats.Connect(cfg.URL,
		nats.Name("courier"),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				slog.Warn("nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			slog.Info("nats reconnected", "url", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream init: %w", err)
	}

	subjects := uniqueSubjects(cfg.IncomingSubject, cfg.OutgoingSubject, cfg.DrawerSubject)
	_, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:     cfg.Stream,
		Subjects: subjects,
	})
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream stream create: %w", err)
	}

	slog.Info("nats connected", "url", cfg.URL, "stream", cfg.Stream, "subjects", subjects)
	return &Queue{nc: nc, js: js, stream: cfg.Stream, durable: cfg.Durable, ackWait: cfg.AckWait, maxDeliver: cfg.MaxDeliver}, nil
}

// Publish sends a message with headers to the given subject.
func (q *Queue) Publish(ctx context.Context, subject string, data []byte, header map[string]string) error {
	msg := &nats.Msg{Subject: subject, Data: data, Header: nats.Header{}}
	for k, v := range header {
		msg.Header.Set(k, v)
	}
	if _, err := q.js.PublishMsg(ctx, msg); err != nil {
		return fmt.Errorf("nats publish %s: %w", subject, err)
	}
	return nil
}

// Subscribe consumes subject through a durable pull consumer. At most
// concurrency handlers run at once; fetching pauses while all are busy.
// A message is acked after its handler returns nil and nacked otherwise.
func (q *Queue) Subscribe(ctx context.Context, subject string, concurrency int, handler messagequeue.Handler) (func(), error) {
	if concurrency < 1 {
		concurrency = 1
	}
	consumer, err := q.js.CreateOrUpdateConsumer(ctx, q.stream, jetstream.ConsumerConfig{
		Durable:       q.durable,
		FilterSubject: subject,
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       q.ackWait,
		MaxDeliver:    q.maxDeliver,
		MaxAckPending: concurrency * 2,
	})
	if err != nil {
		return nil, fmt.Errorf("nats consumer create: %w", err)
	}

	iter, err := consumer.Messages(jetstream.PullMaxMessages(concurrency))
	if err != nil {
		return nil, fmt.Errorf("nats consume: %w", err)
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	g, gctx := errgroup.WithContext(runCtx)
	g.SetLimit(concurrency)
	done := make(chan struct{})

	go func() {
		defer close(done)
		for {
			msg, err := iter.Next()
			if err != nil {
				if errors.Is(err, jetstream.ErrMsgIteratorClosed) {
					break
				}
				slog.Warn("nats fetch failed", "subject", subject, "error", err)
				continue
			}
			g.Go(func() error {
				q.dispatch(gctx, msg, handler)
				return nil
			})
		}
		_ = g.Wait()
	}()

	return func() {
		iter.Stop()
		<-done
		cancel()
	}, nil
}

func (q *Queue) dispatch(ctx context.Context, msg jetstream.Msg, handler messagequeue.Handler) {
	m := messagequeue.Message{Subject: msg.Subject(), Data: msg.Data(), Header: flatten(msg.Headers())}
	if md, err := msg.Metadata(); err == nil {
		m.Deliveries = int(md.NumDelivered)
	}
	if err := handler(ctx, m); err != nil {
		slog.Error("message handler failed", "subject", msg.Subject(), "deliveries", m.Deliveries, "max_deliver", q.maxDeliver, "error", err)
		if nakErr := msg.Nak(); nakErr != nil {
			slog.Error("nats nak failed", "error", nakErr)
		}
		return
	}
	if ackErr := msg.Ack(); ackErr != nil {
		slog.Error("nats ack failed", "error", ackErr)
	}
}

// KeyValue returns the bucket named bucket, creating it with ttl when missing.
func (q *Queue) KeyValue(ctx context.Context, bucket string, ttl time.Duration) (jetstream.KeyValue, error) {
	kv, err := q.js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket: bucket,
		TTL:    ttl,
	})
	if err != nil {
		return nil, fmt.Errorf("nats kv %s: %w", bucket, err)
	}
	return kv, nil
}

// Drain gracefully drains all subscriptions before closing.
func (q *Queue) Drain() error {
	return q.nc.Drain()
}

// Close shuts down the NATS connection.
func (q *Queue) Close() error {
	q.nc.Close()
	return nil
}

// IsConnected reports whether the NATS connection is up.
func (q *Queue) IsConnected() bool {
	return q.nc.IsConnected()
}

func flatten(h nats.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k := range h {
		out[k] = h.Get(k)
	}
	return out
}

func uniqueSubjects(subjects ...string) []string {
	seen := make(map[string]bool, len(subjects))
	out := make([]string, 0, len(subjects))
	for _, s := range subjects {
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}
