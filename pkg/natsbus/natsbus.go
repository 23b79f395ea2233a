// Package natsbus drains outbox rows onto a NATS JetStream and, on the
// consuming side, turns JetStream deliveries back into streamrouter
// dispatches. The journal/outbox transaction never talks to NATS
// directly, only this package does, with JetStream stream setup and
// MsgId-based publish dedupe adapted from a generic protobuf event bus
// to this module's eventstore.SerializedIntegrationEvent outbox row shape.
package natsbus

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/plaenen/eventstore/pkg/eventstore"
	"github.com/plaenen/eventstore/pkg/observability"
	"github.com/plaenen/eventstore/pkg/streamrouter"
)

// Config configures the JetStream stream the publisher writes to and the
// subscriber reads from.
type Config struct {
	StreamName     string
	StreamSubjects []string
	MaxAge         time.Duration
	MaxBytes       int64
}

// DefaultConfig returns sane defaults for outbox fan-out.
func DefaultConfig() Config {
	return Config{
		StreamName:     "OUTBOX",
		StreamSubjects: []string{"outbox.>"},
		MaxAge:         7 * 24 * time.Hour,
		MaxBytes:       1 << 30,
	}
}

// Publisher drains outbox rows onto a JetStream stream, one subject per
// (aggregate_type, event_type) pair. It does not read the outbox table
// itself — callers pass it the same []eventstore.SerializedIntegrationEvent
// a commit produced, or rows fetched from a backend-specific outbox scan.
type Publisher struct {
	js      nats.JetStreamContext
	metrics *observability.Metrics
}

// NewPublisher connects to a NATS server at url and ensures the outbox
// stream described by cfg exists, creating or updating it as needed.
func NewPublisher(url string, cfg Config, opts ...Option) (*Publisher, func() error, error) {
	if url == "" {
		url = nats.DefaultURL
	}
	nc, err := nats.Connect(url)
	if err != nil {
		return nil, nil, fmt.Errorf("natsbus: connect: %w", err)
	}
	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("natsbus: jetstream context: %w", err)
	}

	p := &Publisher{js: js}
	for _, opt := range opts {
		opt(p)
	}

	if err := ensureStream(js, cfg); err != nil {
		nc.Close()
		return nil, nil, err
	}
	return p, nc.Close, nil
}

// Option configures a Publisher.
type Option func(*Publisher)

// WithMetrics records publish latency and message counts on metrics,
// matching the observability.Metrics.RecordNATSPublish instrument the
// teacher's pkg/observability already declares for this purpose.
func WithMetrics(metrics *observability.Metrics) Option {
	return func(p *Publisher) { p.metrics = metrics }
}

// JetStream returns the underlying JetStream context, so a caller that
// also wants a Subscriber on the same connection (rather than opening a
// second one) can pass it to Subscribe.
func (p *Publisher) JetStream() nats.JetStreamContext { return p.js }

func ensureStream(js nats.JetStreamContext, cfg Config) error {
	streamConfig := &nats.StreamConfig{
		Name:      cfg.StreamName,
		Subjects:  cfg.StreamSubjects,
		Retention: nats.LimitsPolicy,
		MaxAge:    cfg.MaxAge,
		MaxBytes:  cfg.MaxBytes,
		Storage:   nats.FileStorage,
		Replicas:  1,
	}

	info, err := js.StreamInfo(cfg.StreamName)
	if err != nil {
		if _, err := js.AddStream(streamConfig); err != nil {
			return fmt.Errorf("natsbus: create stream %s: %w", cfg.StreamName, err)
		}
		return nil
	}
	if info.Config.MaxAge != cfg.MaxAge || info.Config.MaxBytes != cfg.MaxBytes {
		if _, err := js.UpdateStream(streamConfig); err != nil {
			return fmt.Errorf("natsbus: update stream %s: %w", cfg.StreamName, err)
		}
	}
	return nil
}

// Publish drains rows onto the outbox stream, one message per row, subject
// "outbox.{aggregate_type}.{event_type}". The row's own event_id is used as
// the JetStream message id, so a redelivered Publish call (e.g. a retried
// drain after a partial failure) is deduplicated by the server rather than
// producing a duplicate downstream effect.
func (p *Publisher) Publish(ctx context.Context, rows []eventstore.SerializedIntegrationEvent) error {
	if len(rows) == 0 {
		return nil
	}

	start := time.Now()
	for _, row := range rows {
		subject := fmt.Sprintf("outbox.%s.%s", row.AggregateType, row.EventType)
		_, err := p.js.Publish(subject, row.Payload, nats.MsgId(row.EventID), nats.Context(ctx))
		if err != nil {
			return fmt.Errorf("natsbus: publish %s: %w", row.EventID, err)
		}
	}
	if p.metrics != nil {
		p.metrics.RecordNATSPublish(ctx, cfgSubjectPrefix(rows), time.Since(start), len(rows))
	}
	return nil
}

func cfgSubjectPrefix(rows []eventstore.SerializedIntegrationEvent) string {
	if len(rows) == 0 {
		return "outbox"
	}
	return "outbox." + rows[0].AggregateType
}

// Subscriber drains a JetStream durable consumer into a streamrouter.Router,
// bridging the gap between "something delivered bytes" and the router's
// (event_type, payload) dispatch contract. event_type is recovered from the
// subject's last token, since outbox messages are published with it baked
// into "outbox.{aggregate_type}.{event_type}".
type Subscriber struct {
	sub *nats.Subscription
}

// Subscribe creates a durable pull consumer named durableName on subject
// and returns a Subscriber bound to it. Callers call Drain repeatedly
// (e.g. from a poll loop) to push deliveries through router.
func Subscribe(js nats.JetStreamContext, subject, durableName string) (*Subscriber, error) {
	sub, err := js.PullSubscribe(subject, durableName)
	if err != nil {
		return nil, fmt.Errorf("natsbus: pull subscribe %s: %w", subject, err)
	}
	return &Subscriber{sub: sub}, nil
}

// Drain fetches up to batchSize pending messages (blocking up to timeout)
// and dispatches each through router, acking only messages the router
// accepted without error so a crash mid-batch redelivers the remainder.
func (s *Subscriber) Drain(ctx context.Context, router *streamrouter.Router, batchSize int, timeout time.Duration) (int, error) {
	msgs, err := s.sub.Fetch(batchSize, nats.MaxWait(timeout))
	if err != nil {
		if err == nats.ErrTimeout {
			return 0, nil
		}
		return 0, fmt.Errorf("natsbus: fetch: %w", err)
	}

	processed := 0
	for _, msg := range msgs {
		eventType := lastSubjectToken(msg.Subject)
		if _, err := router.Dispatch(ctx, eventType, msg.Data); err != nil {
			return processed, fmt.Errorf("natsbus: dispatch %s: %w", eventType, err)
		}
		if err := msg.Ack(); err != nil {
			return processed, fmt.Errorf("natsbus: ack %s: %w", eventType, err)
		}
		processed++
	}
	return processed, nil
}

func lastSubjectToken(subject string) string {
	for i := len(subject) - 1; i >= 0; i-- {
		if subject[i] == '.' {
			return subject[i+1:]
		}
	}
	return subject
}
