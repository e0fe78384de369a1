// Package nats implements the message queue port using NATS JetStream.
package nats

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/curatd/curatd/internal/logger"
	"github.com/curatd/curatd/internal/port/messagequeue"
)

const (
	streamName = "CURATD"

	headerRequestID  = "Curatd-Request-Id"
	headerRetryCount = "Curatd-Retry-Count"

	// maxRetries bounds handler redeliveries before a message moves to the
	// subject's DLQ ("<subject>.dlq"). The repair consumer keeps its own
	// per-task attempt counter on top of this transport-level cap.
	maxRetries = 3
)

// Queue implements messagequeue.Queue using NATS JetStream.
type Queue struct {
	nc *nats.Conn
	js jetstream.JetStream
}

// Connect establishes a connection to NATS and ensures the JetStream stream
// covering the review subjects exists.
func Connect(ctx context.Context, url string) (*Queue, error) {
	nc, err := nats.Connect(url,
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream init: %w", err)
	}

	_, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:     streamName,
		Subjects: []string{"reviews.>"},
	})
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream stream create: %w", err)
	}

	slog.Info("nats connected", "url", url, "stream", streamName)
	return &Queue{nc: nc, js: js}, nil
}

// Publish sends a message to the given subject, propagating the request ID
// from ctx as a header so consumers log under the same ID.
func (q *Queue) Publish(ctx context.Context, subject string, data []byte) error {
	msg := &nats.Msg{Subject: subject, Data: data, Header: nats.Header{}}
	if id := logger.RequestID(ctx); id != "" {
		msg.Header.Set(headerRequestID, id)
	}
	if _, err := q.js.PublishMsg(ctx, msg); err != nil {
		return fmt.Errorf("nats publish %s: %w", subject, err)
	}
	return nil
}

// Subscribe registers a durable consumer for the given subject. Payloads are
// validated against the subject's schema before the handler runs; invalid
// messages dead-letter immediately. Handler failures requeue with an
// incremented retry header until maxRetries, then dead-letter.
func (q *Queue) Subscribe(ctx context.Context, subject string, handler messagequeue.Handler) (func(), error) {
	consumer, err := q.js.CreateOrUpdateConsumer(ctx, streamName, jetstream.ConsumerConfig{
		Durable:       durableName(subject),
		FilterSubject: subject,
		AckPolicy:     jetstream.AckExplicitPolicy,
	})
	if err != nil {
		return nil, fmt.Errorf("nats consumer create %s: %w", subject, err)
	}

	cons, err := consumer.Consume(func(msg jetstream.Msg) {
		q.dispatch(ctx, msg, handler)
	})
	if err != nil {
		return nil, fmt.Errorf("nats consume %s: %w", subject, err)
	}

	return cons.Stop, nil
}

func (q *Queue) dispatch(ctx context.Context, msg jetstream.Msg, handler messagequeue.Handler) {
	hdrs := msg.Headers()
	if id := hdrs.Get(headerRequestID); id != "" {
		ctx = logger.WithRequestID(ctx, id)
	}

	if err := messagequeue.Validate(msg.Subject(), msg.Data()); err != nil {
		slog.Error("message failed validation, dead-lettering",
			"subject", msg.Subject(), "error", err)
		q.finish(msg, q.moveToDLQ(ctx, msg))
		return
	}

	if err := handler(ctx, msg.Subject(), msg.Data()); err != nil {
		attempt := retryCount(hdrs)
		if attempt >= maxRetries {
			slog.Error("message retries exhausted, dead-lettering",
				"subject", msg.Subject(), "retries", attempt, "error", err)
			q.finish(msg, q.moveToDLQ(ctx, msg))
			return
		}
		slog.Warn("message handler failed, requeueing",
			"subject", msg.Subject(), "attempt", attempt+1, "error", err)
		q.finish(msg, q.requeue(ctx, msg, attempt+1))
		return
	}

	q.finish(msg, nil)
}

// finish acks the message when the follow-up action succeeded, naks it
// otherwise so JetStream redelivers.
func (q *Queue) finish(msg jetstream.Msg, err error) {
	if err != nil {
		slog.Error("message follow-up failed, redelivering",
			"subject", msg.Subject(), "error", err)
		if nakErr := msg.Nak(); nakErr != nil {
			slog.Error("nats nak failed", "error", nakErr)
		}
		return
	}
	if ackErr := msg.Ack(); ackErr != nil {
		slog.Error("nats ack failed", "error", ackErr)
	}
}

func (q *Queue) requeue(ctx context.Context, msg jetstream.Msg, attempt int) error {
	out := copyMsg(msg, msg.Subject())
	out.Header.Set(headerRetryCount, strconv.Itoa(attempt))
	if _, err := q.js.PublishMsg(ctx, out); err != nil {
		return fmt.Errorf("requeue %s: %w", msg.Subject(), err)
	}
	return nil
}

func (q *Queue) moveToDLQ(ctx context.Context, msg jetstream.Msg) error {
	out := copyMsg(msg, msg.Subject()+".dlq")
	if _, err := q.js.PublishMsg(ctx, out); err != nil {
		return fmt.Errorf("dead-letter %s: %w", msg.Subject(), err)
	}
	return nil
}

// KeyValue creates or opens a JetStream KV bucket with the given TTL. The
// tiered cache uses this as its remote level.
func (q *Queue) KeyValue(ctx context.Context, bucket string, ttl time.Duration) (jetstream.KeyValue, error) {
	kv, err := q.js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket: bucket,
		TTL:    ttl,
	})
	if err != nil {
		return nil, fmt.Errorf("nats kv bucket %s: %w", bucket, err)
	}
	return kv, nil
}

// Drain processes pending messages on all subscriptions, then closes.
func (q *Queue) Drain() error {
	return q.nc.Drain()
}

// Close shuts down the NATS connection immediately.
func (q *Queue) Close() error {
	q.nc.Close()
	return nil
}

// IsConnected reports whether the underlying connection is up.
func (q *Queue) IsConnected() bool {
	return q.nc.IsConnected()
}

func durableName(subject string) string {
	return strings.ReplaceAll(subject, ".", "-")
}

func retryCount(h nats.Header) int {
	n, err := strconv.Atoi(h.Get(headerRetryCount))
	if err != nil {
		return 0
	}
	return n
}

func copyMsg(msg jetstream.Msg, subject string) *nats.Msg {
	out := &nats.Msg{Subject: subject, Data: msg.Data(), Header: nats.Header{}}
	for k, vals := range msg.Headers() {
		for _, v := range vals {
			out.Header.Add(k, v)
		}
	}
	return out
}
