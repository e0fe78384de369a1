package nats

import (
	"context"
	"errors"
	"os"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/curatd/curatd/internal/logger"
	"github.com/curatd/curatd/internal/port/messagequeue"
)

// connectTest connects to the server named by NATS_URL or skips.
func connectTest(t *testing.T) *Queue {
	t.Helper()

	url := os.Getenv("NATS_URL")
	if url == "" {
		t.Skip("requires NATS_URL")
	}

	q, err := Connect(context.Background(), url)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	t.Cleanup(func() {
		if err := q.Close(); err != nil {
			t.Errorf("Close: %v", err)
		}
	})
	return q
}

// testSubject places each test under reviews.test.* inside the stream's
// reviews.> space. The validator passes unknown subjects through as long
// as the payload is well-formed JSON.
func testSubject(t *testing.T) string {
	t.Helper()
	return "reviews.test." + t.Name()
}

// capture records the first delivery. The closed channel orders the field
// writes before any read, so no lock is needed.
type capture struct {
	once  sync.Once
	done  chan struct{}
	subj  string
	data  []byte
	reqID string
}

func newCapture() *capture { return &capture{done: make(chan struct{})} }

func (c *capture) handle(ctx context.Context, subj string, data []byte) error {
	c.once.Do(func() {
		c.subj = subj
		c.data = data
		c.reqID = logger.RequestID(ctx)
		close(c.done)
	})
	return nil
}

func (c *capture) wait(t *testing.T) {
	t.Helper()
	select {
	case <-c.done:
	case <-time.After(10 * time.Second):
		t.Fatal("no delivery before timeout")
	}
}

// dlqCapture watches subject's dead-letter mirror with a raw JetStream
// consumer, bypassing Subscribe's validator. DeliverNewPolicy keeps
// messages from earlier runs out.
func dlqCapture(t *testing.T, q *Queue, subject string) *capture {
	t.Helper()

	c := newCapture()
	cons, err := q.js.CreateOrUpdateConsumer(context.Background(), streamName, jetstream.ConsumerConfig{
		FilterSubject: subject + ".dlq",
		AckPolicy:     jetstream.AckExplicitPolicy,
		DeliverPolicy: jetstream.DeliverNewPolicy,
	})
	if err != nil {
		t.Fatalf("dlq consumer: %v", err)
	}

	sub, err := cons.Consume(func(msg jetstream.Msg) {
		c.once.Do(func() {
			c.data = msg.Data()
			close(c.done)
		})
		_ = msg.Ack()
	})
	if err != nil {
		t.Fatalf("dlq consume: %v", err)
	}
	t.Cleanup(sub.Stop)
	return c
}

func TestQueuePublishSubscribe(t *testing.T) {
	q := connectTest(t)
	subject := testSubject(t)
	body := []byte(`{"item_id":"item-1","collection":"essays"}`)

	got := newCapture()
	stop, err := q.Subscribe(context.Background(), subject, got.handle)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer stop()

	if err := q.Publish(context.Background(), subject, body); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	got.wait(t)

	if got.subj != subject {
		t.Errorf("subject = %q, want %q", got.subj, subject)
	}
	if string(got.data) != string(body) {
		t.Errorf("data = %s, want %s", got.data, body)
	}
}

func TestQueuePropagatesRequestID(t *testing.T) {
	q := connectTest(t)
	subject := testSubject(t)
	const want = "req-abc-123"

	got := newCapture()
	stop, err := q.Subscribe(context.Background(), subject, got.handle)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer stop()

	ctx := logger.WithRequestID(context.Background(), want)
	if err := q.Publish(ctx, subject, []byte(`{"ok":true}`)); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	got.wait(t)

	if got.reqID != want {
		t.Errorf("request ID = %q, want %q", got.reqID, want)
	}
}

func TestQueueValidationFailureDeadLetters(t *testing.T) {
	q := connectTest(t)
	ctx := context.Background()

	// reviews.review.requested has a structural check, so a body that is
	// not JSON at all dead-letters without reaching the handler.
	subject := messagequeue.SubjectReviewRequested

	// The consumer only runs while something is subscribed. Ack whatever
	// arrives; stale messages from earlier runs may be among them.
	stop, err := q.Subscribe(ctx, subject, func(context.Context, string, []byte) error {
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer stop()

	dlq := dlqCapture(t, q, subject)

	if err := q.Publish(ctx, subject, []byte("not-json")); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	dlq.wait(t)

	if string(dlq.data) != "not-json" {
		t.Errorf("dead-lettered body = %q, want %q", dlq.data, "not-json")
	}
}

func TestQueueRetryExhaustionDeadLetters(t *testing.T) {
	q := connectTest(t)
	ctx := context.Background()
	subject := testSubject(t)
	body := []byte(`{"exhausted":true}`)

	dlq := dlqCapture(t, q, subject)

	failing := errors.New("handler always fails")
	stop, err := q.Subscribe(ctx, subject, func(context.Context, string, []byte) error {
		return failing
	})
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer stop()

	// Publish through raw JetStream with the retry header already at the
	// cap, so the first handler failure dead-letters instead of requeueing.
	msg := &nats.Msg{Subject: subject, Data: body, Header: nats.Header{}}
	msg.Header.Set(headerRetryCount, strconv.Itoa(maxRetries))

	if _, err := q.js.PublishMsg(ctx, msg); err != nil {
		t.Fatalf("PublishMsg: %v", err)
	}
	dlq.wait(t)

	if string(dlq.data) != string(body) {
		t.Errorf("dead-lettered body = %s, want %s", dlq.data, body)
	}
}

func TestQueueKeyValueRoundTrip(t *testing.T) {
	q := connectTest(t)
	ctx := context.Background()

	kv, err := q.KeyValue(ctx, "test-kv-"+t.Name(), 30*time.Second)
	if err != nil {
		t.Fatalf("KeyValue: %v", err)
	}

	if _, err := kv.Put(ctx, "cursor", []byte("2")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	entry, err := kv.Get(ctx, "cursor")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(entry.Value()) != "2" {
		t.Errorf("value = %q, want 2", entry.Value())
	}

	if _, err := kv.Put(ctx, "cursor", []byte("3")); err != nil {
		t.Fatalf("Put overwrite: %v", err)
	}
	entry, err = kv.Get(ctx, "cursor")
	if err != nil {
		t.Fatalf("Get after overwrite: %v", err)
	}
	if string(entry.Value()) != "3" {
		t.Errorf("overwritten value = %q, want 3", entry.Value())
	}

	if err := kv.Delete(ctx, "cursor"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := kv.Get(ctx, "cursor"); !errors.Is(err, jetstream.ErrKeyDeleted) && !errors.Is(err, jetstream.ErrKeyNotFound) {
		t.Errorf("Get after delete = %v, want key-gone error", err)
	}
}

func TestQueueIsConnected(t *testing.T) {
	q := connectTest(t)

	if !q.IsConnected() {
		t.Error("IsConnected() = false after Connect")
	}
}
