package logger

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
)

// Closer flushes buffered records and stops background workers. The
// synchronous handler path returns a no-op.
type Closer interface {
	Close()
}

type nopCloser struct{}

func (nopCloser) Close() {}

// entry pairs a record with the handler that accepted it, so attributes and
// groups added through With are applied when the record is drained.
type entry struct {
	h   slog.Handler
	rec slog.Record
}

// AsyncHandler decouples emission from encoding: Handle enqueues and
// returns, worker goroutines do the writes. A full queue drops records
// instead of blocking the caller.
type AsyncHandler struct {
	inner   slog.Handler
	queue   chan entry
	wg      *sync.WaitGroup
	dropped *atomic.Int64
}

// NewAsyncHandler starts workers draining a queue of the given capacity
// into inner.
func NewAsyncHandler(inner slog.Handler, capacity, workers int) *AsyncHandler {
	h := &AsyncHandler{
		inner:   inner,
		queue:   make(chan entry, capacity),
		wg:      &sync.WaitGroup{},
		dropped: &atomic.Int64{},
	}
	h.wg.Add(workers)
	for range workers {
		go func() {
			defer h.wg.Done()
			for e := range h.queue {
				_ = e.h.Handle(context.Background(), e.rec)
			}
		}()
	}
	return h
}

// Enabled delegates to the wrapped handler.
func (h *AsyncHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

// Handle enqueues a copy of the record. The clone matters: the queue holds
// the record past Handle's return, which slog only permits on a copy.
func (h *AsyncHandler) Handle(_ context.Context, rec slog.Record) error { //nolint:gocritic // slog.Handler passes records by value
	select {
	case h.queue <- entry{h: h.inner, rec: rec.Clone()}:
	default:
		h.dropped.Add(1)
	}
	return nil
}

// WithAttrs derives a handler sharing the queue and workers; records it
// accepts are drained through the attributed inner handler.
func (h *AsyncHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &AsyncHandler{inner: h.inner.WithAttrs(attrs), queue: h.queue, wg: h.wg, dropped: h.dropped}
}

// WithGroup derives a handler sharing the queue and workers.
func (h *AsyncHandler) WithGroup(name string) slog.Handler {
	return &AsyncHandler{inner: h.inner.WithGroup(name), queue: h.queue, wg: h.wg, dropped: h.dropped}
}

// DroppedCount reports how many records were discarded on a full queue.
func (h *AsyncHandler) DroppedCount() int64 {
	return h.dropped.Load()
}

// Close stops intake and blocks until the workers have drained the queue.
// Derived handlers share the queue, so close the root handler exactly once.
func (h *AsyncHandler) Close() {
	close(h.queue)
	h.wg.Wait()
}
