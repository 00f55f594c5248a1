package db

import (
	"context"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// DefaultChannelCapacity is the default buffer size for async writes.
const DefaultChannelCapacity = 256

// WriteHandler persists one queued item.
type WriteHandler[T any] func(ctx context.Context, item T) error

// AsyncWriter moves writes off the caller's goroutine through a buffered
// channel and one background worker. Write never blocks; when the buffer
// is full the item is dropped and counted.
//
// Public API:
//   - NewAsyncWriter(): Create and start a writer
//   - Write(): Queue an item
//   - Close(): Drain the buffer and stop
type AsyncWriter[T any] struct {
	items   chan T
	handler WriteHandler[T]
	logger  *zap.Logger

	mu     sync.RWMutex
	closed bool
	done   chan struct{}

	written atomic.Int64
	dropped atomic.Int64
	failed  atomic.Int64
}

// NewAsyncWriter starts a writer with the given buffer capacity
// (DefaultChannelCapacity when not positive).
func NewAsyncWriter[T any](handler WriteHandler[T], capacity int, logger *zap.Logger) *AsyncWriter[T] {
	if capacity <= 0 {
		capacity = DefaultChannelCapacity
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	w := &AsyncWriter[T]{
		items:   make(chan T, capacity),
		handler: handler,
		logger:  logger,
		done:    make(chan struct{}),
	}
	go w.run()
	return w
}

func (w *AsyncWriter[T]) run() {
	defer close(w.done)
	for item := range w.items {
		if err := w.handler(context.Background(), item); err != nil {
			w.failed.Add(1)
			w.logger.Warn("Async write failed", zap.Error(err))
			continue
		}
		w.written.Add(1)
	}
}

// Write queues item. It returns false when the writer is closed or full.
func (w *AsyncWriter[T]) Write(item T) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		return false
	}
	select {
	case w.items <- item:
		return true
	default:
		if w.dropped.Add(1) == 1 {
			w.logger.Warn("Async write buffer full, dropping records", zap.Int("capacity", cap(w.items)))
		}
		return false
	}
}

// Pending returns the number of queued items.
func (w *AsyncWriter[T]) Pending() int {
	return len(w.items)
}

// WriterStats counts processed items.
type WriterStats struct {
	Written int64 `json:"written"`
	Dropped int64 `json:"dropped"`
	Failed  int64 `json:"failed"`
}

// Stats returns the counters.
func (w *AsyncWriter[T]) Stats() WriterStats {
	return WriterStats{
		Written: w.written.Load(),
		Dropped: w.dropped.Load(),
		Failed:  w.failed.Load(),
	}
}

// Close stops accepting items and waits for the buffer to drain or ctx to
// end. Later calls only wait.
func (w *AsyncWriter[T]) Close(ctx context.Context) error {
	w.mu.Lock()
	if !w.closed {
		w.closed = true
		close(w.items)
	}
	w.mu.Unlock()

	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn("Async writer did not drain in time", zap.Int("pending", w.Pending()))
		return ctx.Err()
	}
}
