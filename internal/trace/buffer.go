// Package trace buffers session trace events and flushes them to the remote session store.
package trace

import (
	"context"
	"errors"
	"sync"

	"github.com/ashureev/codecoach/internal/domain"
)

// DefaultFlushThreshold is the buffer size that triggers an automatic flush.
const DefaultFlushThreshold = 10

// ErrNoSender is returned when Flush is called with a nil send function.
var ErrNoSender = errors.New("trace: no sender configured")

// SendFunc delivers one ordered batch to the remote store.
type SendFunc func(ctx context.Context, batch []domain.TraceEvent) error

// Buffer is an append-ordered log of trace events. Events leave the buffer
// only through a successful Flush, which removes exactly the batch it sent.
type Buffer struct {
	mu        sync.Mutex
	flushMu   sync.Mutex // serializes flushes so batches never overlap
	events    []domain.TraceEvent
	threshold int
}

// NewBuffer creates a buffer with the given auto-flush threshold.
func NewBuffer(threshold int) *Buffer {
	if threshold <= 0 {
		threshold = DefaultFlushThreshold
	}
	return &Buffer{threshold: threshold}
}

// Append adds an event and returns the new buffer length. It never does I/O.
func (b *Buffer) Append(e domain.TraceEvent) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, e)
	return len(b.events)
}

// Restore seeds the buffer with events recovered from durable state.
func (b *Buffer) Restore(events []domain.TraceEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(append([]domain.TraceEvent(nil), events...), b.events...)
}

// Len returns the number of buffered events.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.events)
}

// Snapshot returns a copy of the buffered events in append order.
func (b *Buffer) Snapshot() []domain.TraceEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]domain.TraceEvent(nil), b.events...)
}

// ShouldFlush reports whether the buffer reached its auto-flush threshold.
func (b *Buffer) ShouldFlush() bool {
	return b.Len() >= b.threshold
}

// Flush sends the current contents as one batch. On success exactly the sent
// events are removed; events appended while the request was in flight stay.
// On failure the buffer is left untouched. Flush never retries.
func (b *Buffer) Flush(ctx context.Context, send SendFunc) (int, error) {
	if send == nil {
		return 0, ErrNoSender
	}

	b.flushMu.Lock()
	defer b.flushMu.Unlock()

	b.mu.Lock()
	if len(b.events) == 0 {
		b.mu.Unlock()
		return 0, nil
	}
	batch := append([]domain.TraceEvent(nil), b.events...)
	b.mu.Unlock()

	if err := send(ctx, batch); err != nil {
		return 0, err
	}

	b.mu.Lock()
	remaining := make([]domain.TraceEvent, len(b.events)-len(batch))
	copy(remaining, b.events[len(batch):])
	b.events = remaining
	b.mu.Unlock()

	return len(batch), nil
}
