// Package queue buffers enriched memories and forwards them to the vault
// collaborator with at-least-once, all-or-nothing-per-flush delivery.
package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Role and type enums live in recognize; the queue only carries the strings
// so the vault boundary stays free of recognizer imports.

// Attachment is a captured media payload riding along with a memory.
type Attachment struct {
	Technique string
	MIME      string
	Bytes     []byte
}

// Memory is one enriched, queued capture unit. Immutable once enqueued.
type Memory struct {
	ID          string
	Content     string
	Role        string
	Type        string
	Source      string
	CaptureType string
	URL         string
	Domain      string
	CapturedAt  time.Time
	Metadata    map[string]any
	Attachments []Attachment
}

// StorageClient is the external vault collaborator. Failures are treated as
// retryable; the queue never inspects them beyond logging.
type StorageClient interface {
	AddMemory(ctx context.Context, m Memory) (string, error)
}

// Queue is a FIFO buffer of memories awaiting persistence. A batch removed
// for flushing is either fully forwarded or fully re-prepended on failure;
// ordering across a failed batch and newly queued items favors retry first.
type Queue struct {
	mu       sync.Mutex
	items    []Memory
	flushing bool

	store StorageClient
	log   *zap.Logger
}

// New creates a queue forwarding to the given storage client.
func New(store StorageClient, log *zap.Logger) *Queue {
	if log == nil {
		log = zap.NewNop()
	}
	return &Queue{store: store, log: log}
}

// Enqueue appends memories and triggers a flush if none is in flight.
// The flush error is returned so callers can surface it; an in-flight flush
// makes this call append-only.
func (q *Queue) Enqueue(ctx context.Context, memories ...Memory) error {
	if len(memories) == 0 {
		return nil
	}
	q.mu.Lock()
	q.items = append(q.items, memories...)
	q.mu.Unlock()

	q.log.Debug("memories enqueued", zap.Int("count", len(memories)))
	return q.Flush(ctx)
}

// Flush drains the current queue contents to the storage client. A no-op when
// a flush is already in flight or the queue is empty. On any forward failure
// the entire captured batch is restored to the front of the queue and the
// flush stops.
func (q *Queue) Flush(ctx context.Context) error {
	q.mu.Lock()
	if q.flushing || len(q.items) == 0 {
		q.mu.Unlock()
		return nil
	}
	// The guard must be up before the first await so re-entrant calls during
	// a slow storage round-trip cannot start a second drain.
	q.flushing = true
	batch := q.items
	q.items = nil
	q.mu.Unlock()

	defer func() {
		q.mu.Lock()
		q.flushing = false
		q.mu.Unlock()
	}()

	for i, m := range batch {
		if _, err := q.store.AddMemory(ctx, m); err != nil {
			q.requeue(batch)
			q.log.Warn("flush failed, batch re-queued",
				zap.Int("sent", i),
				zap.Int("batch", len(batch)),
				zap.Error(err))
			return fmt.Errorf("flush memory %d/%d: %w", i+1, len(batch), err)
		}
	}

	q.log.Debug("flush complete", zap.Int("batch", len(batch)))
	return nil
}

// requeue restores a failed batch ahead of anything enqueued meanwhile.
// Items already forwarded before the failure come back too: delivery is
// at-least-once and the vault deduplicates by content.
func (q *Queue) requeue(batch []Memory) {
	q.mu.Lock()
	defer q.mu.Unlock()
	restored := make([]Memory, 0, len(batch)+len(q.items))
	restored = append(restored, batch...)
	restored = append(restored, q.items...)
	q.items = restored
}

// Len returns the number of memories currently queued.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Pending returns a copy of the queued memories, oldest first.
func (q *Queue) Pending() []Memory {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]Memory, len(q.items))
	copy(out, q.items)
	return out
}
