// Package queue holds pending refresh requests between producers (HTTP,
// file watcher, ticker) and the refresh workers.
package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/okian/conjunction/pkg/metrics"
)

const defaultQueueCapacity = 16

// Request asks for one refresh run.
type Request struct {
	ID     string
	Reason string
	At     time.Time
}

// NewRequest stamps a request with a fresh id and the current time.
func NewRequest(reason string) Request {
	return Request{ID: uuid.NewString(), Reason: reason, At: time.Now().UTC()}
}

// Queue is a bounded FIFO of refresh requests.
type Queue interface {
	// Enqueue adds a request without blocking; false when full or closed.
	Enqueue(ctx context.Context, r Request) bool
	// Submit is Enqueue with the rejection reason as an error.
	Submit(ctx context.Context, r Request) error
	// Dequeue streams requests until the queue is closed or ctx is done.
	Dequeue(ctx context.Context) <-chan Request
	Len(ctx context.Context) int
	Close() error
	IsClosed() bool
}

// InMemoryQueue implements Queue on a buffered channel.
type InMemoryQueue struct {
	requests chan Request
	capacity int

	mu     sync.RWMutex
	closed bool
}

// NewInMemoryQueue creates a queue.
func NewInMemoryQueue(opts ...Option) *InMemoryQueue {
	q := &InMemoryQueue{capacity: defaultQueueCapacity}
	for _, opt := range opts {
		opt(q)
	}
	q.requests = make(chan Request, q.capacity)

	metrics.UpdateQueueCapacity(q.capacity)
	metrics.UpdateQueueSize(0)
	return q
}

// Enqueue adds r unless the queue is full, closed or ctx is done.
func (q *InMemoryQueue) Enqueue(ctx context.Context, r Request) bool {
	return q.Submit(ctx, r) == nil
}

// Submit adds r or reports why it could not.
func (q *InMemoryQueue) Submit(ctx context.Context, r Request) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		metrics.RecordQueueRejected("closed")
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		metrics.RecordQueueRejected("context_cancelled")
		return err
	}

	select {
	case q.requests <- r:
		metrics.RecordQueueEnqueue()
		metrics.UpdateQueueSize(len(q.requests))
		return nil
	default:
		metrics.RecordQueueRejected("full")
		return fmt.Errorf("%w: capacity %d", ErrFull, q.capacity)
	}
}

// Dequeue streams requests in FIFO order.
func (q *InMemoryQueue) Dequeue(ctx context.Context) <-chan Request {
	out := make(chan Request)
	go func() {
		defer close(out)
		for {
			select {
			case r, ok := <-q.requests:
				if !ok {
					return
				}
				select {
				case out <- r:
					metrics.RecordQueueDequeue()
					metrics.UpdateQueueSize(len(q.requests))
				case <-ctx.Done():
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

// Len returns the number of pending requests.
func (q *InMemoryQueue) Len(_ context.Context) int {
	size := len(q.requests)
	metrics.UpdateQueueSize(size)
	return size
}

// Close stops accepting requests. Pending ones are still delivered.
func (q *InMemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}
	close(q.requests)
	q.closed = true
	return nil
}

// IsClosed reports whether Close was called.
func (q *InMemoryQueue) IsClosed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.closed
}
