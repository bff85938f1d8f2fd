package mq

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
)

// MemoryQueue delivers events through a buffered channel in this process.
// It is the default driver and the fallback when a broker is unreachable.
type MemoryQueue struct {
	events  chan VoteEvent
	done    chan struct{}
	wg      sync.WaitGroup
	mu      sync.RWMutex
	closed  bool
	started bool

	published atomic.Int64
	processed atomic.Int64
	failed    atomic.Int64
}

// NewMemoryQueue creates a queue holding up to size pending events
func NewMemoryQueue(size int) *MemoryQueue {
	return &MemoryQueue{
		events: make(chan VoteEvent, size),
		done:   make(chan struct{}),
	}
}

// Publish enqueues the event, blocking while the buffer is full
func (q *MemoryQueue) Publish(ctx context.Context, event VoteEvent) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrQueueClosed
	}

	select {
	case q.events <- event:
		q.published.Add(1)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Start consumes events on one goroutine until Close
func (q *MemoryQueue) Start(handler Handler) error {
	if handler == nil {
		return ErrNoHandler
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrQueueClosed
	}
	if q.started {
		return nil
	}
	q.started = true

	q.wg.Add(1)
	go func() {
		defer q.wg.Done()
		for {
			select {
			case event := <-q.events:
				q.handle(handler, event)
			case <-q.done:
				// drain what was published before Close
				for {
					select {
					case event := <-q.events:
						q.handle(handler, event)
					default:
						return
					}
				}
			}
		}
	}()
	return nil
}

func (q *MemoryQueue) handle(handler Handler, event VoteEvent) {
	if err := handler(context.Background(), event); err != nil {
		q.failed.Add(1)
		log.Printf("Vote event %s failed: %v", event.MessageID, err)
		return
	}
	q.processed.Add(1)
}

// Stats reports queue counters
func (q *MemoryQueue) Stats() map[string]interface{} {
	return map[string]interface{}{
		"pending":   len(q.events),
		"published": q.published.Load(),
		"processed": q.processed.Load(),
		"failed":    q.failed.Load(),
	}
}

// Close stops the consumer after draining pending events
func (q *MemoryQueue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.done)
	q.mu.Unlock()

	q.wg.Wait()
}
