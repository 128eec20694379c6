package queue

import (
	"context"
	"fmt"
	"sync"
)

const memoryQueueDepth = 1024

// MemoryQueue is an in-process broker used in tests and broker-less dev
// runs. It is both Publisher and Consumer; jobs are lost on restart, which
// the resume scanner compensates for.
type MemoryQueue struct {
	mu     sync.Mutex
	queues map[string]chan DispatchMessage
	closed bool
}

var (
	_ Publisher = (*MemoryQueue)(nil)
	_ Consumer  = (*MemoryQueue)(nil)
)

func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{queues: make(map[string]chan DispatchMessage)}
}

func (q *MemoryQueue) queue(name string) chan DispatchMessage {
	q.mu.Lock()
	defer q.mu.Unlock()

	ch, ok := q.queues[name]
	if !ok {
		ch = make(chan DispatchMessage, memoryQueueDepth)
		q.queues[name] = ch
	}
	return ch
}

func (q *MemoryQueue) Publish(ctx context.Context, queue string, msg DispatchMessage) error {
	if queue == "" {
		return fmt.Errorf("queue name is required")
	}
	if err := msg.Validate(); err != nil {
		return fmt.Errorf("invalid dispatch message: %w", err)
	}

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return fmt.Errorf("queue is closed")
	}
	q.mu.Unlock()

	select {
	case q.queue(queue) <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *MemoryQueue) Consume(ctx context.Context, queue string, handler MessageHandler) error {
	if queue == "" {
		return fmt.Errorf("queue name is required")
	}
	if handler == nil {
		return fmt.Errorf("message handler is required")
	}

	ch := q.queue(queue)
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg := <-ch:
			// Handler errors are swallowed like a nack without redelivery;
			// the resume scanner picks stranded records back up.
			_ = handler(ctx, msg)
		}
	}
}

func (q *MemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	return nil
}
