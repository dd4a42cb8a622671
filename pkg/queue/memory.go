// queue package

package queue

import "context"

const (
	// DefaultQueueSize is the capacity of a queue created with a non-positive size
	DefaultQueueSize = 100
)

// InMemoryQueue implements an in-memory bounded queue.
type InMemoryQueue struct {
	ch chan interface{}
}

// NewInMemoryQueue creates a new queue holding at most size items.
func NewInMemoryQueue(size int) *InMemoryQueue {
	if size <= 0 {
		size = DefaultQueueSize
	}
	return &InMemoryQueue{
		ch: make(chan interface{}, size),
	}
}

// Enqueue adds an item to the end of the queue, waiting for room if it is full.
func (q *InMemoryQueue) Enqueue(ctx context.Context, item interface{}) error {
	select {
	case q.ch <- item:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Dequeue removes and returns the item from the front of the queue, waiting
// for one if it is empty.
func (q *InMemoryQueue) Dequeue(ctx context.Context) (interface{}, error) {
	select {
	case item := <-q.ch:
		return item, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Size returns the current size of the queue.
func (q *InMemoryQueue) Size() int {
	return len(q.ch)
}

// Cap returns the capacity of the queue.
func (q *InMemoryQueue) Cap() int {
	return cap(q.ch)
}

// ReadAllMessages reads all pending messages in the queue without waiting.
func (q *InMemoryQueue) ReadAllMessages() ([]interface{}, error) {
	var messages []interface{}
	for {
		select {
		case item := <-q.ch:
			messages = append(messages, item)
		default:
			return messages, nil
		}
	}
}

// ClearQueue clears all messages from the queue.
func (q *InMemoryQueue) ClearQueue() error {
	for {
		select {
		case <-q.ch:
		default:
			return nil
		}
	}
}
