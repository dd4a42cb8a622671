package queue

import "context"

// Queue represents a bounded FIFO queue. Producers block while it is full.
type Queue interface {
	Enqueue(ctx context.Context, item interface{}) error
	Dequeue(ctx context.Context) (interface{}, error)
	Size() int
	ReadAllMessages() ([]interface{}, error)
	ClearQueue() error
}
