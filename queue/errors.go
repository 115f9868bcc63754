package queue

import "errors"

var (
	// ErrNotFound is returned when a message id is not in the queue.
	ErrNotFound = errors.New("queue: message not found")

	// ErrClosed is returned when the queue is used after Close.
	ErrClosed = errors.New("queue: closed")
)
