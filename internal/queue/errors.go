package queue

import "errors"

var (
	ErrQueueClosed = errors.New("queue is closed")

	// ErrQueueFull is returned by bounded queues instead of blocking the caller.
	ErrQueueFull = errors.New("queue is full")

	ErrItemNotFound = errors.New("dead letter item not found")

	// ErrMaxRetriesExceeded is recorded on jobs that used up their delivery attempts
	ErrMaxRetriesExceeded = errors.New("max retries exceeded")
)
