package queue

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryQueue is a bounded in-process FIFO of outbox jobs. Jobs do not
// survive a restart.
type MemoryQueue struct {
	mu       sync.Mutex
	jobs     []Job
	capacity int
	ready    chan struct{} // closed and replaced on every enqueue
	closed   bool
}

// NewMemoryQueue creates a queue holding up to ten batches
func NewMemoryQueue(config *Config) *MemoryQueue {
	if config == nil {
		config = DefaultConfig("memory")
	}
	capacity := config.BatchSize * 10
	if capacity <= 0 {
		capacity = 100
	}

	return &MemoryQueue{
		capacity: capacity,
		ready:    make(chan struct{}),
	}
}

// Enqueue appends a job. It never blocks; a full queue returns ErrQueueFull.
func (q *MemoryQueue) Enqueue(ctx context.Context, job Job) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrQueueClosed
	}
	if len(q.jobs) >= q.capacity {
		return ErrQueueFull
	}

	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	q.jobs = append(q.jobs, job)

	close(q.ready)
	q.ready = make(chan struct{})
	return nil
}

// DequeueWithTimeout waits up to timeout for at least one job and returns
// up to maxItems of them. No jobs within the timeout is not an error.
func (q *MemoryQueue) DequeueWithTimeout(ctx context.Context, maxItems int, timeout time.Duration) ([]Job, error) {
	if maxItems <= 0 {
		maxItems = 1
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		q.mu.Lock()
		if q.closed {
			q.mu.Unlock()
			return nil, ErrQueueClosed
		}
		if n := min(maxItems, len(q.jobs)); n > 0 {
			jobs := make([]Job, n)
			copy(jobs, q.jobs)
			q.jobs = q.jobs[n:]
			q.mu.Unlock()
			return jobs, nil
		}
		ready := q.ready
		q.mu.Unlock()

		select {
		case <-ready:
		case <-timer.C:
			return nil, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Length returns the number of waiting jobs
func (q *MemoryQueue) Length(ctx context.Context) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return 0, ErrQueueClosed
	}
	return len(q.jobs), nil
}

// Close drops waiting jobs and wakes blocked readers
func (q *MemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}
	q.closed = true
	q.jobs = nil
	close(q.ready)
	return nil
}

// MemoryDeadLetterQueue implements DeadLetterQueue using in-memory storage
type MemoryDeadLetterQueue struct {
	items  []DeadLetterItem
	mu     sync.RWMutex
	closed bool
}

// NewMemoryDeadLetterQueue creates a new in-memory dead letter queue
func NewMemoryDeadLetterQueue() *MemoryDeadLetterQueue {
	return &MemoryDeadLetterQueue{
		items: make([]DeadLetterItem, 0),
	}
}

// Add adds a failed job to the dead letter queue
func (q *MemoryDeadLetterQueue) Add(ctx context.Context, job Job, err error) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrQueueClosed
	}

	q.items = append(q.items, newDeadLetterItem(job, err))
	return nil
}

// List retrieves items from the dead letter queue
func (q *MemoryDeadLetterQueue) List(ctx context.Context, maxItems int) ([]DeadLetterItem, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		return nil, ErrQueueClosed
	}

	if maxItems <= 0 || maxItems > len(q.items) {
		maxItems = len(q.items)
	}

	result := make([]DeadLetterItem, maxItems)
	copy(result, q.items[:maxItems])
	return result, nil
}

// Remove removes an item from the dead letter queue
func (q *MemoryDeadLetterQueue) Remove(ctx context.Context, id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrQueueClosed
	}

	for i, item := range q.items {
		if item.ID == id {
			q.items = append(q.items[:i], q.items[i+1:]...)
			return nil
		}
	}

	return ErrItemNotFound
}

// Close shuts down the dead letter queue
func (q *MemoryDeadLetterQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.closed = true
	q.items = nil
	return nil
}

func newDeadLetterItem(job Job, err error) DeadLetterItem {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	return DeadLetterItem{
		ID:        uuid.NewString(),
		Job:       job,
		Error:     msg,
		Timestamp: time.Now(),
	}
}
