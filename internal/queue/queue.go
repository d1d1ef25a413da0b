package queue

import (
	"context"
	"time"

	"ai_config/internal/models"
)

// Package queue holds remote configuration saves that could not be delivered
// so they can be retried later. Two backends are provided:
//
// 1. Memory Queue (in-memory, channel-based):
//    - No persistence, pending saves are lost on restart
//    - The local cache still holds the latest configuration
//
// 2. Redis Queue (Redis List-based):
//    - Pending saves survive restarts of an offline device
//
// Jobs always carry a full record snapshot, never a delta, so delivering
// them in any order cannot move the remote record backwards.

// Job is one pending remote save.
type Job struct {
	ID         string              `json:"id"`
	Record     models.ConfigRecord `json:"record"`
	Attempts   int                 `json:"attempts"`
	EnqueuedAt time.Time           `json:"enqueued_at"`
	LastError  string              `json:"last_error,omitempty"`
}

// Queue defines the interface for the save outbox
type Queue interface {
	// Enqueue adds a job to the queue
	Enqueue(ctx context.Context, job Job) error

	// DequeueWithTimeout retrieves up to maxItems jobs.
	// Returns an empty slice when nothing arrives before timeout.
	DequeueWithTimeout(ctx context.Context, maxItems int, timeout time.Duration) ([]Job, error)

	// Length returns the current queue length
	Length(ctx context.Context) (int, error)

	// Close shuts down the queue gracefully
	Close() error
}

// DeadLetterQueue keeps jobs that exhausted their retries
type DeadLetterQueue interface {
	// Add adds a failed job with error info
	Add(ctx context.Context, job Job, err error) error

	// List retrieves items from the dead letter queue
	List(ctx context.Context, maxItems int) ([]DeadLetterItem, error)

	// Remove removes an item from the dead letter queue
	Remove(ctx context.Context, id string) error

	// Close shuts down the dead letter queue
	Close() error
}

// DeadLetterItem represents a job in the dead letter queue
type DeadLetterItem struct {
	ID        string    `json:"id"`
	Job       Job       `json:"job"`
	Error     string    `json:"error"`
	Timestamp time.Time `json:"timestamp"`
}

// Config holds queue configuration
type Config struct {
	// BatchSize is the maximum number of jobs to process in a batch
	BatchSize int

	// BatchTimeout is how long to wait before processing a partial batch
	BatchTimeout time.Duration

	// MaxRetries is the maximum number of delivery attempts per job
	MaxRetries int

	// RetryBackoff is the initial backoff duration for retries
	RetryBackoff time.Duration

	// QueueName is the name/key for the queue
	QueueName string
}

// DefaultConfig returns default queue configuration
func DefaultConfig(queueName string) *Config {
	return &Config{
		BatchSize:    20,
		BatchTimeout: 2 * time.Second,
		MaxRetries:   5,
		RetryBackoff: 1 * time.Second,
		QueueName:    queueName,
	}
}
