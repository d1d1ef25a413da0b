package configstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ai_config/internal/models"
	"ai_config/internal/queue"
	"ai_config/internal/storage"
	"ai_config/internal/utils"
)

// OutboxWorker delivers queued remote saves
type OutboxWorker struct {
	queue       queue.Queue
	dlq         queue.DeadLetterQueue
	remote      Remote
	config      *queue.Config
	stopChan    chan struct{}
	stoppedChan chan struct{}
}

// NewOutboxWorker creates a new outbox worker
func NewOutboxWorker(q queue.Queue, dlq queue.DeadLetterQueue, remote Remote, config *queue.Config) *OutboxWorker {
	if config == nil {
		config = queue.DefaultConfig("config-outbox")
	}

	return &OutboxWorker{
		queue:       q,
		dlq:         dlq,
		remote:      remote,
		config:      config,
		stopChan:    make(chan struct{}),
		stoppedChan: make(chan struct{}),
	}
}

// Start starts the worker goroutine
func (w *OutboxWorker) Start(ctx context.Context) {
	go w.run(ctx)
}

// Stop gracefully stops the worker
func (w *OutboxWorker) Stop() error {
	close(w.stopChan)
	<-w.stoppedChan
	return nil
}

// Enqueue adds a save to the queue
func (w *OutboxWorker) Enqueue(ctx context.Context, record models.ConfigRecord) error {
	return w.queue.Enqueue(ctx, queue.Job{
		Record:     record,
		EnqueuedAt: time.Now(),
	})
}

// run is the main worker loop
func (w *OutboxWorker) run(ctx context.Context) {
	defer close(w.stoppedChan)

	for {
		select {
		case <-w.stopChan:
			logger.Info("Outbox worker stopping")
			return
		case <-ctx.Done():
			logger.Info("Outbox worker context cancelled")
			return
		default:
			w.processBatch(ctx)
		}
	}
}

// processBatch delivers one batch of queued saves
func (w *OutboxWorker) processBatch(ctx context.Context) {
	jobs, err := w.queue.DequeueWithTimeout(ctx, w.config.BatchSize, w.config.BatchTimeout)
	if err != nil {
		if errors.Is(err, queue.ErrQueueClosed) || ctx.Err() != nil {
			w.sleep(ctx, w.config.BatchTimeout)
			return
		}
		logger.Error("Failed to dequeue config saves", "error", err)
		w.sleep(ctx, time.Second) // Back off on error
		return
	}

	if len(jobs) == 0 {
		return
	}

	jobs = coalesce(jobs)
	logger.Debug("Processing outbox batch", "count", len(jobs))

	for _, job := range jobs {
		if err := w.processJob(ctx, job); err != nil {
			logger.Error("Failed to deliver config save", "user_id", job.Record.UserID, "error", err)
		}
	}
}

// coalesce keeps only the newest job per user. Older snapshots would be
// rejected by the revision guard anyway.
func coalesce(jobs []queue.Job) []queue.Job {
	newest := make(map[string]int, len(jobs))
	out := make([]queue.Job, 0, len(jobs))
	for _, job := range jobs {
		idx, ok := newest[job.Record.UserID]
		if !ok {
			newest[job.Record.UserID] = len(out)
			out = append(out, job)
			continue
		}
		if job.Record.Revision > out[idx].Record.Revision {
			out[idx] = job
		}
	}
	return out
}

// processJob delivers a single save with retries
func (w *OutboxWorker) processJob(ctx context.Context, job queue.Job) error {
	var lastErr error
	for attempt := 0; attempt <= w.config.MaxRetries; attempt++ {
		if attempt > 0 {
			// Exponential backoff
			backoff := w.config.RetryBackoff * time.Duration(1<<uint(attempt-1))
			logger.Debug("Retrying config save", "attempt", attempt, "backoff", backoff)
			if !w.sleep(ctx, backoff) {
				return w.requeue(job, lastErr)
			}
		}

		record := job.Record
		err := w.remote.Upsert(ctx, &record)
		job.Attempts++
		if err == nil {
			logger.Debug("Config save delivered", "user_id", record.UserID, "revision", record.Revision)
			return nil
		}
		if errors.Is(err, storage.ErrStaleRevision) {
			logger.Debug("Dropping superseded config save", "user_id", record.UserID, "revision", record.Revision)
			return nil
		}

		lastErr = err
		job.LastError = err.Error()
		if !utils.IsRecoverableError(err) {
			break
		}
	}

	// Out of attempts or not worth retrying - add to dead letter queue
	if lastErr != nil && job.Attempts > w.config.MaxRetries {
		lastErr = fmt.Errorf("%w: %v", queue.ErrMaxRetriesExceeded, lastErr)
	}
	if w.dlq != nil {
		if err := w.dlq.Add(ctx, job, lastErr); err != nil {
			logger.Error("Failed to add to dead letter queue", "error", err)
		} else {
			logger.Warn("Config save moved to DLQ", "user_id", job.Record.UserID, "error", lastErr)
		}
	}

	return lastErr
}

// requeue puts a job back when the worker is shutting down mid-retry.
func (w *OutboxWorker) requeue(job queue.Job, lastErr error) error {
	if err := w.queue.Enqueue(context.Background(), job); err != nil {
		return fmt.Errorf("failed to requeue config save: %w", err)
	}
	return lastErr
}

// sleep waits for d, returning false if the worker is stopping.
func (w *OutboxWorker) sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-w.stopChan:
		return false
	case <-ctx.Done():
		return false
	}
}

// GetQueueLength returns the current queue length
func (w *OutboxWorker) GetQueueLength(ctx context.Context) (int, error) {
	return w.queue.Length(ctx)
}

// GetDeadLetterItems returns items from the dead letter queue
func (w *OutboxWorker) GetDeadLetterItems(ctx context.Context, maxItems int) ([]queue.DeadLetterItem, error) {
	if w.dlq == nil {
		return nil, fmt.Errorf("dead letter queue not configured")
	}
	return w.dlq.List(ctx, maxItems)
}

// RetryDeadLetterItem retries a failed save from the dead letter queue
func (w *OutboxWorker) RetryDeadLetterItem(ctx context.Context, id string) error {
	if w.dlq == nil {
		return fmt.Errorf("dead letter queue not configured")
	}

	items, err := w.dlq.List(ctx, 0)
	if err != nil {
		return fmt.Errorf("failed to list dead letter items: %w", err)
	}

	for _, dlItem := range items {
		if dlItem.ID == id {
			job := dlItem.Job
			job.Attempts = 0
			job.LastError = ""
			if err := w.queue.Enqueue(ctx, job); err != nil {
				return fmt.Errorf("failed to re-enqueue save: %w", err)
			}

			if err := w.dlq.Remove(ctx, id); err != nil {
				return fmt.Errorf("failed to remove from DLQ: %w", err)
			}

			return nil
		}
	}

	return queue.ErrItemNotFound
}
