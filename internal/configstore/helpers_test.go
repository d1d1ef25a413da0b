package configstore

import (
	"context"
	"errors"
	"sync"

	"ai_config/internal/models"
)

var (
	errUnreachable = errors.New("dial tcp 10.0.0.1:5432: connection refused")
	errForbidden   = errors.New("permission denied for table ai_configs")
)

// flakyRemote wraps a MemoryRemote and fails a configurable number of calls.
type flakyRemote struct {
	*MemoryRemote

	mu        sync.Mutex
	err       error
	failsLeft int
	calls     int
}

func newFlakyRemote(err error, fails int) *flakyRemote {
	return &flakyRemote{MemoryRemote: NewMemoryRemote(), err: err, failsLeft: fails}
}

func (f *flakyRemote) fail() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.failsLeft != 0 {
		if f.failsLeft > 0 {
			f.failsLeft--
		}
		return f.err
	}
	return nil
}

func (f *flakyRemote) GetByUserID(ctx context.Context, userID string) (*models.ConfigRecord, error) {
	if err := f.fail(); err != nil {
		return nil, err
	}
	return f.MemoryRemote.GetByUserID(ctx, userID)
}

func (f *flakyRemote) Upsert(ctx context.Context, record *models.ConfigRecord) error {
	if err := f.fail(); err != nil {
		return err
	}
	return f.MemoryRemote.Upsert(ctx, record)
}

func (f *flakyRemote) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// recordingOutbox collects enqueued records.
type recordingOutbox struct {
	mu      sync.Mutex
	records []models.ConfigRecord
}

func (o *recordingOutbox) Enqueue(ctx context.Context, record models.ConfigRecord) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.records = append(o.records, record)
	return nil
}

func sampleRecord(user string, revision int64) models.ConfigRecord {
	return models.ConfigRecord{
		UserID:    user,
		Provider:  models.ProviderGemini,
		APIKey:    "gm-key",
		ModelName: "gemini-2.0-flash",
		Revision:  revision,
	}
}
