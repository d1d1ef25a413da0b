package configstore

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"ai_config/internal/models"
	"ai_config/internal/storage"
)

// MemoryRemote is an in-process Remote with the same revision rule as the
// Postgres repository: an upsert only lands when its revision is newer.
type MemoryRemote struct {
	mu      sync.Mutex
	records map[string]models.ConfigRecord
	upserts int
}

// NewMemoryRemote returns an empty remote.
func NewMemoryRemote() *MemoryRemote {
	return &MemoryRemote{records: make(map[string]models.ConfigRecord)}
}

func (m *MemoryRemote) GetByUserID(ctx context.Context, userID string) (*models.ConfigRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	record, ok := m.records[userID]
	if !ok {
		return nil, storage.ErrConfigNotFound
	}
	return &record, nil
}

func (m *MemoryRemote) Upsert(ctx context.Context, record *models.ConfigRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	existing, ok := m.records[record.UserID]
	if ok {
		if existing.Revision >= record.Revision {
			return storage.ErrStaleRevision
		}
		record.ID = existing.ID
		record.CreatedAt = existing.CreatedAt
	} else {
		if record.ID == uuid.Nil {
			record.ID = uuid.New()
		}
		record.CreatedAt = now
	}
	record.UpdatedAt = now

	m.records[record.UserID] = *record
	m.upserts++
	return nil
}

// Upserts returns the number of writes that landed.
func (m *MemoryRemote) Upserts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.upserts
}
