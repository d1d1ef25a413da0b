package coordinator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"ai_config/internal/auth"
	"ai_config/internal/configstore"
	"ai_config/internal/models"
	"ai_config/internal/providers"
)

var errUnreachable = errors.New("dial tcp 10.0.0.1:5432: connection refused")

// gatedRemote is a MemoryRemote whose calls can be held back. Loads wait on
// loadGate when set; saves wait on the gate registered for their API key.
type gatedRemote struct {
	*configstore.MemoryRemote

	mu        sync.Mutex
	loadGate  chan struct{}
	saveGates map[string]chan struct{}
	loadErr   error
	saveErr   error
	loads     int
}

func newGatedRemote() *gatedRemote {
	return &gatedRemote{
		MemoryRemote: configstore.NewMemoryRemote(),
		saveGates:    make(map[string]chan struct{}),
	}
}

func (g *gatedRemote) holdLoads() chan struct{} {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.loadGate = make(chan struct{})
	return g.loadGate
}

func (g *gatedRemote) holdSave(apiKey string) chan struct{} {
	g.mu.Lock()
	defer g.mu.Unlock()
	ch := make(chan struct{})
	g.saveGates[apiKey] = ch
	return ch
}

func (g *gatedRemote) GetByUserID(ctx context.Context, userID string) (*models.ConfigRecord, error) {
	g.mu.Lock()
	gate, err := g.loadGate, g.loadErr
	g.loads++
	g.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	return g.MemoryRemote.GetByUserID(ctx, userID)
}

func (g *gatedRemote) Upsert(ctx context.Context, record *models.ConfigRecord) error {
	g.mu.Lock()
	gate, err := g.saveGates[record.APIKey], g.saveErr
	g.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if err != nil {
		return err
	}
	return g.MemoryRemote.Upsert(ctx, record)
}

func (g *gatedRemote) loadCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.loads
}

// seed stores a record directly, bypassing gates.
func (g *gatedRemote) seed(t *testing.T, rec models.ConfigRecord) {
	t.Helper()
	require.NoError(t, g.MemoryRemote.Upsert(context.Background(), &rec))
}

func (g *gatedRemote) record(t *testing.T, userID string) *models.ConfigRecord {
	t.Helper()
	rec, err := g.MemoryRemote.GetByUserID(context.Background(), userID)
	require.NoError(t, err)
	return rec
}

type fixture struct {
	local    *configstore.MemoryLocal
	remote   *gatedRemote
	identity *auth.StaticSupplier
	store    *configstore.Store
	notices  *noticeLog
}

func newFixture(userID string) *fixture {
	f := &fixture{
		local:    configstore.NewMemoryLocal(),
		remote:   newGatedRemote(),
		identity: auth.NewStaticSupplier(userID),
		notices:  &noticeLog{},
	}
	f.store = configstore.NewStore(f.local, f.identity, configstore.WithRemote(f.remote))
	return f
}

func (f *fixture) coordinator(t *testing.T, opts ...Option) *Coordinator {
	t.Helper()
	opts = append([]Option{WithNotifier(f.notices.add)}, opts...)
	c := New(f.store, providers.NewFactory(), opts...)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		c.Close(ctx)
	})
	return c
}

type noticeLog struct {
	mu      sync.Mutex
	notices []Notice
}

func (n *noticeLog) add(notice Notice) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notices = append(n.notices, notice)
}

func (n *noticeLog) kinds() []NoticeKind {
	n.mu.Lock()
	defer n.mu.Unlock()
	kinds := make([]NoticeKind, 0, len(n.notices))
	for _, notice := range n.notices {
		kinds = append(kinds, notice.Kind)
	}
	return kinds
}

func (n *noticeLog) all() []Notice {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]Notice(nil), n.notices...)
}

// recordingOutbox accepts every save without delivering it.
type recordingOutbox struct {
	mu      sync.Mutex
	records []models.ConfigRecord
}

func (o *recordingOutbox) Enqueue(_ context.Context, record models.ConfigRecord) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.records = append(o.records, record)
	return nil
}

func (o *recordingOutbox) len() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.records)
}

func waitIdle(t *testing.T, c *Coordinator) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, c.WaitIdle(ctx))
}
