package respcache

import (
	"context"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/newsdigest/internal/db"
	"github.com/kailas-cloud/newsdigest/internal/domain"
)

type mockGenerator struct {
	resp  domain.InferenceResponse
	err   error
	calls int
}

func (m *mockGenerator) Generate(_ context.Context, _ domain.InferenceRequest) (domain.InferenceResponse, error) {
	m.calls++
	return m.resp, m.err
}

// memKV is an in-memory implementation of the consumer interface.
type memKV struct {
	mu     sync.Mutex
	data   map[string][]byte
	ttls   map[string]time.Duration
	getErr error
	setErr error
}

func newMemKV() *memKV {
	return &memKV{data: make(map[string][]byte), ttls: make(map[string]time.Duration)}
}

func (m *memKV) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	v, ok := m.data[key]
	if !ok {
		return nil, db.ErrKeyNotFound
	}
	return v, nil
}

func (m *memKV) Set(ctx context.Context, key string, value []byte) error {
	return m.SetWithTTL(ctx, key, value, 0)
}

func (m *memKV) SetWithTTL(_ context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.setErr != nil {
		return m.setErr
	}
	m.data[key] = value
	m.ttls[key] = ttl
	return nil
}

func (m *memKV) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.data)
}

func newTestCachedGenerator(t *testing.T, inner *mockGenerator, ttl time.Duration) (*CachedGenerator, *memKV) {
	t.Helper()
	kv := newMemKV()
	return New(inner, kv, "test-model", ttl, nil, zap.NewNop()), kv
}
