package blobcache

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/pathology-bites/slidedex/internal/db"
	"github.com/pathology-bites/slidedex/internal/domain"
)

type mockSource struct {
	data  []byte
	err   error
	calls int
}

func (m *mockSource) Fetch(_ context.Context, _ domain.Location) ([]byte, error) {
	m.calls++
	return m.data, m.err
}

// mockKVStore implements the consumer interface for tests.
type mockKVStore struct {
	getFn func(ctx context.Context, key string) ([]byte, error)
	setFn func(ctx context.Context, key string, value []byte, ttl time.Duration) error
	delFn func(ctx context.Context, key string) error
}

func (m *mockKVStore) Get(ctx context.Context, key string) ([]byte, error) {
	if m.getFn != nil {
		return m.getFn(ctx, key)
	}
	return nil, db.ErrKeyNotFound
}

func (m *mockKVStore) SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if m.setFn != nil {
		return m.setFn(ctx, key, value, ttl)
	}
	return nil
}

func (m *mockKVStore) Del(ctx context.Context, key string) error {
	if m.delFn != nil {
		return m.delFn(ctx, key)
	}
	return nil
}

func newTestCachedSource(t *testing.T, inner *mockSource) (*CachedSource, *mockKVStore) {
	t.Helper()
	ms := &mockKVStore{}
	cs := New(inner, ms, 10*time.Minute, "slidedex:", nil, zap.NewNop())
	return cs, ms
}
