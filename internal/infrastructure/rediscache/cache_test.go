package rediscache

import (
	"context"
	"sync"
	"testing"
	"time"

	"provindex/internal/application"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryStore struct {
	mu        sync.Mutex
	reports   []application.RunReport
	listCalls int
}

func (m *memoryStore) StoreRun(ctx context.Context, report application.RunReport) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reports = append([]application.RunReport{report}, m.reports...)
	return nil
}

func (m *memoryStore) ListRuns(ctx context.Context, filter application.RunQueryFilter) ([]application.RunReport, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listCalls++
	out := make([]application.RunReport, len(m.reports))
	copy(out, m.reports)
	return out, nil
}

func (m *memoryStore) Ping(ctx context.Context) error {
	return nil
}

func newCachedStore(t *testing.T) (*ReportStore, *memoryStore, *miniredis.Miniredis) {
	t.Helper()
	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	base := &memoryStore{}
	store := NewWithClient(base, client, time.Minute)
	t.Cleanup(func() { _ = store.Close() })
	return store, base, server
}

func TestReportStoreCachesListings(t *testing.T) {
	store, base, _ := newCachedStore(t)
	ctx := context.Background()
	require.NoError(t, store.StoreRun(ctx, application.RunReport{RunID: "run-1", DeliveredCount: 4}))

	first, err := store.ListRuns(ctx, application.RunQueryFilter{Limit: 10})
	require.NoError(t, err)
	second, err := store.ListRuns(ctx, application.RunQueryFilter{Limit: 10})
	require.NoError(t, err)

	assert.Equal(t, 1, base.listCalls)
	require.Len(t, second, 1)
	assert.Equal(t, first[0].RunID, second[0].RunID)
	assert.Equal(t, 4, second[0].DeliveredCount)

	_, err = store.ListRuns(ctx, application.RunQueryFilter{Limit: 5})
	require.NoError(t, err)
	assert.Equal(t, 2, base.listCalls)
}

func TestReportStoreInvalidatesOnWrite(t *testing.T) {
	store, base, server := newCachedStore(t)
	ctx := context.Background()

	_, err := store.ListRuns(ctx, application.RunQueryFilter{})
	require.NoError(t, err)
	require.NoError(t, store.StoreRun(ctx, application.RunReport{RunID: "run-2"}))

	version, err := server.Get(runCacheVersionKey)
	require.NoError(t, err)
	assert.Equal(t, "1", version)

	reports, err := store.ListRuns(ctx, application.RunQueryFilter{})
	require.NoError(t, err)
	require.Len(t, reports, 1)
	assert.Equal(t, "run-2", reports[0].RunID)
	assert.Equal(t, 2, base.listCalls)
}

func TestReportStoreFallsBackWhenRedisIsDown(t *testing.T) {
	store, base, server := newCachedStore(t)
	ctx := context.Background()
	server.Close()

	require.NoError(t, store.StoreRun(ctx, application.RunReport{RunID: "run-3"}))
	reports, err := store.ListRuns(ctx, application.RunQueryFilter{})
	require.NoError(t, err)
	require.Len(t, reports, 1)
	assert.Equal(t, 1, base.listCalls)
	assert.Error(t, store.Ping(ctx))
}

func TestNewWithoutAddressPassesThrough(t *testing.T) {
	base := &memoryStore{}
	store, err := New(base, Config{})
	require.NoError(t, err)

	_, err = store.ListRuns(context.Background(), application.RunQueryFilter{})
	require.NoError(t, err)
	_, err = store.ListRuns(context.Background(), application.RunQueryFilter{})
	require.NoError(t, err)
	assert.Equal(t, 2, base.listCalls)
	assert.NoError(t, store.Ping(context.Background()))
	assert.NoError(t, store.Close())
}

func TestNewRequiresBase(t *testing.T) {
	_, err := New(nil, Config{})
	assert.Error(t, err)
}
