package discovery

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flowgate/internal/domain"
)

type fakeSource struct {
	mu    sync.Mutex
	nodes []domain.WebhookNode
	err   error
	delay time.Duration
	calls atomic.Int64
}

func (f *fakeSource) Refresh(ctx context.Context) ([]domain.WebhookNode, error) {
	f.calls.Add(1)
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.nodes, f.err
}

func (f *fakeSource) set(nodes []domain.WebhookNode, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nodes = nodes
	f.err = err
}

func newTestCache(source *fakeSource, ttl time.Duration) *Cache {
	return NewCache(CacheOptions{
		Source:  source,
		Builder: IndexBuilder{BaseURL: "http://n8n:5678"},
		TTL:     ttl,
	})
}

func TestCache_StartsEmptyAndStale(t *testing.T) {
	cache := newTestCache(&fakeSource{}, time.Minute)
	assert.True(t, cache.IsStale())
	_, ok := cache.Lookup("anything")
	assert.False(t, ok)
}

func TestCache_RefreshIfNeededPopulatesSnapshot(t *testing.T) {
	source := &fakeSource{nodes: []domain.WebhookNode{
		{WorkflowID: "wf1", NodeName: "echo", WebhookID: "abc"},
	}}
	cache := newTestCache(source, time.Minute)

	require.NoError(t, cache.RefreshIfNeeded(context.Background()))
	assert.False(t, cache.IsStale())

	endpoint, ok := cache.Lookup("echo")
	require.True(t, ok)
	assert.Equal(t, "http://n8n:5678/webhook/abc", endpoint.URL)
}

func TestCache_FreshSnapshotSkipsRefresh(t *testing.T) {
	source := &fakeSource{}
	cache := newTestCache(source, time.Minute)

	require.NoError(t, cache.RefreshIfNeeded(context.Background()))
	require.NoError(t, cache.RefreshIfNeeded(context.Background()))
	assert.Equal(t, int64(1), source.calls.Load())
}

func TestCache_ForceRefreshBypassesTTL(t *testing.T) {
	source := &fakeSource{}
	cache := newTestCache(source, time.Minute)

	require.NoError(t, cache.RefreshIfNeeded(context.Background()))
	require.NoError(t, cache.ForceRefresh(context.Background()))
	assert.Equal(t, int64(2), source.calls.Load())
}

func TestCache_ConcurrentStaleCallersShareOneRefresh(t *testing.T) {
	source := &fakeSource{delay: 50 * time.Millisecond}
	cache := newTestCache(source, time.Minute)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = cache.RefreshIfNeeded(context.Background())
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(1), source.calls.Load())
}

func TestCache_RefreshErrorKeepsPreviousSnapshot(t *testing.T) {
	source := &fakeSource{nodes: []domain.WebhookNode{
		{WorkflowID: "wf1", NodeName: "echo", WebhookID: "abc"},
	}}
	cache := newTestCache(source, time.Minute)
	require.NoError(t, cache.ForceRefresh(context.Background()))

	source.set(nil, errors.New("boom"))
	err := cache.ForceRefresh(context.Background())
	require.Error(t, err)

	_, ok := cache.Lookup("echo")
	assert.True(t, ok, "failed refresh must not clear the snapshot")
}

func TestCache_LookupProbeOrderPrefersRawKey(t *testing.T) {
	source := &fakeSource{nodes: []domain.WebhookNode{
		{WorkflowID: "wfRaw", NodeName: "Echo", WebhookID: "raw"},
		{WorkflowID: "wfLower", NodeName: "echo", WebhookID: "lower"},
	}}
	cache := newTestCache(source, time.Minute)
	require.NoError(t, cache.ForceRefresh(context.Background()))

	endpoint, ok := cache.Lookup("Echo")
	require.True(t, ok)
	assert.Equal(t, "wfRaw", endpoint.SourceWorkflowID)

	// The lowercase probe comes second.
	endpoint, ok = cache.Lookup("ECHO")
	require.True(t, ok)
	assert.Equal(t, "wfRaw", endpoint.SourceWorkflowID)
}

func TestCache_LookupPrefixedForm(t *testing.T) {
	source := &fakeSource{nodes: []domain.WebhookNode{
		{WorkflowID: "wf1", NodeName: "chat", WebhookID: "abc"},
	}}
	cache := newTestCache(source, time.Minute)
	require.NoError(t, cache.ForceRefresh(context.Background()))

	direct, ok := cache.Lookup("chat")
	require.True(t, ok)
	prefixed, ok := cache.Lookup("functions.chat")
	require.True(t, ok)
	assert.Equal(t, direct.URL, prefixed.URL)
}

func TestCache_EveryIndexKeyResolvesToItsEndpoint(t *testing.T) {
	source := &fakeSource{nodes: []domain.WebhookNode{
		{WorkflowID: "wf1", WorkflowName: "Chat Helpers", NodeName: "When chat message received", WebhookID: "90f0"},
		{WorkflowID: "wf2", WorkflowName: "Orders", NodeName: "order lookup", Path: "orders/search"},
	}}
	cache := newTestCache(source, time.Minute)
	require.NoError(t, cache.ForceRefresh(context.Background()))

	snapshot := cache.Snapshot()
	require.NotEmpty(t, snapshot.Index)
	for key, want := range snapshot.Index {
		got, ok := cache.Lookup(key)
		require.True(t, ok, "key %q", key)
		assert.Equal(t, want.URL, got.URL, "key %q", key)
	}
}

func TestCache_CanceledWaiterDoesNotAbortRefresh(t *testing.T) {
	source := &fakeSource{
		nodes: []domain.WebhookNode{{WorkflowID: "wf1", NodeName: "echo", WebhookID: "abc"}},
		delay: 100 * time.Millisecond,
	}
	cache := newTestCache(source, time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err := cache.RefreshIfNeeded(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	// The in-flight rebuild keeps going and installs its snapshot.
	require.Eventually(t, func() bool {
		_, ok := cache.Lookup("echo")
		return ok
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, int64(1), source.calls.Load())
}
