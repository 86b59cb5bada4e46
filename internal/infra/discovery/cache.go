package discovery

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"flowgate/internal/domain"
)

// Cache holds the current discovery snapshot and funnels every rebuild
// through a single-flight group, so concurrent misses cost one network call.
// Readers load the snapshot through an atomic pointer; the snapshot itself is
// never mutated after Build.
type Cache struct {
	source         domain.WebhookSource
	builder        IndexBuilder
	ttl            time.Duration
	refreshTimeout time.Duration
	logger         *zap.Logger
	metrics        domain.Metrics

	snapshot atomic.Pointer[domain.DiscoverySnapshot]
	group    singleflight.Group
}

type CacheOptions struct {
	Source         domain.WebhookSource
	Builder        IndexBuilder
	TTL            time.Duration
	RefreshTimeout time.Duration
	Logger         *zap.Logger
	Metrics        domain.Metrics
}

func NewCache(opts CacheOptions) *Cache {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = time.Duration(domain.DefaultDiscoveryTTLSeconds) * time.Second
	}
	refreshTimeout := opts.RefreshTimeout
	if refreshTimeout <= 0 {
		refreshTimeout = time.Duration(domain.DefaultDiscoveryTimeoutSeconds) * time.Second
	}

	c := &Cache{
		source:         opts.Source,
		builder:        opts.Builder,
		ttl:            ttl,
		refreshTimeout: refreshTimeout,
		logger:         logger.Named("discovery_cache"),
		metrics:        opts.Metrics,
	}
	c.snapshot.Store(&domain.DiscoverySnapshot{Index: domain.NameIndex{}})
	return c
}

// Lookup probes the current snapshot with the variant order
// raw -> lowercased -> last segment -> prefixed form.
func (c *Cache) Lookup(name string) (domain.ToolEndpoint, bool) {
	index := c.snapshot.Load().Index
	for _, variant := range probeVariants(name) {
		if endpoint, ok := index[variant]; ok {
			c.observeLookup(true)
			return endpoint, true
		}
	}
	c.observeLookup(false)
	return domain.ToolEndpoint{}, false
}

// Snapshot returns the current immutable snapshot.
func (c *Cache) Snapshot() *domain.DiscoverySnapshot {
	return c.snapshot.Load()
}

// IsStale reports whether the snapshot has outlived the TTL. The initial
// empty snapshot is always stale.
func (c *Cache) IsStale() bool {
	return time.Since(c.snapshot.Load().BuiltAt) > c.ttl
}

// RefreshIfNeeded rebuilds the snapshot when it is stale. Concurrent callers
// share one in-flight rebuild.
func (c *Cache) RefreshIfNeeded(ctx context.Context) error {
	if !c.IsStale() {
		return nil
	}
	return c.refresh(ctx)
}

// ForceRefresh rebuilds regardless of TTL, through the same single-flight
// path. Used by the dispatcher's 404 retry.
func (c *Cache) ForceRefresh(ctx context.Context) error {
	return c.refresh(ctx)
}

func (c *Cache) refresh(ctx context.Context) error {
	ch := c.group.DoChan("refresh", func() (any, error) {
		// The rebuild outlives a canceled waiter so the snapshot still
		// lands for future calls; it carries its own timeout instead.
		refreshCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.refreshTimeout)
		defer cancel()

		start := time.Now()
		nodes, err := c.source.Refresh(refreshCtx)
		if c.metrics != nil {
			c.metrics.ObserveDiscoveryRefresh(time.Since(start), err)
		}
		if err != nil {
			c.logger.Warn("discovery refresh failed", zap.Error(err))
			return nil, err
		}

		index := c.builder.Build(nodes)
		c.snapshot.Store(&domain.DiscoverySnapshot{Index: index, BuiltAt: time.Now()})
		if c.metrics != nil {
			c.metrics.SetIndexSize(len(index))
		}
		c.logger.Info("discovery snapshot replaced",
			zap.Int("webhook_nodes", len(nodes)),
			zap.Int("index_keys", len(index)),
			zap.Duration("took", time.Since(start)),
		)
		return nil, nil
	})

	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Cache) observeLookup(hit bool) {
	if c.metrics != nil {
		c.metrics.ObserveIndexLookup(hit)
	}
}
