package health

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/matbakh-app/matbakh-visibility-boost-sub012/pkg/contracts"
)

type entry struct {
	status  Status
	expires time.Time
}

// DefaultProbeTimeout bounds a shared probe when none is configured.
const DefaultProbeTimeout = 5 * time.Second

// Cache serves route health from a TTL snapshot. Concurrent misses for the
// same route share one probe. The shared probe is detached from the caller
// that started it, so a cancelled caller never poisons the cache. A failed
// probe is cached as unavailable.
type Cache struct {
	inner        Checker
	ttl          time.Duration
	probeTimeout time.Duration
	clock        func() time.Time
	logger       *slog.Logger
	group        singleflight.Group

	mu      sync.RWMutex
	entries map[contracts.RouteType]entry
}

// NewCache wraps inner with a TTL cache.
func NewCache(inner Checker, ttl time.Duration) *Cache {
	return &Cache{
		inner:        inner,
		ttl:          ttl,
		probeTimeout: DefaultProbeTimeout,
		clock:        time.Now,
		logger:       slog.Default().With("component", "health.cache"),
		entries:      make(map[contracts.RouteType]entry),
	}
}

// WithProbeTimeout bounds each shared probe.
func (c *Cache) WithProbeTimeout(d time.Duration) *Cache {
	if d > 0 {
		c.probeTimeout = d
	}
	return c
}

// WithClock overrides clock for testing.
func (c *Cache) WithClock(clock func() time.Time) *Cache {
	c.clock = clock
	return c
}

func (c *Cache) CheckRouteHealth(ctx context.Context, path contracts.RoutingPath) (Status, error) {
	route := path.RouteType
	now := c.clock()

	c.mu.RLock()
	e, ok := c.entries[route]
	c.mu.RUnlock()
	if ok && now.Before(e.expires) {
		return e.status, nil
	}

	ch := c.group.DoChan(string(route), func() (any, error) {
		probeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.probeTimeout)
		defer cancel()
		status, err := c.inner.CheckRouteHealth(probeCtx, path)
		if err != nil {
			c.logger.WarnContext(probeCtx, "health probe failed", "route", route, "error", err)
			status = StatusUnavailable
		}
		c.mu.Lock()
		c.entries[route] = entry{status: status, expires: c.clock().Add(c.ttl)}
		c.mu.Unlock()
		return status, nil
	})

	// A caller that gives up leaves the probe running for everyone else.
	select {
	case res := <-ch:
		return res.Val.(Status), nil
	case <-ctx.Done():
		return StatusUnavailable, ctx.Err()
	}
}

// Invalidate drops the cached state of a route.
func (c *Cache) Invalidate(route contracts.RouteType) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, route)
}

// Snapshot returns the cached states that have not expired.
func (c *Cache) Snapshot() map[contracts.RouteType]Status {
	now := c.clock()
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[contracts.RouteType]Status, len(c.entries))
	for r, e := range c.entries {
		if now.Before(e.expires) {
			out[r] = e.status
		}
	}
	return out
}
