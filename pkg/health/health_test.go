package health_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matbakh-app/matbakh-visibility-boost-sub012/pkg/contracts"
	"github.com/matbakh-app/matbakh-visibility-boost-sub012/pkg/health"
)

var (
	directPath      = contracts.RoutingPath{RouteType: contracts.RouteDirect}
	integrationPath = contracts.RoutingPath{RouteType: contracts.RouteIntegration}
)

func TestParseStatus(t *testing.T) {
	s, err := health.ParseStatus(" Degraded ")
	require.NoError(t, err)
	assert.Equal(t, health.StatusDegraded, s)
	assert.True(t, s.Usable())
	assert.False(t, health.StatusUnavailable.Usable())

	_, err = health.ParseStatus("on-fire")
	assert.Error(t, err)
}

func TestBoard(t *testing.T) {
	b := health.NewBoard()
	ctx := context.Background()

	s, err := b.CheckRouteHealth(ctx, directPath)
	require.NoError(t, err)
	assert.Equal(t, health.StatusHealthy, s)

	b.Set(contracts.RouteDirect, health.StatusUnavailable)
	s, _ = b.CheckRouteHealth(ctx, directPath)
	assert.Equal(t, health.StatusUnavailable, s)
	s, _ = b.CheckRouteHealth(ctx, integrationPath)
	assert.Equal(t, health.StatusHealthy, s)
}

func TestCache_TTL(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	board := health.NewBoard()
	var probes atomic.Int32
	inner := health.CheckerFunc(func(ctx context.Context, p contracts.RoutingPath) (health.Status, error) {
		probes.Add(1)
		return board.CheckRouteHealth(ctx, p)
	})
	cache := health.NewCache(inner, 10*time.Second).WithClock(func() time.Time { return now })
	ctx := context.Background()

	s, _ := cache.CheckRouteHealth(ctx, directPath)
	assert.Equal(t, health.StatusHealthy, s)

	board.Set(contracts.RouteDirect, health.StatusDegraded)
	s, _ = cache.CheckRouteHealth(ctx, directPath)
	assert.Equal(t, health.StatusHealthy, s, "served from cache")
	assert.Equal(t, int32(1), probes.Load())

	now = now.Add(11 * time.Second)
	s, _ = cache.CheckRouteHealth(ctx, directPath)
	assert.Equal(t, health.StatusDegraded, s)
	assert.Equal(t, int32(2), probes.Load())

	board.Set(contracts.RouteDirect, health.StatusHealthy)
	cache.Invalidate(contracts.RouteDirect)
	s, _ = cache.CheckRouteHealth(ctx, directPath)
	assert.Equal(t, health.StatusHealthy, s)
	assert.Equal(t, map[contracts.RouteType]health.Status{contracts.RouteDirect: health.StatusHealthy}, cache.Snapshot())
}

func TestCache_ProbeErrorIsUnavailable(t *testing.T) {
	inner := health.CheckerFunc(func(context.Context, contracts.RoutingPath) (health.Status, error) {
		return health.StatusHealthy, errors.New("probe timeout")
	})
	cache := health.NewCache(inner, time.Minute)

	s, err := cache.CheckRouteHealth(context.Background(), integrationPath)
	require.NoError(t, err)
	assert.Equal(t, health.StatusUnavailable, s)
}

func TestCache_CoalescesConcurrentProbes(t *testing.T) {
	var probes atomic.Int32
	release := make(chan struct{})
	inner := health.CheckerFunc(func(context.Context, contracts.RoutingPath) (health.Status, error) {
		probes.Add(1)
		<-release
		return health.StatusHealthy, nil
	})
	cache := health.NewCache(inner, time.Minute)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s, _ := cache.CheckRouteHealth(context.Background(), directPath)
			assert.Equal(t, health.StatusHealthy, s)
		}()
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.LessOrEqual(t, probes.Load(), int32(2))
}

func TestCache_CancelledCallerDoesNotPoisonSharedProbe(t *testing.T) {
	var probes atomic.Int32
	inner := health.CheckerFunc(func(ctx context.Context, _ contracts.RoutingPath) (health.Status, error) {
		probes.Add(1)
		select {
		case <-time.After(50 * time.Millisecond):
			return health.StatusHealthy, nil
		case <-ctx.Done():
			return health.StatusUnavailable, ctx.Err()
		}
	})
	cache := health.NewCache(inner, time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	s, err := cache.CheckRouteHealth(ctx, integrationPath)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, health.StatusUnavailable, s)

	s, err = cache.CheckRouteHealth(context.Background(), integrationPath)
	require.NoError(t, err)
	assert.Equal(t, health.StatusHealthy, s)
	assert.Equal(t, int32(1), probes.Load(), "the live caller joins or reuses the detached probe")
	assert.Equal(t, health.StatusHealthy, cache.Snapshot()[contracts.RouteIntegration])
}

func TestCache_ProbeTimeout(t *testing.T) {
	inner := health.CheckerFunc(func(ctx context.Context, _ contracts.RoutingPath) (health.Status, error) {
		<-ctx.Done()
		return health.StatusHealthy, ctx.Err()
	})
	cache := health.NewCache(inner, time.Minute).WithProbeTimeout(20 * time.Millisecond)

	s, err := cache.CheckRouteHealth(context.Background(), directPath)
	require.NoError(t, err)
	assert.Equal(t, health.StatusUnavailable, s)
}

func TestHTTPProber(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/ok", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/degraded", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"status":"degraded"}`))
	})
	mux.HandleFunc("/busy", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})
	mux.HandleFunc("/down", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	tests := []struct {
		endpoint string
		want     health.Status
	}{
		{"/ok", health.StatusHealthy},
		{"/degraded", health.StatusDegraded},
		{"/busy", health.StatusDegraded},
		{"/down", health.StatusUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.endpoint, func(t *testing.T) {
			p := health.NewHTTPProber(map[contracts.RouteType]string{contracts.RouteDirect: srv.URL + tt.endpoint}, time.Second)
			s, err := p.CheckRouteHealth(context.Background(), directPath)
			require.NoError(t, err)
			assert.Equal(t, tt.want, s)
		})
	}

	p := health.NewHTTPProber(map[contracts.RouteType]string{contracts.RouteDirect: "http://127.0.0.1:1/unreachable"}, 200*time.Millisecond)
	_, err := p.CheckRouteHealth(context.Background(), directPath)
	assert.Error(t, err)

	s, err := p.CheckRouteHealth(context.Background(), integrationPath)
	require.NoError(t, err)
	assert.Equal(t, health.StatusHealthy, s, "routes without an endpoint are not probed")
}
