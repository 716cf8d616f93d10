package health

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/matbakh-app/matbakh-visibility-boost-sub012/pkg/contracts"
)

// RedisBoard shares route states between router replicas. Reports expire
// after TTL so a dead reporter cannot pin a route in one state forever.
type RedisBoard struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisBoard creates a board backed by Redis.
func NewRedisBoard(addr, password string, db int, ttl time.Duration) *RedisBoard {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return NewRedisBoardWithClient(rdb, ttl)
}

// NewRedisBoardWithClient wraps an existing client.
func NewRedisBoardWithClient(client *redis.Client, ttl time.Duration) *RedisBoard {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &RedisBoard{client: client, prefix: "hybridrouter:health:", ttl: ttl}
}

func (b *RedisBoard) key(route contracts.RouteType) string {
	return b.prefix + string(route)
}

// Set publishes the state of a route.
func (b *RedisBoard) Set(ctx context.Context, route contracts.RouteType, s Status) error {
	if err := b.client.Set(ctx, b.key(route), string(s), b.ttl).Err(); err != nil {
		return fmt.Errorf("health: publish %s: %w", route, err)
	}
	return nil
}

// Clear removes a published state.
func (b *RedisBoard) Clear(ctx context.Context, route contracts.RouteType) error {
	return b.client.Del(ctx, b.key(route)).Err()
}

// CheckRouteHealth reads the published state. A missing key is healthy; a
// Redis failure is returned as an error.
func (b *RedisBoard) CheckRouteHealth(ctx context.Context, path contracts.RoutingPath) (Status, error) {
	val, err := b.client.Get(ctx, b.key(path.RouteType)).Result()
	if errors.Is(err, redis.Nil) {
		return StatusHealthy, nil
	}
	if err != nil {
		return StatusUnavailable, fmt.Errorf("health: read %s: %w", path.RouteType, err)
	}
	return ParseStatus(val)
}

// Ping checks connectivity.
func (b *RedisBoard) Ping(ctx context.Context) error {
	return b.client.Ping(ctx).Err()
}

// Close closes the client.
func (b *RedisBoard) Close() error {
	return b.client.Close()
}
