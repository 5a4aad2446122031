package cache

import (
	"context"
	"log"
	"strings"

	"github.com/redis/go-redis/v9"
)

var (
	newRedisClient = func(opts *redis.Options) *redis.Client {
		return redis.NewClient(opts)
	}
	pingRedis = func(ctx context.Context, client *redis.Client) error {
		return client.Ping(ctx).Err()
	}
	parseRedisURL = redis.ParseURL
)

// InitRedis connects to the given address, which may be a plain
// host:port or a redis:// URL.
func InitRedis(ctx context.Context, addr string) (*redis.Client, error) {
	if addr == "" {
		addr = "localhost:6379"
	}

	opts := &redis.Options{Addr: addr}
	if strings.HasPrefix(addr, "redis://") || strings.HasPrefix(addr, "rediss://") {
		parsed, err := parseRedisURL(addr)
		if err != nil {
			return nil, err
		}
		opts = parsed
	}

	client := newRedisClient(opts)
	if err := pingRedis(ctx, client); err != nil {
		return nil, err
	}
	log.Println("Connected to Redis")
	return client, nil
}
