package cache

import (
	"context"
	"testing"

	"github.com/redis/go-redis/v9"
)

func stubClient(t *testing.T) *string {
	t.Helper()
	origNewClient := newRedisClient
	origPing := pingRedis
	t.Cleanup(func() {
		newRedisClient = origNewClient
		pingRedis = origPing
	})

	var capturedAddr string
	newRedisClient = func(opts *redis.Options) *redis.Client {
		capturedAddr = opts.Addr
		return redis.NewClient(opts)
	}
	pingRedis = func(ctx context.Context, client *redis.Client) error {
		return nil
	}
	return &capturedAddr
}

func TestInitRedisWithCustomAddr(t *testing.T) {
	captured := stubClient(t)

	if _, err := InitRedis(context.Background(), "redis:9999"); err != nil {
		t.Fatalf("init: %v", err)
	}
	if *captured != "redis:9999" {
		t.Fatalf("expected custom addr, got %s", *captured)
	}
}

func TestInitRedisDefaults(t *testing.T) {
	captured := stubClient(t)

	if _, err := InitRedis(context.Background(), ""); err != nil {
		t.Fatalf("init: %v", err)
	}
	if *captured != "localhost:6379" {
		t.Fatalf("expected default addr, got %s", *captured)
	}
}

func TestInitRedisParsesURL(t *testing.T) {
	captured := stubClient(t)

	if _, err := InitRedis(context.Background(), "redis://example:6380/2"); err != nil {
		t.Fatalf("init: %v", err)
	}
	if *captured != "example:6380" {
		t.Fatalf("expected parsed addr, got %s", *captured)
	}
}

func TestInitRedisBadURL(t *testing.T) {
	stubClient(t)

	if _, err := InitRedis(context.Background(), "redis://bad url %"); err == nil {
		t.Fatal("expected parse error")
	}
}
