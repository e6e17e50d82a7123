//go:build integration

package cache

import (
	"context"
	"os"
	"testing"
	"time"
)

func exerciseBackend(t *testing.T, c Cache) {
	t.Helper()
	ctx := context.Background()
	key := "fyn-test-" + time.Now().Format(time.RFC3339Nano)

	if _, hit, err := c.Get(ctx, key); err != nil || hit {
		t.Fatalf("fresh key: hit=%v err=%v", hit, err)
	}
	if err := c.Set(ctx, key, []byte("payload"), time.Minute); err != nil {
		t.Fatalf("Set: %v", err)
	}
	data, hit, err := c.Get(ctx, key)
	if err != nil || !hit || string(data) != "payload" {
		t.Fatalf("Get = %q, %v, %v", data, hit, err)
	}
	if err := c.Delete(ctx, key); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, hit, _ := c.Get(ctx, key); hit {
		t.Error("expected miss after Delete")
	}
}

func TestRedisCache(t *testing.T) {
	url := os.Getenv("FYN_TEST_REDIS_URL")
	if url == "" {
		t.Skip("FYN_TEST_REDIS_URL not set")
	}
	c, err := NewRedisCache(context.Background(), url)
	if err != nil {
		t.Fatalf("NewRedisCache: %v", err)
	}
	defer c.Close()
	exerciseBackend(t, c)
}

func TestMongoCache(t *testing.T) {
	uri := os.Getenv("FYN_TEST_MONGO_URI")
	if uri == "" {
		t.Skip("FYN_TEST_MONGO_URI not set")
	}
	c, err := NewMongoCache(context.Background(), uri)
	if err != nil {
		t.Fatalf("NewMongoCache: %v", err)
	}
	defer c.Close()
	exerciseBackend(t, c)
}
