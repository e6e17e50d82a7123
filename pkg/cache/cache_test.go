package cache

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestNullCache(t *testing.T) {
	ctx := context.Background()
	c := NewNullCache()
	defer c.Close()

	if err := c.Set(ctx, "key", []byte("value"), time.Hour); err != nil {
		t.Errorf("Set error: %v", err)
	}
	data, hit, err := c.Get(ctx, "key")
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if hit || data != nil {
		t.Error("NullCache should not store data")
	}
	if err := c.Delete(ctx, "key"); err != nil {
		t.Errorf("Delete error: %v", err)
	}
}

func TestFileCache(t *testing.T) {
	ctx := context.Background()
	c, err := NewFileCache(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	if _, hit, _ := c.Get(ctx, "missing"); hit {
		t.Error("expected miss for unknown key")
	}

	if err := c.Set(ctx, "react", []byte(`{"name":"react"}`), time.Hour); err != nil {
		t.Fatalf("Set: %v", err)
	}
	data, hit, err := c.Get(ctx, "react")
	if err != nil || !hit {
		t.Fatalf("Get = %v, %v", hit, err)
	}
	if string(data) != `{"name":"react"}` {
		t.Errorf("Get data = %s", data)
	}

	if err := c.Delete(ctx, "react"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, hit, _ := c.Get(ctx, "react"); hit {
		t.Error("expected miss after Delete")
	}
	if err := c.Delete(ctx, "react"); err != nil {
		t.Errorf("second Delete should be nil, got %v", err)
	}
}

func TestFileCacheExpiry(t *testing.T) {
	ctx := context.Background()
	c, _ := NewFileCache(t.TempDir())

	if err := c.Set(ctx, "k", []byte("v"), time.Nanosecond); err != nil {
		t.Fatal(err)
	}
	time.Sleep(5 * time.Millisecond)
	if _, hit, _ := c.Get(ctx, "k"); hit {
		t.Error("expired entry should be a miss")
	}
	if _, err := os.Stat(c.path("k")); !os.IsNotExist(err) {
		t.Error("expired entry should be removed from disk")
	}
}

func TestFileCacheCorruptEntry(t *testing.T) {
	ctx := context.Background()
	c, _ := NewFileCache(t.TempDir())

	p := c.path("k")
	if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(p, []byte("garbage"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, hit, err := c.Get(ctx, "k"); hit || err != nil {
		t.Errorf("corrupt entry: hit=%v err=%v", hit, err)
	}
}

func TestFileCacheClear(t *testing.T) {
	ctx := context.Background()
	c, _ := NewFileCache(t.TempDir())
	_ = c.Set(ctx, "a", []byte("1"), 0)
	_ = c.Set(ctx, "b", []byte("2"), 0)

	if err := c.Clear(); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	entries, err := os.ReadDir(c.Dir())
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("cache dir has %d entries after Clear", len(entries))
	}
}

func TestHash(t *testing.T) {
	h1 := Hash([]byte("hello"))
	if h1 != Hash([]byte("hello")) {
		t.Error("Hash should be deterministic")
	}
	if h1 == Hash([]byte("world")) {
		t.Error("Different inputs should produce different hashes")
	}
	if len(h1) != 64 {
		t.Errorf("Hash length should be 64, got %d", len(h1))
	}
}

func TestDefaultKeyer(t *testing.T) {
	k := NewDefaultKeyer()

	if got := k.HTTPKey("npm:", "react"); got != "http:npm::react" {
		t.Errorf("HTTPKey = %s", got)
	}

	a := k.PackumentKey("https://registry.npmjs.org/", "react")
	b := k.PackumentKey("https://registry.npmjs.org", "react")
	if a != b {
		t.Error("trailing slash on registry should not change the key")
	}
	if a == k.PackumentKey("https://npm.example.com", "react") {
		t.Error("different registries should produce different keys")
	}
	if !strings.HasPrefix(a, "packument:") {
		t.Errorf("PackumentKey = %s", a)
	}
	if k.ManifestKey("https://x/a.tgz") == k.ManifestKey("https://x/b.tgz") {
		t.Error("ManifestKey should depend on the URL")
	}
}

func TestScopedKeyer(t *testing.T) {
	scoped := NewScopedKeyer(nil, "user:123:")
	if got := scoped.HTTPKey("npm:", "express"); got != "user:123:http:npm::express" {
		t.Errorf("HTTPKey = %s", got)
	}
	if got := scoped.PackumentKey("r", "n"); !strings.HasPrefix(got, "user:123:packument:") {
		t.Errorf("PackumentKey = %s", got)
	}
}

func TestTokenScope(t *testing.T) {
	if TokenScope("") != "" {
		t.Error("empty token should have no scope")
	}
	a, b := TokenScope("secret-a"), TokenScope("secret-b")
	if a == b || !strings.HasPrefix(a, "auth:") {
		t.Errorf("TokenScope: %q %q", a, b)
	}
	if strings.Contains(a, "secret") {
		t.Error("scope must not leak the token")
	}
}

func TestOpen(t *testing.T) {
	ctx := context.Background()

	c, err := Open(ctx, Config{Dir: t.TempDir()})
	if err != nil {
		t.Fatalf("Open file: %v", err)
	}
	if _, ok := c.(*FileCache); !ok {
		t.Errorf("default backend = %T, want *FileCache", c)
	}

	c, err = Open(ctx, Config{Backend: BackendNone})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := c.(NullCache); !ok {
		t.Errorf("none backend = %T", c)
	}

	if _, err := Open(ctx, Config{Backend: "memcached"}); err == nil {
		t.Error("unknown backend should fail")
	}
	if _, err := Open(ctx, Config{Backend: BackendFile}); err == nil {
		t.Error("file backend without dir should fail")
	}
}

type countingHooks struct{ hits, misses, sets int }

func (h *countingHooks) OnCacheHit(context.Context, string)      { h.hits++ }
func (h *countingHooks) OnCacheMiss(context.Context, string)     { h.misses++ }
func (h *countingHooks) OnCacheSet(context.Context, string, int) { h.sets++ }

func TestInstrumented(t *testing.T) {
	ctx := context.Background()
	fc, _ := NewFileCache(t.TempDir())
	hooks := &countingHooks{}
	c := WithHooks(fc, hooks, "packument")

	_, _, _ = c.Get(ctx, "k")
	_ = c.Set(ctx, "k", []byte("v"), 0)
	_, _, _ = c.Get(ctx, "k")

	if hooks.hits != 1 || hooks.misses != 1 || hooks.sets != 1 {
		t.Errorf("hooks = %+v", *hooks)
	}
}
