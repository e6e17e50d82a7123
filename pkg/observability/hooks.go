// Package observability defines instrumentation hooks for the resolver, the
// cache and the registry client.
//
// Hooks are plain interfaces with no-op defaults. They are handed to
// components through their constructors or options; there is no global
// registry. The CLI uses [ResolveHooks] to drive its live progress view.
//
//	hooks := observability.Hooks{Resolve: myProgress}.WithDefaults()
//	r := deps.NewResolver(src, deps.Options{Hooks: hooks.Resolve})
package observability

import (
	"context"
	"time"
)

// =============================================================================
// Resolve Hooks
// =============================================================================

// ResolveHooks receives events from a dependency resolve pass.
// Implementations must be safe for concurrent use.
type ResolveHooks interface {
	// OnResolveStart is called once per pass with the number of root requests.
	OnResolveStart(ctx context.Context, runID string, roots int)

	// OnDepthComplete is called after every item at depth has been admitted.
	OnDepthComplete(ctx context.Context, depth, items int)

	// OnPackageResolved is called when a request settles on a version.
	// source names where the version came from (lock, local, known, yarn, registry, nested).
	OnPackageResolved(ctx context.Context, id, source string)

	// OnOptionalChecked reports the outcome of an optional dependency probe.
	OnOptionalChecked(ctx context.Context, id string, passed bool)

	// OnResolveComplete is called once per pass.
	OnResolveComplete(ctx context.Context, packages int, duration time.Duration, err error)
}

// =============================================================================
// Cache Hooks
// =============================================================================

// CacheHooks receives events from cache operations.
type CacheHooks interface {
	// OnCacheHit records a cache hit.
	OnCacheHit(ctx context.Context, keyType string)

	// OnCacheMiss records a cache miss.
	OnCacheMiss(ctx context.Context, keyType string)

	// OnCacheSet records a cache write.
	OnCacheSet(ctx context.Context, keyType string, size int)
}

// =============================================================================
// HTTP Hooks
// =============================================================================

// HTTPHooks receives events from HTTP client operations.
type HTTPHooks interface {
	// OnRequest records an outgoing HTTP request.
	OnRequest(ctx context.Context, method, host, path string)

	// OnResponse records an HTTP response.
	OnResponse(ctx context.Context, method, host, path string, statusCode int, duration time.Duration)

	// OnError records an HTTP error (network failure, timeout).
	OnError(ctx context.Context, method, host, path string, err error)
}

// =============================================================================
// No-op Implementations
// =============================================================================

// NoopResolveHooks is a no-op implementation of ResolveHooks.
type NoopResolveHooks struct{}

func (NoopResolveHooks) OnResolveStart(context.Context, string, int)                   {}
func (NoopResolveHooks) OnDepthComplete(context.Context, int, int)                     {}
func (NoopResolveHooks) OnPackageResolved(context.Context, string, string)             {}
func (NoopResolveHooks) OnOptionalChecked(context.Context, string, bool)               {}
func (NoopResolveHooks) OnResolveComplete(context.Context, int, time.Duration, error) {}

// NoopCacheHooks is a no-op implementation of CacheHooks.
type NoopCacheHooks struct{}

func (NoopCacheHooks) OnCacheHit(context.Context, string)      {}
func (NoopCacheHooks) OnCacheMiss(context.Context, string)     {}
func (NoopCacheHooks) OnCacheSet(context.Context, string, int) {}

// NoopHTTPHooks is a no-op implementation of HTTPHooks.
type NoopHTTPHooks struct{}

func (NoopHTTPHooks) OnRequest(context.Context, string, string, string)                      {}
func (NoopHTTPHooks) OnResponse(context.Context, string, string, string, int, time.Duration) {}
func (NoopHTTPHooks) OnError(context.Context, string, string, string, error)                 {}

// =============================================================================
// Hook bundle
// =============================================================================

// Hooks bundles every hook category for wiring at startup.
type Hooks struct {
	Resolve ResolveHooks
	Cache   CacheHooks
	HTTP    HTTPHooks
}

// WithDefaults returns a copy with nil hooks replaced by no-ops.
func (h Hooks) WithDefaults() Hooks {
	if h.Resolve == nil {
		h.Resolve = NoopResolveHooks{}
	}
	if h.Cache == nil {
		h.Cache = NoopCacheHooks{}
	}
	if h.HTTP == nil {
		h.HTTP = NoopHTTPHooks{}
	}
	return h
}
