package cache

import "strings"

// Keyer builds cache keys.
type Keyer interface {
	// HTTPKey keys a raw HTTP response under a namespace such as "npm:".
	HTTPKey(namespace, key string) string

	// PackumentKey keys the packument of name fetched from registry.
	PackumentKey(registry, name string) string

	// ManifestKey keys the package.json extracted from a tarball URL.
	ManifestKey(url string) string
}

// DefaultKeyer produces unscoped keys.
type DefaultKeyer struct{}

// NewDefaultKeyer returns the default key builder.
func NewDefaultKeyer() Keyer { return DefaultKeyer{} }

// HTTPKey returns "http:<namespace>:<key>".
func (DefaultKeyer) HTTPKey(namespace, key string) string {
	return "http:" + namespace + ":" + key
}

// PackumentKey hashes the registry so that keys stay short and mirrors of
// the same name do not collide.
func (DefaultKeyer) PackumentKey(registry, name string) string {
	return hashKey("packument", strings.TrimSuffix(registry, "/"), name)
}

// ManifestKey hashes the tarball URL.
func (DefaultKeyer) ManifestKey(url string) string {
	return hashKey("manifest", url)
}

// ScopedKeyer wraps a Keyer with a prefix. Private registries get a prefix
// derived from the auth token so that responses fetched with one token are
// never served to another.
type ScopedKeyer struct {
	inner  Keyer
	prefix string
}

// NewScopedKeyer creates a keyer with a prefix.
// The prefix is prepended to all generated keys.
func NewScopedKeyer(inner Keyer, prefix string) Keyer {
	if inner == nil {
		inner = NewDefaultKeyer()
	}
	return &ScopedKeyer{inner: inner, prefix: prefix}
}

// TokenScope returns a prefix for a registry auth token, or "" for none.
func TokenScope(token string) string {
	if token == "" {
		return ""
	}
	return "auth:" + Hash([]byte(token))[:16] + ":"
}

func (k *ScopedKeyer) HTTPKey(namespace, key string) string {
	return k.prefix + k.inner.HTTPKey(namespace, key)
}

func (k *ScopedKeyer) PackumentKey(registry, name string) string {
	return k.prefix + k.inner.PackumentKey(registry, name)
}

func (k *ScopedKeyer) ManifestKey(url string) string {
	return k.prefix + k.inner.ManifestKey(url)
}
