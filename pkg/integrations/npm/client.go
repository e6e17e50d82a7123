package npm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/matzehuels/fyn/pkg/cache"
	"github.com/matzehuels/fyn/pkg/integrations"
	"github.com/matzehuels/fyn/pkg/manifest"
)

// DefaultRegistry is the public npm registry.
const DefaultRegistry = "https://registry.npmjs.org"

// Abbreviated ("corgi") metadata omits publish times and most descriptive
// fields but carries everything needed to resolve.
const corgiAccept = "application/vnd.npm.install-v1+json; q=1.0, application/json; q=0.8, */*"

// Packument is a registry document listing every published version of a
// package.
type Packument struct {
	Name     string                       `json:"name"`
	DistTags map[string]string            `json:"dist-tags"`
	Versions map[string]*manifest.Package `json:"versions"`
	Time     map[string]time.Time         `json:"time,omitempty"`
	Modified string                       `json:"modified,omitempty"`
}

// Config configures a registry client.
type Config struct {
	Registry string        // base URL, DefaultRegistry when empty
	Token    string        // bearer token for private registries
	Cache    cache.Cache   // nil disables caching
	Keyer    cache.Keyer   // nil uses cache.NewDefaultKeyer
	TTL      time.Duration // cache lifetime, cache.TTLPackument when zero
	FullMeta bool          // request full documents (needed for publish times)
}

// Client fetches packuments from an npm-compatible registry.
type Client struct {
	*integrations.Client
	baseURL  string
	keyer    cache.Keyer
	fullMeta bool
}

// NewClient creates a registry client.
func NewClient(cfg Config) *Client {
	if cfg.Registry == "" {
		cfg.Registry = DefaultRegistry
	}
	if cfg.TTL <= 0 {
		cfg.TTL = cache.TTLPackument
	}
	keyer := cfg.Keyer
	if keyer == nil {
		keyer = cache.NewDefaultKeyer()
	}
	if scope := cache.TokenScope(cfg.Token); scope != "" {
		keyer = cache.NewScopedKeyer(keyer, scope)
	}
	headers := map[string]string{"Accept": corgiAccept}
	if cfg.FullMeta {
		headers["Accept"] = "application/json"
	}
	if cfg.Token != "" {
		headers["Authorization"] = "Bearer " + cfg.Token
	}
	return &Client{
		Client:   integrations.NewClient(cfg.Cache, "npm:", cfg.TTL, headers),
		baseURL:  strings.TrimSuffix(cfg.Registry, "/"),
		keyer:    keyer,
		fullMeta: cfg.FullMeta,
	}
}

// Registry returns the registry base URL.
func (c *Client) Registry() string { return c.baseURL }

// PackumentKey returns the cache key used for name.
func (c *Client) PackumentKey(name string) string {
	key := c.keyer.PackumentKey(c.baseURL, name)
	if c.fullMeta {
		key += ":full"
	}
	return key
}

// FetchPackument returns the packument for name. If refresh is true the
// cache is bypassed.
func (c *Client) FetchPackument(ctx context.Context, name string, refresh bool) (*Packument, error) {
	var doc Packument
	err := c.Cached(ctx, c.PackumentKey(name), refresh, &doc, func() error {
		return c.fetch(ctx, name, &doc)
	})
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

func (c *Client) fetch(ctx context.Context, name string, doc *Packument) error {
	var raw wirePackument
	if err := c.Get(ctx, c.baseURL+"/"+integrations.EscapePackageName(name), &raw); err != nil {
		if errors.Is(err, integrations.ErrNotFound) {
			return fmt.Errorf("%w: npm package %s", err, name)
		}
		return err
	}
	*doc = raw.packument()
	return nil
}

// wirePackument tolerates the non-timestamp members of "time" such as
// "unpublished", which is an object.
type wirePackument struct {
	Name     string                       `json:"name"`
	DistTags map[string]string            `json:"dist-tags"`
	Versions map[string]*manifest.Package `json:"versions"`
	Time     map[string]json.RawMessage   `json:"time"`
	Modified string                       `json:"modified"`
}

func (w wirePackument) packument() Packument {
	p := Packument{
		Name:     w.Name,
		DistTags: w.DistTags,
		Versions: w.Versions,
		Modified: w.Modified,
	}
	if p.DistTags == nil {
		p.DistTags = map[string]string{}
	}
	if p.Versions == nil {
		p.Versions = map[string]*manifest.Package{}
	}
	for v, raw := range w.Time {
		var s string
		if json.Unmarshal(raw, &s) != nil {
			continue
		}
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			continue
		}
		if p.Time == nil {
			p.Time = make(map[string]time.Time, len(w.Time))
		}
		p.Time[v] = t
	}
	return p
}
