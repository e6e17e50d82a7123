// Package source provides the package metadata the resolver reads: registry
// packuments, packages on the local filesystem and URL tarballs.
//
// A [Source] implements [deps.Source]; a [Dist] implements
// [deps.DistFetcher] by extracting registry tarballs below the install
// directory.
package source

import (
	"context"
	"io"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/fyn/pkg/deps"
	"github.com/matzehuels/fyn/pkg/integrations/npm"
	"github.com/matzehuels/fyn/pkg/manifest"
)

// Config configures a Source.
type Config struct {
	Client *npm.Client
	Logger *log.Logger

	// Workspaces are the monorepo packages by name. Their versions are used
	// to rewrite "workspace:" requests in local manifests.
	Workspaces map[string]*manifest.Package

	// Refresh bypasses cached packuments.
	Refresh bool
}

// Source fetches metadata for the resolver.
type Source struct {
	client     *npm.Client
	logger     *log.Logger
	wsVersions map[string]string
	refresh    bool
}

var _ deps.Source = (*Source)(nil)

// New creates a Source. A nil client talks to the public registry without
// a cache.
func New(cfg Config) *Source {
	if cfg.Client == nil {
		cfg.Client = npm.NewClient(npm.Config{})
	}
	if cfg.Logger == nil {
		cfg.Logger = log.New(io.Discard)
	}
	versions := make(map[string]string, len(cfg.Workspaces))
	for name, ws := range cfg.Workspaces {
		versions[name] = ws.Version
	}
	return &Source{
		client:     cfg.Client,
		logger:     cfg.Logger,
		wsVersions: versions,
		refresh:    cfg.Refresh,
	}
}

// FetchMeta returns the registry packument for name.
func (s *Source) FetchMeta(ctx context.Context, name string) (*deps.Packument, error) {
	doc, err := s.client.FetchPackument(ctx, name, s.refresh)
	if err != nil {
		return nil, err
	}
	s.logger.Debug("fetched packument", "pkg", name, "versions", len(doc.Versions))
	for v, pkg := range doc.Versions {
		if pkg.Version == "" {
			pkg.Version = v
		}
		if pkg.Name == "" {
			pkg.Name = name
		}
	}
	return &deps.Packument{
		Name:     doc.Name,
		DistTags: doc.DistTags,
		Versions: doc.Versions,
		Time:     doc.Time,
	}, nil
}

// HasMeta reports whether the packument for item is already cached.
func (s *Source) HasMeta(ctx context.Context, item *deps.Item) bool {
	return s.client.Has(ctx, s.client.PackumentKey(item.Name))
}
