package deps

import (
	"context"
	"path/filepath"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/matzehuels/fyn/pkg/manifest"
)

// optionalChecker decides whether optional packages can be installed.
// Checks are keyed by name@version: concurrent checks of one key share a
// probe, and results are remembered for the life of the resolver.
type optionalChecker struct {
	r        *Resolver
	inflight singleflight.Group

	mu      sync.Mutex
	results map[string]bool
}

func newOptionalChecker(r *Resolver) *optionalChecker {
	return &optionalChecker{r: r, results: make(map[string]bool)}
}

// checkAll probes every parked item, two at a time, and reports which passed.
func (c *optionalChecker) checkAll(ctx context.Context, items []*parked) []bool {
	passed := make([]bool, len(items))
	var g errgroup.Group
	g.SetLimit(optionalPoolSize)
	for i, p := range items {
		g.Go(func() error {
			passed[i] = c.check(ctx, p)
			return nil
		})
	}
	_ = g.Wait()
	return passed
}

func (c *optionalChecker) check(ctx context.Context, p *parked) bool {
	key := p.item.Name + "@" + p.choice.version

	c.mu.Lock()
	done, ok := c.results[key]
	c.mu.Unlock()
	if ok {
		return done
	}

	v, _, _ := c.inflight.Do(key, func() (any, error) {
		passed := c.probe(ctx, p)
		c.mu.Lock()
		c.results[key] = passed
		c.mu.Unlock()
		return passed, nil
	})
	passed := v.(bool)
	c.r.opts.Hooks.OnOptionalChecked(ctx, key, passed)
	return passed
}

func (c *optionalChecker) probe(ctx context.Context, p *parked) bool {
	opts := c.r.opts
	logger := c.r.log
	name, version, meta := p.item.Name, p.choice.version, p.choice.meta

	if p.choice.source == SourceFailed || meta == nil || meta.OptFailed {
		return false
	}
	if opts.Lock != nil && !opts.RefreshOptionals && opts.Lock.IsOptFailed(name, version) {
		logger.Debug("optional dependency failed previously", "pkg", name+"@"+version)
		return false
	}
	if installedVersion(opts.InstallDir, name) == version {
		return true
	}

	dir := meta.LocalPath
	if dir == "" {
		if opts.Dist == nil {
			return true
		}
		var err error
		dir, err = opts.Dist.PutPkgInNodeModules(ctx, newVersionInfo(name, version, meta), false)
		if err != nil {
			logger.Info("optional dependency could not be fetched", "pkg", name+"@"+version, "err", err)
			return false
		}
		meta.Extracted = dir
	}

	pkg, err := manifest.Load(dir)
	if err != nil {
		logger.Info("optional dependency has no readable package.json", "pkg", name+"@"+version, "err", err)
		return false
	}
	if !pkg.HasPreinstall() || (pkg.Fyn != nil && pkg.Fyn.Preinstall) {
		return true
	}
	if opts.Scripts == nil {
		return true
	}

	env := []string{
		"npm_package_name=" + name,
		"npm_package_version=" + version,
		"npm_lifecycle_event=preinstall",
	}
	code, err := opts.Scripts.Run(ctx, dir, pkg.Scripts["preinstall"], env)
	if err != nil || code != 0 {
		logger.Info("optional dependency failed preinstall", "pkg", name+"@"+version, "exit", code, "err", err)
		return false
	}
	meta.Fyn = &manifest.Marker{Preinstall: true}
	return true
}

// installedVersion returns the version already installed under dir, or "".
func installedVersion(dir, name string) string {
	if dir == "" {
		return ""
	}
	pkg, err := manifest.Load(filepath.Join(dir, name, "package.json"))
	if err != nil {
		return ""
	}
	return pkg.Version
}
