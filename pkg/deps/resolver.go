package deps

import (
	"context"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/matzehuels/fyn/pkg/errors"
	"github.com/matzehuels/fyn/pkg/manifest"
	"github.com/matzehuels/fyn/pkg/semver"
)

// Resolution sources reported to hooks and logs.
const (
	SourceNested   = "nested"
	SourceLock     = "lock"
	SourceLocal    = "local"
	SourceKnown    = "known"
	SourceYarn     = "yarn"
	SourceURL      = "url"
	SourceRegistry = "registry"
	SourceFailed   = "optFailed"
)

// FailedVersion stands in for an optional package whose metadata could not
// be resolved at all.
const FailedVersion = "-"

// Resolver computes the install plan for a root manifest.
//
// Resolution is level-order: every item at one depth, including the
// optional checks they trigger, is admitted before any item of the next
// depth starts. Within a depth one work unit runs per package name and
// resolves that name's items in the order they were queued.
type Resolver struct {
	root        *manifest.Package
	src         Source
	opts        Options
	log         *log.Logger
	overrides   *Overrides
	resolutions *yarnResolutions
	checker     *optionalChecker

	metaGroup singleflight.Group
	metas     sync.Map // name → *Packument

	// mu guards the registry being built and the nested memos of items.
	mu sync.Mutex
}

// NewResolver creates a resolver for root, reading metadata from src.
func NewResolver(root *manifest.Package, src Source, opts Options) (*Resolver, error) {
	ov, err := ParseOverrides(root)
	if err != nil {
		return nil, err
	}
	opts = opts.WithDefaults()
	r := &Resolver{
		root:        root,
		src:         src,
		opts:        opts,
		log:         opts.Logger,
		overrides:   ov,
		resolutions: parseResolutions(root.Resolutions),
	}
	r.checker = newOptionalChecker(r)
	return r, nil
}

// Resolve runs the resolve pass, and the de-dup re-run when it removes lock
// entries, returning the finished registry. On failure the error lists every
// fatal cause of the failing depth.
func (r *Resolver) Resolve(ctx context.Context) (*Data, error) {
	start := time.Now()
	runID := uuid.NewString()
	r.log = r.opts.Logger.With("run", runID)

	roots := r.rootItems(newRootItem(r.root))
	r.opts.Hooks.OnResolveStart(ctx, runID, len(roots))
	r.log.Info("resolving", "root", r.root.Name, "dependencies", len(roots))

	r.applyDrift()

	data, err := r.pass(ctx)
	if err == nil && !r.opts.NoDedupe && r.dedupe(data) {
		r.log.Info("re-resolving after removing duplicated lock entries")
		data, err = r.pass(ctx)
	}

	count := 0
	if data != nil {
		count = data.Count()
	}
	r.opts.Hooks.OnResolveComplete(ctx, count, time.Since(start), err)
	if err != nil {
		return nil, err
	}
	r.log.Info("resolved", "packages", len(data.Pkgs), "versions", count, "failed", len(data.BadPkgs), "duration", time.Since(start).Round(time.Millisecond))
	return data, nil
}

func (r *Resolver) pass(ctx context.Context) (*Data, error) {
	data := NewData()
	items := r.rootItems(newRootItem(r.root))
	for depth := 0; len(items) > 0; depth++ {
		next, err := r.resolveDepth(ctx, data, items)
		if err != nil {
			return nil, err
		}
		r.opts.Hooks.OnDepthComplete(ctx, depth, len(items))
		r.log.Debug("depth complete", "depth", depth, "items", len(items), "next", len(next))
		items = next
	}
	promote(data)
	return data, nil
}

// rootItems builds the top-level requests. Root peer dependencies are never
// expanded; optional dependencies repeated under dependencies stay optional.
func (r *Resolver) rootItems(root *Item) []*Item {
	sections := []struct {
		sec  Section
		deps *manifest.Deps
	}{
		{SectionDep, r.root.Dependencies},
		{SectionDev, r.root.DevDependencies},
		{SectionOpt, r.root.OptionalDependencies},
	}
	var items []*Item
	for _, s := range sections {
		if s.sec == SectionDev && r.opts.Production {
			continue
		}
		idx := 0
		for name, req := range s.deps.All() {
			if s.sec == SectionDep && r.root.OptionalDependencies.Has(name) {
				continue
			}
			it := newItem(root, name, req, s.sec)
			it.Priority = rootPriority(s.sec, idx)
			idx++
			items = append(items, it)
		}
	}
	return items
}

// applyDrift removes lock mappings for root requests that changed since the
// lock was written.
func (r *Resolver) applyDrift() {
	if r.opts.Lock == nil {
		return
	}
	changes := r.opts.Lock.SetPkgDepItems(map[Section]*manifest.Deps{
		SectionDep: r.root.Dependencies,
		SectionDev: r.root.DevDependencies,
		SectionOpt: r.root.OptionalDependencies,
		SectionPer: r.root.PeerDependencies,
	})
	for _, ch := range changes {
		if ch.Old == "" {
			continue
		}
		r.opts.Lock.Remove(ch.Name, ch.Old, false)
		r.log.Debug("dependency changed since lock", "pkg", ch.Name, "old", ch.Old, "new", ch.New)
	}
}

type parked struct {
	item   *Item
	choice choice
}

type unitResult struct {
	children []*Item
	parked   []*parked
	errs     []error
}

func (r *Resolver) resolveDepth(ctx context.Context, data *Data, items []*Item) ([]*Item, error) {
	var order []string
	groups := make(map[string][]*Item)
	for _, it := range items {
		if _, ok := groups[it.Name]; !ok {
			order = append(order, it.Name)
		}
		groups[it.Name] = append(groups[it.Name], it)
	}

	results := make([]unitResult, len(order))
	var g errgroup.Group
	g.SetLimit(r.opts.poolSize())
	for i, name := range order {
		g.Go(func() error {
			res := &results[i]
			for _, it := range groups[name] {
				if err := ctx.Err(); err != nil {
					res.errs = append(res.errs, err)
					return nil
				}
				kids, p, err := r.resolveItem(ctx, data, it)
				switch {
				case err != nil:
					res.errs = append(res.errs, err)
				case p != nil:
					res.parked = append(res.parked, p)
				default:
					res.children = append(res.children, kids...)
				}
			}
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var (
		next  []*Item
		errs  []error
		parks []*parked
	)
	for _, res := range results {
		next = append(next, res.children...)
		errs = append(errs, res.errs...)
		parks = append(parks, res.parked...)
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	if len(parks) > 0 {
		passed := r.checker.checkAll(ctx, parks)
		for i, p := range parks {
			if !passed[i] {
				r.admitFailed(ctx, data, p.item, p.choice)
				continue
			}
			p.item.probed = true
			kids, err := r.settle(ctx, data, p.item, p.choice)
			if err != nil {
				r.log.Info("optional dependency failed", "pkg", p.item.ID(), "err", err)
				r.admitFailed(ctx, data, p.item, p.choice)
				continue
			}
			next = append(next, kids...)
		}
	}
	return next, nil
}

// choice is a version picked for an item and the metadata behind it.
type choice struct {
	version  string
	meta     *manifest.Package
	source   string
	fromLock bool
}

// resolveItem settles one item. It returns the children to queue, or a
// parked item awaiting the optional checker.
func (r *Resolver) resolveItem(ctx context.Context, data *Data, item *Item) ([]*Item, *parked, error) {
	r.rewrite(item)
	if item.Spec.IsURL() {
		item.URLType = urlType(item.Spec.URL)
	}

	c, tried, err := r.choose(ctx, data, item)
	if err != nil {
		if item.IsOptional() {
			r.log.Info("optional dependency unavailable", "pkg", item.Name, "semver", item.Semver, "err", errors.UserMessage(err))
			return nil, &parked{item: item, choice: choice{version: FailedVersion, source: SourceFailed}}, nil
		}
		return nil, nil, r.itemError(errors.GetCode(err), item, err, tried)
	}
	if c.meta != nil && c.meta.LocalPath != "" {
		item.LocalPath = c.meta.LocalPath
	}

	if c.meta != nil && !r.opts.Platform.Supports(c.meta.OS, c.meta.CPU) {
		if item.IsOptional() {
			r.log.Warn("skipping optional dependency for another platform", "pkg", item.Name+"@"+c.version, "os", c.meta.OS, "cpu", c.meta.CPU)
			r.admitFailed(ctx, data, item, c)
			return nil, nil, nil
		}
		err := errors.New(errors.ErrCodePlatformMismatch, "%s@%s requires os %v cpu %v, have %s/%s",
			item.Name, c.version, c.meta.OS, c.meta.CPU, r.opts.Platform.OS, r.opts.Platform.CPU)
		return nil, nil, r.itemError(errors.ErrCodePlatformMismatch, item, err, tried)
	}

	if item.IsOptional() && !item.probed {
		r.mu.Lock()
		known := data.VersionInfo(item.Name, c.version) != nil
		r.mu.Unlock()
		if !known {
			return nil, &parked{item: item, choice: c}, nil
		}
	}

	kids, err := r.settle(ctx, data, item, c)
	if err != nil {
		return nil, nil, r.itemError(errors.ErrCodeMetaFetch, item, err, tried)
	}
	return kids, nil, nil
}

// rewrite applies overrides, or failing those yarn resolutions, to item.
func (r *Resolver) rewrite(item *Item) {
	if v, ok := r.overrides.Match(item); ok {
		if v != item.Semver {
			r.log.Debug("override", "pkg", item.Name, "from", item.Semver, "to", v)
			item.SetSemver(v)
		}
		return
	}
	if v, ok := r.resolutions.Match(item); ok && v != item.Semver {
		r.log.Debug("resolution", "pkg", item.Name, "path", item.NameDepPath, "from", item.Semver, "to", v)
		item.SetSemver(v)
	}
}

// choose walks the resolution sources in order until one yields a version.
func (r *Resolver) choose(ctx context.Context, data *Data, item *Item) (choice, []string, error) {
	var tried []string

	r.mu.Lock()
	v, ok := item.NestedResolve(item.Name, item.Semver)
	r.mu.Unlock()
	if ok {
		tried = append(tried, SourceNested)
		if meta, err := r.metaFor(ctx, data, item.Name, v); err == nil {
			return choice{version: v, meta: meta, source: SourceNested}, tried, nil
		}
	}

	ws := r.workspaceFor(item)
	localish := ws != nil || item.Spec.IsLocal() || item.Spec.IsURL()

	if r.opts.Lock != nil && !(localish && r.opts.PreferLocal) {
		tried = append(tried, SourceLock)
		if c, ok := r.fromLock(ctx, item); ok {
			return c, tried, nil
		}
	}

	if ws != nil || item.Spec.IsLocal() {
		tried = append(tried, SourceLocal)
		item.LocalPath = r.localPath(item, ws)
		p, err := r.src.FetchLocalItem(ctx, item)
		if err != nil {
			return choice{}, tried, errors.Wrap(errors.ErrCodeMetaFetch, err, "read local package %s", item.LocalPath)
		}
		if p != nil {
			if v, ok := p.FindVersion(item.Semver, time.Time{}); ok {
				return choice{version: v, meta: p.Versions[v], source: SourceLocal}, tried, nil
			}
		}
	}

	tried = append(tried, SourceKnown)
	r.mu.Lock()
	var known *VersionInfo
	if kp := data.Pkgs[item.Name]; kp != nil {
		known, _ = kp.Find(item.Semver)
	}
	r.mu.Unlock()
	if known != nil {
		return choice{version: known.Version, meta: known.Meta, source: SourceKnown}, tried, nil
	}

	if r.opts.YarnLock != nil {
		tried = append(tried, SourceYarn)
		if v, ok := r.opts.YarnLock.Lookup(item.Name, item.Semver); ok {
			if meta, err := r.metaFor(ctx, data, item.Name, v); err == nil {
				return choice{version: v, meta: meta, source: SourceYarn}, tried, nil
			}
		}
	}

	if r.opts.LockOnly {
		return choice{}, tried, errors.New(errors.ErrCodeLockOnlyMiss, "%s@%s is not in the lock", item.Name, item.Semver)
	}

	if item.Spec.IsURL() {
		tried = append(tried, SourceURL)
		p, err := r.src.FetchURLSemverMeta(ctx, item)
		if err != nil {
			return choice{}, tried, errors.Wrap(errors.ErrCodeMetaFetch, err, "fetch %s", item.Spec.URL)
		}
		v, ok := p.FindVersion(item.Semver, time.Time{})
		if !ok {
			return choice{}, tried, errors.New(errors.ErrCodeUnsatisfiable, "%s has no version", item.Spec.URL)
		}
		return choice{version: v, meta: p.Versions[v], source: SourceURL}, tried, nil
	}

	tried = append(tried, SourceRegistry)
	p, err := r.fetchMeta(ctx, item.Name)
	if err != nil {
		return choice{}, tried, errors.Wrap(errors.ErrCodeMetaFetch, err, "fetch metadata for %s", item.Name)
	}
	v, ok = p.FindVersion(item.Semver, r.opts.LockTime)
	if !ok {
		return choice{}, tried, errors.New(errors.ErrCodeUnsatisfiable, "no version of %s satisfies %s", item.Name, item.Semver)
	}
	return choice{version: v, meta: p.Versions[v], source: SourceRegistry}, tried, nil
}

func (r *Resolver) fromLock(ctx context.Context, item *Item) (choice, bool) {
	v, meta, ok := r.opts.Lock.Lookup(item)
	if !ok {
		return choice{}, false
	}
	if !r.opts.LockOnly && !item.Spec.IsLocal() && !item.Spec.IsURL() && r.src.HasMeta(ctx, item) {
		if p, err := r.fetchMeta(ctx, item.Name); err == nil {
			r.opts.Lock.Update(item.Name, p)
		}
	}
	return choice{version: v, meta: meta, source: SourceLock, fromLock: true}, true
}

func (r *Resolver) workspaceFor(item *Item) *manifest.Package {
	ws := r.opts.LocalPackages[item.Name]
	if ws == nil {
		return nil
	}
	if strings.HasPrefix(item.Semver, "workspace:") || item.Semver == "*" || item.Semver == "" {
		return ws
	}
	if item.Spec.IsLocal() || item.Spec.IsURL() {
		return nil
	}
	if semver.Satisfies(ws.Version, item.Semver) {
		return ws
	}
	return nil
}

// localPath resolves a filesystem request against the requesting package's
// directory, or the project directory for top-level requests.
func (r *Resolver) localPath(item *Item, ws *manifest.Package) string {
	if ws != nil && !item.Spec.IsLocal() {
		return ws.LocalPath
	}
	p := item.Spec.Path
	if rest, ok := strings.CutPrefix(p, "~/"); ok {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, rest)
		}
	}
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	base := r.opts.ProjectDir
	if parent := item.Parent(); parent != nil && parent.LocalPath != "" {
		base = parent.LocalPath
	}
	return filepath.Join(base, p)
}

func urlType(u string) string {
	if strings.HasPrefix(u, "git") || strings.HasSuffix(u, ".git") || strings.Contains(u, ".git#") {
		return "git"
	}
	return "tarball"
}

// fetchMeta returns the packument for name, fetching it at most once per
// resolver.
func (r *Resolver) fetchMeta(ctx context.Context, name string) (*Packument, error) {
	if p, ok := r.metas.Load(name); ok {
		return p.(*Packument), nil
	}
	v, err, _ := r.metaGroup.Do(name, func() (any, error) {
		p, err := r.src.FetchMeta(ctx, name)
		if err != nil {
			return nil, err
		}
		r.metas.Store(name, p)
		return p, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Packument), nil
}

// metaFor returns the manifest of name@version from the registry being
// built, or from the package's metadata.
func (r *Resolver) metaFor(ctx context.Context, data *Data, name, version string) (*manifest.Package, error) {
	r.mu.Lock()
	vi := data.VersionInfo(name, version)
	r.mu.Unlock()
	if vi != nil && vi.Meta != nil {
		return vi.Meta, nil
	}
	if r.opts.LockOnly {
		return nil, errors.New(errors.ErrCodeLockOnlyMiss, "metadata for %s@%s is not in the lock", name, version)
	}
	p, err := r.fetchMeta(ctx, name)
	if err != nil {
		return nil, err
	}
	meta := p.Versions[version]
	if meta == nil {
		return nil, errors.New(errors.ErrCodePackageNotFound, "%s@%s not found", name, version)
	}
	return meta, nil
}

// settle extracts the package when its shrinkwrap or bundled dependencies
// must be read before expansion, then admits it.
func (r *Resolver) settle(ctx context.Context, data *Data, item *Item, c choice) ([]*Item, error) {
	if err := r.extractIfNeeded(ctx, data, item, c); err != nil {
		return nil, err
	}
	return r.admit(ctx, data, item, c), nil
}

func (r *Resolver) extractIfNeeded(ctx context.Context, data *Data, item *Item, c choice) error {
	meta := c.meta
	if meta == nil || r.opts.Dist == nil || meta.Extracted != "" {
		return nil
	}
	if !meta.HasShrinkwrap && len(meta.BundledNames()) == 0 {
		return nil
	}
	r.mu.Lock()
	known := data.VersionInfo(item.Name, c.version) != nil
	r.mu.Unlock()
	if known {
		return nil
	}
	dir, err := r.opts.Dist.PutPkgInNodeModules(ctx, newVersionInfo(item.Name, c.version, meta), false)
	if err != nil {
		return err
	}
	meta.Extracted = dir
	if meta.HasShrinkwrap {
		sw, err := manifest.LoadShrinkwrap(dir)
		if err != nil {
			return err
		}
		meta.Shrinkwrap = sw
	}
	r.log.Debug("extracted for inspection", "pkg", item.Name+"@"+c.version, "dir", dir)
	return nil
}

// admit records the resolution and returns the children to expand.
func (r *Resolver) admit(ctx context.Context, data *Data, item *Item, c choice) []*Item {
	r.mu.Lock()
	defer r.mu.Unlock()

	prev := data.VersionInfo(item.Name, c.version)
	wasOptionalOnly := prev != nil && !prev.Required

	vi, first := data.admit(item, c.version, c.meta, false)
	if first && c.fromLock {
		vi.FromLock = true
	}
	r.noteLatest(data.Pkgs[item.Name])
	r.opts.Hooks.OnPackageResolved(ctx, vi.ID(), c.source)
	r.log.Debug("resolved", "pkg", vi.ID(), "semver", item.Semver, "source", c.source, "depth", item.Depth)

	if item.IsCircular() {
		r.log.Debug("circular dependency", "pkg", vi.ID(), "path", item.NameDepPath)
		item.Unref()
		return nil
	}
	if wasOptionalOnly && !item.IsOptional() {
		item.DeepResolve = true
	}
	if !first && !item.DeepResolve {
		return nil
	}
	return r.expand(item, c.meta)
}

func (r *Resolver) admitFailed(ctx context.Context, data *Data, item *Item, c choice) {
	version := c.version
	if version == "" {
		version = FailedVersion
	}
	r.mu.Lock()
	vi, _ := data.admit(item, version, c.meta, true)
	r.noteLatest(data.BadPkgs[item.Name])
	r.mu.Unlock()
	r.opts.Hooks.OnPackageResolved(ctx, vi.ID(), SourceFailed)
}

// noteLatest copies the latest dist-tag of fetched metadata onto kp.
func (r *Resolver) noteLatest(kp *KnownPackage) {
	if kp == nil || kp.Latest != "" {
		return
	}
	if p, ok := r.metas.Load(kp.Name); ok {
		kp.Latest = p.(*Packument).Latest()
	}
}

// expand creates the child requests of a resolved package. Bundled names are
// skipped; peers are expanded only when enabled.
func (r *Resolver) expand(item *Item, meta *manifest.Package) []*Item {
	if meta == nil {
		return nil
	}
	bundled := meta.BundledNames()
	var kids []*Item
	add := func(deps *manifest.Deps, sec Section) {
		for name, req := range deps.All() {
			if slices.Contains(bundled, name) {
				continue
			}
			if sec == SectionDep && meta.OptionalDependencies.Has(name) {
				continue
			}
			kids = append(kids, newItem(item, name, req, sec))
		}
	}
	add(meta.Dependencies, SectionDep)
	add(meta.OptionalDependencies, SectionOpt)
	if r.opts.ResolvePeers {
		add(meta.PeerDependencies, SectionPer)
	}
	return kids
}

func (r *Resolver) itemError(code errors.Code, item *Item, cause error, tried []string) error {
	if code == "" {
		code = errors.ErrCodeInternal
	}
	return errors.Wrap(code, cause, "%s@%s (path: %s; tried: %s)",
		item.Name, item.Semver, requestChain(item), strings.Join(tried, ","))
}

// requestChain renders "root > a@1.0.0 > b@^2" for error messages.
func requestChain(item *Item) string {
	var parts []string
	for x := item; x != nil; x = x.Parent() {
		parts = append(parts, x.ID())
	}
	slices.Reverse(parts)
	return strings.Join(parts, " > ")
}
