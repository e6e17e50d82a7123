package pipeline

import (
	"context"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/fyn/pkg/cache"
	"github.com/matzehuels/fyn/pkg/deps"
	"github.com/matzehuels/fyn/pkg/errors"
	"github.com/matzehuels/fyn/pkg/integrations/npm"
	"github.com/matzehuels/fyn/pkg/lock"
	"github.com/matzehuels/fyn/pkg/manifest"
	"github.com/matzehuels/fyn/pkg/observability"
	"github.com/matzehuels/fyn/pkg/scripts"
	"github.com/matzehuels/fyn/pkg/source"
	"github.com/matzehuels/fyn/pkg/yarnlock"
)

// Runner executes the pipeline against a packument cache.
//
// The Runner holds no per-run state; several goroutines may share one with
// different options.
type Runner struct {
	Cache  cache.Cache
	Keyer  cache.Keyer
	Hooks  observability.Hooks
	Logger *log.Logger
}

// NewRunner creates a runner. A nil cache disables caching and a nil logger
// uses log.Default().
func NewRunner(c cache.Cache, hooks observability.Hooks, logger *log.Logger) *Runner {
	if c == nil {
		c = cache.NewNullCache()
	}
	if logger == nil {
		logger = log.Default()
	}
	hooks = hooks.WithDefaults()
	return &Runner{
		Cache:  cache.WithHooks(c, hooks.Cache, "packument"),
		Keyer:  cache.NewDefaultKeyer(),
		Hooks:  hooks,
		Logger: logger,
	}
}

// Execute runs load → resolve → lock.
func (r *Runner) Execute(ctx context.Context, opts Options) (*Result, error) {
	opts = opts.WithDefaults()
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	r.applyLogger(&opts)

	result := &Result{}

	loadStart := time.Now()
	proj, err := r.Load(ctx, opts)
	if err != nil {
		return nil, err
	}
	result.Project = proj
	result.Stats.LoadTime = time.Since(loadStart)

	opts.Logger.Info("loaded project",
		"root", proj.Root.ID(),
		"workspaces", len(proj.Workspaces),
		"lock", proj.LockSource,
		"duration", result.Stats.LoadTime)

	store := lock.NewStore(proj.Lock, proj.Dir)
	next := opts.lockConfig()
	if proj.LockSource == LockFyn {
		if drift := store.Config().Diff(next); len(drift) > 0 {
			opts.Logger.Warn("lock was generated with different settings", "settings", drift)
			result.ConfigDrift = drift
		}
	}
	store.SetConfig(next)

	resolveStart := time.Now()
	data, err := r.Resolve(ctx, proj, store, opts)
	if err != nil {
		return nil, err
	}
	result.Data = data
	result.Stats.ResolveTime = time.Since(resolveStart)
	result.Stats.Packages = len(data.Pkgs)
	result.Stats.Versions = data.Count()
	result.Stats.Failed = len(data.BadPkgs)

	result.Lock = store.Generate(data)
	if opts.DryRun {
		return result, nil
	}
	if err := lock.Write(proj.LockPath, result.Lock); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInternal, err, "write %s", proj.LockPath)
	}
	result.Written = true
	opts.Logger.Info("wrote lock", "path", proj.LockPath, "packages", result.Stats.Packages)
	return result, nil
}

// Load reads the manifest, workspaces and lock files of opts.ProjectDir.
func (r *Runner) Load(ctx context.Context, opts Options) (*Project, error) {
	opts = opts.WithDefaults()
	r.applyLogger(&opts)

	dir, err := filepath.Abs(opts.ProjectDir)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidPath, err, "%s", opts.ProjectDir)
	}
	opts.ProjectDir = dir

	root, err := manifest.Load(dir)
	if err != nil {
		return nil, err
	}
	proj := &Project{Dir: dir, Root: root, LockPath: opts.abs(opts.LockFile)}

	if len(root.Workspaces) > 0 {
		ws, err := manifest.FindWorkspaces(dir, root.Workspaces)
		if err != nil {
			return nil, err
		}
		proj.Workspaces = ws
		opts.Logger.Debug("found workspaces", "names", manifest.WorkspaceNames(ws))
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f, err := lock.Read(proj.LockPath)
	if err != nil {
		return nil, err
	}
	if f != nil {
		proj.Lock, proj.LockSource = f, LockFyn
	} else {
		f, err := lock.ReadNpmLock(filepath.Join(dir, lock.NpmLockFile))
		switch {
		case errors.Is(err, errors.ErrCodeUnsupported):
			opts.Logger.Warn("ignoring package-lock.json", "err", errors.UserMessage(err))
		case err != nil:
			return nil, err
		case f != nil:
			proj.Lock, proj.LockSource = f, LockNpm
			opts.Logger.Info("importing package-lock.json", "packages", len(f.Entries))
		}
	}

	yl, err := yarnlock.Read(filepath.Join(dir, yarnlock.DefaultFile))
	if err != nil {
		return nil, err
	}
	if yl != nil {
		proj.Yarn = yl
		opts.Logger.Debug("read yarn.lock", "entries", yl.Len())
	}
	return proj, nil
}

// Resolve runs the resolver for a loaded project.
func (r *Runner) Resolve(ctx context.Context, proj *Project, store *lock.Store, opts Options) (*deps.Data, error) {
	opts = opts.WithDefaults()
	r.applyLogger(&opts)

	client := npm.NewClient(npm.Config{
		Registry: opts.Registry,
		Token:    opts.Token,
		Cache:    r.Cache,
		Keyer:    r.Keyer,
		TTL:      opts.CacheTTL,
		FullMeta: !opts.LockTime.IsZero(),
	})
	client.SetHooks(r.Hooks.HTTP)

	src := source.New(source.Config{
		Client:     client,
		Logger:     opts.Logger,
		Workspaces: proj.Workspaces,
		Refresh:    opts.Refresh,
	})
	modules := opts.InstallDir
	if !filepath.IsAbs(modules) {
		modules = filepath.Join(proj.Dir, modules)
	}

	dopts := deps.Options{
		Logger:           opts.Logger,
		Hooks:            r.Hooks.Resolve,
		Concurrency:      opts.Concurrency,
		LockOnly:         opts.LockOnly,
		LockTime:         opts.LockTime,
		Production:       opts.Production,
		PreferLocal:      opts.PreferLocal,
		RefreshOptionals: opts.RefreshOptionals,
		ResolvePeers:     opts.ResolvePeers,
		NoDedupe:         opts.NoDedupe,
		ProjectDir:       proj.Dir,
		InstallDir:       modules,
		LocalPackages:    proj.Workspaces,
		Platform:         opts.Platform,
		NpmLockImported:  proj.LockSource == LockNpm,
		Dist:             source.NewDist(client, modules, opts.Logger),
		Scripts:          &scripts.Runner{Logger: opts.Logger},
	}
	if store != nil {
		dopts.Lock = store
	}
	if proj.Yarn != nil {
		dopts.YarnLock = proj.Yarn
	}

	res, err := deps.NewResolver(proj.Root, src, dopts)
	if err != nil {
		return nil, err
	}
	return res.Resolve(ctx)
}

// Close releases resources held by the runner (primarily the cache).
func (r *Runner) Close() error {
	if r.Cache != nil {
		return r.Cache.Close()
	}
	return nil
}

// applyLogger sets the runner's logger on options if not already set.
func (r *Runner) applyLogger(opts *Options) {
	if opts.Logger == nil {
		opts.Logger = r.Logger
	}
}
