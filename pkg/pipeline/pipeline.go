// Package pipeline runs a complete fyn resolve for a project directory.
//
// The CLI and tests drive the same stages through a [Runner]:
//
//  1. Load: read package.json, scan workspaces, read fyn-lock.yaml (or
//     import package-lock.json) and yarn.lock
//  2. Resolve: build the registry source and run [deps.Resolver]
//  3. Lock: generate the next lock from the resolved registry and write it
//
// # Usage
//
//	runner := pipeline.NewRunner(c, observability.Hooks{}, logger)
//	defer runner.Close()
//	result, err := runner.Execute(ctx, pipeline.Options{ProjectDir: "."})
//	if err != nil {
//	    return err
//	}
//	fmt.Println(result.Stats.Versions, "versions locked")
package pipeline

import (
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/fyn/pkg/config"
	"github.com/matzehuels/fyn/pkg/deps"
	"github.com/matzehuels/fyn/pkg/errors"
	"github.com/matzehuels/fyn/pkg/integrations/npm"
	"github.com/matzehuels/fyn/pkg/lock"
	"github.com/matzehuels/fyn/pkg/manifest"
	"github.com/matzehuels/fyn/pkg/yarnlock"
)

// Lock sources reported in [Project.LockSource].
const (
	LockNone = ""
	LockFyn  = "fyn"
	LockNpm  = "npm"
)

// DefaultInstallDir is the node_modules directory relative to the project.
const DefaultInstallDir = "node_modules"

// Options configures one pipeline run.
type Options struct {
	ProjectDir string // directory holding package.json
	LockFile   string // lock path, relative to ProjectDir unless absolute
	InstallDir string // node_modules path, relative to ProjectDir unless absolute

	Registry string
	Token    string
	Refresh  bool          // bypass cached packuments
	CacheTTL time.Duration // packument lifetime, cache.TTLPackument when zero

	Concurrency      int
	LockOnly         bool
	LockTime         time.Time
	Production       bool
	PreferLocal      bool
	RefreshOptionals bool
	ResolvePeers     bool
	NoDedupe         bool
	Platform         deps.Platform

	DryRun bool // resolve and generate the lock without writing it

	Logger *log.Logger
}

// WithDefaults returns a copy of Options with zero values replaced by defaults.
func (o Options) WithDefaults() Options {
	opts := o
	if opts.ProjectDir == "" {
		opts.ProjectDir = "."
	}
	if opts.LockFile == "" {
		opts.LockFile = lock.DefaultFile
	}
	if opts.InstallDir == "" {
		opts.InstallDir = DefaultInstallDir
	}
	if opts.Registry == "" {
		opts.Registry = npm.DefaultRegistry
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = deps.DefaultConcurrency
	}
	return opts
}

// Validate checks option combinations that cannot work.
func (o Options) Validate() error {
	if err := errors.ValidateURL(o.Registry); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidConfig, err, "registry")
	}
	if o.LockOnly && o.Refresh {
		return errors.New(errors.ErrCodeInvalidInput, "--lock-only and --refresh are mutually exclusive")
	}
	return nil
}

// FromConfig maps loaded configuration onto pipeline options.
func FromConfig(cfg *config.Config, projectDir string) (Options, error) {
	lt, err := cfg.LockTimeValue()
	if err != nil {
		return Options{}, err
	}
	return Options{
		ProjectDir:       projectDir,
		LockFile:         cfg.LockFile,
		InstallDir:       cfg.InstallDir,
		Registry:         cfg.Registry,
		Token:            cfg.Token,
		CacheTTL:         cfg.Cache.TTL,
		Concurrency:      cfg.Concurrency,
		LockOnly:         cfg.LockOnly,
		LockTime:         lt,
		Production:       cfg.Production,
		PreferLocal:      cfg.PreferLocal,
		RefreshOptionals: cfg.RefreshOptionals,
		ResolvePeers:     cfg.ResolvePeers,
		NoDedupe:         !cfg.Dedupe,
	}, nil
}

func (o Options) abs(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(o.ProjectDir, p)
}

// lockConfig is the "$fyn" echo for the next lock.
func (o Options) lockConfig() lock.Config {
	c := lock.Config{
		Registry:     o.Registry,
		Production:   o.Production,
		ResolvePeers: o.ResolvePeers,
	}
	if !o.LockTime.IsZero() {
		c.LockTime = o.LockTime.UTC().Format(time.RFC3339)
	}
	return c
}

// Project is everything read from disk before resolving.
type Project struct {
	Dir        string
	Root       *manifest.Package
	Workspaces map[string]*manifest.Package
	LockPath   string
	Lock       *lock.File // nil when the project has no lock
	LockSource string     // LockFyn, LockNpm or LockNone
	Yarn       *yarnlock.Lock
}

// Result contains the outputs of a pipeline run.
type Result struct {
	Project *Project

	// Data is the resolved registry.
	Data *deps.Data

	// Lock is the generated lock; it was written to Project.LockPath
	// unless the run was a dry run.
	Lock    *lock.File
	Written bool

	// ConfigDrift names "$fyn" settings that differ from the previous lock.
	ConfigDrift []string

	Stats Stats
}

// Stats contains pipeline execution statistics.
type Stats struct {
	Packages    int
	Versions    int
	Failed      int
	LoadTime    time.Duration
	ResolveTime time.Duration
}
