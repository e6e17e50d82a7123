package deps

import (
	"context"
	"runtime"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/fyn/pkg/manifest"
	"github.com/matzehuels/fyn/pkg/observability"
)

const (
	DefaultConcurrency = 15 // default number of concurrent work units
	minPoolSize        = 15
	optionalPoolSize   = 2
)

// Options configures a resolve.
type Options struct {
	Logger      *log.Logger                // required sink; a discarding logger is used when nil
	Hooks       observability.ResolveHooks // progress callbacks (optional)
	Concurrency int                        // pool size is max(2×Concurrency, 15)

	LockOnly         bool      // never consult the registry
	LockTime         time.Time // ignore versions published after this instant
	Production       bool      // skip the root devDependencies
	PreferLocal      bool      // resolve local and URL requests before consulting the lock
	RefreshOptionals bool      // re-probe optionals the lock marks as failed
	ResolvePeers     bool      // expand peerDependencies of non-root packages
	NoDedupe         bool      // skip the de-dup re-run

	ProjectDir    string                       // directory of the root manifest
	InstallDir    string                       // node_modules location probed by the optional checker
	LocalPackages map[string]*manifest.Package // workspace packages by name
	Platform      Platform

	Lock            LockStore    // previous lock (optional)
	NpmLockImported bool         // the lock came from package-lock.json
	YarnLock        YarnLock     // yarn.lock table (optional)
	Dist            DistFetcher  // fetches tarballs mid-resolve (optional)
	Scripts         ScriptRunner // runs preinstall probes (optional)
}

// WithDefaults returns a copy of Options with zero values replaced by defaults.
func (o Options) WithDefaults() Options {
	opts := o
	if opts.Logger == nil {
		opts.Logger = log.New(discard{})
	}
	if opts.Hooks == nil {
		opts.Hooks = observability.NoopResolveHooks{}
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}
	if opts.Platform == (Platform{}) {
		opts.Platform = HostPlatform()
	}
	return opts
}

func (o Options) poolSize() int {
	return max(2*o.Concurrency, minPoolSize)
}

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }

// Platform is the os/cpu pair packages are checked against.
type Platform struct {
	OS  string // npm process.platform name: linux, darwin, win32, ...
	CPU string // npm process.arch name: x64, arm64, ia32, ...
}

// HostPlatform returns the platform fyn runs on, in npm's naming.
func HostPlatform() Platform {
	p := Platform{OS: runtime.GOOS, CPU: runtime.GOARCH}
	switch p.OS {
	case "windows":
		p.OS = "win32"
	}
	switch p.CPU {
	case "amd64":
		p.CPU = "x64"
	case "386":
		p.CPU = "ia32"
	}
	return p
}

// Source provides package metadata.
type Source interface {
	// FetchMeta returns the packument for name.
	FetchMeta(ctx context.Context, name string) (*Packument, error)

	// FetchLocalItem reads the package at item.LocalPath. A missing
	// package is (nil, nil).
	FetchLocalItem(ctx context.Context, item *Item) (*Packument, error)

	// FetchURLSemverMeta returns single-version metadata for a tarball or
	// repository URL request.
	FetchURLSemverMeta(ctx context.Context, item *Item) (*Packument, error)

	// HasMeta reports whether metadata for item is available without a
	// network round-trip.
	HasMeta(ctx context.Context, item *Item) bool
}

// DistFetcher places a package's files on disk.
type DistFetcher interface {
	// PutPkgInNodeModules extracts vi and returns the directory. force
	// re-extracts an existing copy.
	PutPkgInNodeModules(ctx context.Context, vi *VersionInfo, force bool) (string, error)
}

// ScriptRunner runs a lifecycle script inside a package directory.
type ScriptRunner interface {
	Run(ctx context.Context, dir, script string, env []string) (exitCode int, err error)
}

// LockStore is the view of a previous lock the resolver needs.
type LockStore interface {
	// Lookup returns the locked version of item's request and its metadata.
	Lookup(item *Item) (version string, meta *manifest.Package, ok bool)

	// Update merges fresh registry metadata into the entry for name.
	Update(name string, meta *Packument)

	// Remove drops the semver → version mapping. force also drops version
	// records no longer referenced by any semver.
	Remove(name, semver string, force bool) bool

	// IsOptFailed reports whether name@version failed a previous probe.
	IsOptFailed(name, version string) bool

	// SetPkgDepItems snapshots the root manifest sections and reports the
	// names whose declared semver changed since the lock was written.
	SetPkgDepItems(sections map[Section]*manifest.Deps) []DepChange
}

// DepChange is a root dependency whose declaration differs from the lock.
type DepChange struct {
	Name    string
	Section Section
	Old     string // "" when added
	New     string // "" when removed
}

// YarnLock looks up "name@semver" keys in a yarn.lock.
type YarnLock interface {
	Lookup(name, semver string) (string, bool)
}
