package source

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"slices"
	"testing"
	"time"

	"github.com/matzehuels/fyn/internal/registrytest"
	"github.com/matzehuels/fyn/pkg/cache"
	"github.com/matzehuels/fyn/pkg/deps"
	"github.com/matzehuels/fyn/pkg/errors"
	"github.com/matzehuels/fyn/pkg/integrations/npm"
	"github.com/matzehuels/fyn/pkg/manifest"
	"github.com/matzehuels/fyn/pkg/semver"
)

func newSource(t *testing.T, reg *registrytest.Registry, cfg Config) *Source {
	t.Helper()
	c, err := cache.NewFileCache(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { c.Close() })
	cfg.Client = npm.NewClient(npm.Config{Registry: reg.URL, Cache: c})
	return New(cfg)
}

func item(name, sv string) *deps.Item {
	return &deps.Item{Name: name, Semver: sv, Declared: sv, Spec: semver.Analyze(sv)}
}

func writeJSON(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestFetchMeta(t *testing.T) {
	reg := registrytest.New(t)
	reg.Add("a", "1.0.0", registrytest.Version{}).
		Add("a", "1.1.0", registrytest.Version{Dependencies: map[string]string{"b": "^2.0.0"}})
	src := newSource(t, reg, Config{})
	ctx := context.Background()

	if src.HasMeta(ctx, item("a", "^1.0.0")) {
		t.Error("HasMeta before any fetch")
	}
	p, err := src.FetchMeta(ctx, "a")
	if err != nil {
		t.Fatalf("FetchMeta: %v", err)
	}
	if p.Latest() != "1.1.0" {
		t.Errorf("Latest() = %q", p.Latest())
	}
	if got := p.Sorted(); !slices.Equal(got, []string{"1.1.0", "1.0.0"}) {
		t.Errorf("Sorted() = %v", got)
	}
	if v, ok := p.FindVersion("^1.0.0", time.Time{}); !ok || v != "1.1.0" {
		t.Errorf("FindVersion = %q, %v", v, ok)
	}
	if !src.HasMeta(ctx, item("a", "^1.0.0")) {
		t.Error("HasMeta after fetch should be true")
	}

	_, err = src.FetchMeta(ctx, "missing")
	if err == nil {
		t.Error("expected error for unknown package")
	}
}

func TestFetchLocalItem(t *testing.T) {
	reg := registrytest.New(t)
	root := t.TempDir()
	writeJSON(t, filepath.Join(root, "lib", "package.json"),
		`{"name":"lib","version":"0.3.0","dependencies":{"shared":"workspace:^","x":"^1.0.0"}}`)
	src := newSource(t, reg, Config{
		Workspaces: map[string]*manifest.Package{"shared": {Name: "shared", Version: "2.1.0"}},
	})
	ctx := context.Background()

	it := item("lib", "file:./lib")
	it.LocalPath = filepath.Join(root, "lib")
	p, err := src.FetchLocalItem(ctx, it)
	if err != nil {
		t.Fatalf("FetchLocalItem: %v", err)
	}
	pkg := p.Versions["0.3.0"]
	if pkg == nil || p.Local != semver.LocalSym || pkg.LocalPath != it.LocalPath {
		t.Fatalf("packument = %+v", p)
	}
	if got, _ := pkg.Dependencies.Get("shared"); got != "^2.1.0" {
		t.Errorf("workspace dep rewritten to %q", got)
	}

	it = item("gone", "file:./gone")
	it.LocalPath = filepath.Join(root, "gone")
	if p, err := src.FetchLocalItem(ctx, it); p != nil || err != nil {
		t.Errorf("missing dir = %v, %v", p, err)
	}

	if err := os.MkdirAll(filepath.Join(root, "empty"), 0755); err != nil {
		t.Fatal(err)
	}
	it = item("empty", "file:./empty")
	it.LocalPath = filepath.Join(root, "empty")
	if p, err := src.FetchLocalItem(ctx, it); p != nil || err != nil {
		t.Errorf("dir without package.json = %v, %v", p, err)
	}
}

func TestFetchLocalTarball(t *testing.T) {
	reg := registrytest.New(t)
	reg.Add("packed", "1.2.3", registrytest.Version{})
	src := newSource(t, reg, Config{})

	body, err := src.client.Open(context.Background(), reg.TarballURL("packed", "1.2.3"))
	if err != nil {
		t.Fatal(err)
	}
	data, err := io.ReadAll(body)
	body.Close()
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "packed-1.2.3.tgz")
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatal(err)
	}

	it := item("packed", "file:"+path)
	it.LocalPath = path
	p, err := src.FetchLocalItem(context.Background(), it)
	if err != nil {
		t.Fatalf("FetchLocalItem: %v", err)
	}
	if p.Local != semver.LocalHard || p.Versions["1.2.3"] == nil {
		t.Errorf("packument = %+v", p)
	}
}

func TestFetchURLSemverMeta(t *testing.T) {
	reg := registrytest.New(t)
	reg.Add("remote", "3.0.0", registrytest.Version{Dependencies: map[string]string{"x": "1"}})
	src := newSource(t, reg, Config{})
	ctx := context.Background()

	url := reg.TarballURL("remote", "3.0.0")
	it := item("remote", url)
	it.URLType = "tarball"
	p, err := src.FetchURLSemverMeta(ctx, it)
	if err != nil {
		t.Fatalf("FetchURLSemverMeta: %v", err)
	}
	pkg := p.Versions["3.0.0"]
	if pkg == nil || pkg.Dist.Tarball != url || p.Local != "url" {
		t.Errorf("packument = %+v", p)
	}

	it = item("repo", "github:user/repo")
	it.URLType = "git"
	if _, err := src.FetchURLSemverMeta(ctx, it); !errors.Is(err, errors.ErrCodeUnsupported) {
		t.Errorf("git url: got %v", err)
	}
}

func TestDist(t *testing.T) {
	reg := registrytest.New(t)
	reg.Add("tool", "1.0.0", registrytest.Version{Files: map[string]string{"bin/run.sh": "echo ok\n"}})
	src := newSource(t, reg, Config{})
	ctx := context.Background()

	p, err := src.FetchMeta(ctx, "tool")
	if err != nil {
		t.Fatal(err)
	}
	modules := filepath.Join(t.TempDir(), "node_modules")
	d := NewDist(src.client, modules, nil)
	vi := &deps.VersionInfo{Name: "tool", Version: "1.0.0", Dist: p.Versions["1.0.0"].Dist}

	dir, err := d.PutPkgInNodeModules(ctx, vi, false)
	if err != nil {
		t.Fatalf("PutPkgInNodeModules: %v", err)
	}
	if dir != d.Dir("tool", "1.0.0") {
		t.Errorf("dir = %q", dir)
	}
	if _, err := os.Stat(filepath.Join(dir, "bin", "run.sh")); err != nil {
		t.Errorf("bin/run.sh: %v", err)
	}

	if _, err := d.PutPkgInNodeModules(ctx, vi, false); err != nil {
		t.Fatal(err)
	}
	if reg.TarballRequests() != 1 {
		t.Errorf("downloads = %d, want 1", reg.TarballRequests())
	}
	if _, err := d.PutPkgInNodeModules(ctx, vi, true); err != nil {
		t.Fatal(err)
	}
	if reg.TarballRequests() != 2 {
		t.Errorf("forced downloads = %d, want 2", reg.TarballRequests())
	}

	local := &deps.VersionInfo{Name: "lib", Version: "0.1.0", LocalPath: "/src/lib"}
	if dir, err := d.PutPkgInNodeModules(ctx, local, false); err != nil || dir != "/src/lib" {
		t.Errorf("local = %q, %v", dir, err)
	}

	bad := &deps.VersionInfo{Name: "tool", Version: "1.0.0", Dist: manifest.Dist{Tarball: vi.Dist.Tarball, Integrity: "sha512-bm90IHRoZSBkaWdlc3Q="}}
	if _, err := d.PutPkgInNodeModules(ctx, bad, true); !errors.Is(err, errors.ErrCodeInvalidPackage) {
		t.Errorf("integrity mismatch: got %v", err)
	}
}

// TestResolveAgainstRegistry drives the resolver through a real Source and
// Dist against the fake registry.
func TestResolveAgainstRegistry(t *testing.T) {
	reg := registrytest.New(t)
	reg.Add("a", "1.0.0", registrytest.Version{Dependencies: map[string]string{"b": "^1.0.0"}}).
		Add("a", "1.3.0", registrytest.Version{Dependencies: map[string]string{"b": "^1.1.0"}}).
		Add("b", "1.0.0", registrytest.Version{}).
		Add("b", "1.2.0", registrytest.Version{}).
		Add("b", "2.0.0", registrytest.Version{}).
		Add("opt", "1.0.0", registrytest.Version{OS: []string{"win32"}})

	root, err := manifest.Parse([]byte(`{"name":"app","version":"0.0.0",
		"dependencies":{"a":"^1.0.0"},
		"devDependencies":{"b":"^2.0.0"},
		"optionalDependencies":{"opt":"^1.0.0"}}`))
	if err != nil {
		t.Fatal(err)
	}
	src := newSource(t, reg, Config{})
	r, err := deps.NewResolver(root, src, deps.Options{
		Platform: deps.Platform{OS: "linux", CPU: "x64"},
		Dist:     NewDist(src.client, filepath.Join(t.TempDir(), "node_modules"), nil),
	})
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	data, err := r.Resolve(ctx)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	if got := data.Pkgs["a"].Versions.Keys(); !slices.Equal(got, []string{"1.3.0"}) {
		t.Errorf("a = %v", got)
	}
	b := data.Pkgs["b"]
	if got := b.Versions.Keys(); !slices.Equal(got, []string{"2.0.0", "1.2.0"}) {
		t.Errorf("b = %v", got)
	}
	if b.Promoted() == nil || b.Promoted().Version != "2.0.0" {
		t.Errorf("promoted b = %+v", b.Promoted())
	}
	if data.Pkgs["opt"] != nil {
		t.Error("platform-excluded optional admitted")
	}
	if reg.TarballRequests() != 0 {
		t.Errorf("tarballs fetched without shrinkwrap or bundles: %d", reg.TarballRequests())
	}
}
