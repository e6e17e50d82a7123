package deps

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/matzehuels/fyn/pkg/errors"
	"github.com/matzehuels/fyn/pkg/manifest"
	"github.com/matzehuels/fyn/pkg/semver"
)

type fakeSource struct {
	mu      sync.Mutex
	pkgs    map[string]*Packument
	fetches map[string]int
}

func newFakeSource(t *testing.T, docs ...string) *fakeSource {
	t.Helper()
	s := &fakeSource{pkgs: make(map[string]*Packument), fetches: make(map[string]int)}
	for _, doc := range docs {
		pkg, err := manifest.Parse([]byte(doc))
		if err != nil {
			t.Fatalf("parse %s: %v", doc, err)
		}
		p := s.pkgs[pkg.Name]
		if p == nil {
			p = &Packument{Name: pkg.Name, DistTags: map[string]string{}, Versions: map[string]*manifest.Package{}}
			s.pkgs[pkg.Name] = p
		}
		p.Versions[pkg.Version] = pkg
		if cur := p.DistTags["latest"]; cur == "" || semver.Compare(pkg.Version, cur) > 0 {
			p.DistTags["latest"] = pkg.Version
		}
	}
	return s
}

func (s *fakeSource) FetchMeta(ctx context.Context, name string) (*Packument, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fetches[name]++
	if p, ok := s.pkgs[name]; ok {
		return p, nil
	}
	return nil, errors.New(errors.ErrCodePackageNotFound, "%s not found", name)
}

func (s *fakeSource) FetchLocalItem(ctx context.Context, item *Item) (*Packument, error) {
	pkg, err := manifest.Load(item.LocalPath)
	if errors.Is(err, errors.ErrCodeFileNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	pkg.Local = item.Spec.LocalType
	if pkg.Local == "" {
		pkg.Local = semver.LocalSym
	}
	pkg.LocalPath = item.LocalPath
	return NewLocalPackument(pkg), nil
}

func (s *fakeSource) FetchURLSemverMeta(ctx context.Context, item *Item) (*Packument, error) {
	return nil, errors.New(errors.ErrCodeUnsupported, "url %s", item.Spec.URL)
}

func (s *fakeSource) HasMeta(ctx context.Context, item *Item) bool { return false }

func (s *fakeSource) fetchCount(name string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fetches[name]
}

type lockEntry struct {
	version string
	meta    *manifest.Package
}

type fakeLock struct {
	mu        sync.Mutex
	entries   map[string]lockEntry // name@semver
	optFailed map[string]bool      // name@version
	removed   []string
}

func (l *fakeLock) Lookup(item *Item) (string, *manifest.Package, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.entries[item.Name+"@"+item.Semver]
	return e.version, e.meta, ok
}

func (l *fakeLock) Update(string, *Packument) {}

func (l *fakeLock) Remove(name, semverStr string, force bool) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	key := name + "@" + semverStr
	if _, ok := l.entries[key]; !ok {
		return false
	}
	delete(l.entries, key)
	l.removed = append(l.removed, key)
	return true
}

func (l *fakeLock) IsOptFailed(name, version string) bool { return l.optFailed[name+"@"+version] }

func (l *fakeLock) SetPkgDepItems(map[Section]*manifest.Deps) []DepChange { return nil }

// fakeDist writes the version's manifest into a fresh directory.
type fakeDist struct {
	dir string
}

func (d *fakeDist) PutPkgInNodeModules(ctx context.Context, vi *VersionInfo, force bool) (string, error) {
	dir := filepath.Join(d.dir, vi.Name, vi.Version)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}
	data, err := json.Marshal(vi.Meta)
	if err != nil {
		return "", err
	}
	return dir, os.WriteFile(filepath.Join(dir, "package.json"), data, 0644)
}

type fakeRunner struct {
	mu    sync.Mutex
	code  int
	calls []string
}

func (r *fakeRunner) Run(ctx context.Context, dir, script string, env []string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, script)
	return r.code, nil
}

func mustParse(t *testing.T, doc string) *manifest.Package {
	t.Helper()
	pkg, err := manifest.Parse([]byte(doc))
	if err != nil {
		t.Fatalf("parse root: %v", err)
	}
	return pkg
}

func resolve(t *testing.T, root string, src Source, opts Options) (*Data, error) {
	t.Helper()
	if opts.Platform == (Platform{}) {
		opts.Platform = Platform{OS: "linux", CPU: "x64"}
	}
	r, err := NewResolver(mustParse(t, root), src, opts)
	if err != nil {
		t.Fatalf("NewResolver: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return r.Resolve(ctx)
}

func versions(data *Data, name string) []string {
	kp := data.Pkgs[name]
	if kp == nil {
		return nil
	}
	return kp.Versions.Keys()
}
