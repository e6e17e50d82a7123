package lock

import (
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/matzehuels/fyn/pkg/deps"
	"github.com/matzehuels/fyn/pkg/errors"
	"github.com/matzehuels/fyn/pkg/manifest"
	"github.com/matzehuels/fyn/pkg/orderedmap"
	"github.com/matzehuels/fyn/pkg/semver"
)

// Store serves lock lookups to the resolver and generates the next lock.
// It is safe for concurrent use.
type Store struct {
	dir string

	mu       sync.Mutex
	compact  map[string]*Entry
	expanded map[string]*expanded
	prev     File
	snapshot Snapshot
	config   Config
}

var _ deps.LockStore = (*Store)(nil)

// NewStore wraps a decoded lock. f may be nil for a project without a lock.
// dir is the lock's directory; local package paths are stored relative to it.
func NewStore(f *File, dir string) *Store {
	s := &Store{
		dir:      dir,
		compact:  make(map[string]*Entry),
		expanded: make(map[string]*expanded),
	}
	if f != nil {
		s.prev = *f
		for name, e := range f.Entries {
			s.compact[name] = e
		}
		s.config = f.Config
	}
	return s
}

// Len returns the number of package names in the lock.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.compact) + len(s.expanded)
}

// Config returns the settings recorded in the previous lock.
func (s *Store) Config() Config { return s.prev.Config }

// SetConfig records the settings to write into the next lock.
func (s *Store) SetConfig(c Config) {
	s.mu.Lock()
	s.config = c
	s.mu.Unlock()
}

// expanded is the runtime index of one package's lock data.
type expanded struct {
	latest   string
	semvers  map[string][]string
	versions map[string]*VersionMeta
	sorted   []string // newest first; nil when stale
}

// expand builds the runtime index of e. Versions flagged invalid are
// dropped together with the semvers pointing at them.
func expand(e *Entry) *expanded {
	x := &expanded{
		latest:   e.Latest,
		semvers:  make(map[string][]string),
		versions: make(map[string]*VersionMeta, len(e.Versions)),
	}
	for v, m := range e.Versions {
		if m == nil || m.Invalid {
			continue
		}
		x.versions[v] = m
	}
	for group, vs := range e.Groups {
		for _, sv := range strings.Split(group, ",") {
			for _, v := range vs {
				if _, ok := x.versions[v]; ok && !slices.Contains(x.semvers[sv], v) {
					x.semvers[sv] = append(x.semvers[sv], v)
				}
			}
		}
	}
	return x
}

func (x *expanded) sortedVersions() []string {
	if x.sorted == nil {
		x.sorted = make([]string, 0, len(x.versions))
		for v := range x.versions {
			x.sorted = append(x.sorted, v)
		}
		semver.SortDesc(x.sorted)
	}
	return x.sorted
}

// convert returns the expanded entry for name, upgrading the compact entry
// on first use. Callers hold s.mu.
func (s *Store) convert(name string) *expanded {
	if x, ok := s.expanded[name]; ok {
		return x
	}
	e, ok := s.compact[name]
	if !ok {
		return nil
	}
	x := expand(e)
	s.expanded[name] = x
	delete(s.compact, name)
	return x
}

// Lookup returns the locked version for item's request: the exact semver
// mapping, else the newest locked version that satisfies it.
func (s *Store) Lookup(item *deps.Item) (string, *manifest.Package, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	x := s.convert(item.Name)
	if x == nil {
		return "", nil, false
	}
	v := ""
	if vs := x.semvers[item.Semver]; len(vs) > 0 {
		v = vs[0]
	} else if !item.Spec.IsLocal() && !item.Spec.IsURL() {
		for _, cand := range x.sortedVersions() {
			if semver.Satisfies(cand, item.Semver) {
				v = cand
				break
			}
		}
	}
	m := x.versions[v]
	if m == nil {
		return "", nil, false
	}
	pkg, err := s.toManifest(item.Name, v, m)
	if err != nil {
		return "", nil, false
	}
	return v, pkg, true
}

// toManifest rebuilds the manifest recorded for name@version. A local path
// that is not a clean lock-relative path is rejected.
func (s *Store) toManifest(name, version string, m *VersionMeta) (*manifest.Package, error) {
	pkg := &manifest.Package{
		Name:       name,
		Version:    version,
		OS:         m.OS,
		CPU:        m.CPU,
		Deprecated: manifest.Deprecated(m.Deprecated),
		Hints:      manifest.ScriptHints{Preinstall: m.HasPI, Install: m.HasI},
	}
	if len(m.Dependencies) > 0 {
		pkg.Dependencies = orderedmap.FromMap(m.Dependencies)
	}
	if len(m.OptionalDependencies) > 0 {
		pkg.OptionalDependencies = orderedmap.FromMap(m.OptionalDependencies)
	}
	if len(m.PeerDependencies) > 0 {
		pkg.PeerDependencies = orderedmap.FromMap(m.PeerDependencies)
	}
	if len(m.BundleDependencies) > 0 {
		pkg.BundleDependencies = manifest.Bundled{Names: m.BundleDependencies}
	}
	if m.IsLocal() {
		if err := errors.ValidatePath(m.Resolved); err != nil {
			return nil, err
		}
		pkg.LocalPath = filepath.Join(s.dir, filepath.FromSlash(m.Resolved))
		pkg.Local = semver.Analyze("file:" + m.Resolved).LocalType
	} else {
		pkg.Dist = manifest.Dist{Tarball: m.Resolved, Integrity: m.Integrity}
	}
	return pkg, nil
}

// Update merges fresh registry metadata into name's entry: the latest tag is
// refreshed and locked versions the registry no longer has are dropped.
func (s *Store) Update(name string, meta *deps.Packument) {
	if meta == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	x := s.convert(name)
	if x == nil {
		return
	}
	x.latest = meta.Latest()
	for v, m := range x.versions {
		if m.IsLocal() || strings.HasPrefix(m.Resolved, "git") {
			continue
		}
		if _, ok := meta.Versions[v]; !ok {
			s.dropVersion(x, v)
		}
	}
	x.sorted = nil
}

func (s *Store) dropVersion(x *expanded, v string) {
	delete(x.versions, v)
	for sv, vs := range x.semvers {
		vs = slices.DeleteFunc(vs, func(e string) bool { return e == v })
		if len(vs) == 0 {
			delete(x.semvers, sv)
		} else {
			x.semvers[sv] = vs
		}
	}
	x.sorted = nil
}

// Remove deletes the mapping of sv for name. With force, versions left
// without any semver mapping are deleted as well.
func (s *Store) Remove(name, sv string, force bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	x := s.convert(name)
	if x == nil {
		return false
	}
	vs, ok := x.semvers[sv]
	if !ok {
		return false
	}
	delete(x.semvers, sv)
	if force {
		for _, v := range vs {
			if !x.referenced(v) {
				delete(x.versions, v)
			}
		}
		x.sorted = nil
	}
	return true
}

func (x *expanded) referenced(v string) bool {
	for _, vs := range x.semvers {
		if slices.Contains(vs, v) {
			return true
		}
	}
	return false
}

// IsOptFailed reports whether name@version failed its optional probe when
// the lock was written.
func (s *Store) IsOptFailed(name, version string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	x := s.convert(name)
	if x == nil {
		return false
	}
	m := x.versions[version]
	return m != nil && m.OptFailed
}

// SetPkgDepItems records the root manifest's sections for the next lock and
// reports every name whose declaration was added, changed or removed since
// the previous one.
func (s *Store) SetPkgDepItems(sections map[deps.Section]*manifest.Deps) []deps.DepChange {
	snap := make(Snapshot)
	for sec, d := range sections {
		if d.Len() > 0 {
			snap[string(sec)] = d.ToMap()
		}
	}

	s.mu.Lock()
	s.snapshot = snap
	prev := s.prev.Snapshot
	s.mu.Unlock()

	if prev == nil {
		return nil
	}
	var changes []deps.DepChange
	for _, sec := range deps.Sections {
		cur, old := snap[string(sec)], prev[string(sec)]
		for _, name := range sortedKeys(cur) {
			if o := old[name]; o != cur[name] {
				changes = append(changes, deps.DepChange{Name: name, Section: sec, Old: o, New: cur[name]})
			}
		}
		for _, name := range sortedKeys(old) {
			if _, ok := cur[name]; !ok {
				changes = append(changes, deps.DepChange{Name: name, Section: sec, Old: old[name]})
			}
		}
	}
	return changes
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
