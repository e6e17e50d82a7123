package lock

import (
	"path/filepath"
	"slices"
	"strings"

	"github.com/matzehuels/fyn/pkg/deps"
)

// Generate serializes a resolved registry into the compact form, with the
// config and manifest snapshot recorded on the store. The latest tag comes
// from metadata fetched during the resolve, else from the previous lock.
func (s *Store) Generate(data *deps.Data) *File {
	s.mu.Lock()
	f := &File{Config: s.config, Snapshot: s.snapshot, Entries: make(map[string]*Entry)}
	latest := make(map[string]string, len(s.expanded))
	for name, x := range s.expanded {
		latest[name] = x.latest
	}
	for name, e := range s.compact {
		latest[name] = e.Latest
	}
	s.mu.Unlock()

	add := func(pkgs map[string]*deps.KnownPackage) {
		for name, kp := range pkgs {
			e := f.Entries[name]
			if e == nil {
				e = newEntry()
				e.Latest = latest[name]
				f.Entries[name] = e
			}
			if kp.Latest != "" {
				e.Latest = kp.Latest
			}
			for v, vi := range kp.Versions.All() {
				if v == deps.FailedVersion {
					continue
				}
				e.Versions[v] = s.versionMeta(vi)
			}
			for group, vs := range groupSemvers(kp.Semvers) {
				e.Groups[group] = vs
			}
		}
	}
	add(data.Pkgs)
	add(data.BadPkgs)

	for name, e := range f.Entries {
		if len(e.Versions) == 0 {
			delete(f.Entries, name)
		}
	}
	return f
}

// groupSemvers inverts semver → versions into "sv1,sv2" → versions, joining
// every semver that resolved to the same versions.
func groupSemvers(semvers map[string][]string) map[string]Versions {
	byVersions := make(map[string][]string)
	lists := make(map[string]Versions)
	for sv, vs := range semvers {
		kept := slices.DeleteFunc(slices.Clone(vs), func(v string) bool { return v == deps.FailedVersion })
		if len(kept) == 0 {
			continue
		}
		slices.Sort(kept)
		key := strings.Join(kept, "\x00")
		byVersions[key] = append(byVersions[key], sv)
		lists[key] = kept
	}
	out := make(map[string]Versions, len(byVersions))
	for key, svs := range byVersions {
		slices.Sort(svs)
		out[strings.Join(svs, ",")] = lists[key]
	}
	return out
}

func (s *Store) versionMeta(vi *deps.VersionInfo) *VersionMeta {
	m := &VersionMeta{
		Top:        vi.Top,
		HasPI:      vi.HasPI,
		HasI:       vi.HasI,
		OptFailed:  vi.OptFailed,
		Deprecated: vi.Deprecated,
	}
	if vi.Local != "" && vi.LocalPath != "" {
		m.Integrity = integLocal
		rel, err := filepath.Rel(s.dir, vi.LocalPath)
		if err != nil {
			rel = vi.LocalPath
		}
		m.Resolved = filepath.ToSlash(rel)
	} else {
		m.Integrity = vi.Dist.Integrity
		m.Resolved = vi.Dist.Tarball
	}
	if meta := vi.Meta; meta != nil {
		m.Dependencies = meta.Dependencies.ToMap()
		m.OptionalDependencies = meta.OptionalDependencies.ToMap()
		m.PeerDependencies = meta.PeerDependencies.ToMap()
		m.BundleDependencies = meta.BundledNames()
		m.OS = meta.OS
		m.CPU = meta.CPU
	}
	return m
}
