package deps

import (
	"slices"

	"github.com/matzehuels/fyn/pkg/semver"
)

// promote flags exactly one version of every package for the top-level
// install location: the only version, else the direct dependency, else the
// first seen unless a later one has strictly higher priority.
func promote(data *Data) {
	for _, kp := range data.Pkgs {
		var chosen *VersionInfo
		for _, vi := range kp.Versions.All() {
			vi.Promoted = false
			if vi.Top && (chosen == nil || !chosen.Top) {
				chosen = vi
				continue
			}
			if chosen == nil || (!chosen.Top && vi.Priority > chosen.Priority) {
				chosen = vi
			}
		}
		if chosen != nil {
			chosen.Promoted = true
		}
	}
}

// dedupe removes lock mappings of versions that duplicate a newer version in
// the same major group. It reports whether anything was removed.
func (r *Resolver) dedupe(data *Data) bool {
	if r.opts.Lock == nil {
		return false
	}
	removed := false
	for _, name := range data.Names() {
		kp := data.Pkgs[name]
		if kp.Versions.Len() < 2 {
			continue
		}
		groups := make(map[string][]*VersionInfo)
		for v, vi := range kp.Versions.All() {
			m := semver.EffectiveMajor(v)
			groups[m] = append(groups[m], vi)
		}
		for _, group := range groups {
			if len(group) < 2 {
				continue
			}
			newest := group[0]
			for _, vi := range group[1:] {
				if semver.Compare(vi.Version, newest.Version) > 0 {
					newest = vi
				}
			}
			for _, vi := range group {
				if vi == newest || !(vi.FromLock || r.opts.NpmLockImported) {
					continue
				}
				semvers := make([]string, 0, len(kp.Semvers))
				for s, vs := range kp.Semvers {
					if slices.Contains(vs, vi.Version) {
						semvers = append(semvers, s)
					}
				}
				slices.Sort(semvers)
				for _, s := range semvers {
					if r.opts.Lock.Remove(name, s, true) {
						r.log.Debug("removed duplicated lock entry", "pkg", vi.ID(), "semver", s, "keep", newest.Version)
						removed = true
					}
				}
			}
		}
	}
	return removed
}
