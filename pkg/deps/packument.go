package deps

import (
	"sync"
	"time"

	"github.com/matzehuels/fyn/pkg/manifest"
	"github.com/matzehuels/fyn/pkg/semver"
)

// Packument is the metadata the resolver searches for a package name: every
// version document, dist-tags and publish times.
type Packument struct {
	Name     string
	DistTags map[string]string
	Versions map[string]*manifest.Package
	Time     map[string]time.Time

	// Local is set for single-version metadata synthesized from a local
	// directory or URL tarball.
	Local string

	sortOnce sync.Once
	sorted   []string
}

// Sorted returns the version keys newest first. The slice is computed once
// and shared; callers must not modify it.
func (p *Packument) Sorted() []string {
	p.sortOnce.Do(func() {
		vs := make([]string, 0, len(p.Versions))
		for v := range p.Versions {
			vs = append(vs, v)
		}
		semver.SortDesc(vs)
		p.sorted = vs
	})
	return p.sorted
}

// Latest returns the "latest" dist-tag.
func (p *Packument) Latest() string { return p.DistTags["latest"] }

// publishedBy reports whether v was published at or before cutoff. Versions
// without a time entry are kept.
func (p *Packument) publishedBy(v string, cutoff time.Time) bool {
	if cutoff.IsZero() {
		return true
	}
	t, ok := p.Time[v]
	return !ok || !t.After(cutoff)
}

// FindVersion picks the version of p that satisfies item's request.
//
// A dist-tag request returns the tagged version. Otherwise "latest" wins if
// it satisfies and is not newer than lockTime; else the newest satisfying
// version published by lockTime. If that is newer than "latest", the newest
// satisfying version not above "latest" is preferred across all versions.
func (p *Packument) FindVersion(req string, lockTime time.Time) (string, bool) {
	if p.Local != "" {
		for v := range p.Versions {
			return v, true
		}
		return "", false
	}

	if v, ok := p.DistTags[req]; ok {
		if _, exists := p.Versions[v]; exists {
			return v, true
		}
	}

	latest := p.Latest()
	if _, ok := p.Versions[latest]; !ok {
		latest = ""
	}
	if latest != "" && semver.Satisfies(latest, req) && p.publishedBy(latest, lockTime) {
		return latest, true
	}

	found := ""
	for _, v := range p.Sorted() {
		if p.publishedBy(v, lockTime) && semver.Satisfies(v, req) {
			found = v
			break
		}
	}
	if found == "" {
		return "", false
	}
	if latest != "" && semver.Compare(found, latest) > 0 {
		for _, v := range p.Sorted() {
			if semver.Compare(v, latest) <= 0 && semver.Satisfies(v, req) {
				return v, true
			}
		}
	}
	return found, true
}

// NewLocalPackument wraps a manifest read from disk or from a URL tarball
// as single-version metadata.
func NewLocalPackument(pkg *manifest.Package) *Packument {
	local := pkg.Local
	if local == "" {
		local = "url"
	}
	return &Packument{
		Name:     pkg.Name,
		DistTags: map[string]string{"latest": pkg.Version},
		Versions: map[string]*manifest.Package{pkg.Version: pkg},
		Local:    local,
	}
}
