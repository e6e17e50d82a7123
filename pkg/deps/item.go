package deps

import (
	"strings"

	"github.com/matzehuels/fyn/pkg/manifest"
	"github.com/matzehuels/fyn/pkg/orderedmap"
	"github.com/matzehuels/fyn/pkg/semver"
)

// Item is one edge of the dependency request tree: a name and requested
// semver declared by a parent package.
//
// An Item is owned by the work unit resolving its name. Only the resolver
// mutates it, and never after the depth it belongs to has completed.
type Item struct {
	Name     string
	Semver   string      // current request, possibly rewritten by overrides
	Declared string      // request as written in the parent manifest
	Spec     semver.Spec // analysis of Semver
	Resolved string      // settled version, "" until resolved

	Section     Section // section of the parent manifest that declared this edge
	Src         Section // root section this edge descends from
	Dsrc        string  // ";"-joined sections this edge was reached through
	Priority    int
	Depth       int
	NameDepPath string // slash-joined ancestor names ending with Name, scopes unslashed

	LocalPath   string // directory of a local or workspace package
	URLType     string // "tarball" or "git" for URL requests
	DeepResolve bool   // expand children even if the version was already known

	probed bool // passed the optional checker
	root   bool

	parent     *Item
	nested     map[string]*orderedmap.Map[string] // name → semver → version
	shrinkwrap map[string]*manifest.ShrinkwrapDep
	circular   *bool
}

func newRootItem(pkg *manifest.Package) *Item {
	return &Item{Name: pkg.Name, Resolved: pkg.Version, root: true}
}

func newItem(parent *Item, name, semverStr string, sec Section) *Item {
	it := &Item{
		Name:     name,
		Semver:   semverStr,
		Declared: semverStr,
		Spec:     semver.Analyze(semverStr),
		Section:  sec,
		parent:   parent,
	}
	if parent == nil || parent.root {
		it.Src = sec
		it.Dsrc = string(sec)
		it.NameDepPath = unslash(name)
		return it
	}
	it.Src = parent.Src
	it.Dsrc = string(sec)
	if sec != SectionOpt && hasFlag(parent.Dsrc, SectionOpt) {
		it.Dsrc = unionFlags(it.Dsrc, string(SectionOpt))
	}
	it.Priority = parent.Priority
	it.Depth = parent.Depth + 1
	it.NameDepPath = parent.NameDepPath + "/" + unslash(name)
	if sw := parent.shrinkwrap[name]; sw != nil && len(sw.Dependencies) > 0 {
		it.shrinkwrap = make(map[string]*manifest.ShrinkwrapDep, len(sw.Dependencies))
		for k, v := range sw.Dependencies {
			it.shrinkwrap[k] = v
		}
	}
	return it
}

// unslash turns "@scope/name" into a single path segment.
func unslash(name string) string {
	return strings.Replace(name, "/", "%", 1)
}

// ID returns name@resolved, or name@semver before resolution.
func (it *Item) ID() string {
	if it.Resolved != "" {
		return it.Name + "@" + it.Resolved
	}
	return it.Name + "@" + it.Semver
}

// Parent returns the requesting item, nil for top-level items and pruned
// circular edges.
func (it *Item) Parent() *Item {
	if it.parent == nil || it.parent.root {
		return nil
	}
	return it.parent
}

// IsTop reports whether the item was declared by the root manifest.
func (it *Item) IsTop() bool { return it.parent != nil && it.parent.root }

// IsOptional reports whether any hop to this edge went through an optional
// section.
func (it *Item) IsOptional() bool { return hasFlag(it.Dsrc, SectionOpt) }

// SetSemver replaces the request, re-analysing it.
func (it *Item) SetSemver(s string) {
	it.Semver = s
	it.Spec = semver.Analyze(s)
	it.circular = nil
}

// Resolve settles the item on version and merges the version's shrinkwrap.
// Earlier shrinkwrap keys are kept; new keys win on conflict.
func (it *Item) Resolve(version string, meta *manifest.Package) {
	it.Resolved = version
	it.circular = nil
	if meta == nil || meta.Shrinkwrap == nil || len(meta.Shrinkwrap.Dependencies) == 0 {
		return
	}
	if it.shrinkwrap == nil {
		it.shrinkwrap = make(map[string]*manifest.ShrinkwrapDep, len(meta.Shrinkwrap.Dependencies))
	}
	for k, v := range meta.Shrinkwrap.Dependencies {
		it.shrinkwrap[k] = v
	}
}

// NestedResolve looks for an earlier resolution of name@semverStr among the
// item's ancestors, nearest first: an exact nested memo hit, a satisfying
// shrinkwrap pin, or a memoized resolution of another semver that also
// satisfies. The item's own memo and pins describe its children and are
// never consulted.
func (it *Item) NestedResolve(name, semverStr string) (string, bool) {
	for x := it.parent; x != nil && !x.root; x = x.parent {
		if memo := x.nested[name]; memo != nil {
			if v, ok := memo.Get(semverStr); ok {
				return v, true
			}
		}
		if sw := x.shrinkwrap[name]; sw != nil && sw.Version != "" && semver.Satisfies(sw.Version, semverStr) {
			return sw.Version, true
		}
		if memo := x.nested[name]; memo != nil {
			for _, v := range memo.All() {
				if semver.Satisfies(v, semverStr) {
					return v, true
				}
			}
		}
	}
	return "", false
}

// RequestPath returns the request trace from the root down to this edge and
// whether any hop was optional. Ancestors carry their resolved id; the last
// token does not.
func (it *Item) RequestPath() ([]string, bool) {
	var path []string
	optional := false
	for x := it; x != nil && !x.root; x = x.parent {
		tok := string(x.Section) + ";" + x.Semver
		if x != it {
			tok += ";" + x.ID()
		}
		path = append(path, tok)
		if x.Section == SectionOpt {
			optional = true
		}
	}
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path, optional
}

// AddRequestToPkg records this edge as a requester of vi.
func (it *Item) AddRequestToPkg(vi *VersionInfo, firstSeen bool, seq int) {
	if vi.RequestCounts == nil {
		vi.RequestCounts = make(map[Section]int)
	}
	vi.RequestCounts[it.Section]++
	path, optional := it.RequestPath()
	vi.Requests = append(vi.Requests, path)
	if firstSeen {
		vi.FirstReqIdx = seq
	}
	vi.Src = unionFlags(vi.Src, string(it.Src))
	vi.Dsrc = unionFlags(vi.Dsrc, it.Dsrc)
	if !optional && !it.IsOptional() {
		vi.Required = true
	}
	if it.Priority > vi.Priority {
		vi.Priority = it.Priority
	}
}

// AddResolutionToParent records the edge in the parent's resolution
// sub-tree, or in the root's for top-level items. The parent's nested memo
// is updated unless this semver is new for the package.
func (it *Item) AddResolutionToParent(data *Data, firstKnown bool) {
	if it.parent == nil {
		return
	}
	var res Resolutions
	if it.parent.root {
		res = data.Res
	} else {
		vi := data.VersionInfo(it.parent.Name, it.parent.Resolved)
		if vi == nil {
			return
		}
		if vi.Res == nil {
			vi.Res = make(Resolutions)
		}
		res = vi.Res
	}
	res.set(it.Section, it.Name, Resolution{Semver: it.Semver, Resolved: it.Resolved})

	if it.parent.root || firstKnown {
		return
	}
	if it.parent.nested == nil {
		it.parent.nested = make(map[string]*orderedmap.Map[string])
	}
	memo := it.parent.nested[it.Name]
	if memo == nil {
		memo = orderedmap.New[string]()
		it.parent.nested[it.Name] = memo
	}
	memo.Set(it.Semver, it.Resolved)
}

// IsCircular reports whether an ancestor below the root has the same id.
func (it *Item) IsCircular() bool {
	if it.circular != nil {
		return *it.circular
	}
	id := it.ID()
	found := false
	for x := it.parent; x != nil && !x.root; x = x.parent {
		if x.ID() == id {
			found = true
			break
		}
	}
	it.circular = &found
	return found
}

// Unref drops the parent link of a pruned circular edge.
func (it *Item) Unref() { it.parent = nil }
