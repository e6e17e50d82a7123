package deps

import (
	"slices"

	"github.com/matzehuels/fyn/pkg/manifest"
	"github.com/matzehuels/fyn/pkg/orderedmap"
	"github.com/matzehuels/fyn/pkg/semver"
)

// Data is the resolved package registry produced by a resolve pass.
type Data struct {
	Pkgs    map[string]*KnownPackage // admitted packages
	BadPkgs map[string]*KnownPackage // optional packages that failed validation
	Res     Resolutions              // the root manifest's resolutions

	seq int
}

// NewData returns an empty registry.
func NewData() *Data {
	return &Data{
		Pkgs:    make(map[string]*KnownPackage),
		BadPkgs: make(map[string]*KnownPackage),
		Res:     make(Resolutions),
	}
}

// KnownPackage holds every resolved version of one package name.
type KnownPackage struct {
	Name   string
	Latest string // registry "latest" dist-tag, when metadata was fetched

	// Versions in first-seen order.
	Versions *orderedmap.Map[*VersionInfo]

	// Semvers maps each request to the version(s) it resolved to. More than
	// one version only happens when a shrinkwrap pins a nested copy.
	Semvers map[string][]string
}

func newKnownPackage(name string) *KnownPackage {
	return &KnownPackage{
		Name:     name,
		Versions: orderedmap.New[*VersionInfo](),
		Semvers:  make(map[string][]string),
	}
}

// HasSemver reports whether the request has been seen before.
func (kp *KnownPackage) HasSemver(s string) bool {
	_, ok := kp.Semvers[s]
	return ok
}

func (kp *KnownPackage) addSemver(s, version string) {
	if !slices.Contains(kp.Semvers[s], version) {
		kp.Semvers[s] = append(kp.Semvers[s], version)
	}
}

// Promoted returns the version installed at the top level, or nil.
func (kp *KnownPackage) Promoted() *VersionInfo {
	for _, vi := range kp.Versions.All() {
		if vi.Promoted {
			return vi
		}
	}
	return nil
}

// Find returns the first known version that satisfies s.
func (kp *KnownPackage) Find(s string) (*VersionInfo, bool) {
	if vs, ok := kp.Semvers[s]; ok && len(vs) > 0 {
		if vi, ok := kp.Versions.Get(vs[0]); ok {
			return vi, true
		}
	}
	for v, vi := range kp.Versions.All() {
		if semver.Satisfies(v, s) {
			return vi, true
		}
	}
	return nil, false
}

// VersionInfo is one resolved version of a package.
type VersionInfo struct {
	Name    string
	Version string

	Requests      [][]string // request traces, root first
	RequestCounts map[Section]int
	FirstReqIdx   int
	Src           string // ";"-joined root sections
	Dsrc          string // ";"-joined edge sections
	Priority      int

	Dist manifest.Dist
	Res  Resolutions // this version's own dependency resolutions
	Meta *manifest.Package

	Top        bool
	Promoted   bool
	Required   bool // reached through at least one non-optional path
	Local      string
	LocalPath  string
	OptFailed  bool
	HasPI      bool
	HasI       bool
	Deprecated string
	FromLock   bool // chosen from lock data
	Extracted  string
}

// ID returns name@version.
func (vi *VersionInfo) ID() string { return vi.Name + "@" + vi.Version }

func newVersionInfo(name, version string, meta *manifest.Package) *VersionInfo {
	vi := &VersionInfo{Name: name, Version: version, Meta: meta}
	if meta != nil {
		vi.Dist = meta.Dist
		vi.Local = meta.Local
		vi.LocalPath = meta.LocalPath
		vi.OptFailed = meta.OptFailed
		vi.HasPI = meta.HasPreinstall()
		vi.HasI = meta.HasInstall()
		vi.Deprecated = string(meta.Deprecated)
		vi.Extracted = meta.Extracted
	}
	return vi
}

// Resolution is one settled edge.
type Resolution struct {
	Semver   string
	Resolved string
}

// Resolutions is a resolved dependency sub-tree keyed by section.
type Resolutions map[Section]*orderedmap.Map[Resolution]

func (r Resolutions) set(sec Section, name string, res Resolution) {
	m := r[sec]
	if m == nil {
		m = orderedmap.New[Resolution]()
		r[sec] = m
	}
	m.Set(name, res)
}

// Get returns the resolution of name in sec.
func (r Resolutions) Get(sec Section, name string) (Resolution, bool) {
	if m := r[sec]; m != nil {
		return m.Get(name)
	}
	return Resolution{}, false
}

// VersionInfo returns the admitted name@version, or nil.
func (d *Data) VersionInfo(name, version string) *VersionInfo {
	kp := d.Pkgs[name]
	if kp == nil {
		return nil
	}
	vi, _ := kp.Versions.Get(version)
	return vi
}

// Names returns admitted package names sorted.
func (d *Data) Names() []string {
	names := make([]string, 0, len(d.Pkgs))
	for n := range d.Pkgs {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}

// Count returns the number of admitted versions.
func (d *Data) Count() int {
	n := 0
	for _, kp := range d.Pkgs {
		n += kp.Versions.Len()
	}
	return n
}

// admit registers item as resolved to version. It returns the version info
// and whether this is the first sighting of that version.
func (d *Data) admit(item *Item, version string, meta *manifest.Package, bad bool) (*VersionInfo, bool) {
	pkgs := d.Pkgs
	if bad {
		pkgs = d.BadPkgs
	}
	kp := pkgs[item.Name]
	if kp == nil {
		kp = newKnownPackage(item.Name)
		pkgs[item.Name] = kp
	}
	firstKnown := !kp.HasSemver(item.Semver)
	vi, exists := kp.Versions.Get(version)
	if !exists {
		vi = newVersionInfo(item.Name, version, meta)
		if bad {
			vi.OptFailed = true
		}
		kp.Versions.Set(version, vi)
	}
	kp.addSemver(item.Semver, version)

	item.Resolve(version, meta)
	d.seq++
	item.AddRequestToPkg(vi, !exists, d.seq)
	if item.IsTop() {
		vi.Top = true
	}
	if !bad {
		item.AddResolutionToParent(d, firstKnown)
	}
	return vi, !exists
}
