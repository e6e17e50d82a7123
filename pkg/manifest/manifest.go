// Package manifest models package.json documents.
//
// The same [Package] type describes a project's own package.json, a local
// (file: or workspace) package, and a single version document inside a
// registry packument. Dependency sections keep their declaration order,
// because that order feeds npm's tie-breaking priority.
package manifest

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/matzehuels/fyn/pkg/errors"
	"github.com/matzehuels/fyn/pkg/orderedmap"
)

// Deps is an ordered name → requested-version table.
type Deps = orderedmap.Map[string]

// Package is a package.json or registry version document.
type Package struct {
	Name    string `json:"name"`
	Version string `json:"version"`

	Dependencies         *Deps `json:"dependencies,omitempty"`
	DevDependencies      *Deps `json:"devDependencies,omitempty"`
	OptionalDependencies *Deps `json:"optionalDependencies,omitempty"`
	PeerDependencies     *Deps `json:"peerDependencies,omitempty"`

	BundleDependencies  Bundled `json:"bundleDependencies,omitzero"`
	BundledDependencies Bundled `json:"bundledDependencies,omitzero"`

	Scripts map[string]string `json:"scripts,omitempty"`
	OS      []string          `json:"os,omitempty"`
	CPU     []string          `json:"cpu,omitempty"`
	Dist    Dist              `json:"dist,omitzero"`

	Deprecated    Deprecated `json:"deprecated,omitempty"`
	HasShrinkwrap bool       `json:"_hasShrinkwrap,omitempty"`

	Resolutions map[string]string `json:"resolutions,omitempty"`
	Overrides   json.RawMessage   `json:"overrides,omitempty"`
	Workspaces  Workspaces        `json:"workspaces,omitempty"`

	PublishConfig map[string]any `json:"publishConfig,omitempty"`

	// Fyn is written back into extracted packages to remember probe results.
	Fyn *Marker `json:"_fyn,omitempty"`

	// Runtime-only state filled in by sources and the resolver.
	Local      string      `json:"-"` // LocalHard or LocalSym when the package comes from disk
	LocalPath  string      `json:"-"` // absolute directory of a local package
	OptFailed  bool        `json:"-"` // placeholder for an optional package whose metadata failed
	Shrinkwrap *Shrinkwrap `json:"-"`
	Extracted  string      `json:"-"` // directory the dist fetcher unpacked into
	Hints      ScriptHints `json:"-"` // script presence known without the scripts themselves
}

// ScriptHints records which lifecycle scripts a package has when only a
// summary is available, as in lock data.
type ScriptHints struct {
	Preinstall bool
	Install    bool
}

// Marker records per-package probe state.
type Marker struct {
	Preinstall bool `json:"preinstall,omitempty"`
}

// Dist is the tarball descriptor of a published version.
type Dist struct {
	Tarball   string `json:"tarball,omitempty"`
	Integrity string `json:"integrity,omitempty"`
	Shasum    string `json:"shasum,omitempty"`
}

// IsZero reports whether no dist information is present.
func (d Dist) IsZero() bool { return d == Dist{} }

// Bundled lists bundled dependency names. The registry sometimes sends
// `true` meaning "all dependencies".
type Bundled struct {
	All   bool
	Names []string
}

// UnmarshalJSON accepts a boolean or an array of names.
func (b *Bundled) UnmarshalJSON(data []byte) error {
	switch strings.TrimSpace(string(data)) {
	case "null", "false":
		*b = Bundled{}
		return nil
	case "true":
		*b = Bundled{All: true}
		return nil
	}
	var names []string
	if err := json.Unmarshal(data, &names); err != nil {
		return fmt.Errorf("bundleDependencies: %w", err)
	}
	*b = Bundled{Names: names}
	return nil
}

// MarshalJSON writes the array form, or true when every dependency is bundled.
func (b Bundled) MarshalJSON() ([]byte, error) {
	if b.All {
		return []byte("true"), nil
	}
	return json.Marshal(b.Names)
}

// IsZero reports whether nothing is bundled.
func (b Bundled) IsZero() bool { return !b.All && len(b.Names) == 0 }

// Deprecated holds a deprecation message; boolean true becomes "deprecated".
type Deprecated string

// UnmarshalJSON accepts a string or a boolean.
func (d *Deprecated) UnmarshalJSON(data []byte) error {
	switch strings.TrimSpace(string(data)) {
	case "null", "false":
		*d = ""
		return nil
	case "true":
		*d = "deprecated"
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*d = Deprecated(s)
	return nil
}

// Workspaces accepts both the array form and the yarn object form
// ({"packages": [...]}).
type Workspaces []string

// UnmarshalJSON decodes either workspace form.
func (w *Workspaces) UnmarshalJSON(data []byte) error {
	var list []string
	if err := json.Unmarshal(data, &list); err == nil {
		*w = list
		return nil
	}
	var obj struct {
		Packages []string `json:"packages"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("workspaces: %w", err)
	}
	*w = obj.Packages
	return nil
}

// Shrinkwrap is a pinned nested dependency tree shipped inside a package.
type Shrinkwrap struct {
	Dependencies map[string]*ShrinkwrapDep `json:"dependencies,omitempty"`
}

// ShrinkwrapDep is one node in a shrinkwrap tree.
type ShrinkwrapDep struct {
	Version      string                    `json:"version"`
	Dependencies map[string]*ShrinkwrapDep `json:"dependencies,omitempty"`
}

// BundledNames returns the bundled dependency names, expanding the "all" form.
func (p *Package) BundledNames() []string {
	b := p.BundleDependencies
	if b.IsZero() {
		b = p.BundledDependencies
	}
	if b.All {
		return p.Dependencies.Keys()
	}
	return b.Names
}

// HasScript reports whether the named lifecycle script is declared.
func (p *Package) HasScript(name string) bool {
	return strings.TrimSpace(p.Scripts[name]) != ""
}

// HasPreinstall reports whether a preinstall script is declared.
func (p *Package) HasPreinstall() bool { return p.HasScript("preinstall") || p.Hints.Preinstall }

// HasInstall reports whether an install or postinstall script is declared.
func (p *Package) HasInstall() bool {
	return p.HasScript("install") || p.HasScript("postinstall") || p.Hints.Install
}

// ID returns name@version.
func (p *Package) ID() string { return p.Name + "@" + p.Version }

// Parse decodes a package.json document.
func Parse(data []byte) (*Package, error) {
	var pkg Package
	if err := json.Unmarshal(data, &pkg); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidManifest, err, "parse package.json")
	}
	for sec, deps := range map[string]*Deps{
		"dependencies":         pkg.Dependencies,
		"devDependencies":      pkg.DevDependencies,
		"optionalDependencies": pkg.OptionalDependencies,
		"peerDependencies":     pkg.PeerDependencies,
	} {
		for name := range deps.All() {
			if err := errors.ValidateNpmPackageName(name); err != nil {
				return nil, errors.Wrap(errors.ErrCodeInvalidManifest, err, "%s", sec)
			}
		}
	}
	return &pkg, nil
}

// Load reads and parses the package.json at path. A directory path means
// <dir>/package.json.
func Load(path string) (*Package, error) {
	if fi, err := os.Stat(path); err == nil && fi.IsDir() {
		path = filepath.Join(path, "package.json")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Wrap(errors.ErrCodeFileNotFound, err, "read %s", path)
		}
		return nil, err
	}
	pkg, err := Parse(data)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidManifest, err, "%s", path)
	}
	return pkg, nil
}

// LoadShrinkwrap reads npm-shrinkwrap.json from dir, returning nil when absent.
func LoadShrinkwrap(dir string) (*Shrinkwrap, error) {
	data, err := os.ReadFile(filepath.Join(dir, "npm-shrinkwrap.json"))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var sw Shrinkwrap
	if err := json.Unmarshal(data, &sw); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidManifest, err, "parse npm-shrinkwrap.json in %s", dir)
	}
	return &sw, nil
}
