// Package lock reads and writes fyn's lock file and answers the resolver's
// questions about previously resolved versions.
//
// The persisted (compact) form maps every package name to its locked
// versions and a "_" table from comma-joined semver groups to the version
// they resolved to:
//
//	lodash:
//	  _latest: 4.17.21
//	  _:
//	    ^4.17.0,^4.17.21: 4.17.21
//	  4.17.21:
//	    $: sha512-...
//	    _: https://registry.npmjs.org/lodash/-/lodash-4.17.21.tgz
//
// A [Store] upgrades an entry to an expanded index the first time the
// resolver asks about that name. The compact entry is discarded at that
// point so the two forms are never both authoritative.
package lock

import (
	"bytes"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/matzehuels/fyn/pkg/errors"
	"github.com/matzehuels/fyn/pkg/semver"
)

// DefaultFile is the lock file name written next to package.json.
const DefaultFile = "fyn-lock.yaml"

const (
	keyConfig   = "$fyn"
	keySnapshot = "$pkg"
	integLocal  = "local"
)

// File is a decoded lock file.
type File struct {
	Config   Config
	Snapshot Snapshot
	Entries  map[string]*Entry
}

// Config echoes the settings a lock was generated with.
type Config struct {
	Registry     string `yaml:"registry,omitempty"`
	LockTime     string `yaml:"lockTime,omitempty"`
	Production   bool   `yaml:"production,omitempty"`
	ResolvePeers bool   `yaml:"resolvePeers,omitempty"`
}

// Diff names the settings that differ between c and other.
func (c Config) Diff(other Config) []string {
	var out []string
	if c.Registry != other.Registry {
		out = append(out, "registry")
	}
	if c.LockTime != other.LockTime {
		out = append(out, "lockTime")
	}
	if c.Production != other.Production {
		out = append(out, "production")
	}
	if c.ResolvePeers != other.ResolvePeers {
		out = append(out, "resolvePeers")
	}
	return out
}

// Snapshot is the root manifest's dependency sections at lock time, keyed by
// section name ("dep", "dev", "opt", "per").
type Snapshot map[string]map[string]string

// Entry is the compact lock record of one package name.
type Entry struct {
	Latest   string                  `yaml:"_latest,omitempty"`
	Groups   map[string]Versions     `yaml:"_,omitempty"`
	Versions map[string]*VersionMeta `yaml:",inline"`
}

func newEntry() *Entry {
	return &Entry{Groups: make(map[string]Versions), Versions: make(map[string]*VersionMeta)}
}

// Versions is one version, or several when a semver group legitimately
// resolved to more than one.
type Versions []string

func (v *Versions) UnmarshalYAML(n *yaml.Node) error {
	if n.Kind == yaml.ScalarNode {
		*v = Versions{n.Value}
		return nil
	}
	var list []string
	if err := n.Decode(&list); err != nil {
		return err
	}
	*v = list
	return nil
}

func (v Versions) MarshalYAML() (any, error) {
	if len(v) == 1 {
		return v[0], nil
	}
	return []string(v), nil
}

// VersionMeta is what the lock keeps about one resolved version.
type VersionMeta struct {
	Top       bool `yaml:"top,omitempty"`
	HasPI     bool `yaml:"hasPI,omitempty"`
	HasI      bool `yaml:"hasI,omitempty"`
	OptFailed bool `yaml:"optFailed,omitempty"`
	Invalid   bool `yaml:"invalid,omitempty"` // dropped on load

	Integrity string `yaml:"$,omitempty"` // dist integrity, or "local"
	Resolved  string `yaml:"_,omitempty"` // tarball URL, or path relative to the lock

	Dependencies         map[string]string `yaml:"dependencies,omitempty"`
	OptionalDependencies map[string]string `yaml:"optionalDependencies,omitempty"`
	PeerDependencies     map[string]string `yaml:"peerDependencies,omitempty"`
	BundleDependencies   []string          `yaml:"bundleDependencies,omitempty"`
	OS                   []string          `yaml:"os,omitempty"`
	CPU                  []string          `yaml:"cpu,omitempty"`
	Deprecated           string            `yaml:"deprecated,omitempty"`
}

// IsLocal reports whether the version came from the filesystem.
func (m *VersionMeta) IsLocal() bool { return m.Integrity == integLocal }

// Parse decodes lock file content.
func Parse(data []byte) (*File, error) {
	f := &File{Entries: make(map[string]*Entry)}
	if len(bytes.TrimSpace(data)) == 0 {
		return f, nil
	}
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidLock, err, "parse lock")
	}
	if len(doc.Content) == 0 {
		return f, nil
	}
	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, errors.New(errors.ErrCodeInvalidLock, "lock must be a mapping, line %d", root.Line)
	}
	for i := 0; i+1 < len(root.Content); i += 2 {
		key, val := root.Content[i].Value, root.Content[i+1]
		var err error
		switch key {
		case keyConfig:
			err = val.Decode(&f.Config)
		case keySnapshot:
			err = val.Decode(&f.Snapshot)
		default:
			if err = errors.ValidateNpmPackageName(key); err != nil {
				break
			}
			e := newEntry()
			if err = val.Decode(e); err == nil {
				f.Entries[key] = e
			}
		}
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeInvalidLock, err, "lock entry %q", key)
		}
	}
	return f, nil
}

// Read loads the lock at path. A missing file is (nil, nil).
func Read(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	f, err := Parse(data)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidLock, err, "%s", path)
	}
	return f, nil
}

// Marshal encodes f with "$fyn" and "$pkg" first, names sorted, semver
// groups sorted and versions in semver order.
func (f *File) Marshal() ([]byte, error) {
	root := &yaml.Node{Kind: yaml.MappingNode}
	if f.Config != (Config{}) {
		if err := addValue(root, keyConfig, f.Config); err != nil {
			return nil, err
		}
	}
	if len(f.Snapshot) > 0 {
		if err := addValue(root, keySnapshot, f.Snapshot); err != nil {
			return nil, err
		}
	}
	names := make([]string, 0, len(f.Entries))
	for n := range f.Entries {
		names = append(names, n)
	}
	slices.Sort(names)
	for _, name := range names {
		node, err := f.Entries[name].node()
		if err != nil {
			return nil, err
		}
		root.Content = append(root.Content, scalar(name), node)
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(root); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (e *Entry) node() (*yaml.Node, error) {
	n := &yaml.Node{Kind: yaml.MappingNode}
	if e.Latest != "" {
		n.Content = append(n.Content, scalar("_latest"), scalar(e.Latest))
	}
	if len(e.Groups) > 0 {
		groups := &yaml.Node{Kind: yaml.MappingNode}
		keys := make([]string, 0, len(e.Groups))
		for k := range e.Groups {
			keys = append(keys, k)
		}
		slices.Sort(keys)
		for _, k := range keys {
			if err := addValue(groups, k, e.Groups[k]); err != nil {
				return nil, err
			}
		}
		n.Content = append(n.Content, scalar("_"), groups)
	}
	versions := make([]string, 0, len(e.Versions))
	for v := range e.Versions {
		versions = append(versions, v)
	}
	semver.SortAsc(versions)
	for _, v := range versions {
		if err := addValue(n, v, e.Versions[v]); err != nil {
			return nil, err
		}
	}
	return n, nil
}

func scalar(s string) *yaml.Node {
	n := &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: s}
	if strings.ContainsAny(s, "^~<>=|*,: ") || s == "" {
		n.Style = yaml.DoubleQuotedStyle
	}
	return n
}

func addValue(m *yaml.Node, key string, v any) error {
	var n yaml.Node
	if err := n.Encode(v); err != nil {
		return errors.Wrap(errors.ErrCodeInternal, err, "encode lock key %q", key)
	}
	m.Content = append(m.Content, scalar(key), &n)
	return nil
}

// Write encodes f to path atomically.
func Write(path string, f *File) error {
	data, err := f.Marshal()
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
