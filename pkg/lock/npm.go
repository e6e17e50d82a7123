package lock

import (
	"encoding/json"
	"os"
	"path"
	"strings"

	"github.com/matzehuels/fyn/pkg/errors"
)

// NpmLockFile is npm's lock file name.
const NpmLockFile = "package-lock.json"

type npmLock struct {
	LockfileVersion int                    `json:"lockfileVersion"`
	Packages        map[string]*npmPackage `json:"packages"`
}

type npmPackage struct {
	Name                 string            `json:"name"`
	Version              string            `json:"version"`
	Resolved             string            `json:"resolved"`
	Integrity            string            `json:"integrity"`
	Link                 bool              `json:"link"`
	Dependencies         map[string]string `json:"dependencies"`
	DevDependencies      map[string]string `json:"devDependencies"`
	OptionalDependencies map[string]string `json:"optionalDependencies"`
	PeerDependencies     map[string]string `json:"peerDependencies"`
	OS                   []string          `json:"os"`
	CPU                  []string          `json:"cpu"`
	HasInstallScript     bool              `json:"hasInstallScript"`
	Deprecated           string            `json:"deprecated"`
}

// ReadNpmLock imports the package-lock.json at p (lockfileVersion 2 or 3).
// A missing file is (nil, nil).
func ReadNpmLock(p string) (*File, error) {
	data, err := os.ReadFile(p)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return ParseNpmLock(data)
}

// ParseNpmLock converts npm's "packages" layout into the compact form. Each
// package's requests are resolved the way node does: the nearest
// node_modules directory walking up from the requester.
func ParseNpmLock(data []byte) (*File, error) {
	var nl npmLock
	if err := json.Unmarshal(data, &nl); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidLock, err, "parse %s", NpmLockFile)
	}
	if nl.LockfileVersion < 2 || nl.Packages == nil {
		return nil, errors.New(errors.ErrCodeUnsupported, "%s version %d has no packages table", NpmLockFile, nl.LockfileVersion)
	}

	f := &File{Entries: make(map[string]*Entry)}
	semvers := make(map[string]map[string][]string) // name → semver → versions

	for loc, pkg := range nl.Packages {
		if loc == "" || pkg.Link {
			continue
		}
		name := pkg.Name
		if name == "" {
			name = npmName(loc)
		}
		if name == "" || pkg.Version == "" {
			continue
		}
		e := f.Entries[name]
		if e == nil {
			e = newEntry()
			f.Entries[name] = e
		}
		e.Versions[pkg.Version] = &VersionMeta{
			HasI:                 pkg.HasInstallScript,
			Integrity:            pkg.Integrity,
			Resolved:             pkg.Resolved,
			Dependencies:         pkg.Dependencies,
			OptionalDependencies: pkg.OptionalDependencies,
			PeerDependencies:     pkg.PeerDependencies,
			OS:                   pkg.OS,
			CPU:                  pkg.CPU,
			Deprecated:           pkg.Deprecated,
		}
	}

	record := func(from, name, sv string) {
		pkg := npmFind(nl.Packages, from, name)
		if pkg == nil || pkg.Link || pkg.Version == "" {
			return
		}
		if semvers[name] == nil {
			semvers[name] = make(map[string][]string)
		}
		for _, v := range semvers[name][sv] {
			if v == pkg.Version {
				return
			}
		}
		semvers[name][sv] = append(semvers[name][sv], pkg.Version)
	}
	for loc, pkg := range nl.Packages {
		if pkg.Link {
			continue
		}
		tables := []map[string]string{pkg.Dependencies, pkg.OptionalDependencies, pkg.PeerDependencies}
		if loc == "" {
			tables = append(tables, pkg.DevDependencies)
		}
		for _, t := range tables {
			for name, sv := range t {
				record(loc, name, sv)
			}
		}
	}
	if root := nl.Packages[""]; root != nil {
		for name := range root.Dependencies {
			if e := f.Entries[name]; e != nil {
				if top := nl.Packages["node_modules/"+name]; top != nil {
					if m := e.Versions[top.Version]; m != nil {
						m.Top = true
					}
				}
			}
		}
	}
	for name, byS := range semvers {
		if e := f.Entries[name]; e != nil {
			for g, vs := range groupSemvers(byS) {
				e.Groups[g] = vs
			}
		}
	}
	return f, nil
}

// npmName extracts the package name from a location such as
// "node_modules/a/node_modules/@s/b".
func npmName(loc string) string {
	i := strings.LastIndex(loc, "node_modules/")
	if i < 0 {
		return ""
	}
	return loc[i+len("node_modules/"):]
}

// npmFind resolves name as required from location from.
func npmFind(pkgs map[string]*npmPackage, from, name string) *npmPackage {
	dir := from
	for {
		cand := path.Join(dir, "node_modules", name)
		if p, ok := pkgs[cand]; ok {
			return p
		}
		if dir == "" {
			return nil
		}
		i := strings.LastIndex(dir, "node_modules/")
		if i < 0 {
			dir = ""
			continue
		}
		dir = strings.TrimSuffix(dir[:i], "/")
	}
}
