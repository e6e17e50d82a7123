package manifest

import (
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

const workspaceProtocol = "workspace:"

// FindWorkspaces expands the workspace globs of the manifest in root and
// returns each workspace package keyed by name. Directories without a
// package.json are skipped.
func FindWorkspaces(root string, patterns []string) (map[string]*Package, error) {
	found := make(map[string]*Package)
	fsys := os.DirFS(root)
	for _, pattern := range patterns {
		pattern = strings.TrimSuffix(filepath.ToSlash(pattern), "/")
		if strings.HasPrefix(pattern, "!") {
			continue
		}
		matches, err := doublestar.Glob(fsys, pattern+"/package.json", doublestar.WithFilesOnly())
		if err != nil {
			return nil, err
		}
		for _, m := range matches {
			dir := filepath.Join(root, filepath.Dir(m))
			if excluded(filepath.Dir(m), patterns) {
				continue
			}
			pkg, err := Load(filepath.Join(dir, "package.json"))
			if err != nil {
				return nil, err
			}
			if pkg.Name == "" {
				continue
			}
			abs, err := filepath.Abs(dir)
			if err != nil {
				return nil, err
			}
			pkg.LocalPath = abs
			found[pkg.Name] = pkg
		}
	}
	return found, nil
}

func excluded(dir string, patterns []string) bool {
	for _, p := range patterns {
		neg, ok := strings.CutPrefix(p, "!")
		if !ok {
			continue
		}
		if match, _ := doublestar.Match(strings.TrimSuffix(filepath.ToSlash(neg), "/"), filepath.ToSlash(dir)); match {
			return true
		}
	}
	return false
}

// RewriteWorkspaceProtocol replaces "workspace:" requests in pkg's dependency
// sections with the concrete ranges a publish would write:
//
//	workspace:*       -> <version>
//	workspace:^       -> ^<version>
//	workspace:~       -> ~<version>
//	workspace:<range> -> <range>
//
// versions maps workspace package names to their current versions. Entries
// naming unknown packages keep the bare range part. It reports whether
// anything changed.
func RewriteWorkspaceProtocol(pkg *Package, versions map[string]string) bool {
	changed := false
	for _, sec := range []*Deps{pkg.Dependencies, pkg.OptionalDependencies, pkg.PeerDependencies, pkg.DevDependencies} {
		if sec == nil {
			continue
		}
		for _, name := range sec.Keys() {
			req, _ := sec.Get(name)
			rest, ok := strings.CutPrefix(req, workspaceProtocol)
			if !ok {
				continue
			}
			ver := versions[name]
			switch {
			case rest == "*" || rest == "":
				rest = ver
			case (rest == "^" || rest == "~") && ver != "":
				rest += ver
			}
			if rest == "" || rest == "^" || rest == "~" {
				rest = "*"
			}
			sec.Set(name, rest)
			changed = true
		}
	}
	return changed
}

// WorkspaceNames returns the sorted names of the given workspace packages.
func WorkspaceNames(ws map[string]*Package) []string {
	names := make([]string, 0, len(ws))
	for name := range ws {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
