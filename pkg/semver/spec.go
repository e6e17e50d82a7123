package semver

import (
	"path/filepath"
	"regexp"
	"strings"
)

// Kind classifies the right-hand side of a dependency declaration.
type Kind int

const (
	KindRange Kind = iota // a version range such as "^1.2.0"
	KindTag               // a dist-tag such as "latest" or "next"
	KindLocal             // a filesystem path: "file:../a", "./a", "~/a", "link:../a"
	KindURL               // a tarball or git URL
)

func (k Kind) String() string {
	switch k {
	case KindTag:
		return "tag"
	case KindLocal:
		return "local"
	case KindURL:
		return "url"
	default:
		return "range"
	}
}

// Local link kinds.
const (
	LocalHard = "hard" // copied into the install location
	LocalSym  = "sym"  // symlinked to the source directory
)

// Spec is the analysed form of a dependency's requested version string.
type Spec struct {
	Raw       string
	Kind      Kind
	Path      string // KindLocal: path as written, prefix removed
	URL       string // KindURL
	LocalType string // KindLocal: LocalHard or LocalSym
}

// IsLocal reports whether the specifier points at the filesystem.
func (s Spec) IsLocal() bool { return s.Kind == KindLocal }

// IsURL reports whether the specifier points at a remote tarball or repository.
func (s Spec) IsURL() bool { return s.Kind == KindURL }

var (
	urlPrefixes = []string{"http://", "https://", "git://", "git+", "github:", "gitlab:", "bitbucket:"}
	gitShortcut = regexp.MustCompile(`^[A-Za-z0-9_.-]+/[A-Za-z0-9_.-]+(#.*)?$`)
	tagPattern  = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9._-]*$`)
)

// Analyze classifies a requested version string.
func Analyze(raw string) Spec {
	s := strings.TrimSpace(raw)
	spec := Spec{Raw: raw}

	switch {
	case strings.HasPrefix(s, "link:"):
		spec.Kind, spec.LocalType = KindLocal, LocalSym
		spec.Path = strings.TrimPrefix(s, "link:")
		return spec
	case strings.HasPrefix(s, "file:"):
		spec.Kind, spec.LocalType = KindLocal, LocalSym
		spec.Path = strings.TrimPrefix(s, "file:")
		if isTarballPath(spec.Path) {
			spec.LocalType = LocalHard
		}
		return spec
	case strings.HasPrefix(s, "./"), strings.HasPrefix(s, "../"), strings.HasPrefix(s, "~/"),
		strings.HasPrefix(s, "/"), s == ".", s == "..":
		spec.Kind, spec.LocalType, spec.Path = KindLocal, LocalSym, s
		return spec
	}

	for _, p := range urlPrefixes {
		if strings.HasPrefix(s, p) {
			spec.Kind, spec.URL = KindURL, s
			return spec
		}
	}
	if gitShortcut.MatchString(s) && !ValidRange(s) {
		spec.Kind, spec.URL = KindURL, "github:"+s
		return spec
	}

	if !ValidRange(s) && tagPattern.MatchString(s) {
		spec.Kind = KindTag
		return spec
	}
	spec.Kind = KindRange
	return spec
}

func isTarballPath(p string) bool {
	switch filepath.Ext(p) {
	case ".tgz", ".tar", ".gz":
		return true
	}
	return false
}
