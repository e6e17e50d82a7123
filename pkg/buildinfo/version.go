// Package buildinfo holds version information stamped in at link time:
//
//	go build -ldflags "-X github.com/matzehuels/fyn/pkg/buildinfo.Version=v0.3.0 \
//	    -X github.com/matzehuels/fyn/pkg/buildinfo.Commit=$(git rev-parse --short HEAD) \
//	    -X github.com/matzehuels/fyn/pkg/buildinfo.Date=$(date -u +%Y-%m-%dT%H:%M:%SZ)" ./cmd/fyn
package buildinfo

import (
	"fmt"
	"runtime/debug"
)

var (
	Version = "dev"     // semantic version, e.g. "v0.3.0"
	Commit  = "none"    // short git SHA
	Date    = "unknown" // UTC build time
)

// String returns the formatted build information.
func String() string {
	return fmt.Sprintf("version: %s\ncommit: %s\nbuilt: %s\ngo: %s", version(), Commit, Date, goVersion())
}

// Template returns the version template string for cobra.
func Template() string {
	return fmt.Sprintf("{{.Name}} version %s\ncommit: %s\nbuilt: %s\n", version(), Commit, Date)
}

// UserAgent is sent with registry requests.
func UserAgent() string {
	return "fyn/" + version()
}

// version falls back to the module version recorded by "go install".
func version() string {
	if Version != "dev" {
		return Version
	}
	if bi, ok := debug.ReadBuildInfo(); ok && bi.Main.Version != "" && bi.Main.Version != "(devel)" {
		return bi.Main.Version
	}
	return Version
}

func goVersion() string {
	if bi, ok := debug.ReadBuildInfo(); ok {
		return bi.GoVersion
	}
	return "unknown"
}
