package pipeline

import (
	"strings"

	"github.com/matzehuels/fyn/pkg/deps"
	"github.com/matzehuels/fyn/pkg/errors"
)

// Reason is one request path that led to a resolved version.
type Reason struct {
	Version  string
	Promoted bool
	Failed   bool // the version failed its optional checks
	Path     []Hop
}

// Hop is one edge of a request path, root first.
type Hop struct {
	Section deps.Section
	Semver  string
	ID      string // resolved name@version; empty for the final hop
}

func (h Hop) String() string {
	if h.ID == "" {
		return string(h.Section) + " " + h.Semver
	}
	return string(h.Section) + " " + h.Semver + " → " + h.ID
}

// Why lists every recorded request path for each resolved version of name,
// in the order versions were first seen.
func Why(data *deps.Data, name string) ([]Reason, error) {
	var out []Reason
	for _, set := range []map[string]*deps.KnownPackage{data.Pkgs, data.BadPkgs} {
		kp := set[name]
		if kp == nil {
			continue
		}
		for _, vi := range kp.Versions.All() {
			for _, trace := range vi.Requests {
				out = append(out, Reason{
					Version:  vi.Version,
					Promoted: vi.Promoted,
					Failed:   vi.OptFailed,
					Path:     parseTrace(trace),
				})
			}
		}
	}
	if out == nil {
		return nil, errors.New(errors.ErrCodePackageNotFound, "%s is not in the resolved dependencies", name)
	}
	return out, nil
}

func parseTrace(trace []string) []Hop {
	hops := make([]Hop, 0, len(trace))
	for _, tok := range trace {
		parts := strings.SplitN(tok, ";", 3)
		h := Hop{Section: deps.Section(parts[0])}
		if len(parts) > 1 {
			h.Semver = parts[1]
		}
		if len(parts) > 2 {
			h.ID = parts[2]
		}
		hops = append(hops, h)
	}
	return hops
}
