package deps

import (
	"slices"
	"strings"
)

// Section names the package.json table a dependency was declared in.
type Section string

const (
	SectionDep Section = "dep" // dependencies
	SectionDev Section = "dev" // devDependencies
	SectionOpt Section = "opt" // optionalDependencies
	SectionPer Section = "per" // peerDependencies
)

// Sections lists every section in expansion order.
var Sections = []Section{SectionDep, SectionDev, SectionOpt, SectionPer}

func (s Section) String() string { return string(s) }

// base is the priority weight of a root section. Direct dependencies win over
// optional ones, which win over dev and peer requests.
func (s Section) base() int {
	switch s {
	case SectionDep:
		return 4
	case SectionOpt:
		return 3
	case SectionDev:
		return 2
	case SectionPer:
		return 1
	}
	return 0
}

const priorityStride = 1_000_000

// rootPriority ranks the index-th declaration of a root section. Earlier
// declarations rank higher.
func rootPriority(s Section, index int) int {
	return s.base()*priorityStride - index
}

// unionFlags merges two ";"-joined flag lists, keeping them sorted and unique.
func unionFlags(a, b string) string {
	if a == "" {
		return b
	}
	if b == "" || a == b {
		return a
	}
	set := strings.Split(a, ";")
	for _, f := range strings.Split(b, ";") {
		if f != "" && !slices.Contains(set, f) {
			set = append(set, f)
		}
	}
	slices.Sort(set)
	return strings.Join(set, ";")
}

// hasFlag reports whether the ";"-joined list contains flag.
func hasFlag(list string, flag Section) bool {
	for _, f := range strings.Split(list, ";") {
		if f == string(flag) {
			return true
		}
	}
	return false
}
