// Package semver answers the version questions the resolver asks: does a
// version satisfy an npm range, how do two versions order, and do two ranges
// overlap.
//
// Range grammar is delegated to github.com/Masterminds/semver/v3, which covers
// the npm forms in common use (caret, tilde, x-ranges, hyphen ranges, "||").
// This package adds the npm-specific edges: empty and "*" ranges, dist-tags,
// local-path and URL dependency specs, and pre-1.0 major semantics.
package semver

import (
	"fmt"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"sync"

	mm "github.com/Masterminds/semver/v3"
)

var (
	constraintCache sync.Map // string -> *mm.Constraints (nil when invalid)
	versionCache    sync.Map // string -> *mm.Version (nil when invalid)
)

func parseVersion(v string) *mm.Version {
	if cached, ok := versionCache.Load(v); ok {
		return cached.(*mm.Version)
	}
	pv, err := mm.StrictNewVersion(strings.TrimPrefix(strings.TrimSpace(v), "v"))
	if err != nil {
		pv = nil
	}
	versionCache.Store(v, pv)
	return pv
}

func parseRange(r string) *mm.Constraints {
	if cached, ok := constraintCache.Load(r); ok {
		return cached.(*mm.Constraints)
	}
	c, err := mm.NewConstraint(normalizeRange(r))
	if err != nil {
		c = nil
	}
	constraintCache.Store(r, c)
	return c
}

func normalizeRange(r string) string {
	r = strings.TrimSpace(r)
	switch r {
	case "", "x", "X":
		return "*"
	}
	return r
}

// ValidRange reports whether r parses as a version range.
func ValidRange(r string) bool { return parseRange(r) != nil }

// Satisfies reports whether version v is within range r. Invalid input never
// satisfies anything.
func Satisfies(v, r string) bool {
	pv := parseVersion(v)
	if pv == nil {
		return false
	}
	c := parseRange(r)
	if c == nil {
		return false
	}
	return c.Check(pv)
}

// Compare orders two versions semantically. Invalid versions sort before
// valid ones and are compared lexically among themselves.
func Compare(a, b string) int {
	pa, pb := parseVersion(a), parseVersion(b)
	switch {
	case pa == nil && pb == nil:
		return strings.Compare(a, b)
	case pa == nil:
		return -1
	case pb == nil:
		return 1
	}
	return pa.Compare(pb)
}

// SortDesc sorts versions newest first, in place.
func SortDesc(vs []string) {
	slices.SortStableFunc(vs, func(a, b string) int { return Compare(b, a) })
}

// SortAsc sorts versions oldest first, in place.
func SortAsc(vs []string) {
	slices.SortStableFunc(vs, Compare)
}

// EffectiveMajor returns the component that signals breaking changes. For
// 1.x and later that is the major number. Below 1.0.0 the minor version
// takes that role, and below 0.1.0 the patch does, so "0.1.9" yields "0.1"
// and "0.0.3" yields "0.0.3".
func EffectiveMajor(v string) string {
	pv := parseVersion(v)
	if pv == nil {
		return v
	}
	switch {
	case pv.Major() > 0:
		return strconv.FormatUint(pv.Major(), 10)
	case pv.Minor() > 0:
		return fmt.Sprintf("0.%d", pv.Minor())
	default:
		return fmt.Sprintf("0.0.%d", pv.Patch())
	}
}

var versionLiteral = regexp.MustCompile(`\d+(?:\.(?:\d+|[xX*]))?(?:\.(?:\d+|[xX*]))?(?:-[0-9A-Za-z.-]+)?`)

// Intersects reports whether some version could satisfy both ranges.
//
// The check probes versions derived from every literal in either range and
// their immediate neighbours, which is exact for the comparator, caret, tilde
// and x-range forms npm manifests use. Invalid ranges never intersect.
func Intersects(a, b string) bool {
	ca, cb := parseRange(a), parseRange(b)
	if ca == nil || cb == nil {
		return false
	}
	probes := probeVersions(a + " " + b)
	if len(probes) == 0 {
		return true
	}
	for _, p := range probes {
		if ca.Check(p) && cb.Check(p) {
			return true
		}
	}
	return false
}

func probeVersions(s string) []*mm.Version {
	var out []*mm.Version
	add := func(major, minor, patch uint64, pre string) {
		v := fmt.Sprintf("%d.%d.%d", major, minor, patch)
		if pre != "" {
			v += "-" + pre
		}
		if pv, err := mm.StrictNewVersion(v); err == nil {
			out = append(out, pv)
		}
	}
	for _, lit := range versionLiteral.FindAllString(s, -1) {
		core, pre, _ := strings.Cut(lit, "-")
		parts := strings.Split(core, ".")
		nums := make([]uint64, 3)
		for i := range 3 {
			if i < len(parts) {
				n, err := strconv.ParseUint(parts[i], 10, 64)
				if err == nil {
					nums[i] = n
				}
			}
		}
		maj, mnr, pat := nums[0], nums[1], nums[2]
		add(maj, mnr, pat, pre)
		add(maj, mnr, pat, "")
		add(maj, mnr, pat+1, "")
		add(maj, mnr+1, 0, "")
		add(maj+1, 0, 0, "")
		if pat > 0 {
			add(maj, mnr, pat-1, "")
		}
		if mnr > 0 {
			add(maj, mnr-1, 999999, "")
		}
		if maj > 0 {
			add(maj-1, 999999, 999999, "")
		}
	}
	return out
}
