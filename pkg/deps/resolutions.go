package deps

import (
	"slices"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

type resolutionRule struct {
	pattern string
	value   string
	depth   int
}

// yarnResolutions is a compiled yarn "resolutions" table, matched against an
// item's slash-joined ancestor names.
type yarnResolutions struct {
	rules []resolutionRule
}

// parseResolutions compiles a yarn resolutions table. A bare name applies at
// any depth; "a/b" only to b required by a top-level a.
func parseResolutions(table map[string]string) *yarnResolutions {
	yr := &yarnResolutions{}
	for key, value := range table {
		pattern := unslashPattern(key)
		if !strings.Contains(pattern, "/") {
			pattern = "**/" + pattern
		}
		if !doublestar.ValidatePattern(pattern) {
			continue
		}
		yr.rules = append(yr.rules, resolutionRule{
			pattern: pattern,
			value:   value,
			depth:   strings.Count(strings.ReplaceAll(pattern, "**/", ""), "/"),
		})
	}
	// Most specific first, then by pattern for a stable order.
	slices.SortFunc(yr.rules, func(a, b resolutionRule) int {
		if a.depth != b.depth {
			return b.depth - a.depth
		}
		return strings.Compare(a.pattern, b.pattern)
	})
	return yr
}

// unslashPattern joins "@scope/name" segments the way Item.NameDepPath does.
func unslashPattern(p string) string {
	segs := strings.Split(p, "/")
	out := make([]string, 0, len(segs))
	for i := 0; i < len(segs); i++ {
		if strings.HasPrefix(segs[i], "@") && i+1 < len(segs) {
			out = append(out, segs[i]+"%"+segs[i+1])
			i++
			continue
		}
		out = append(out, segs[i])
	}
	return strings.Join(out, "/")
}

func (yr *yarnResolutions) Match(item *Item) (string, bool) {
	for _, r := range yr.rules {
		if ok, _ := doublestar.Match(r.pattern, item.NameDepPath); ok {
			return r.value, true
		}
	}
	return "", false
}
