package deps

import (
	"encoding/json"
	"strings"

	"github.com/matzehuels/fyn/pkg/errors"
	"github.com/matzehuels/fyn/pkg/manifest"
	"github.com/matzehuels/fyn/pkg/orderedmap"
	"github.com/matzehuels/fyn/pkg/semver"
)

// selector matches a package name with an optional version range.
type selector struct {
	name string
	rng  string
}

func parseSelector(key string) selector {
	at := strings.LastIndex(key, "@")
	if at <= 0 {
		return selector{name: key}
	}
	return selector{name: key[:at], rng: key[at+1:]}
}

// overrideRule replaces the request of name when every parent selector
// matches an ancestor, outermost first.
type overrideRule struct {
	target  selector
	value   string
	parents []selector
}

// Overrides is a compiled npm "overrides" table.
type Overrides struct {
	rules []overrideRule
}

// ParseOverrides compiles the root manifest's overrides. "$name" values refer
// to the root's declared request for name.
func ParseOverrides(root *manifest.Package) (*Overrides, error) {
	o := &Overrides{}
	if root == nil || len(root.Overrides) == 0 {
		return o, nil
	}
	var table orderedmap.Map[json.RawMessage]
	if err := json.Unmarshal(root.Overrides, &table); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidManifest, err, "parse overrides")
	}
	if err := o.compile(root, &table, nil); err != nil {
		return nil, err
	}
	return o, nil
}

func (o *Overrides) compile(root *manifest.Package, table *orderedmap.Map[json.RawMessage], parents []selector) error {
	for key, raw := range table.All() {
		sel := parseSelector(key)

		var value string
		if err := json.Unmarshal(raw, &value); err == nil {
			if err := o.add(root, sel, value, parents); err != nil {
				return err
			}
			continue
		}

		var nested orderedmap.Map[json.RawMessage]
		if err := json.Unmarshal(raw, &nested); err != nil {
			return errors.Wrap(errors.ErrCodeInvalidManifest, err, "override %q", key)
		}
		if self, ok := nested.Get("."); ok {
			if err := json.Unmarshal(self, &value); err != nil {
				return errors.Wrap(errors.ErrCodeInvalidManifest, err, "override %q", key)
			}
			if err := o.add(root, sel, value, parents); err != nil {
				return err
			}
			nested.Delete(".")
		}
		chain := append(append([]selector(nil), parents...), sel)
		if err := o.compile(root, &nested, chain); err != nil {
			return err
		}
	}
	return nil
}

// add records one rule. A "$name" reference must name a dependency the root
// declares.
func (o *Overrides) add(root *manifest.Package, sel selector, value string, parents []selector) error {
	if ref, ok := strings.CutPrefix(value, "$"); ok {
		value = rootRequest(root, ref)
		if value == "" {
			return errors.New(errors.ErrCodeInvalidManifest, "override %q references $%s, which is not a direct dependency", sel.name, ref)
		}
	}
	if value == "" {
		return nil
	}
	o.rules = append(o.rules, overrideRule{target: sel, value: value, parents: parents})
	return nil
}

func rootRequest(root *manifest.Package, name string) string {
	for _, deps := range []*manifest.Deps{root.Dependencies, root.DevDependencies, root.PeerDependencies, root.OptionalDependencies} {
		if v, ok := deps.Get(name); ok {
			return v
		}
	}
	return ""
}

// Len returns the number of compiled rules.
func (o *Overrides) Len() int { return len(o.rules) }

// Match returns the replacement request for item. Among matching rules the
// one with the longest parent chain wins; ties go to the first declared.
func (o *Overrides) Match(item *Item) (string, bool) {
	best := -1
	for i, r := range o.rules {
		if r.target.name != item.Name {
			continue
		}
		if r.target.rng != "" && !semver.Intersects(r.target.rng, item.Semver) {
			continue
		}
		if !parentsMatch(r.parents, item) {
			continue
		}
		if best < 0 || len(r.parents) > len(o.rules[best].parents) {
			best = i
		}
	}
	if best < 0 {
		return "", false
	}
	return o.rules[best].value, true
}

// parentsMatch reports whether sels match a subsequence of item's ancestors,
// outermost first.
func parentsMatch(sels []selector, item *Item) bool {
	if len(sels) == 0 {
		return true
	}
	var chain []*Item
	for x := item.Parent(); x != nil; x = x.Parent() {
		chain = append(chain, x)
	}
	i := 0
	for j := len(chain) - 1; j >= 0 && i < len(sels); j-- {
		anc := chain[j]
		if anc.Name != sels[i].name {
			continue
		}
		if sels[i].rng != "" && !semver.Satisfies(anc.Resolved, sels[i].rng) {
			continue
		}
		i++
	}
	return i == len(sels)
}
