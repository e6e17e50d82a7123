package deps

import (
	"testing"

	"github.com/matzehuels/fyn/pkg/errors"
	"github.com/matzehuels/fyn/pkg/manifest"
	"github.com/matzehuels/fyn/pkg/orderedmap"
)

func TestOverridesMatch(t *testing.T) {
	root, err := manifest.Parse([]byte(`{
  "name": "app",
  "dependencies": {"react": "^18.2.0"},
  "overrides": {
    "foo": "1.0.0",
    "bar@^2.0.0": "2.5.0",
    "parent@1": {"foo": "1.1.0", "deep": {"foo": "1.2.0"}},
    "baz": {".": "3.0.0"},
    "react-dom": "$react"
  }
}`))
	if err != nil {
		t.Fatal(err)
	}
	ov, err := ParseOverrides(root)
	if err != nil {
		t.Fatalf("ParseOverrides: %v", err)
	}

	top := newRootItem(root)
	parent := newItem(top, "parent", "^1.0.0", SectionDep)
	parent.Resolve("1.4.0", nil)
	deep := newItem(parent, "deep", "^1.0.0", SectionDep)
	deep.Resolve("1.0.0", nil)

	tests := []struct {
		name string
		item *Item
		want string
		ok   bool
	}{
		{"plain", newItem(top, "foo", "^0.9.0", SectionDep), "1.0.0", true},
		{"range intersects", newItem(top, "bar", "^2.1.0", SectionDep), "2.5.0", true},
		{"range disjoint", newItem(top, "bar", "^1.0.0", SectionDep), "", false},
		{"scoped by parent", newItem(parent, "foo", "^1.0.0", SectionDep), "1.1.0", true},
		{"most specific chain", newItem(deep, "foo", "^1.0.0", SectionDep), "1.2.0", true},
		{"dot value", newItem(top, "baz", "^1.0.0", SectionDep), "3.0.0", true},
		{"root reference", newItem(top, "react-dom", "^17.0.0", SectionDep), "^18.2.0", true},
		{"no rule", newItem(top, "other", "^1.0.0", SectionDep), "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ov.Match(tt.item)
			if got != tt.want || ok != tt.ok {
				t.Errorf("Match() = %q, %v; want %q, %v", got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestOverridesInvalid(t *testing.T) {
	root := &manifest.Package{Name: "app", Overrides: []byte(`["not", "an", "object"]`)}
	if _, err := ParseOverrides(root); err == nil {
		t.Error("expected error for array overrides")
	}
}

func TestOverridesUnknownReference(t *testing.T) {
	for _, overrides := range []string{
		`{"react-dom": "$react"}`,
		`{"parent": {"react-dom": "$react"}}`,
		`{"react-dom": {".": "$react"}}`,
	} {
		root := &manifest.Package{
			Name:         "app",
			Dependencies: orderedmap.FromMap(map[string]string{"vue": "^3.0.0"}),
			Overrides:    []byte(overrides),
		}
		_, err := ParseOverrides(root)
		if !errors.Is(err, errors.ErrCodeInvalidManifest) {
			t.Errorf("ParseOverrides(%s) error = %v, want INVALID_MANIFEST", overrides, err)
		}
	}
}

func TestYarnResolutions(t *testing.T) {
	yr := parseResolutions(map[string]string{
		"left-pad":          "1.3.0",
		"a/b":               "2.0.0",
		"**/c":              "3.0.0",
		"@scope/x/left-pad": "1.1.0",
	})

	top := newRootItem(&manifest.Package{Name: "app"})
	a := newItem(top, "a", "^1.0.0", SectionDep)
	x := newItem(top, "@scope/x", "^1.0.0", SectionDep)

	tests := []struct {
		name string
		item *Item
		want string
		ok   bool
	}{
		{"bare name at top", newItem(top, "left-pad", "^1.0.0", SectionDep), "1.3.0", true},
		{"bare name nested", newItem(a, "left-pad", "^1.0.0", SectionDep), "1.3.0", true},
		{"scoped parent wins", newItem(x, "left-pad", "^1.0.0", SectionDep), "1.1.0", true},
		{"direct child", newItem(a, "b", "^1.0.0", SectionDep), "2.0.0", true},
		{"not under a", newItem(top, "b", "^1.0.0", SectionDep), "", false},
		{"globstar", newItem(a, "c", "^1.0.0", SectionDep), "3.0.0", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := yr.Match(tt.item)
			if got != tt.want || ok != tt.ok {
				t.Errorf("Match(%s) = %q, %v; want %q, %v", tt.item.NameDepPath, got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestPlatformSupports(t *testing.T) {
	linux := Platform{OS: "linux", CPU: "x64"}
	tests := []struct {
		name string
		os   []string
		cpu  []string
		want bool
	}{
		{"unconstrained", nil, nil, true},
		{"listed", []string{"darwin", "linux"}, []string{"x64"}, true},
		{"not listed", []string{"darwin"}, nil, false},
		{"excluded", []string{"!linux"}, nil, false},
		{"only exclusions", []string{"!win32"}, []string{"!arm64"}, true},
		{"cpu mismatch", nil, []string{"arm64"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := linux.Supports(tt.os, tt.cpu); got != tt.want {
				t.Errorf("Supports(%v, %v) = %v, want %v", tt.os, tt.cpu, got, tt.want)
			}
		})
	}
}
