package deps

import (
	"slices"
	"testing"
	"time"

	"github.com/matzehuels/fyn/pkg/manifest"
)

func testPackument(latest string, versions ...string) *Packument {
	p := &Packument{
		Name:     "pkg",
		DistTags: map[string]string{"latest": latest, "next": "3.0.0-beta.1"},
		Versions: map[string]*manifest.Package{},
		Time:     map[string]time.Time{},
	}
	day := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, v := range versions {
		p.Versions[v] = &manifest.Package{Name: "pkg", Version: v}
		p.Time[v] = day.AddDate(0, 0, i)
	}
	return p
}

func TestPackumentSorted(t *testing.T) {
	p := testPackument("2.0.0", "1.0.0", "2.0.0", "1.10.0", "1.2.0")
	want := []string{"2.0.0", "1.10.0", "1.2.0", "1.0.0"}
	if got := p.Sorted(); !slices.Equal(got, want) {
		t.Errorf("Sorted() = %v, want %v", got, want)
	}
}

func TestFindVersion(t *testing.T) {
	// Published one day apart in this order.
	all := []string{"1.0.0", "1.1.0", "2.0.0", "2.1.0", "3.0.0-beta.1"}
	jan3 := time.Date(2024, 1, 3, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		latest   string
		req      string
		lockTime time.Time
		want     string
		ok       bool
	}{
		{"latest satisfies", "2.1.0", "^2.0.0", time.Time{}, "2.1.0", true},
		{"newest satisfying", "2.1.0", "^1.0.0", time.Time{}, "1.1.0", true},
		{"dist-tag", "2.1.0", "next", time.Time{}, "3.0.0-beta.1", true},
		{"lock time excludes latest", "2.1.0", "^2.0.0", jan3, "2.0.0", true},
		{"unsatisfiable", "2.1.0", "^4.0.0", time.Time{}, "", false},
		{"prefer not above latest", "2.0.0", ">=1.1.0 <2.0.0 || >=2.1.0", time.Time{}, "1.1.0", true},
		{"above latest when nothing else", "1.0.0", "^2.1.0", time.Time{}, "2.1.0", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := testPackument(tt.latest, all...)
			got, ok := p.FindVersion(tt.req, tt.lockTime)
			if got != tt.want || ok != tt.ok {
				t.Errorf("FindVersion(%q) = %q, %v; want %q, %v", tt.req, got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestNewLocalPackument(t *testing.T) {
	p := NewLocalPackument(&manifest.Package{Name: "lib", Version: "0.0.1", Local: "sym"})
	v, ok := p.FindVersion("file:../lib", time.Time{})
	if !ok || v != "0.0.1" {
		t.Errorf("FindVersion = %q, %v", v, ok)
	}
	if p.Local != "sym" {
		t.Errorf("Local = %q", p.Local)
	}
}
