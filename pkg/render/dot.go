package render

import (
	"bytes"
	"fmt"
	"slices"
	"strings"

	"github.com/matzehuels/fyn/pkg/deps"
	"github.com/matzehuels/fyn/pkg/manifest"
)

// Options configures graph generation.
type Options struct {
	// Detailed adds request counts and sections to node labels.
	Detailed bool

	// SkipDev drops the root's devDependencies and everything only they reach.
	SkipDev bool
}

const rootID = "<root>"

// ToDOT converts a resolved registry to Graphviz DOT.
func ToDOT(root *manifest.Package, data *deps.Data, opts Options) string {
	var buf bytes.Buffer
	buf.WriteString("digraph G {\n")
	buf.WriteString("  rankdir=TB;\n")
	buf.WriteString("  bgcolor=\"transparent\";\n")
	buf.WriteString("  node [shape=box, style=\"rounded,filled\", fillcolor=white, fontsize=14, margin=\"0.2,0.1\"];\n")
	buf.WriteString("  edge [fontsize=10];\n")
	buf.WriteString("  ranksep=0.5;\n")
	buf.WriteString("  nodesep=0.3;\n")
	buf.WriteString("\n")

	g := newGraph(data)
	g.walk(rootID, data.Res, opts.SkipDev)

	fmt.Fprintf(&buf, "  %q [label=%q, shape=doubleoctagon];\n", rootID, rootLabel(root))
	for _, id := range g.order {
		attrs := fmtAttrs(g.nodes[id], opts.Detailed)
		fmt.Fprintf(&buf, "  %q [%s];\n", id, strings.Join(attrs, ", "))
	}

	buf.WriteString("\n")
	for _, e := range g.edges {
		fmt.Fprintf(&buf, "  %q -> %q [%s];\n", e.from, e.to, strings.Join(edgeAttrs(e), ", "))
	}

	buf.WriteString("}\n")
	return buf.String()
}

type node struct {
	id     string
	vi     *deps.VersionInfo
	failed bool
}

type edge struct {
	from, to string
	section  deps.Section
	semver   string
}

type graph struct {
	data  *deps.Data
	nodes map[string]*node
	order []string
	edges []edge
}

func newGraph(data *deps.Data) *graph {
	return &graph{data: data, nodes: make(map[string]*node)}
}

// walk adds the edges in res and recurses into targets seen for the first
// time. Sections are visited in priority order so output is stable.
func (g *graph) walk(from string, res deps.Resolutions, skipDev bool) {
	for _, sec := range deps.Sections {
		m := res[sec]
		if m == nil || (skipDev && from == rootID && sec == deps.SectionDev) {
			continue
		}
		for name, r := range m.All() {
			to, vi, failed := g.lookup(name, r.Resolved)
			g.edges = append(g.edges, edge{from: from, to: to, section: sec, semver: r.Semver})
			if _, seen := g.nodes[to]; seen {
				continue
			}
			g.nodes[to] = &node{id: to, vi: vi, failed: failed}
			g.order = append(g.order, to)
			if vi != nil && !failed {
				g.walk(to, vi.Res, skipDev)
			}
		}
	}
}

func (g *graph) lookup(name, version string) (string, *deps.VersionInfo, bool) {
	if version == "" || version == deps.FailedVersion {
		return name + "@" + deps.FailedVersion, nil, true
	}
	if vi := g.data.VersionInfo(name, version); vi != nil {
		return vi.ID(), vi, vi.OptFailed
	}
	if kp := g.data.BadPkgs[name]; kp != nil {
		if vi, ok := kp.Versions.Get(version); ok {
			return vi.ID(), vi, true
		}
	}
	return name + "@" + version, nil, true
}

func rootLabel(root *manifest.Package) string {
	if root == nil || root.Name == "" {
		return "(root)"
	}
	if root.Version == "" {
		return root.Name
	}
	return root.ID()
}

func fmtLabel(n *node, detailed bool) string {
	if !detailed || n.vi == nil {
		return n.id
	}
	parts := []string{"src: " + n.vi.Src}
	secs := make([]string, 0, len(n.vi.RequestCounts))
	for sec, c := range n.vi.RequestCounts {
		secs = append(secs, fmt.Sprintf("%s×%d", sec, c))
	}
	slices.Sort(secs)
	if len(secs) > 0 {
		parts = append(parts, "requests: "+strings.Join(secs, " "))
	}
	if n.vi.Local != "" {
		parts = append(parts, "local: "+n.vi.Local)
	}
	return n.id + "\n" + strings.Join(parts, "\n")
}

func fmtAttrs(n *node, detailed bool) []string {
	attrs := []string{fmt.Sprintf("label=%q", fmtLabel(n, detailed))}
	switch {
	case n.failed:
		attrs = append(attrs, "style=\"rounded,filled,dashed\"", "fillcolor=\"#fde2e2\"", "color=red", "fontcolor=red")
	case n.vi != nil && !n.vi.Promoted:
		attrs = append(attrs, "style=\"rounded,filled,dashed\"", "fillcolor=lightgrey")
	}
	return attrs
}

func edgeAttrs(e edge) []string {
	attrs := []string{fmt.Sprintf("label=%q", e.semver)}
	switch e.section {
	case deps.SectionDev:
		attrs = append(attrs, "color=grey", "fontcolor=grey")
	case deps.SectionOpt:
		attrs = append(attrs, "style=dotted")
	case deps.SectionPer:
		attrs = append(attrs, "style=dashed", "arrowhead=empty")
	}
	return attrs
}
