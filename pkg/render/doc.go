// Package render draws a resolved dependency registry as a Graphviz graph.
//
// Every admitted name@version becomes a node and every settled request an
// edge labelled with its semver:
//
//   - promoted versions (installed at the top of node_modules) are solid
//   - nested versions are dashed
//   - versions that failed optional checks are red
//
// Dev edges are grey, optional edges dotted.
//
//	dot := render.ToDOT(root, data, render.Options{})
//	svg, err := render.RenderSVG(ctx, dot)
//
// SVG is produced in-process with [github.com/goccy/go-graphviz]. PNG and
// PDF conversion shells out to rsvg-convert from librsvg.
package render
