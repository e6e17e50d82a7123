// Package pkg holds the libraries behind the fyn dependency resolver.
//
// # Overview
//
// fyn reads a project's package.json, resolves every dependency against an
// npm registry and records the result in fyn-lock.yaml. The packages are
// organized by concern:
//
//  1. [manifest] - package.json parsing and workspace discovery
//  2. [deps] - the resolver: breadth-first expansion, promotion, optional checks
//  3. [semver] - npm range matching
//  4. [lock], [yarnlock] - reading and writing lock files
//  5. [source], [scripts] - fetching packuments and tarballs, running preinstall
//  6. [integrations/npm], [cache], [httputil] - registry client and its cache
//  7. [pipeline] - orchestration (load → resolve → lock)
//  8. [render] - Graphviz output of a resolved tree
//  9. [config], [observability], [errors], [buildinfo] - ambient concerns
//
// # Data Flow
//
//	package.json + workspaces
//	         ↓
//	    [pipeline] loads fyn-lock.yaml, package-lock.json or yarn.lock
//	         ↓
//	    [deps] resolves level by level through [source]
//	         ↓
//	    [lock] generates the next lock
//	         ↓
//	    fyn-lock.yaml, or DOT/SVG via [render]
//
// # Quick Start
//
//	runner := pipeline.NewRunner(nil, observability.Hooks{}, nil)
//	defer runner.Close()
//	result, err := runner.Execute(ctx, pipeline.Options{ProjectDir: "."})
//	if err != nil {
//	    return err
//	}
//	fmt.Println(result.Stats.Versions, "versions locked")
package pkg
