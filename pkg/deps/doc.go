// Package deps resolves an npm manifest into a concrete install plan.
//
// # Overview
//
// Given a root package.json, a [Resolver] decides which name@version pairs
// must be installed, which requests pulled in each one, and which version
// satisfies every semver request. The result is a [Data] registry handed to
// the lock writer, the graph renderer and the installer.
//
// # Request tree
//
// Every dependency declaration becomes an [Item]: one edge of the request
// tree carrying its name, requested semver, the section it was declared in
// and a link to the requesting item. Items remember nested resolutions so
// that a grandchild asking for a semver an earlier sibling already settled
// gets the same version, and they carry shrinkwrap pins down the tree.
//
// # Resolving
//
// Resolution is level-order. All items at one depth are resolved, with one
// work unit per package name, before the next depth begins. For each item
// the resolver first applies npm "overrides" or yarn "resolutions", then
// tries in order:
//
//  1. the nested memo and shrinkwrap pins of the item's ancestors
//  2. the lock ([LockStore])
//  3. local directories and workspace packages
//  4. versions already resolved for the same name
//  5. yarn.lock ([YarnLock])
//  6. the registry, through a [Source]
//
// Optional dependencies are probed before admission: a failing preinstall
// script or an unsupported platform moves the package to [Data.BadPkgs]
// instead of failing the resolve.
//
// After the last depth one version of every package is promoted to the top
// level. When the lock produced needless duplicates within one major
// version, their lock entries are dropped and the resolve runs once more.
//
// # Options
//
// [Options] controls resolution behavior:
//
//   - Concurrency: work units in flight (pool is at least 15)
//   - LockOnly: never contact the registry
//   - LockTime: ignore versions published later
//   - Production: skip devDependencies
//   - ResolvePeers: expand peerDependencies of dependencies
//   - Logger, Hooks: progress reporting
//
// # Errors
//
// Fatal failures of one depth (unsatisfiable semver, metadata fetch,
// platform mismatch, lock-only miss) are returned together as an
// [errors.Aggregate], each naming the request path and sources tried.
package deps
