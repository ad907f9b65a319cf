// Package tool defines the tool contract and the startup registry used by the
// dispatcher.
//
// The package is split by concern:
//   - tool: the Handler contract and the Tool record
//   - registry: the immutable name-to-tool mapping
//   - loader: directory discovery of tool manifests with per-unit failure isolation
//   - manifest: the on-disk unit format and handler binding
//   - builtins, stdio, http: the handler implementations a manifest can bind
//
// A Registry is built once, before any request is served, and is read-only
// afterwards. Tests construct one directly with NewRegistry and fake handlers.
package tool
