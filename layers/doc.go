// Package layers converts copy specifications and directory trees into
// ordered, deterministic container image layer entries.
//
// The central problem this package solves is reproducibility: the same
// inputs must always yield the same entry ordering, permissions, timestamps,
// and ownership, regardless of host filesystem quirks. Layer content hashes
// depend on every one of those properties, so nothing here ever reads a
// timestamp or permission from the host unless a property scope explicitly
// asks for it.
//
// # Copy specifications
//
// A CopySpec names a local source (file or directory), an absolute container
// destination, and optional include/exclude glob filters. Consecutive specs
// sharing a layer name merge into one layer:
//
//	resolver := layers.NewResolver("/project")
//	specs := []layers.CopySpec{
//		layers.NewCopySpec("dependencies", "libs/b.jar", "/app/libs/"),
//		layers.NewCopySpec("classes", "build/classes", "/app/classes"),
//	}
//	resolved, err := resolver.Resolve(specs, layers.PropertyScope{})
//
// # Property scopes
//
// Entry properties (file permission, directory permission, timestamp,
// owner) resolve through a stack of nested scopes: base, per-layer, then
// per-copy-directive. The innermost non-nil value wins; unset attributes
// fall back to 0644/0755, the epoch-plus-one-second timestamp, and root
// ownership.
//
// # Structural validity
//
// Every non-root ancestor directory of every entry is guaranteed present in
// its layer. When a filter only admits leaf files, the resolver synthesizes
// the missing parent directory entries using the resolved directory
// properties.
//
// # Determinism
//
// Entries within a layer are sorted by container path, a total order
// independent of filesystem iteration order. Two resolutions of the same
// specs against the same filesystem state produce identical layers.
//
// # Thread safety
//
// A PropertyStack is not safe for concurrent use. ResolveAll runs
// independent layers in parallel and creates one stack per goroutine.
package layers
