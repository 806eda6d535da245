// Package model provides the authoritative in-memory document behind a
// shared document name.
//
// A [Model] holds the current JSON document, its version and the patches
// that led there. Connections obtain a [Stream] with [Model.CreateStream];
// the stream first yields the catch-up patch from the requested version to
// the current one, then every patch applied to the model, each paired with
// the version it produced. Patches sent on a stream are applied atomically
// in arrival order.
//
// Patch application and diffing are pluggable through [Patcher] and
// [Differ]; [JSONPatcher] applies RFC 6902 patches and [StructuralDiffer]
// produces them.
package model
