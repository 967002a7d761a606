// Package manifest implements the manifest store from: the
// mapping a reader needs to turn a query into a minimal set of byte-range
// blob fetches. Per namespace it tracks the list of chunk files that make
// up the namespace and an entity index (EntityId -> byte range) for O(1)
// lookup.
//
// The source of truth is the remote blob store (R2-compatible); the local
// state kept here is an LRU-bounded cache over it, refreshed by the sync
// protocol (needsSync/syncFromR2/syncToR2/fullSync) this package implements.
package manifest
