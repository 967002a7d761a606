// Package shard implements a single shard: the per-shard hybrid storage
// unit described by A shard owns a row table (RowStore) for
// point lookups and indexable access, plus a batched writer that groups
// triples into immutable GraphCol chunks (internal/chunk) and registers
// them with the manifest store (internal/manifest).
//
// # Concurrency
//
// A shard is single-writer, many-reader: concurrent reads proceed freely,
// but writes against the same (subject, predicate) pair observe the
// dispatch order they arrived in . RowStore implementations
// enforce this with a single mutex; callers never need their own locking
// around Shard's exported methods.
package shard
