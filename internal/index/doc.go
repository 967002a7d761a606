// Package index implements the index layer from: full-text
// search over STRING triples (a predicate-scoped prefix-token index), a
// vector index (HNSW, with the graph kept locally and node vectors kept in
// the blob store), and a point-geo index supporting bounding-box and
// nearest-k queries. All three are built from the shard's row table rather
// than a dedicated search engine.
package index
