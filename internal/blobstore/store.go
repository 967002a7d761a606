package blobstore

import (
	"context"
	"fmt"

	"github.com/edgegraph/graphdb/internal/types"
)

// ListOptions constrains a List call
// `list({prefix, cursor, limit})`.
type ListOptions struct {
	Prefix string
	Cursor string
	Limit  int
}

// ListPage is one page of a List call: the matching keys plus a cursor to
// fetch the next page, if any.
type ListPage struct {
	Keys       []string
	NextCursor string
}

// Store is the blob-store collaborator contract consumed by the rest of the
// system : get/put/delete/list against a flat object namespace.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, body []byte, contentType string) error
	Delete(ctx context.Context, key string) error
	List(ctx context.Context, opts ListOptions) (ListPage, error)
}

// ErrNotFound is returned by Get when key does not exist, and by
// MemoryStore.Delete for a missing key; S3Store.Delete of a missing key
// succeeds.
var ErrNotFound = fmt.Errorf("blobstore: key not found")

// ChunkKey returns the deterministic object key for a chunk file in
// namespace
func ChunkKey(namespace, chunkID string) string {
	return fmt.Sprintf("%s/_chunks/%s.gcol", types.ReverseNamespace(namespace), chunkID)
}

// ManifestKey returns the deterministic object key for a namespace's
// manifest file.
func ManifestKey(namespace string) string {
	return fmt.Sprintf("%s/_manifest.json", types.ReverseNamespace(namespace))
}

// VectorKey returns the deterministic object key for an HNSW node's vector
// payload.
func VectorKey(predicate types.Predicate, entity types.EntityId) string {
	return fmt.Sprintf("vectors/%s/%s", predicate, entity)
}
