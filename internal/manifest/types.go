package manifest

import (
	"time"

	"github.com/edgegraph/graphdb/internal/types"
)

// ManifestFile describes one chunk file registered under a namespace,
// mirroring
type ManifestFile struct {
	Path         string    `json:"path"`
	FooterOffset uint64    `json:"footerOffset"`
	FooterSize   uint64    `json:"footerSize"`
	EntityCount  int       `json:"entityCount"`
	Version      string    `json:"version"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// EntityLocation is the byte range a reader needs to fetch one entity's
// triples out of a chunk file without reading the whole thing.
type EntityLocation struct {
	FilePath   string `json:"filePath"`
	ByteOffset uint64 `json:"byteOffset"`
	ByteLength uint64 `json:"byteLength"`
}

// R2Manifest is the wire shape stored at blobstore.ManifestKey(namespace):
// the JSON document that makes R2 the canonical source of truth for a
// namespace's manifest.
type R2Manifest struct {
	Namespace string                             `json:"namespace"`
	Version   string                             `json:"version"`
	Files     []ManifestFile                     `json:"files"`
	Entities  map[types.EntityId]EntityLocation  `json:"entities"`
	UpdatedAt time.Time                          `json:"updatedAt"`
}

// SyncResult reports the outcome of a sync operation
type SyncResult struct {
	Direction      string `json:"direction"` // "from_r2", "to_r2", "bidirectional", "noop"
	EntriesUpdated int    `json:"entriesUpdated"`
	Conflicts      int    `json:"conflicts"`
	ErrorCode      string `json:"errorCode,omitempty"`
}

// SyncStatus is the cached last-known sync state for a namespace.
type SyncStatus struct {
	Namespace    string     `json:"namespace"`
	LocalVersion string     `json:"localVersion"`
	LastSyncedAt time.Time  `json:"lastSyncedAt"`
	LastResult   SyncResult `json:"lastResult"`
}

// Error codes returned in SyncResult.ErrorCode
const (
	ErrCodeRemoteNotFound  = "REMOTE_NOT_FOUND"
	ErrCodeMalformedRemote = "MALFORMED_MANIFEST"
	ErrCodeWriteFailed     = "WRITE_FAILED"
)
