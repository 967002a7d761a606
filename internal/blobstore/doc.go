// Package blobstore implements the blob-store collaborator from:
// the external, durable object store chunks, manifests, and HNSW vectors
// live in. Keys are deterministic and namespace-reversed so prefix listing
// returns every entity under a namespace regardless of path depth:
//
//	chunks:    <reversed-namespace>/_chunks/<chunk-id>.gcol
//	manifests: <reversed-namespace>/_manifest.json
//	vectors:   vectors/<predicate>/<entityId>
//
// R2 exposes an S3-compatible API, so the production Store is a thin
// wrapper over aws-sdk-go-v2's S3 client pointed at R2's endpoint.
package blobstore
