package shard

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/edgegraph/graphdb/internal/bloom"
	"github.com/edgegraph/graphdb/internal/chunk"
	"github.com/edgegraph/graphdb/internal/types"
)

// DefaultMaxPendingTriples and DefaultMaxPendingBatches are the writer's
// documented defaults : flush once 10,000 triples have
// accumulated, and never let more than 4 chunk uploads be in flight at once.
const (
	DefaultMaxPendingTriples = 10_000
	DefaultMaxPendingBatches = 4
)

// BlobPutter is the subset of the blob-store collaborator the batched
// writer needs: uploading a finished chunk's bytes.
type BlobPutter interface {
	Put(ctx context.Context, key string, body []byte, contentType string) error
}

// ManifestRegistrar is the subset of the manifest store the batched writer
// needs: registering a freshly-uploaded chunk.
type ManifestRegistrar interface {
	RegisterChunk(ctx context.Context, namespace string, file ChunkFile) error
}

// ChunkFile is the manifest-facing description of one chunk the writer has
// uploaded, mirroring ManifestFile.
type ChunkFile struct {
	Path         string
	FooterOffset uint64
	FooterSize   uint64
	EntityCount  int
	Version      string
}

// WriterState is the batched writer's checkpoint, letting ingestion resume
// after a crash without re-deriving in-flight counters .
type WriterState struct {
	TriplesWritten int
	ChunksUploaded []string
	Bloom          []byte
}

// BatchedWriter buffers triples and periodically flushes them into
// GraphCol chunks It is safe for concurrent use.
type BatchedWriter struct {
	blobs     BlobPutter
	manifest  ManifestRegistrar
	namespace string
	log       zerolog.Logger
	backoff   func() backoff.BackOff

	mu             sync.Mutex
	buffer         []types.Triple
	chunksUploaded []string
	bloomFilter    *bloom.Filter
	totalTriples   int

	maxPendingTriples int
	inflight          chan struct{}
}

// WriterOption configures a BatchedWriter at construction time.
type WriterOption func(*BatchedWriter)

// WithMaxPendingTriples overrides DefaultMaxPendingTriples.
func WithMaxPendingTriples(n int) WriterOption {
	return func(w *BatchedWriter) { w.maxPendingTriples = n }
}

// WithMaxPendingBatches overrides DefaultMaxPendingBatches.
func WithMaxPendingBatches(n int) WriterOption {
	return func(w *BatchedWriter) { w.inflight = make(chan struct{}, n) }
}

// WithWriterLogger attaches a zerolog.Logger.
func WithWriterLogger(l zerolog.Logger) WriterOption {
	return func(w *BatchedWriter) { w.log = l }
}

// NewBatchedWriter creates a writer that uploads chunks for namespace
// through blobs and registers them via manifest.
func NewBatchedWriter(namespace string, blobs BlobPutter, manifest ManifestRegistrar, opts ...WriterOption) *BatchedWriter {
	w := &BatchedWriter{
		blobs:             blobs,
		manifest:          manifest,
		namespace:         namespace,
		log:               zerolog.Nop(),
		maxPendingTriples: DefaultMaxPendingTriples,
		inflight:          make(chan struct{}, DefaultMaxPendingBatches),
		bloomFilter:       bloom.New(bloom.DefaultCapacity, bloom.DefaultFalsePositiveRate),
		backoff: func() backoff.BackOff {
			return backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 5)
		},
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Add buffers t, flushing synchronously if the buffer has crossed
// maxPendingTriples.
func (w *BatchedWriter) Add(t types.Triple) error {
	return w.AddBatch([]types.Triple{t})
}

// AddBatch buffers ts, flushing synchronously if the buffer crosses the
// configured threshold after adding them.
func (w *BatchedWriter) AddBatch(ts []types.Triple) error {
	w.mu.Lock()
	w.buffer = append(w.buffer, ts...)
	w.totalTriples += len(ts)
	shouldFlush := len(w.buffer) >= w.maxPendingTriples
	w.mu.Unlock()
	if shouldFlush {
		return w.Flush(context.Background())
	}
	return nil
}

// IsBackpressured reports whether the writer currently has
// maxPendingBatches uploads in flight
func (w *BatchedWriter) IsBackpressured() bool {
	return len(w.inflight) >= cap(w.inflight)
}

// Flush forces an immediate upload of the current buffer, if non-empty.
// Flush suspends ( "suspension points") until an upload
// slot is free, then retries the upload with bounded exponential backoff.
// On ultimate failure the buffer is preserved so the caller can retry.
func (w *BatchedWriter) Flush(ctx context.Context) error {
	w.mu.Lock()
	if len(w.buffer) == 0 {
		w.mu.Unlock()
		return nil
	}
	pending := w.buffer
	w.buffer = nil
	w.mu.Unlock()

	select {
	case w.inflight <- struct{}{}:
	case <-ctx.Done():
		w.requeue(pending)
		return ctx.Err()
	}
	defer func() { <-w.inflight }()

	if err := w.uploadChunk(ctx, pending); err != nil {
		w.requeue(pending)
		return err
	}
	return nil
}

func (w *BatchedWriter) requeue(ts []types.Triple) {
	w.mu.Lock()
	w.buffer = append(ts, w.buffer...)
	w.mu.Unlock()
}

func (w *BatchedWriter) uploadChunk(ctx context.Context, ts []types.Triple) error {
	data, err := chunk.EncodeChunk(ts, w.namespace)
	if err != nil {
		return fmt.Errorf("shard writer: encoding chunk: %w", err)
	}
	footerOffset, footerSize, err := chunk.TrailerOffsets(data)
	if err != nil {
		return fmt.Errorf("shard writer: reading trailer of freshly-encoded chunk: %w", err)
	}

	chunkID := uuid.NewString()
	key := fmt.Sprintf("%s/_chunks/%s.gcol", types.ReverseNamespace(w.namespace), chunkID)

	op := func() error {
		return w.blobs.Put(ctx, key, data, "application/octet-stream")
	}
	if err := backoff.Retry(op, w.backoff()); err != nil {
		w.log.Error().Err(err).Str("key", key).Msg("chunk upload failed after retries")
		return fmt.Errorf("shard writer: uploading chunk %s: %w", key, err)
	}

	distinctSubjects := make(map[types.EntityId]struct{})
	for _, t := range ts {
		distinctSubjects[t.Subject] = struct{}{}
	}

	w.mu.Lock()
	for id := range distinctSubjects {
		w.bloomFilter.Add(string(id))
	}
	w.chunksUploaded = append(w.chunksUploaded, key)
	w.mu.Unlock()

	if w.manifest != nil {
		file := ChunkFile{
			Path:         key,
			FooterOffset: footerOffset,
			FooterSize:   footerSize,
			EntityCount:  len(distinctSubjects),
			Version:      fmt.Sprintf("%d", time.Now().UnixNano()),
		}
		if err := w.manifest.RegisterChunk(ctx, w.namespace, file); err != nil {
			return fmt.Errorf("shard writer: registering chunk %s in manifest: %w", key, err)
		}
	}
	return nil
}

// FinalizeResult summarizes a finalized writer's output
type FinalizeResult struct {
	ChunksUploaded []string
	Bloom          *bloom.Filter
	TotalTriples   int
}

// Finalize flushes any remainder and returns manifest-ready metadata.
func (w *BatchedWriter) Finalize(ctx context.Context) (FinalizeResult, error) {
	if err := w.Flush(ctx); err != nil {
		return FinalizeResult{}, err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return FinalizeResult{
		ChunksUploaded: append([]string(nil), w.chunksUploaded...),
		Bloom:          w.bloomFilter,
		TotalTriples:   w.totalTriples,
	}, nil
}

// State captures a checkpoint of the writer's in-memory progress so
// ingestion can resume after a crash.
func (w *BatchedWriter) State() WriterState {
	w.mu.Lock()
	defer w.mu.Unlock()
	return WriterState{
		TriplesWritten: w.totalTriples,
		ChunksUploaded: append([]string(nil), w.chunksUploaded...),
		Bloom:          w.bloomFilter.Serialize(),
	}
}

// RestoreState restores a previously captured WriterState. The triple
// buffer itself is not restored (triples already flushed to chunks are
// gone; unflushed ones must be replayed by the caller from its own source
// of truth), but the chunk list and bloom filter are restored so a resumed
// run doesn't lose track of what it already uploaded.
func (w *BatchedWriter) RestoreState(s WriterState) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.chunksUploaded = append([]string(nil), s.ChunksUploaded...)
	w.totalTriples = s.TriplesWritten
	if len(s.Bloom) > 0 {
		f, err := bloom.Deserialize(s.Bloom)
		if err != nil {
			return fmt.Errorf("shard writer: restoring bloom state: %w", err)
		}
		w.bloomFilter = f
	}
	return nil
}
