package manifest

import (
	"context"
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"

	"github.com/edgegraph/graphdb/internal/blobstore"
	"github.com/edgegraph/graphdb/internal/shard"
	"github.com/edgegraph/graphdb/internal/types"
)

// DefaultMaxCachedNamespaces and DefaultMaxEntitiesPerNamespace are the
// manifest store's documented defaults .
const (
	DefaultMaxCachedNamespaces     = 64
	DefaultMaxEntitiesPerNamespace = 1_000_000
)

// ErrNamespaceFull is returned by PutEntityIndex when a namespace's entity
// index has reached maxEntitiesPerNamespace.
var ErrNamespaceFull = fmt.Errorf("manifest: namespace entity index is full")

// namespaceState is the cached, mutable local view of one namespace's
// manifest: the chunk file list and the entity index, plus the version
// token the sync protocol compares against R2's.
type namespaceState struct {
	mu       sync.Mutex
	files    []ManifestFile
	entities map[types.EntityId]EntityLocation
	version  string
	updated  time.Time
}

func newNamespaceState() *namespaceState {
	return &namespaceState{entities: make(map[types.EntityId]EntityLocation)}
}

func (s *namespaceState) snapshot() R2Manifest {
	s.mu.Lock()
	defer s.mu.Unlock()
	entities := make(map[types.EntityId]EntityLocation, len(s.entities))
	for k, v := range s.entities {
		entities[k] = v
	}
	return R2Manifest{
		Version:   s.version,
		Files:     append([]ManifestFile(nil), s.files...),
		Entities:  entities,
		UpdatedAt: s.updated,
	}
}

// Store is the manifest store: an LRU-bounded cache of namespace state,
// backed by a remote R2-compatible blobstore.Store as the source of truth.
type Store struct {
	remote                  blobstore.Store
	log                     zerolog.Logger
	maxEntitiesPerNamespace int

	mu    sync.Mutex
	cache *lru.Cache[string, *namespaceState]

	syncMu sync.Mutex
	status map[string]SyncStatus
}

// Option configures a Store at construction time.
type Option func(*Store)

// WithMaxCachedNamespaces overrides DefaultMaxCachedNamespaces.
func WithMaxCachedNamespaces(n int) Option {
	return func(s *Store) {
		cache, _ := lru.New[string, *namespaceState](n)
		s.cache = cache
	}
}

// WithMaxEntitiesPerNamespace overrides DefaultMaxEntitiesPerNamespace.
func WithMaxEntitiesPerNamespace(n int) Option {
	return func(s *Store) { s.maxEntitiesPerNamespace = n }
}

// WithLogger attaches a zerolog.Logger.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Store) { s.log = l }
}

// New creates a manifest store backed by remote.
func New(remote blobstore.Store, opts ...Option) *Store {
	cache, _ := lru.New[string, *namespaceState](DefaultMaxCachedNamespaces)
	s := &Store{
		remote:                  remote,
		log:                     zerolog.Nop(),
		maxEntitiesPerNamespace: DefaultMaxEntitiesPerNamespace,
		cache:                   cache,
		status:                  make(map[string]SyncStatus),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// stateFor returns the cached namespace state, creating an empty one if the
// namespace isn't cached (a true cold read still returns an empty state;
// callers needing remote data must sync first, per the cache-over-R2 model
// describes).
func (s *Store) stateFor(namespace string) *namespaceState {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.cache.Get(namespace); ok {
		return st
	}
	st := newNamespaceState()
	s.cache.Add(namespace, st)
	return st
}

// PutManifest registers file under namespace.
func (s *Store) PutManifest(_ context.Context, namespace string, file ManifestFile) error {
	st := s.stateFor(namespace)
	st.mu.Lock()
	defer st.mu.Unlock()
	st.files = append(st.files, file)
	st.updated = file.UpdatedAt
	return nil
}

// RegisterChunk adapts shard.ChunkFile into a ManifestFile and registers it,
// satisfying shard.ManifestRegistrar.
func (s *Store) RegisterChunk(ctx context.Context, namespace string, file shard.ChunkFile) error {
	return s.PutManifest(ctx, namespace, ManifestFile{
		Path:         file.Path,
		FooterOffset: file.FooterOffset,
		FooterSize:   file.FooterSize,
		EntityCount:  file.EntityCount,
		Version:      file.Version,
		UpdatedAt:    time.Now(),
	})
}

// GetManifest returns the file registered at path under namespace, if any.
func (s *Store) GetManifest(_ context.Context, namespace, path string) (ManifestFile, bool, error) {
	st := s.stateFor(namespace)
	st.mu.Lock()
	defer st.mu.Unlock()
	for _, f := range st.files {
		if f.Path == path {
			return f, true, nil
		}
	}
	return ManifestFile{}, false, nil
}

// ListManifestsForNamespace returns every chunk file registered under
// namespace.
func (s *Store) ListManifestsForNamespace(_ context.Context, namespace string) ([]ManifestFile, error) {
	st := s.stateFor(namespace)
	st.mu.Lock()
	defer st.mu.Unlock()
	return append([]ManifestFile(nil), st.files...), nil
}

// ListManifests returns every chunk file across every namespace currently
// cached by this store.
func (s *Store) ListManifests(_ context.Context) ([]ManifestFile, error) {
	s.mu.Lock()
	keys := s.cache.Keys()
	s.mu.Unlock()

	var out []ManifestFile
	for _, ns := range keys {
		st := s.stateFor(ns)
		st.mu.Lock()
		out = append(out, st.files...)
		st.mu.Unlock()
	}
	return out, nil
}

// DeleteManifest removes the file registered at path under namespace.
func (s *Store) DeleteManifest(_ context.Context, namespace, path string) error {
	st := s.stateFor(namespace)
	st.mu.Lock()
	defer st.mu.Unlock()
	for i, f := range st.files {
		if f.Path == path {
			st.files = append(st.files[:i], st.files[i+1:]...)
			return nil
		}
	}
	return nil
}

// PutEntityIndex records loc as entity's location under namespace.
func (s *Store) PutEntityIndex(_ context.Context, namespace string, entity types.EntityId, loc EntityLocation) error {
	st := s.stateFor(namespace)
	st.mu.Lock()
	defer st.mu.Unlock()
	if _, exists := st.entities[entity]; !exists && len(st.entities) >= s.maxEntitiesPerNamespace {
		return ErrNamespaceFull
	}
	st.entities[entity] = loc
	return nil
}

// LoadEntityIndex returns a snapshot of namespace's entire entity index.
func (s *Store) LoadEntityIndex(_ context.Context, namespace string) (map[types.EntityId]EntityLocation, error) {
	st := s.stateFor(namespace)
	st.mu.Lock()
	defer st.mu.Unlock()
	out := make(map[types.EntityId]EntityLocation, len(st.entities))
	for k, v := range st.entities {
		out[k] = v
	}
	return out, nil
}

// LookupEntity resolves entity's byte range under namespace. On a cache
// miss (namespace evicted or never synced) it transparently syncs from R2
// before answering "reads from persistent storage on
// the next lookup".
func (s *Store) LookupEntity(ctx context.Context, namespace string, entity types.EntityId) (EntityLocation, bool, error) {
	st := s.stateFor(namespace)
	st.mu.Lock()
	loc, ok := st.entities[entity]
	empty := len(st.entities) == 0
	st.mu.Unlock()
	if ok {
		return loc, true, nil
	}
	if !empty {
		return EntityLocation{}, false, nil
	}

	if _, err := s.syncFromR2Locked(ctx, namespace); err != nil {
		return EntityLocation{}, false, nil
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	loc, ok = st.entities[entity]
	return loc, ok, nil
}

// DeleteEntityIndex removes entity's index entry under namespace.
func (s *Store) DeleteEntityIndex(_ context.Context, namespace string, entity types.EntityId) error {
	st := s.stateFor(namespace)
	st.mu.Lock()
	defer st.mu.Unlock()
	delete(st.entities, entity)
	return nil
}

// IsStale reports whether namespace's locally cached version differs from
// (or is absent compared to) version.
func (s *Store) IsStale(namespace, version string) bool {
	st := s.stateFor(namespace)
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.version == "" || st.version != version
}

// ImportFromR2Manifest overwrites namespace's local state from m.
func (s *Store) ImportFromR2Manifest(namespace string, m R2Manifest) {
	st := s.stateFor(namespace)
	st.mu.Lock()
	defer st.mu.Unlock()
	st.files = append([]ManifestFile(nil), m.Files...)
	st.entities = make(map[types.EntityId]EntityLocation, len(m.Entities))
	for k, v := range m.Entities {
		st.entities[k] = v
	}
	st.version = m.Version
	st.updated = m.UpdatedAt
}

// ExportToR2Manifest returns namespace's local state in R2Manifest shape,
// ready to serialize and upload.
func (s *Store) ExportToR2Manifest(namespace string) R2Manifest {
	st := s.stateFor(namespace)
	m := st.snapshot()
	m.Namespace = namespace
	return m
}
