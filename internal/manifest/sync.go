package manifest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/edgegraph/graphdb/internal/blobstore"
	"github.com/edgegraph/graphdb/internal/types"
)

// NeedsSync reports whether namespace's local state is absent or out of
// date relative to the remote manifest's version
func (s *Store) NeedsSync(ctx context.Context, namespace string) (bool, error) {
	st := s.stateFor(namespace)
	st.mu.Lock()
	localVersion := st.version
	st.mu.Unlock()
	if localVersion == "" {
		return true, nil
	}

	remote, found, err := s.fetchRemote(ctx, namespace)
	if err != nil {
		return false, err
	}
	if !found {
		return false, nil
	}
	return localVersion != remote.Version, nil
}

// SyncFromR2 fetches the remote manifest and overwrites namespace's local
// state with it.
func (s *Store) SyncFromR2(ctx context.Context, namespace string) (SyncResult, error) {
	return s.syncFromR2Locked(ctx, namespace)
}

func (s *Store) syncFromR2Locked(ctx context.Context, namespace string) (SyncResult, error) {
	remote, found, err := s.fetchRemote(ctx, namespace)
	if err != nil {
		res := SyncResult{Direction: "from_r2", ErrorCode: ErrCodeMalformedRemote}
		s.recordStatus(namespace, res)
		return res, err
	}
	if !found {
		res := SyncResult{Direction: "from_r2", ErrorCode: ErrCodeRemoteNotFound}
		s.recordStatus(namespace, res)
		return res, blobstore.ErrNotFound
	}

	s.ImportFromR2Manifest(namespace, remote)
	res := SyncResult{Direction: "from_r2", EntriesUpdated: len(remote.Entities)}
	s.recordStatus(namespace, res)
	return res, nil
}

// SyncToR2 serializes namespace's local state and writes it to the remote
// manifest path. No retry is performed at this layer
func (s *Store) SyncToR2(ctx context.Context, namespace string) (SyncResult, error) {
	m := s.ExportToR2Manifest(namespace)
	if m.Version == "" {
		m.Version = fmt.Sprintf("%d", time.Now().UnixNano())
	}

	data, err := json.Marshal(m)
	if err != nil {
		res := SyncResult{Direction: "to_r2", ErrorCode: ErrCodeWriteFailed}
		s.recordStatus(namespace, res)
		return res, fmt.Errorf("manifest: marshaling namespace %q: %w", namespace, err)
	}

	if err := s.remote.Put(ctx, blobstore.ManifestKey(namespace), data, "application/json"); err != nil {
		res := SyncResult{Direction: "to_r2", ErrorCode: ErrCodeWriteFailed}
		s.recordStatus(namespace, res)
		return res, fmt.Errorf("manifest: writing namespace %q to remote: %w", namespace, err)
	}

	st := s.stateFor(namespace)
	st.mu.Lock()
	st.version = m.Version
	st.mu.Unlock()

	res := SyncResult{Direction: "to_r2", EntriesUpdated: len(m.Entities)}
	s.recordStatus(namespace, res)
	return res, nil
}

// FullSync picks a sync direction for namespace: from-R2 if
// local is empty, to-R2 if remote is empty, or a bidirectional merge (R2
// wins on conflicts) if both sides are non-empty with differing versions.
func (s *Store) FullSync(ctx context.Context, namespace string) (SyncResult, error) {
	st := s.stateFor(namespace)
	st.mu.Lock()
	localEmpty := len(st.entities) == 0
	localVersion := st.version
	st.mu.Unlock()

	remote, found, err := s.fetchRemote(ctx, namespace)
	if err != nil {
		res := SyncResult{Direction: "bidirectional", ErrorCode: ErrCodeMalformedRemote}
		s.recordStatus(namespace, res)
		return res, err
	}

	switch {
	case localEmpty && !found:
		res := SyncResult{Direction: "noop"}
		s.recordStatus(namespace, res)
		return res, nil
	case localEmpty:
		return s.syncFromR2Locked(ctx, namespace)
	case !found:
		return s.SyncToR2(ctx, namespace)
	case localVersion == remote.Version:
		res := SyncResult{Direction: "noop"}
		s.recordStatus(namespace, res)
		return res, nil
	default:
		return s.mergeBidirectional(ctx, namespace, st, remote)
	}
}

// mergeBidirectional merges remote into the local state with R2 winning
// conflicting entity locations, then pushes the merged result back to R2 so
// entities added only locally aren't lost.
func (s *Store) mergeBidirectional(ctx context.Context, namespace string, st *namespaceState, remote R2Manifest) (SyncResult, error) {
	st.mu.Lock()
	merged := make(map[types.EntityId]EntityLocation, len(st.entities)+len(remote.Entities))
	for k, v := range st.entities {
		merged[k] = v
	}
	conflicts := 0
	for k, rv := range remote.Entities {
		if lv, ok := merged[k]; !ok || lv != rv {
			conflicts++
		}
		merged[k] = rv
	}
	st.entities = merged

	for _, rf := range remote.Files {
		present := false
		for _, lf := range st.files {
			if lf.Path == rf.Path {
				present = true
				break
			}
		}
		if !present {
			st.files = append(st.files, rf)
		}
	}
	st.version = remote.Version
	st.updated = time.Now()
	entries := len(merged)
	st.mu.Unlock()

	if _, err := s.SyncToR2(ctx, namespace); err != nil {
		res := SyncResult{Direction: "bidirectional", EntriesUpdated: entries, Conflicts: conflicts, ErrorCode: ErrCodeWriteFailed}
		s.recordStatus(namespace, res)
		return res, err
	}

	res := SyncResult{Direction: "bidirectional", EntriesUpdated: entries, Conflicts: conflicts}
	s.recordStatus(namespace, res)
	return res, nil
}

// fetchRemote reads and validates namespace's manifest from the remote
// store. found is false (with a nil error) when the object doesn't exist.
func (s *Store) fetchRemote(ctx context.Context, namespace string) (R2Manifest, bool, error) {
	data, err := s.remote.Get(ctx, blobstore.ManifestKey(namespace))
	if errors.Is(err, blobstore.ErrNotFound) {
		return R2Manifest{}, false, nil
	}
	if err != nil {
		return R2Manifest{}, false, fmt.Errorf("manifest: fetching remote manifest for %q: %w", namespace, err)
	}

	var m R2Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return R2Manifest{}, false, fmt.Errorf("manifest: remote manifest for %q is malformed: %w", namespace, err)
	}
	if m.Version == "" {
		return R2Manifest{}, false, fmt.Errorf("manifest: remote manifest for %q is missing a version", namespace)
	}
	if m.Entities == nil {
		m.Entities = map[types.EntityId]EntityLocation{}
	}
	return m, true, nil
}

// GetSyncStatus returns the cached sync status for namespace.
func (s *Store) GetSyncStatus(namespace string) SyncStatus {
	s.syncMu.Lock()
	defer s.syncMu.Unlock()
	return s.status[namespace]
}

// GetSyncStatusAsync refreshes namespace's sync status by querying both the
// local and remote version, without performing a sync.
func (s *Store) GetSyncStatusAsync(ctx context.Context, namespace string) (SyncStatus, error) {
	st := s.stateFor(namespace)
	st.mu.Lock()
	localVersion := st.version
	st.mu.Unlock()

	status := SyncStatus{Namespace: namespace, LocalVersion: localVersion}
	if _, found, err := s.fetchRemote(ctx, namespace); err != nil {
		return SyncStatus{}, err
	} else if !found {
		status.LastSyncedAt = time.Now()
	}

	s.syncMu.Lock()
	s.status[namespace] = status
	s.syncMu.Unlock()
	return status, nil
}

func (s *Store) recordStatus(namespace string, res SyncResult) {
	st := s.stateFor(namespace)
	st.mu.Lock()
	version := st.version
	st.mu.Unlock()

	s.syncMu.Lock()
	s.status[namespace] = SyncStatus{
		Namespace:    namespace,
		LocalVersion: version,
		LastSyncedAt: time.Now(),
		LastResult:   res,
	}
	s.syncMu.Unlock()
}
