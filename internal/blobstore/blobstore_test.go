package blobstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edgegraph/graphdb/internal/types"
)

func TestKeyHelpersUseReversedNamespace(t *testing.T) {
	assert.Equal(t, ".test/.ex/_chunks/abc.gcol", ChunkKey("https://ex.test/", "abc"))
	assert.Equal(t, ".test/.ex/_manifest.json", ManifestKey("https://ex.test/"))
	assert.Equal(t, "vectors/embedding/https://ex.test/e1", VectorKey("embedding", types.EntityId("https://ex.test/e1")))
}

func TestMemoryStoreGetPutDelete(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	_, err := s.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.Put(ctx, "k1", []byte("hello"), "text/plain"))
	got, err := s.Get(ctx, "k1")
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), got)

	require.NoError(t, s.Delete(ctx, "k1"))
	_, err = s.Get(ctx, "k1")
	assert.ErrorIs(t, err, ErrNotFound)

	assert.ErrorIs(t, s.Delete(ctx, "k1"), ErrNotFound)
}

func TestMemoryStoreListByPrefixAndPagination(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	keys := []string{"ns/a", "ns/b", "ns/c", "other/d"}
	for _, k := range keys {
		require.NoError(t, s.Put(ctx, k, []byte("x"), "application/octet-stream"))
	}

	page, err := s.List(ctx, ListOptions{Prefix: "ns/"})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"ns/a", "ns/b", "ns/c"}, page.Keys)

	first, err := s.List(ctx, ListOptions{Prefix: "ns/", Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, []string{"ns/a", "ns/b"}, first.Keys)
	assert.Equal(t, "ns/b", first.NextCursor)

	second, err := s.List(ctx, ListOptions{Prefix: "ns/", Cursor: first.NextCursor})
	require.NoError(t, err)
	assert.Equal(t, []string{"ns/c"}, second.Keys)
}

func TestMemoryStorePutOverwritesAndCopiesBytes(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	body := []byte("v1")
	require.NoError(t, s.Put(ctx, "k", body, "text/plain"))
	body[0] = 'X' // mutate caller's slice after Put

	got, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v1"), got, "Put must copy, not alias, the body")
}
