package index

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edgegraph/graphdb/internal/types"
)

func TestFTSSearchUninitializedTableNotFound(t *testing.T) {
	idx := NewFTSIndex()
	_, err := idx.Search(FTSSearchQuery{Query: "hello", Predicate: "bio"})
	var qerr *FTSQueryError
	require.ErrorAs(t, err, &qerr)
	assert.Equal(t, FTSErrCodeTableNotFound, qerr.Code)
}

func TestFTSSearchInvalidPredicateQueryError(t *testing.T) {
	idx := NewFTSIndex()
	_, err := idx.Search(FTSSearchQuery{Query: "hello", Predicate: "1bad"})
	var qerr *FTSQueryError
	require.ErrorAs(t, err, &qerr)
	assert.Equal(t, FTSErrCodeQueryError, qerr.Code)
}

func TestFTSIndexAndSearchReturnsIndexedRow(t *testing.T) {
	idx := NewFTSIndex()
	require.NoError(t, idx.Initialize("bio"))

	subj := types.EntityId("https://ex.test/e1")
	require.NoError(t, idx.IndexRow(subj, "bio", "Hello World"))

	got, err := idx.Search(FTSSearchQuery{Query: "hel", Predicate: "bio"})
	require.NoError(t, err)
	assert.Contains(t, got, subj)

	got, err = idx.Search(FTSSearchQuery{Query: "wor", Predicate: "bio"})
	require.NoError(t, err)
	assert.Contains(t, got, subj)
}

func TestFTSSearchNoMatchesReturnsEmptyNotError(t *testing.T) {
	idx := NewFTSIndex()
	require.NoError(t, idx.Initialize("bio"))
	require.NoError(t, idx.IndexRow("https://ex.test/e1", "bio", "Hello World"))

	got, err := idx.Search(FTSSearchQuery{Query: "zzz", Predicate: "bio"})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestFTSDeleteRowRemovesSubjectFromAllItsTokens(t *testing.T) {
	idx := NewFTSIndex()
	require.NoError(t, idx.Initialize("bio"))
	subj := types.EntityId("https://ex.test/e1")
	require.NoError(t, idx.IndexRow(subj, "bio", "Hello World"))
	require.NoError(t, idx.DeleteRow(subj, "bio"))

	got, err := idx.Search(FTSSearchQuery{Query: "hel", Predicate: "bio"})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestFTSMultipleSubjectsSharePrefix(t *testing.T) {
	idx := NewFTSIndex()
	require.NoError(t, idx.Initialize("bio"))
	e1, e2 := types.EntityId("https://ex.test/e1"), types.EntityId("https://ex.test/e2")
	require.NoError(t, idx.IndexRow(e1, "bio", "software engineer"))
	require.NoError(t, idx.IndexRow(e2, "bio", "software architect"))

	got, err := idx.Search(FTSSearchQuery{Query: "soft", Predicate: "bio"})
	require.NoError(t, err)
	assert.ElementsMatch(t, []types.EntityId{e1, e2}, got)
}
