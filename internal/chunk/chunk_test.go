package chunk

import (
	"fmt"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edgegraph/graphdb/internal/types"
)

func txID(n int) types.TransactionId {
	s := fmt.Sprintf("%026d", n)
	return types.TransactionId(s)
}

func sampleTriples() []types.Triple {
	return []types.Triple{
		{Subject: "https://ex/e1", Predicate: "name", Object: types.TypedValue{Kind: types.KindString, Str: "Alice"}, Timestamp: 1000, TxID: txID(1)},
		{Subject: "https://ex/e1", Predicate: "age", Object: types.TypedValue{Kind: types.KindInt32, Int: 30}, Timestamp: 1000, TxID: txID(2)},
		{Subject: "https://ex/e2", Predicate: "name", Object: types.TypedValue{Kind: types.KindString, Str: "Bob"}, Timestamp: 1001, TxID: txID(3)},
		{Subject: "https://ex/e2", Predicate: "tags", Object: types.TypedValue{Kind: types.KindVector, Vector: []float64{1.5, 2.5, -3.25}}, Timestamp: 1001, TxID: txID(4)},
		{Subject: "https://ex/e2", Predicate: "friend", Object: types.TypedValue{Kind: types.KindRef, Ref: "https://ex/e1"}, Timestamp: 1002, TxID: txID(5)},
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	triples := sampleTriples()
	data, err := EncodeChunk(triples, "https://ex/")
	require.NoError(t, err)

	footerOffset, footerSize, err := TrailerOffsets(data)
	require.NoError(t, err)

	idx, err := DecodeChunkFooter(data, footerOffset, footerSize)
	require.NoError(t, err)
	assert.Equal(t, "https://ex/", idx.Namespace)
	assert.Len(t, idx.Entities, 2)

	entry, ok := idx.Lookup("https://ex/e1")
	require.True(t, ok)
	got, err := ReadEntitySlice(data, entry.ByteOffset, uint64(entry.ByteLength))
	require.NoError(t, err)
	require.Len(t, got, 2)
	for _, tr := range got {
		assert.Equal(t, types.EntityId("https://ex/e1"), tr.Subject)
	}
}

func TestEncodeDecodeSetEquivalence(t *testing.T) {
	triples := sampleTriples()
	data, err := EncodeChunk(triples, "https://ex/")
	require.NoError(t, err)

	footerOffset, footerSize, err := TrailerOffsets(data)
	require.NoError(t, err)
	idx, err := DecodeChunkFooter(data, footerOffset, footerSize)
	require.NoError(t, err)

	var roundTripped []types.Triple
	for _, e := range idx.Entities {
		rows, err := ReadEntitySlice(data, e.ByteOffset, uint64(e.ByteLength))
		require.NoError(t, err)
		roundTripped = append(roundTripped, rows...)
	}

	assert.ElementsMatch(t, normalize(triples), normalize(roundTripped))
}

func normalize(ts []types.Triple) []string {
	out := make([]string, len(ts))
	for i, t := range ts {
		out[i] = string(t.Subject) + "|" + string(t.Predicate) + "|" + string(t.TxID)
	}
	sort.Strings(out)
	return out
}

func TestReadEntitySliceUnknownEntity(t *testing.T) {
	data, err := EncodeChunk(sampleTriples(), "https://ex/")
	require.NoError(t, err)
	footerOffset, footerSize, err := TrailerOffsets(data)
	require.NoError(t, err)
	idx, err := DecodeChunkFooter(data, footerOffset, footerSize)
	require.NoError(t, err)
	_, ok := idx.Lookup("https://ex/does-not-exist")
	assert.False(t, ok)
}

func TestTrailerOffsetsTruncated(t *testing.T) {
	_, _, err := TrailerOffsets([]byte("short"))
	assert.ErrorIs(t, err, ErrMalformedChunk)
}

func TestDecodeChunkFooterOutOfBounds(t *testing.T) {
	data, err := EncodeChunk(sampleTriples(), "https://ex/")
	require.NoError(t, err)
	_, err = DecodeChunkFooter(data, uint64(len(data)), 100)
	assert.ErrorIs(t, err, ErrMalformedChunk)
}
