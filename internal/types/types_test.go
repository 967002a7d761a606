package types

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateEntityID(t *testing.T) {
	require.NoError(t, ValidateEntityID("https://example.com/e1"))
	require.NoError(t, ValidateEntityID("http://example.com/e1"))
	assert.Error(t, ValidateEntityID(""))
	assert.Error(t, ValidateEntityID("ftp://example.com/e1"))
	assert.Error(t, ValidateEntityID("not-a-url"))

	old := MaxEntityIDLength
	defer func() { MaxEntityIDLength = old }()
	MaxEntityIDLength = 10
	assert.Error(t, ValidateEntityID("https://example.com/e1"))
}

func TestValidatePredicate(t *testing.T) {
	require.NoError(t, ValidatePredicate("name"))
	require.NoError(t, ValidatePredicate("_private"))
	require.NoError(t, ValidatePredicate("$meta"))
	assert.Error(t, ValidatePredicate("has:colon"))
	assert.Error(t, ValidatePredicate("has space"))
	assert.Error(t, ValidatePredicate("1leadingdigit"))
	assert.Error(t, ValidatePredicate(""))
}

func TestTransactionIDSortable(t *testing.T) {
	base := time.Now()
	a, err := newTransactionIDAt(base)
	require.NoError(t, err)
	b, err := newTransactionIDAt(base.Add(time.Millisecond))
	require.NoError(t, err)

	require.NoError(t, ValidateTransactionID(a))
	require.NoError(t, ValidateTransactionID(b))
	assert.Len(t, string(a), 26)
	assert.Less(t, string(a), string(b))
}

func TestTransactionIDMonotonicCounterTiebreak(t *testing.T) {
	ts := time.Now()
	a, err := newTransactionIDAt(ts)
	require.NoError(t, err)
	b, err := newTransactionIDAt(ts)
	require.NoError(t, err)
	// Same millisecond: the monotonic counter still orders a < b because it
	// is embedded directly after the timestamp bits.
	assert.Less(t, string(a), string(b))
}

func TestValidateTypedValue(t *testing.T) {
	require.NoError(t, ValidateTypedValue(TypedValue{Kind: KindInt32, Int: 2147483647}))
	assert.Error(t, ValidateTypedValue(TypedValue{Kind: KindInt32, Int: 2147483648}))

	require.NoError(t, ValidateTypedValue(TypedValue{Kind: KindFloat64, Float: 1.5}))
	nan := TypedValue{Kind: KindFloat64, Float: nan()}
	require.NoError(t, ValidateTypedValue(nan), "NaN is permitted, only +/-Inf is rejected")
	assert.Error(t, ValidateTypedValue(TypedValue{Kind: KindFloat64, Float: inf()}))

	require.NoError(t, ValidateTypedValue(TypedValue{Kind: KindDuration, Duration: "P1Y2M3D"}))
	require.NoError(t, ValidateTypedValue(TypedValue{Kind: KindDuration, Duration: "PT1H30M"}))
	assert.Error(t, ValidateTypedValue(TypedValue{Kind: KindDuration, Duration: "P"}))
	assert.Error(t, ValidateTypedValue(TypedValue{Kind: KindDuration, Duration: "garbage"}))

	require.NoError(t, ValidateTypedValue(TypedValue{Kind: KindRef, Ref: "https://e/1"}))
	assert.Error(t, ValidateTypedValue(TypedValue{Kind: KindRef, Ref: "bad"}))

	require.NoError(t, ValidateTypedValue(TypedValue{Kind: KindVector, Vector: []float64{1, 2, 3}}))
	assert.Error(t, ValidateTypedValue(TypedValue{Kind: KindVector, Vector: []float64{1, nan()}}))
}

func TestValidateTripleCollectsAllErrors(t *testing.T) {
	tr := Triple{
		Subject:   "not-a-url",
		Predicate: "bad predicate",
		Object:    TypedValue{Kind: KindInt32, Int: 1 << 40},
		Timestamp: 1,
		TxID:      "short",
	}
	errs := ValidateTriple(tr)
	assert.Len(t, errs, 4)
}

func TestNextTimestampMonotonic(t *testing.T) {
	assert.Equal(t, uint64(1000), NextTimestamp(1000, 500))
	assert.Equal(t, uint64(1001), NextTimestamp(1000, 1000))
	assert.Equal(t, uint64(1001), NextTimestamp(900, 1000))
}

func nan() float64 { var z float64; return z / z }
func inf() float64 { var z float64; return 1 / z }
