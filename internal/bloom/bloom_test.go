package bloom

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddContains(t *testing.T) {
	f := New(DefaultCapacity, DefaultFalsePositiveRate)
	f.Add("https://example.com/e1")
	assert.True(t, f.Contains("https://example.com/e1"))
	assert.False(t, f.Contains("https://example.com/never-added"))
}

func TestFalsePositiveRateWithinBudget(t *testing.T) {
	const n = 1000
	f := New(n, 0.01)
	for i := 0; i < n; i++ {
		f.Add(fmt.Sprintf("https://example.com/e%d", i))
	}
	falsePositives := 0
	const trials = 20000
	for i := 0; i < trials; i++ {
		if f.Contains(fmt.Sprintf("https://example.com/absent-%d", i)) {
			falsePositives++
		}
	}
	rate := float64(falsePositives) / float64(trials)
	assert.Less(t, rate, 0.03, "fpr should stay close to the 1%% target")
}

func TestUnionRequiresEqualParams(t *testing.T) {
	a := NewWithParams(1024, 4)
	b := NewWithParams(2048, 4)
	err := a.Union(b)
	assert.ErrorIs(t, err, ErrParamMismatch)
}

func TestUnionIsLogicalOr(t *testing.T) {
	a := NewWithParams(4096, 4)
	b := NewWithParams(4096, 4)
	a.Add("x")
	b.Add("y")
	require.NoError(t, a.Union(b))
	assert.True(t, a.Contains("x"))
	assert.True(t, a.Contains("y"))
	assert.False(t, a.Contains("z"))
}

func TestSerializeDeserializeRoundTrip(t *testing.T) {
	f := New(1000, 0.01)
	f.Add("https://example.com/e1")
	f.Add("https://example.com/e2")

	data := f.Serialize()
	restored, err := Deserialize(data)
	require.NoError(t, err)
	assert.Equal(t, f.M(), restored.M())
	assert.Equal(t, f.K(), restored.K())
	assert.True(t, restored.Contains("https://example.com/e1"))
	assert.True(t, restored.Contains("https://example.com/e2"))
	assert.False(t, restored.Contains("https://example.com/e3"))
}

func TestDeserializeTruncated(t *testing.T) {
	_, err := Deserialize([]byte{1, 2, 3})
	assert.ErrorIs(t, err, ErrTruncated)
}
