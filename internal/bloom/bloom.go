package bloom

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash/fnv"
	"math"
)

// DefaultCapacity and DefaultFalsePositiveRate are the spec's documented
// typical defaults: 50,000 elements at a 1% false-positive rate.
const (
	DefaultCapacity         = 50_000
	DefaultFalsePositiveRate = 0.01
)

// Filter is a fixed-capacity k-hash bloom filter over a bit array of m bits.
// Filter is not safe for concurrent use without external synchronization;
// callers that share a Filter across goroutines (the shard's per-shard
// filter, the manifest store's fleet filter) must guard it
// "shared-resource policy".
type Filter struct {
	bits []uint64
	m    uint64
	k    uint64
}

// New creates a Filter sized for n expected elements at false-positive rate
// fpr, using the standard optimal-parameter formulas:
//
//	m = ceil(-n*ln(fpr) / ln(2)^2)
//	k = round(m/n * ln(2))
func New(n uint64, fpr float64) *Filter {
	if n == 0 {
		n = 1
	}
	if fpr <= 0 || fpr >= 1 {
		fpr = DefaultFalsePositiveRate
	}
	ln2 := math.Ln2
	m := uint64(math.Ceil(-float64(n) * math.Log(fpr) / (ln2 * ln2)))
	if m < 64 {
		m = 64
	}
	k := uint64(math.Round(float64(m) / float64(n) * ln2))
	if k < 1 {
		k = 1
	}
	return NewWithParams(m, k)
}

// NewWithParams creates a Filter with explicit bit-array size m and hash
// count k. Two filters must share identical (m, k) to be unioned.
func NewWithParams(m, k uint64) *Filter {
	words := (m + 63) / 64
	return &Filter{bits: make([]uint64, words), m: m, k: k}
}

// M returns the number of bits in the filter.
func (f *Filter) M() uint64 { return f.m }

// K returns the number of hash functions used by the filter.
func (f *Filter) K() uint64 { return f.k }

// Add inserts key into the filter.
func (f *Filter) Add(key string) {
	h1, h2 := doubleHash(key)
	for i := uint64(0); i < f.k; i++ {
		idx := (h1 + i*h2) % f.m
		f.bits[idx/64] |= 1 << (idx % 64)
	}
}

// Contains reports whether key was possibly added to the filter. A false
// result is definitive; a true result may be a false positive.
func (f *Filter) Contains(key string) bool {
	h1, h2 := doubleHash(key)
	for i := uint64(0); i < f.k; i++ {
		idx := (h1 + i*h2) % f.m
		if f.bits[idx/64]&(1<<(idx%64)) == 0 {
			return false
		}
	}
	return true
}

// ErrParamMismatch is returned by Union when the filters don't share (m, k).
var ErrParamMismatch = errors.New("bloom: filters have different m/k parameters and cannot be unioned")

// Union ORs other's bits into f in place. Both filters must share identical
// m and k; property 5, the result satisfies
// union(a,b).Contains(x) == a.Contains(x) || b.Contains(x).
func (f *Filter) Union(other *Filter) error {
	if f.m != other.m || f.k != other.k {
		return fmt.Errorf("%w: (%d,%d) vs (%d,%d)", ErrParamMismatch, f.m, f.k, other.m, other.k)
	}
	for i := range f.bits {
		f.bits[i] |= other.bits[i]
	}
	return nil
}

// Serialize encodes the filter as m, k, and the raw bit words, in that
// order, all little-endian.
func (f *Filter) Serialize() []byte {
	buf := make([]byte, 16+len(f.bits)*8)
	binary.LittleEndian.PutUint64(buf[0:8], f.m)
	binary.LittleEndian.PutUint64(buf[8:16], f.k)
	for i, w := range f.bits {
		binary.LittleEndian.PutUint64(buf[16+i*8:16+i*8+8], w)
	}
	return buf
}

// ErrTruncated is returned by Deserialize when data is too short to contain
// a valid header and bit array.
var ErrTruncated = errors.New("bloom: truncated filter data")

// Deserialize restores a Filter previously produced by Serialize.
func Deserialize(data []byte) (*Filter, error) {
	if len(data) < 16 {
		return nil, ErrTruncated
	}
	m := binary.LittleEndian.Uint64(data[0:8])
	k := binary.LittleEndian.Uint64(data[8:16])
	words := (m + 63) / 64
	want := 16 + int(words)*8
	if len(data) < want {
		return nil, fmt.Errorf("%w: want %d bytes, got %d", ErrTruncated, want, len(data))
	}
	bits := make([]uint64, words)
	for i := range bits {
		bits[i] = binary.LittleEndian.Uint64(data[16+i*8 : 16+i*8+8])
	}
	return &Filter{bits: bits, m: m, k: k}, nil
}

// doubleHash derives two independent 64-bit hashes of key using the
// double-hashing technique (Kirsch-Mitzenmacher): a single FNV-1a pass over
// key and a salted pass are combined as h1 + i*h2 to simulate k independent
// hash functions, avoiding k separate hash computations per operation.
func doubleHash(key string) (uint64, uint64) {
	h1 := fnv.New64a()
	h1.Write([]byte(key))
	sum1 := h1.Sum64()

	h2 := fnv.New64a()
	h2.Write([]byte(key))
	h2.Write([]byte{0xff})
	sum2 := h2.Sum64()
	if sum2 == 0 {
		sum2 = 1
	}
	return sum1, sum2
}
