package index

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"math/rand"
	"sort"
	"sync"

	"github.com/edgegraph/graphdb/internal/blobstore"
	"github.com/edgegraph/graphdb/internal/types"
)

// HNSW defaults
const (
	DefaultM              = 16
	DefaultM0             = 32
	DefaultEfConstruction = 200
)

// DefaultML returns the standard level-multiplier default, 1/ln(m).
func DefaultML(m int) float64 { return 1 / math.Log(float64(m)) }

// DistanceFunc computes a distance between two vectors; smaller is closer.
type DistanceFunc func(a, b []float64) float64

// CosineDistance is 1 minus cosine similarity.
func CosineDistance(a, b []float64) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 1
	}
	return 1 - dot/(math.Sqrt(na)*math.Sqrt(nb))
}

// L2Distance is Euclidean distance.
func L2Distance(a, b []float64) float64 {
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return math.Sqrt(sum)
}

// HNSWConfig parameterizes graph construction
type HNSWConfig struct {
	M              int
	M0             int
	EfConstruction int
	ML             float64
	Distance       DistanceFunc
}

func (c *HNSWConfig) withDefaults() {
	if c.M == 0 {
		c.M = DefaultM
	}
	if c.M0 == 0 {
		c.M0 = DefaultM0
	}
	if c.EfConstruction == 0 {
		c.EfConstruction = DefaultEfConstruction
	}
	if c.ML == 0 {
		c.ML = DefaultML(c.M)
	}
	if c.Distance == nil {
		c.Distance = CosineDistance
	}
}

type hnswNode struct {
	id        types.EntityId
	level     int
	neighbors [][]types.EntityId // neighbors[layer] = neighbor ids at that layer
}

// HNSWStats summarizes an index's current shape stats().
type HNSWStats struct {
	NodeCount    int
	DeletedCount int
	MaxLevel     int
	EntryPoint   types.EntityId
}

// SearchResult is one ranked hit from HNSWIndex.Search.
type SearchResult struct {
	ID       types.EntityId
	Distance float64
}

// HNSWIndex is a hierarchical navigable small-world graph for one
// predicate: the graph of layer links lives in memory for fast traversal;
// node vectors live in the blob store under vectors/{predicate}/{nodeId}.
type HNSWIndex struct {
	predicate types.Predicate
	blobs     blobstore.Store
	cfg       HNSWConfig
	rng       *rand.Rand

	mu         sync.RWMutex
	nodes      map[types.EntityId]*hnswNode
	deleted    map[types.EntityId]struct{}
	entryPoint types.EntityId
	maxLevel   int
}

// NewHNSWIndex creates an empty HNSW index for predicate, persisting
// vectors through blobs.
func NewHNSWIndex(predicate types.Predicate, blobs blobstore.Store, cfg HNSWConfig) *HNSWIndex {
	cfg.withDefaults()
	return &HNSWIndex{
		predicate: predicate,
		blobs:     blobs,
		cfg:       cfg,
		rng:       rand.New(rand.NewSource(1)),
		nodes:     make(map[types.EntityId]*hnswNode),
		deleted:   make(map[types.EntityId]struct{}),
	}
}

func (idx *HNSWIndex) randomLevel() int {
	level := int(-math.Log(idx.rng.Float64()+1e-12) * idx.cfg.ML)
	return level
}

func encodeVector(v []float64) []byte {
	buf := make([]byte, 4+8*len(v))
	binary.LittleEndian.PutUint32(buf, uint32(len(v)))
	for i, f := range v {
		binary.LittleEndian.PutUint64(buf[4+8*i:], math.Float64bits(f))
	}
	return buf
}

func decodeVector(data []byte) ([]float64, error) {
	if len(data) < 4 {
		return nil, fmt.Errorf("hnsw: vector payload too short")
	}
	n := binary.LittleEndian.Uint32(data)
	if len(data) != int(4+8*n) {
		return nil, fmt.Errorf("hnsw: vector payload length mismatch")
	}
	out := make([]float64, n)
	for i := range out {
		out[i] = math.Float64frombits(binary.LittleEndian.Uint64(data[4+8*i:]))
	}
	return out, nil
}

func (idx *HNSWIndex) putVector(ctx context.Context, id types.EntityId, v []float64) error {
	return idx.blobs.Put(ctx, blobstore.VectorKey(idx.predicate, id), encodeVector(v), "application/octet-stream")
}

func (idx *HNSWIndex) getVector(ctx context.Context, id types.EntityId) ([]float64, error) {
	data, err := idx.blobs.Get(ctx, blobstore.VectorKey(idx.predicate, id))
	if err != nil {
		return nil, err
	}
	return decodeVector(data)
}

type candidate struct {
	id   types.EntityId
	dist float64
}

func minCandidateIndex(c []candidate) int {
	best := 0
	for i := 1; i < len(c); i++ {
		if c[i].dist < c[best].dist {
			best = i
		}
	}
	return best
}

func worstCandidate(c []candidate) candidate {
	worst := c[0]
	for _, x := range c[1:] {
		if x.dist > worst.dist {
			worst = x
		}
	}
	return worst
}

// searchLayer runs beam search at layer starting from entryPoints, keeping
// up to ef results, per the standard HNSW algorithm.
func (idx *HNSWIndex) searchLayer(ctx context.Context, query []float64, entryPoints []types.EntityId, ef, layer int) ([]candidate, error) {
	visited := make(map[types.EntityId]bool)
	var candidates, results []candidate

	seed := func(id types.EntityId) error {
		if visited[id] {
			return nil
		}
		visited[id] = true
		if _, dead := idx.deleted[id]; dead {
			return nil
		}
		v, err := idx.getVector(ctx, id)
		if err != nil {
			return err
		}
		c := candidate{id: id, dist: idx.cfg.Distance(query, v)}
		candidates = append(candidates, c)
		results = append(results, c)
		return nil
	}
	for _, ep := range entryPoints {
		if err := seed(ep); err != nil {
			return nil, err
		}
	}

	for len(candidates) > 0 {
		ci := minCandidateIndex(candidates)
		cur := candidates[ci]
		candidates = append(candidates[:ci], candidates[ci+1:]...)

		if len(results) >= ef && cur.dist > worstCandidate(results).dist {
			break
		}

		node := idx.nodes[cur.id]
		if node == nil || layer >= len(node.neighbors) {
			continue
		}
		for _, nb := range node.neighbors[layer] {
			if visited[nb] {
				continue
			}
			visited[nb] = true
			if _, dead := idx.deleted[nb]; dead {
				continue
			}
			v, err := idx.getVector(ctx, nb)
			if err != nil {
				return nil, err
			}
			d := idx.cfg.Distance(query, v)
			if len(results) < ef {
				candidates = append(candidates, candidate{id: nb, dist: d})
				results = append(results, candidate{id: nb, dist: d})
				continue
			}
			if worst := worstCandidate(results); d < worst.dist {
				candidates = append(candidates, candidate{id: nb, dist: d})
				results = append(results, candidate{id: nb, dist: d})
				sort.Slice(results, func(i, j int) bool { return results[i].dist < results[j].dist })
				results = results[:ef]
			}
		}
	}

	sort.Slice(results, func(i, j int) bool { return results[i].dist < results[j].dist })
	if len(results) > ef {
		results = results[:ef]
	}
	return results, nil
}

func (idx *HNSWIndex) selectNeighbors(candidates []candidate, m int) []types.EntityId {
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].dist < candidates[j].dist })
	if len(candidates) > m {
		candidates = candidates[:m]
	}
	out := make([]types.EntityId, len(candidates))
	for i, c := range candidates {
		out[i] = c.id
	}
	return out
}

func (idx *HNSWIndex) neighborCap(layer int) int {
	if layer == 0 {
		return idx.cfg.M0
	}
	return idx.cfg.M
}

// Insert adds nodeId with vector to the graph, uploading the vector to the
// blob store first insert algorithm.
func (idx *HNSWIndex) Insert(ctx context.Context, nodeID types.EntityId, vector []float64) error {
	if err := idx.putVector(ctx, nodeID, vector); err != nil {
		return fmt.Errorf("hnsw: uploading vector for %q: %w", nodeID, err)
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()
	delete(idx.deleted, nodeID)

	level := idx.randomLevel()
	node := &hnswNode{id: nodeID, level: level, neighbors: make([][]types.EntityId, level+1)}

	if idx.entryPoint == "" {
		idx.nodes[nodeID] = node
		idx.entryPoint = nodeID
		idx.maxLevel = level
		return nil
	}

	entry := []types.EntityId{idx.entryPoint}
	for l := idx.maxLevel; l > level; l-- {
		found, err := idx.searchLayer(ctx, vector, entry, 1, l)
		if err != nil {
			return err
		}
		if len(found) > 0 {
			entry = []types.EntityId{found[0].id}
		}
	}

	for l := min(level, idx.maxLevel); l >= 0; l-- {
		found, err := idx.searchLayer(ctx, vector, entry, idx.cfg.EfConstruction, l)
		if err != nil {
			return err
		}
		neighbors := idx.selectNeighbors(found, idx.neighborCap(l))
		node.neighbors[l] = neighbors

		for _, nb := range neighbors {
			nbNode := idx.nodes[nb]
			if nbNode == nil || l >= len(nbNode.neighbors) {
				continue
			}
			nbNode.neighbors[l] = append(nbNode.neighbors[l], nodeID)
			if cap := idx.neighborCap(l); len(nbNode.neighbors[l]) > cap {
				nbNode.neighbors[l] = idx.shrinkNeighbors(ctx, nbNode, l, cap)
			}
		}
		entry = neighbors
		if len(entry) == 0 {
			entry = []types.EntityId{idx.entryPoint}
		}
	}

	idx.nodes[nodeID] = node
	if level > idx.maxLevel {
		idx.maxLevel = level
		idx.entryPoint = nodeID
	}
	return nil
}

// shrinkNeighbors re-ranks node's neighbors at layer by distance to node's
// own vector and keeps the cap closest shrink step.
// Errors fetching vectors are treated as "drop this candidate" since shrink
// runs mid-insert and must not fail the whole insert over a stale vector.
func (idx *HNSWIndex) shrinkNeighbors(ctx context.Context, node *hnswNode, layer, cap int) []types.EntityId {
	v, err := idx.getVector(ctx, node.id)
	if err != nil {
		return node.neighbors[layer][:cap]
	}
	var cands []candidate
	for _, nb := range node.neighbors[layer] {
		nv, err := idx.getVector(ctx, nb)
		if err != nil {
			continue
		}
		cands = append(cands, candidate{id: nb, dist: idx.cfg.Distance(v, nv)})
	}
	return idx.selectNeighbors(cands, cap)
}

// Search returns up to k nearest neighbors of query. ef defaults to k when
// 0 or smaller than k.
func (idx *HNSWIndex) Search(ctx context.Context, query []float64, k, ef int) ([]SearchResult, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if idx.entryPoint == "" {
		return nil, nil
	}
	if ef < k {
		ef = k
	}

	entry := []types.EntityId{idx.entryPoint}
	for l := idx.maxLevel; l > 0; l-- {
		found, err := idx.searchLayer(ctx, query, entry, 1, l)
		if err != nil {
			return nil, err
		}
		if len(found) > 0 {
			entry = []types.EntityId{found[0].id}
		}
	}

	found, err := idx.searchLayer(ctx, query, entry, ef, 0)
	if err != nil {
		return nil, err
	}
	if len(found) > k {
		found = found[:k]
	}
	out := make([]SearchResult, len(found))
	for i, c := range found {
		out[i] = SearchResult{ID: c.id, Distance: c.dist}
	}
	return out, nil
}

// Delete tombstones nodeID: its back-edges are left in place, but lookups
// filter it out accepted deletion strategy.
func (idx *HNSWIndex) Delete(nodeID types.EntityId) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.deleted[nodeID] = struct{}{}
}

// Stats reports the index's current shape.
func (idx *HNSWIndex) Stats() HNSWStats {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return HNSWStats{
		NodeCount:    len(idx.nodes),
		DeletedCount: len(idx.deleted),
		MaxLevel:     idx.maxLevel,
		EntryPoint:   idx.entryPoint,
	}
}
