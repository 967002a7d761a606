package index

import (
	"math"
	"sort"
	"sync"

	"github.com/edgegraph/graphdb/internal/types"
)

// GeoBBox is an inclusive lat/lng bounding box.
type GeoBBox struct {
	MinLat, MinLng, MaxLat, MaxLng float64
}

// Contains reports whether p falls within b.
func (b GeoBBox) Contains(p types.GeoPoint) bool {
	return p.Lat >= b.MinLat && p.Lat <= b.MaxLat && p.Lng >= b.MinLng && p.Lng <= b.MaxLng
}

// GeoHit is one ranked result from NearestK.
type GeoHit struct {
	Subject    types.EntityId
	Point      types.GeoPoint
	DistanceKm float64
}

// GeoIndex is a point index per predicate: it stores one GeoPoint per
// subject and supports point-in-bbox and nearest-k queries. Polygon and
// linestring geometry is not stored.
type GeoIndex struct {
	mu     sync.RWMutex
	points map[types.Predicate]map[types.EntityId]types.GeoPoint
}

// NewGeoIndex returns an empty geo index.
func NewGeoIndex() *GeoIndex {
	return &GeoIndex{points: make(map[types.Predicate]map[types.EntityId]types.GeoPoint)}
}

// IndexPoint records subject's point location under predicate.
func (g *GeoIndex) IndexPoint(subject types.EntityId, predicate types.Predicate, point types.GeoPoint) {
	g.mu.Lock()
	defer g.mu.Unlock()
	tbl, ok := g.points[predicate]
	if !ok {
		tbl = make(map[types.EntityId]types.GeoPoint)
		g.points[predicate] = tbl
	}
	tbl[subject] = point
}

// DeletePoint removes subject's entry under predicate, if any.
func (g *GeoIndex) DeletePoint(subject types.EntityId, predicate types.Predicate) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if tbl, ok := g.points[predicate]; ok {
		delete(tbl, subject)
	}
}

// BBoxQuery returns every subject under predicate whose point falls in box.
func (g *GeoIndex) BBoxQuery(predicate types.Predicate, box GeoBBox) []types.EntityId {
	g.mu.RLock()
	defer g.mu.RUnlock()
	tbl := g.points[predicate]
	out := make([]types.EntityId, 0, len(tbl))
	for subj, p := range tbl {
		if box.Contains(p) {
			out = append(out, subj)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// haversineKm computes great-circle distance in kilometers between two
// lat/lng points.
func haversineKm(a, b types.GeoPoint) float64 {
	const earthRadiusKm = 6371.0
	lat1, lat2 := a.Lat*math.Pi/180, b.Lat*math.Pi/180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLng := (b.Lng - a.Lng) * math.Pi / 180
	h := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * earthRadiusKm * math.Asin(math.Min(1, math.Sqrt(h)))
}

// NearestK returns the k closest indexed points to origin under predicate.
func (g *GeoIndex) NearestK(predicate types.Predicate, origin types.GeoPoint, k int) []GeoHit {
	g.mu.RLock()
	defer g.mu.RUnlock()
	tbl := g.points[predicate]
	hits := make([]GeoHit, 0, len(tbl))
	for subj, p := range tbl {
		hits = append(hits, GeoHit{Subject: subj, Point: p, DistanceKm: haversineKm(origin, p)})
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i].DistanceKm < hits[j].DistanceKm })
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits
}
