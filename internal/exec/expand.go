package exec

import (
	"context"

	"github.com/edgegraph/graphdb/internal/lang"
	"github.com/edgegraph/graphdb/internal/types"
)

// execExpand shapes the output tree step 6.
func (e *Engine) execExpand(ctx context.Context, frontier []frontierEntity, fields []lang.Field) ([]EntityResult, error) {
	return e.expandEntities(ctx, frontier, fields)
}

// expandEntities batches the ref fetches needed for one nesting level
// across every entity before recursing, so a wide expansion still issues
// one bounded fan-out per level instead of one request per entity.
func (e *Engine) expandEntities(ctx context.Context, entities []frontierEntity, fields []lang.Field) ([]EntityResult, error) {
	seen := make(map[types.EntityId]struct{})
	var toFetch []types.EntityId
	for _, ent := range entities {
		for _, f := range fields {
			if len(f.Nested) == 0 {
				continue
			}
			val, ok := findValue(ent.Triples, f.Name)
			if !ok {
				continue
			}
			for _, ref := range refsOf(val) {
				if _, ok := seen[ref]; ok {
					continue
				}
				seen[ref] = struct{}{}
				toFetch = append(toFetch, ref)
			}
		}
	}

	var byID map[types.EntityId][]types.Triple
	if len(toFetch) > 0 {
		var err error
		byID, err = e.fetchMultiByShard(ctx, toFetch)
		if err != nil {
			return nil, err
		}
	}

	out := make([]EntityResult, 0, len(entities))
	for _, ent := range entities {
		shaped := make(map[string]any, len(fields))
		for _, f := range fields {
			val, ok := findValue(ent.Triples, f.Name)
			if !ok {
				continue
			}
			if len(f.Nested) == 0 {
				shaped[f.Name] = scalarValue(val)
				continue
			}
			nested, err := e.expandNestedField(ctx, val, f.Nested, byID)
			if err != nil {
				return nil, err
			}
			if nested != nil {
				shaped[f.Name] = nested
			}
		}
		out = append(out, EntityResult{ID: ent.ID, Triples: ent.Triples, Fields: shaped})
	}
	return out, nil
}

func (e *Engine) expandNestedField(ctx context.Context, val types.TypedValue, nested []lang.Field, byID map[types.EntityId][]types.Triple) (any, error) {
	switch val.Kind {
	case types.KindRef:
		triples, ok := byID[val.Ref]
		if !ok {
			return nil, nil
		}
		results, err := e.expandEntities(ctx, []frontierEntity{{ID: val.Ref, Triples: triples}}, nested)
		if err != nil {
			return nil, err
		}
		if len(results) == 0 {
			return nil, nil
		}
		return results[0].Fields, nil
	case types.KindRefArray:
		var entities []frontierEntity
		for _, ref := range val.RefArr {
			if triples, ok := byID[ref]; ok {
				entities = append(entities, frontierEntity{ID: ref, Triples: triples})
			}
		}
		results, err := e.expandEntities(ctx, entities, nested)
		if err != nil {
			return nil, err
		}
		list := make([]map[string]any, 0, len(results))
		for _, r := range results {
			list = append(list, r.Fields)
		}
		return list, nil
	default:
		return nil, nil
	}
}

func refsOf(v types.TypedValue) []types.EntityId {
	switch v.Kind {
	case types.KindRef:
		return []types.EntityId{v.Ref}
	case types.KindRefArray:
		return v.RefArr
	default:
		return nil
	}
}

// scalarValue converts a leaf TypedValue to a plain Go value for shaping
// into an expand result's field map.
func scalarValue(v types.TypedValue) any {
	switch v.Kind {
	case types.KindBool:
		return v.Bool
	case types.KindInt32, types.KindInt64:
		return v.Int
	case types.KindFloat64:
		return v.Float
	case types.KindString:
		return v.Str
	case types.KindBinary:
		return v.Bin
	case types.KindTimestamp:
		return v.Ts
	case types.KindDate:
		return v.Date
	case types.KindDuration:
		return v.Duration
	case types.KindRef:
		return v.Ref
	case types.KindRefArray:
		return v.RefArr
	case types.KindJSON:
		return v.JSON
	case types.KindGeoPoint:
		return v.Geo
	case types.KindGeoPolygon:
		return v.Polygon
	case types.KindGeoLineString:
		return v.Line
	case types.KindURL:
		return v.URL
	case types.KindVector:
		return v.Vector
	default:
		return nil
	}
}
