package rpc

import (
	"fmt"

	"github.com/edgegraph/graphdb/internal/types"
)

// refMarker and refArrMarker are the JSON object keys a createEntity/
// updateEntity request body uses to distinguish a REF or REF_ARRAY
// property from an ordinary STRING one, since raw JSON has no native
// entity-reference type: {"$ref": "https://..."} and
// {"$refs": ["https://...", ...]}.
const (
	refMarker    = "$ref"
	refArrMarker = "$refs"
)

// valueFromJSON converts one decoded JSON value into the TypedValue it
// is stored as. It classifies the value from its decoded Go type itself;
// internal/types.InferKind is not called here.
func valueFromJSON(v any) (types.TypedValue, error) {
	switch val := v.(type) {
	case nil:
		return types.Null(), nil
	case bool:
		return types.TypedValue{Kind: types.KindBool, Bool: val}, nil
	case string:
		return types.TypedValue{Kind: types.KindString, Str: val}, nil
	case float64:
		return numberValue(val), nil
	case map[string]any:
		if ref, ok := val[refMarker]; ok {
			id, ok := ref.(string)
			if !ok {
				return types.TypedValue{}, fmt.Errorf("rpc: %s must be a string", refMarker)
			}
			return types.TypedValue{Kind: types.KindRef, Ref: types.EntityId(id)}, nil
		}
		if refs, ok := val[refArrMarker]; ok {
			arr, ok := refs.([]any)
			if !ok {
				return types.TypedValue{}, fmt.Errorf("rpc: %s must be an array", refArrMarker)
			}
			ids := make([]types.EntityId, 0, len(arr))
			for _, item := range arr {
				s, ok := item.(string)
				if !ok {
					return types.TypedValue{}, fmt.Errorf("rpc: %s entries must be strings", refArrMarker)
				}
				ids = append(ids, types.EntityId(s))
			}
			return types.TypedValue{Kind: types.KindRefArray, RefArr: ids}, nil
		}
		return types.TypedValue{Kind: types.KindJSON, JSON: val}, nil
	case []any:
		if vec, ok := floatVector(val); ok {
			return types.TypedValue{Kind: types.KindVector, Vector: vec}, nil
		}
		return types.TypedValue{Kind: types.KindJSON, JSON: val}, nil
	default:
		return types.TypedValue{}, fmt.Errorf("rpc: unsupported property value type %T", v)
	}
}

// numberValue classifies a JSON number as INT64 when it is integral and
// within range, FLOAT64 otherwise; JSON itself draws no such distinction.
func numberValue(f float64) types.TypedValue {
	if f == float64(int64(f)) {
		return types.TypedValue{Kind: types.KindInt64, Int: int64(f)}
	}
	return types.TypedValue{Kind: types.KindFloat64, Float: f}
}

// floatVector reports whether arr is a homogeneous array of JSON numbers,
// the shape a VECTOR property arrives in.
func floatVector(arr []any) ([]float64, bool) {
	if len(arr) == 0 {
		return nil, false
	}
	out := make([]float64, 0, len(arr))
	for _, item := range arr {
		f, ok := item.(float64)
		if !ok {
			return nil, false
		}
		out = append(out, f)
	}
	return out, true
}

// valueToJSON converts a stored TypedValue back into a plain JSON-friendly
// value for getEntity/query responses.
func valueToJSON(v types.TypedValue) any {
	switch v.Kind {
	case types.KindNull:
		return nil
	case types.KindBool:
		return v.Bool
	case types.KindInt32, types.KindInt64:
		return v.Int
	case types.KindTimestamp:
		return v.Ts
	case types.KindDate:
		return v.Date
	case types.KindFloat64:
		return v.Float
	case types.KindString, types.KindURL:
		return v.Str
	case types.KindBinary:
		return v.Bin
	case types.KindDuration:
		return v.Duration
	case types.KindRef:
		return map[string]any{refMarker: string(v.Ref)}
	case types.KindRefArray:
		ids := make([]string, 0, len(v.RefArr))
		for _, id := range v.RefArr {
			ids = append(ids, string(id))
		}
		return map[string]any{refArrMarker: ids}
	case types.KindJSON:
		return v.JSON
	case types.KindGeoPoint:
		return map[string]any{"lat": v.Geo.Lat, "lng": v.Geo.Lng}
	case types.KindGeoPolygon:
		return map[string]any{"points": geoPoints(v.Polygon.Points)}
	case types.KindGeoLineString:
		return map[string]any{"points": geoPoints(v.Line.Points)}
	case types.KindVector:
		return v.Vector
	default:
		return nil
	}
}

func geoPoints(points []types.GeoPoint) []map[string]any {
	out := make([]map[string]any, 0, len(points))
	for _, p := range points {
		out = append(out, map[string]any{"lat": p.Lat, "lng": p.Lng})
	}
	return out
}

// entityToJSON shapes a subject's live triples into the {"id": ..., pred:
// value, ...} object getEntity/batchGet/query return.
func entityToJSON(id types.EntityId, triples []types.Triple) map[string]any {
	out := map[string]any{"id": string(id)}
	for _, t := range triples {
		out[string(t.Predicate)] = valueToJSON(t.Object)
	}
	return out
}
