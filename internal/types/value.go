package types

import (
	"errors"
	"fmt"
	"math"
	"regexp"
)

// Kind identifies one of the 18 variants of the typed-value union. Storage
// implementations keep one payload column per Kind plus an obj_type
// discriminator column holding this value, so Kind's numeric encoding is
// part of the on-disk contract and must not be reordered.
type Kind uint8

const (
	KindNull Kind = iota
	KindBool
	KindInt32
	KindInt64
	KindFloat64
	KindString
	KindBinary
	KindTimestamp
	KindDate
	KindDuration
	KindRef
	KindRefArray
	KindJSON
	KindGeoPoint
	KindGeoPolygon
	KindGeoLineString
	KindURL
	KindVector
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "NULL"
	case KindBool:
		return "BOOL"
	case KindInt32:
		return "INT32"
	case KindInt64:
		return "INT64"
	case KindFloat64:
		return "FLOAT64"
	case KindString:
		return "STRING"
	case KindBinary:
		return "BINARY"
	case KindTimestamp:
		return "TIMESTAMP"
	case KindDate:
		return "DATE"
	case KindDuration:
		return "DURATION"
	case KindRef:
		return "REF"
	case KindRefArray:
		return "REF_ARRAY"
	case KindJSON:
		return "JSON"
	case KindGeoPoint:
		return "GEO_POINT"
	case KindGeoPolygon:
		return "GEO_POLYGON"
	case KindGeoLineString:
		return "GEO_LINESTRING"
	case KindURL:
		return "URL"
	case KindVector:
		return "VECTOR"
	default:
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
}

// GeoPoint is a `lat, lng` pair. Both must be finite.
type GeoPoint struct {
	Lat float64
	Lng float64
}

// GeoPolygon is a closed ring of points; storage only, queried via
// bounding-box predicates in the geo index (see internal/index).
type GeoPolygon struct {
	Points []GeoPoint
}

// GeoLineString is an ordered sequence of points; storage only.
type GeoLineString struct {
	Points []GeoPoint
}

// TypedValue is the 18-variant tagged union described by Exactly
// one payload field is meaningful for a given Kind; the others are zero.
// This mirrors the storage boundary's "one obj_* column per kind" layout
// instead of using an interface{} payload, so encode/decode code can switch
// on Kind without type assertions.
type TypedValue struct {
	Str      string
	Bin      []byte
	Duration string
	Ref      EntityId
	RefArr   []EntityId
	JSON     any
	Geo      GeoPoint
	Polygon  GeoPolygon
	Line     GeoLineString
	URL      string
	Vector   []float64
	Int      int64
	Ts       uint64
	Date     int64
	Float    float64
	Kind     Kind
	Bool     bool
}

// Null returns the NULL (tombstone) typed value.
func Null() TypedValue { return TypedValue{Kind: KindNull} }

// IsTombstone reports whether v marks a logical delete of a (subject,
// predicate) pair.
func (v TypedValue) IsTombstone() bool { return v.Kind == KindNull }

var durationPattern = regexp.MustCompile(
	`^P(\d+Y)?(\d+M)?(\d+W)?(\d+D)?(T(\d+H)?(\d+M)?(\d+(\.\d+)?S)?)?$`)

// ErrInvalidValue is returned by ValidateTypedValue.
var ErrInvalidValue = errors.New("types: invalid value")

// ValidateTypedValue reports whether v's payload satisfies its kind-specific
// constraints
func ValidateTypedValue(v TypedValue) error {
	switch v.Kind {
	case KindNull, KindBool, KindString, KindBinary, KindURL:
		return nil
	case KindInt32:
		if v.Int < math.MinInt32 || v.Int > math.MaxInt32 {
			return fmt.Errorf("%w: INT32 %d out of range", ErrInvalidValue, v.Int)
		}
		return nil
	case KindInt64, KindTimestamp, KindDate:
		return nil
	case KindFloat64:
		if math.IsInf(v.Float, 0) {
			return fmt.Errorf("%w: FLOAT64 must be finite (got %v)", ErrInvalidValue, v.Float)
		}
		return nil
	case KindDuration:
		if !durationPattern.MatchString(v.Duration) || v.Duration == "P" || v.Duration == "PT" {
			return fmt.Errorf("%w: DURATION %q is not a valid ISO-8601 duration", ErrInvalidValue, v.Duration)
		}
		return nil
	case KindRef:
		if err := ValidateEntityID(v.Ref); err != nil {
			return fmt.Errorf("%w: REF %v", ErrInvalidValue, err)
		}
		return nil
	case KindRefArray:
		for i, r := range v.RefArr {
			if err := ValidateEntityID(r); err != nil {
				return fmt.Errorf("%w: REF_ARRAY[%d] %v", ErrInvalidValue, i, err)
			}
		}
		return nil
	case KindJSON:
		return nil
	case KindGeoPoint:
		return validateGeoPoint(v.Geo)
	case KindGeoPolygon:
		for _, p := range v.Polygon.Points {
			if err := validateGeoPoint(p); err != nil {
				return err
			}
		}
		return nil
	case KindGeoLineString:
		for _, p := range v.Line.Points {
			if err := validateGeoPoint(p); err != nil {
				return err
			}
		}
		return nil
	case KindVector:
		for i, f := range v.Vector {
			if math.IsInf(f, 0) || math.IsNaN(f) {
				return fmt.Errorf("%w: VECTOR[%d]=%v is not finite", ErrInvalidValue, i, f)
			}
		}
		return nil
	default:
		return fmt.Errorf("%w: unknown kind %v", ErrInvalidValue, v.Kind)
	}
}

func validateGeoPoint(p GeoPoint) error {
	if math.IsNaN(p.Lat) || math.IsInf(p.Lat, 0) || math.IsNaN(p.Lng) || math.IsInf(p.Lng, 0) {
		return fmt.Errorf("%w: GEO_POINT (%v, %v) must be finite", ErrInvalidValue, p.Lat, p.Lng)
	}
	return nil
}

// InferKind maps a host Go value to the TypedValue kind it would be stored
// as. NaN float64 values are classified FLOAT64 here; callers that must
// reject NaN do so explicitly via ValidateTypedValue's FLOAT64 branch (which
// permits NaN) or their own stricter check.
func InferKind(v any) (Kind, bool) {
	switch v.(type) {
	case nil:
		return KindNull, true
	case bool:
		return KindBool, true
	case int32:
		return KindInt32, true
	case int64, int:
		return KindInt64, true
	case float64, float32:
		return KindFloat64, true
	case string:
		return KindString, true
	case []byte:
		return KindBinary, true
	case EntityId:
		return KindRef, true
	case []EntityId:
		return KindRefArray, true
	case GeoPoint:
		return KindGeoPoint, true
	case GeoPolygon:
		return KindGeoPolygon, true
	case GeoLineString:
		return KindGeoLineString, true
	case []float64:
		return KindVector, true
	default:
		return KindNull, false
	}
}
