package chunk

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/edgegraph/graphdb/internal/types"
)

// Version is the current GraphCol format version written by EncodeChunk.
const Version uint16 = 1

var magicHeader = []byte("GCOL")
var magicTrailer = []byte("GCOLEND")

// trailerSize is the fixed-size footer locator at the very end of a chunk:
// footerOffset (uint64) + footerSize (uint64) + magicTrailer.
var trailerSize = 8 + 8 + len(magicTrailer)

// EntityIndexEntry locates one entity's triples within a chunk's byte
// stream. ByteOffset/ByteLength are absolute offsets into the chunk file, so
// they can be used directly as an HTTP range request against the blob
// store.
type EntityIndexEntry struct {
	EntityID   types.EntityId
	ByteOffset uint64
	ByteLength uint32
}

// ChunkIndex is the decoded footer of a chunk: everything needed to plan
// subsequent entity byte-range fetches without reading the entity data
// section.
type ChunkIndex struct {
	Namespace string
	Version   uint16
	Entities  []EntityIndexEntry
}

// Lookup returns the index entry for id, if present, using binary search
// over the sorted entity index.
func (c *ChunkIndex) Lookup(id types.EntityId) (EntityIndexEntry, bool) {
	i := sort.Search(len(c.Entities), func(i int) bool {
		return c.Entities[i].EntityID >= id
	})
	if i < len(c.Entities) && c.Entities[i].EntityID == id {
		return c.Entities[i], true
	}
	return EntityIndexEntry{}, false
}

// EncodeChunk serializes triples into a GraphCol chunk. Triples are grouped
// by subject and written in subject-sorted order so the resulting footer's
// entity index addresses each subject's triples as one contiguous range.
func EncodeChunk(triples []types.Triple, namespace string) ([]byte, error) {
	groups := make(map[types.EntityId][]types.Triple)
	for _, t := range triples {
		groups[t.Subject] = append(groups[t.Subject], t)
	}
	subjects := make([]types.EntityId, 0, len(groups))
	for s := range groups {
		subjects = append(subjects, s)
	}
	sort.Slice(subjects, func(i, j int) bool { return subjects[i] < subjects[j] })

	dict := newPredicateDict(triples)

	var buf bytes.Buffer
	buf.Write(magicHeader)
	writeUint16(&buf, Version)
	writeUint16(&buf, uint16(len(namespace)))
	buf.WriteString(namespace)
	if err := dict.encode(&buf); err != nil {
		return nil, fmt.Errorf("chunk: encoding predicate dictionary: %w", err)
	}

	entries := make([]EntityIndexEntry, 0, len(subjects))
	for _, subj := range subjects {
		start := buf.Len()
		rows := groups[subj]
		sort.Slice(rows, func(i, j int) bool {
			if rows[i].Timestamp != rows[j].Timestamp {
				return rows[i].Timestamp < rows[j].Timestamp
			}
			return rows[i].Predicate < rows[j].Predicate
		})
		writeString(&buf, string(subj))
		writeUint32(&buf, uint32(len(rows)))
		for _, t := range rows {
			if err := encodeTriple(&buf, t, dict); err != nil {
				return nil, fmt.Errorf("chunk: encoding triple for %s: %w", subj, err)
			}
		}
		entries = append(entries, EntityIndexEntry{
			EntityID:   subj,
			ByteOffset: uint64(start),
			ByteLength: uint32(buf.Len() - start),
		})
	}

	footerOffset := uint64(buf.Len())
	writeUint32(&buf, uint32(len(entries)))
	for _, e := range entries {
		writeUint32(&buf, uint32(len(e.EntityID)))
		buf.WriteString(string(e.EntityID))
		writeUint64(&buf, e.ByteOffset)
		writeUint32(&buf, e.ByteLength)
	}
	footerSize := uint64(buf.Len()) - footerOffset

	writeUint64(&buf, footerOffset)
	writeUint64(&buf, footerSize)
	buf.Write(magicTrailer)

	return buf.Bytes(), nil
}

// ErrMalformedChunk is returned when a chunk's header, footer, or trailer
// fails to parse.
var ErrMalformedChunk = errors.New("chunk: malformed chunk")

// TrailerOffsets reads the fixed-size trailer at the end of data and
// returns the footer's (offset, size), without touching anything else.
// Manifests persist these two numbers so a reader can fetch exactly the
// footer bytes via a range request instead of the whole chunk.
func TrailerOffsets(data []byte) (footerOffset, footerSize uint64, err error) {
	if len(data) < trailerSize {
		return 0, 0, fmt.Errorf("%w: truncated trailer", ErrMalformedChunk)
	}
	tail := data[len(data)-trailerSize:]
	if !bytes.Equal(tail[16:], magicTrailer) {
		return 0, 0, fmt.Errorf("%w: bad trailer magic", ErrMalformedChunk)
	}
	footerOffset = binary.LittleEndian.Uint64(tail[0:8])
	footerSize = binary.LittleEndian.Uint64(tail[8:16])
	return footerOffset, footerSize, nil
}

// DecodeChunkFooter parses the entity index out of the footer bytes located
// at [footerOffset, footerOffset+footerSize) within data, plus the chunk
// header. This is the cheap operation used to plan byte-range fetches: it
// never decodes triple payloads.
func DecodeChunkFooter(data []byte, footerOffset, footerSize uint64) (*ChunkIndex, error) {
	if uint64(len(data)) < footerOffset+footerSize {
		return nil, fmt.Errorf("%w: footer range out of bounds", ErrMalformedChunk)
	}
	ns, version, err := decodeHeader(data)
	if err != nil {
		return nil, err
	}

	r := bytes.NewReader(data[footerOffset : footerOffset+footerSize])
	count, err := readUint32(r)
	if err != nil {
		return nil, fmt.Errorf("%w: footer entity count: %v", ErrMalformedChunk, err)
	}
	entries := make([]EntityIndexEntry, 0, count)
	for i := uint32(0); i < count; i++ {
		idLen, err := readUint32(r)
		if err != nil {
			return nil, fmt.Errorf("%w: entity id length: %v", ErrMalformedChunk, err)
		}
		idBytes := make([]byte, idLen)
		if _, err := r.Read(idBytes); err != nil {
			return nil, fmt.Errorf("%w: entity id bytes: %v", ErrMalformedChunk, err)
		}
		offset, err := readUint64(r)
		if err != nil {
			return nil, fmt.Errorf("%w: byte offset: %v", ErrMalformedChunk, err)
		}
		length, err := readUint32(r)
		if err != nil {
			return nil, fmt.Errorf("%w: byte length: %v", ErrMalformedChunk, err)
		}
		entries = append(entries, EntityIndexEntry{
			EntityID:   types.EntityId(idBytes),
			ByteOffset: offset,
			ByteLength: length,
		})
	}
	return &ChunkIndex{Namespace: ns, Version: version, Entities: entries}, nil
}

// ReadEntitySlice decodes the triples stored at data[byteOffset:byteOffset+byteLength].
// The predicate dictionary is always re-read from the chunk header region,
// which callers are expected to have available (typically the first few KB
// of the chunk, fetched once per chunk and cached).
func ReadEntitySlice(data []byte, byteOffset, byteLength uint64) ([]types.Triple, error) {
	if uint64(len(data)) < byteOffset+byteLength {
		return nil, fmt.Errorf("%w: entity range out of bounds", ErrMalformedChunk)
	}
	_, _, headerEnd, err := parseHeader(data)
	if err != nil {
		return nil, err
	}
	dict, _, err := decodePredicateDict(data, headerEnd)
	if err != nil {
		return nil, err
	}

	r := bytes.NewReader(data[byteOffset : byteOffset+byteLength])
	subject, err := readString(r)
	if err != nil {
		return nil, fmt.Errorf("%w: entity subject: %v", ErrMalformedChunk, err)
	}
	count, err := readUint32(r)
	if err != nil {
		return nil, fmt.Errorf("%w: entity triple count: %v", ErrMalformedChunk, err)
	}

	triples := make([]types.Triple, 0, count)
	for i := uint32(0); i < count; i++ {
		t, err := decodeTriple(r, dict)
		if err != nil {
			return nil, fmt.Errorf("%w: triple %d: %v", ErrMalformedChunk, i, err)
		}
		t.Subject = types.EntityId(subject)
		triples = append(triples, t)
	}
	return triples, nil
}

// DecodeHeader exposes the namespace and version recorded in a chunk's
// header, for callers that want to validate a chunk before trusting its
// footer (e.g. namespace mismatch detection).
func DecodeHeader(data []byte) (namespace string, version uint16, err error) {
	return decodeHeader(data)
}

func decodeHeader(data []byte) (string, uint16, error) {
	ns, version, _, err := parseHeader(data)
	return ns, version, err
}

func parseHeader(data []byte) (namespace string, version uint16, headerEnd int, err error) {
	if len(data) < 8 || !bytes.Equal(data[0:4], magicHeader) {
		return "", 0, 0, fmt.Errorf("%w: bad header magic", ErrMalformedChunk)
	}
	version = binary.LittleEndian.Uint16(data[4:6])
	nsLen := binary.LittleEndian.Uint16(data[6:8])
	if len(data) < 8+int(nsLen) {
		return "", 0, 0, fmt.Errorf("%w: truncated namespace", ErrMalformedChunk)
	}
	namespace = string(data[8 : 8+int(nsLen)])
	return namespace, version, 8 + int(nsLen), nil
}

// predicateDict is the chunk-wide dictionary of predicate names. Predicates
// repeat far more than they vary within a chunk, so storing each triple's
// predicate as a dictionary index instead of an inline string is the
// chunk's one genuinely "columnar" space saving.
type predicateDict struct {
	names []types.Predicate
	index map[types.Predicate]uint32
}

func newPredicateDict(triples []types.Triple) *predicateDict {
	seen := make(map[types.Predicate]struct{})
	var names []types.Predicate
	for _, t := range triples {
		if _, ok := seen[t.Predicate]; !ok {
			seen[t.Predicate] = struct{}{}
			names = append(names, t.Predicate)
		}
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })
	idx := make(map[types.Predicate]uint32, len(names))
	for i, n := range names {
		idx[n] = uint32(i)
	}
	return &predicateDict{names: names, index: idx}
}

func (d *predicateDict) encode(buf *bytes.Buffer) error {
	writeUint32(buf, uint32(len(d.names)))
	for _, n := range d.names {
		writeUint32(buf, uint32(len(n)))
		buf.WriteString(string(n))
	}
	return nil
}

func decodePredicateDict(data []byte, offset int) (*predicateDict, int, error) {
	r := bytes.NewReader(data[offset:])
	count, err := readUint32(r)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: predicate dict count: %v", ErrMalformedChunk, err)
	}
	names := make([]types.Predicate, 0, count)
	idx := make(map[types.Predicate]uint32, count)
	for i := uint32(0); i < count; i++ {
		nameLen, err := readUint32(r)
		if err != nil {
			return nil, 0, fmt.Errorf("%w: predicate name length: %v", ErrMalformedChunk, err)
		}
		nameBytes := make([]byte, nameLen)
		if _, err := r.Read(nameBytes); err != nil {
			return nil, 0, fmt.Errorf("%w: predicate name bytes: %v", ErrMalformedChunk, err)
		}
		p := types.Predicate(nameBytes)
		names = append(names, p)
		idx[p] = i
	}
	consumed := len(data[offset:]) - r.Len()
	return &predicateDict{names: names, index: idx}, offset + consumed, nil
}

func encodeTriple(buf *bytes.Buffer, t types.Triple, dict *predicateDict) error {
	predIdx, ok := dict.index[t.Predicate]
	if !ok {
		return fmt.Errorf("predicate %q missing from dictionary", t.Predicate)
	}
	writeUint32(buf, predIdx)
	buf.WriteByte(byte(t.Object.Kind))
	if err := encodePayload(buf, t.Object); err != nil {
		return err
	}
	writeUint64(buf, t.Timestamp)
	txid := string(t.TxID)
	if len(txid) != 26 {
		return fmt.Errorf("transaction id %q is not 26 characters", txid)
	}
	buf.WriteString(txid)
	return nil
}

func decodeTriple(r *bytes.Reader, dict *predicateDict) (types.Triple, error) {
	predIdx, err := readUint32(r)
	if err != nil {
		return types.Triple{}, err
	}
	if int(predIdx) >= len(dict.names) {
		return types.Triple{}, fmt.Errorf("predicate index %d out of range", predIdx)
	}
	kindByte, err := r.ReadByte()
	if err != nil {
		return types.Triple{}, err
	}
	obj, err := decodePayload(r, types.Kind(kindByte))
	if err != nil {
		return types.Triple{}, err
	}
	ts, err := readUint64(r)
	if err != nil {
		return types.Triple{}, err
	}
	txidBytes := make([]byte, 26)
	if _, err := r.Read(txidBytes); err != nil {
		return types.Triple{}, err
	}
	return types.Triple{
		Predicate: dict.names[predIdx],
		Object:    obj,
		Timestamp: ts,
		TxID:      types.TransactionId(txidBytes),
	}, nil
}

func encodePayload(buf *bytes.Buffer, v types.TypedValue) error {
	switch v.Kind {
	case types.KindNull:
		return nil
	case types.KindBool:
		if v.Bool {
			buf.WriteByte(1)
		} else {
			buf.WriteByte(0)
		}
		return nil
	case types.KindInt32, types.KindInt64, types.KindDate:
		writeUint64(buf, uint64(v.Int))
		return nil
	case types.KindTimestamp:
		writeUint64(buf, v.Ts)
		return nil
	case types.KindFloat64:
		writeUint64(buf, mathFloat64bits(v.Float))
		return nil
	case types.KindString:
		writeString(buf, v.Str)
		return nil
	case types.KindBinary:
		writeUint32(buf, uint32(len(v.Bin)))
		buf.Write(v.Bin)
		return nil
	case types.KindDuration:
		writeString(buf, v.Duration)
		return nil
	case types.KindRef:
		writeString(buf, string(v.Ref))
		return nil
	case types.KindRefArray:
		writeUint32(buf, uint32(len(v.RefArr)))
		for _, r := range v.RefArr {
			writeString(buf, string(r))
		}
		return nil
	case types.KindJSON:
		b, err := json.Marshal(v.JSON)
		if err != nil {
			return fmt.Errorf("encoding JSON payload: %w", err)
		}
		writeUint32(buf, uint32(len(b)))
		buf.Write(b)
		return nil
	case types.KindGeoPoint:
		writeUint64(buf, mathFloat64bits(v.Geo.Lat))
		writeUint64(buf, mathFloat64bits(v.Geo.Lng))
		return nil
	case types.KindGeoPolygon:
		writeUint32(buf, uint32(len(v.Polygon.Points)))
		for _, p := range v.Polygon.Points {
			writeUint64(buf, mathFloat64bits(p.Lat))
			writeUint64(buf, mathFloat64bits(p.Lng))
		}
		return nil
	case types.KindGeoLineString:
		writeUint32(buf, uint32(len(v.Line.Points)))
		for _, p := range v.Line.Points {
			writeUint64(buf, mathFloat64bits(p.Lat))
			writeUint64(buf, mathFloat64bits(p.Lng))
		}
		return nil
	case types.KindURL:
		writeString(buf, v.URL)
		return nil
	case types.KindVector:
		writeUint32(buf, uint32(len(v.Vector)))
		for _, f := range v.Vector {
			writeUint64(buf, mathFloat64bits(f))
		}
		return nil
	default:
		return fmt.Errorf("unknown kind %v", v.Kind)
	}
}

func decodePayload(r *bytes.Reader, kind types.Kind) (types.TypedValue, error) {
	v := types.TypedValue{Kind: kind}
	switch kind {
	case types.KindNull:
		return v, nil
	case types.KindBool:
		b, err := r.ReadByte()
		if err != nil {
			return v, err
		}
		v.Bool = b != 0
		return v, nil
	case types.KindInt32, types.KindInt64, types.KindDate:
		n, err := readUint64(r)
		if err != nil {
			return v, err
		}
		v.Int = int64(n)
		return v, nil
	case types.KindTimestamp:
		n, err := readUint64(r)
		if err != nil {
			return v, err
		}
		v.Ts = n
		return v, nil
	case types.KindFloat64:
		n, err := readUint64(r)
		if err != nil {
			return v, err
		}
		v.Float = mathFloat64frombits(n)
		return v, nil
	case types.KindString:
		s, err := readString(r)
		if err != nil {
			return v, err
		}
		v.Str = s
		return v, nil
	case types.KindBinary:
		n, err := readUint32(r)
		if err != nil {
			return v, err
		}
		b := make([]byte, n)
		if _, err := r.Read(b); err != nil {
			return v, err
		}
		v.Bin = b
		return v, nil
	case types.KindDuration:
		s, err := readString(r)
		if err != nil {
			return v, err
		}
		v.Duration = s
		return v, nil
	case types.KindRef:
		s, err := readString(r)
		if err != nil {
			return v, err
		}
		v.Ref = types.EntityId(s)
		return v, nil
	case types.KindRefArray:
		n, err := readUint32(r)
		if err != nil {
			return v, err
		}
		refs := make([]types.EntityId, n)
		for i := range refs {
			s, err := readString(r)
			if err != nil {
				return v, err
			}
			refs[i] = types.EntityId(s)
		}
		v.RefArr = refs
		return v, nil
	case types.KindJSON:
		n, err := readUint32(r)
		if err != nil {
			return v, err
		}
		b := make([]byte, n)
		if _, err := r.Read(b); err != nil {
			return v, err
		}
		var parsed any
		if err := json.Unmarshal(b, &parsed); err != nil {
			return v, err
		}
		v.JSON = parsed
		return v, nil
	case types.KindGeoPoint:
		lat, err := readUint64(r)
		if err != nil {
			return v, err
		}
		lng, err := readUint64(r)
		if err != nil {
			return v, err
		}
		v.Geo = types.GeoPoint{Lat: mathFloat64frombits(lat), Lng: mathFloat64frombits(lng)}
		return v, nil
	case types.KindGeoPolygon:
		pts, err := readGeoPoints(r)
		if err != nil {
			return v, err
		}
		v.Polygon = types.GeoPolygon{Points: pts}
		return v, nil
	case types.KindGeoLineString:
		pts, err := readGeoPoints(r)
		if err != nil {
			return v, err
		}
		v.Line = types.GeoLineString{Points: pts}
		return v, nil
	case types.KindURL:
		s, err := readString(r)
		if err != nil {
			return v, err
		}
		v.URL = s
		return v, nil
	case types.KindVector:
		n, err := readUint32(r)
		if err != nil {
			return v, err
		}
		vec := make([]float64, n)
		for i := range vec {
			bits, err := readUint64(r)
			if err != nil {
				return v, err
			}
			vec[i] = mathFloat64frombits(bits)
		}
		v.Vector = vec
		return v, nil
	default:
		return v, fmt.Errorf("unknown kind byte %d", kind)
	}
}

func readGeoPoints(r *bytes.Reader) ([]types.GeoPoint, error) {
	n, err := readUint32(r)
	if err != nil {
		return nil, err
	}
	pts := make([]types.GeoPoint, n)
	for i := range pts {
		lat, err := readUint64(r)
		if err != nil {
			return nil, err
		}
		lng, err := readUint64(r)
		if err != nil {
			return nil, err
		}
		pts[i] = types.GeoPoint{Lat: mathFloat64frombits(lat), Lng: mathFloat64frombits(lng)}
	}
	return pts, nil
}
