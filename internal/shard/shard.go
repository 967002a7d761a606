package shard

import (
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/edgegraph/graphdb/internal/types"
)

// ErrRowParse is the typed error a shard returns for malformed-row decode
// failures. It always names the offending column so the shard never
// surfaces a partial or half-typed value.
type ErrRowParse struct {
	Column string
	Reason string
}

func (e *ErrRowParse) Error() string {
	return fmt.Sprintf("shard: row parse error in column %q: %s", e.Column, e.Reason)
}

// Shard is a single partition of the triple store: a row table plus a
// batched writer that spills to GraphCol chunks. It owns both the read
// path (RowStore) and the write path (BatchedWriter) for every subject
// hashed to it.
type Shard struct {
	ID       string
	Rows     RowStore
	Writer   *BatchedWriter
	log      zerolog.Logger
	nowFunc  func() time.Time
}

// Option configures a Shard at construction time.
type Option func(*Shard)

// WithNowFunc overrides the shard's clock, for deterministic tests.
func WithNowFunc(f func() time.Time) Option {
	return func(s *Shard) { s.nowFunc = f }
}

// WithLogger attaches a zerolog.Logger; the zero value uses
// zerolog.Nop() so shards are silent by default in tests.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Shard) { s.log = l }
}

// New creates a Shard with the given id, row store, and batched writer.
func New(id string, rows RowStore, writer *BatchedWriter, opts ...Option) *Shard {
	s := &Shard{ID: id, Rows: rows, Writer: writer, nowFunc: time.Now, log: zerolog.Nop()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Shard) now() uint64 { return uint64(s.nowFunc().UnixMilli()) }

// Insert validates and writes one triple, synchronously, to the row table.
// It also feeds the triple to the batched writer so it is eventually
// reflected in a chunk + bloom filter + manifest entry.
func (s *Shard) Insert(t types.Triple) error {
	if errs := types.ValidateTriple(t); len(errs) > 0 {
		return fmt.Errorf("shard: invalid triple: %v", errs)
	}
	if err := s.Rows.Put(t); err != nil {
		return err
	}
	if s.Writer != nil {
		return s.Writer.Add(t)
	}
	return nil
}

// InsertBatch validates and writes triples as an atomic batch: either all
// rows persist or none do.
func (s *Shard) InsertBatch(ts []types.Triple) error {
	for _, t := range ts {
		if errs := types.ValidateTriple(t); len(errs) > 0 {
			return fmt.Errorf("shard: invalid triple for %s/%s: %v", t.Subject, t.Predicate, errs)
		}
	}
	if err := s.Rows.PutBatch(ts); err != nil {
		return err
	}
	if s.Writer != nil {
		return s.Writer.AddBatch(ts)
	}
	return nil
}

// Get returns the triple with the maximum timestamp for (subject,
// predicate), or nil if none exists or the latest version is a tombstone.
func (s *Shard) Get(subject types.EntityId, predicate types.Predicate) (*types.Triple, error) {
	t, ok := s.Rows.Latest(subject, predicate)
	if !ok || t.IsTombstone() {
		return nil, nil
	}
	return &t, nil
}

// GetSubject returns every predicate's latest non-tombstone triple for
// subject.
func (s *Shard) GetSubject(subject types.EntityId) ([]types.Triple, error) {
	all := s.Rows.LatestForSubject(subject)
	out := make([]types.Triple, 0, len(all))
	for _, t := range all {
		if !t.IsTombstone() {
			out = append(out, t)
		}
	}
	return out, nil
}

// GetMultiSubjects performs one batched query across subjects, so the
// executor never has to issue an N+1 fan-out per subject .
func (s *Shard) GetMultiSubjects(subjects []types.EntityId) (map[types.EntityId][]types.Triple, error) {
	out := make(map[types.EntityId][]types.Triple, len(subjects))
	for _, subj := range subjects {
		rows, err := s.GetSubject(subj)
		if err != nil {
			return nil, err
		}
		out[subj] = rows
	}
	return out, nil
}

// GetByPredicate returns the latest non-tombstone triple per subject for
// predicate.
func (s *Shard) GetByPredicate(predicate types.Predicate) ([]SubjectTriple, error) {
	all := s.Rows.LatestForPredicate(predicate)
	out := make([]SubjectTriple, 0, len(all))
	for _, t := range all {
		if !t.IsTombstone() {
			out = append(out, SubjectTriple{Subject: t.Subject, Triple: t})
		}
	}
	return out, nil
}

// SubjectTriple pairs a subject with one of its triples; used by
// GetByPredicate's reverse-index-shaped result.
type SubjectTriple struct {
	Subject types.EntityId
	Triple  types.Triple
}

// Update inserts a new triple for (subject, predicate) with a timestamp
// strictly greater than the current latest/§8 property 3.
func (s *Shard) Update(subject types.EntityId, predicate types.Predicate, value types.TypedValue, tx types.TransactionId) error {
	if err := types.ValidateTypedValue(value); err != nil {
		return err
	}
	ts := s.nextTimestamp(subject, predicate)
	return s.Insert(types.Triple{Subject: subject, Predicate: predicate, Object: value, Timestamp: ts, TxID: tx})
}

// Delete inserts a tombstone for (subject, predicate) at a strictly greater
// timestamp than the current latest.
func (s *Shard) Delete(subject types.EntityId, predicate types.Predicate, tx types.TransactionId) error {
	ts := s.nextTimestamp(subject, predicate)
	return s.Insert(types.Triple{Subject: subject, Predicate: predicate, Object: types.Null(), Timestamp: ts, TxID: tx})
}

// DeleteEntity tombstones every predicate currently live for subject.
func (s *Shard) DeleteEntity(subject types.EntityId, tx types.TransactionId) error {
	live, err := s.GetSubject(subject)
	if err != nil {
		return err
	}
	tombstones := make([]types.Triple, 0, len(live))
	for _, t := range live {
		ts := s.nextTimestamp(subject, t.Predicate)
		tombstones = append(tombstones, types.Triple{Subject: subject, Predicate: t.Predicate, Object: types.Null(), Timestamp: ts, TxID: tx})
	}
	return s.InsertBatch(tombstones)
}

// Exists reports whether subject has at least one live (non-tombstone)
// predicate.
func (s *Shard) Exists(subject types.EntityId) (bool, error) {
	live, err := s.GetSubject(subject)
	if err != nil {
		return false, err
	}
	return len(live) > 0, nil
}

func (s *Shard) nextTimestamp(subject types.EntityId, predicate types.Predicate) uint64 {
	var previous uint64
	if t, ok := s.Rows.Latest(subject, predicate); ok {
		previous = t.Timestamp
	}
	return types.NextTimestamp(s.now(), previous)
}

// ErrNotFound is returned by operations that require an existing row.
var ErrNotFound = errors.New("shard: not found")
