// Package types defines the typed-value model shared by every other package:
// entity identifiers, predicates, transaction ids, the 18-kind typed-value
// union, and the triple record built from them.
//
// # Overview
//
// The graph store has no separate integer identifier space visible to
// clients. Entities are addressed by an absolute URL (EntityId); the
// relationships between them are triples of (subject, predicate, object)
// plus the bookkeeping needed for MVCC: a timestamp and a transaction id.
//
// This package is the validation boundary. Every other package that accepts
// untrusted input (RPC handlers, the query-language parser, the batched
// writer) routes it through Validate* here before it reaches storage, so
// storage code can assume well-formed values.
package types
