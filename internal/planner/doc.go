// Package planner turns a parsed query (internal/lang) into a QueryPlan: an
// ordered list of steps, the shard set those steps touch, an additive cost
// estimate, and a cache key. Shard assignment is hash-then-modulo
// (ShardForSubject: FNV-1a-32 of the subject mod numShards), the same function
// internal/coordinator's shard registry calls to place subjects; plans are
// kept in an LRU cache keyed by the query's cache key.
package planner
