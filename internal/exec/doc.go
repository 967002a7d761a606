// Package exec runs a planner.QueryPlan: it walks the plan's steps over
// shard handles, fanning out bounded-concurrency requests per hop via
// golang.org/x/sync/errgroup with a semaphore capping concurrency, gating every lookup through the shard's bloom filter
// before touching the row table, and deduplicating visited entities across
// shards for cyclic graphs.
package exec
