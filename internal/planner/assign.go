package planner

import (
	"hash/fnv"

	"github.com/edgegraph/graphdb/internal/types"
)

// ShardForSubject deterministically assigns subject to one of numShards
// shards via FNV-1a hash-then-modulo. This is the one subject-to-shard
// function in the codebase; ShardRegistry.ShardForSubject delegates here
// so the coordinator's routing table and the execution engine's scatter
// sets always agree on where a subject lives. Pure function of its
// inputs: identical subject and numShards always produce the same shard,
// across processes.
func ShardForSubject(subject types.EntityId, numShards int) ShardID {
	if numShards <= 0 {
		return 0
	}
	h := fnv.New32a()
	h.Write([]byte(subject))
	return ShardID(int(h.Sum32()) % numShards)
}

// dedupeShards returns shards with duplicates removed, preserving first
// occurrence order so plan.shards is stable for identical input.
func dedupeShards(shards []ShardID) []ShardID {
	seen := make(map[ShardID]struct{}, len(shards))
	out := make([]ShardID, 0, len(shards))
	for _, s := range shards {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
