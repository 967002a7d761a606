package exec

import (
	"github.com/edgegraph/graphdb/internal/bloom"
	"github.com/edgegraph/graphdb/internal/shard"
)

// ShardHandle pairs a shard with the bloom filter the executor consults
// before touching its row table step 1. bloom.Filter is
// not concurrency-safe on its own (see internal/bloom's doc comment); a
// handle is only ever read from after the shard's writer population phase,
// matching how internal/shard's own tests build filters.
type ShardHandle struct {
	Shard *shard.Shard
	Bloom *bloom.Filter
}
