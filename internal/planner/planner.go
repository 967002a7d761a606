package planner

import (
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"

	"github.com/edgegraph/graphdb/internal/lang"
	"github.com/edgegraph/graphdb/internal/types"
)

// DefaultPlanCacheSize is the default LRU capacity for cached plans.
const DefaultPlanCacheSize = 1024

// Planner turns parsed queries into QueryPlans, caching by cacheKey. The
// plan cache LRU is shared-mutable state guarded by mu, the same pattern
// internal/manifest.Store uses for its namespace-state cache.
type Planner struct {
	numShards int
	log       zerolog.Logger

	mu    sync.Mutex
	cache *lru.Cache[string, *QueryPlan]
}

// Option configures a Planner at construction time.
type Option func(*Planner)

// WithPlanCacheSize overrides the LRU plan cache's capacity.
func WithPlanCacheSize(n int) Option {
	return func(p *Planner) {
		cache, _ := lru.New[string, *QueryPlan](n)
		p.cache = cache
	}
}

// WithLogger overrides the planner's logger.
func WithLogger(l zerolog.Logger) Option {
	return func(p *Planner) { p.log = l }
}

// New constructs a Planner that assigns shards across numShards shards.
func New(numShards int, opts ...Option) *Planner {
	cache, _ := lru.New[string, *QueryPlan](DefaultPlanCacheSize)
	p := &Planner{
		numShards: numShards,
		log:       zerolog.Nop(),
		cache:     cache,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// InvalidateCache wipes the entire plan cache
// `invalidateCache()`.
func (p *Planner) InvalidateCache() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cache.Purge()
}

// Plan builds a QueryPlan for q, serving from the LRU cache when a plan
// with the same cacheKey was built before.
func (p *Planner) Plan(q *lang.Query) (*QueryPlan, error) {
	key := cacheKey(q)

	p.mu.Lock()
	if cached, ok := p.cache.Get(key); ok {
		p.mu.Unlock()
		return cached, nil
	}
	p.mu.Unlock()

	plan, err := p.build(q, key)
	if err != nil {
		return nil, err
	}

	if plan.CanCache {
		p.mu.Lock()
		p.cache.Add(key, plan)
		p.mu.Unlock()
	}

	p.log.Debug().Str("cacheKey", key).Float64("cost", plan.EstimatedCost).Msg("planned query")
	return plan, nil
}

// build constructs the ordered step list ordering
// invariants: lookup (or reverse seed) first, traverse before the filter
// that applies to it, expand always last, multi-hop predicates in source
// order — which falls out directly from walking q.Steps in order, since the
// parser already enforces that grammar shape.
func (p *Planner) build(q *lang.Query, key string) (*QueryPlan, error) {
	subject := types.EntityId(q.Source.Value)
	lookupShard := ShardForSubject(subject, p.numShards)

	steps := make([]PlanStep, 0, len(q.Steps)+2)
	shards := []ShardID{lookupShard}

	astSteps := q.Steps
	// A query that opens with a reverse traversal (`<-predicate`) has no
	// forward entity to look up first: the source id is only a seed value
	// for the inverse scan. ordering invariant names this
	// alternative explicitly ("first step is lookup, or a reverse-traversal
	// seed"), so such queries skip the lookup step and fold the seed
	// subject directly into the first reverse step instead.
	if len(astSteps) > 0 {
		if rev, ok := astSteps[0].(lang.ReverseTraverseStep); ok {
			steps = append(steps, PlanStep{
				Kind:      StepReverse,
				Subject:   subject,
				Predicate: types.Predicate(rev.Predicate),
				Shard:     lookupShard,
			})
			shards = append(shards, lookupShard)
			astSteps = astSteps[1:]
		} else {
			steps = append(steps, PlanStep{Kind: StepLookup, Subject: subject, Shard: lookupShard})
		}
	} else {
		steps = append(steps, PlanStep{Kind: StepLookup, Subject: subject, Shard: lookupShard})
	}

	frontierShard := lookupShard
	for _, s := range astSteps {
		switch step := s.(type) {
		case lang.TraverseStep:
			steps = append(steps, PlanStep{
				Kind:      StepTraverse,
				Predicate: types.Predicate(step.Predicate),
				Shard:     frontierShard,
			})
			shards = append(shards, frontierShard)
		case lang.ReverseTraverseStep:
			steps = append(steps, PlanStep{
				Kind:      StepReverse,
				Predicate: types.Predicate(step.Predicate),
				Shard:     frontierShard,
			})
			shards = append(shards, frontierShard)
		case lang.RecurseStep:
			depth := step.DepthBound
			if depth > MaxRecursionDepth {
				depth = MaxRecursionDepth
			}
			steps = append(steps, PlanStep{
				Kind:      StepRecurse,
				Predicate: types.Predicate(step.Predicate),
				Shard:     frontierShard,
				MaxDepth:  depth,
			})
			shards = append(shards, frontierShard)
		case lang.FilterStep:
			steps = append(steps, PlanStep{
				Kind:      StepFilter,
				Condition: step.Condition,
			})
		}
	}

	if q.Expansion != nil {
		steps = append(steps, PlanStep{
			Kind:   StepExpand,
			Fields: q.Expansion.Fields,
		})
	}

	return &QueryPlan{
		Steps:         steps,
		Shards:        dedupeShards(shards),
		EstimatedCost: estimateCost(steps),
		CanCache:      true,
		CacheKey:      key,
	}, nil
}
