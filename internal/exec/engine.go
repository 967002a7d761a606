package exec

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/edgegraph/graphdb/internal/lang"
	"github.com/edgegraph/graphdb/internal/planner"
	"github.com/edgegraph/graphdb/internal/types"
)

// DefaultMaxFanout and DefaultMaxRefsPerSource are the policy knobs named
// a cap on concurrent shard requests per hop and on refs
// explored per source entity. Both bound cost, not correctness.
const (
	DefaultMaxFanout        = 10
	DefaultMaxRefsPerSource = 5
)

// frontierEntity is one live entity carried between plan steps.
type frontierEntity struct {
	ID      types.EntityId
	Triples []types.Triple
}

// EntityResult is one entity in a plan's final output. Triples always
// carries the entity's raw rows; Fields is populated only when the plan
// has an expand step, shaped step 6.
type EntityResult struct {
	ID      types.EntityId
	Triples []types.Triple
	Fields  map[string]any
}

// Engine executes QueryPlans against a fixed set of shard handles.
type Engine struct {
	shards    map[planner.ShardID]*ShardHandle
	numShards int
	maxFanout int
	maxRefs   int
	log       zerolog.Logger
}

// Option configures an Engine at construction time.
type Option func(*Engine)

// WithMaxFanout overrides the concurrent-shard-request cap per hop.
func WithMaxFanout(n int) Option {
	return func(e *Engine) { e.maxFanout = n }
}

// WithMaxRefsPerSource overrides the refs-explored-per-source-entity cap.
func WithMaxRefsPerSource(n int) Option {
	return func(e *Engine) { e.maxRefs = n }
}

// WithLogger attaches a zerolog.Logger; the zero value uses zerolog.Nop().
func WithLogger(l zerolog.Logger) Option {
	return func(e *Engine) { e.log = l }
}

// NewEngine builds an Engine over numShards total shards, using shards for
// whichever of them this process hosts (the rest simply contribute nothing
// to a fan-out, the same tolerance for unassigned shards the coordinator's
// registry shows when a shard has no node yet).
func NewEngine(numShards int, shards map[planner.ShardID]*ShardHandle, opts ...Option) *Engine {
	e := &Engine{
		shards:    shards,
		numShards: numShards,
		maxFanout: DefaultMaxFanout,
		maxRefs:   DefaultMaxRefsPerSource,
		log:       zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute runs plan to completion and returns the final entity set, shaped
// by any expand step. A bloom-negative lookup (or a subject with no live
// triples) yields an empty result, not an error.
func (e *Engine) Execute(ctx context.Context, plan *planner.QueryPlan) ([]EntityResult, error) {
	var frontier []frontierEntity

	for _, step := range plan.Steps {
		var err error
		switch step.Kind {
		case planner.StepLookup:
			frontier, err = e.execLookup(ctx, step)
		case planner.StepTraverse:
			frontier, err = e.execTraverse(ctx, frontier, step.Predicate)
		case planner.StepReverse:
			if frontier == nil && step.Subject != "" {
				// Leading reverse-traversal seed : the source
				// id itself is the only frontier, with no prior lookup.
				frontier = []frontierEntity{{ID: step.Subject}}
			}
			frontier, err = e.execReverse(ctx, frontier, step.Predicate)
		case planner.StepRecurse:
			frontier, err = e.execRecurse(ctx, frontier, step.Predicate, step.MaxDepth)
		case planner.StepFilter:
			frontier, err = e.execFilter(frontier, step.Condition)
		case planner.StepExpand:
			return e.execExpand(ctx, frontier, step.Fields)
		default:
			return nil, fmt.Errorf("exec: unknown step kind %v", step.Kind)
		}
		if err != nil {
			return nil, err
		}
	}

	return toResults(frontier), nil
}

func toResults(frontier []frontierEntity) []EntityResult {
	out := make([]EntityResult, 0, len(frontier))
	for _, f := range frontier {
		out = append(out, EntityResult{ID: f.ID, Triples: f.Triples})
	}
	return out
}

func (e *Engine) execLookup(ctx context.Context, step planner.PlanStep) ([]frontierEntity, error) {
	handle, ok := e.shards[step.Shard]
	if !ok {
		return nil, nil
	}
	if handle.Bloom != nil && !handle.Bloom.Contains(string(step.Subject)) {
		e.log.Debug().Str("subject", string(step.Subject)).Msg("bloom filter excluded lookup")
		return nil, nil
	}
	triples, err := handle.Shard.GetSubject(step.Subject)
	if err != nil {
		return nil, err
	}
	if len(triples) == 0 {
		return nil, nil
	}
	return []frontierEntity{{ID: step.Subject, Triples: triples}}, nil
}

// refsFor extracts up to e.maxRefs referenced ids from entity's triples for
// predicate "5 refs explored per source entity" cap.
func (e *Engine) refsFor(entity frontierEntity, predicate types.Predicate) []types.EntityId {
	var refs []types.EntityId
	for _, t := range entity.Triples {
		if t.Predicate != predicate || t.IsTombstone() {
			continue
		}
		switch t.Object.Kind {
		case types.KindRef:
			refs = append(refs, t.Object.Ref)
		case types.KindRefArray:
			refs = append(refs, t.Object.RefArr...)
		}
		if len(refs) >= e.maxRefs {
			return refs[:e.maxRefs]
		}
	}
	if len(refs) > e.maxRefs {
		refs = refs[:e.maxRefs]
	}
	return refs
}

func (e *Engine) execTraverse(ctx context.Context, frontier []frontierEntity, predicate types.Predicate) ([]frontierEntity, error) {
	seen := make(map[types.EntityId]struct{})
	var toFetch []types.EntityId
	for _, entity := range frontier {
		for _, ref := range e.refsFor(entity, predicate) {
			if _, ok := seen[ref]; ok {
				continue
			}
			seen[ref] = struct{}{}
			toFetch = append(toFetch, ref)
		}
	}
	if len(toFetch) == 0 {
		return nil, nil
	}

	byID, err := e.fetchMultiByShard(ctx, toFetch)
	if err != nil {
		return nil, err
	}
	return buildFrontier(toFetch, byID), nil
}

// execReverse finds subjects whose predicate-value references one of
// frontier's ids step 3.
func (e *Engine) execReverse(ctx context.Context, frontier []frontierEntity, predicate types.Predicate) ([]frontierEntity, error) {
	targets := make(map[types.EntityId]struct{}, len(frontier))
	for _, entity := range frontier {
		targets[entity.ID] = struct{}{}
	}
	if len(targets) == 0 {
		return nil, nil
	}

	rows, err := e.fetchByPredicateAcrossShards(ctx, predicate)
	if err != nil {
		return nil, err
	}

	seen := make(map[types.EntityId]struct{})
	grouped := make(map[types.EntityId][]types.Triple)
	var order []types.EntityId
	for _, row := range rows {
		if !referencesAny(row.triple.Object, targets) {
			continue
		}
		if _, ok := seen[row.subject]; !ok {
			seen[row.subject] = struct{}{}
			order = append(order, row.subject)
		}
		grouped[row.subject] = append(grouped[row.subject], row.triple)
	}
	if len(order) == 0 {
		return nil, nil
	}

	// Reverse traversal only has the one matched triple per subject from
	// the predicate scan; fetch each subject's full row set so later steps
	// (filter, expand) see every predicate, not just the matched one.
	byID, err := e.fetchMultiByShard(ctx, order)
	if err != nil {
		return nil, err
	}
	return buildFrontier(order, byID), nil
}

func referencesAny(v types.TypedValue, targets map[types.EntityId]struct{}) bool {
	switch v.Kind {
	case types.KindRef:
		_, ok := targets[v.Ref]
		return ok
	case types.KindRefArray:
		for _, ref := range v.RefArr {
			if _, ok := targets[ref]; ok {
				return true
			}
		}
	}
	return false
}

// execRecurse performs iterated traversal up to maxDepth hops,
// deduplicating visited ids across the whole recursion
// step 5.
func (e *Engine) execRecurse(ctx context.Context, frontier []frontierEntity, predicate types.Predicate, maxDepth int) ([]frontierEntity, error) {
	visited := make(map[types.EntityId]struct{}, len(frontier))
	for _, entity := range frontier {
		visited[entity.ID] = struct{}{}
	}

	current := frontier
	var collected []frontierEntity
	for depth := 0; depth < maxDepth; depth++ {
		next, err := e.execTraverse(ctx, current, predicate)
		if err != nil {
			return nil, err
		}
		var fresh []frontierEntity
		for _, entity := range next {
			if _, ok := visited[entity.ID]; ok {
				continue
			}
			visited[entity.ID] = struct{}{}
			fresh = append(fresh, entity)
		}
		if len(fresh) == 0 {
			break
		}
		collected = append(collected, fresh...)
		current = fresh
	}
	return collected, nil
}

func (e *Engine) execFilter(frontier []frontierEntity, cond lang.Condition) ([]frontierEntity, error) {
	out := make([]frontierEntity, 0, len(frontier))
	for _, entity := range frontier {
		ok, err := evalCondition(entity.Triples, cond)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, entity)
		}
	}
	return out, nil
}

func buildFrontier(order []types.EntityId, byID map[types.EntityId][]types.Triple) []frontierEntity {
	out := make([]frontierEntity, 0, len(order))
	for _, id := range order {
		triples, ok := byID[id]
		if !ok || len(triples) == 0 {
			continue
		}
		out = append(out, frontierEntity{ID: id, Triples: triples})
	}
	return out
}
