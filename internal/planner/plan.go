package planner

import (
	"github.com/edgegraph/graphdb/internal/lang"
	"github.com/edgegraph/graphdb/internal/types"
)

// ShardID identifies one shard in the cluster's fixed shard space.
type ShardID int

// StepKind enumerates the plan step kinds named in
type StepKind int

const (
	StepLookup StepKind = iota
	StepTraverse
	StepReverse
	StepFilter
	StepRecurse
	StepExpand
)

func (k StepKind) String() string {
	switch k {
	case StepLookup:
		return "lookup"
	case StepTraverse:
		return "traverse"
	case StepReverse:
		return "reverse"
	case StepFilter:
		return "filter"
	case StepRecurse:
		return "recurse"
	case StepExpand:
		return "expand"
	default:
		return "unknown"
	}
}

// PlanStep is one element of a QueryPlan's ordered step list. Only the
// fields relevant to Kind are populated; the rest are zero. Subject is also
// populated on a leading StepReverse (a reverse-traversal seed), since
// that step has no preceding lookup to supply its starting entity.
type PlanStep struct {
	Kind      StepKind
	Subject   types.EntityId // lookup, or a leading reverse-traversal seed
	Predicate types.Predicate
	Shard     ShardID
	Condition lang.Condition // filter
	MaxDepth  int            // recurse
	Fields    []lang.Field   // expand
}

// QueryPlan is the planner's output for one parsed query
type QueryPlan struct {
	Steps         []PlanStep
	Shards        []ShardID
	EstimatedCost float64
	CanCache      bool
	CacheKey      string
}
