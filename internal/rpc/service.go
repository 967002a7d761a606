package rpc

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/edgegraph/graphdb/internal/exec"
	"github.com/edgegraph/graphdb/internal/lang"
	"github.com/edgegraph/graphdb/internal/planner"
	"github.com/edgegraph/graphdb/internal/shard"
	"github.com/edgegraph/graphdb/internal/types"
)

// Service implements every method named in RPC methods list,
// over a fixed shard set addressed by internal/planner's subject hash.
// It holds no transport-specific state; http.go and websocket.go each wrap
// it behind their own framing.
type Service struct {
	numShards int
	shards    map[planner.ShardID]*shard.Shard
	planner   *planner.Planner
	engine    *exec.Engine
	log       zerolog.Logger
}

// NewService builds a Service over shards (one entry per locally hosted
// shard), sharing one Planner and Engine across every method call.
func NewService(numShards int, shards map[planner.ShardID]*shard.Shard, handles map[planner.ShardID]*exec.ShardHandle, log zerolog.Logger) *Service {
	return &Service{
		numShards: numShards,
		shards:    shards,
		planner:   planner.New(numShards),
		engine:    exec.NewEngine(numShards, handles, exec.WithLogger(log)),
		log:       log,
	}
}

func (s *Service) shardFor(id types.EntityId) (*shard.Shard, error) {
	if len(s.shards) == 0 || s.numShards <= 0 {
		return nil, NewError(CodeInternalError, "no shards registered")
	}
	sid := planner.ShardForSubject(id, s.numShards)
	sh, ok := s.shards[sid]
	if !ok {
		return nil, NewError(CodeInternalError, "shard %v for entity %q is not hosted by this node", sid, id)
	}
	return sh, nil
}

// GetEntity returns an entity's live predicates, or NOT_FOUND.
func (s *Service) GetEntity(ctx context.Context, id string) (map[string]any, error) {
	eid := types.EntityId(id)
	if err := types.ValidateEntityID(eid); err != nil {
		return nil, NewError(CodeValidationError, "%v", err)
	}
	sh, err := s.shardFor(eid)
	if err != nil {
		return nil, err
	}
	triples, err := sh.GetSubject(eid)
	if err != nil {
		return nil, NewError(CodeInternalError, "%v", err)
	}
	if len(triples) == 0 {
		return nil, NewError(CodeNotFound, "entity %q not found", id)
	}
	return entityToJSON(eid, triples), nil
}

// CreateEntity validates and inserts every property of entity (an {"id":
// ..., predicate: value, ...} object) as a triple, all under one
// transaction id.
func (s *Service) CreateEntity(ctx context.Context, entity map[string]any) (map[string]any, error) {
	rawID, ok := entity["id"].(string)
	if !ok || rawID == "" {
		return nil, NewError(CodeMissingParameter, "entity.id is required")
	}
	eid := types.EntityId(rawID)
	if err := types.ValidateEntityID(eid); err != nil {
		return nil, NewError(CodeValidationError, "%v", err)
	}
	sh, err := s.shardFor(eid)
	if err != nil {
		return nil, err
	}

	tx, err := types.NewTransactionID()
	if err != nil {
		return nil, NewError(CodeInternalError, "%v", err)
	}

	for key, raw := range entity {
		if key == "id" {
			continue
		}
		predicate := types.Predicate(key)
		if err := types.ValidatePredicate(predicate); err != nil {
			return nil, NewError(CodeValidationError, "%v", err)
		}
		val, err := valueFromJSON(raw)
		if err != nil {
			return nil, NewError(CodeValidationError, "%v", err)
		}
		if err := types.ValidateTypedValue(val); err != nil {
			return nil, NewError(CodeValidationError, "%v", err)
		}
		if err := sh.Update(eid, predicate, val, tx); err != nil {
			return nil, NewError(CodeInternalError, "%v", err)
		}
	}

	s.planner.InvalidateCache()
	return s.GetEntity(ctx, rawID)
}

// UpdateEntity writes a new triple for each key in props, one transaction
// id shared across the whole call.
func (s *Service) UpdateEntity(ctx context.Context, id string, props map[string]any) (map[string]any, error) {
	eid := types.EntityId(id)
	if err := types.ValidateEntityID(eid); err != nil {
		return nil, NewError(CodeValidationError, "%v", err)
	}
	sh, err := s.shardFor(eid)
	if err != nil {
		return nil, err
	}
	exists, err := sh.Exists(eid)
	if err != nil {
		return nil, NewError(CodeInternalError, "%v", err)
	}
	if !exists {
		return nil, NewError(CodeNotFound, "entity %q not found", id)
	}

	tx, err := types.NewTransactionID()
	if err != nil {
		return nil, NewError(CodeInternalError, "%v", err)
	}

	for key, raw := range props {
		predicate := types.Predicate(key)
		if err := types.ValidatePredicate(predicate); err != nil {
			return nil, NewError(CodeValidationError, "%v", err)
		}
		val, err := valueFromJSON(raw)
		if err != nil {
			return nil, NewError(CodeValidationError, "%v", err)
		}
		if err := sh.Update(eid, predicate, val, tx); err != nil {
			return nil, NewError(CodeInternalError, "%v", err)
		}
	}

	return s.GetEntity(ctx, id)
}

// DeleteEntity tombstones every live predicate of id.
func (s *Service) DeleteEntity(ctx context.Context, id string) error {
	eid := types.EntityId(id)
	if err := types.ValidateEntityID(eid); err != nil {
		return NewError(CodeValidationError, "%v", err)
	}
	sh, err := s.shardFor(eid)
	if err != nil {
		return err
	}
	tx, err := types.NewTransactionID()
	if err != nil {
		return NewError(CodeInternalError, "%v", err)
	}
	if err := sh.DeleteEntity(eid, tx); err != nil {
		return NewError(CodeInternalError, "%v", err)
	}
	return nil
}

// TraverseOptions carries the optional depth/expansion knobs
// traverse/reverseTraverse/pathTraverse accept
type TraverseOptions struct {
	Depth  int
	Fields []string
}

// Traverse runs a forward traversal from startId along predicate. A Depth
// greater than 1 switches to the bounded-recursion step so the call walks
// multiple hops instead of one.
func (s *Service) Traverse(ctx context.Context, startID, predicate string, opts TraverseOptions) ([]map[string]any, error) {
	q := &lang.Query{
		Source: lang.Source{Type: "entity", Kind: lang.SourceIDString, Value: startID},
		Steps:  []lang.Step{traverseStep(predicate, opts.Depth)},
	}
	applyFields(q, opts.Fields)
	return s.runPlan(ctx, q)
}

// traverseStep builds a single-hop TraverseStep, or a RecurseStep when
// depth asks for more than one hop.
func traverseStep(predicate string, depth int) lang.Step {
	if depth > 1 {
		return lang.RecurseStep{Predicate: predicate, DepthBound: depth}
	}
	return lang.TraverseStep{Predicate: predicate}
}

// ReverseTraverse runs an inverse traversal seeded at targetId.
func (s *Service) ReverseTraverse(ctx context.Context, targetID, predicate string, opts TraverseOptions) ([]map[string]any, error) {
	q := &lang.Query{
		Source: lang.Source{Type: "entity", Kind: lang.SourceIDString, Value: targetID},
		Steps:  []lang.Step{lang.ReverseTraverseStep{Predicate: predicate}},
	}
	applyFields(q, opts.Fields)
	return s.runPlan(ctx, q)
}

// PathTraverse chains a sequence of forward traversals, one per entry in
// path `pathTraverse(startId, path[], options)`.
func (s *Service) PathTraverse(ctx context.Context, startID string, path []string, opts TraverseOptions) ([]map[string]any, error) {
	if len(path) == 0 {
		return nil, NewError(CodeMissingParameter, "path must have at least one predicate")
	}
	steps := make([]lang.Step, 0, len(path))
	for _, predicate := range path {
		steps = append(steps, lang.TraverseStep{Predicate: predicate})
	}
	q := &lang.Query{
		Source: lang.Source{Type: "entity", Kind: lang.SourceIDString, Value: startID},
		Steps:  steps,
	}
	applyFields(q, opts.Fields)
	return s.runPlan(ctx, q)
}

func applyFields(q *lang.Query, fields []string) {
	if len(fields) == 0 {
		return
	}
	flds := make([]lang.Field, 0, len(fields))
	for _, f := range fields {
		flds = append(flds, lang.Field{Name: f})
	}
	q.Expansion = &lang.Expansion{Fields: flds}
}

func (s *Service) runPlan(ctx context.Context, q *lang.Query) ([]map[string]any, error) {
	plan, err := s.planner.Plan(q)
	if err != nil {
		return nil, NewError(CodeQueryFailed, "%v", err)
	}
	results, err := s.engine.Execute(ctx, plan)
	if err != nil {
		return nil, NewError(CodeQueryFailed, "%v", err)
	}
	return resultsToJSON(results), nil
}

func resultsToJSON(results []exec.EntityResult) []map[string]any {
	out := make([]map[string]any, 0, len(results))
	for _, r := range results {
		if r.Fields != nil {
			obj := map[string]any{"id": string(r.ID)}
			for k, v := range r.Fields {
				obj[k] = v
			}
			out = append(out, obj)
			continue
		}
		out = append(out, entityToJSON(r.ID, r.Triples))
	}
	return out
}

// Query parses and runs an arbitrary graph-query-language string.
func (s *Service) Query(ctx context.Context, queryString string) ([]map[string]any, error) {
	q, err := lang.Parse(queryString)
	if err != nil {
		return nil, NewError(CodeParseError, "%v", err)
	}
	return s.runPlan(ctx, q)
}

// BatchGet fetches every id in ids, continuing past individual misses so
// one bad id doesn't fail the whole call ( per-operation
// success/failure policy).
func (s *Service) BatchGet(ctx context.Context, ids []string) BatchResult {
	var res BatchResult
	for _, id := range ids {
		entity, err := s.GetEntity(ctx, id)
		if err != nil {
			res.ErrorCount++
			res.Errors = append(res.Errors, batchError(id, err))
			continue
		}
		res.SuccessCount++
		res.Results = append(res.Results, entity)
	}
	return res
}

// BatchCreate creates every entity in entities, per-operation.
func (s *Service) BatchCreate(ctx context.Context, entities []map[string]any) BatchResult {
	var res BatchResult
	for _, entity := range entities {
		created, err := s.CreateEntity(ctx, entity)
		if err != nil {
			res.ErrorCount++
			id, _ := entity["id"].(string)
			res.Errors = append(res.Errors, batchError(id, err))
			continue
		}
		res.SuccessCount++
		res.Results = append(res.Results, created)
	}
	return res
}

// Operation is one element of a batchExecute call
type Operation struct {
	Type   string         `json:"type"`
	ID     string         `json:"id,omitempty"`
	Entity map[string]any `json:"entity,omitempty"`
	Props  map[string]any `json:"props,omitempty"`
}

// BatchExecute runs a heterogeneous list of get/create/update/delete
// operations, per-operation success/failure.
func (s *Service) BatchExecute(ctx context.Context, ops []Operation) BatchResult {
	var res BatchResult
	for _, op := range ops {
		result, err := s.execOne(ctx, op)
		if err != nil {
			res.ErrorCount++
			res.Errors = append(res.Errors, batchError(op.ID, err))
			continue
		}
		res.SuccessCount++
		res.Results = append(res.Results, result)
	}
	return res
}

func (s *Service) execOne(ctx context.Context, op Operation) (any, error) {
	switch op.Type {
	case "get":
		return s.GetEntity(ctx, op.ID)
	case "create":
		return s.CreateEntity(ctx, op.Entity)
	case "update":
		return s.UpdateEntity(ctx, op.ID, op.Props)
	case "delete":
		if err := s.DeleteEntity(ctx, op.ID); err != nil {
			return nil, err
		}
		return map[string]any{"id": op.ID, "deleted": true}, nil
	default:
		return nil, NewError(CodeInvalidRequest, "unknown batch operation type %q", op.Type)
	}
}

// BatchResult is the shape names for batch* methods:
// {successCount, errorCount, results, errors}.
type BatchResult struct {
	SuccessCount int              `json:"successCount"`
	ErrorCount   int              `json:"errorCount"`
	Results      []map[string]any `json:"results"`
	Errors       []BatchError     `json:"errors"`
}

// BatchError pairs a failed operation's id with the error it produced.
type BatchError struct {
	ID      string    `json:"id"`
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

func batchError(id string, err error) BatchError {
	rerr := AsError(err)
	return BatchError{ID: id, Code: rerr.Code, Message: rerr.Message}
}
