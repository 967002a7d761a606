package rpc

import (
	"context"
	"time"
)

// SubRequest is one element of a batch frame's request array:
// `{id, method, args}`.
type SubRequest struct {
	ID     string         `json:"id"`
	Method string         `json:"method"`
	Args   map[string]any `json:"args"`
}

// SubResponse answers one SubRequest by id, carrying either Result or
// Error (never both).
type SubResponse struct {
	ID     string `json:"id"`
	Result any    `json:"result,omitempty"`
	Error  *Error `json:"error,omitempty"`
}

// BatchFrame is the outer message: an id plus an ordered array of
// sub-requests
type BatchFrame struct {
	ID       string       `json:"id"`
	Requests []SubRequest `json:"requests"`
}

// BatchFrameResponse answers a BatchFrame with a matching array of
// SubResponses in request order.
type BatchFrameResponse struct {
	ID        string        `json:"id"`
	Responses []SubResponse `json:"responses"`
}

// pendingResultMarker is the args shape a sub-request uses to refer to an
// earlier sub-request's pending result within the same frame: {"$result":
// "<id>"} pipelining requirement ("a client can refer
// to the pending result of one call as an argument to another in the same
// frame").
const pendingResultMarker = "$result"

// methodFunc is one entry in the method table: it decodes args itself (via
// the arg* helpers below) since each method's argument shape differs.
type methodFunc func(ctx context.Context, svc *Service, args map[string]any) (any, error)

// methodTable maps every RPC method name lists to its handler.
var methodTable = map[string]methodFunc{
	"getEntity": func(ctx context.Context, svc *Service, args map[string]any) (any, error) {
		id, err := argString(args, "id")
		if err != nil {
			return nil, err
		}
		return svc.GetEntity(ctx, id)
	},
	"createEntity": func(ctx context.Context, svc *Service, args map[string]any) (any, error) {
		entity, err := argObject(args, "entity")
		if err != nil {
			return nil, err
		}
		return svc.CreateEntity(ctx, entity)
	},
	"updateEntity": func(ctx context.Context, svc *Service, args map[string]any) (any, error) {
		id, err := argString(args, "id")
		if err != nil {
			return nil, err
		}
		props, err := argObject(args, "props")
		if err != nil {
			return nil, err
		}
		return svc.UpdateEntity(ctx, id, props)
	},
	"deleteEntity": func(ctx context.Context, svc *Service, args map[string]any) (any, error) {
		id, err := argString(args, "id")
		if err != nil {
			return nil, err
		}
		if err := svc.DeleteEntity(ctx, id); err != nil {
			return nil, err
		}
		return map[string]any{"id": id, "deleted": true}, nil
	},
	"traverse": func(ctx context.Context, svc *Service, args map[string]any) (any, error) {
		startID, err := argString(args, "startId")
		if err != nil {
			return nil, err
		}
		predicate, err := argString(args, "predicate")
		if err != nil {
			return nil, err
		}
		return svc.Traverse(ctx, startID, predicate, traverseOptionsFromArgs(args))
	},
	"reverseTraverse": func(ctx context.Context, svc *Service, args map[string]any) (any, error) {
		targetID, err := argString(args, "targetId")
		if err != nil {
			return nil, err
		}
		predicate, err := argString(args, "predicate")
		if err != nil {
			return nil, err
		}
		return svc.ReverseTraverse(ctx, targetID, predicate, traverseOptionsFromArgs(args))
	},
	"pathTraverse": func(ctx context.Context, svc *Service, args map[string]any) (any, error) {
		startID, err := argString(args, "startId")
		if err != nil {
			return nil, err
		}
		path, err := argStringSlice(args, "path")
		if err != nil {
			return nil, err
		}
		return svc.PathTraverse(ctx, startID, path, traverseOptionsFromArgs(args))
	},
	"query": func(ctx context.Context, svc *Service, args map[string]any) (any, error) {
		queryString, err := argString(args, "queryString")
		if err != nil {
			return nil, err
		}
		return svc.Query(ctx, queryString)
	},
	"batchGet": func(ctx context.Context, svc *Service, args map[string]any) (any, error) {
		ids, err := argStringSlice(args, "ids")
		if err != nil {
			return nil, err
		}
		return svc.BatchGet(ctx, ids), nil
	},
	"batchCreate": func(ctx context.Context, svc *Service, args map[string]any) (any, error) {
		raw, ok := args["entities"].([]any)
		if !ok {
			return nil, NewError(CodeMissingParameter, "entities must be an array")
		}
		entities := make([]map[string]any, 0, len(raw))
		for _, item := range raw {
			obj, ok := item.(map[string]any)
			if !ok {
				return nil, NewError(CodeInvalidRequest, "entities[] must each be an object")
			}
			entities = append(entities, obj)
		}
		return svc.BatchCreate(ctx, entities), nil
	},
	"batchExecute": func(ctx context.Context, svc *Service, args map[string]any) (any, error) {
		raw, ok := args["operations"].([]any)
		if !ok {
			return nil, NewError(CodeMissingParameter, "operations must be an array")
		}
		ops := make([]Operation, 0, len(raw))
		for _, item := range raw {
			obj, ok := item.(map[string]any)
			if !ok {
				return nil, NewError(CodeInvalidRequest, "operations[] must each be an object")
			}
			op := Operation{}
			op.Type, _ = obj["type"].(string)
			op.ID, _ = obj["id"].(string)
			op.Entity, _ = obj["entity"].(map[string]any)
			op.Props, _ = obj["props"].(map[string]any)
			ops = append(ops, op)
		}
		return svc.BatchExecute(ctx, ops), nil
	},
}

func traverseOptionsFromArgs(args map[string]any) TraverseOptions {
	var opts TraverseOptions
	if depth, ok := args["depth"].(float64); ok {
		opts.Depth = int(depth)
	}
	if fields, err := argStringSlice(args, "fields"); err == nil {
		opts.Fields = fields
	}
	return opts
}

func argString(args map[string]any, key string) (string, error) {
	v, ok := args[key]
	if !ok {
		return "", NewError(CodeMissingParameter, "missing required argument %q", key)
	}
	s, ok := v.(string)
	if !ok {
		return "", NewError(CodeInvalidRequest, "argument %q must be a string", key)
	}
	return s, nil
}

func argObject(args map[string]any, key string) (map[string]any, error) {
	v, ok := args[key]
	if !ok {
		return nil, NewError(CodeMissingParameter, "missing required argument %q", key)
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, NewError(CodeInvalidRequest, "argument %q must be an object", key)
	}
	return obj, nil
}

func argStringSlice(args map[string]any, key string) ([]string, error) {
	v, ok := args[key]
	if !ok {
		return nil, NewError(CodeMissingParameter, "missing required argument %q", key)
	}
	raw, ok := v.([]any)
	if !ok {
		return nil, NewError(CodeInvalidRequest, "argument %q must be an array", key)
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		s, ok := item.(string)
		if !ok {
			return nil, NewError(CodeInvalidRequest, "argument %q must be an array of strings", key)
		}
		out = append(out, s)
	}
	return out, nil
}

// Dispatch looks up method in the method table and runs it against svc,
// recording the named prometheus counters/histogram around the call.
func Dispatch(ctx context.Context, svc *Service, method string, args map[string]any) (any, *Error) {
	fn, ok := methodTable[method]
	if !ok {
		RequestsTotal.WithLabelValues(method, "unknown_method").Inc()
		return nil, NewError(CodeUnknownMethod, "unknown method %q", method)
	}

	start := time.Now()
	result, err := fn(ctx, svc, args)
	RequestDuration.WithLabelValues(method).Observe(time.Since(start).Seconds())

	if err != nil {
		rerr := AsError(err)
		RequestsTotal.WithLabelValues(method, string(rerr.Code)).Inc()
		return nil, rerr
	}
	RequestsTotal.WithLabelValues(method, "ok").Inc()
	return result, nil
}

// ExecuteBatch runs every sub-request in frame in order, resolving
// pipelined {"$result": "<id>"} argument references against earlier
// sub-requests' results within the same frame before dispatch.
func ExecuteBatch(ctx context.Context, svc *Service, frame BatchFrame) BatchFrameResponse {
	results := make(map[string]any, len(frame.Requests))
	responses := make([]SubResponse, 0, len(frame.Requests))

	for _, req := range frame.Requests {
		resolved, err := resolvePipeline(req.Args, results)
		if err != nil {
			responses = append(responses, SubResponse{ID: req.ID, Error: err})
			continue
		}

		result, rerr := Dispatch(ctx, svc, req.Method, resolved)
		if rerr != nil {
			responses = append(responses, SubResponse{ID: req.ID, Error: rerr})
			continue
		}
		results[req.ID] = result
		responses = append(responses, SubResponse{ID: req.ID, Result: result})
	}

	return BatchFrameResponse{ID: frame.ID, Responses: responses}
}

// resolvePipeline walks args, replacing every {"$result": "<id>"} marker
// object with the stored result for that id. A reference to an id with no
// stored result (not yet run, or it failed) is a RPC_ERROR.
func resolvePipeline(args map[string]any, results map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(args))
	for k, v := range args {
		resolved, err := resolveValue(v, results)
		if err != nil {
			return nil, err
		}
		out[k] = resolved
	}
	return out, nil
}

func resolveValue(v any, results map[string]any) (any, error) {
	switch val := v.(type) {
	case map[string]any:
		if ref, ok := val[pendingResultMarker]; ok {
			refID, ok := ref.(string)
			if !ok {
				return nil, NewError(CodeInvalidRequest, "%s must be a string id", pendingResultMarker)
			}
			result, ok := results[refID]
			if !ok {
				return nil, NewError(CodeRPCError, "no result available for pipelined reference %q", refID)
			}
			return result, nil
		}
		out := make(map[string]any, len(val))
		for k, child := range val {
			resolved, err := resolveValue(child, results)
			if err != nil {
				return nil, err
			}
			out[k] = resolved
		}
		return out, nil
	case []any:
		out := make([]any, len(val))
		for i, child := range val {
			resolved, err := resolveValue(child, results)
			if err != nil {
				return nil, err
			}
			out[i] = resolved
		}
		return out, nil
	default:
		return v, nil
	}
}
