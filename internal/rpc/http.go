package rpc

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// HTTPServer exposes a Service over a single batch-framed POST endpoint
// plus a metrics endpoint, using an http.ServeMux + http.Error
// handler-registration shape, with each handler decoding through Guard
// before touching the method table.
type HTTPServer struct {
	svc   *Service
	guard *Guard
	log   zerolog.Logger
}

// NewHTTPServer builds an HTTPServer over svc, using
// default JSON guard limits.
func NewHTTPServer(svc *Service, log zerolog.Logger) *HTTPServer {
	return &HTTPServer{svc: svc, guard: NewGuard(), log: log}
}

// Handler builds the http.ServeMux routing every HTTP endpoint this
// transport exposes: one batch-framed RPC endpoint, a single-method
// convenience endpoint, a health check, and a Prometheus /metrics.
func (s *HTTPServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/rpc/batch", s.handleBatch)
	mux.HandleFunc("/rpc/call", s.handleCall)
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.Handle("/metrics", MetricsHandler())
	return mux
}

// handleBatch implements POST /rpc/batch: decode a BatchFrame, run every
// sub-request in order (resolving pipelined references), respond with a
// matching BatchFrameResponse.
func (s *HTTPServer) handleBatch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeHTTPError(w, NewError(CodeMethodNotAllowed, "only POST is supported"))
		return
	}

	var frame BatchFrame
	if err := s.guard.Decode(r.Body, &frame); err != nil {
		writeHTTPError(w, AsError(err))
		return
	}
	if frame.ID == "" {
		frame.ID = uuid.NewString()
	}

	ctx, cancel := context.WithTimeout(r.Context(), defaultRPCTimeout)
	defer cancel()

	resp := ExecuteBatch(ctx, s.svc, frame)
	writeHTTPJSON(w, http.StatusOK, resp)
}

// handleCall implements POST /rpc/call: a single {method, args} request
// answered with {result} or {error}, for callers that don't need batching.
func (s *HTTPServer) handleCall(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeHTTPError(w, NewError(CodeMethodNotAllowed, "only POST is supported"))
		return
	}

	var req SubRequest
	if err := s.guard.Decode(r.Body, &req); err != nil {
		writeHTTPError(w, AsError(err))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), defaultRPCTimeout)
	defer cancel()

	result, rerr := Dispatch(ctx, s.svc, req.Method, req.Args)
	if rerr != nil {
		writeHTTPError(w, rerr)
		return
	}
	writeHTTPJSON(w, http.StatusOK, struct {
		Result any `json:"result"`
	}{Result: result})
}

// defaultRPCTimeout is the implicit per-request timeout names
// ("Every RPC carries an implicit timeout (default 30 s)").
const defaultRPCTimeout = 30 * time.Second

func writeHTTPJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// httpStatusFor maps an ErrorCode to the conventional HTTP status for the
// analogous case (bad JSON -> 400, missing resource -> 404, etc.).
func httpStatusFor(code ErrorCode) int {
	switch code {
	case CodeNotFound:
		return http.StatusNotFound
	case CodeBadRequest, CodeValidationError, CodeParseError, CodeInvalidRequest,
		CodeMissingParameter, CodeMissingAttachment, CodeSizeExceeded, CodeDepthExceeded, CodeKeysExceeded:
		return http.StatusBadRequest
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeForbidden:
		return http.StatusForbidden
	case CodeConflict:
		return http.StatusConflict
	case CodeMethodNotAllowed:
		return http.StatusMethodNotAllowed
	case CodeNotImplemented, CodeUnknownMethod:
		return http.StatusNotImplemented
	case CodeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func writeHTTPError(w http.ResponseWriter, e *Error) {
	writeHTTPJSON(w, httpStatusFor(e.Code), NewHTTPEnvelope(e))
}
