package rpc

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandleCallCreatesAndReturnsEntity(t *testing.T) {
	id := "https://ex.test/user/ivan"
	svc := newTestService(t, []string{id})
	srv := NewHTTPServer(svc, zerolog.Nop())

	body := `{"method": "createEntity", "args": {"entity": {"id": "` + id + `", "name": "Ivan"}}}`
	req := httptest.NewRequest(http.MethodPost, "/rpc/call", strings.NewReader(body))
	rec := httptest.NewRecorder()

	srv.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var decoded struct {
		Result map[string]any `json:"result"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &decoded))
	assert.Equal(t, "Ivan", decoded.Result["name"])
}

func TestHandleCallRejectsNonPOST(t *testing.T) {
	svc := newTestService(t, nil)
	srv := NewHTTPServer(svc, zerolog.Nop())

	req := httptest.NewRequest(http.MethodGet, "/rpc/call", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestHandleCallUnknownMethodReturnsEnvelope(t *testing.T) {
	svc := newTestService(t, nil)
	srv := NewHTTPServer(svc, zerolog.Nop())

	req := httptest.NewRequest(http.MethodPost, "/rpc/call", strings.NewReader(`{"method": "bogus", "args": {}}`))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotImplemented, rec.Code)

	var env HTTPEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	assert.Equal(t, CodeUnknownMethod, env.Error.Code)
}

func TestHandleBatchRunsMultipleSubRequests(t *testing.T) {
	id := "https://ex.test/user/jill"
	svc := newTestService(t, []string{id})
	srv := NewHTTPServer(svc, zerolog.Nop())

	body := `{"id": "f1", "requests": [
		{"id": "r1", "method": "createEntity", "args": {"entity": {"id": "` + id + `", "name": "Jill"}}},
		{"id": "r2", "method": "getEntity", "args": {"id": "` + id + `"}}
	]}`
	req := httptest.NewRequest(http.MethodPost, "/rpc/batch", strings.NewReader(body))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp BatchFrameResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Responses, 2)
	assert.Nil(t, resp.Responses[0].Error)
	assert.Nil(t, resp.Responses[1].Error)
}

func TestHandleBatchRejectsOversizedBody(t *testing.T) {
	svc := newTestService(t, nil)
	srv := &HTTPServer{svc: svc, guard: &Guard{MaxSize: 8, MaxDepth: DefaultMaxDepth, MaxKeys: DefaultMaxKeys}, log: zerolog.Nop()}

	req := httptest.NewRequest(http.MethodPost, "/rpc/batch", strings.NewReader(`{"id": "too-long-for-the-limit"}`))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealthEndpointReturnsOK(t *testing.T) {
	svc := newTestService(t, nil)
	srv := NewHTTPServer(svc, zerolog.Nop())

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}
