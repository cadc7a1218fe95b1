package api

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ssargent/cabinetdb/pkg/config"
	"github.com/ssargent/cabinetdb/pkg/engine"
	"github.com/ssargent/cabinetdb/pkg/store"
)

const testKey = "test-key"

type testServer struct {
	db      *store.DB
	handler http.Handler
	reg     *prometheus.Registry
}

// setupTestServer serves an in-memory tree database.
func setupTestServer(t *testing.T) *testServer {
	t.Helper()
	desc, err := config.NewMemoryBuilder(engine.ProtoTree).Build()
	require.NoError(t, err)
	db := store.New(desc)
	require.NoError(t, db.Open())
	t.Cleanup(func() { _ = db.Close() })

	reg := prometheus.NewRegistry()
	server := NewServer(db, ServerConfig{APIKey: testKey, MaxValueSize: 16}, NewMetrics(reg))
	return &testServer{db: db, handler: NewRouter(server, reg, zerolog.Nop()), reg: reg}
}

func (ts *testServer) do(t *testing.T, method, target string, body io.Reader) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, body)
	req.Header.Set("X-API-Key", testKey)
	w := httptest.NewRecorder()
	ts.handler.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var resp struct {
		Success bool   `json:"success"`
		Data    T      `json:"data"`
		Error   string `json:"error"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	require.True(t, resp.Success, resp.Error)
	return resp.Data
}

func TestRouter_KV(t *testing.T) {
	ts := setupTestServer(t)

	w := ts.do(t, http.MethodPut, "/api/v1/kv/greeting", strings.NewReader("hello"))
	require.Equal(t, http.StatusOK, w.Code)

	w = ts.do(t, http.MethodGet, "/api/v1/kv/greeting", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "hello", w.Body.String())
	assert.Equal(t, "application/octet-stream", w.Header().Get("Content-Type"))

	w = ts.do(t, http.MethodPut, "/api/v1/kv/greeting?mode=append", strings.NewReader(" world"))
	require.Equal(t, http.StatusOK, w.Code)
	w = ts.do(t, http.MethodGet, "/api/v1/kv/greeting", nil)
	assert.Equal(t, "hello world", w.Body.String())

	w = ts.do(t, http.MethodDelete, "/api/v1/kv/greeting", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	w = ts.do(t, http.MethodDelete, "/api/v1/kv/greeting", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = ts.do(t, http.MethodGet, "/api/v1/kv/greeting", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRouter_EmptyValueIsStored(t *testing.T) {
	ts := setupTestServer(t)

	w := ts.do(t, http.MethodPut, "/api/v1/kv/empty", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = ts.do(t, http.MethodGet, "/api/v1/kv/empty", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Body.Bytes())
}

func TestRouter_PutModes(t *testing.T) {
	ts := setupTestServer(t)

	tests := []struct {
		name   string
		target string
		body   string
		want   int
	}{
		{"replace missing", "/api/v1/kv/k?mode=replace", "x", http.StatusNotFound},
		{"add new", "/api/v1/kv/k?mode=add", "first", http.StatusOK},
		{"add existing", "/api/v1/kv/k?mode=add", "second", http.StatusConflict},
		{"replace existing", "/api/v1/kv/k?mode=replace", "third", http.StatusOK},
		{"unknown mode", "/api/v1/kv/k?mode=upsert", "x", http.StatusBadRequest},
		{"too large", "/api/v1/kv/k", strings.Repeat("x", 17), http.StatusRequestEntityTooLarge},
	}
	for _, tt := range tests {
		w := ts.do(t, http.MethodPut, tt.target, strings.NewReader(tt.body))
		assert.Equal(t, tt.want, w.Code, tt.name)
	}

	v, err := ts.db.Get([]byte("k"))
	require.NoError(t, err)
	assert.Equal(t, "third", string(v))
}

func TestRouter_Increment(t *testing.T) {
	ts := setupTestServer(t)

	w := ts.do(t, http.MethodPost, "/api/v1/kv/hits/increment", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = ts.do(t, http.MethodPost, "/api/v1/kv/hits/increment", strings.NewReader(`{"delta":5,"create":true}`))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, IncrementResponse{Key: "hits", Value: 5}, decode[IncrementResponse](t, w))

	w = ts.do(t, http.MethodPost, "/api/v1/kv/hits/increment", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, int64(6), decode[IncrementResponse](t, w).Value)

	w = ts.do(t, http.MethodPost, "/api/v1/kv/fresh/increment", strings.NewReader(`{"delta":1,"default":100}`))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, int64(101), decode[IncrementResponse](t, w).Value)

	w = ts.do(t, http.MethodPost, "/api/v1/kv/fresh/increment", strings.NewReader(`{"delta":1,"default":9223372036854775807}`))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = ts.do(t, http.MethodPost, "/api/v1/kv/fresh/increment", strings.NewReader(`{nope`))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	require.NoError(t, ts.db.SetString("text", "abc"))
	w = ts.do(t, http.MethodPost, "/api/v1/kv/text/increment", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestRouter_Keys(t *testing.T) {
	ts := setupTestServer(t)
	for _, k := range []string{"user:1", "user:2", "user:3", "group:1", "kitten", "mitten"} {
		require.NoError(t, ts.db.SetString(k, "v"))
	}

	tests := []struct {
		name   string
		target string
		want   []string
	}{
		{"all", "/api/v1/keys", []string{"group:1", "kitten", "mitten", "user:1", "user:2", "user:3"}},
		{"prefix", "/api/v1/keys?prefix=user:", []string{"user:1", "user:2", "user:3"}},
		{"prefix limit", "/api/v1/keys?prefix=user:&limit=2", []string{"user:1", "user:2"}},
		{"regex", "/api/v1/keys?regex=:1$", []string{"group:1", "user:1"}},
		{"similar", "/api/v1/keys?similar=sitten", []string{"kitten", "mitten"}},
		{"similar distance", "/api/v1/keys?similar=sitten&distance=0", []string{}},
		{"similar limit", "/api/v1/keys?similar=sitten&limit=1", []string{"kitten"}},
		{"regex limit", "/api/v1/keys?regex=^user&limit=1", []string{"user:1"}},
		{"no match", "/api/v1/keys?prefix=nobody", []string{}},
	}
	for _, tt := range tests {
		w := ts.do(t, http.MethodGet, tt.target, nil)
		require.Equal(t, http.StatusOK, w.Code, tt.name)
		assert.Equal(t, tt.want, decode[KeysResponse](t, w).Keys, tt.name)
	}

	for _, bad := range []string{
		"/api/v1/keys?limit=0",
		"/api/v1/keys?limit=ten",
		"/api/v1/keys?prefix=a&regex=b",
		"/api/v1/keys?similar=a&distance=-1",
	} {
		w := ts.do(t, http.MethodGet, bad, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code, bad)
	}

	w := ts.do(t, http.MethodGet, "/api/v1/keys?regex=(unclosed", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestRouter_StatusAndHealth(t *testing.T) {
	ts := setupTestServer(t)
	require.NoError(t, ts.db.SetString("a", "1"))

	w := ts.do(t, http.MethodGet, "/api/v1/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = ts.do(t, http.MethodGet, "/api/v1/status", nil)
	require.Equal(t, http.StatusOK, w.Code)
	st := decode[StatusResponse](t, w)
	assert.Equal(t, int64(1), st.Count)
	assert.Equal(t, engine.ProtoTree.String(), st.Type)
	assert.Equal(t, "utf-8", st.Encoding)
	assert.NotEmpty(t, st.Status)
}

func TestRouter_ClosedDatabase(t *testing.T) {
	ts := setupTestServer(t)
	require.NoError(t, ts.db.Close())

	w := ts.do(t, http.MethodGet, "/api/v1/kv/a", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	w = ts.do(t, http.MethodGet, "/api/v1/status", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestRouter_RequiresAPIKey(t *testing.T) {
	ts := setupTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	w := httptest.NewRecorder()
	ts.handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req = httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w = httptest.NewRecorder()
	ts.handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRouter_Metrics(t *testing.T) {
	ts := setupTestServer(t)

	ts.do(t, http.MethodPut, "/api/v1/kv/a", bytes.NewReader([]byte("1")))
	ts.do(t, http.MethodGet, "/api/v1/keys?regex=(", nil)
	ts.do(t, http.MethodGet, "/api/v1/keys?prefix=a", nil)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	ts.handler.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	body := w.Body.String()
	assert.Contains(t, body, `cabinet_db_operations_total{operation="set",status="success"} 1`)
	assert.Contains(t, body, `cabinet_db_failures_total{category="logical inconsistency",operation="match_regex"} 1`)
	assert.Contains(t, body, `cabinet_http_requests_total{endpoint="/api/v1/keys",method="GET",status_code="200"} 1`)
	assert.Contains(t, body, `cabinet_auth_requests_total{status="success"} 3`)
}

func TestServer_RefreshStats(t *testing.T) {
	ts := setupTestServer(t)
	require.NoError(t, ts.db.SetString("a", "1"))
	require.NoError(t, ts.db.SetString("b", "2"))

	server := NewServer(ts.db, ServerConfig{}, NewMetrics(prometheus.NewRegistry()))
	require.NoError(t, server.refreshStats())

	require.NoError(t, ts.db.Close())
	assert.ErrorIs(t, server.refreshStats(), store.ErrClosed)
}
