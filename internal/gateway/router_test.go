package gateway

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/realtime-ai/realtime-message-gateway/internal/auth"
	"github.com/realtime-ai/realtime-message-gateway/internal/routing"
	"github.com/realtime-ai/realtime-message-gateway/internal/store"
	"github.com/realtime-ai/realtime-message-gateway/internal/user"
)

// testEnv wires a full router over in-memory dependencies.
type testEnv struct {
	handler http.Handler
	store   *store.MemoryStore
	users   *user.MemoryRepository
	session *auth.Issuer
	broker  *auth.Issuer
}

func newTestEnv(t *testing.T, allowedOrigin string) *testEnv {
	t.Helper()

	st := store.NewMemoryStore()
	users := user.NewMemoryRepository()
	logger := zap.NewNop()

	session, err := auth.NewIssuer([]byte("session-secret"), time.Hour)
	require.NoError(t, err)
	broker, err := auth.NewIssuer([]byte("broker-secret"), time.Hour)
	require.NoError(t, err)

	router := routing.New(st, routing.Config{
		CacheTTL:      30 * time.Second,
		WorkerTimeout: 30 * time.Second,
	}, logger)

	handler := NewRouter(RouterConfig{
		Users:         users,
		Router:        router,
		Store:         st,
		SessionIssuer: session,
		BrokerIssuer:  broker,
		Logger:        logger,
		AllowedOrigin: allowedOrigin,
		WorkerTimeout: 30 * time.Second,
	})

	return &testEnv{
		handler: handler,
		store:   st,
		users:   users,
		session: session,
		broker:  broker,
	}
}

// post sends a JSON POST and returns the recorder.
func (e *testEnv) post(t *testing.T, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	data, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) get(t *testing.T, path string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

// newRawPost builds a POST with a raw string body, for malformed-JSON cases.
func newRawPost(t *testing.T, path, body string) *http.Request {
	t.Helper()

	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader([]byte(body)))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func newRecorderFor(env *testEnv, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

// proxyError extracts the error object of a rejected proxy callback and
// asserts the contract: HTTP 200 with the error conveyed in the body.
func proxyErrorOf(t *testing.T, rec *httptest.ResponseRecorder) (int, string) {
	t.Helper()

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	errObj, ok := body["error"].(map[string]any)
	require.True(t, ok, "expected error body, got %s", rec.Body.String())
	return int(errObj["code"].(float64)), errObj["message"].(string)
}

func TestCORSForAllowedOrigin(t *testing.T) {
	env := newTestEnv(t, "https://app.example.com")

	req := httptest.NewRequest(http.MethodOptions, "/auth/login", nil)
	req.Header.Set("Origin", "https://app.example.com")
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://app.example.com", rec.Header().Get("Access-Control-Allow-Origin"))

	// A different origin gets no CORS headers.
	req = httptest.NewRequest(http.MethodOptions, "/auth/login", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	rec = httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)

	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t, "")

	rec := env.get(t, "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}
