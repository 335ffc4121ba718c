package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu       sync.Mutex
	statuses []int
}

func (r *recorder) Record(status int, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses = append(r.statuses, status)
}

func ok(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func serve(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	return body["error"]
}

func TestRequestID(t *testing.T) {
	var seen string
	h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestIDFrom(r.Context())
	}))

	rec := serve(h, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Len(t, seen, 36)
	assert.Equal(t, seen, rec.Header().Get(RequestIDHeader))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "abc")
	rec = serve(h, req)
	assert.Equal(t, "abc", seen)
	assert.Equal(t, "abc", rec.Header().Get(RequestIDHeader))
}

func TestLogging_Records(t *testing.T) {
	r := &recorder{}
	h := Chain(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}), RequestID, Logging(r))

	serve(h, httptest.NewRequest(http.MethodGet, "/x", nil))
	serve(http.HandlerFunc(ok), httptest.NewRequest(http.MethodGet, "/y", nil))
	assert.Equal(t, []int{http.StatusNotFound}, r.statuses)
}

func TestRecovery(t *testing.T) {
	r := &recorder{}
	h := Chain(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}), Recovery, Logging(r))

	rec := serve(h, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "internal server error", decodeError(t, rec))
}

func TestRecovery_CountsPanicAsError(t *testing.T) {
	panicky := http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	})

	r := &recorder{}
	h := Chain(panicky, RequestID, Recovery, Logging(r))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "req-1")
	rec := serve(h, req)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "req-1", rec.Header().Get(RequestIDHeader))
	assert.Equal(t, []int{http.StatusInternalServerError}, r.statuses)

	r = &recorder{}
	h = Chain(panicky, Recovery, RequestID, Logging(r))
	rec = serve(h, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, []int{http.StatusInternalServerError}, r.statuses)
}

func TestAPIKey(t *testing.T) {
	h := APIKey("secret", "/api/", "/ws/")(http.HandlerFunc(ok))

	rec := serve(h, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = serve(h, httptest.NewRequest(http.MethodGet, "/api/stats/overview", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "ApiKey", rec.Header().Get("WWW-Authenticate"))
	assert.Equal(t, "invalid or missing API key", decodeError(t, rec))

	req := httptest.NewRequest(http.MethodGet, "/ws/alerts", nil)
	req.Header.Set(APIKeyHeader, "wrong")
	assert.Equal(t, http.StatusUnauthorized, serve(h, req).Code)

	req = httptest.NewRequest(http.MethodGet, "/api/stats/overview", nil)
	req.Header.Set(APIKeyHeader, "secret")
	assert.Equal(t, http.StatusOK, serve(h, req).Code)
}

func TestRateLimiter(t *testing.T) {
	l := NewRateLimiter(2, time.Minute)
	h := l.Handler(http.HandlerFunc(ok))

	newReq := func(addr string) *http.Request {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = addr
		return req
	}

	assert.Equal(t, http.StatusOK, serve(h, newReq("10.0.0.1:1000")).Code)
	assert.Equal(t, http.StatusOK, serve(h, newReq("10.0.0.1:1001")).Code)
	rec := serve(h, newReq("10.0.0.1:1002"))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))

	assert.Equal(t, http.StatusOK, serve(h, newReq("10.0.0.2:1000")).Code, "limits are per client")
}

func TestRateLimiter_WindowResets(t *testing.T) {
	l := NewRateLimiter(1, 50*time.Millisecond)
	assert.True(t, l.Allow("a"))
	assert.False(t, l.Allow("a"))
	time.Sleep(80 * time.Millisecond)
	assert.True(t, l.Allow("a"))
}
