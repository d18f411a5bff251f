package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pacer-gateway/middleware/ratelimit"
	"pacer-gateway/middleware/ratelimit/infra"
)

const chromeUA = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36"

func newDemoHandler(t *testing.T) (http.Handler, *ratelimit.Pacer) {
	t.Helper()
	p, err := ratelimit.New(ratelimit.Options{Store: infra.NewMemoryQuotaStore(), Limit: 2, Reset: 60})
	require.NoError(t, err)
	return quotaHandler(p, ratelimit.DefaultKeyFunc("", false), serveOptions{chromeLimit: 10, chromeReset: 5}), p
}

func get(t *testing.T, h http.Handler, path, ua string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	r := httptest.NewRequest(http.MethodGet, path, nil)
	r.RemoteAddr = "10.1.1.1:40000"
	r.Header.Set("User-Agent", ua)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)

	var body map[string]any
	if w.Code != http.StatusNotFound {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	}
	return w, body
}

func TestQuotaHandler_DefaultConsumer(t *testing.T) {
	h, _ := newDemoHandler(t)

	w, body := get(t, h, "/", "curl/8.0")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json; charset=utf-8", w.Header().Get("Content-Type"))
	assert.Equal(t, "10.1.1.1, curl/8.0", body["id"])
	assert.Equal(t, float64(1), body["remaining"])

	w, body = get(t, h, "/", "curl/8.0")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, false, body["allowed"])
}

func TestQuotaHandler_ChromeGetsOwnLimits(t *testing.T) {
	h, _ := newDemoHandler(t)

	w, body := get(t, h, "/", chromeUA)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(10), body["limit"])
	assert.Equal(t, float64(9), body["remaining"])
	assert.Equal(t, float64(5), body["reset"])
}

func TestQuotaHandler_UnknownPath(t *testing.T) {
	h, _ := newDemoHandler(t)

	w, _ := get(t, h, "/favicon.ico", "curl/8.0")
	assert.Equal(t, http.StatusNotFound, w.Code)
}
