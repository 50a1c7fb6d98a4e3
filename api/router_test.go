package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/use-agent/recoveryfinder/config"
	"github.com/use-agent/recoveryfinder/models"
)

type fixedStatus models.RunStatus

func (f fixedStatus) Status() models.RunStatus { return models.RunStatus(f) }

func testRouter(auth bool, keys ...string) http.Handler {
	cfg := config.Load()
	cfg.Server.Mode = "test"
	cfg.Auth.Enabled = auth
	cfg.Auth.APIKeys = keys
	cfg.Auth.RequestsPerSecond = 1
	cfg.Auth.Burst = 2
	src := fixedStatus{RunID: "run-1", State: models.StateRowIterating, Total: 10, Processed: 4, Priced: 3}
	return NewRouter(src, cfg, time.Now())
}

func get(h http.Handler, path string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestHealthNeedsNoKey(t *testing.T) {
	w := get(testRouter(true, "k1"), "/api/v1/health", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var body models.HealthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body.Status)
	assert.Equal(t, models.StateRowIterating, body.State)
}

func TestProgressRequiresKey(t *testing.T) {
	h := testRouter(true, "k1")

	w := get(h, "/api/v1/progress", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	var rejected models.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rejected))
	assert.Equal(t, models.ErrCodeUnauthorized, rejected.Error.Code)

	w = get(h, "/api/v1/progress", map[string]string{"X-API-Key": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = get(h, "/api/v1/progress", map[string]string{"Authorization": "Bearer k1"})
	require.Equal(t, http.StatusOK, w.Code)
	var body models.ProgressResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.True(t, body.Success)
	assert.Equal(t, 4, body.Status.Processed)
	assert.InDelta(t, 40.0, body.Percent, 0.001)
}

func TestProgressRateLimited(t *testing.T) {
	h := testRouter(true, "k1")
	key := map[string]string{"X-API-Key": "k1"}

	assert.Equal(t, http.StatusOK, get(h, "/api/v1/progress", key).Code)
	assert.Equal(t, http.StatusOK, get(h, "/api/v1/progress", key).Code)

	w := get(h, "/api/v1/progress", key)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	var rejected models.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rejected))
	assert.Equal(t, models.ErrCodeRateLimited, rejected.Error.Code)
}

func TestAuthDisabled(t *testing.T) {
	w := get(testRouter(false), "/api/v1/progress", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestHealthDegradedAfterFailure(t *testing.T) {
	cfg := config.Load()
	cfg.Server.Mode = "test"
	h := NewRouter(fixedStatus{State: models.StateFailed}, cfg, time.Now())

	var body models.HealthResponse
	w := get(h, "/api/v1/health", nil)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "degraded", body.Status)
}
