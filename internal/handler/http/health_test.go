package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func ready(t *testing.T, h *HealthHandler) (int, map[string]interface{}) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.Ready(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return rec.Code, body
}

func TestHealthHandler_Ready(t *testing.T) {
	h := NewHealthHandler()
	h.AddCheck("redis", pingFunc(func(context.Context) error { return nil }))

	status, body := ready(t, h)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ready", body["status"])
	assert.Equal(t, map[string]interface{}{"redis": "ok"}, body["dependencies"])

	h.AddCheck("postgres", pingFunc(func(context.Context) error { return errors.New("connection refused") }))
	status, body = ready(t, h)
	assert.Equal(t, http.StatusServiceUnavailable, status)
	assert.Equal(t, "not_ready", body["status"])
	assert.Equal(t, "connection refused", body["dependencies"].(map[string]interface{})["postgres"])

	h.SetReady(false)
	status, body = ready(t, h)
	assert.Equal(t, http.StatusServiceUnavailable, status)
	assert.Nil(t, body["dependencies"])
}

func TestLessonIndex(t *testing.T) {
	for _, tt := range []struct {
		raw     string
		want    int
		wantErr bool
	}{
		{"0", 0, false},
		{"12", 12, false},
		{"-1", 0, true},
		{"abc", 0, true},
	} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req = withURLParam(req, "index", tt.raw)
		got, err := lessonIndex(req)
		if tt.wantErr {
			assert.Error(t, err, tt.raw)
			continue
		}
		require.NoError(t, err, tt.raw)
		assert.Equal(t, tt.want, got)
	}
}

func withURLParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}
