package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pysuper/titan/internal/config"
	"github.com/pysuper/titan/internal/dataset"
	"github.com/pysuper/titan/internal/session"
)

func testConfig() *config.Config {
	return &config.Config{
		AppEnv:            "test",
		Port:              "0",
		DefaultFPS:        5,
		HeartbeatInterval: 30 * time.Second,
		HeartbeatTimeout:  60 * time.Second,
		ConnectionMode:    config.ModeSingle,
		AuthToken:         "secret-token",
	}
}

func newTestServer(t *testing.T, cfg *config.Config) *Server {
	t.Helper()
	if cfg == nil {
		cfg = testConfig()
	}

	cache, err := dataset.NewCache(nil)
	require.NoError(t, err)
	t.Cleanup(func() { cache.Close() })

	registry := session.NewRegistry(cfg.ConnectionMode)
	router := session.NewRouter(registry, nil)
	t.Cleanup(registry.CloseAll)

	return NewServer(cfg, registry, router, cache, nil, nil)
}

func getJSON(t *testing.T, srv *Server, method, target string, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var reader *strings.Reader
	if body != "" {
		reader = strings.NewReader(body)
	} else {
		reader = strings.NewReader("")
	}
	req := httptest.NewRequest(method, target, reader)
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	srv.echo.ServeHTTP(rec, req)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &decoded))
	return rec, decoded
}

func TestHandleLiveness(t *testing.T) {
	srv := newTestServer(t, nil)

	rec, body := getJSON(t, srv, http.MethodGet, "/health/live", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, float64(0), body["sessions"])
}

func TestHandleReadinessWithoutRedis(t *testing.T) {
	srv := newTestServer(t, nil)

	rec, body := getJSON(t, srv, http.MethodGet, "/health/ready", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ready", body["status"])
}

func TestControlRequiresAction(t *testing.T) {
	srv := newTestServer(t, nil)

	rec, body := getJSON(t, srv, http.MethodGet, "/control", "")

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "error", body["status"])
	assert.Contains(t, body["message"], "action")
}

func TestControlRejectsUnknownAction(t *testing.T) {
	srv := newTestServer(t, nil)

	rec, body := getJSON(t, srv, http.MethodGet, "/control?action=explode", "")

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, body["message"], "unknown action")
}

func TestControlRejectsBadFPS(t *testing.T) {
	srv := newTestServer(t, nil)

	rec, body := getJSON(t, srv, http.MethodGet, "/control?action=play_video&fps=fast", "")

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, body["message"], "fps")
}

func TestControlWithoutSession(t *testing.T) {
	srv := newTestServer(t, nil)

	rec, body := getJSON(t, srv, http.MethodGet, "/control?action=play_video", "")

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "no active session", body["message"])
}

func TestControlBodyRequiresPath(t *testing.T) {
	srv := newTestServer(t, nil)

	rec, body := getJSON(t, srv, http.MethodPost, "/control", `{"fps": 10}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, body["message"], "video_path")
}

func TestStatusWithoutSession(t *testing.T) {
	srv := newTestServer(t, nil)

	rec, _ := getJSON(t, srv, http.MethodGet, "/status", "")

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSessionsEmpty(t *testing.T) {
	srv := newTestServer(t, nil)

	rec, body := getJSON(t, srv, http.MethodGet, "/sessions", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	data := body["data"].(map[string]any)
	assert.Equal(t, float64(0), data["count"])
}

func TestMetricsExposed(t *testing.T) {
	srv := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	srv.echo.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "playback_active_sessions")
}
