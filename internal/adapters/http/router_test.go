package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dkeye/Desk/internal/adapters/rtc"
	"github.com/dkeye/Desk/internal/adapters/signal"
	"github.com/dkeye/Desk/internal/app"
	"github.com/dkeye/Desk/internal/app/orch"
	"github.com/dkeye/Desk/internal/config"
	"github.com/dkeye/Desk/internal/core"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setup(t *testing.T) (*gin.Engine, *app.SessionStore) {
	t.Helper()
	r, store, _ := setupWithRegistry(t)
	return r, store
}

func setupWithRegistry(t *testing.T) (*gin.Engine, *app.SessionStore, *app.Registry) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	store := app.NewSessionStore()
	reg := app.NewRegistry()
	o := &orch.Orchestrator{Registry: reg, Sessions: store}
	ctl := signal.NewSignalWSController(o, nil, signal.Options{})
	cfg := &config.Config{Mode: "test", Secret: "test-secret"}
	return SetupRouter(context.Background(), cfg, o, ctl, rtc.DefaultWebRTCConfig()), store, reg
}

type nopConn struct{}

func (nopConn) TrySend(core.Frame) error { return nil }
func (nopConn) Close()                   {}

func TestListSessions(t *testing.T) {
	r, store := setup(t)
	store.CreateSession("a", "Alice")

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/sessions", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Sessions []core.SessionInfo `json:"sessions"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Sessions, 1)
	assert.Equal(t, "Alice", body.Sessions[0].DisplayName)
	assert.Zero(t, body.Sessions[0].ControllerCount)
}

func TestGetSession(t *testing.T) {
	r, store, reg := setupWithRegistry(t)
	reg.Bind("a", "token-a", nopConn{}, nil)
	sid, _ := store.CreateSession("a", "Alice")
	_, err := store.JoinSession(sid, "b")
	require.NoError(t, err)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/sessions/"+string(sid), nil))
	require.Equal(t, http.StatusOK, w.Code)

	var body sessionResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, sid, body.ID)
	assert.Equal(t, 1, body.ControllerCount)
	assert.True(t, body.SharerConnected)
	require.NotNil(t, body.SharerLastSeen)
	assert.False(t, body.SharerLastSeen.IsZero())

	reg.Unbind("a")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/sessions/"+string(sid), nil))
	require.Equal(t, http.StatusOK, w.Code)
	body = sessionResponse{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.False(t, body.SharerConnected)
	assert.Nil(t, body.SharerLastSeen)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/sessions/missing", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestConnectionInfo(t *testing.T) {
	r, _ := setup(t)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/connection-info", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		ICEServers []struct {
			URLs []string `json:"urls"`
		} `json:"iceServers"`
		WSProtocol string    `json:"wsProtocol"`
		ServerTime time.Time `json:"serverTime"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "ws", body.WSProtocol)
	require.Len(t, body.ICEServers, 1)
	assert.NotZero(t, body.ServerTime)
}

func TestClientTokenCookie(t *testing.T) {
	r, _ := setup(t)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, w.Code)

	cookies := w.Result().Cookies()
	require.NotEmpty(t, cookies)
	assert.Equal(t, cookieName, cookies[0].Name)
}

func TestMetricsEndpoint(t *testing.T) {
	r, store := setup(t)
	store.CreateSession("a", "")

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "desk_session_active")
}

func TestResponseHeaders(t *testing.T) {
	r, _ := setup(t)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/connection-info", nil))
	require.Equal(t, http.StatusOK, w.Code)

	h := w.Header()
	assert.Equal(t, "no-cache, no-store, must-revalidate", h.Get("Cache-Control"))
	assert.Equal(t, "*", h.Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "nosniff", h.Get("X-Content-Type-Options"))
	assert.Equal(t, "SAMEORIGIN", h.Get("X-Frame-Options"))
}

func TestPreflight(t *testing.T) {
	r, _ := setup(t)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodOptions, "/api/sessions", nil))
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "GET, POST, OPTIONS", w.Header().Get("Access-Control-Allow-Methods"))
}
