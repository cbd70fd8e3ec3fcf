package app

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unclebandit/outreach-backend/internal/config"
	"github.com/unclebandit/outreach-backend/internal/gmail"
	"github.com/unclebandit/outreach-backend/internal/lock"
	"github.com/unclebandit/outreach-backend/internal/queue"
	"github.com/unclebandit/outreach-backend/internal/ratelimit"
)

func newMemoryApp(t *testing.T) *App {
	t.Helper()
	cfg, err := config.FromEnv(func(key string) string {
		return map[string]string{"STORE": "memory", "CRON_SECRET": "s3cret"}[key]
	})
	require.NoError(t, err)

	a, err := New(cfg, WithGateway(gmail.NewDryRunClient()))
	require.NoError(t, err)
	t.Cleanup(a.Close)
	return a
}

func TestNew_MemoryDefaults(t *testing.T) {
	a := newMemoryApp(t)

	assert.NotNil(t, a.Memory)
	assert.Nil(t, a.DB)
	assert.Nil(t, a.Redis)
	assert.IsType(t, &queue.InMemoryQueue{}, a.Queue)
	assert.IsType(t, &ratelimit.MemoryLimiter{}, a.Dispatcher.Limiter)
	assert.IsType(t, &lock.MemoryProvider{}, a.Dispatcher.Locks)
	assert.Equal(t, 50, a.Dispatcher.BatchSize)
	assert.Same(t, a.Classification, a.Sync.Classifier)
}

func TestRouter_HealthAndCron(t *testing.T) {
	a := newMemoryApp(t)
	router := a.Router()

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/cron/send-emails", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req := httptest.NewRequest(http.MethodGet, "/cron/sync-inbox", nil)
	req.Header.Set("Authorization", "Bearer s3cret")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, true, body["success"])

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.Contains(w.Body.String(), "http_requests_total"))
}

func TestRouter_UnknownCampaign(t *testing.T) {
	a := newMemoryApp(t)

	w := httptest.NewRecorder()
	a.Router().ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/campaigns/nope/launch", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestStartSubscribers(t *testing.T) {
	a := newMemoryApp(t)
	require.NoError(t, a.StartSubscribers(true))

	assert.NoError(t, a.Queue.Publish(queue.TopicDispatchRequests, queue.DispatchRequest{WorkspaceID: "ws-1"}))
	assert.NoError(t, a.Queue.Publish(queue.TopicNotifications, map[string]string{"title": "hello"}))
}
