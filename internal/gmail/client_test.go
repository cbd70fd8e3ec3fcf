package gmail

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/unclebandit/outreach-backend/internal/errors"
	"github.com/unclebandit/outreach-backend/internal/retry"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c := NewClient(srv.URL, "secret")
	c.RequestsPerSecond = 1000
	return c
}

func TestClient_SendSuccess(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/workspaces/ws-1/messages", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		var msg OutgoingMessage
		require.NoError(t, json.NewDecoder(r.Body).Decode(&msg))
		assert.Equal(t, "thread-7", msg.ThreadID)
		json.NewEncoder(w).Encode(SendResult{MessageID: "m-1", ThreadID: "thread-7"})
	})

	res, err := c.Send(context.Background(), "ws-1", OutgoingMessage{To: "a@b.io", Subject: "hi", ThreadID: "thread-7"})
	require.NoError(t, err)
	assert.Equal(t, "m-1", res.MessageID)
}

func TestClient_UnauthorizedIsAuthError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"message":"invalid_grant"}`))
	})

	_, err := c.FetchNewMessages(context.Background(), "ws-1", nil)
	assert.True(t, appErrors.IsAuthError(err))

	ok, err := c.IsTokenValid(context.Background(), "ws-1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestClient_ErrorClassification(t *testing.T) {
	cases := []struct {
		status    int
		body      string
		code      string
		retryable bool
	}{
		{http.StatusTooManyRequests, `{"reason":"userRateLimitExceeded","message":"slow down"}`, "userRateLimitExceeded", true},
		{http.StatusServiceUnavailable, ``, "SERVICE_UNAVAILABLE", true},
		{http.StatusBadRequest, `{"code":"INVALID_RECIPIENT","message":"no such user"}`, "INVALID_RECIPIENT", false},
	}
	for _, tc := range cases {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tc.status)
			w.Write([]byte(tc.body))
		})
		_, err := c.Send(context.Background(), "ws-1", OutgoingMessage{To: "x@y.io"})
		require.Error(t, err)
		assert.Equal(t, tc.code, retry.ExtractCode(err), "status %d", tc.status)
		assert.Equal(t, tc.retryable, retry.IsRetryable(err), "status %d", tc.status)
	}
}

func TestClient_FetchNewMessagesPassesSince(t *testing.T) {
	since := time.Date(2026, 10, 19, 8, 0, 0, 0, time.UTC)
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "2026-10-19T08:00:00Z", r.URL.Query().Get("since"))
		w.Write([]byte(`{"messages":[{"id":"e-1","threadId":"t-1","raw":"Subject: hi\r\n\r\nbody"}]}`))
	})

	envs, err := c.FetchNewMessages(context.Background(), "ws-1", &since)
	require.NoError(t, err)
	require.Len(t, envs, 1)
	assert.Equal(t, "t-1", envs[0].ThreadID)
}

func TestDryRunClient_KeepsThread(t *testing.T) {
	d := &DryRunClient{SuccessRate: 1}
	res, err := d.Send(context.Background(), "ws-1", OutgoingMessage{ThreadID: "t-1"})
	require.NoError(t, err)
	assert.Equal(t, "t-1", res.ThreadID)
}
