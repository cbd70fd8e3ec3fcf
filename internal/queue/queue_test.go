package queue

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/streadway/amqp"

	"github.com/unclebandit/outreach-backend/internal/model"
)

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestInMemoryQueue_PublishWithoutSubscribers(t *testing.T) {
	q := NewInMemoryQueue()
	if err := q.Publish("nobody", 1); err == nil {
		t.Error("expected error when no subscriber exists")
	}
}

func TestInMemoryQueue_RetriesFailedHandler(t *testing.T) {
	q := NewInMemoryQueue()
	q.backoff = time.Millisecond

	var calls int32
	q.Subscribe("t", func(payload any) error {
		if atomic.AddInt32(&calls, 1) < 3 {
			return errors.New("boom")
		}
		return nil
	})

	if err := q.Publish("t", "x"); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	waitFor(t, func() bool { return atomic.LoadInt32(&calls) == 3 })
}

func TestDecodePayload(t *testing.T) {
	var fromValue, fromRaw DispatchRequest
	if err := DecodePayload(DispatchRequest{WorkspaceID: "ws-1"}, &fromValue); err != nil {
		t.Fatal(err)
	}
	if err := DecodePayload(json.RawMessage(`{"workspaceId":"ws-2"}`), &fromRaw); err != nil {
		t.Fatal(err)
	}
	if fromValue.WorkspaceID != "ws-1" || fromRaw.WorkspaceID != "ws-2" {
		t.Errorf("decoded %q and %q", fromValue.WorkspaceID, fromRaw.WorkspaceID)
	}
}

func TestStartDispatchRequestSubscriber(t *testing.T) {
	q := NewInMemoryQueue()
	got := make(chan string, 1)
	err := StartDispatchRequestSubscriber(q, func(ctx context.Context, workspaceID string) error {
		got <- workspaceID
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}

	q.Publish(TopicDispatchRequests, DispatchRequest{WorkspaceID: "ws-9"})
	select {
	case ws := <-got:
		if ws != "ws-9" {
			t.Errorf("dispatched %q", ws)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("dispatch not called")
	}
}

func TestStartNotificationLogger(t *testing.T) {
	q := NewInMemoryQueue()
	if err := StartNotificationLogger(q); err != nil {
		t.Fatal(err)
	}
	if err := q.Publish(TopicNotifications, model.Notification{WorkspaceID: "ws-1", Level: model.NotificationError, Title: "paused"}); err != nil {
		t.Errorf("Publish: %v", err)
	}
}

func TestRetryCount(t *testing.T) {
	cases := []struct {
		headers amqp.Table
		want    int
	}{
		{nil, 0},
		{amqp.Table{retryHeader: int32(2)}, 2},
		{amqp.Table{retryHeader: int64(3)}, 3},
		{amqp.Table{retryHeader: "x"}, 0},
	}
	for _, c := range cases {
		if got := retryCount(c.headers); got != c.want {
			t.Errorf("retryCount(%v) = %d, want %d", c.headers, got, c.want)
		}
	}
}
