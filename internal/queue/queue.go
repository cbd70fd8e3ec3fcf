package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/unclebandit/outreach-backend/internal/model"
)

// Topics used by the service.
const (
	TopicNotifications    = "notifications"
	TopicDispatchRequests = "dispatch_requests"
)

// Queue interface
type Queue interface {
	Publish(topic string, payload any) error
	Subscribe(topic string, handler func(payload any) error) error
}

// InMemoryQueue delivers to in-process subscribers with retry
type InMemoryQueue struct {
	mu         sync.Mutex
	handlers   map[string][]func(payload any) error
	maxRetries int
	backoff    time.Duration
}

// NewInMemoryQueue creates a new queue
func NewInMemoryQueue() *InMemoryQueue {
	return &InMemoryQueue{
		handlers:   make(map[string][]func(payload any) error),
		maxRetries: 3,
		backoff:    500 * time.Millisecond,
	}
}

// JobPayload wraps a message payload with retry info
type JobPayload struct {
	Payload    any
	RetryCount int
	MaxRetries int
}

// Publish sends a message to all subscribers
func (q *InMemoryQueue) Publish(topic string, payload any) error {
	q.mu.Lock()
	handlers := q.handlers[topic]
	q.mu.Unlock()

	if len(handlers) == 0 {
		return fmt.Errorf("no subscribers for topic %s", topic)
	}

	for _, handler := range handlers {
		job := JobPayload{Payload: payload, MaxRetries: q.maxRetries}
		go q.processJob(topic, handler, job)
	}

	return nil
}

// processJob handles retries and errors
func (q *InMemoryQueue) processJob(topic string, handler func(payload any) error, job JobPayload) {
	for job.RetryCount <= job.MaxRetries {
		err := handler(job.Payload)
		if err == nil {
			return // ACK
		}

		job.RetryCount++
		log.Printf("⚠️ %s job failed (attempt %d/%d): %v", topic, job.RetryCount, job.MaxRetries, err)

		if job.RetryCount > job.MaxRetries {
			log.Printf("❌ %s job permanently failed after %d attempts", topic, job.MaxRetries)
			return
		}

		time.Sleep(time.Duration(job.RetryCount) * q.backoff)
	}
}

// Subscribe adds a handler for a topic
func (q *InMemoryQueue) Subscribe(topic string, handler func(payload any) error) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.handlers[topic] = append(q.handlers[topic], handler)
	return nil
}

// DecodePayload fills dst from a payload that is either a Go value published
// in-process or the raw JSON body of a broker delivery.
func DecodePayload(payload any, dst any) error {
	var raw []byte
	switch p := payload.(type) {
	case []byte:
		raw = p
	case json.RawMessage:
		raw = p
	default:
		b, err := json.Marshal(p)
		if err != nil {
			return err
		}
		raw = b
	}
	return json.Unmarshal(raw, dst)
}

// DispatchRequest asks the worker to run a dispatch pass for one workspace.
type DispatchRequest struct {
	WorkspaceID string `json:"workspaceId"`
}

// StartDispatchRequestSubscriber runs dispatch for each request received on
// dispatch_requests. A failed dispatch is returned so the queue retries it.
func StartDispatchRequestSubscriber(q Queue, dispatch func(ctx context.Context, workspaceID string) error) error {
	return q.Subscribe(TopicDispatchRequests, func(payload any) error {
		var req DispatchRequest
		if err := DecodePayload(payload, &req); err != nil || req.WorkspaceID == "" {
			log.Println("⚠️ Invalid dispatch request payload:", payload)
			return nil // no retry
		}

		log.Println("📩 Dispatch requested for workspace", req.WorkspaceID)
		return dispatch(context.Background(), req.WorkspaceID)
	})
}

// StartNotificationLogger logs every notification published on the notifications topic.
func StartNotificationLogger(q Queue) error {
	return q.Subscribe(TopicNotifications, func(payload any) error {
		var n model.Notification
		if err := DecodePayload(payload, &n); err != nil {
			log.Println("⚠️ Invalid notification payload:", err)
			return nil
		}
		icon := "ℹ️"
		switch n.Level {
		case model.NotificationWarning:
			icon = "⚠️"
		case model.NotificationError:
			icon = "🚨"
		}
		log.Printf("%s [%s] %s: %s", icon, n.WorkspaceID, n.Title, n.Message)
		return nil
	})
}
