// Package gmail talks to the mailbox gateway that owns the OAuth tokens of
// each workspace. Token exchange and refresh happen on the gateway side.
package gmail

import (
	"context"
	"time"
)

// OutgoingMessage is one rendered email. ThreadID is set for follow-up steps.
type OutgoingMessage struct {
	To       string `json:"to"`
	Subject  string `json:"subject"`
	Body     string `json:"body"`
	ThreadID string `json:"threadId,omitempty"`
}

type SendResult struct {
	MessageID string `json:"id"`
	ThreadID  string `json:"threadId"`
}

// Envelope is an inbound message as delivered by the gateway: ids plus the
// raw RFC 5322 source.
type Envelope struct {
	ID       string    `json:"id"`
	ThreadID string    `json:"threadId"`
	Raw      string    `json:"raw"`
	Received time.Time `json:"receivedAt"`
}

// TokenChecker reports whether a workspace's mailbox credentials are still usable.
type TokenChecker interface {
	IsTokenValid(ctx context.Context, workspaceID string) (bool, error)
}

// Sender delivers one message. Revoked credentials fail with an AuthError.
type Sender interface {
	Send(ctx context.Context, workspaceID string, msg OutgoingMessage) (SendResult, error)
}

// Mailbox fetches inbound messages received after since.
type Mailbox interface {
	FetchNewMessages(ctx context.Context, workspaceID string, since *time.Time) ([]Envelope, error)
}

// Gateway is everything the workers need from the mailbox provider.
type Gateway interface {
	TokenChecker
	Sender
	Mailbox
}
