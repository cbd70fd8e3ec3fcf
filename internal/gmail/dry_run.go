package gmail

import (
	"context"
	"math/rand"
	"time"

	"github.com/google/uuid"

	appErrors "github.com/unclebandit/outreach-backend/internal/errors"
)

// DryRunClient simulates the gateway for local runs. Sends succeed with
// SuccessRate probability and the mailbox is always empty.
type DryRunClient struct {
	SuccessRate float64
}

func NewDryRunClient() *DryRunClient {
	return &DryRunClient{SuccessRate: 0.9}
}

func (d *DryRunClient) IsTokenValid(ctx context.Context, workspaceID string) (bool, error) {
	return true, nil
}

func (d *DryRunClient) Send(ctx context.Context, workspaceID string, msg OutgoingMessage) (SendResult, error) {
	if rand.Float64() >= d.SuccessRate {
		return SendResult{}, appErrors.NewTransientDeliveryError("TEMPORARY_FAILURE", "dry-run sending failed")
	}
	threadID := msg.ThreadID
	if threadID == "" {
		threadID = "thread-" + uuid.NewString()
	}
	return SendResult{MessageID: "msg-" + uuid.NewString(), ThreadID: threadID}, nil
}

func (d *DryRunClient) FetchNewMessages(ctx context.Context, workspaceID string, since *time.Time) ([]Envelope, error) {
	return nil, nil
}

var _ Gateway = (*DryRunClient)(nil)
