// internal/model/scheduled_email.go
package model

import "time"

// ScheduledEmail statuses. SENT, FAILED and CANCELLED are terminal.
const (
	EmailScheduled      = "SCHEDULED"
	EmailRetryScheduled = "RETRY_SCHEDULED"
	EmailSent           = "SENT"
	EmailFailed         = "FAILED"
	EmailCancelled      = "CANCELLED"
)

// PendingEmailStatuses are the statuses a worker may still claim.
var PendingEmailStatuses = []string{EmailScheduled, EmailRetryScheduled}

type ScheduledEmail struct {
	ID                 string     `db:"id" json:"id"`
	IdempotencyKey     string     `db:"idempotency_key" json:"idempotencyKey"`
	WorkspaceID        string     `db:"workspace_id" json:"workspaceId"`
	CampaignID         string     `db:"campaign_id" json:"campaignId"`
	CampaignProspectID string     `db:"campaign_prospect_id" json:"campaignProspectId"`
	ProspectID         string     `db:"prospect_id" json:"prospectId"`
	SequenceID         string     `db:"sequence_id" json:"sequenceId"`
	StepNumber         int        `db:"step_number" json:"stepNumber"`
	Status             string     `db:"status" json:"status"`
	ScheduledFor       time.Time  `db:"scheduled_for" json:"scheduledFor"`
	Attempts           int        `db:"attempts" json:"attempts"`
	LastError          *string    `db:"last_error" json:"lastError,omitempty"`
	NextRetryAt        *time.Time `db:"next_retry_at" json:"nextRetryAt,omitempty"`
	MessageID          *string    `db:"message_id" json:"messageId,omitempty"`
	ThreadID           *string    `db:"thread_id" json:"threadId,omitempty"`
	SentAt             *time.Time `db:"sent_at" json:"sentAt,omitempty"`
	ClaimedBy          *string    `db:"claimed_by" json:"-"`
	ClaimedUntil       *time.Time `db:"claimed_until" json:"-"`
	CreatedAt          time.Time  `db:"created_at" json:"createdAt"`
	UpdatedAt          time.Time  `db:"updated_at" json:"updatedAt"`
}

// DueAt is the instant the row becomes eligible for dispatch.
func (e *ScheduledEmail) DueAt() time.Time {
	if e.NextRetryAt != nil {
		return *e.NextRetryAt
	}
	return e.ScheduledFor
}

// IsPending reports whether the row is still waiting to be sent.
func (e *ScheduledEmail) IsPending() bool {
	return e.Status == EmailScheduled || e.Status == EmailRetryScheduled
}

// ScheduledEmailInput carries the fields needed to enqueue a send.
type ScheduledEmailInput struct {
	WorkspaceID        string
	CampaignID         string
	CampaignProspectID string
	ProspectID         string
	SequenceID         string
	StepNumber         int
	ScheduledFor       time.Time
}
