package model

import "time"

// SentEmail is the append-only record of a delivered email.
type SentEmail struct {
	ID               string    `db:"id" json:"id"`
	WorkspaceID      string    `db:"workspace_id" json:"workspaceId"`
	CampaignID       string    `db:"campaign_id" json:"campaignId"`
	ProspectID       string    `db:"prospect_id" json:"prospectId"`
	ScheduledEmailID string    `db:"scheduled_email_id" json:"scheduledEmailId"`
	StepNumber       int       `db:"step_number" json:"stepNumber"`
	MessageID        string    `db:"message_id" json:"messageId"`
	ThreadID         string    `db:"thread_id" json:"threadId"`
	Subject          string    `db:"subject" json:"subject"`
	SentAt           time.Time `db:"sent_at" json:"sentAt"`
}
