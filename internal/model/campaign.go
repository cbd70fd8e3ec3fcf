// internal/model/campaign.go
package model

import "time"

// Campaign statuses.
const (
	CampaignDraft     = "DRAFT"
	CampaignRunning   = "RUNNING"
	CampaignPaused    = "PAUSED"
	CampaignCompleted = "COMPLETED"
	CampaignStopped   = "STOPPED"
)

// Reasons recorded when the anomaly monitor pauses a campaign.
const (
	AutoPauseHighBounceRate      = "HIGH_BOUNCE_RATE"
	AutoPauseHighUnsubscribeRate = "HIGH_UNSUBSCRIBE_RATE"
	AutoPauseHighComplaintRate   = "HIGH_COMPLAINT_RATE"
)

type Campaign struct {
	ID               string     `db:"id" json:"id"`
	WorkspaceID      string     `db:"workspace_id" json:"workspaceId"`
	Name             string     `db:"name" json:"name"`
	SequenceID       string     `db:"sequence_id" json:"sequenceId"`
	Status           string     `db:"status" json:"status"`
	LaunchedAt       *time.Time `db:"launched_at" json:"launchedAt,omitempty"`
	PausedAt         *time.Time `db:"paused_at" json:"pausedAt,omitempty"`
	AutoPausedReason *string    `db:"auto_paused_reason" json:"autoPausedReason,omitempty"`
	CompletedAt      *time.Time `db:"completed_at" json:"completedAt,omitempty"`
	CreatedAt        time.Time  `db:"created_at" json:"createdAt"`
	UpdatedAt        *time.Time `db:"updated_at" json:"updatedAt,omitempty"`
}
