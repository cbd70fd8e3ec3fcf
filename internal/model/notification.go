package model

import "time"

const (
	NotificationInfo    = "INFO"
	NotificationWarning = "WARNING"
	NotificationError   = "ERROR"
)

type Notification struct {
	ID          string    `db:"id" json:"id"`
	WorkspaceID string    `db:"workspace_id" json:"workspaceId"`
	CampaignID  *string   `db:"campaign_id" json:"campaignId,omitempty"`
	Level       string    `db:"level" json:"level"`
	Title       string    `db:"title" json:"title"`
	Message     string    `db:"message" json:"message"`
	CreatedAt   time.Time `db:"created_at" json:"createdAt"`
}
