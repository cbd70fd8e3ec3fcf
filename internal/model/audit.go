package model

import "time"

// Audit actions.
const (
	AuditProspectUnsubscribed          = "PROSPECT_UNSUBSCRIBED"
	AuditProspectBounced               = "PROSPECT_BOUNCED"
	AuditProspectComplained            = "PROSPECT_COMPLAINED"
	AuditProspectReplied               = "PROSPECT_REPLIED"
	AuditCampaignLaunched              = "CAMPAIGN_LAUNCHED"
	AuditCampaignStatusChanged         = "CAMPAIGN_STATUS_CHANGED"
	AuditCampaignAutoPaused            = "CAMPAIGN_AUTO_PAUSED"
	AuditCampaignResumedAfterAutoPause = "CAMPAIGN_RESUMED_AFTER_AUTO_PAUSE"
	AuditEnrollmentStatusChanged       = "ENROLLMENT_STATUS_CHANGED"
)

type AuditLog struct {
	ID          string         `db:"id" json:"id"`
	WorkspaceID string         `db:"workspace_id" json:"workspaceId"`
	EntityType  string         `db:"entity_type" json:"entityType"`
	EntityID    string         `db:"entity_id" json:"entityId"`
	Action      string         `db:"action" json:"action"`
	Metadata    map[string]any `db:"metadata" json:"metadata,omitempty"`
	CreatedAt   time.Time      `db:"created_at" json:"createdAt"`
}
