package model

import "time"

// Enrollment statuses of a CampaignProspect.
const (
	EnrollmentEnrolled  = "ENROLLED"
	EnrollmentPaused    = "PAUSED"
	EnrollmentCompleted = "COMPLETED"
	EnrollmentStopped   = "STOPPED"
	EnrollmentReplied   = "REPLIED"
)

// CampaignProspect is a prospect's participation in one campaign.
// CurrentStep is the number of the last step sent, 0 before the first send.
type CampaignProspect struct {
	ID               string     `db:"id" json:"id"`
	CampaignID       string     `db:"campaign_id" json:"campaignId"`
	ProspectID       string     `db:"prospect_id" json:"prospectId"`
	WorkspaceID      string     `db:"workspace_id" json:"workspaceId"`
	EnrollmentStatus string     `db:"enrollment_status" json:"enrollmentStatus"`
	CurrentStep      int        `db:"current_step" json:"currentStep"`
	PausedAt         *time.Time `db:"paused_at" json:"pausedAt,omitempty"`
	LastSentAt       *time.Time `db:"last_sent_at" json:"lastSentAt,omitempty"`
	CreatedAt        time.Time  `db:"created_at" json:"createdAt"`
	UpdatedAt        *time.Time `db:"updated_at" json:"updatedAt,omitempty"`
}

// IsActive reports whether the enrollment can still receive emails.
func (e *CampaignProspect) IsActive() bool {
	return e.EnrollmentStatus == EnrollmentEnrolled || e.EnrollmentStatus == EnrollmentPaused
}
