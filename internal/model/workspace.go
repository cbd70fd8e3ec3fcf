package model

import "time"

type Workspace struct {
	ID                 string    `db:"id" json:"id"`
	Name               string    `db:"name" json:"name"`
	OnboardingComplete bool      `db:"onboarding_complete" json:"onboardingComplete"`
	CreatedAt          time.Time `db:"created_at" json:"createdAt"`
}

// MailboxToken tracks the health of a workspace's connected Gmail account.
// The OAuth credentials themselves live with the external token service.
type MailboxToken struct {
	WorkspaceID   string     `db:"workspace_id" json:"workspaceId"`
	Email         string     `db:"email" json:"email"`
	IsValid       bool       `db:"is_valid" json:"isValid"`
	LastAuthError *string    `db:"last_auth_error" json:"lastAuthError,omitempty"`
	LastSyncAt    *time.Time `db:"last_sync_at" json:"lastSyncAt,omitempty"`
	UpdatedAt     *time.Time `db:"updated_at" json:"updatedAt,omitempty"`
}
