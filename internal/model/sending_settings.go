// internal/model/sending_settings.go
package model

import "time"

type SendingSettings struct {
	WorkspaceID   string     `db:"workspace_id" json:"workspaceId"`
	SendingDays   []int      `db:"sending_days" json:"sendingDays" validate:"required,min=1,dive,min=0,max=6"`
	StartHour     int        `db:"start_hour" json:"startHour" validate:"min=0,max=23"`
	EndHour       int        `db:"end_hour" json:"endHour" validate:"min=1,max=23,gtfield=StartHour"`
	Timezone      string     `db:"timezone" json:"timezone" validate:"required,timezone"`
	DailyQuota    int        `db:"daily_quota" json:"dailyQuota" validate:"min=1,max=500"`
	RampUpEnabled bool       `db:"ramp_up_enabled" json:"rampUpEnabled"`
	UpdatedAt     *time.Time `db:"updated_at" json:"updatedAt,omitempty"`
}

// DefaultSendingSettings applies to workspaces that never saved settings.
func DefaultSendingSettings(workspaceID string) *SendingSettings {
	return &SendingSettings{
		WorkspaceID:   workspaceID,
		SendingDays:   []int{1, 2, 3, 4, 5},
		StartHour:     9,
		EndHour:       18,
		Timezone:      "Europe/Paris",
		DailyQuota:    30,
		RampUpEnabled: true,
	}
}
