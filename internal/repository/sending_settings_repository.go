package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/lib/pq"

	"github.com/unclebandit/outreach-backend/internal/model"
)

type SendingSettingsRepository struct {
	DB *sql.DB
}

// GetByWorkspace returns nil when the workspace never saved settings.
func (r *SendingSettingsRepository) GetByWorkspace(ctx context.Context, workspaceID string) (*model.SendingSettings, error) {
	query := `
        SELECT workspace_id, sending_days, start_hour, end_hour, timezone, daily_quota, ramp_up_enabled, updated_at
        FROM sending_settings
        WHERE workspace_id = $1`
	var s model.SendingSettings
	var days pq.Int64Array
	err := r.DB.QueryRowContext(ctx, query, workspaceID).Scan(
		&s.WorkspaceID, &days, &s.StartHour, &s.EndHour, &s.Timezone, &s.DailyQuota, &s.RampUpEnabled, &s.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	s.SendingDays = make([]int, len(days))
	for i, d := range days {
		s.SendingDays[i] = int(d)
	}
	return &s, nil
}

func (r *SendingSettingsRepository) Upsert(ctx context.Context, s *model.SendingSettings) error {
	now := time.Now().UTC()
	s.UpdatedAt = &now
	days := make(pq.Int64Array, len(s.SendingDays))
	for i, d := range s.SendingDays {
		days[i] = int64(d)
	}
	query := `
        INSERT INTO sending_settings
        (workspace_id, sending_days, start_hour, end_hour, timezone, daily_quota, ramp_up_enabled, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
        ON CONFLICT (workspace_id) DO UPDATE SET
            sending_days = EXCLUDED.sending_days,
            start_hour = EXCLUDED.start_hour,
            end_hour = EXCLUDED.end_hour,
            timezone = EXCLUDED.timezone,
            daily_quota = EXCLUDED.daily_quota,
            ramp_up_enabled = EXCLUDED.ramp_up_enabled,
            updated_at = EXCLUDED.updated_at`
	_, err := r.DB.ExecContext(ctx, query, s.WorkspaceID, days, s.StartHour, s.EndHour, s.Timezone, s.DailyQuota, s.RampUpEnabled, now)
	return err
}

var _ SendingSettingsRepositoryInterface = (*SendingSettingsRepository)(nil)
