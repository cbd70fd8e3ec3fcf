package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	appErrors "github.com/unclebandit/outreach-backend/internal/errors"
	"github.com/unclebandit/outreach-backend/internal/model"
)

type CampaignRepository struct {
	DB *sql.DB
}

const campaignColumns = `id, workspace_id, name, sequence_id, status, launched_at, paused_at,
    auto_paused_reason, completed_at, created_at, updated_at`

// ====================== Campaign CRUD ======================

func (r *CampaignRepository) Create(ctx context.Context, c *model.Campaign) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.Status == "" {
		c.Status = model.CampaignDraft
	}
	c.CreatedAt = time.Now().UTC()
	query := `
        INSERT INTO campaigns (id, workspace_id, name, sequence_id, status, created_at)
        VALUES ($1, $2, $3, $4, $5, $6)`
	_, err := r.DB.ExecContext(ctx, query, c.ID, c.WorkspaceID, c.Name, c.SequenceID, c.Status, c.CreatedAt)
	return err
}

func (r *CampaignRepository) GetByID(ctx context.Context, id string) (*model.Campaign, error) {
	query := `SELECT ` + campaignColumns + ` FROM campaigns WHERE id = $1`
	var c model.Campaign
	err := r.DB.QueryRowContext(ctx, query, id).Scan(
		&c.ID, &c.WorkspaceID, &c.Name, &c.SequenceID, &c.Status, &c.LaunchedAt, &c.PausedAt,
		&c.AutoPausedReason, &c.CompletedAt, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.NewCampaignNotFound(id)
		}
		return nil, err
	}
	return &c, nil
}

// ====================== Status transitions ======================

func (r *CampaignRepository) CompareAndSetStatus(ctx context.Context, id, from, to string, autoPauseReason *string, now time.Time) (bool, error) {
	query := `
        UPDATE campaigns
        SET status = $3::text,
            launched_at = CASE WHEN $3::text = 'RUNNING' AND launched_at IS NULL THEN $5::timestamptz ELSE launched_at END,
            paused_at = CASE WHEN $3::text = 'PAUSED' THEN $5::timestamptz ELSE NULL END,
            completed_at = CASE WHEN $3::text IN ('COMPLETED', 'STOPPED') THEN $5::timestamptz ELSE completed_at END,
            auto_paused_reason = $4,
            updated_at = $5::timestamptz
        WHERE id = $1 AND status = $2`
	return execAffected(ctx, r.DB, query, id, from, to, autoPauseReason, now.UTC())
}

var _ CampaignRepositoryInterface = (*CampaignRepository)(nil)
