package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	appErrors "github.com/unclebandit/outreach-backend/internal/errors"
	"github.com/unclebandit/outreach-backend/internal/model"
)

type EnrollmentRepository struct {
	DB *sql.DB
}

const enrollmentColumns = `id, campaign_id, prospect_id, workspace_id, enrollment_status, current_step,
    paused_at, last_sent_at, created_at, updated_at`

func scanEnrollment(row rowScanner) (*model.CampaignProspect, error) {
	var e model.CampaignProspect
	err := row.Scan(&e.ID, &e.CampaignID, &e.ProspectID, &e.WorkspaceID, &e.EnrollmentStatus, &e.CurrentStep,
		&e.PausedAt, &e.LastSentAt, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (r *EnrollmentRepository) Create(ctx context.Context, e *model.CampaignProspect) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.EnrollmentStatus == "" {
		e.EnrollmentStatus = model.EnrollmentEnrolled
	}
	e.CreatedAt = time.Now().UTC()
	query := `
        INSERT INTO campaign_prospects (id, campaign_id, prospect_id, workspace_id, enrollment_status, current_step, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err := r.DB.ExecContext(ctx, query, e.ID, e.CampaignID, e.ProspectID, e.WorkspaceID, e.EnrollmentStatus, e.CurrentStep, e.CreatedAt)
	return err
}

func (r *EnrollmentRepository) GetByID(ctx context.Context, id string) (*model.CampaignProspect, error) {
	query := `SELECT ` + enrollmentColumns + ` FROM campaign_prospects WHERE id = $1`
	e, err := scanEnrollment(r.DB.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.NewNotFound("enrollment", id)
		}
		return nil, err
	}
	return e, nil
}

func (r *EnrollmentRepository) GetByCampaignAndProspect(ctx context.Context, campaignID, prospectID string) (*model.CampaignProspect, error) {
	query := `SELECT ` + enrollmentColumns + ` FROM campaign_prospects WHERE campaign_id = $1 AND prospect_id = $2`
	e, err := scanEnrollment(r.DB.QueryRowContext(ctx, query, campaignID, prospectID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.NewNotFound("enrollment", campaignID+"/"+prospectID)
		}
		return nil, err
	}
	return e, nil
}

func (r *EnrollmentRepository) ListByCampaign(ctx context.Context, campaignID string) ([]*model.CampaignProspect, error) {
	query := `SELECT ` + enrollmentColumns + ` FROM campaign_prospects WHERE campaign_id = $1 ORDER BY created_at, id`
	rows, err := r.DB.QueryContext(ctx, query, campaignID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	enrollments := []*model.CampaignProspect{}
	for rows.Next() {
		e, err := scanEnrollment(rows)
		if err != nil {
			return nil, err
		}
		enrollments = append(enrollments, e)
	}
	return enrollments, rows.Err()
}

func (r *EnrollmentRepository) CompareAndSetStatus(ctx context.Context, id, from, to string, now time.Time) (bool, error) {
	query := `
        UPDATE campaign_prospects
        SET enrollment_status = $3::text,
            paused_at = CASE WHEN $3::text = 'PAUSED' THEN $4::timestamptz ELSE NULL END,
            updated_at = $4::timestamptz
        WHERE id = $1 AND enrollment_status = $2`
	return execAffected(ctx, r.DB, query, id, from, to, now.UTC())
}

func (r *EnrollmentRepository) AdvanceStep(ctx context.Context, id string, fromStep, toStep int, sentAt time.Time) (bool, error) {
	query := `
        UPDATE campaign_prospects
        SET current_step = $3, last_sent_at = $4, updated_at = $4
        WHERE id = $1 AND current_step = $2`
	return execAffected(ctx, r.DB, query, id, fromStep, toStep, sentAt.UTC())
}

// StopActiveForProspect stops every enrollment of the prospect that is not already terminal.
func (r *EnrollmentRepository) StopActiveForProspect(ctx context.Context, prospectID string, now time.Time) (int, error) {
	query := `
        UPDATE campaign_prospects
        SET enrollment_status = 'STOPPED', paused_at = NULL, updated_at = $2
        WHERE prospect_id = $1 AND enrollment_status IN ('ENROLLED', 'PAUSED', 'REPLIED')`
	return execCount(ctx, r.DB, query, prospectID, now.UTC())
}

func (r *EnrollmentRepository) MarkReplied(ctx context.Context, campaignID, prospectID string, now time.Time) (int, error) {
	query := `
        UPDATE campaign_prospects
        SET enrollment_status = 'REPLIED', paused_at = NULL, updated_at = $3
        WHERE campaign_id = $1 AND prospect_id = $2 AND enrollment_status IN ('ENROLLED', 'PAUSED')`
	return execCount(ctx, r.DB, query, campaignID, prospectID, now.UTC())
}

func (r *EnrollmentRepository) CountActive(ctx context.Context, campaignID string) (int, error) {
	var n int
	err := r.DB.QueryRowContext(ctx, `
        SELECT COUNT(*) FROM campaign_prospects
        WHERE campaign_id = $1 AND enrollment_status IN ('ENROLLED', 'PAUSED')`, campaignID).Scan(&n)
	return n, err
}

var _ EnrollmentRepositoryInterface = (*EnrollmentRepository)(nil)
