package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/unclebandit/outreach-backend/internal/model"
)

type SentEmailRepository struct {
	DB *sql.DB
}

const sentEmailColumns = `id, workspace_id, campaign_id, prospect_id, scheduled_email_id, step_number,
    message_id, thread_id, subject, sent_at`

func scanSentEmail(row rowScanner) (*model.SentEmail, error) {
	var s model.SentEmail
	err := row.Scan(&s.ID, &s.WorkspaceID, &s.CampaignID, &s.ProspectID, &s.ScheduledEmailID, &s.StepNumber,
		&s.MessageID, &s.ThreadID, &s.Subject, &s.SentAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &s, nil
}

// Create is a no-op when the scheduled email already has its record.
func (r *SentEmailRepository) Create(ctx context.Context, s *model.SentEmail) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	query := `
        INSERT INTO sent_emails
        (id, workspace_id, campaign_id, prospect_id, scheduled_email_id, step_number, message_id, thread_id, subject, sent_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
        ON CONFLICT (scheduled_email_id) DO NOTHING`
	_, err := r.DB.ExecContext(ctx, query, s.ID, s.WorkspaceID, s.CampaignID, s.ProspectID, s.ScheduledEmailID,
		s.StepNumber, s.MessageID, s.ThreadID, s.Subject, s.SentAt.UTC())
	return err
}

func (r *SentEmailRepository) CountForWorkspaceBetween(ctx context.Context, workspaceID string, from, to time.Time) (int, error) {
	var n int
	err := r.DB.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sent_emails WHERE workspace_id = $1 AND sent_at >= $2 AND sent_at < $3`,
		workspaceID, from.UTC(), to.UTC()).Scan(&n)
	return n, err
}

func (r *SentEmailRepository) FindByThreadID(ctx context.Context, workspaceID, threadID string) (*model.SentEmail, error) {
	query := `SELECT ` + sentEmailColumns + `
        FROM sent_emails WHERE workspace_id = $1 AND thread_id = $2
        ORDER BY sent_at DESC LIMIT 1`
	return scanSentEmail(r.DB.QueryRowContext(ctx, query, workspaceID, threadID))
}

func (r *SentEmailRepository) LatestForEnrollment(ctx context.Context, campaignID, prospectID string) (*model.SentEmail, error) {
	query := `SELECT ` + sentEmailColumns + `
        FROM sent_emails WHERE campaign_id = $1 AND prospect_id = $2
        ORDER BY sent_at DESC LIMIT 1`
	return scanSentEmail(r.DB.QueryRowContext(ctx, query, campaignID, prospectID))
}

func (r *SentEmailRepository) LatestForProspect(ctx context.Context, workspaceID, prospectID string) (*model.SentEmail, error) {
	query := `SELECT ` + sentEmailColumns + `
        FROM sent_emails WHERE workspace_id = $1 AND prospect_id = $2
        ORDER BY sent_at DESC LIMIT 1`
	return scanSentEmail(r.DB.QueryRowContext(ctx, query, workspaceID, prospectID))
}

var _ SentEmailRepositoryInterface = (*SentEmailRepository)(nil)
