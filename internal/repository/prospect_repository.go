package repository

import (
	"context"
	"database/sql"
	"strings"

	"github.com/google/uuid"

	appErrors "github.com/unclebandit/outreach-backend/internal/errors"
	"github.com/unclebandit/outreach-backend/internal/model"
)

// ProspectRepository is the concrete implementation
type ProspectRepository struct {
	DB *sql.DB
}

func (r *ProspectRepository) Create(ctx context.Context, p *model.Prospect) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.Status == "" {
		p.Status = model.ProspectActive
	}
	query := `
        INSERT INTO prospects (id, workspace_id, email, first_name, last_name, company, status)
        VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err := r.DB.ExecContext(ctx, query, p.ID, p.WorkspaceID, strings.ToLower(p.Email), p.FirstName, p.LastName, p.Company, p.Status)
	return err
}

// GetByID fetches a prospect by ID
func (r *ProspectRepository) GetByID(ctx context.Context, id string) (*model.Prospect, error) {
	query := `
        SELECT id, workspace_id, email, first_name, last_name, company, status
        FROM prospects
        WHERE id = $1`
	var p model.Prospect
	err := r.DB.QueryRowContext(ctx, query, id).Scan(&p.ID, &p.WorkspaceID, &p.Email, &p.FirstName, &p.LastName, &p.Company, &p.Status)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.NewNotFound("prospect", id)
		}
		return nil, err
	}
	return &p, nil
}

// FindByEmail returns nil when the workspace has no prospect with that address.
func (r *ProspectRepository) FindByEmail(ctx context.Context, workspaceID, email string) (*model.Prospect, error) {
	query := `
        SELECT id, workspace_id, email, first_name, last_name, company, status
        FROM prospects
        WHERE workspace_id = $1 AND email = $2`
	var p model.Prospect
	err := r.DB.QueryRowContext(ctx, query, workspaceID, strings.ToLower(strings.TrimSpace(email))).
		Scan(&p.ID, &p.WorkspaceID, &p.Email, &p.FirstName, &p.LastName, &p.Company, &p.Status)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &p, nil
}

func (r *ProspectRepository) UpdateStatus(ctx context.Context, id, status string) error {
	_, err := r.DB.ExecContext(ctx, `UPDATE prospects SET status = $1, updated_at = NOW() WHERE id = $2`, status, id)
	return err
}

// CountByStatusForCampaign counts the campaign's enrolled prospects per prospect status.
func (r *ProspectRepository) CountByStatusForCampaign(ctx context.Context, campaignID string) (map[string]int, error) {
	query := `
        SELECT p.status, COUNT(*)
        FROM prospects p
        JOIN campaign_prospects cp ON cp.prospect_id = p.id
        WHERE cp.campaign_id = $1
        GROUP BY p.status`
	rows, err := r.DB.QueryContext(ctx, query, campaignID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := map[string]int{}
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		counts[status] = count
	}
	return counts, rows.Err()
}

var _ ProspectRepositoryInterface = (*ProspectRepository)(nil)
