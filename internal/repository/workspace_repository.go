package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/unclebandit/outreach-backend/internal/model"
)

type WorkspaceRepository struct {
	DB *sql.DB
}

func (r *WorkspaceRepository) Create(ctx context.Context, w *model.Workspace) error {
	if w.ID == "" {
		w.ID = uuid.NewString()
	}
	w.CreatedAt = time.Now().UTC()
	_, err := r.DB.ExecContext(ctx,
		`INSERT INTO workspaces (id, name, onboarding_complete, created_at) VALUES ($1, $2, $3, $4)`,
		w.ID, w.Name, w.OnboardingComplete, w.CreatedAt)
	return err
}

// GetByID returns nil for unknown workspaces.
func (r *WorkspaceRepository) GetByID(ctx context.Context, id string) (*model.Workspace, error) {
	var w model.Workspace
	err := r.DB.QueryRowContext(ctx,
		`SELECT id, name, onboarding_complete, created_at FROM workspaces WHERE id = $1`, id).
		Scan(&w.ID, &w.Name, &w.OnboardingComplete, &w.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &w, nil
}

// GetMailboxToken returns nil when no Gmail account is connected.
func (r *WorkspaceRepository) GetMailboxToken(ctx context.Context, workspaceID string) (*model.MailboxToken, error) {
	query := `
        SELECT workspace_id, email, is_valid, last_auth_error, last_sync_at, updated_at
        FROM gmail_tokens
        WHERE workspace_id = $1`
	var t model.MailboxToken
	err := r.DB.QueryRowContext(ctx, query, workspaceID).Scan(&t.WorkspaceID, &t.Email, &t.IsValid, &t.LastAuthError, &t.LastSyncAt, &t.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &t, nil
}

func (r *WorkspaceRepository) SaveMailboxToken(ctx context.Context, t *model.MailboxToken) error {
	now := time.Now().UTC()
	t.UpdatedAt = &now
	query := `
        INSERT INTO gmail_tokens (workspace_id, email, is_valid, last_auth_error, last_sync_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6)
        ON CONFLICT (workspace_id) DO UPDATE SET
            email = EXCLUDED.email,
            is_valid = EXCLUDED.is_valid,
            last_auth_error = EXCLUDED.last_auth_error,
            updated_at = EXCLUDED.updated_at`
	_, err := r.DB.ExecContext(ctx, query, t.WorkspaceID, t.Email, t.IsValid, t.LastAuthError, t.LastSyncAt, now)
	return err
}

func (r *WorkspaceRepository) ListWithValidMailbox(ctx context.Context) ([]string, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT workspace_id FROM gmail_tokens WHERE is_valid ORDER BY workspace_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *WorkspaceRepository) MarkTokenInvalid(ctx context.Context, workspaceID, reason string, now time.Time) error {
	_, err := r.DB.ExecContext(ctx,
		`UPDATE gmail_tokens SET is_valid = FALSE, last_auth_error = $2, updated_at = $3 WHERE workspace_id = $1`,
		workspaceID, reason, now.UTC())
	return err
}

func (r *WorkspaceRepository) TouchLastSync(ctx context.Context, workspaceID string, at time.Time) error {
	_, err := r.DB.ExecContext(ctx,
		`UPDATE gmail_tokens SET last_sync_at = $2 WHERE workspace_id = $1`, workspaceID, at.UTC())
	return err
}

var _ WorkspaceRepositoryInterface = (*WorkspaceRepository)(nil)
