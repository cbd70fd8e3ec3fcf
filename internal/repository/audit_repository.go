package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/unclebandit/outreach-backend/internal/model"
)

type AuditRepository struct {
	DB *sql.DB
}

func (r *AuditRepository) Create(ctx context.Context, a *model.AuditLog) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	metadata, err := json.Marshal(a.Metadata)
	if err != nil {
		return err
	}
	query := `
        INSERT INTO audit_logs (id, workspace_id, entity_type, entity_id, action, metadata, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err = r.DB.ExecContext(ctx, query, a.ID, a.WorkspaceID, a.EntityType, a.EntityID, a.Action, metadata, a.CreatedAt)
	return err
}

type NotificationRepository struct {
	DB *sql.DB
}

func (r *NotificationRepository) Create(ctx context.Context, n *model.Notification) error {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	query := `
        INSERT INTO notifications (id, workspace_id, campaign_id, level, title, message, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err := r.DB.ExecContext(ctx, query, n.ID, n.WorkspaceID, n.CampaignID, n.Level, n.Title, n.Message, n.CreatedAt)
	return err
}

var (
	_ AuditRepositoryInterface        = (*AuditRepository)(nil)
	_ NotificationRepositoryInterface = (*NotificationRepository)(nil)
)
