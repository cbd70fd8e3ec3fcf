package repository

import (
	"context"
	"database/sql"

	"github.com/google/uuid"

	appErrors "github.com/unclebandit/outreach-backend/internal/errors"
	"github.com/unclebandit/outreach-backend/internal/model"
)

type InboxRepository struct {
	DB *sql.DB
}

const conversationColumns = `id, workspace_id, thread_id, prospect_id, campaign_id, last_message_at`

func scanConversation(row rowScanner) (*model.Conversation, error) {
	var c model.Conversation
	if err := row.Scan(&c.ID, &c.WorkspaceID, &c.ThreadID, &c.ProspectID, &c.CampaignID, &c.LastMessageAt); err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *InboxRepository) FindConversationByThread(ctx context.Context, workspaceID, threadID string) (*model.Conversation, error) {
	query := `SELECT ` + conversationColumns + ` FROM conversations WHERE workspace_id = $1 AND thread_id = $2`
	c, err := scanConversation(r.DB.QueryRowContext(ctx, query, workspaceID, threadID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return c, err
}

func (r *InboxRepository) GetConversation(ctx context.Context, id string) (*model.Conversation, error) {
	query := `SELECT ` + conversationColumns + ` FROM conversations WHERE id = $1`
	c, err := scanConversation(r.DB.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, appErrors.NewNotFound("conversation", id)
	}
	return c, err
}

// UpsertConversation keys conversations by (workspace, thread) and keeps the
// latest activity timestamp.
func (r *InboxRepository) UpsertConversation(ctx context.Context, c *model.Conversation) (*model.Conversation, error) {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	query := `
        INSERT INTO conversations (id, workspace_id, thread_id, prospect_id, campaign_id, last_message_at)
        VALUES ($1, $2, $3, $4, $5, $6)
        ON CONFLICT (workspace_id, thread_id) DO UPDATE SET
            last_message_at = GREATEST(conversations.last_message_at, EXCLUDED.last_message_at),
            campaign_id = COALESCE(conversations.campaign_id, EXCLUDED.campaign_id)
        RETURNING ` + conversationColumns
	return scanConversation(r.DB.QueryRowContext(ctx, query, c.ID, c.WorkspaceID, c.ThreadID, c.ProspectID, c.CampaignID, c.LastMessageAt.UTC()))
}

func (r *InboxRepository) CreateMessage(ctx context.Context, m *model.InboxMessage) (bool, error) {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	query := `
        INSERT INTO inbox_messages
        (id, conversation_id, external_id, direction, from_address, subject, body, classification, received_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
        ON CONFLICT (external_id) DO NOTHING`
	return execAffected(ctx, r.DB, query, m.ID, m.ConversationID, m.ExternalID, m.Direction, m.FromAddress,
		m.Subject, m.Body, m.Classification, m.ReceivedAt.UTC())
}

func (r *InboxRepository) GetMessage(ctx context.Context, id string) (*model.InboxMessage, error) {
	query := `
        SELECT id, conversation_id, external_id, direction, from_address, subject, body, classification, received_at
        FROM inbox_messages WHERE id = $1`
	var m model.InboxMessage
	err := r.DB.QueryRowContext(ctx, query, id).Scan(&m.ID, &m.ConversationID, &m.ExternalID, &m.Direction,
		&m.FromAddress, &m.Subject, &m.Body, &m.Classification, &m.ReceivedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.NewNotFound("inbox message", id)
		}
		return nil, err
	}
	return &m, nil
}

func (r *InboxRepository) SetClassification(ctx context.Context, id string, classification *string) error {
	_, err := r.DB.ExecContext(ctx, `UPDATE inbox_messages SET classification = $2 WHERE id = $1`, id, classification)
	return err
}

var _ InboxRepositoryInterface = (*InboxRepository)(nil)
