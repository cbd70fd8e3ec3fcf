package service

import (
	"context"
	"log"
	"time"

	"github.com/unclebandit/outreach-backend/internal/model"
	"github.com/unclebandit/outreach-backend/internal/queue"
	"github.com/unclebandit/outreach-backend/internal/repository"
)

// Notifier persists notifications and fans them out on the notifications topic.
type Notifier struct {
	Repo  repository.NotificationRepositoryInterface
	Queue queue.Queue
}

func (n *Notifier) Notify(ctx context.Context, workspaceID string, campaignID *string, level, title, message string) error {
	note := &model.Notification{
		WorkspaceID: workspaceID,
		CampaignID:  campaignID,
		Level:       level,
		Title:       title,
		Message:     message,
		CreatedAt:   time.Now().UTC(),
	}
	if err := n.Repo.Create(ctx, note); err != nil {
		return err
	}
	if n.Queue != nil {
		if err := n.Queue.Publish(queue.TopicNotifications, note); err != nil {
			log.Println("⚠️ Failed to publish notification:", err)
		}
	}
	return nil
}

// audit writes an audit entry; failures are logged and never block the caller.
func audit(ctx context.Context, repo repository.AuditRepositoryInterface, workspaceID, entityType, entityID, action string, metadata map[string]any) {
	if repo == nil {
		return
	}
	entry := &model.AuditLog{
		WorkspaceID: workspaceID,
		EntityType:  entityType,
		EntityID:    entityID,
		Action:      action,
		Metadata:    metadata,
		CreatedAt:   time.Now().UTC(),
	}
	if err := repo.Create(ctx, entry); err != nil {
		log.Printf("⚠️ Failed to write audit %s for %s %s: %v", action, entityType, entityID, err)
	}
}

func nowOr(now func() time.Time) time.Time {
	if now != nil {
		return now()
	}
	return time.Now()
}
