package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/unclebandit/outreach-backend/internal/model"
)

// OutcomeStats summarizes send outcomes of a campaign in a time window.
type OutcomeStats struct {
	Sent    int
	Failed  int
	Bounced int
}

// ScheduledEmailRepositoryInterface is the durable send queue.
// Every status change is conditional on the row still being pending.
type ScheduledEmailRepositoryInterface interface {
	// Enqueue returns the existing row together with a DuplicateIdempotencyKeyError
	// when a pending or sent row already owns the key.
	Enqueue(ctx context.Context, in model.ScheduledEmailInput) (*model.ScheduledEmail, error)
	GetByID(ctx context.Context, id string) (*model.ScheduledEmail, error)
	ListByCampaign(ctx context.Context, campaignID string) ([]*model.ScheduledEmail, error)

	ClaimDue(ctx context.Context, workspaceID string, now time.Time, limit int, claimToken string, ttl time.Duration) ([]*model.ScheduledEmail, error)
	ReleaseClaim(ctx context.Context, id, claimToken string) error
	ExtendClaim(ctx context.Context, id, claimToken string, until time.Time) (bool, error)
	WorkspacesWithDueWork(ctx context.Context, now time.Time) ([]string, error)

	// MarkSent and MarkFailed only touch rows still leased to claimToken.
	MarkSent(ctx context.Context, id, claimToken, messageID, threadID string, sentAt time.Time) (bool, error)
	MarkFailed(ctx context.Context, id, claimToken, lastError string, attempts int, nextRetryAt *time.Time) (bool, error)
	MarkCancelled(ctx context.Context, id string) (bool, error)

	CancelAllForProspect(ctx context.Context, prospectID string, statuses []string) (int, error)
	CancelAllForEnrollment(ctx context.Context, campaignProspectID string, statuses []string) (int, error)
	CancelAllForCampaign(ctx context.Context, campaignID string, statuses []string, releaseKeys bool) (int, error)
	ShiftPendingForCampaign(ctx context.Context, campaignID string, by time.Duration) (int, error)

	OutcomeStats(ctx context.Context, campaignID string, since time.Time, bounceKeywords []string) (OutcomeStats, error)
}

type SentEmailRepositoryInterface interface {
	Create(ctx context.Context, s *model.SentEmail) error
	CountForWorkspaceBetween(ctx context.Context, workspaceID string, from, to time.Time) (int, error)
	FindByThreadID(ctx context.Context, workspaceID, threadID string) (*model.SentEmail, error)
	LatestForEnrollment(ctx context.Context, campaignID, prospectID string) (*model.SentEmail, error)
	LatestForProspect(ctx context.Context, workspaceID, prospectID string) (*model.SentEmail, error)
}

type CampaignRepositoryInterface interface {
	Create(ctx context.Context, c *model.Campaign) error
	GetByID(ctx context.Context, id string) (*model.Campaign, error)
	// CompareAndSetStatus moves the campaign from one status to another and
	// maintains launched_at, paused_at, completed_at and auto_paused_reason.
	CompareAndSetStatus(ctx context.Context, id, from, to string, autoPauseReason *string, now time.Time) (bool, error)
}

type EnrollmentRepositoryInterface interface {
	Create(ctx context.Context, e *model.CampaignProspect) error
	GetByID(ctx context.Context, id string) (*model.CampaignProspect, error)
	GetByCampaignAndProspect(ctx context.Context, campaignID, prospectID string) (*model.CampaignProspect, error)
	ListByCampaign(ctx context.Context, campaignID string) ([]*model.CampaignProspect, error)
	CompareAndSetStatus(ctx context.Context, id, from, to string, now time.Time) (bool, error)
	AdvanceStep(ctx context.Context, id string, fromStep, toStep int, sentAt time.Time) (bool, error)
	StopActiveForProspect(ctx context.Context, prospectID string, now time.Time) (int, error)
	MarkReplied(ctx context.Context, campaignID, prospectID string, now time.Time) (int, error)
	CountActive(ctx context.Context, campaignID string) (int, error)
}

type ProspectRepositoryInterface interface {
	Create(ctx context.Context, p *model.Prospect) error
	GetByID(ctx context.Context, id string) (*model.Prospect, error)
	FindByEmail(ctx context.Context, workspaceID, email string) (*model.Prospect, error)
	UpdateStatus(ctx context.Context, id, status string) error
	CountByStatusForCampaign(ctx context.Context, campaignID string) (map[string]int, error)
}

type SequenceRepositoryInterface interface {
	AddStep(ctx context.Context, s *model.SequenceStep) error
	GetStep(ctx context.Context, sequenceID string, stepNumber int) (*model.SequenceStep, error)
	CountSteps(ctx context.Context, sequenceID string) (int, error)
}

type SendingSettingsRepositoryInterface interface {
	GetByWorkspace(ctx context.Context, workspaceID string) (*model.SendingSettings, error)
	Upsert(ctx context.Context, s *model.SendingSettings) error
}

type WorkspaceRepositoryInterface interface {
	Create(ctx context.Context, w *model.Workspace) error
	GetByID(ctx context.Context, id string) (*model.Workspace, error)
	GetMailboxToken(ctx context.Context, workspaceID string) (*model.MailboxToken, error)
	SaveMailboxToken(ctx context.Context, t *model.MailboxToken) error
	ListWithValidMailbox(ctx context.Context) ([]string, error)
	MarkTokenInvalid(ctx context.Context, workspaceID, reason string, now time.Time) error
	TouchLastSync(ctx context.Context, workspaceID string, at time.Time) error
}

type InboxRepositoryInterface interface {
	FindConversationByThread(ctx context.Context, workspaceID, threadID string) (*model.Conversation, error)
	GetConversation(ctx context.Context, id string) (*model.Conversation, error)
	UpsertConversation(ctx context.Context, c *model.Conversation) (*model.Conversation, error)
	// CreateMessage returns false when a message with the same external id exists.
	CreateMessage(ctx context.Context, m *model.InboxMessage) (bool, error)
	GetMessage(ctx context.Context, id string) (*model.InboxMessage, error)
	SetClassification(ctx context.Context, id string, classification *string) error
}

type AuditRepositoryInterface interface {
	Create(ctx context.Context, a *model.AuditLog) error
}

type NotificationRepositoryInterface interface {
	Create(ctx context.Context, n *model.Notification) error
}

// Repositories bundles one implementation of every repository.
type Repositories struct {
	ScheduledEmails ScheduledEmailRepositoryInterface
	SentEmails      SentEmailRepositoryInterface
	Campaigns       CampaignRepositoryInterface
	Enrollments     EnrollmentRepositoryInterface
	Prospects       ProspectRepositoryInterface
	Sequences       SequenceRepositoryInterface
	SendingSettings SendingSettingsRepositoryInterface
	Workspaces      WorkspaceRepositoryInterface
	Inbox           InboxRepositoryInterface
	Audit           AuditRepositoryInterface
	Notifications   NotificationRepositoryInterface
}

// NewPostgresRepositories wires every repository to db.
func NewPostgresRepositories(db *sql.DB) *Repositories {
	return &Repositories{
		ScheduledEmails: &ScheduledEmailRepository{DB: db},
		SentEmails:      &SentEmailRepository{DB: db},
		Campaigns:       &CampaignRepository{DB: db},
		Enrollments:     &EnrollmentRepository{DB: db},
		Prospects:       &ProspectRepository{DB: db},
		Sequences:       &SequenceRepository{DB: db},
		SendingSettings: &SendingSettingsRepository{DB: db},
		Workspaces:      &WorkspaceRepository{DB: db},
		Inbox:           &InboxRepository{DB: db},
		Audit:           &AuditRepository{DB: db},
		Notifications:   &NotificationRepository{DB: db},
	}
}
