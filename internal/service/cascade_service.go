package service

import (
	"context"
	"fmt"
	"log"
	"time"

	appErrors "github.com/unclebandit/outreach-backend/internal/errors"
	"github.com/unclebandit/outreach-backend/internal/model"
	"github.com/unclebandit/outreach-backend/internal/repository"
)

// Cascade triggers.
const (
	CascadeUnsubscribe = "UNSUBSCRIBE"
	CascadeBounce      = "BOUNCE"
	CascadeComplaint   = "COMPLAINT"
	CascadeReply       = "REPLY"
	CascadeStop        = "STOP"
)

// prospectCascades maps a prospect-level trigger to the resulting prospect
// status and audit action. STOP leaves the prospect status alone.
var prospectCascades = map[string]struct {
	status string
	action string
}{
	CascadeUnsubscribe: {model.ProspectUnsubscribed, model.AuditProspectUnsubscribed},
	CascadeBounce:      {model.ProspectBounced, model.AuditProspectBounced},
	CascadeComplaint:   {model.ProspectComplained, model.AuditProspectComplained},
	CascadeStop:        {"", model.AuditEnrollmentStatusChanged},
}

// CascadeTarget names the prospect affected. CampaignID is required for REPLY.
type CascadeTarget struct {
	WorkspaceID string
	ProspectID  string
	CampaignID  string
}

type CascadeSummary struct {
	ProspectID         string `json:"prospectId"`
	Reason             string `json:"reason"`
	ProspectStatus     string `json:"prospectStatus,omitempty"`
	EnrollmentsUpdated int    `json:"enrollmentsUpdated"`
	EmailsCancelled    int    `json:"emailsCancelled"`
}

// CascadeService applies the side effects of an external signal on a
// prospect. It is shared by HTTP handlers and inbox sync.
type CascadeService struct {
	Prospects   repository.ProspectRepositoryInterface
	Enrollments repository.EnrollmentRepositoryInterface
	Emails      repository.ScheduledEmailRepositoryInterface
	Audit       repository.AuditRepositoryInterface
	Now         func() time.Time
}

func (s *CascadeService) Cascade(ctx context.Context, target CascadeTarget, reason string) (*CascadeSummary, error) {
	if target.ProspectID == "" {
		return nil, appErrors.NewValidationError("prospectId", "prospect id is required")
	}
	if reason == CascadeReply {
		return s.reply(ctx, target)
	}

	effect, ok := prospectCascades[reason]
	if !ok {
		return nil, appErrors.NewValidationError("reason", fmt.Sprintf("unknown cascade reason %q", reason))
	}

	now := nowOr(s.Now)
	summary := &CascadeSummary{ProspectID: target.ProspectID, Reason: reason}

	// A repeated signal only finishes what an earlier, interrupted run left.
	changed := true
	if effect.status != "" {
		prospect, err := s.Prospects.GetByID(ctx, target.ProspectID)
		if err != nil {
			return nil, fmt.Errorf("load prospect: %w", err)
		}
		changed = prospect.Status != effect.status
		if changed {
			if err := s.Prospects.UpdateStatus(ctx, target.ProspectID, effect.status); err != nil {
				return nil, fmt.Errorf("update prospect status: %w", err)
			}
		}
		summary.ProspectStatus = effect.status
	}

	stopped, err := s.Enrollments.StopActiveForProspect(ctx, target.ProspectID, now)
	if err != nil {
		return nil, fmt.Errorf("stop enrollments: %w", err)
	}
	summary.EnrollmentsUpdated = stopped

	cancelled, err := s.Emails.CancelAllForProspect(ctx, target.ProspectID, model.PendingEmailStatuses)
	if err != nil {
		return nil, fmt.Errorf("cancel scheduled emails: %w", err)
	}
	summary.EmailsCancelled = cancelled

	if !changed && stopped == 0 && cancelled == 0 {
		return summary, nil
	}
	audit(ctx, s.Audit, target.WorkspaceID, "prospect", target.ProspectID, effect.action, map[string]any{
		"reason":             reason,
		"enrollmentsStopped": stopped,
		"emailsCancelled":    cancelled,
	})
	log.Printf("🛑 %s cascade for prospect %s: %d enrollments stopped, %d emails cancelled", reason, target.ProspectID, stopped, cancelled)
	return summary, nil
}

// reply moves the prospect's active enrollments in one campaign to REPLIED.
// Pending rows stay; the dispatcher cancels them when it sees the enrollment.
func (s *CascadeService) reply(ctx context.Context, target CascadeTarget) (*CascadeSummary, error) {
	if target.CampaignID == "" {
		return nil, appErrors.NewValidationError("campaignId", "campaign id is required for a reply")
	}
	n, err := s.Enrollments.MarkReplied(ctx, target.CampaignID, target.ProspectID, nowOr(s.Now))
	if err != nil {
		return nil, fmt.Errorf("mark enrollments replied: %w", err)
	}
	if n > 0 {
		audit(ctx, s.Audit, target.WorkspaceID, "prospect", target.ProspectID, model.AuditProspectReplied, map[string]any{
			"campaignId": target.CampaignID,
		})
		log.Printf("💬 Prospect %s replied to campaign %s", target.ProspectID, target.CampaignID)
	}
	return &CascadeSummary{ProspectID: target.ProspectID, Reason: CascadeReply, EnrollmentsUpdated: n}, nil
}
