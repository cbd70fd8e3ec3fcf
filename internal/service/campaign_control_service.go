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

// User actions on campaigns and enrollments.
const (
	ActionPause  = "pause"
	ActionResume = "resume"
	ActionStop   = "stop"
)

// ValidTransitions lists, per campaign status, the actions a user may take
// and the status each one leads to. COMPLETED is reached by the dispatcher only.
var ValidTransitions = map[string]map[string]string{
	model.CampaignDraft:     {},
	model.CampaignRunning:   {ActionPause: model.CampaignPaused, ActionStop: model.CampaignStopped},
	model.CampaignPaused:    {ActionResume: model.CampaignRunning, ActionStop: model.CampaignStopped},
	model.CampaignCompleted: {},
	model.CampaignStopped:   {},
}

// ValidProspectTransitions lists the actions allowed per enrollment status.
var ValidProspectTransitions = map[string][]string{
	model.EnrollmentEnrolled:  {ActionPause, ActionStop},
	model.EnrollmentPaused:    {ActionResume, ActionStop},
	model.EnrollmentCompleted: {},
	model.EnrollmentStopped:   {},
	model.EnrollmentReplied:   {},
}

var prospectActionTargets = map[string]string{
	ActionPause:  model.EnrollmentPaused,
	ActionResume: model.EnrollmentEnrolled,
	ActionStop:   model.EnrollmentStopped,
}

type CampaignStatusResult struct {
	Campaign        *model.Campaign `json:"campaign"`
	EmailsCancelled int             `json:"emailsCancelled,omitempty"`
	EmailsShifted   int             `json:"emailsShifted,omitempty"`
}

type ProspectStatusResult struct {
	Enrollment      *model.CampaignProspect `json:"enrollment"`
	EmailsCancelled int                     `json:"emailsCancelled,omitempty"`
}

type LaunchResult struct {
	Campaign        *model.Campaign `json:"campaign"`
	EmailsScheduled int             `json:"emailsScheduled"`
}

// CampaignControlService drives the campaign and enrollment state machines.
// Every transition is a compare-and-set on the current status.
type CampaignControlService struct {
	Campaigns   repository.CampaignRepositoryInterface
	Enrollments repository.EnrollmentRepositoryInterface
	Emails      repository.ScheduledEmailRepositoryInterface
	Sequences   repository.SequenceRepositoryInterface
	Audit       repository.AuditRepositoryInterface
	Guardrail   *GuardrailService
	Scheduler   *SequenceScheduler
	Now         func() time.Time
}

func (s *CampaignControlService) UpdateCampaignStatus(ctx context.Context, campaignID, action string, acknowledgeRisk bool) (*CampaignStatusResult, error) {
	c, err := s.Campaigns.GetByID(ctx, campaignID)
	if err != nil {
		return nil, err
	}

	target, ok := ValidTransitions[c.Status][action]
	if !ok {
		return nil, appErrors.NewInvalidTransition("campaign", action, c.Status)
	}
	resumingAutoPause := action == ActionResume && c.AutoPausedReason != nil
	if resumingAutoPause && !acknowledgeRisk {
		return nil, appErrors.NewAcknowledgmentRequired(c.ID, *c.AutoPausedReason)
	}

	now := nowOr(s.Now).UTC()
	swapped, err := s.Campaigns.CompareAndSetStatus(ctx, c.ID, c.Status, target, nil, now)
	if err != nil {
		return nil, err
	}
	if !swapped {
		return nil, s.staleCampaign(ctx, c.ID, action)
	}

	res := &CampaignStatusResult{}
	switch action {
	case ActionStop:
		res.EmailsCancelled, err = s.Emails.CancelAllForCampaign(ctx, c.ID, model.PendingEmailStatuses, true)
		if err != nil {
			return nil, fmt.Errorf("cancel campaign emails: %w", err)
		}
	case ActionResume:
		if c.PausedAt != nil {
			res.EmailsShifted, err = s.Emails.ShiftPendingForCampaign(ctx, c.ID, now.Sub(*c.PausedAt))
			if err != nil {
				return nil, fmt.Errorf("shift campaign emails: %w", err)
			}
		}
	}

	audit(ctx, s.Audit, c.WorkspaceID, "campaign", c.ID, model.AuditCampaignStatusChanged, map[string]any{
		"action": action,
		"from":   c.Status,
		"to":     target,
	})
	if resumingAutoPause {
		audit(ctx, s.Audit, c.WorkspaceID, "campaign", c.ID, model.AuditCampaignResumedAfterAutoPause, map[string]any{
			"autoPausedReason": *c.AutoPausedReason,
		})
	}
	log.Printf("✅ Campaign %s: %s -> %s", c.ID, c.Status, target)

	res.Campaign, err = s.Campaigns.GetByID(ctx, c.ID)
	return res, err
}

// staleCampaign reports a lost compare-and-set against the status now stored.
func (s *CampaignControlService) staleCampaign(ctx context.Context, id, action string) error {
	current, err := s.Campaigns.GetByID(ctx, id)
	if err != nil {
		return err
	}
	return appErrors.NewInvalidTransition("campaign", action, current.Status)
}

func (s *CampaignControlService) UpdateProspectStatus(ctx context.Context, campaignID, prospectID, action string) (*ProspectStatusResult, error) {
	e, err := s.Enrollments.GetByCampaignAndProspect(ctx, campaignID, prospectID)
	if err != nil {
		return nil, err
	}

	if !allowsAction(ValidProspectTransitions[e.EnrollmentStatus], action) {
		return nil, appErrors.NewInvalidTransition("prospect", action, e.EnrollmentStatus)
	}
	target := prospectActionTargets[action]

	swapped, err := s.Enrollments.CompareAndSetStatus(ctx, e.ID, e.EnrollmentStatus, target, nowOr(s.Now))
	if err != nil {
		return nil, err
	}
	if !swapped {
		current, err := s.Enrollments.GetByID(ctx, e.ID)
		if err != nil {
			return nil, err
		}
		return nil, appErrors.NewInvalidTransition("prospect", action, current.EnrollmentStatus)
	}

	res := &ProspectStatusResult{}
	if action == ActionStop {
		res.EmailsCancelled, err = s.Emails.CancelAllForEnrollment(ctx, e.ID, model.PendingEmailStatuses)
		if err != nil {
			return nil, fmt.Errorf("cancel enrollment emails: %w", err)
		}
	}

	audit(ctx, s.Audit, e.WorkspaceID, "enrollment", e.ID, model.AuditEnrollmentStatusChanged, map[string]any{
		"action":     action,
		"from":       e.EnrollmentStatus,
		"to":         target,
		"campaignId": campaignID,
	})

	res.Enrollment, err = s.Enrollments.GetByID(ctx, e.ID)
	return res, err
}

func allowsAction(actions []string, action string) bool {
	for _, a := range actions {
		if a == action {
			return true
		}
	}
	return false
}

// LaunchCampaign moves a DRAFT campaign to RUNNING and enqueues step 1 for
// every active enrollment. A full quota does not block a launch; the rows
// simply wait for the next day.
func (s *CampaignControlService) LaunchCampaign(ctx context.Context, campaignID string) (*LaunchResult, error) {
	c, err := s.Campaigns.GetByID(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	if c.Status != model.CampaignDraft {
		return nil, appErrors.NewInvalidTransition("campaign", "launch", c.Status)
	}

	steps, err := s.Sequences.CountSteps(ctx, c.SequenceID)
	if err != nil {
		return nil, err
	}
	if steps == 0 {
		return nil, appErrors.NewValidationError("sequenceId", "the sequence has no steps")
	}

	enrollments, err := s.Enrollments.ListByCampaign(ctx, c.ID)
	if err != nil {
		return nil, err
	}
	active := make([]*model.CampaignProspect, 0, len(enrollments))
	for _, e := range enrollments {
		if e.EnrollmentStatus == model.EnrollmentEnrolled {
			active = append(active, e)
		}
	}
	if len(active) == 0 {
		return nil, appErrors.NewValidationError("prospects", "the campaign has no enrolled prospects")
	}

	check, err := s.Guardrail.CheckCanSend(ctx, c.WorkspaceID)
	if err != nil {
		return nil, err
	}
	if !check.CanSend && check.Code != CodeQuotaExceeded {
		return nil, appErrors.NewBlocked(check.Code, check.BlockedReason)
	}

	now := nowOr(s.Now).UTC()
	swapped, err := s.Campaigns.CompareAndSetStatus(ctx, c.ID, model.CampaignDraft, model.CampaignRunning, nil, now)
	if err != nil {
		return nil, err
	}
	if !swapped {
		return nil, s.staleCampaign(ctx, c.ID, "launch")
	}
	c.Status = model.CampaignRunning
	c.LaunchedAt = &now

	res := &LaunchResult{}
	for _, e := range active {
		_, created, err := s.Scheduler.ScheduleStep(ctx, c, e, 1, now)
		if err != nil {
			log.Printf("⚠️ Failed to schedule step 1 for enrollment %s: %v", e.ID, err)
			continue
		}
		if created {
			res.EmailsScheduled++
		}
	}

	audit(ctx, s.Audit, c.WorkspaceID, "campaign", c.ID, model.AuditCampaignLaunched, map[string]any{
		"enrollments":     len(active),
		"emailsScheduled": res.EmailsScheduled,
	})
	log.Printf("🚀 Campaign %s launched: %d emails scheduled", c.ID, res.EmailsScheduled)

	res.Campaign, err = s.Campaigns.GetByID(ctx, c.ID)
	return res, err
}
