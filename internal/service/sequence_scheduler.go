package service

import (
	"context"
	"fmt"
	"time"

	appErrors "github.com/unclebandit/outreach-backend/internal/errors"
	"github.com/unclebandit/outreach-backend/internal/model"
	"github.com/unclebandit/outreach-backend/internal/repository"
	"github.com/unclebandit/outreach-backend/internal/scheduling"
)

// SequenceScheduler enqueues sequence steps into the send queue.
type SequenceScheduler struct {
	Emails    repository.ScheduledEmailRepositoryInterface
	Sequences repository.SequenceRepositoryInterface
	Evaluator *scheduling.Evaluator
}

// ScheduleStep enqueues stepNumber for an enrollment at the first sending slot
// after from plus the step delay. It returns (nil, false) when the sequence has
// no such step, and the existing row with created=false for a duplicate key.
func (s *SequenceScheduler) ScheduleStep(ctx context.Context, c *model.Campaign, e *model.CampaignProspect, stepNumber int, from time.Time) (*model.ScheduledEmail, bool, error) {
	step, err := s.Sequences.GetStep(ctx, c.SequenceID, stepNumber)
	if err != nil {
		return nil, false, fmt.Errorf("load step %d: %w", stepNumber, err)
	}
	if step == nil {
		return nil, false, nil
	}

	settings, err := s.Evaluator.SettingsFor(ctx, c.WorkspaceID)
	if err != nil {
		return nil, false, err
	}
	due := from.Add(time.Duration(step.DelayDays) * 24 * time.Hour)

	row, err := s.Emails.Enqueue(ctx, model.ScheduledEmailInput{
		WorkspaceID:        c.WorkspaceID,
		CampaignID:         c.ID,
		CampaignProspectID: e.ID,
		ProspectID:         e.ProspectID,
		SequenceID:         c.SequenceID,
		StepNumber:         stepNumber,
		ScheduledFor:       scheduling.NextSendingSlot(settings, due),
	})
	if appErrors.IsDuplicateKey(err) {
		return row, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return row, true, nil
}
