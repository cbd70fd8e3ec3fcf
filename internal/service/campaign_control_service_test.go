package service_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/unclebandit/outreach-backend/internal/errors"
	"github.com/unclebandit/outreach-backend/internal/idempotency"
	"github.com/unclebandit/outreach-backend/internal/model"
	"github.com/unclebandit/outreach-backend/internal/service"
)

func TestValidProspectTransitions(t *testing.T) {
	assert.Equal(t, []string{"pause", "stop"}, service.ValidProspectTransitions[model.EnrollmentEnrolled])
	assert.Equal(t, []string{"resume", "stop"}, service.ValidProspectTransitions[model.EnrollmentPaused])
	assert.Empty(t, service.ValidProspectTransitions[model.EnrollmentCompleted])
	assert.Empty(t, service.ValidProspectTransitions[model.EnrollmentStopped])
	assert.Empty(t, service.ValidProspectTransitions[model.EnrollmentReplied])
}

func TestLaunchCampaign_SchedulesFirstStep(t *testing.T) {
	f := newFixture(t)

	res, err := f.control.LaunchCampaign(f.ctx, f.campaign.ID)
	require.NoError(t, err)
	assert.Equal(t, model.CampaignRunning, res.Campaign.Status)
	require.NotNil(t, res.Campaign.LaunchedAt)
	assert.Equal(t, 2, res.EmailsScheduled)

	for _, e := range f.emails() {
		assert.Equal(t, 1, e.StepNumber)
		assert.Equal(t, model.EmailScheduled, e.Status)
		assert.True(t, e.ScheduledFor.Equal(f.now), "inside the window the first step is due now")
	}
	assert.Contains(t, f.auditActions(), model.AuditCampaignLaunched)

	_, err = f.control.LaunchCampaign(f.ctx, f.campaign.ID)
	assert.Equal(t, appErrors.CodeInvalidTransition, appErrors.CodeOf(err))
}

func TestLaunchCampaign_OutsideWindowWaitsForNextSlot(t *testing.T) {
	f := newFixture(t)
	f.now = time.Date(2026, 10, 24, 11, 0, 0, 0, f.now.Location()) // Saturday

	f.launch()
	for _, e := range f.emails() {
		local := e.ScheduledFor.In(f.now.Location())
		assert.Equal(t, time.Monday, local.Weekday())
		assert.Equal(t, 9, local.Hour())
	}
}

func TestLaunchCampaign_BlockedByGuardrail(t *testing.T) {
	f := newFixture(t)
	f.store.Workspaces.MarkTokenInvalid(f.ctx, f.workspace.ID, "invalid_grant", f.now)

	_, err := f.control.LaunchCampaign(f.ctx, f.campaign.ID)
	assert.Equal(t, service.CodeGmailTokenInvalid, appErrors.CodeOf(err))

	c, _ := f.store.Campaigns.GetByID(f.ctx, f.campaign.ID)
	assert.Equal(t, model.CampaignDraft, c.Status)
	assert.Empty(t, f.emails())
}

func TestLaunchCampaign_RequiresSteps(t *testing.T) {
	f := newFixture(t)
	c := &model.Campaign{WorkspaceID: f.workspace.ID, Name: "empty", SequenceID: "seq-none"}
	f.store.Campaigns.Create(f.ctx, c)

	_, err := f.control.LaunchCampaign(f.ctx, c.ID)
	assert.Equal(t, appErrors.CodeValidation, appErrors.CodeOf(err))
}

func TestUpdateCampaignStatus_PauseResumeShiftsPendingRows(t *testing.T) {
	f := newFixture(t)
	f.launch()
	before := f.emails()[0].ScheduledFor

	_, err := f.control.UpdateCampaignStatus(f.ctx, f.campaign.ID, service.ActionPause, false)
	require.NoError(t, err)

	_, err = f.control.UpdateCampaignStatus(f.ctx, f.campaign.ID, service.ActionPause, false)
	assert.Equal(t, appErrors.CodeInvalidTransition, appErrors.CodeOf(err))

	f.advance(2 * time.Hour)
	res, err := f.control.UpdateCampaignStatus(f.ctx, f.campaign.ID, service.ActionResume, false)
	require.NoError(t, err)
	assert.Equal(t, model.CampaignRunning, res.Campaign.Status)
	assert.Equal(t, 2, res.EmailsShifted)
	assert.True(t, f.emails()[0].ScheduledFor.Equal(before.Add(2*time.Hour)))
}

func TestUpdateCampaignStatus_StopCancelsAndReleasesKeys(t *testing.T) {
	f := newFixture(t)
	f.launch()

	res, err := f.control.UpdateCampaignStatus(f.ctx, f.campaign.ID, service.ActionStop, false)
	require.NoError(t, err)
	assert.Equal(t, 2, res.EmailsCancelled)
	assert.Equal(t, model.CampaignStopped, res.Campaign.Status)
	for _, e := range f.emails() {
		assert.Equal(t, model.EmailCancelled, e.Status)
		assert.True(t, idempotency.IsCancelled(e.IdempotencyKey))
	}

	_, err = f.control.UpdateCampaignStatus(f.ctx, f.campaign.ID, service.ActionResume, false)
	assert.Equal(t, appErrors.CodeInvalidTransition, appErrors.CodeOf(err))
	assert.Contains(t, err.Error(), "stopped")
}

func TestUpdateCampaignStatus_ResumeAfterAutoPauseNeedsAcknowledgment(t *testing.T) {
	f := newFixture(t)
	f.launch()
	reason := model.AutoPauseHighBounceRate
	f.store.Campaigns.CompareAndSetStatus(f.ctx, f.campaign.ID, model.CampaignRunning, model.CampaignPaused, &reason, f.now)

	_, err := f.control.UpdateCampaignStatus(f.ctx, f.campaign.ID, service.ActionResume, false)
	assert.Equal(t, appErrors.CodeAcknowledgmentRequired, appErrors.CodeOf(err))

	res, err := f.control.UpdateCampaignStatus(f.ctx, f.campaign.ID, service.ActionResume, true)
	require.NoError(t, err)
	assert.Equal(t, model.CampaignRunning, res.Campaign.Status)
	assert.Nil(t, res.Campaign.AutoPausedReason)
	assert.Contains(t, f.auditActions(), model.AuditCampaignResumedAfterAutoPause)
}

func TestUpdateProspectStatus(t *testing.T) {
	f := newFixture(t)
	f.launch()
	p := f.prospects[0]

	res, err := f.control.UpdateProspectStatus(f.ctx, f.campaign.ID, p.ID, service.ActionPause)
	require.NoError(t, err)
	assert.Equal(t, model.EnrollmentPaused, res.Enrollment.EnrollmentStatus)

	_, err = f.control.UpdateProspectStatus(f.ctx, f.campaign.ID, p.ID, service.ActionPause)
	require.Error(t, err)
	assert.Equal(t, "cannot pause a prospect that is paused", err.Error())

	res, err = f.control.UpdateProspectStatus(f.ctx, f.campaign.ID, p.ID, service.ActionStop)
	require.NoError(t, err)
	assert.Equal(t, 1, res.EmailsCancelled)

	_, err = f.control.UpdateProspectStatus(f.ctx, f.campaign.ID, p.ID, service.ActionResume)
	assert.Equal(t, appErrors.CodeInvalidTransition, appErrors.CodeOf(err))

	other := f.enrollment(f.prospects[1].ID)
	assert.Equal(t, model.EnrollmentEnrolled, other.EnrollmentStatus)
}

func TestUpdateProspectStatus_UnknownEnrollment(t *testing.T) {
	f := newFixture(t)
	_, err := f.control.UpdateProspectStatus(f.ctx, f.campaign.ID, "nobody", service.ActionPause)
	assert.True(t, appErrors.IsNotFound(err))
}
