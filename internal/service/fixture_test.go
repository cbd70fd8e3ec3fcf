package service_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/unclebandit/outreach-backend/internal/model"
	"github.com/unclebandit/outreach-backend/internal/repository"
	"github.com/unclebandit/outreach-backend/internal/scheduling"
	"github.com/unclebandit/outreach-backend/internal/service"
)

// fixture wires every service to one in-memory store with a fixed clock.
type fixture struct {
	t     *testing.T
	ctx   context.Context
	store *repository.MemoryStore
	now   time.Time

	evaluator *scheduling.Evaluator
	guardrail *service.GuardrailService
	scheduler *service.SequenceScheduler
	control   *service.CampaignControlService
	cascade   *service.CascadeService
	monitor   *service.AnomalyMonitor
	notifier  *service.Notifier

	workspace *model.Workspace
	campaign  *model.Campaign
	prospects []*model.Prospect
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	loc, err := time.LoadLocation("Europe/Paris")
	if err != nil {
		t.Skip("tzdata not available")
	}

	f := &fixture{
		t:     t,
		ctx:   context.Background(),
		store: repository.NewMemoryStore(),
		// Monday, inside the default 9-18 window.
		now: time.Date(2026, 10, 19, 10, 0, 0, 0, loc),
	}
	f.store.SetNow(f.clock)

	f.evaluator = &scheduling.Evaluator{Settings: f.store.SendingSettings, Sent: f.store.SentEmails, Now: f.clock}
	f.guardrail = &service.GuardrailService{Workspaces: f.store.Workspaces, Evaluator: f.evaluator}
	f.scheduler = &service.SequenceScheduler{Emails: f.store.ScheduledEmails, Sequences: f.store.Sequences, Evaluator: f.evaluator}
	f.control = &service.CampaignControlService{
		Campaigns:   f.store.Campaigns,
		Enrollments: f.store.Enrollments,
		Emails:      f.store.ScheduledEmails,
		Sequences:   f.store.Sequences,
		Audit:       f.store.Audit,
		Guardrail:   f.guardrail,
		Scheduler:   f.scheduler,
		Now:         f.clock,
	}
	f.cascade = &service.CascadeService{
		Prospects:   f.store.Prospects,
		Enrollments: f.store.Enrollments,
		Emails:      f.store.ScheduledEmails,
		Audit:       f.store.Audit,
		Now:         f.clock,
	}
	f.notifier = &service.Notifier{Repo: f.store.Notifications}
	f.monitor = &service.AnomalyMonitor{
		Campaigns: f.store.Campaigns,
		Emails:    f.store.ScheduledEmails,
		Prospects: f.store.Prospects,
		Audit:     f.store.Audit,
		Notifier:  f.notifier,
		Now:       f.clock,
	}

	f.seed(2)
	return f
}

func (f *fixture) clock() time.Time { return f.now }

func (f *fixture) advance(d time.Duration) {
	f.now = f.now.Add(d)
}

func (f *fixture) seed(prospects int) {
	f.workspace = &model.Workspace{Name: "Acme", OnboardingComplete: true}
	f.store.Workspaces.Create(f.ctx, f.workspace)
	f.store.Workspaces.SaveMailboxToken(f.ctx, &model.MailboxToken{WorkspaceID: f.workspace.ID, Email: "sales@acme.io", IsValid: true})

	f.store.Sequences.AddStep(f.ctx, &model.SequenceStep{SequenceID: "seq-1", StepNumber: 1, Subject: "Hello {firstName}", Body: "Hi {firstName} from {company}"})
	f.store.Sequences.AddStep(f.ctx, &model.SequenceStep{SequenceID: "seq-1", StepNumber: 2, DelayDays: 3, Subject: "Following up", Body: "Any news {firstName}?"})

	f.campaign = &model.Campaign{WorkspaceID: f.workspace.ID, Name: "Q4 outreach", SequenceID: "seq-1"}
	f.store.Campaigns.Create(f.ctx, f.campaign)

	for i := 0; i < prospects; i++ {
		p := &model.Prospect{WorkspaceID: f.workspace.ID, Email: fmt.Sprintf("lead%d@corp.io", i), FirstName: fmt.Sprintf("Lead%d", i), Company: "Corp"}
		f.store.Prospects.Create(f.ctx, p)
		f.store.Enrollments.Create(f.ctx, &model.CampaignProspect{CampaignID: f.campaign.ID, ProspectID: p.ID, WorkspaceID: f.workspace.ID})
		f.prospects = append(f.prospects, p)
	}
}

func (f *fixture) launch() {
	f.t.Helper()
	if _, err := f.control.LaunchCampaign(f.ctx, f.campaign.ID); err != nil {
		f.t.Fatalf("LaunchCampaign: %v", err)
	}
}

func (f *fixture) emails() []*model.ScheduledEmail {
	rows, _ := f.store.ScheduledEmails.ListByCampaign(f.ctx, f.campaign.ID)
	return rows
}

func (f *fixture) enrollment(prospectID string) *model.CampaignProspect {
	e, err := f.store.Enrollments.GetByCampaignAndProspect(f.ctx, f.campaign.ID, prospectID)
	if err != nil {
		f.t.Fatalf("enrollment: %v", err)
	}
	return e
}

func (f *fixture) auditActions() []string {
	actions := []string{}
	for _, a := range f.store.Audit.Entries() {
		actions = append(actions, a.Action)
	}
	return actions
}
