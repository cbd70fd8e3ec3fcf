package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/unclebandit/outreach-backend/internal/errors"
	"github.com/unclebandit/outreach-backend/internal/gmail"
	"github.com/unclebandit/outreach-backend/internal/model"
	"github.com/unclebandit/outreach-backend/internal/repository"
)

func rawMessage(from, subject, body string) string {
	return "From: " + from + "\r\nSubject: " + subject + "\r\nDate: Mon, 19 Oct 2026 10:30:00 +0200\r\n\r\n" + body
}

func TestSync_BounceCascade(t *testing.T) {
	e := newEnv(t)
	s := e.seed("acme", 1, 2)
	_, err := e.dispatcher.RunOnce(e.ctx)
	require.NoError(t, err)
	require.Equal(t, []string{model.EmailScheduled}, e.statuses(s.campaign.ID, 2))

	e.gateway.inbox["acme"] = []gmail.Envelope{{
		ID:       "in-1",
		ThreadID: "thread-1",
		Raw:      rawMessage("mailer-daemon@googlemail.com", "Undelivered", "Mail Delivery Subsystem: message not delivered"),
	}}

	summary, err := e.sync.RunOnce(e.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Successful)
	assert.Equal(t, 1, summary.TotalProcessed)
	assert.Equal(t, 1, summary.TotalMatched)

	p, _ := e.repos.Prospects.GetByID(e.ctx, s.prospects[0].ID)
	assert.Equal(t, model.ProspectBounced, p.Status)
	enrollment, _ := e.repos.Enrollments.GetByID(e.ctx, s.enrolls[0].ID)
	assert.Equal(t, model.EnrollmentStopped, enrollment.EnrollmentStatus)
	assert.Equal(t, []string{model.EmailCancelled}, e.statuses(s.campaign.ID, 2))

	actions := []string{}
	for _, a := range e.store.Audit.Entries() {
		actions = append(actions, a.Action)
	}
	assert.Contains(t, actions, model.AuditProspectBounced)

	var inbound *model.InboxMessage
	for _, m := range e.store.Inbox.Messages() {
		if m.Direction == model.DirectionInbound {
			inbound = m
		}
	}
	require.NotNil(t, inbound)
	require.NotNil(t, inbound.Classification)
	assert.Equal(t, model.ClassificationBounce, *inbound.Classification)

	token, _ := e.repos.Workspaces.GetMailboxToken(e.ctx, "acme")
	require.NotNil(t, token.LastSyncAt)
}

func TestSync_UnclassifiedReplyMarksEnrollmentReplied(t *testing.T) {
	e := newEnv(t)
	s := e.seed("acme", 1, 2)
	_, err := e.dispatcher.RunOnce(e.ctx)
	require.NoError(t, err)

	// Matched by sender address; the thread id is unknown.
	e.gateway.inbox["acme"] = []gmail.Envelope{{
		ID:       "in-1",
		ThreadID: "new-thread",
		Raw:      rawMessage(s.prospects[0].Email, "Re: Step P0", "Sounds good, call me Tuesday."),
	}}

	_, err = e.sync.RunOnce(e.ctx)
	require.NoError(t, err)

	enrollment, _ := e.repos.Enrollments.GetByID(e.ctx, s.enrolls[0].ID)
	assert.Equal(t, model.EnrollmentReplied, enrollment.EnrollmentStatus)
	p, _ := e.repos.Prospects.GetByID(e.ctx, s.prospects[0].ID)
	assert.Equal(t, model.ProspectActive, p.Status)

	// The pending follow-up is cancelled by the next dispatch pass.
	e.now = e.now.Add(48 * time.Hour)
	_, err = e.dispatcher.RunOnce(e.ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{model.EmailCancelled}, e.statuses(s.campaign.ID, 2))
	assert.Len(t, e.gateway.sent, 1)
}

func TestSync_AuthErrorIsolatesWorkspace(t *testing.T) {
	e := newEnv(t)
	e.seed("acme", 1, 1)
	e.seed("globex", 1, 1)
	e.gateway.fetchErr["acme"] = appErrors.NewAuthError("acme", "401 invalid credentials")
	e.gateway.inbox["globex"] = []gmail.Envelope{{
		ID: "in-g", ThreadID: "x", Raw: rawMessage("stranger@nowhere.com", "Hi", "Who are you?"),
	}}

	summary, err := e.sync.RunOnce(e.ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.TotalWorkspaces)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 1, summary.Successful)
	assert.Equal(t, 1, summary.TotalUnlinked)

	byID := map[string]WorkspaceResult{}
	for _, r := range summary.Workspaces {
		byID[r.WorkspaceID] = r
	}
	assert.False(t, byID["acme"].Success)
	assert.NotEmpty(t, byID["acme"].Error)
	assert.True(t, byID["globex"].Success)

	token, _ := e.repos.Workspaces.GetMailboxToken(e.ctx, "acme")
	assert.False(t, token.IsValid)
	require.NotNil(t, token.LastAuthError)

	// The invalid workspace is no longer synced.
	summary, err = e.sync.RunOnce(e.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.TotalWorkspaces)
}

func TestSync_DuplicateMessagesAreIgnored(t *testing.T) {
	e := newEnv(t)
	s := e.seed("acme", 1, 1)
	_, err := e.dispatcher.RunOnce(e.ctx)
	require.NoError(t, err)

	msg := gmail.Envelope{ID: "in-1", ThreadID: "thread-1", Raw: rawMessage(s.prospects[0].Email, "Re", "I am out of office until Monday")}
	e.gateway.inbox["acme"] = []gmail.Envelope{msg, msg}

	summary, err := e.sync.RunOnce(e.ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.TotalMatched)

	inbound := 0
	for _, m := range e.store.Inbox.Messages() {
		if m.Direction == model.DirectionInbound {
			inbound++
			require.NotNil(t, m.Classification)
			assert.Equal(t, model.ClassificationOutOfOffice, *m.Classification)
		}
	}
	assert.Equal(t, 1, inbound)
}

// flakyEnrollments fails the first n prospect-wide stops.
type flakyEnrollments struct {
	repository.EnrollmentRepositoryInterface
	failures int
}

func (f *flakyEnrollments) StopActiveForProspect(ctx context.Context, prospectID string, now time.Time) (int, error) {
	if f.failures > 0 {
		f.failures--
		return 0, errors.New("connection reset by peer")
	}
	return f.EnrollmentRepositoryInterface.StopActiveForProspect(ctx, prospectID, now)
}

func TestSync_FailedCascadeIsCompletedOnNextPass(t *testing.T) {
	e := newEnv(t)
	s := e.seed("acme", 1, 2)
	_, err := e.dispatcher.RunOnce(e.ctx)
	require.NoError(t, err)

	e.cascade.Enrollments = &flakyEnrollments{EnrollmentRepositoryInterface: e.repos.Enrollments, failures: 1}
	e.gateway.inbox["acme"] = []gmail.Envelope{{
		ID:       "in-1",
		ThreadID: "thread-1",
		Raw:      rawMessage(s.prospects[0].Email, "Unsubscribe", "Please remove me from your list"),
	}}

	summary, err := e.sync.RunOnce(e.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.TotalErrors)
	enrollment, _ := e.repos.Enrollments.GetByID(e.ctx, s.enrolls[0].ID)
	assert.Equal(t, model.EnrollmentEnrolled, enrollment.EnrollmentStatus)
	token, _ := e.repos.Workspaces.GetMailboxToken(e.ctx, "acme")
	assert.Nil(t, token.LastSyncAt, "an incomplete sync must not move the watermark")

	// The mailbox serves the same message again; it is stored once but its
	// cascade now runs to the end.
	e.now = e.now.Add(5 * time.Minute)
	summary, err = e.sync.RunOnce(e.ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, summary.TotalErrors)

	enrollment, _ = e.repos.Enrollments.GetByID(e.ctx, s.enrolls[0].ID)
	assert.Equal(t, model.EnrollmentStopped, enrollment.EnrollmentStatus)
	assert.Equal(t, []string{model.EmailCancelled}, e.statuses(s.campaign.ID, 2))
	token, _ = e.repos.Workspaces.GetMailboxToken(e.ctx, "acme")
	require.NotNil(t, token.LastSyncAt)

	_, err = e.sync.RunOnce(e.ctx)
	require.NoError(t, err)

	inbound, audited := 0, 0
	for _, m := range e.store.Inbox.Messages() {
		if m.Direction == model.DirectionInbound {
			inbound++
		}
	}
	for _, a := range e.store.Audit.Entries() {
		if a.Action == model.AuditProspectUnsubscribed {
			audited++
		}
	}
	assert.Equal(t, 1, inbound)
	assert.Equal(t, 1, audited)
}
