package repository

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	appErrors "github.com/unclebandit/outreach-backend/internal/errors"
	"github.com/unclebandit/outreach-backend/internal/idempotency"
	"github.com/unclebandit/outreach-backend/internal/model"
)

// MemoryStore keeps every repository in process memory behind one mutex.
// It follows the same conditional-update rules as the Postgres store and
// backs tests and STORE=memory development runs.
type MemoryStore struct {
	state *memoryState

	ScheduledEmails *MemoryScheduledEmailRepository
	SentEmails      *MemorySentEmailRepository
	Campaigns       *MemoryCampaignRepository
	Enrollments     *MemoryEnrollmentRepository
	Prospects       *MemoryProspectRepository
	Sequences       *MemorySequenceRepository
	SendingSettings *MemorySendingSettingsRepository
	Workspaces      *MemoryWorkspaceRepository
	Inbox           *MemoryInboxRepository
	Audit           *MemoryAuditRepository
	Notifications   *MemoryNotificationRepository
}

type memoryState struct {
	mu  sync.Mutex
	now func() time.Time

	emails        map[string]*model.ScheduledEmail
	sent          []*model.SentEmail
	campaigns     map[string]*model.Campaign
	enrollments   map[string]*model.CampaignProspect
	prospects     map[string]*model.Prospect
	steps         map[string]map[int]*model.SequenceStep
	settings      map[string]*model.SendingSettings
	workspaces    map[string]*model.Workspace
	tokens        map[string]*model.MailboxToken
	conversations map[string]*model.Conversation
	messages      map[string]*model.InboxMessage
	audit         []*model.AuditLog
	notifications []*model.Notification
}

func NewMemoryStore() *MemoryStore {
	s := &memoryState{
		now:           time.Now,
		emails:        map[string]*model.ScheduledEmail{},
		campaigns:     map[string]*model.Campaign{},
		enrollments:   map[string]*model.CampaignProspect{},
		prospects:     map[string]*model.Prospect{},
		steps:         map[string]map[int]*model.SequenceStep{},
		settings:      map[string]*model.SendingSettings{},
		workspaces:    map[string]*model.Workspace{},
		tokens:        map[string]*model.MailboxToken{},
		conversations: map[string]*model.Conversation{},
		messages:      map[string]*model.InboxMessage{},
	}
	return &MemoryStore{
		state:           s,
		ScheduledEmails: &MemoryScheduledEmailRepository{s},
		SentEmails:      &MemorySentEmailRepository{s},
		Campaigns:       &MemoryCampaignRepository{s},
		Enrollments:     &MemoryEnrollmentRepository{s},
		Prospects:       &MemoryProspectRepository{s},
		Sequences:       &MemorySequenceRepository{s},
		SendingSettings: &MemorySendingSettingsRepository{s},
		Workspaces:      &MemoryWorkspaceRepository{s},
		Inbox:           &MemoryInboxRepository{s},
		Audit:           &MemoryAuditRepository{s},
		Notifications:   &MemoryNotificationRepository{s},
	}
}

// SetNow replaces the clock used for claim leases and timestamps.
func (m *MemoryStore) SetNow(now func() time.Time) {
	m.state.mu.Lock()
	defer m.state.mu.Unlock()
	m.state.now = now
}

func (m *MemoryStore) Repositories() *Repositories {
	return &Repositories{
		ScheduledEmails: m.ScheduledEmails,
		SentEmails:      m.SentEmails,
		Campaigns:       m.Campaigns,
		Enrollments:     m.Enrollments,
		Prospects:       m.Prospects,
		Sequences:       m.Sequences,
		SendingSettings: m.SendingSettings,
		Workspaces:      m.Workspaces,
		Inbox:           m.Inbox,
		Audit:           m.Audit,
		Notifications:   m.Notifications,
	}
}

// ====================== Scheduled emails ======================

type MemoryScheduledEmailRepository struct{ s *memoryState }

func cloneEmail(e *model.ScheduledEmail) *model.ScheduledEmail {
	c := *e
	return &c
}

func (s *memoryState) unclaimed(e *model.ScheduledEmail, now time.Time) bool {
	return e.ClaimedUntil == nil || e.ClaimedUntil.Before(now)
}

func (r *MemoryScheduledEmailRepository) Enqueue(ctx context.Context, in model.ScheduledEmailInput) (*model.ScheduledEmail, error) {
	key, err := idempotency.Encode(in.ProspectID, in.SequenceID, in.StepNumber)
	if err != nil {
		return nil, err
	}

	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, e := range r.s.emails {
		if e.IdempotencyKey == key && (e.IsPending() || e.Status == model.EmailSent) {
			return cloneEmail(e), appErrors.NewDuplicateIdempotencyKey(key)
		}
	}

	now := r.s.now().UTC()
	e := &model.ScheduledEmail{
		ID:                 uuid.NewString(),
		IdempotencyKey:     key,
		WorkspaceID:        in.WorkspaceID,
		CampaignID:         in.CampaignID,
		CampaignProspectID: in.CampaignProspectID,
		ProspectID:         in.ProspectID,
		SequenceID:         in.SequenceID,
		StepNumber:         in.StepNumber,
		Status:             model.EmailScheduled,
		ScheduledFor:       in.ScheduledFor.UTC(),
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	r.s.emails[e.ID] = e
	return cloneEmail(e), nil
}

func (r *MemoryScheduledEmailRepository) GetByID(ctx context.Context, id string) (*model.ScheduledEmail, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	e, ok := r.s.emails[id]
	if !ok {
		return nil, appErrors.NewNotFound("scheduled email", id)
	}
	return cloneEmail(e), nil
}

func (r *MemoryScheduledEmailRepository) ListByCampaign(ctx context.Context, campaignID string) ([]*model.ScheduledEmail, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := []*model.ScheduledEmail{}
	for _, e := range r.s.emails {
		if e.CampaignID == campaignID {
			out = append(out, cloneEmail(e))
		}
	}
	sortEmails(out)
	return out, nil
}

func sortEmails(emails []*model.ScheduledEmail) {
	sort.SliceStable(emails, func(i, j int) bool {
		if emails[i].ScheduledFor.Equal(emails[j].ScheduledFor) {
			return emails[i].StepNumber < emails[j].StepNumber
		}
		return emails[i].ScheduledFor.Before(emails[j].ScheduledFor)
	})
}

func (r *MemoryScheduledEmailRepository) ClaimDue(ctx context.Context, workspaceID string, now time.Time, limit int, claimToken string, ttl time.Duration) ([]*model.ScheduledEmail, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	due := []*model.ScheduledEmail{}
	for _, e := range r.s.emails {
		if e.WorkspaceID == workspaceID && e.IsPending() && !e.DueAt().After(now) && r.s.unclaimed(e, now) {
			due = append(due, e)
		}
	}
	sortEmails(due)
	if len(due) > limit {
		due = due[:max(limit, 0)]
	}

	until := now.Add(ttl)
	out := make([]*model.ScheduledEmail, 0, len(due))
	for _, e := range due {
		token := claimToken
		e.ClaimedBy = &token
		e.ClaimedUntil = &until
		e.UpdatedAt = now
		out = append(out, cloneEmail(e))
	}
	return out, nil
}

func (r *MemoryScheduledEmailRepository) ReleaseClaim(ctx context.Context, id, claimToken string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if e, ok := r.s.emails[id]; ok && e.ClaimedBy != nil && *e.ClaimedBy == claimToken {
		e.ClaimedBy = nil
		e.ClaimedUntil = nil
	}
	return nil
}

func (r *MemoryScheduledEmailRepository) WorkspacesWithDueWork(ctx context.Context, now time.Time) ([]string, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	seen := map[string]bool{}
	ids := []string{}
	for _, e := range r.s.emails {
		if e.IsPending() && !e.DueAt().After(now) && r.s.unclaimed(e, now) && !seen[e.WorkspaceID] {
			seen[e.WorkspaceID] = true
			ids = append(ids, e.WorkspaceID)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// mutatePending applies fn to a pending row and reports whether it did.
func (r *MemoryScheduledEmailRepository) mutatePending(id string, fn func(e *model.ScheduledEmail)) bool {
	return r.mutateOwned(id, nil, fn)
}

// mutateOwned is mutatePending restricted to rows whose claim marker equals
// claimToken. An empty token matches only unclaimed rows.
func (r *MemoryScheduledEmailRepository) mutateOwned(id string, claimToken *string, fn func(e *model.ScheduledEmail)) bool {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	e, ok := r.s.emails[id]
	if !ok || !e.IsPending() {
		return false
	}
	if claimToken != nil && !ownedBy(e, *claimToken) {
		return false
	}
	fn(e)
	e.ClaimedBy = nil
	e.ClaimedUntil = nil
	e.UpdatedAt = r.s.now().UTC()
	return true
}

func ownedBy(e *model.ScheduledEmail, claimToken string) bool {
	if claimToken == "" {
		return e.ClaimedBy == nil
	}
	return e.ClaimedBy != nil && *e.ClaimedBy == claimToken
}

func (r *MemoryScheduledEmailRepository) ExtendClaim(ctx context.Context, id, claimToken string, until time.Time) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	e, ok := r.s.emails[id]
	if !ok || !e.IsPending() || claimToken == "" || !ownedBy(e, claimToken) {
		return false, nil
	}
	u := until
	e.ClaimedUntil = &u
	e.UpdatedAt = r.s.now().UTC()
	return true, nil
}

func (r *MemoryScheduledEmailRepository) MarkSent(ctx context.Context, id, claimToken, messageID, threadID string, sentAt time.Time) (bool, error) {
	return r.mutateOwned(id, &claimToken, func(e *model.ScheduledEmail) {
		at := sentAt.UTC()
		e.Status = model.EmailSent
		e.MessageID = &messageID
		e.ThreadID = &threadID
		e.SentAt = &at
		e.NextRetryAt = nil
	}), nil
}

func (r *MemoryScheduledEmailRepository) MarkFailed(ctx context.Context, id, claimToken, lastError string, attempts int, nextRetryAt *time.Time) (bool, error) {
	return r.mutateOwned(id, &claimToken, func(e *model.ScheduledEmail) {
		e.Status = model.EmailFailed
		if nextRetryAt != nil {
			e.Status = model.EmailRetryScheduled
		}
		e.LastError = &lastError
		e.Attempts = attempts
		e.NextRetryAt = nextRetryAt
	}), nil
}

func (r *MemoryScheduledEmailRepository) MarkCancelled(ctx context.Context, id string) (bool, error) {
	return r.mutatePending(id, func(e *model.ScheduledEmail) {
		e.Status = model.EmailCancelled
	}), nil
}

func (r *MemoryScheduledEmailRepository) cancelWhere(statuses []string, releaseKeys bool, match func(e *model.ScheduledEmail) bool) int {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	allowed := pendingOnly(statuses)
	now := r.s.now()
	n := 0
	for _, e := range r.s.emails {
		if !match(e) || !containsString(allowed, e.Status) || !r.s.unclaimed(e, now) {
			continue
		}
		e.Status = model.EmailCancelled
		e.UpdatedAt = now.UTC()
		if releaseKeys {
			e.IdempotencyKey = idempotency.Cancelled(e.IdempotencyKey, e.ID)
		}
		n++
	}
	return n
}

func (r *MemoryScheduledEmailRepository) CancelAllForProspect(ctx context.Context, prospectID string, statuses []string) (int, error) {
	return r.cancelWhere(statuses, false, func(e *model.ScheduledEmail) bool { return e.ProspectID == prospectID }), nil
}

func (r *MemoryScheduledEmailRepository) CancelAllForEnrollment(ctx context.Context, campaignProspectID string, statuses []string) (int, error) {
	return r.cancelWhere(statuses, false, func(e *model.ScheduledEmail) bool { return e.CampaignProspectID == campaignProspectID }), nil
}

func (r *MemoryScheduledEmailRepository) CancelAllForCampaign(ctx context.Context, campaignID string, statuses []string, releaseKeys bool) (int, error) {
	return r.cancelWhere(statuses, releaseKeys, func(e *model.ScheduledEmail) bool { return e.CampaignID == campaignID }), nil
}

func (r *MemoryScheduledEmailRepository) ShiftPendingForCampaign(ctx context.Context, campaignID string, by time.Duration) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	n := 0
	for _, e := range r.s.emails {
		if e.CampaignID != campaignID || !e.IsPending() {
			continue
		}
		e.ScheduledFor = e.ScheduledFor.Add(by)
		if e.NextRetryAt != nil {
			shifted := e.NextRetryAt.Add(by)
			e.NextRetryAt = &shifted
		}
		n++
	}
	return n, nil
}

func (r *MemoryScheduledEmailRepository) OutcomeStats(ctx context.Context, campaignID string, since time.Time, bounceKeywords []string) (OutcomeStats, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var st OutcomeStats
	for _, e := range r.s.emails {
		if e.CampaignID != campaignID {
			continue
		}
		switch {
		case e.Status == model.EmailSent && e.SentAt != nil && !e.SentAt.Before(since):
			st.Sent++
		case e.Status == model.EmailFailed && !e.UpdatedAt.Before(since):
			st.Failed++
			if e.LastError != nil && containsAnyFold(*e.LastError, bounceKeywords) {
				st.Bounced++
			}
		}
	}
	return st, nil
}

func containsString(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

func containsAnyFold(s string, keywords []string) bool {
	lower := strings.ToLower(s)
	for _, k := range keywords {
		if strings.Contains(lower, strings.ToLower(k)) {
			return true
		}
	}
	return false
}

// ====================== Sent emails ======================

type MemorySentEmailRepository struct{ s *memoryState }

func (r *MemorySentEmailRepository) Create(ctx context.Context, se *model.SentEmail) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.sent {
		if existing.ScheduledEmailID == se.ScheduledEmailID {
			return nil
		}
	}
	if se.ID == "" {
		se.ID = uuid.NewString()
	}
	c := *se
	r.s.sent = append(r.s.sent, &c)
	return nil
}

func (r *MemorySentEmailRepository) CountForWorkspaceBetween(ctx context.Context, workspaceID string, from, to time.Time) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	n := 0
	for _, se := range r.s.sent {
		if se.WorkspaceID == workspaceID && !se.SentAt.Before(from) && se.SentAt.Before(to) {
			n++
		}
	}
	return n, nil
}

func (r *MemorySentEmailRepository) latest(match func(se *model.SentEmail) bool) *model.SentEmail {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var found *model.SentEmail
	for _, se := range r.s.sent {
		if match(se) && (found == nil || se.SentAt.After(found.SentAt)) {
			found = se
		}
	}
	if found == nil {
		return nil
	}
	c := *found
	return &c
}

func (r *MemorySentEmailRepository) FindByThreadID(ctx context.Context, workspaceID, threadID string) (*model.SentEmail, error) {
	return r.latest(func(se *model.SentEmail) bool { return se.WorkspaceID == workspaceID && se.ThreadID == threadID }), nil
}

func (r *MemorySentEmailRepository) LatestForEnrollment(ctx context.Context, campaignID, prospectID string) (*model.SentEmail, error) {
	return r.latest(func(se *model.SentEmail) bool { return se.CampaignID == campaignID && se.ProspectID == prospectID }), nil
}

func (r *MemorySentEmailRepository) LatestForProspect(ctx context.Context, workspaceID, prospectID string) (*model.SentEmail, error) {
	return r.latest(func(se *model.SentEmail) bool { return se.WorkspaceID == workspaceID && se.ProspectID == prospectID }), nil
}

// All returns every sent record in insertion order.
func (r *MemorySentEmailRepository) All() []*model.SentEmail {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]*model.SentEmail, len(r.s.sent))
	for i, se := range r.s.sent {
		c := *se
		out[i] = &c
	}
	return out
}

// ====================== Campaigns ======================

type MemoryCampaignRepository struct{ s *memoryState }

func (r *MemoryCampaignRepository) Create(ctx context.Context, c *model.Campaign) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.Status == "" {
		c.Status = model.CampaignDraft
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = r.s.now().UTC()
	}
	cp := *c
	r.s.campaigns[c.ID] = &cp
	return nil
}

func (r *MemoryCampaignRepository) GetByID(ctx context.Context, id string) (*model.Campaign, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.campaigns[id]
	if !ok {
		return nil, appErrors.NewCampaignNotFound(id)
	}
	cp := *c
	return &cp, nil
}

func (r *MemoryCampaignRepository) CompareAndSetStatus(ctx context.Context, id, from, to string, autoPauseReason *string, now time.Time) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.campaigns[id]
	if !ok || c.Status != from {
		return false, nil
	}
	at := now.UTC()
	c.Status = to
	if to == model.CampaignRunning && c.LaunchedAt == nil {
		c.LaunchedAt = &at
	}
	c.PausedAt = nil
	if to == model.CampaignPaused {
		c.PausedAt = &at
	}
	if to == model.CampaignCompleted || to == model.CampaignStopped {
		c.CompletedAt = &at
	}
	c.AutoPausedReason = autoPauseReason
	c.UpdatedAt = &at
	return true, nil
}

// ====================== Enrollments ======================

type MemoryEnrollmentRepository struct{ s *memoryState }

func (r *MemoryEnrollmentRepository) Create(ctx context.Context, e *model.CampaignProspect) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.EnrollmentStatus == "" {
		e.EnrollmentStatus = model.EnrollmentEnrolled
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = r.s.now().UTC()
	}
	cp := *e
	r.s.enrollments[e.ID] = &cp
	return nil
}

func (r *MemoryEnrollmentRepository) GetByID(ctx context.Context, id string) (*model.CampaignProspect, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	e, ok := r.s.enrollments[id]
	if !ok {
		return nil, appErrors.NewNotFound("enrollment", id)
	}
	cp := *e
	return &cp, nil
}

func (r *MemoryEnrollmentRepository) GetByCampaignAndProspect(ctx context.Context, campaignID, prospectID string) (*model.CampaignProspect, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, e := range r.s.enrollments {
		if e.CampaignID == campaignID && e.ProspectID == prospectID {
			cp := *e
			return &cp, nil
		}
	}
	return nil, appErrors.NewNotFound("enrollment", campaignID+"/"+prospectID)
}

func (r *MemoryEnrollmentRepository) ListByCampaign(ctx context.Context, campaignID string) ([]*model.CampaignProspect, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := []*model.CampaignProspect{}
	for _, e := range r.s.enrollments {
		if e.CampaignID == campaignID {
			cp := *e
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func setEnrollmentStatus(e *model.CampaignProspect, to string, now time.Time) {
	at := now.UTC()
	e.EnrollmentStatus = to
	e.PausedAt = nil
	if to == model.EnrollmentPaused {
		e.PausedAt = &at
	}
	e.UpdatedAt = &at
}

func (r *MemoryEnrollmentRepository) CompareAndSetStatus(ctx context.Context, id, from, to string, now time.Time) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	e, ok := r.s.enrollments[id]
	if !ok || e.EnrollmentStatus != from {
		return false, nil
	}
	setEnrollmentStatus(e, to, now)
	return true, nil
}

func (r *MemoryEnrollmentRepository) AdvanceStep(ctx context.Context, id string, fromStep, toStep int, sentAt time.Time) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	e, ok := r.s.enrollments[id]
	if !ok || e.CurrentStep != fromStep {
		return false, nil
	}
	at := sentAt.UTC()
	e.CurrentStep = toStep
	e.LastSentAt = &at
	e.UpdatedAt = &at
	return true, nil
}

func (r *MemoryEnrollmentRepository) StopActiveForProspect(ctx context.Context, prospectID string, now time.Time) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	n := 0
	for _, e := range r.s.enrollments {
		if e.ProspectID != prospectID {
			continue
		}
		switch e.EnrollmentStatus {
		case model.EnrollmentEnrolled, model.EnrollmentPaused, model.EnrollmentReplied:
			setEnrollmentStatus(e, model.EnrollmentStopped, now)
			n++
		}
	}
	return n, nil
}

func (r *MemoryEnrollmentRepository) MarkReplied(ctx context.Context, campaignID, prospectID string, now time.Time) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	n := 0
	for _, e := range r.s.enrollments {
		if e.CampaignID == campaignID && e.ProspectID == prospectID && e.IsActive() {
			setEnrollmentStatus(e, model.EnrollmentReplied, now)
			n++
		}
	}
	return n, nil
}

func (r *MemoryEnrollmentRepository) CountActive(ctx context.Context, campaignID string) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	n := 0
	for _, e := range r.s.enrollments {
		if e.CampaignID == campaignID && e.IsActive() {
			n++
		}
	}
	return n, nil
}

// ====================== Prospects ======================

type MemoryProspectRepository struct{ s *memoryState }

func (r *MemoryProspectRepository) Create(ctx context.Context, p *model.Prospect) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.Status == "" {
		p.Status = model.ProspectActive
	}
	p.Email = strings.ToLower(p.Email)
	cp := *p
	r.s.prospects[p.ID] = &cp
	return nil
}

func (r *MemoryProspectRepository) GetByID(ctx context.Context, id string) (*model.Prospect, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.prospects[id]
	if !ok {
		return nil, appErrors.NewNotFound("prospect", id)
	}
	cp := *p
	return &cp, nil
}

func (r *MemoryProspectRepository) FindByEmail(ctx context.Context, workspaceID, email string) (*model.Prospect, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	email = strings.ToLower(strings.TrimSpace(email))
	for _, p := range r.s.prospects {
		if p.WorkspaceID == workspaceID && p.Email == email {
			cp := *p
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *MemoryProspectRepository) UpdateStatus(ctx context.Context, id, status string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if p, ok := r.s.prospects[id]; ok {
		p.Status = status
	}
	return nil
}

func (r *MemoryProspectRepository) CountByStatusForCampaign(ctx context.Context, campaignID string) (map[string]int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	counts := map[string]int{}
	for _, e := range r.s.enrollments {
		if e.CampaignID != campaignID {
			continue
		}
		if p, ok := r.s.prospects[e.ProspectID]; ok {
			counts[p.Status]++
		}
	}
	return counts, nil
}

// ====================== Sequences & settings ======================

type MemorySequenceRepository struct{ s *memoryState }

func (r *MemorySequenceRepository) AddStep(ctx context.Context, step *model.SequenceStep) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.steps[step.SequenceID] == nil {
		r.s.steps[step.SequenceID] = map[int]*model.SequenceStep{}
	}
	cp := *step
	r.s.steps[step.SequenceID][step.StepNumber] = &cp
	return nil
}

func (r *MemorySequenceRepository) GetStep(ctx context.Context, sequenceID string, stepNumber int) (*model.SequenceStep, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	step, ok := r.s.steps[sequenceID][stepNumber]
	if !ok {
		return nil, nil
	}
	cp := *step
	return &cp, nil
}

func (r *MemorySequenceRepository) CountSteps(ctx context.Context, sequenceID string) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return len(r.s.steps[sequenceID]), nil
}

type MemorySendingSettingsRepository struct{ s *memoryState }

func (r *MemorySendingSettingsRepository) GetByWorkspace(ctx context.Context, workspaceID string) (*model.SendingSettings, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	st, ok := r.s.settings[workspaceID]
	if !ok {
		return nil, nil
	}
	cp := *st
	cp.SendingDays = append([]int(nil), st.SendingDays...)
	return &cp, nil
}

func (r *MemorySendingSettingsRepository) Upsert(ctx context.Context, st *model.SendingSettings) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	now := r.s.now().UTC()
	st.UpdatedAt = &now
	cp := *st
	cp.SendingDays = append([]int(nil), st.SendingDays...)
	r.s.settings[st.WorkspaceID] = &cp
	return nil
}

// ====================== Workspaces ======================

type MemoryWorkspaceRepository struct{ s *memoryState }

func (r *MemoryWorkspaceRepository) Create(ctx context.Context, w *model.Workspace) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if w.ID == "" {
		w.ID = uuid.NewString()
	}
	cp := *w
	r.s.workspaces[w.ID] = &cp
	return nil
}

func (r *MemoryWorkspaceRepository) GetByID(ctx context.Context, id string) (*model.Workspace, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	w, ok := r.s.workspaces[id]
	if !ok {
		return nil, nil
	}
	cp := *w
	return &cp, nil
}

func (r *MemoryWorkspaceRepository) GetMailboxToken(ctx context.Context, workspaceID string) (*model.MailboxToken, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t, ok := r.s.tokens[workspaceID]
	if !ok {
		return nil, nil
	}
	cp := *t
	return &cp, nil
}

func (r *MemoryWorkspaceRepository) SaveMailboxToken(ctx context.Context, t *model.MailboxToken) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cp := *t
	r.s.tokens[t.WorkspaceID] = &cp
	return nil
}

func (r *MemoryWorkspaceRepository) ListWithValidMailbox(ctx context.Context) ([]string, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	ids := []string{}
	for id, t := range r.s.tokens {
		if t.IsValid {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (r *MemoryWorkspaceRepository) MarkTokenInvalid(ctx context.Context, workspaceID, reason string, now time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if t, ok := r.s.tokens[workspaceID]; ok {
		at := now.UTC()
		t.IsValid = false
		t.LastAuthError = &reason
		t.UpdatedAt = &at
	}
	return nil
}

func (r *MemoryWorkspaceRepository) TouchLastSync(ctx context.Context, workspaceID string, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if t, ok := r.s.tokens[workspaceID]; ok {
		utc := at.UTC()
		t.LastSyncAt = &utc
	}
	return nil
}

// ====================== Inbox ======================

type MemoryInboxRepository struct{ s *memoryState }

func (r *MemoryInboxRepository) FindConversationByThread(ctx context.Context, workspaceID, threadID string) (*model.Conversation, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, c := range r.s.conversations {
		if c.WorkspaceID == workspaceID && c.ThreadID == threadID {
			cp := *c
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *MemoryInboxRepository) GetConversation(ctx context.Context, id string) (*model.Conversation, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.conversations[id]
	if !ok {
		return nil, appErrors.NewNotFound("conversation", id)
	}
	cp := *c
	return &cp, nil
}

func (r *MemoryInboxRepository) UpsertConversation(ctx context.Context, c *model.Conversation) (*model.Conversation, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.conversations {
		if existing.WorkspaceID == c.WorkspaceID && existing.ThreadID == c.ThreadID {
			if c.LastMessageAt.After(existing.LastMessageAt) {
				existing.LastMessageAt = c.LastMessageAt
			}
			if existing.CampaignID == nil {
				existing.CampaignID = c.CampaignID
			}
			cp := *existing
			return &cp, nil
		}
	}
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	cp := *c
	r.s.conversations[c.ID] = &cp
	out := cp
	return &out, nil
}

func (r *MemoryInboxRepository) CreateMessage(ctx context.Context, m *model.InboxMessage) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.messages {
		if existing.ExternalID == m.ExternalID {
			return false, nil
		}
	}
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	cp := *m
	r.s.messages[m.ID] = &cp
	return true, nil
}

func (r *MemoryInboxRepository) GetMessage(ctx context.Context, id string) (*model.InboxMessage, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	m, ok := r.s.messages[id]
	if !ok {
		return nil, appErrors.NewNotFound("inbox message", id)
	}
	cp := *m
	return &cp, nil
}

func (r *MemoryInboxRepository) SetClassification(ctx context.Context, id string, classification *string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if m, ok := r.s.messages[id]; ok {
		m.Classification = classification
	}
	return nil
}

// Messages returns stored messages ordered by receipt time.
func (r *MemoryInboxRepository) Messages() []*model.InboxMessage {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := []*model.InboxMessage{}
	for _, m := range r.s.messages {
		cp := *m
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ReceivedAt.Before(out[j].ReceivedAt) })
	return out
}

// ====================== Audit & notifications ======================

type MemoryAuditRepository struct{ s *memoryState }

func (r *MemoryAuditRepository) Create(ctx context.Context, a *model.AuditLog) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = r.s.now().UTC()
	}
	cp := *a
	r.s.audit = append(r.s.audit, &cp)
	return nil
}

// Entries returns audit entries in insertion order.
func (r *MemoryAuditRepository) Entries() []*model.AuditLog {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return append([]*model.AuditLog(nil), r.s.audit...)
}

type MemoryNotificationRepository struct{ s *memoryState }

func (r *MemoryNotificationRepository) Create(ctx context.Context, n *model.Notification) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = r.s.now().UTC()
	}
	cp := *n
	r.s.notifications = append(r.s.notifications, &cp)
	return nil
}

// Entries returns notifications in insertion order.
func (r *MemoryNotificationRepository) Entries() []*model.Notification {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return append([]*model.Notification(nil), r.s.notifications...)
}

var (
	_ ScheduledEmailRepositoryInterface  = (*MemoryScheduledEmailRepository)(nil)
	_ SentEmailRepositoryInterface       = (*MemorySentEmailRepository)(nil)
	_ CampaignRepositoryInterface        = (*MemoryCampaignRepository)(nil)
	_ EnrollmentRepositoryInterface      = (*MemoryEnrollmentRepository)(nil)
	_ ProspectRepositoryInterface        = (*MemoryProspectRepository)(nil)
	_ SequenceRepositoryInterface        = (*MemorySequenceRepository)(nil)
	_ SendingSettingsRepositoryInterface = (*MemorySendingSettingsRepository)(nil)
	_ WorkspaceRepositoryInterface       = (*MemoryWorkspaceRepository)(nil)
	_ InboxRepositoryInterface           = (*MemoryInboxRepository)(nil)
	_ AuditRepositoryInterface           = (*MemoryAuditRepository)(nil)
	_ NotificationRepositoryInterface    = (*MemoryNotificationRepository)(nil)
)
