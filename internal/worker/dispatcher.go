package worker

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"strconv"
	"time"

	"github.com/google/uuid"

	appErrors "github.com/unclebandit/outreach-backend/internal/errors"
	"github.com/unclebandit/outreach-backend/internal/gmail"
	"github.com/unclebandit/outreach-backend/internal/lock"
	"github.com/unclebandit/outreach-backend/internal/metrics"
	"github.com/unclebandit/outreach-backend/internal/model"
	"github.com/unclebandit/outreach-backend/internal/ratelimit"
	"github.com/unclebandit/outreach-backend/internal/repository"
	"github.com/unclebandit/outreach-backend/internal/retry"
	"github.com/unclebandit/outreach-backend/internal/scheduling"
	"github.com/unclebandit/outreach-backend/internal/service"
)

// Dispatch defaults.
const (
	DefaultBatchSize   = 50
	DefaultSendTimeout = 30 * time.Second
	DefaultClaimTTL    = 5 * time.Minute
	DefaultMinDelay    = 30 * time.Second
	DefaultMaxDelay    = 90 * time.Second
)

// Deferral reasons that are not evaluator codes.
const (
	deferCampaignPaused   = "CAMPAIGN_PAUSED"
	deferEnrollmentPaused = "ENROLLMENT_PAUSED"
	deferConcurrency      = "CONCURRENCY_LIMIT"
	deferAuth             = "AUTH_ERROR"
	deferClaimLost        = "CLAIM_LOST"
)

type outcome int

const (
	outcomeSent outcome = iota
	outcomeRetry
	outcomeFailed
	outcomeDeferred
	outcomeCancelled
	outcomeAuth
	outcomeLost
)

// Dispatcher turns due scheduled emails into sends. Within a workspace rows
// are sent one at a time; workspaces run in parallel.
type Dispatcher struct {
	Repos     *repository.Repositories
	Evaluator *scheduling.Evaluator
	Tokens    gmail.TokenChecker
	Sender    gmail.Sender
	Limiter   ratelimit.Limiter
	Locks     lock.Provider
	Scheduler *service.SequenceScheduler
	Anomaly   *service.AnomalyMonitor

	BatchSize   int
	SendTimeout time.Duration
	ClaimTTL    time.Duration
	MinDelay    time.Duration
	MaxDelay    time.Duration
	Parallelism int

	// Sleep waits between two sends of a workspace. Defaults to a
	// context-aware timer.
	Sleep func(ctx context.Context, d time.Duration) error
	Now   func() time.Time
}

func (d *Dispatcher) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

func (d *Dispatcher) sleep(ctx context.Context) error {
	delay := d.MinDelay
	if d.MaxDelay > d.MinDelay {
		delay += time.Duration(rand.Int63n(int64(d.MaxDelay - d.MinDelay)))
	}
	if d.Sleep != nil {
		return d.Sleep(ctx, delay)
	}
	return sleepCtx(ctx, delay)
}

func orDefault[T int | time.Duration](v, def T) T {
	if v <= 0 {
		return def
	}
	return v
}

// RunOnce dispatches every workspace that has due rows.
func (d *Dispatcher) RunOnce(ctx context.Context) (*Summary, error) {
	start := time.Now()
	ids, err := d.Repos.ScheduledEmails.WorkspacesWithDueWork(ctx, d.now())
	if err != nil {
		return nil, fmt.Errorf("list workspaces with due work: %w", err)
	}
	log.Printf("🚀 Dispatch pass started for %d workspace(s)", len(ids))

	results := forEachWorkspace(ctx, ids, d.Parallelism, d.DispatchWorkspace)
	summary := summarize(results, time.Since(start))
	metrics.DispatchDuration.Observe(time.Since(start).Seconds())
	log.Printf("✅ Dispatch pass done: %d sent, %d/%d workspaces ok in %s",
		summary.TotalProcessed, summary.Successful, summary.TotalWorkspaces, summary.Duration)
	return summary, nil
}

// DispatchWorkspace sends the due rows of one workspace.
func (d *Dispatcher) DispatchWorkspace(ctx context.Context, workspaceID string) WorkspaceResult {
	res := WorkspaceResult{WorkspaceID: workspaceID, Success: true}

	l := d.Locks.For("dispatch:" + workspaceID)
	acquired, err := l.Acquire(ctx)
	if err != nil {
		return failed(res, fmt.Errorf("acquire workspace lock: %w", err))
	}
	if !acquired {
		res.Skipped = "dispatch already running"
		return res
	}
	defer func() {
		if err := l.Release(context.Background()); err != nil {
			log.Println("⚠️ Failed to release dispatch lock:", err)
		}
	}()

	token, err := d.Repos.Workspaces.GetMailboxToken(ctx, workspaceID)
	if err != nil {
		return failed(res, err)
	}
	if token == nil || !token.IsValid {
		res.Success = false
		res.Error = service.CodeGmailTokenInvalid
		return res
	}
	valid, err := d.Tokens.IsTokenValid(ctx, workspaceID)
	if err != nil && !appErrors.IsAuthError(err) {
		return failed(res, fmt.Errorf("check mailbox token: %w", err))
	}
	if !valid || err != nil {
		d.invalidate(ctx, workspaceID, "mailbox token rejected by gateway")
		res.Success = false
		res.Error = service.CodeGmailTokenInvalid
		return res
	}

	ceiling, err := d.Evaluator.EvaluateCeiling(ctx, workspaceID)
	if err != nil {
		return failed(res, err)
	}
	if !ceiling.Allowed {
		res.Skipped = ceiling.Code
		return res
	}

	claimToken := uuid.NewString()
	limit := min(orDefault(d.BatchSize, DefaultBatchSize), ceiling.RemainingToday)
	rows, err := d.Repos.ScheduledEmails.ClaimDue(ctx, workspaceID, d.now(), limit, claimToken, orDefault(d.ClaimTTL, DefaultClaimTTL))
	if err != nil {
		return failed(res, fmt.Errorf("claim due emails: %w", err))
	}

	touched := map[string]bool{}
	for i, row := range rows {
		if ctx.Err() != nil {
			d.releaseAll(rows[i:], claimToken)
			break
		}
		if i > 0 {
			held, err := l.Refresh(ctx)
			if err != nil || !held {
				log.Printf("⚠️ Dispatch lock of workspace %s lost, stopping pass: %v", workspaceID, err)
				d.releaseAll(rows[i:], claimToken)
				break
			}
		}

		out, err := d.processRow(ctx, row, token, claimToken)
		switch out {
		case outcomeSent:
			res.Sent++
			res.Processed++
			touched[row.CampaignID] = true
		case outcomeRetry:
			res.Retried++
			touched[row.CampaignID] = true
		case outcomeFailed:
			res.Failed++
			touched[row.CampaignID] = true
		case outcomeDeferred:
			res.Deferred++
		case outcomeCancelled:
			res.Cancelled++
		case outcomeLost:
			res.Lost++
		}
		if err != nil {
			res.Errors++
			log.Printf("⚠️ Email %s: %v", row.ID, err)
		}

		if out == outcomeAuth {
			d.invalidate(ctx, workspaceID, err.Error())
			d.releaseAll(rows[i+1:], claimToken)
			res.Success = false
			res.Error = service.CodeGmailTokenInvalid
			break
		}
		if out == outcomeSent && i < len(rows)-1 {
			if err := d.sleep(ctx); err != nil {
				d.releaseAll(rows[i+1:], claimToken)
				break
			}
		}
	}

	if d.Anomaly != nil {
		for campaignID := range touched {
			if _, err := d.Anomaly.Check(ctx, campaignID); err != nil {
				log.Printf("⚠️ Anomaly check failed for campaign %s: %v", campaignID, err)
			}
		}
	}
	return res
}

func failed(res WorkspaceResult, err error) WorkspaceResult {
	res.Success = false
	res.Error = err.Error()
	return res
}

func (d *Dispatcher) invalidate(ctx context.Context, workspaceID, reason string) {
	if err := d.Repos.Workspaces.MarkTokenInvalid(ctx, workspaceID, reason, d.now()); err != nil {
		log.Println("❌ Failed to mark mailbox token invalid:", err)
		return
	}
	log.Printf("🔒 Mailbox token of workspace %s marked invalid: %s", workspaceID, reason)
}

// releaseAll gives unprocessed rows back to the queue untouched.
func (d *Dispatcher) releaseAll(rows []*model.ScheduledEmail, claimToken string) {
	for _, row := range rows {
		if err := d.Repos.ScheduledEmails.ReleaseClaim(context.Background(), row.ID, claimToken); err != nil {
			log.Println("⚠️ Failed to release claim:", err)
		}
	}
}

func (d *Dispatcher) deferRow(ctx context.Context, row *model.ScheduledEmail, claimToken, reason string) (outcome, error) {
	metrics.EmailsDeferred.WithLabelValues(reason).Inc()
	return outcomeDeferred, d.Repos.ScheduledEmails.ReleaseClaim(ctx, row.ID, claimToken)
}

// deferOnError releases the claim after a failed lookup and reports both errors.
func (d *Dispatcher) deferOnError(ctx context.Context, row *model.ScheduledEmail, claimToken, reason string, err error) (outcome, error) {
	out, relErr := d.deferRow(ctx, row, claimToken, reason)
	if relErr != nil {
		err = errors.Join(err, fmt.Errorf("release claim: %w", relErr))
	}
	return out, err
}

func (d *Dispatcher) cancel(ctx context.Context, row *model.ScheduledEmail, why string) (outcome, error) {
	if _, err := d.Repos.ScheduledEmails.MarkCancelled(ctx, row.ID); err != nil {
		return outcomeCancelled, err
	}
	log.Printf("🚫 Email %s cancelled: %s", row.ID, why)
	return outcomeCancelled, nil
}

// processRow re-checks one claimed row and sends it.
func (d *Dispatcher) processRow(ctx context.Context, row *model.ScheduledEmail, token *model.MailboxToken, claimToken string) (outcome, error) {
	repos := d.Repos

	campaign, err := repos.Campaigns.GetByID(ctx, row.CampaignID)
	if err != nil {
		if appErrors.IsNotFound(err) {
			return d.cancel(ctx, row, "campaign deleted")
		}
		return d.deferOnError(ctx, row, claimToken, "LOOKUP_ERROR", err)
	}
	switch campaign.Status {
	case model.CampaignRunning:
	case model.CampaignPaused:
		return d.deferRow(ctx, row, claimToken, deferCampaignPaused)
	default:
		return d.cancel(ctx, row, "campaign is "+appErrors.StatusLabel(campaign.Status))
	}

	enrollment, err := repos.Enrollments.GetByID(ctx, row.CampaignProspectID)
	if err != nil {
		if appErrors.IsNotFound(err) {
			return d.cancel(ctx, row, "enrollment deleted")
		}
		return d.deferOnError(ctx, row, claimToken, "LOOKUP_ERROR", err)
	}
	switch enrollment.EnrollmentStatus {
	case model.EnrollmentEnrolled:
	case model.EnrollmentPaused:
		return d.deferRow(ctx, row, claimToken, deferEnrollmentPaused)
	default:
		return d.cancel(ctx, row, "prospect is "+appErrors.StatusLabel(enrollment.EnrollmentStatus))
	}

	prospect, err := repos.Prospects.GetByID(ctx, row.ProspectID)
	if err != nil {
		return d.deferOnError(ctx, row, claimToken, "LOOKUP_ERROR", err)
	}
	if prospect.Status != model.ProspectActive {
		return d.cancel(ctx, row, "prospect status "+prospect.Status)
	}

	decision, err := d.Evaluator.Evaluate(ctx, row.WorkspaceID, campaign.LaunchedAt)
	if err != nil {
		return d.deferOnError(ctx, row, claimToken, "EVALUATOR_ERROR", err)
	}
	if !decision.Allowed {
		return d.deferRow(ctx, row, claimToken, decision.Code)
	}

	step, err := repos.Sequences.GetStep(ctx, campaign.SequenceID, row.StepNumber)
	if err != nil {
		return d.deferOnError(ctx, row, claimToken, "LOOKUP_ERROR", err)
	}
	if step == nil {
		msg := fmt.Sprintf("Non-retryable error: step %d no longer exists", row.StepNumber)
		_, err := repos.ScheduledEmails.MarkFailed(ctx, row.ID, claimToken, msg, row.Attempts+1, nil)
		metrics.EmailsFailed.WithLabelValues("false").Inc()
		return outcomeFailed, err
	}

	msg := gmail.OutgoingMessage{To: prospect.Email}
	msg.Subject, msg.Body = service.RenderStep(step, prospect)
	if row.StepNumber > 1 {
		prev, err := repos.SentEmails.LatestForEnrollment(ctx, campaign.ID, prospect.ID)
		if err != nil {
			return d.deferOnError(ctx, row, claimToken, "LOOKUP_ERROR", err)
		}
		if prev != nil {
			msg.ThreadID = prev.ThreadID
		}
	}

	// The lease may have lapsed while earlier rows were sent, letting another
	// pass reclaim the row. Only the current holder may send.
	owned, err := repos.ScheduledEmails.ExtendClaim(ctx, row.ID, claimToken, d.now().Add(orDefault(d.ClaimTTL, DefaultClaimTTL)))
	if err != nil {
		return d.deferOnError(ctx, row, claimToken, "LOOKUP_ERROR", err)
	}
	if !owned {
		metrics.EmailsDeferred.WithLabelValues(deferClaimLost).Inc()
		log.Printf("⚠️ Email %s is no longer claimed by this pass, skipping", row.ID)
		return outcomeLost, nil
	}

	ok, err := d.Limiter.Acquire(ctx, row.WorkspaceID)
	if err != nil || !ok {
		return d.deferOnError(ctx, row, claimToken, deferConcurrency, err)
	}
	result, sendErr := d.send(ctx, row.WorkspaceID, msg)
	if err := d.Limiter.Release(ctx, row.WorkspaceID); err != nil {
		log.Println("⚠️ Failed to release concurrency slot:", err)
	}

	if sendErr != nil {
		return d.handleFailure(ctx, row, claimToken, sendErr)
	}
	return outcomeSent, d.recordSent(ctx, campaign, enrollment, row, claimToken, token, msg, result)
}

func (d *Dispatcher) send(ctx context.Context, workspaceID string, msg gmail.OutgoingMessage) (gmail.SendResult, error) {
	timeout := orDefault(d.SendTimeout, DefaultSendTimeout)
	sendCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	result, err := d.Sender.Send(sendCtx, workspaceID, msg)
	if err != nil && errors.Is(err, context.DeadlineExceeded) {
		err = appErrors.NewTransientDeliveryError("TEMPORARY_FAILURE", fmt.Sprintf("send timed out after %s", timeout))
	}
	return result, err
}

func (d *Dispatcher) handleFailure(ctx context.Context, row *model.ScheduledEmail, claimToken string, sendErr error) (outcome, error) {
	if appErrors.IsAuthError(sendErr) {
		_, err := d.deferOnError(ctx, row, claimToken, deferAuth, sendErr)
		return outcomeAuth, err
	}

	dec := retry.Decide(sendErr, row.Attempts, d.now())
	updated, err := d.Repos.ScheduledEmails.MarkFailed(ctx, row.ID, claimToken, dec.Message, dec.Attempts, dec.NextRetryAt)
	if err != nil {
		return outcomeFailed, fmt.Errorf("record failure: %w", err)
	}
	if !updated {
		log.Printf("⚠️ Failure of email %s not recorded: row no longer claimed by this pass", row.ID)
		return outcomeLost, nil
	}
	metrics.EmailsFailed.WithLabelValues(strconv.FormatBool(dec.Retry)).Inc()

	if dec.Retry {
		log.Printf("🔁 Email %s retry %d at %s (%s)", row.ID, dec.Attempts, dec.NextRetryAt.Format(time.RFC3339), dec.Code)
		return outcomeRetry, nil
	}
	log.Printf("❌ Email %s failed permanently after %d attempt(s): %s", row.ID, dec.Attempts, dec.Message)
	return outcomeFailed, nil
}

// recordSent persists a delivered email, threads it and schedules the next step.
func (d *Dispatcher) recordSent(ctx context.Context, campaign *model.Campaign, e *model.CampaignProspect, row *model.ScheduledEmail, claimToken string, token *model.MailboxToken, msg gmail.OutgoingMessage, result gmail.SendResult) error {
	repos := d.Repos
	sentAt := d.now()
	metrics.EmailsSent.Inc()

	updated, err := repos.ScheduledEmails.MarkSent(ctx, row.ID, claimToken, result.MessageID, result.ThreadID, sentAt)
	if err != nil {
		return fmt.Errorf("mark sent: %w", err)
	}
	if !updated {
		log.Printf("⚠️ Email %s was sent but its row changed concurrently", row.ID)
	}
	log.Printf("📩 Email %s sent to %s (step %d)", row.ID, msg.To, row.StepNumber)

	if err := repos.SentEmails.Create(ctx, &model.SentEmail{
		WorkspaceID:      row.WorkspaceID,
		CampaignID:       row.CampaignID,
		ProspectID:       row.ProspectID,
		ScheduledEmailID: row.ID,
		StepNumber:       row.StepNumber,
		MessageID:        result.MessageID,
		ThreadID:         result.ThreadID,
		Subject:          msg.Subject,
		SentAt:           sentAt,
	}); err != nil {
		return fmt.Errorf("record sent email: %w", err)
	}

	campaignID := campaign.ID
	conv, err := repos.Inbox.UpsertConversation(ctx, &model.Conversation{
		WorkspaceID:   row.WorkspaceID,
		ThreadID:      result.ThreadID,
		ProspectID:    row.ProspectID,
		CampaignID:    &campaignID,
		LastMessageAt: sentAt,
	})
	if err != nil {
		return fmt.Errorf("upsert conversation: %w", err)
	}
	if _, err := repos.Inbox.CreateMessage(ctx, &model.InboxMessage{
		ConversationID: conv.ID,
		ExternalID:     result.MessageID,
		Direction:      model.DirectionOutbound,
		FromAddress:    token.Email,
		Subject:        msg.Subject,
		Body:           msg.Body,
		ReceivedAt:     sentAt,
	}); err != nil {
		return fmt.Errorf("record outbound message: %w", err)
	}

	if _, err := repos.Enrollments.AdvanceStep(ctx, e.ID, row.StepNumber-1, row.StepNumber, sentAt); err != nil {
		return fmt.Errorf("advance enrollment: %w", err)
	}

	next, _, err := d.Scheduler.ScheduleStep(ctx, campaign, e, row.StepNumber+1, sentAt)
	if err != nil {
		return fmt.Errorf("schedule step %d: %w", row.StepNumber+1, err)
	}
	if next != nil {
		return nil
	}
	return d.complete(ctx, campaign, e, sentAt)
}

// complete closes a finished enrollment and, when it was the last active one,
// the campaign.
func (d *Dispatcher) complete(ctx context.Context, campaign *model.Campaign, e *model.CampaignProspect, now time.Time) error {
	repos := d.Repos
	if _, err := repos.Enrollments.CompareAndSetStatus(ctx, e.ID, model.EnrollmentEnrolled, model.EnrollmentCompleted, now); err != nil {
		return fmt.Errorf("complete enrollment: %w", err)
	}
	active, err := repos.Enrollments.CountActive(ctx, campaign.ID)
	if err != nil {
		return fmt.Errorf("count active enrollments: %w", err)
	}
	if active > 0 {
		return nil
	}
	swapped, err := repos.Campaigns.CompareAndSetStatus(ctx, campaign.ID, model.CampaignRunning, model.CampaignCompleted, nil, now)
	if err != nil {
		return fmt.Errorf("complete campaign: %w", err)
	}
	if swapped {
		if err := repos.Audit.Create(ctx, &model.AuditLog{
			WorkspaceID: campaign.WorkspaceID,
			EntityType:  "campaign",
			EntityID:    campaign.ID,
			Action:      model.AuditCampaignStatusChanged,
			Metadata:    map[string]any{"from": model.CampaignRunning, "to": model.CampaignCompleted},
		}); err != nil {
			log.Println("⚠️ Failed to write audit log:", err)
		}
		log.Printf("🏁 Campaign %s completed", campaign.ID)
	}
	return nil
}
