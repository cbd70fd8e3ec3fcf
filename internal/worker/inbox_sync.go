package worker

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	appErrors "github.com/unclebandit/outreach-backend/internal/errors"
	"github.com/unclebandit/outreach-backend/internal/gmail"
	"github.com/unclebandit/outreach-backend/internal/inbox"
	"github.com/unclebandit/outreach-backend/internal/metrics"
	"github.com/unclebandit/outreach-backend/internal/model"
	"github.com/unclebandit/outreach-backend/internal/ratelimit"
	"github.com/unclebandit/outreach-backend/internal/repository"
	"github.com/unclebandit/outreach-backend/internal/service"
)

const DefaultMessageDelay = 50 * time.Millisecond

type matchResult int

const (
	matchLinked matchResult = iota
	matchUnlinked
	matchDuplicate
	matchOwn
)

// InboxSync polls the mailbox of every connected workspace, stores replies
// and runs their classification cascade.
type InboxSync struct {
	Repos      *repository.Repositories
	Mailbox    gmail.Mailbox
	Limiter    ratelimit.Limiter
	Classifier *service.ClassificationService

	MessageDelay time.Duration
	Parallelism  int

	Sleep func(ctx context.Context, d time.Duration) error
	Now   func() time.Time
}

func (s *InboxSync) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *InboxSync) pause(ctx context.Context) error {
	d := orDefault(s.MessageDelay, DefaultMessageDelay)
	if s.Sleep != nil {
		return s.Sleep(ctx, d)
	}
	return sleepCtx(ctx, d)
}

// RunOnce syncs every workspace whose mailbox token is valid.
func (s *InboxSync) RunOnce(ctx context.Context) (*Summary, error) {
	start := time.Now()
	ids, err := s.Repos.Workspaces.ListWithValidMailbox(ctx)
	if err != nil {
		return nil, fmt.Errorf("list connected workspaces: %w", err)
	}

	results := forEachWorkspace(ctx, ids, s.Parallelism, s.SyncWorkspace)
	summary := summarize(results, time.Since(start))
	log.Printf("📥 Inbox sync done: %d messages, %d matched, %d unlinked, %d/%d workspaces ok in %s",
		summary.TotalProcessed, summary.TotalMatched, summary.TotalUnlinked,
		summary.Successful, summary.TotalWorkspaces, summary.Duration)
	return summary, nil
}

// SyncWorkspace fetches and processes the new messages of one workspace.
// An auth failure invalidates the mailbox token and fails only this workspace.
func (s *InboxSync) SyncWorkspace(ctx context.Context, workspaceID string) WorkspaceResult {
	res := WorkspaceResult{WorkspaceID: workspaceID, Success: true}

	token, err := s.Repos.Workspaces.GetMailboxToken(ctx, workspaceID)
	if err != nil {
		return failed(res, err)
	}
	if token == nil || !token.IsValid {
		res.Skipped = service.CodeGmailTokenInvalid
		return res
	}

	envelopes, err := s.fetch(ctx, workspaceID, token.LastSyncAt)
	if err != nil {
		if appErrors.IsAuthError(err) {
			if err := s.Repos.Workspaces.MarkTokenInvalid(ctx, workspaceID, err.Error(), s.now()); err != nil {
				log.Println("❌ Failed to mark mailbox token invalid:", err)
			}
			log.Printf("🔒 Mailbox of workspace %s rejected credentials, sync disabled", workspaceID)
		}
		return failed(res, err)
	}

	// The sync watermark only moves once every fetched message went through,
	// so a message whose cascade failed is fetched and re-driven next pass.
	complete := true
	for i, env := range envelopes {
		if i > 0 {
			if err := s.pause(ctx); err != nil {
				res.Errors++
				complete = false
				break
			}
		}
		res.Processed++

		raw, err := inbox.ParseRaw(env)
		if err != nil {
			res.Errors++
			log.Printf("⚠️ Could not parse message %s: %v", env.ID, err)
			continue
		}
		match, err := s.processMessage(ctx, workspaceID, token, raw)
		if err != nil {
			res.Errors++
			complete = false
			log.Printf("⚠️ Could not process message %s: %v", env.ID, err)
			continue
		}
		switch match {
		case matchLinked, matchDuplicate:
			res.Matched++
		case matchUnlinked:
			res.Unlinked++
		}
	}

	if !complete {
		log.Printf("⚠️ Sync of workspace %s incomplete, keeping last sync time", workspaceID)
		return res
	}
	if err := s.Repos.Workspaces.TouchLastSync(ctx, workspaceID, s.now()); err != nil {
		res.Errors++
		log.Println("⚠️ Failed to update last sync time:", err)
	}
	return res
}

func (s *InboxSync) fetch(ctx context.Context, workspaceID string, since *time.Time) ([]gmail.Envelope, error) {
	if s.Limiter != nil {
		ok, err := s.Limiter.Acquire(ctx, workspaceID)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("too many concurrent requests for workspace %s", workspaceID)
		}
		defer s.Limiter.Release(context.Background(), workspaceID)
	}
	return s.Mailbox.FetchNewMessages(ctx, workspaceID, since)
}

// processMessage links an inbound message to a conversation, stores it,
// classifies it and runs the cascade.
func (s *InboxSync) processMessage(ctx context.Context, workspaceID string, token *model.MailboxToken, raw model.RawMessage) (matchResult, error) {
	repos := s.Repos
	if strings.EqualFold(raw.FromAddress, token.Email) {
		return matchOwn, nil
	}

	conv, err := s.match(ctx, workspaceID, raw)
	if err != nil {
		return matchUnlinked, err
	}
	if conv == nil {
		return matchUnlinked, nil
	}

	classification := inbox.Classify(raw.Subject, raw.Body)
	created, err := repos.Inbox.CreateMessage(ctx, &model.InboxMessage{
		ConversationID: conv.ID,
		ExternalID:     raw.ExternalID,
		Direction:      model.DirectionInbound,
		FromAddress:    raw.FromAddress,
		Subject:        raw.Subject,
		Body:           raw.Body,
		Classification: classification,
		ReceivedAt:     raw.ReceivedAt,
	})
	if err != nil {
		return matchLinked, fmt.Errorf("store inbound message: %w", err)
	}
	match := matchLinked
	if created {
		metrics.InboxMessages.WithLabelValues(metrics.Label(classification)).Inc()
	} else {
		// Cascades are idempotent; running it again completes one that failed
		// after the message was stored.
		match = matchDuplicate
	}

	summary, err := s.Classifier.Apply(ctx, conv, classification)
	if err != nil {
		return match, fmt.Errorf("apply cascade: %w", err)
	}
	if !created {
		return match, nil
	}
	if summary != nil {
		log.Printf("📨 Message %s from %s classified %s: %s cascade", raw.ExternalID, raw.FromAddress, metrics.Label(classification), summary.Reason)
	}
	return matchLinked, nil
}

// match finds the conversation of a message by thread id, then by the sent
// email of that thread, then by the sender address.
func (s *InboxSync) match(ctx context.Context, workspaceID string, raw model.RawMessage) (*model.Conversation, error) {
	repos := s.Repos
	conv := &model.Conversation{WorkspaceID: workspaceID, ThreadID: raw.ThreadID, LastMessageAt: raw.ReceivedAt}

	if raw.ThreadID != "" {
		existing, err := repos.Inbox.FindConversationByThread(ctx, workspaceID, raw.ThreadID)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			conv.ProspectID = existing.ProspectID
			conv.CampaignID = existing.CampaignID
			return repos.Inbox.UpsertConversation(ctx, conv)
		}

		sent, err := repos.SentEmails.FindByThreadID(ctx, workspaceID, raw.ThreadID)
		if err != nil {
			return nil, err
		}
		if sent != nil {
			campaignID := sent.CampaignID
			conv.ProspectID = sent.ProspectID
			conv.CampaignID = &campaignID
			return repos.Inbox.UpsertConversation(ctx, conv)
		}
	}

	prospect, err := repos.Prospects.FindByEmail(ctx, workspaceID, raw.FromAddress)
	if err != nil || prospect == nil {
		return nil, err
	}
	conv.ProspectID = prospect.ID
	latest, err := repos.SentEmails.LatestForProspect(ctx, workspaceID, prospect.ID)
	if err != nil {
		return nil, err
	}
	if latest != nil {
		campaignID := latest.CampaignID
		conv.CampaignID = &campaignID
	}
	if conv.ThreadID == "" {
		conv.ThreadID = "prospect:" + prospect.ID
	}
	return repos.Inbox.UpsertConversation(ctx, conv)
}
