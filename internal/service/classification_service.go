package service

import (
	"context"
	"fmt"

	appErrors "github.com/unclebandit/outreach-backend/internal/errors"
	"github.com/unclebandit/outreach-backend/internal/model"
	"github.com/unclebandit/outreach-backend/internal/repository"
)

// classificationCascades maps a classification to its cascade. OUT_OF_OFFICE
// has none; every other inbound classification counts as a reply.
var classificationCascades = map[string]string{
	model.ClassificationUnsubscribe:   CascadeUnsubscribe,
	model.ClassificationBounce:        CascadeBounce,
	model.ClassificationOutOfOffice:   "",
	model.ClassificationInterested:    CascadeReply,
	model.ClassificationNotInterested: CascadeReply,
	model.ClassificationNeutral:       CascadeReply,
}

// ClassificationService records a message classification and runs its cascade.
type ClassificationService struct {
	Inbox   repository.InboxRepositoryInterface
	Cascade *CascadeService
}

// CascadeFor returns the cascade reason for a classification of an inbound
// message. An unclassified reply on a known thread is treated as a reply.
func CascadeFor(classification *string) string {
	if classification == nil {
		return CascadeReply
	}
	return classificationCascades[*classification]
}

// Apply runs the cascade for an already persisted inbound message.
// It returns nil when the classification triggers nothing.
func (s *ClassificationService) Apply(ctx context.Context, conv *model.Conversation, classification *string) (*CascadeSummary, error) {
	reason := CascadeFor(classification)
	if reason == "" {
		return nil, nil
	}
	target := CascadeTarget{WorkspaceID: conv.WorkspaceID, ProspectID: conv.ProspectID}
	if conv.CampaignID != nil {
		target.CampaignID = *conv.CampaignID
	}
	if reason == CascadeReply && target.CampaignID == "" {
		return nil, nil
	}
	return s.Cascade.Cascade(ctx, target, reason)
}

// Classify stores an externally supplied classification and runs its cascade.
func (s *ClassificationService) Classify(ctx context.Context, messageID, classification string) (*CascadeSummary, error) {
	if _, ok := classificationCascades[classification]; !ok {
		return nil, appErrors.NewValidationError("classification", fmt.Sprintf("unknown classification %q", classification))
	}
	msg, err := s.Inbox.GetMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if msg.Direction != model.DirectionInbound {
		return nil, appErrors.NewValidationError("messageId", "only inbound messages can be classified")
	}
	conv, err := s.Inbox.GetConversation(ctx, msg.ConversationID)
	if err != nil {
		return nil, err
	}
	if err := s.Inbox.SetClassification(ctx, msg.ID, &classification); err != nil {
		return nil, err
	}
	return s.Apply(ctx, conv, &classification)
}
