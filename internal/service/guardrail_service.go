package service

import (
	"context"

	"github.com/unclebandit/outreach-backend/internal/repository"
	"github.com/unclebandit/outreach-backend/internal/scheduling"
)

// Pre-send check codes.
const (
	CodeWorkspaceNotFound    = "WORKSPACE_NOT_FOUND"
	CodeOnboardingIncomplete = "ONBOARDING_INCOMPLETE"
	CodeGmailNotConnected    = "GMAIL_NOT_CONNECTED"
	CodeGmailTokenInvalid    = "GMAIL_TOKEN_INVALID"
	CodeQuotaExceeded        = scheduling.CodeQuotaExceeded
)

type CanSendResult struct {
	CanSend        bool   `json:"canSend"`
	BlockedReason  string `json:"blockedReason,omitempty"`
	Code           string `json:"code,omitempty"`
	SentToday      int    `json:"sentToday"`
	DailyCap       int    `json:"dailyCap"`
	RemainingToday int    `json:"remainingToday"`
}

// GuardrailService answers the read-only pre-send check used to gate launches.
type GuardrailService struct {
	Workspaces repository.WorkspaceRepositoryInterface
	Evaluator  *scheduling.Evaluator
}

// CheckCanSend evaluates the guardrails in a fixed order and reports the first
// one that blocks. The sending window is not a guardrail here; only the quota is.
func (s *GuardrailService) CheckCanSend(ctx context.Context, workspaceID string) (*CanSendResult, error) {
	ws, err := s.Workspaces.GetByID(ctx, workspaceID)
	if err != nil {
		return nil, err
	}
	if ws == nil {
		return blocked(CodeWorkspaceNotFound, "Workspace introuvable."), nil
	}
	if !ws.OnboardingComplete {
		return blocked(CodeOnboardingIncomplete, "Terminez la configuration de votre espace avant d'envoyer."), nil
	}

	token, err := s.Workspaces.GetMailboxToken(ctx, workspaceID)
	if err != nil {
		return nil, err
	}
	if token == nil {
		return blocked(CodeGmailNotConnected, "Connectez votre compte Gmail pour envoyer des emails."), nil
	}
	if !token.IsValid {
		return blocked(CodeGmailTokenInvalid, "Votre connexion Gmail a expiré. Reconnectez votre compte."), nil
	}

	d, err := s.Evaluator.Evaluate(ctx, workspaceID, nil)
	if err != nil {
		return nil, err
	}
	res := &CanSendResult{
		CanSend:        true,
		SentToday:      d.SentToday,
		DailyCap:       d.DailyCap,
		RemainingToday: d.RemainingToday,
	}
	if d.RemainingToday == 0 {
		res.CanSend = false
		res.Code = CodeQuotaExceeded
		res.BlockedReason = "Quota journalier atteint. Les envois reprendront demain."
	}
	return res, nil
}

func blocked(code, reason string) *CanSendResult {
	return &CanSendResult{CanSend: false, Code: code, BlockedReason: reason}
}
