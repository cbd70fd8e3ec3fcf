package scheduling

import (
	"context"
	"fmt"
	"time"

	"github.com/unclebandit/outreach-backend/internal/model"
)

// Decision codes.
const (
	CodeOutsideWindow = "OUTSIDE_SENDING_WINDOW"
	CodeQuotaExceeded = "QUOTA_EXCEEDED"
)

// SettingsSource loads a workspace's sending settings, nil when none were saved.
type SettingsSource interface {
	GetByWorkspace(ctx context.Context, workspaceID string) (*model.SendingSettings, error)
}

// SentCounter counts delivered emails of a workspace in [from, to).
type SentCounter interface {
	CountForWorkspaceBetween(ctx context.Context, workspaceID string, from, to time.Time) (int, error)
}

type SendDecision struct {
	Allowed        bool   `json:"allowed"`
	Reason         string `json:"reason,omitempty"`
	Code           string `json:"code,omitempty"`
	SentToday      int    `json:"sentToday"`
	DailyCap       int    `json:"dailyCap"`
	RemainingToday int    `json:"remainingToday"`
}

// Evaluator answers whether a workspace may send right now.
// It must be consulted immediately before every dispatch attempt.
type Evaluator struct {
	Settings SettingsSource
	Sent     SentCounter
	Now      func() time.Time
}

func (e *Evaluator) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

// SettingsFor returns the saved settings or the defaults.
func (e *Evaluator) SettingsFor(ctx context.Context, workspaceID string) (*model.SendingSettings, error) {
	s, err := e.Settings.GetByWorkspace(ctx, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("load sending settings: %w", err)
	}
	if s == nil {
		return model.DefaultSendingSettings(workspaceID), nil
	}
	return s, nil
}

// Evaluate checks window and quota for workspaceID. launchedAt selects the
// ramp-up day; pass nil to evaluate against the day-1 cap.
func (e *Evaluator) Evaluate(ctx context.Context, workspaceID string, launchedAt *time.Time) (SendDecision, error) {
	settings, err := e.SettingsFor(ctx, workspaceID)
	if err != nil {
		return SendDecision{}, err
	}
	return e.evaluate(ctx, settings, launchedAt)
}

// EvaluateCeiling checks window and quota against the full daily quota,
// ignoring ramp-up. Campaign-level caps are checked per row with Evaluate.
func (e *Evaluator) EvaluateCeiling(ctx context.Context, workspaceID string) (SendDecision, error) {
	settings, err := e.SettingsFor(ctx, workspaceID)
	if err != nil {
		return SendDecision{}, err
	}
	ceiling := *settings
	ceiling.RampUpEnabled = false
	return e.evaluate(ctx, &ceiling, nil)
}

func (e *Evaluator) evaluate(ctx context.Context, s *model.SendingSettings, launchedAt *time.Time) (SendDecision, error) {
	now := e.now()

	from, to := DayBounds(s.Timezone, now)
	sent, err := e.Sent.CountForWorkspaceBetween(ctx, s.WorkspaceID, from, to)
	if err != nil {
		return SendDecision{}, fmt.Errorf("count sent today: %w", err)
	}

	dailyCap := RampUpQuota(s, RampUpDay(s.Timezone, launchedAt, now))
	d := SendDecision{
		SentToday:      sent,
		DailyCap:       dailyCap,
		RemainingToday: max(dailyCap-sent, 0),
	}

	if !IsWithinWindow(s, now) {
		d.Code = CodeOutsideWindow
		d.Reason = fmt.Sprintf("outside sending window (%02d:00-%02d:00 %s)", s.StartHour, s.EndHour, s.Timezone)
		return d, nil
	}
	if d.RemainingToday == 0 {
		d.Code = CodeQuotaExceeded
		d.Reason = fmt.Sprintf("daily quota reached (%d/%d)", sent, dailyCap)
		return d, nil
	}
	d.Allowed = true
	return d, nil
}
