package service

import (
	"context"
	"fmt"
	"log"
	"math"
	"time"

	"github.com/unclebandit/outreach-backend/internal/metrics"
	"github.com/unclebandit/outreach-backend/internal/model"
	"github.com/unclebandit/outreach-backend/internal/repository"
)

// Volume tiers by emails sent in the rolling window.
const (
	TierVeryLow   = "VERY_LOW"
	TierLowMedium = "LOW_MEDIUM"
	TierMedium    = "MEDIUM"
	TierHigh      = "HIGH"
)

// RollingWindow is the period over which rates are computed.
const RollingWindow = 24 * time.Hour

// Threshold holds the warning and pause limits of one tier. Both the rate
// (percent) and the absolute count must be reached. A zero warning rate
// means the warning is triggered by count alone.
type Threshold struct {
	WarnRatePercent  float64
	WarnMinCount     int
	PauseRatePercent float64
	PauseMinCount    int
}

var BounceThresholds = map[string]Threshold{
	TierVeryLow:   {0, 2, 40, 3},
	TierLowMedium: {5, 2, 8, 4},
	TierMedium:    {3, 3, 5, 10},
	TierHigh:      {2.5, 10, 4, 25},
}

var UnsubscribeThresholds = map[string]Threshold{
	TierVeryLow:   {0, 2, 20, 3},
	TierLowMedium: {1, 4, 2, 7},
	TierMedium:    {0.8, 10, 1.5, 25},
	TierHigh:      {0.7, 30, 1.5, 50},
}

var ComplaintThresholds = map[string]Threshold{
	TierVeryLow:   {0, 1, 20, 2},
	TierLowMedium: {0.5, 1, 1, 2},
	TierMedium:    {0.3, 2, 0.5, 3},
	TierHigh:      {0.1, 3, 0.3, 5},
}

// BounceKeywords identify bounced sends among FAILED rows by their last error.
var BounceKeywords = []string{"bounce", "invalid", "not found", "rejected", "does not exist", "unknown user"}

// VolumeTier returns the tier for a send volume, or "" below 5 emails.
func VolumeTier(sent int) string {
	switch {
	case sent >= 500:
		return TierHigh
	case sent >= 100:
		return TierMedium
	case sent >= 20:
		return TierLowMedium
	case sent >= 5:
		return TierVeryLow
	}
	return ""
}

func (t Threshold) warns(rate float64, count int) bool {
	if t.WarnRatePercent == 0 {
		return count >= t.WarnMinCount
	}
	return rate >= t.WarnRatePercent && count >= t.WarnMinCount
}

func (t Threshold) pauses(rate float64, count int) bool {
	return rate >= t.PauseRatePercent && count >= t.PauseMinCount
}

// Anomaly actions.
const (
	AnomalyNone    = "none"
	AnomalyWarning = "warning"
	AnomalyPaused  = "paused"
)

type AnomalyResult struct {
	CampaignID       string  `json:"campaignId"`
	Tier             string  `json:"tier,omitempty"`
	TotalSent        int     `json:"totalSent"`
	BounceCount      int     `json:"bounceCount"`
	BounceRate       float64 `json:"bounceRate"`
	UnsubscribeCount int     `json:"unsubscribeCount"`
	UnsubscribeRate  float64 `json:"unsubscribeRate"`
	ComplaintCount   int     `json:"complaintCount"`
	ComplaintRate    float64 `json:"complaintRate"`
	Action           string  `json:"action"`
	Reason           string  `json:"reason,omitempty"`
}

// AnomalyMonitor auto-pauses running campaigns whose deliverability degrades.
type AnomalyMonitor struct {
	Campaigns repository.CampaignRepositoryInterface
	Emails    repository.ScheduledEmailRepositoryInterface
	Prospects repository.ProspectRepositoryInterface
	Audit     repository.AuditRepositoryInterface
	Notifier  *Notifier
	Now       func() time.Time
}

type rateCheck struct {
	reason     string
	label      string
	count      int
	rate       float64
	thresholds map[string]Threshold
}

// Check recomputes the campaign's rolling rates and warns or pauses.
// Pause checks run before warnings: bounce, unsubscribe, then complaint.
func (m *AnomalyMonitor) Check(ctx context.Context, campaignID string) (*AnomalyResult, error) {
	c, err := m.Campaigns.GetByID(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	res := &AnomalyResult{CampaignID: c.ID, Action: AnomalyNone}
	if c.Status != model.CampaignRunning {
		return res, nil
	}

	now := nowOr(m.Now).UTC()
	stats, err := m.Emails.OutcomeStats(ctx, c.ID, now.Add(-RollingWindow), BounceKeywords)
	if err != nil {
		return nil, fmt.Errorf("load outcome stats: %w", err)
	}
	byStatus, err := m.Prospects.CountByStatusForCampaign(ctx, c.ID)
	if err != nil {
		return nil, fmt.Errorf("count prospect statuses: %w", err)
	}

	res.TotalSent = stats.Sent
	res.Tier = VolumeTier(stats.Sent)
	res.BounceCount = stats.Bounced + byStatus[model.ProspectBounced]
	res.UnsubscribeCount = byStatus[model.ProspectUnsubscribed]
	res.ComplaintCount = byStatus[model.ProspectComplained]
	res.BounceRate = percent(res.BounceCount, stats.Sent)
	res.UnsubscribeRate = percent(res.UnsubscribeCount, stats.Sent)
	res.ComplaintRate = percent(res.ComplaintCount, stats.Sent)
	if res.Tier == "" {
		return res, nil
	}

	checks := []rateCheck{
		{model.AutoPauseHighBounceRate, "bounce", res.BounceCount, res.BounceRate, BounceThresholds},
		{model.AutoPauseHighUnsubscribeRate, "unsubscribe", res.UnsubscribeCount, res.UnsubscribeRate, UnsubscribeThresholds},
		{model.AutoPauseHighComplaintRate, "complaint", res.ComplaintCount, res.ComplaintRate, ComplaintThresholds},
	}

	for _, chk := range checks {
		if chk.thresholds[res.Tier].pauses(chk.rate, chk.count) {
			return res, m.pause(ctx, c, res, chk, now)
		}
	}
	for _, chk := range checks {
		if chk.thresholds[res.Tier].warns(chk.rate, chk.count) {
			res.Action = AnomalyWarning
			res.Reason = chk.reason
			m.notify(ctx, c, model.NotificationWarning,
				fmt.Sprintf("Taux de %s élevé", chk.label),
				fmt.Sprintf("La campagne %q a un taux de %s de %.1f%% (%d sur %d envois en 24h).", c.Name, chk.label, chk.rate, chk.count, stats.Sent))
			return res, nil
		}
	}
	return res, nil
}

func (m *AnomalyMonitor) pause(ctx context.Context, c *model.Campaign, res *AnomalyResult, chk rateCheck, now time.Time) error {
	reason := chk.reason
	swapped, err := m.Campaigns.CompareAndSetStatus(ctx, c.ID, model.CampaignRunning, model.CampaignPaused, &reason, now)
	if err != nil {
		return err
	}
	if !swapped {
		return nil
	}

	res.Action = AnomalyPaused
	res.Reason = reason
	metrics.CampaignAutoPauses.WithLabelValues(reason).Inc()

	audit(ctx, m.Audit, c.WorkspaceID, "campaign", c.ID, model.AuditCampaignAutoPaused, map[string]any{
		"reason":    reason,
		"tier":      res.Tier,
		"totalSent": res.TotalSent,
		"count":     chk.count,
		"rate":      chk.rate,
	})
	m.notify(ctx, c, model.NotificationError,
		"Campagne mise en pause automatiquement",
		fmt.Sprintf("La campagne %q a été mise en pause : taux de %s de %.1f%% (%d sur %d envois en 24h).", c.Name, chk.label, chk.rate, chk.count, res.TotalSent))
	log.Printf("🚨 Campaign %s auto-paused: %s (%.1f%%)", c.ID, reason, chk.rate)
	return nil
}

func (m *AnomalyMonitor) notify(ctx context.Context, c *model.Campaign, level, title, message string) {
	if m.Notifier == nil {
		return
	}
	id := c.ID
	if err := m.Notifier.Notify(ctx, c.WorkspaceID, &id, level, title, message); err != nil {
		log.Println("⚠️ Failed to save notification:", err)
	}
}

func percent(count, total int) float64 {
	if total == 0 {
		return 0
	}
	return math.Round(float64(count)/float64(total)*10000) / 100
}
