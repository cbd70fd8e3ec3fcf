package repository

import (
	"context"
	"testing"
	"time"

	appErrors "github.com/unclebandit/outreach-backend/internal/errors"
	"github.com/unclebandit/outreach-backend/internal/idempotency"
	"github.com/unclebandit/outreach-backend/internal/model"
)

func newTestStore(now time.Time) *MemoryStore {
	store := NewMemoryStore()
	store.SetNow(func() time.Time { return now })
	return store
}

func TestMemoryStore_EnqueueIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(time.Date(2026, 10, 19, 8, 0, 0, 0, time.UTC))
	in := testInput()

	first, err := store.ScheduledEmails.Enqueue(ctx, in)
	if err != nil {
		t.Fatalf("first Enqueue: %v", err)
	}
	second, err := store.ScheduledEmails.Enqueue(ctx, in)
	if !appErrors.IsDuplicateKey(err) {
		t.Fatalf("expected duplicate key error, got %v", err)
	}
	if second.ID != first.ID {
		t.Errorf("duplicate returned %s, want existing %s", second.ID, first.ID)
	}

	rows, _ := store.ScheduledEmails.ListByCampaign(ctx, "camp-1")
	if len(rows) != 1 {
		t.Errorf("rows = %d, want 1", len(rows))
	}
}

func TestMemoryStore_ReleasedKeyCanBeReused(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(time.Date(2026, 10, 19, 8, 0, 0, 0, time.UTC))
	in := testInput()

	first, _ := store.ScheduledEmails.Enqueue(ctx, in)
	n, err := store.ScheduledEmails.CancelAllForCampaign(ctx, "camp-1", model.PendingEmailStatuses, true)
	if err != nil || n != 1 {
		t.Fatalf("CancelAllForCampaign = %d, %v", n, err)
	}

	cancelled, _ := store.ScheduledEmails.GetByID(ctx, first.ID)
	if !idempotency.IsCancelled(cancelled.IdempotencyKey) {
		t.Errorf("key not released: %s", cancelled.IdempotencyKey)
	}
	if _, err := store.ScheduledEmails.Enqueue(ctx, in); err != nil {
		t.Errorf("re-enqueue after release: %v", err)
	}
}

func TestMemoryStore_ClaimDueRespectsLeaseAndRetryTime(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 10, 19, 10, 0, 0, 0, time.UTC)
	store := newTestStore(now)

	due := testInput()
	due.ScheduledFor = now.Add(-time.Hour)
	dueRow, _ := store.ScheduledEmails.Enqueue(ctx, due)

	retrying := testInput()
	retrying.ProspectID = "p-2"
	retrying.ScheduledFor = now.Add(-2 * time.Hour)
	retryRow, _ := store.ScheduledEmails.Enqueue(ctx, retrying)
	next := now.Add(time.Minute)
	store.ScheduledEmails.MarkFailed(ctx, retryRow.ID, "", "TEMPORARY_FAILURE: x", 1, &next)

	claimed, err := store.ScheduledEmails.ClaimDue(ctx, "ws-1", now, 10, "w1", 5*time.Minute)
	if err != nil {
		t.Fatalf("ClaimDue: %v", err)
	}
	if len(claimed) != 1 || claimed[0].ID != dueRow.ID {
		t.Fatalf("claimed = %+v, want only the due row", claimed)
	}

	again, _ := store.ScheduledEmails.ClaimDue(ctx, "ws-1", now, 10, "w2", 5*time.Minute)
	if len(again) != 0 {
		t.Errorf("second worker claimed %d leased rows", len(again))
	}

	later, _ := store.ScheduledEmails.ClaimDue(ctx, "ws-1", now.Add(10*time.Minute), 10, "w2", 5*time.Minute)
	if len(later) != 2 {
		t.Errorf("after lease expiry and retry time, claimed %d, want 2", len(later))
	}
}

func TestMemoryStore_BulkCancelSkipsClaimedRows(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 10, 19, 10, 0, 0, 0, time.UTC)
	store := newTestStore(now)

	in := testInput()
	in.ScheduledFor = now.Add(-time.Minute)
	row, _ := store.ScheduledEmails.Enqueue(ctx, in)
	store.ScheduledEmails.ClaimDue(ctx, "ws-1", now, 1, "w1", time.Minute)

	n, _ := store.ScheduledEmails.CancelAllForProspect(ctx, "p-1", model.PendingEmailStatuses)
	if n != 0 {
		t.Errorf("cancelled %d in-flight rows", n)
	}

	ok, _ := store.ScheduledEmails.MarkSent(ctx, row.ID, "w1", "m", "t", now)
	if !ok {
		t.Fatal("in-flight row should still be sendable")
	}
	ok, _ = store.ScheduledEmails.MarkCancelled(ctx, row.ID)
	if ok {
		t.Error("a sent row must never be cancelled")
	}
}

func TestMemoryStore_ExpiredLeaseIsLostToNewClaimer(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 10, 19, 10, 0, 0, 0, time.UTC)
	store := newTestStore(now)

	in := testInput()
	in.ScheduledFor = now.Add(-time.Minute)
	row, _ := store.ScheduledEmails.Enqueue(ctx, in)
	store.ScheduledEmails.ClaimDue(ctx, "ws-1", now, 1, "w1", time.Minute)

	ok, _ := store.ScheduledEmails.ExtendClaim(ctx, row.ID, "w1", now.Add(5*time.Minute))
	if !ok {
		t.Fatal("the holder should be able to extend its lease")
	}
	if again, _ := store.ScheduledEmails.ClaimDue(ctx, "ws-1", now.Add(2*time.Minute), 1, "w2", time.Minute); len(again) != 0 {
		t.Fatal("an extended lease must not be reclaimed")
	}

	claimed, _ := store.ScheduledEmails.ClaimDue(ctx, "ws-1", now.Add(6*time.Minute), 1, "w2", time.Minute)
	if len(claimed) != 1 {
		t.Fatalf("claimed %d rows after lease expiry, want 1", len(claimed))
	}
	if ok, _ := store.ScheduledEmails.ExtendClaim(ctx, row.ID, "w1", now.Add(10*time.Minute)); ok {
		t.Error("a stale holder must not extend a lease it lost")
	}
	if ok, _ := store.ScheduledEmails.MarkSent(ctx, row.ID, "w1", "m", "t", now); ok {
		t.Error("a stale holder must not mark the row sent")
	}
	if ok, _ := store.ScheduledEmails.MarkFailed(ctx, row.ID, "", "TEMPORARY_FAILURE: x", 1, nil); ok {
		t.Error("an unclaimed update must not touch a leased row")
	}
	if ok, _ := store.ScheduledEmails.MarkSent(ctx, row.ID, "w2", "m", "t", now); !ok {
		t.Error("the current holder should mark the row sent")
	}
}

func TestMemoryStore_CampaignCompareAndSet(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 10, 19, 10, 0, 0, 0, time.UTC)
	store := newTestStore(now)

	c := &model.Campaign{WorkspaceID: "ws-1", Name: "Q4"}
	store.Campaigns.Create(ctx, c)

	ok, _ := store.Campaigns.CompareAndSetStatus(ctx, c.ID, model.CampaignDraft, model.CampaignRunning, nil, now)
	if !ok {
		t.Fatal("draft -> running should succeed")
	}
	ok, _ = store.Campaigns.CompareAndSetStatus(ctx, c.ID, model.CampaignDraft, model.CampaignPaused, nil, now)
	if ok {
		t.Error("stale from-status must not apply")
	}

	got, _ := store.Campaigns.GetByID(ctx, c.ID)
	if got.LaunchedAt == nil || !got.LaunchedAt.Equal(now) {
		t.Errorf("launchedAt = %v", got.LaunchedAt)
	}
}

func TestMemoryStore_CountByStatusForCampaign(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(time.Now())

	for i, status := range []string{model.ProspectActive, model.ProspectBounced, model.ProspectBounced} {
		p := &model.Prospect{WorkspaceID: "ws-1", Email: string(rune('a'+i)) + "@x.io", Status: status}
		store.Prospects.Create(ctx, p)
		store.Enrollments.Create(ctx, &model.CampaignProspect{CampaignID: "camp-1", ProspectID: p.ID, WorkspaceID: "ws-1"})
	}

	counts, _ := store.Prospects.CountByStatusForCampaign(ctx, "camp-1")
	if counts[model.ProspectBounced] != 2 || counts[model.ProspectActive] != 1 {
		t.Errorf("counts = %v", counts)
	}
}
