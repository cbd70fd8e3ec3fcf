package repository

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"

	appErrors "github.com/unclebandit/outreach-backend/internal/errors"
	"github.com/unclebandit/outreach-backend/internal/model"
)

var scheduledEmailCols = []string{
	"id", "idempotency_key", "workspace_id", "campaign_id", "campaign_prospect_id",
	"prospect_id", "sequence_id", "step_number", "status", "scheduled_for", "attempts", "last_error",
	"next_retry_at", "message_id", "thread_id", "sent_at", "claimed_by", "claimed_until", "created_at", "updated_at",
}

func setupMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db, mock
}

func scheduledRow(id, key string, scheduledFor time.Time) []driver.Value {
	now := time.Now().UTC()
	return []driver.Value{
		id, key, "ws-1", "camp-1", "cp-1",
		"p-1", "seq-1", 1, "SCHEDULED", scheduledFor, 0, nil,
		nil, nil, nil, nil, nil, nil, now, now,
	}
}

func testInput() model.ScheduledEmailInput {
	return model.ScheduledEmailInput{
		WorkspaceID:        "ws-1",
		CampaignID:         "camp-1",
		CampaignProspectID: "cp-1",
		ProspectID:         "p-1",
		SequenceID:         "seq-1",
		StepNumber:         1,
		ScheduledFor:       time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC),
	}
}

func TestScheduledEmailRepository_EnqueueInserts(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := &ScheduledEmailRepository{DB: db}
	in := testInput()

	mock.ExpectQuery(regexp.QuoteMeta("WHERE idempotency_key = $1")).
		WithArgs("p-1:seq-1:1").
		WillReturnRows(sqlmock.NewRows(scheduledEmailCols))
	mock.ExpectQuery("INSERT INTO scheduled_emails").
		WillReturnRows(sqlmock.NewRows(scheduledEmailCols).AddRow(scheduledRow("row-1", "p-1:seq-1:1", in.ScheduledFor)...))

	e, err := repo.Enqueue(context.Background(), in)
	if err != nil {
		t.Fatalf("Enqueue error: %v", err)
	}
	if e.ID != "row-1" || e.IdempotencyKey != "p-1:seq-1:1" {
		t.Errorf("unexpected row: %+v", e)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestScheduledEmailRepository_EnqueueDuplicateFromPrecheck(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := &ScheduledEmailRepository{DB: db}
	in := testInput()

	mock.ExpectQuery(regexp.QuoteMeta("WHERE idempotency_key = $1")).
		WillReturnRows(sqlmock.NewRows(scheduledEmailCols).AddRow(scheduledRow("existing", "p-1:seq-1:1", in.ScheduledFor)...))

	e, err := repo.Enqueue(context.Background(), in)
	if !appErrors.IsDuplicateKey(err) {
		t.Fatalf("expected duplicate key error, got %v", err)
	}
	if e == nil || e.ID != "existing" {
		t.Errorf("expected existing row, got %+v", e)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestScheduledEmailRepository_EnqueueUniqueViolationRace(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := &ScheduledEmailRepository{DB: db}
	in := testInput()

	mock.ExpectQuery(regexp.QuoteMeta("WHERE idempotency_key = $1")).
		WillReturnRows(sqlmock.NewRows(scheduledEmailCols))
	mock.ExpectQuery("INSERT INTO scheduled_emails").
		WillReturnError(&pq.Error{Code: uniqueViolation})
	mock.ExpectQuery(regexp.QuoteMeta("WHERE idempotency_key = $1")).
		WillReturnRows(sqlmock.NewRows(scheduledEmailCols).AddRow(scheduledRow("winner", "p-1:seq-1:1", in.ScheduledFor)...))

	e, err := repo.Enqueue(context.Background(), in)
	if !appErrors.IsDuplicateKey(err) {
		t.Fatalf("expected duplicate key error, got %v", err)
	}
	if e == nil || e.ID != "winner" {
		t.Errorf("expected the concurrent winner, got %+v", e)
	}
}

func TestScheduledEmailRepository_EnqueueRejectsInvalidKey(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := &ScheduledEmailRepository{DB: db}
	in := testInput()
	in.ProspectID = "bad:id"

	_, err := repo.Enqueue(context.Background(), in)
	if appErrors.CodeOf(err) != appErrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("no query expected: %v", err)
	}
}

func TestScheduledEmailRepository_ClaimDue(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := &ScheduledEmailRepository{DB: db}
	now := time.Date(2026, 10, 19, 10, 0, 0, 0, time.UTC)

	later := now.Add(-time.Minute)
	earlier := now.Add(-time.Hour)
	mock.ExpectQuery(regexp.QuoteMeta("FOR UPDATE SKIP LOCKED")).
		WithArgs("worker-1", sqlmock.AnyArg(), sqlmock.AnyArg(), "ws-1", 10).
		WillReturnRows(sqlmock.NewRows(scheduledEmailCols).
			AddRow(scheduledRow("b", "p-2:seq-1:1", later)...).
			AddRow(scheduledRow("a", "p-1:seq-1:1", earlier)...))

	emails, err := repo.ClaimDue(context.Background(), "ws-1", now, 10, "worker-1", 5*time.Minute)
	if err != nil {
		t.Fatalf("ClaimDue error: %v", err)
	}
	if len(emails) != 2 || emails[0].ID != "a" || emails[1].ID != "b" {
		t.Errorf("expected rows ordered by scheduled time, got %+v", emails)
	}
}

func TestScheduledEmailRepository_ClaimDueZeroLimit(t *testing.T) {
	db, _ := setupMockDB(t)
	repo := &ScheduledEmailRepository{DB: db}

	emails, err := repo.ClaimDue(context.Background(), "ws-1", time.Now(), 0, "worker-1", time.Minute)
	if err != nil || len(emails) != 0 {
		t.Errorf("expected no rows and no error, got %v, %v", emails, err)
	}
}

func TestScheduledEmailRepository_MarkSentIsConditional(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := &ScheduledEmailRepository{DB: db}

	mock.ExpectExec(regexp.QuoteMeta("status IN ('SCHEDULED', 'RETRY_SCHEDULED') AND claimed_by IS NOT DISTINCT FROM NULLIF($5, '')")).
		WithArgs("row-1", "msg-1", "thread-1", sqlmock.AnyArg(), "worker-1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	ok, err := repo.MarkSent(context.Background(), "row-1", "worker-1", "msg-1", "thread-1", time.Now())
	if err != nil {
		t.Fatalf("MarkSent error: %v", err)
	}
	if ok {
		t.Error("expected no-op when the row is no longer pending")
	}
}

func TestScheduledEmailRepository_MarkFailedSchedulesRetry(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := &ScheduledEmailRepository{DB: db}
	next := time.Now().Add(time.Minute)

	mock.ExpectExec(regexp.QuoteMeta("claimed_by IS NOT DISTINCT FROM NULLIF($6, '')")).
		WithArgs("row-1", model.EmailRetryScheduled, "TEMPORARY_FAILURE: timeout", 1, sqlmock.AnyArg(), "worker-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	ok, err := repo.MarkFailed(context.Background(), "row-1", "worker-1", "TEMPORARY_FAILURE: timeout", 1, &next)
	if err != nil || !ok {
		t.Fatalf("MarkFailed = %v, %v", ok, err)
	}
}

func TestScheduledEmailRepository_ExtendClaimRequiresHolder(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := &ScheduledEmailRepository{DB: db}
	until := time.Date(2026, 10, 19, 8, 5, 0, 0, time.UTC)

	mock.ExpectExec(regexp.QuoteMeta("SET claimed_until = $3, updated_at = NOW() WHERE id = $1 AND claimed_by = $2")).
		WithArgs("row-1", "worker-1", until).
		WillReturnResult(sqlmock.NewResult(0, 0))

	ok, err := repo.ExtendClaim(context.Background(), "row-1", "worker-1", until)
	if err != nil {
		t.Fatalf("ExtendClaim error: %v", err)
	}
	if ok {
		t.Error("expected false when another worker holds the row")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestScheduledEmailRepository_CancelAllForCampaignReleasesKeys(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := &ScheduledEmailRepository{DB: db}

	mock.ExpectExec(regexp.QuoteMeta("idempotency_key = idempotency_key || '::CANCELLED::' || id")).
		WithArgs("camp-1", pq.Array([]string{model.EmailScheduled, model.EmailRetryScheduled})).
		WillReturnResult(sqlmock.NewResult(0, 4))

	n, err := repo.CancelAllForCampaign(context.Background(), "camp-1",
		[]string{model.EmailScheduled, model.EmailRetryScheduled, model.EmailSent}, true)
	if err != nil {
		t.Fatalf("CancelAllForCampaign error: %v", err)
	}
	if n != 4 {
		t.Errorf("cancelled = %d, want 4", n)
	}
}

func TestScheduledEmailRepository_OutcomeStats(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := &ScheduledEmailRepository{DB: db}

	mock.ExpectQuery(regexp.QuoteMeta("LIKE ANY($3)")).
		WithArgs("camp-1", sqlmock.AnyArg(), pq.Array([]string{"%bounce%", "%mailbox not found%"})).
		WillReturnRows(sqlmock.NewRows([]string{"sent", "failed", "bounced"}).AddRow(40, 5, 3))

	st, err := repo.OutcomeStats(context.Background(), "camp-1", time.Now().Add(-24*time.Hour), []string{"bounce", "Mailbox not found"})
	if err != nil {
		t.Fatalf("OutcomeStats error: %v", err)
	}
	if st != (OutcomeStats{Sent: 40, Failed: 5, Bounced: 3}) {
		t.Errorf("unexpected stats: %+v", st)
	}
}

func TestPendingOnly(t *testing.T) {
	got := pendingOnly([]string{model.EmailSent, model.EmailScheduled, model.EmailCancelled, model.EmailRetryScheduled})
	if len(got) != 2 || got[0] != model.EmailScheduled || got[1] != model.EmailRetryScheduled {
		t.Errorf("pendingOnly = %v", got)
	}
}
