package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/unclebandit/outreach-backend/internal/model"
)

func TestEnrollmentRepository_CompareAndSetStatusTypesTimestamp(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := &EnrollmentRepository{DB: db}
	now := time.Date(2026, 10, 19, 8, 0, 0, 0, time.UTC)

	// Without the casts Postgres deduces text for $4 inside the CASE and
	// rejects the statement.
	mock.ExpectExec(regexp.QuoteMeta("paused_at = CASE WHEN $3::text = 'PAUSED' THEN $4::timestamptz ELSE NULL END, updated_at = $4::timestamptz")).
		WithArgs("cp-1", model.EnrollmentEnrolled, model.EnrollmentPaused, now).
		WillReturnResult(sqlmock.NewResult(0, 1))

	ok, err := repo.CompareAndSetStatus(context.Background(), "cp-1", model.EnrollmentEnrolled, model.EnrollmentPaused, now)
	if err != nil || !ok {
		t.Fatalf("CompareAndSetStatus = %v, %v", ok, err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestEnrollmentRepository_CompareAndSetStatusLosesRace(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := &EnrollmentRepository{DB: db}
	now := time.Date(2026, 10, 19, 8, 0, 0, 0, time.UTC)

	mock.ExpectExec(regexp.QuoteMeta("WHERE id = $1 AND enrollment_status = $2")).
		WithArgs("cp-1", model.EnrollmentEnrolled, model.EnrollmentCompleted, now).
		WillReturnResult(sqlmock.NewResult(0, 0))

	ok, err := repo.CompareAndSetStatus(context.Background(), "cp-1", model.EnrollmentEnrolled, model.EnrollmentCompleted, now)
	if err != nil {
		t.Fatalf("CompareAndSetStatus error: %v", err)
	}
	if ok {
		t.Error("expected no swap when the status already moved on")
	}
}

func TestCampaignRepository_CompareAndSetStatusTypesTimestamp(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := &CampaignRepository{DB: db}
	now := time.Date(2026, 10, 19, 8, 0, 0, 0, time.UTC)

	mock.ExpectExec(regexp.QuoteMeta("paused_at = CASE WHEN $3::text = 'PAUSED' THEN $5::timestamptz ELSE NULL END")).
		WithArgs("c-1", model.CampaignRunning, model.CampaignPaused, nil, now).
		WillReturnResult(sqlmock.NewResult(0, 1))

	ok, err := repo.CompareAndSetStatus(context.Background(), "c-1", model.CampaignRunning, model.CampaignPaused, nil, now)
	if err != nil || !ok {
		t.Fatalf("CompareAndSetStatus = %v, %v", ok, err)
	}
}
