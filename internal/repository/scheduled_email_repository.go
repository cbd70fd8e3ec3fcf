package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	appErrors "github.com/unclebandit/outreach-backend/internal/errors"
	"github.com/unclebandit/outreach-backend/internal/idempotency"
	"github.com/unclebandit/outreach-backend/internal/model"
)

// uniqueViolation is the Postgres SQLSTATE for unique constraint conflicts.
const uniqueViolation = "23505"

const scheduledEmailColumns = `id, idempotency_key, workspace_id, campaign_id, campaign_prospect_id,
    prospect_id, sequence_id, step_number, status, scheduled_for, attempts, last_error,
    next_retry_at, message_id, thread_id, sent_at, claimed_by, claimed_until, created_at, updated_at`

type ScheduledEmailRepository struct {
	DB *sql.DB
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanScheduledEmail(row rowScanner) (*model.ScheduledEmail, error) {
	var e model.ScheduledEmail
	err := row.Scan(
		&e.ID, &e.IdempotencyKey, &e.WorkspaceID, &e.CampaignID, &e.CampaignProspectID,
		&e.ProspectID, &e.SequenceID, &e.StepNumber, &e.Status, &e.ScheduledFor, &e.Attempts, &e.LastError,
		&e.NextRetryAt, &e.MessageID, &e.ThreadID, &e.SentAt, &e.ClaimedBy, &e.ClaimedUntil, &e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func scanScheduledEmails(rows *sql.Rows) ([]*model.ScheduledEmail, error) {
	defer rows.Close()
	emails := []*model.ScheduledEmail{}
	for rows.Next() {
		e, err := scanScheduledEmail(rows)
		if err != nil {
			return nil, err
		}
		emails = append(emails, e)
	}
	return emails, rows.Err()
}

// Enqueue is idempotent: it pre-checks for a row owning the key and falls back
// on the partial unique index when two writers race.
func (r *ScheduledEmailRepository) Enqueue(ctx context.Context, in model.ScheduledEmailInput) (*model.ScheduledEmail, error) {
	key, err := idempotency.Encode(in.ProspectID, in.SequenceID, in.StepNumber)
	if err != nil {
		return nil, err
	}

	existing, err := r.getByActiveKey(ctx, key)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, appErrors.NewDuplicateIdempotencyKey(key)
	}

	now := time.Now().UTC()
	query := `
        INSERT INTO scheduled_emails
        (id, idempotency_key, workspace_id, campaign_id, campaign_prospect_id, prospect_id,
         sequence_id, step_number, status, scheduled_for, attempts, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 'SCHEDULED', $9, 0, $10, $10)
        RETURNING ` + scheduledEmailColumns
	row := r.DB.QueryRowContext(ctx, query,
		uuid.NewString(), key, in.WorkspaceID, in.CampaignID, in.CampaignProspectID, in.ProspectID,
		in.SequenceID, in.StepNumber, in.ScheduledFor.UTC(), now,
	)
	e, err := scanScheduledEmail(row)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			existing, getErr := r.getByActiveKey(ctx, key)
			if getErr != nil {
				return nil, getErr
			}
			return existing, appErrors.NewDuplicateIdempotencyKey(key)
		}
		return nil, fmt.Errorf("insert scheduled email: %w", err)
	}
	return e, nil
}

func (r *ScheduledEmailRepository) getByActiveKey(ctx context.Context, key string) (*model.ScheduledEmail, error) {
	query := `SELECT ` + scheduledEmailColumns + `
        FROM scheduled_emails
        WHERE idempotency_key = $1 AND status IN ('SCHEDULED', 'RETRY_SCHEDULED', 'SENT')
        LIMIT 1`
	e, err := scanScheduledEmail(r.DB.QueryRowContext(ctx, query, key))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return e, nil
}

func (r *ScheduledEmailRepository) GetByID(ctx context.Context, id string) (*model.ScheduledEmail, error) {
	query := `SELECT ` + scheduledEmailColumns + ` FROM scheduled_emails WHERE id = $1`
	e, err := scanScheduledEmail(r.DB.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.NewNotFound("scheduled email", id)
		}
		return nil, err
	}
	return e, nil
}

func (r *ScheduledEmailRepository) ListByCampaign(ctx context.Context, campaignID string) ([]*model.ScheduledEmail, error) {
	query := `SELECT ` + scheduledEmailColumns + `
        FROM scheduled_emails WHERE campaign_id = $1 ORDER BY scheduled_for ASC`
	rows, err := r.DB.QueryContext(ctx, query, campaignID)
	if err != nil {
		return nil, err
	}
	return scanScheduledEmails(rows)
}

// ClaimDue leases up to limit due rows of a workspace to claimToken.
// SKIP LOCKED keeps overlapping workers from blocking on or sharing rows.
func (r *ScheduledEmailRepository) ClaimDue(ctx context.Context, workspaceID string, now time.Time, limit int, claimToken string, ttl time.Duration) ([]*model.ScheduledEmail, error) {
	if limit <= 0 {
		return []*model.ScheduledEmail{}, nil
	}
	query := `
        UPDATE scheduled_emails
        SET claimed_by = $1, claimed_until = $2, updated_at = $3
        WHERE id IN (
            SELECT id FROM scheduled_emails
            WHERE workspace_id = $4
              AND status IN ('SCHEDULED', 'RETRY_SCHEDULED')
              AND COALESCE(next_retry_at, scheduled_for) <= $3
              AND (claimed_until IS NULL OR claimed_until < $3)
            ORDER BY scheduled_for ASC
            LIMIT $5
            FOR UPDATE SKIP LOCKED
        )
        RETURNING ` + scheduledEmailColumns
	rows, err := r.DB.QueryContext(ctx, query, claimToken, now.Add(ttl).UTC(), now.UTC(), workspaceID, limit)
	if err != nil {
		return nil, fmt.Errorf("claim due emails: %w", err)
	}
	emails, err := scanScheduledEmails(rows)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(emails, func(i, j int) bool {
		return emails[i].ScheduledFor.Before(emails[j].ScheduledFor)
	})
	return emails, nil
}

func (r *ScheduledEmailRepository) ReleaseClaim(ctx context.Context, id, claimToken string) error {
	query := `
        UPDATE scheduled_emails
        SET claimed_by = NULL, claimed_until = NULL, updated_at = NOW()
        WHERE id = $1 AND claimed_by = $2`
	_, err := r.DB.ExecContext(ctx, query, id, claimToken)
	return err
}

// ExtendClaim pushes the lease of a row still held by claimToken to until.
// It reports false once the row was reclaimed, released or finished.
func (r *ScheduledEmailRepository) ExtendClaim(ctx context.Context, id, claimToken string, until time.Time) (bool, error) {
	query := `
        UPDATE scheduled_emails
        SET claimed_until = $3, updated_at = NOW()
        WHERE id = $1 AND claimed_by = $2 AND status IN ('SCHEDULED', 'RETRY_SCHEDULED')`
	return execAffected(ctx, r.DB, query, id, claimToken, until.UTC())
}

func (r *ScheduledEmailRepository) WorkspacesWithDueWork(ctx context.Context, now time.Time) ([]string, error) {
	query := `
        SELECT DISTINCT workspace_id FROM scheduled_emails
        WHERE status IN ('SCHEDULED', 'RETRY_SCHEDULED')
          AND COALESCE(next_retry_at, scheduled_for) <= $1
          AND (claimed_until IS NULL OR claimed_until < $1)
        ORDER BY workspace_id`
	rows, err := r.DB.QueryContext(ctx, query, now.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ownedByClaim matches rows leased to the token bound at the given
// placeholder. An empty token matches unclaimed rows only.
func ownedByClaim(placeholder string) string {
	return `claimed_by IS NOT DISTINCT FROM NULLIF(` + placeholder + `, '')`
}

func (r *ScheduledEmailRepository) MarkSent(ctx context.Context, id, claimToken, messageID, threadID string, sentAt time.Time) (bool, error) {
	query := `
        UPDATE scheduled_emails
        SET status = 'SENT', message_id = $2, thread_id = $3, sent_at = $4,
            next_retry_at = NULL, claimed_by = NULL, claimed_until = NULL, updated_at = $4
        WHERE id = $1 AND status IN ('SCHEDULED', 'RETRY_SCHEDULED') AND ` + ownedByClaim("$5")
	return execAffected(ctx, r.DB, query, id, messageID, threadID, sentAt.UTC(), claimToken)
}

// MarkFailed schedules a retry when nextRetryAt is set, otherwise fails the row for good.
func (r *ScheduledEmailRepository) MarkFailed(ctx context.Context, id, claimToken, lastError string, attempts int, nextRetryAt *time.Time) (bool, error) {
	status := model.EmailFailed
	if nextRetryAt != nil {
		status = model.EmailRetryScheduled
		utc := nextRetryAt.UTC()
		nextRetryAt = &utc
	}
	query := `
        UPDATE scheduled_emails
        SET status = $2, last_error = $3, attempts = $4, next_retry_at = $5,
            claimed_by = NULL, claimed_until = NULL, updated_at = NOW()
        WHERE id = $1 AND status IN ('SCHEDULED', 'RETRY_SCHEDULED') AND ` + ownedByClaim("$6")
	return execAffected(ctx, r.DB, query, id, status, lastError, attempts, nextRetryAt, claimToken)
}

func (r *ScheduledEmailRepository) MarkCancelled(ctx context.Context, id string) (bool, error) {
	query := `
        UPDATE scheduled_emails
        SET status = 'CANCELLED', claimed_by = NULL, claimed_until = NULL, updated_at = NOW()
        WHERE id = $1 AND status IN ('SCHEDULED', 'RETRY_SCHEDULED')`
	return execAffected(ctx, r.DB, query, id)
}

// Bulk cancellations skip rows under an active claim: an in-flight send
// finishes first and the dispatcher's pre-check cancels whatever is left.
const unclaimed = `(claimed_until IS NULL OR claimed_until < NOW())`

func (r *ScheduledEmailRepository) CancelAllForProspect(ctx context.Context, prospectID string, statuses []string) (int, error) {
	query := `
        UPDATE scheduled_emails SET status = 'CANCELLED', updated_at = NOW()
        WHERE prospect_id = $1 AND status = ANY($2) AND ` + unclaimed
	return execCount(ctx, r.DB, query, prospectID, pq.Array(pendingOnly(statuses)))
}

func (r *ScheduledEmailRepository) CancelAllForEnrollment(ctx context.Context, campaignProspectID string, statuses []string) (int, error) {
	query := `
        UPDATE scheduled_emails SET status = 'CANCELLED', updated_at = NOW()
        WHERE campaign_prospect_id = $1 AND status = ANY($2) AND ` + unclaimed
	return execCount(ctx, r.DB, query, campaignProspectID, pq.Array(pendingOnly(statuses)))
}

// CancelAllForCampaign optionally rewrites idempotency keys to "{key}::CANCELLED::{id}".
func (r *ScheduledEmailRepository) CancelAllForCampaign(ctx context.Context, campaignID string, statuses []string, releaseKeys bool) (int, error) {
	set := `status = 'CANCELLED', updated_at = NOW()`
	if releaseKeys {
		set += `, idempotency_key = idempotency_key || '::CANCELLED::' || id`
	}
	query := `UPDATE scheduled_emails SET ` + set + `
        WHERE campaign_id = $1 AND status = ANY($2) AND ` + unclaimed
	return execCount(ctx, r.DB, query, campaignID, pq.Array(pendingOnly(statuses)))
}

func (r *ScheduledEmailRepository) ShiftPendingForCampaign(ctx context.Context, campaignID string, by time.Duration) (int, error) {
	query := `
        UPDATE scheduled_emails
        SET scheduled_for = scheduled_for + make_interval(secs => $2),
            next_retry_at = next_retry_at + make_interval(secs => $2),
            updated_at = NOW()
        WHERE campaign_id = $1 AND status IN ('SCHEDULED', 'RETRY_SCHEDULED')`
	return execCount(ctx, r.DB, query, campaignID, by.Seconds())
}

func (r *ScheduledEmailRepository) OutcomeStats(ctx context.Context, campaignID string, since time.Time, bounceKeywords []string) (OutcomeStats, error) {
	patterns := make([]string, len(bounceKeywords))
	for i, k := range bounceKeywords {
		patterns[i] = "%" + strings.ToLower(k) + "%"
	}
	query := `
        SELECT
            COUNT(*) FILTER (WHERE status = 'SENT' AND sent_at >= $2),
            COUNT(*) FILTER (WHERE status = 'FAILED' AND updated_at >= $2),
            COUNT(*) FILTER (WHERE status = 'FAILED' AND updated_at >= $2
                             AND LOWER(COALESCE(last_error, '')) LIKE ANY($3))
        FROM scheduled_emails
        WHERE campaign_id = $1`
	var s OutcomeStats
	err := r.DB.QueryRowContext(ctx, query, campaignID, since.UTC(), pq.Array(patterns)).Scan(&s.Sent, &s.Failed, &s.Bounced)
	return s, err
}

// pendingOnly drops terminal statuses so a caller can never rewrite a SENT row.
func pendingOnly(statuses []string) []string {
	out := []string{}
	for _, s := range statuses {
		if s == model.EmailScheduled || s == model.EmailRetryScheduled {
			out = append(out, s)
		}
	}
	return out
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func execCount(ctx context.Context, db execer, query string, args ...any) (int, error) {
	res, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func execAffected(ctx context.Context, db execer, query string, args ...any) (bool, error) {
	n, err := execCount(ctx, db, query, args...)
	return n > 0, err
}

var _ ScheduledEmailRepositoryInterface = (*ScheduledEmailRepository)(nil)
