package repository

import (
	"context"
	"database/sql"

	"github.com/unclebandit/outreach-backend/internal/model"
)

type SequenceRepository struct {
	DB *sql.DB
}

func (r *SequenceRepository) AddStep(ctx context.Context, s *model.SequenceStep) error {
	query := `
        INSERT INTO sequence_steps (sequence_id, step_number, delay_days, subject, body)
        VALUES ($1, $2, $3, $4, $5)`
	_, err := r.DB.ExecContext(ctx, query, s.SequenceID, s.StepNumber, s.DelayDays, s.Subject, s.Body)
	return err
}

// GetStep returns nil when the sequence has no such step.
func (r *SequenceRepository) GetStep(ctx context.Context, sequenceID string, stepNumber int) (*model.SequenceStep, error) {
	query := `
        SELECT sequence_id, step_number, delay_days, subject, body
        FROM sequence_steps
        WHERE sequence_id = $1 AND step_number = $2`
	var s model.SequenceStep
	err := r.DB.QueryRowContext(ctx, query, sequenceID, stepNumber).Scan(&s.SequenceID, &s.StepNumber, &s.DelayDays, &s.Subject, &s.Body)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &s, nil
}

func (r *SequenceRepository) CountSteps(ctx context.Context, sequenceID string) (int, error) {
	var n int
	err := r.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM sequence_steps WHERE sequence_id = $1`, sequenceID).Scan(&n)
	return n, err
}

var _ SequenceRepositoryInterface = (*SequenceRepository)(nil)
