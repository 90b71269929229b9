package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/acetosyn/Emis-student-exam2025/internal/model"
)

// ErrResultNotFound is returned when no persisted result exists for an
// attempt.
var ErrResultNotFound = errors.New("result not found")

// ResultRepository reads persisted exam results. Writes go through the
// persistence workers, never through request handlers.
type ResultRepository struct {
	pool *pgxpool.Pool
}

// NewResultRepository creates a new ResultRepository.
func NewResultRepository(pool *pgxpool.Pool) *ResultRepository {
	return &ResultRepository{pool: pool}
}

// GetByAttemptID fetches the stored result for one attempt.
func (r *ResultRepository) GetByAttemptID(ctx context.Context, attemptID uuid.UUID) (*model.StoredResult, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, attempt_id, student_id, subject, class_category,
		       score, correct, total, answered, skipped,
		       time_taken_seconds, status, submit_trigger, submitted_at
		FROM exam_results
		WHERE attempt_id = $1`,
		attemptID,
	)

	var res model.StoredResult
	err := row.Scan(
		&res.ID, &res.AttemptID, &res.StudentID, &res.Subject, &res.ClassCategory,
		&res.Score, &res.Correct, &res.Total, &res.Answered, &res.Skipped,
		&res.TimeTakenSeconds, &res.Status, &res.Trigger, &res.SubmittedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrResultNotFound
		}
		return nil, fmt.Errorf("get result: %w", err)
	}
	return &res, nil
}

// ListByStudent fetches a student's results, newest first.
func (r *ResultRepository) ListByStudent(ctx context.Context, studentID string, limit int) ([]model.StoredResult, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	rows, err := r.pool.Query(ctx, `
		SELECT id, attempt_id, student_id, subject, class_category,
		       score, correct, total, answered, skipped,
		       time_taken_seconds, status, submit_trigger, submitted_at
		FROM exam_results
		WHERE student_id = $1
		ORDER BY submitted_at DESC
		LIMIT $2`,
		studentID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list results: %w", err)
	}
	defer rows.Close()

	results := make([]model.StoredResult, 0, limit)
	for rows.Next() {
		var res model.StoredResult
		if err := rows.Scan(
			&res.ID, &res.AttemptID, &res.StudentID, &res.Subject, &res.ClassCategory,
			&res.Score, &res.Correct, &res.Total, &res.Answered, &res.Skipped,
			&res.TimeTakenSeconds, &res.Status, &res.Trigger, &res.SubmittedAt,
		); err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}
		results = append(results, res)
	}
	return results, rows.Err()
}

// CountViolations reports the persisted violation rows of an attempt.
func (r *ResultRepository) CountViolations(ctx context.Context, attemptID uuid.UUID) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM exam_violations WHERE attempt_id = $1`,
		attemptID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count violations: %w", err)
	}
	return n, nil
}
