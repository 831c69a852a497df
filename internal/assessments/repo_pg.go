package assessments

import (
	"context"
	"database/sql"
	"errors"
)

// PGRepo implements Repo using Postgres.
type PGRepo struct {
	DB *sql.DB
}

// Create inserts a new assessment.
func (r *PGRepo) Create(ctx context.Context, a Assessment) error {
	const query = `
INSERT INTO assessments (id, user_id, title, created_at)
VALUES ($1, $2, $3, $4)`
	_, err := r.DB.ExecContext(ctx, query, a.ID, a.UserID, a.Title, a.CreatedAt)
	return err
}

// GetByID fetches an assessment scoped to its owner.
func (r *PGRepo) GetByID(ctx context.Context, userID, assessmentID string) (Assessment, error) {
	const query = `
SELECT id, user_id, title, created_at
FROM assessments
WHERE id = $1 AND user_id = $2`
	var a Assessment
	err := r.DB.QueryRowContext(ctx, query, assessmentID, userID).Scan(&a.ID, &a.UserID, &a.Title, &a.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Assessment{}, ErrNotFound
		}
		return Assessment{}, err
	}
	return a, nil
}

var _ Repo = (*PGRepo)(nil)
