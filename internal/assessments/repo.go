package assessments

import "context"

// Repo defines persistence operations for assessments.
type Repo interface {
	Create(ctx context.Context, a Assessment) error
	// GetByID returns the assessment only when userID owns it.
	GetByID(ctx context.Context, userID, assessmentID string) (Assessment, error)
}
