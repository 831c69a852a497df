package assessments

import "time"

// Assessment is the candidate-owned unit a recording belongs to.
type Assessment struct {
	ID        string
	UserID    string
	Title     string
	CreatedAt time.Time
}
