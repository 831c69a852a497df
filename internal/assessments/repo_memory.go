package assessments

import (
	"context"
	"sync"
	"time"
)

// MemoryRepo is an in-memory Repo for dev and tests. With ClaimUnknown set,
// the first caller to look up an unknown assessment becomes its owner, so a
// local client can record without an assessment CRUD surface.
type MemoryRepo struct {
	ClaimUnknown bool

	mu    sync.RWMutex
	items map[string]Assessment
}

// NewMemoryRepo constructs an empty MemoryRepo.
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{items: make(map[string]Assessment)}
}

func (r *MemoryRepo) Create(ctx context.Context, a Assessment) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[a.ID] = a
	return nil
}

func (r *MemoryRepo) GetByID(ctx context.Context, userID, assessmentID string) (Assessment, error) {
	if err := ctx.Err(); err != nil {
		return Assessment{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.items[assessmentID]
	if !ok && r.ClaimUnknown && userID != "" {
		a = Assessment{ID: assessmentID, UserID: userID, CreatedAt: time.Now().UTC()}
		r.items[assessmentID] = a
		ok = true
	}
	if !ok || a.UserID != userID {
		return Assessment{}, ErrNotFound
	}
	return a, nil
}

var _ Repo = (*MemoryRepo)(nil)
