package memory

import (
	"context"
	"sort"
	"sync"

	"labelsync/internal/model"
	"labelsync/internal/repository"
)

type InMemoryRunRepository struct {
	runs  map[string]*model.Run
	mutex sync.RWMutex
}

func NewInMemoryRunRepository() *InMemoryRunRepository {
	return &InMemoryRunRepository{
		runs: make(map[string]*model.Run),
	}
}

func (r *InMemoryRunRepository) Create(ctx context.Context, run *model.Run) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	copied := *run
	r.runs[run.ID] = &copied
	return nil
}

func (r *InMemoryRunRepository) Update(ctx context.Context, run *model.Run) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if _, exists := r.runs[run.ID]; !exists {
		return repository.ErrRunNotFound
	}
	copied := *run
	r.runs[run.ID] = &copied
	return nil
}

func (r *InMemoryRunRepository) FindByID(ctx context.Context, id string) (*model.Run, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	run, exists := r.runs[id]
	if !exists {
		return nil, repository.ErrRunNotFound
	}
	copied := *run
	return &copied, nil
}

func (r *InMemoryRunRepository) FindRecent(ctx context.Context, limit int) ([]*model.Run, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	result := make([]*model.Run, 0, len(r.runs))
	for _, run := range r.runs {
		copied := *run
		result = append(result, &copied)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].StartedAt.After(result[j].StartedAt)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}
