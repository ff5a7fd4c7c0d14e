package storage

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"
	"github.com/romangod6/sitemapper/internal/models"
)

// MemoryStore keeps runs for the lifetime of the process.
type MemoryStore struct {
	mu   sync.RWMutex
	runs map[uuid.UUID]*models.Run
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{runs: make(map[uuid.UUID]*models.Run)}
}

func (s *MemoryStore) Initialize() error { return nil }

func (s *MemoryStore) Close() error { return nil }

func (s *MemoryStore) CreateRun(ctx context.Context, run *models.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.runs[run.ID]; exists {
		return goerr.New("run already exists", goerr.V("run_id", run.ID))
	}
	s.runs[run.ID] = cloneRun(run)
	return nil
}

func (s *MemoryStore) UpdateRun(ctx context.Context, run *models.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.runs[run.ID]; !exists {
		return goerr.Wrap(ErrNotFound, "cannot update run", goerr.V("run_id", run.ID))
	}
	s.runs[run.ID] = cloneRun(run)
	return nil
}

func (s *MemoryStore) GetRun(ctx context.Context, id uuid.UUID) (*models.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.runs[id]
	if !ok {
		return nil, goerr.Wrap(ErrNotFound, "cannot get run", goerr.V("run_id", id))
	}
	return cloneRun(run), nil
}

func (s *MemoryStore) ListRuns(ctx context.Context, limit, offset int) ([]*models.Run, error) {
	limit, offset = normalizePage(limit, offset)

	s.mu.RLock()
	runs := make([]*models.Run, 0, len(s.runs))
	for _, run := range s.runs {
		runs = append(runs, cloneRun(run))
	}
	s.mu.RUnlock()

	sort.Slice(runs, func(i, j int) bool {
		return runs[i].StartedAt.After(runs[j].StartedAt)
	})

	if offset >= len(runs) {
		return []*models.Run{}, nil
	}
	end := offset + limit
	if end > len(runs) {
		end = len(runs)
	}
	return runs[offset:end], nil
}

func cloneRun(run *models.Run) *models.Run {
	c := *run
	c.Steps = append([]models.StepResult(nil), run.Steps...)
	if run.FinishedAt != nil {
		finished := *run.FinishedAt
		c.FinishedAt = &finished
	}
	return &c
}
