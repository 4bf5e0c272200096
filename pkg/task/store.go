package task

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Store persists task graphs and runs. Graphs are write-once; runs are
// updated as the runner drives them.
type Store interface {
	CreateGraph(ctx context.Context, g *Graph) error
	GetGraph(ctx context.Context, id string) (*Graph, error)

	CreateRun(ctx context.Context, r *Run) error
	GetRun(ctx context.Context, id string) (*Run, error)
	UpdateRun(ctx context.Context, r *Run) error
	ListRunsBySession(ctx context.Context, sessionID string) ([]*Run, error)
}

// MemoryStore implements Store in memory. Thread-safe via mutex.
type MemoryStore struct {
	mu     sync.Mutex
	graphs map[string]*Graph
	runs   map[string]*Run
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		graphs: make(map[string]*Graph),
		runs:   make(map[string]*Run),
	}
}

func (s *MemoryStore) CreateGraph(ctx context.Context, g *Graph) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.graphs[g.ID]; exists {
		return fmt.Errorf("graph %s already exists", g.ID)
	}
	s.graphs[g.ID] = g.clone()
	return nil
}

func (s *MemoryStore) GetGraph(ctx context.Context, id string) (*Graph, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.graphs[id]
	if !ok {
		return nil, fmt.Errorf("%w: graph %s", ErrNotFound, id)
	}
	return g.clone(), nil
}

func (s *MemoryStore) CreateRun(ctx context.Context, r *Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.runs[r.ID]; exists {
		return fmt.Errorf("run %s already exists", r.ID)
	}
	s.runs[r.ID] = r.clone()
	return nil
}

func (s *MemoryStore) GetRun(ctx context.Context, id string) (*Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.runs[id]
	if !ok {
		return nil, fmt.Errorf("%w: run %s", ErrNotFound, id)
	}
	return r.clone(), nil
}

func (s *MemoryStore) UpdateRun(ctx context.Context, r *Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.runs[r.ID]; !ok {
		return fmt.Errorf("%w: run %s", ErrNotFound, r.ID)
	}
	updated := r.clone()
	updated.UpdatedAt = time.Now().UTC()
	s.runs[r.ID] = updated
	return nil
}

func (s *MemoryStore) ListRunsBySession(ctx context.Context, sessionID string) ([]*Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*Run
	for _, r := range s.runs {
		if r.SessionID == sessionID {
			out = append(out, r.clone())
		}
	}
	return out, nil
}
