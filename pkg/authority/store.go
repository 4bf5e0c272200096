package authority

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Store persists execution tokens. IncrementActions and Revoke are
// conditional, atomic updates: they mutate only when the token is ACTIVE
// and (for increments) under its action budget, and they must be safe for
// concurrent callers racing on the same token.
type Store interface {
	Create(ctx context.Context, token *ExecutionToken) error
	Get(ctx context.Context, id string) (*ExecutionToken, error)
	// IncrementActions consumes one action. It returns false without
	// mutating when the token is not ACTIVE or its budget is exhausted.
	IncrementActions(ctx context.Context, id string) (bool, error)
	// Revoke flips ACTIVE to REVOKED; it returns false when the token is
	// not currently ACTIVE.
	Revoke(ctx context.Context, id string, reason string) (bool, error)
	// ExpireStale sweeps every ACTIVE token past its time or action limit
	// into EXPIRED and returns how many were swept.
	ExpireStale(ctx context.Context, now time.Time) (int, error)
	ListBySession(ctx context.Context, sessionID string) ([]*ExecutionToken, error)
}

// MemoryStore implements Store in memory. Thread-safe via mutex; all
// conditional updates happen under the lock so counters never overshoot.
type MemoryStore struct {
	mu     sync.Mutex
	tokens map[string]*ExecutionToken
}

// NewMemoryStore creates an empty in-memory token store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{tokens: make(map[string]*ExecutionToken)}
}

func (s *MemoryStore) Create(ctx context.Context, token *ExecutionToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.tokens[token.ID]; exists {
		return fmt.Errorf("token %s already exists", token.ID)
	}
	s.tokens[token.ID] = token.clone()
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*ExecutionToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	token, ok := s.tokens[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return token.clone(), nil
}

func (s *MemoryStore) IncrementActions(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	token, ok := s.tokens[id]
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if token.Status != StatusActive || token.ActionsUsed >= token.MaxActions {
		return false, nil
	}
	token.ActionsUsed++
	return true, nil
}

func (s *MemoryStore) Revoke(ctx context.Context, id string, reason string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	token, ok := s.tokens[id]
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if token.Status != StatusActive {
		return false, nil
	}
	token.Status = StatusRevoked
	return true, nil
}

func (s *MemoryStore) ExpireStale(ctx context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	swept := 0
	for _, token := range s.tokens {
		if token.Status == StatusActive && token.IsExpired(now) {
			token.Status = StatusExpired
			swept++
		}
	}
	return swept, nil
}

func (s *MemoryStore) ListBySession(ctx context.Context, sessionID string) ([]*ExecutionToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*ExecutionToken
	for _, token := range s.tokens {
		if token.SessionID == sessionID {
			out = append(out, token.clone())
		}
	}
	return out, nil
}
