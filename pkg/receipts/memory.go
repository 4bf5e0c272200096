package receipts

import (
	"context"
	"sync"
)

// MemorySink keeps receipts in emission order. Thread-safe via mutex.
type MemorySink struct {
	mu       sync.Mutex
	receipts []*Receipt
}

// NewMemorySink creates an empty in-memory sink.
func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

func (s *MemorySink) Create(ctx context.Context, r *Receipt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	val := *r
	s.receipts = append(s.receipts, &val)
	return nil
}

// All returns a snapshot of every receipt in emission order.
func (s *MemorySink) All() []*Receipt {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Receipt, len(s.receipts))
	copy(out, s.receipts)
	return out
}

// ByName returns receipts whose Name matches, in emission order.
func (s *MemorySink) ByName(name string) []*Receipt {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*Receipt
	for _, r := range s.receipts {
		if r.Name == name {
			out = append(out, r)
		}
	}
	return out
}
