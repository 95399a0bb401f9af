package strategy

import "sync"

// seenSet is a bounded set of processed ids with FIFO eviction. It keeps
// dedup state from growing without bound on long-running funds.
type seenSet struct {
	mu    sync.Mutex
	cap   int
	ids   map[string]struct{}
	order []string
}

func newSeenSet(capacity int) *seenSet {
	if capacity <= 0 {
		capacity = 1000
	}
	return &seenSet{
		cap: capacity,
		ids: make(map[string]struct{}, capacity),
	}
}

// Add inserts id and reports whether it was new. Inserting over capacity
// evicts the oldest entry.
func (s *seenSet) Add(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.ids[id]; ok {
		return false
	}
	if len(s.order) >= s.cap {
		oldest := s.order[0]
		s.order = s.order[1:]
		delete(s.ids, oldest)
	}
	s.ids[id] = struct{}{}
	s.order = append(s.order, id)
	return true
}

// Has reports whether id is tracked, without inserting it.
func (s *seenSet) Has(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.ids[id]
	return ok
}

// Len returns the current number of tracked ids.
func (s *seenSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.ids)
}
