package grid

// seenSet is a bounded set of handled order ids with FIFO eviction.
// It keeps duplicate-fill detection memory-safe on long runs: once the
// capacity is reached the oldest id is dropped to admit the newest.
type seenSet struct {
	capacity int
	order    []string
	members  map[string]struct{}
}

func newSeenSet(capacity int) *seenSet {
	if capacity <= 0 {
		capacity = 1000
	}
	return &seenSet{
		capacity: capacity,
		order:    make([]string, 0, capacity),
		members:  make(map[string]struct{}, capacity),
	}
}

// Add inserts id and reports whether it was new. Adding an id already in
// the set returns false and changes nothing.
func (s *seenSet) Add(id string) bool {
	if _, ok := s.members[id]; ok {
		return false
	}
	if len(s.order) >= s.capacity {
		oldest := s.order[0]
		s.order = s.order[1:]
		delete(s.members, oldest)
	}
	s.order = append(s.order, id)
	s.members[id] = struct{}{}
	return true
}

// Has reports whether id is currently in the set
func (s *seenSet) Has(id string) bool {
	_, ok := s.members[id]
	return ok
}

// Len returns the number of ids currently held
func (s *seenSet) Len() int {
	return len(s.members)
}
