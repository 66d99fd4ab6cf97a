package convergence

// OrderedSet is an append-only set of strings that remembers insertion order
type OrderedSet struct {
	index map[string]struct{}
	items []string
}

// NewOrderedSet creates an empty set
func NewOrderedSet() *OrderedSet {
	return &OrderedSet{index: make(map[string]struct{})}
}

// Add inserts s if absent and reports whether it was new
func (s *OrderedSet) Add(item string) bool {
	if _, ok := s.index[item]; ok {
		return false
	}
	s.index[item] = struct{}{}
	s.items = append(s.items, item)
	return true
}

// AddAll inserts items in order and returns the ones that were new
func (s *OrderedSet) AddAll(items []string) []string {
	added := make([]string, 0)
	for _, item := range items {
		if s.Add(item) {
			added = append(added, item)
		}
	}
	return added
}

// Contains reports whether item is in the set
func (s *OrderedSet) Contains(item string) bool {
	_, ok := s.index[item]
	return ok
}

// Len returns the number of items
func (s *OrderedSet) Len() int {
	return len(s.items)
}

// Items returns a copy of the items in insertion order
func (s *OrderedSet) Items() []string {
	out := make([]string, len(s.items))
	copy(out, s.items)
	return out
}
