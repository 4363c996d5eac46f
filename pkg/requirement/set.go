package requirement

// Set is an insertion-ordered set of requirements keyed by String().
// The zero value is ready to use.
type Set struct {
	items []Requirement
	index map[string]int
}

// NewSet returns a set holding reqs in order, duplicates dropped.
func NewSet(reqs ...Requirement) *Set {
	s := &Set{}
	for _, r := range reqs {
		s.Add(r)
	}
	return s
}

// Add inserts r and reports whether it was not already present.
func (s *Set) Add(r Requirement) bool {
	key := r.String()
	if s.index == nil {
		s.index = make(map[string]int)
	}
	if _, ok := s.index[key]; ok {
		return false
	}
	s.index[key] = len(s.items)
	s.items = append(s.items, r)
	return true
}

// Merge adds every member of other.
func (s *Set) Merge(other *Set) {
	if other == nil {
		return
	}
	for _, r := range other.items {
		s.Add(r)
	}
}

// Contains reports whether a requirement with the given identity is present.
func (s *Set) Contains(key string) bool {
	_, ok := s.index[key]
	return ok
}

// Len returns the number of members.
func (s *Set) Len() int {
	if s == nil {
		return 0
	}
	return len(s.items)
}

// Items returns the members in insertion order. The slice must not be modified.
func (s *Set) Items() []Requirement {
	if s == nil {
		return nil
	}
	return s.items
}

// Strings returns the identities of the members in insertion order.
func (s *Set) Strings() []string {
	out := make([]string, 0, s.Len())
	for _, r := range s.Items() {
		out = append(out, r.String())
	}
	return out
}
