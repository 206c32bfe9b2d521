package s3sync

import (
	"sort"
	"sync"
)

// PathSet is a deduplicating set of paths safe for concurrent inserts.
type PathSet struct {
	mu    sync.Mutex
	seen  map[string]struct{}
	items []string
}

// Add inserts p and reports whether it was new.
func (s *PathSet) Add(p string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.seen == nil {
		s.seen = make(map[string]struct{})
	}
	if _, ok := s.seen[p]; ok {
		return false
	}
	s.seen[p] = struct{}{}
	s.items = append(s.items, p)
	return true
}

// Len returns the number of distinct paths.
func (s *PathSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

// List returns a sorted copy of the paths.
func (s *PathSet) List() []string {
	s.mu.Lock()
	out := append([]string(nil), s.items...)
	s.mu.Unlock()

	sort.Strings(out)
	return out
}
