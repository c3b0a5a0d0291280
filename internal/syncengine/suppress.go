package syncengine

import "sync"

// suppressedPaths is the shared "about to write this path myself" set
// (spec.md section 5, section 4.7.3). Producers (download, conflict-copy,
// delete) insert a path before issuing the write; the watcher handler
// consumes one credit per matching filesystem event it observes and
// returns without further processing. Multiple credits can be pending for
// the same path if the engine issues several suppressed writes before the
// watcher drains them.
type suppressedPaths struct {
	mu      sync.Mutex
	credits map[string]int
}

func newSuppressedPaths() *suppressedPaths {
	return &suppressedPaths{credits: make(map[string]int)}
}

// add records one suppression credit for path.
func (s *suppressedPaths) add(path string) {
	s.mu.Lock()
	s.credits[path]++
	s.mu.Unlock()
}

// take consumes one credit for path, reporting whether one was available.
func (s *suppressedPaths) take(path string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.credits[path]
	if !ok || n <= 0 {
		return false
	}

	if n == 1 {
		delete(s.credits, path)
	} else {
		s.credits[path] = n - 1
	}

	return true
}
