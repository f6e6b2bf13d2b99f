package crawler

import "sync"

// visitedSet records every address scheduled during one Download call.
type visitedSet struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

func newVisitedSet() *visitedSet {
	return &visitedSet{seen: make(map[string]struct{})}
}

// TryAdd inserts address and reports whether it was absent.
// For a given address it returns true exactly once.
func (v *visitedSet) TryAdd(address string) bool {
	v.mu.Lock()
	defer v.mu.Unlock()

	if _, ok := v.seen[address]; ok {
		return false
	}
	v.seen[address] = struct{}{}
	return true
}

// Len returns the number of addresses recorded.
func (v *visitedSet) Len() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.seen)
}
