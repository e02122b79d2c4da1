package playback

import "sync"

// FailedSet tracks sources ruled out for the remainder of a session. A source
// that failed once is not retried until the user starts a fresh session.
type FailedSet struct {
	mu   sync.Mutex
	keys map[string]struct{}
}

func NewFailedSet() *FailedSet {
	return &FailedSet{keys: make(map[string]struct{})}
}

// Mark rules a source out.
func (f *FailedSet) Mark(sourceKey string) {
	f.mu.Lock()
	f.keys[sourceKey] = struct{}{}
	f.mu.Unlock()
}

// Has reports whether a source has been ruled out.
func (f *FailedSet) Has(sourceKey string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.keys[sourceKey]
	return ok
}

// Len reports how many sources are ruled out.
func (f *FailedSet) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.keys)
}

// Reset clears the set, used when the viewer switches episodes by hand.
func (f *FailedSet) Reset() {
	f.mu.Lock()
	f.keys = make(map[string]struct{})
	f.mu.Unlock()
}
