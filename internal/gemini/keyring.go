package gemini

import "sync"

// keyRing rotates through the configured API keys. Spreading requests
// over several keys raises the effective rate limit, and a key that
// just returned 429 is not retried first.
type keyRing struct {
	mu   sync.Mutex
	keys []string
	next int
}

func newKeyRing(keys []string) *keyRing {
	return &keyRing{keys: keys}
}

// Next returns the next key round-robin, or "" when no keys exist.
func (r *keyRing) Next() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.keys) == 0 {
		return ""
	}
	k := r.keys[r.next]
	r.next = (r.next + 1) % len(r.keys)
	return k
}

func (r *keyRing) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.keys)
}
