package mediacache

import (
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/aweris/mediacache/internal/classify"
)

// entry is the in-process metadata attached to a handle. It is never persisted.
type entry struct {
	handle      string
	cacheKey    string
	mimeType    string
	size        int64
	isVideo     bool
	isThumbnail bool
	// linked is the paired handle: the thumbnail of a full variant, or the
	// full variant of a thumbnail.
	linked string
}

// registry maps live handles to cache keys. Entries are only added, except
// by drain which drops all of them at once.
type registry struct {
	mu      sync.RWMutex
	origin  string
	entries map[string]entry
}

func newRegistry(origin string) *registry {
	return &registry{origin: origin, entries: make(map[string]entry)}
}

// mint returns a fresh handle. Handles never depend on the stored bytes.
func (r *registry) mint() string {
	return classify.HandleScheme + r.origin + "/" + uuid.NewString()
}

// add registers entries atomically, so a full/thumbnail pair is never
// visible half-linked.
func (r *registry) add(entries ...entry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range entries {
		r.entries[e.handle] = e
	}
}

// lookup ignores surrounding whitespace, like the resolver does.
func (r *registry) lookup(handle string) (entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[strings.TrimSpace(handle)]
	return e, ok
}

// IsLiveHandle lets the registry act as the resolver's liveness oracle.
func (r *registry) IsLiveHandle(ref string) bool {
	_, ok := r.lookup(ref)
	return ok
}

func (r *registry) len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

func (r *registry) handles() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.entries))
	for h := range r.entries {
		out = append(out, h)
	}
	sort.Strings(out)
	return out
}

// drain drops every entry and runs fn while still holding the write lock,
// so no reader observes a handle whose bytes are being deleted. It returns
// the number of revoked handles.
func (r *registry) drain(fn func()) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := len(r.entries)
	r.entries = make(map[string]entry)
	if fn != nil {
		fn()
	}
	return n
}
