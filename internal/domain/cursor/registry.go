package cursor

import (
	"sync"

	"github.com/google/uuid"

	"github.com/graphd/queryengine/internal/domain/iterator"
)

// Registry is the name-to-original index (spec.md §5 "name-to-original
// index"): keyed by a materialised substitute's masquerade stamp, it lets a
// thaw rebind to a still-live iterator and inherit its stats and caches
// instead of recomputing them from scratch. It satisfies kinds.Registrar
// structurally, since kinds cannot import cursor (cursor already imports
// kinds to dispatch thaw by kind).
type Registry struct {
	mu      sync.RWMutex
	byStamp map[string]iterator.Iterator
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{byStamp: make(map[string]iterator.Iterator)}
}

// NewStamp mints a fresh, globally unique stamp for an Original — the
// request-scoped identity cursors reference by name (spec.md §4.3
// "a reference to a cached original by name").
func NewStamp(kind string) string {
	return kind + "-" + uuid.NewString()
}

// Register publishes it under stamp so a later thaw in this process can find
// it. Entries are request-lifetime: callers should Unregister when the
// request that owns it finishes.
func (r *Registry) Register(stamp string, it iterator.Iterator) {
	r.mu.Lock()
	r.byStamp[stamp] = it
	r.mu.Unlock()
}

// Unregister removes stamp, e.g. at request teardown.
func (r *Registry) Unregister(stamp string) {
	r.mu.Lock()
	delete(r.byStamp, stamp)
	r.mu.Unlock()
}

// Lookup finds a still-live iterator by stamp. Returning false means the
// caller must fall back to resume_id replay (spec.md §4.3 "Fail-soft").
func (r *Registry) Lookup(stamp string) (iterator.Iterator, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	it, ok := r.byStamp[stamp]
	return it, ok
}
