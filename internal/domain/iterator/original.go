package iterator

import "sync"

// Original owns the state a family of clones shares: cached results,
// statistics once valid, and a stable stamp used to rebind a thawed clone
// to a still-live instance (spec.md §3, §5). Clones hold a pointer back to
// their Original; an Original never holds a back-pointer to its clones —
// there is no cyclic ownership (spec.md §9).
type Original struct {
	mu    sync.Mutex
	stamp string
	refs  int32
	stats Statistics
}

// NewOriginal creates a fresh Original under the given stamp (the textual
// name a cursor's SET piece can later use to rebind).
func NewOriginal(stamp string) *Original {
	return &Original{stamp: stamp, refs: 1}
}

// Stamp returns the textual name other requests use to find this Original
// in the name-to-original index.
func (o *Original) Stamp() string { return o.stamp }

// Ref increments the reference count; called whenever a Clone is created.
func (o *Original) Ref() {
	o.mu.Lock()
	o.refs++
	o.mu.Unlock()
}

// Unref decrements the reference count and reports whether it has reached
// zero, meaning the Original's caches may be released.
func (o *Original) Unref() (released bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.refs--
	return o.refs <= 0
}

// Stats returns the shared statistics, valid or not.
func (o *Original) Stats() Statistics {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.stats
}

// SetStats publishes newly valid statistics. Once stats.Valid is true this
// must never be called with a different value (monotone: invalid -> valid,
// never the reverse, and stable thereafter).
func (o *Original) SetStats(stats Statistics) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.stats.Valid {
		return
	}
	o.stats = stats
}
