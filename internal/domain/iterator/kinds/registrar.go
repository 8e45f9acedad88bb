package kinds

import "github.com/graphd/queryengine/internal/domain/iterator"

// Registrar publishes a stamp -> iterator binding so a later thaw in this
// process can rebind to a still-live materialised substitute by name instead
// of falling back to an empty result (spec.md §5's name-to-original index).
// Implemented by cursor.Registry; kept as a small interface here rather than
// importing cursor directly, since cursor already imports kinds to dispatch
// thaw by kind.
type Registrar interface {
	Register(stamp string, it iterator.Iterator)
}
