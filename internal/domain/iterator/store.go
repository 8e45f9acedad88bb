package iterator

import "github.com/graphd/queryengine/internal/domain/primitive"

// Store is the primitive-store interface this module consumes (spec.md
// §6). The store itself — its on-disk layout, write path, and replication —
// is out of scope; this module only ever reads through this interface.
type Store interface {
	ReadPrimitive(id primitive.Id) (*primitive.Primitive, bool)
	IdFromGuid(g primitive.Guid) (primitive.Id, bool)
	GuidFromId(id primitive.Id) (primitive.Guid, bool)

	// LinkageIterator returns the posting list of ids whose linkage slot L
	// points at g, restricted to [low, high) and the given direction.
	LinkageIterator(l primitive.LinkageSlot, g primitive.Guid, low, high primitive.Id, forward bool) Iterator

	// VipIterator returns the posting list of ids of type typeGuid whose
	// linkage slot L points at endpoint, restricted to [low, high).
	VipIterator(endpoint primitive.Id, l primitive.LinkageSlot, typeGuid primitive.Guid, low, high primitive.Id, forward bool) Iterator

	// NameHashIterator returns ids whose name hashes to the given bytes.
	NameHashIterator(name []byte, low, high primitive.Id, forward bool) Iterator

	PrimitiveCount() uint64
}
