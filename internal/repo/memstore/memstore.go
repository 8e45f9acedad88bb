// Package memstore is an in-memory implementation of the primitive-store
// interface this module consumes (spec.md §6). The real primitive store is
// an external collaborator; this is a reference implementation for tests
// and the CLI demo, the same role teacher's repoexample package plays
// against its own externally-owned repository interface.
package memstore

import (
	"encoding/binary"
	"fmt"
	"sort"
	"sync"

	"github.com/graphd/queryengine/internal/domain/iterator"
	"github.com/graphd/queryengine/internal/domain/iterator/kinds"
	"github.com/graphd/queryengine/internal/domain/primitive"
)

// Store is a fixed-at-construction-time in-memory primitive store. It is
// not safe for concurrent writes (none are exposed: spec.md §5 treats the
// store as read-only within a query) but is safe for concurrent reads.
type Store struct {
	mu         sync.RWMutex
	byId       map[primitive.Id]*primitive.Primitive
	idByGuid   map[primitive.Guid]primitive.Id
	linkage    map[linkageKey][]primitive.Id // sorted ascending
	vip        map[vipKey][]primitive.Id     // sorted ascending
	byNameHash map[string][]primitive.Id     // sorted ascending
}

type linkageKey struct {
	slot primitive.LinkageSlot
	guid primitive.Guid
}

type vipKey struct {
	endpoint primitive.Id
	slot     primitive.LinkageSlot
	typeGuid primitive.Guid
}

// New builds a Store indexing every primitive in prs. Indexes are built
// once up front (reconcile-on-construction, the same pattern teacher's
// repoexample.reconcile uses to rebuild its in-memory view from a backing
// store at startup).
func New(prs []*primitive.Primitive) *Store {
	s := &Store{
		byId:       make(map[primitive.Id]*primitive.Primitive, len(prs)),
		idByGuid:   make(map[primitive.Guid]primitive.Id, len(prs)),
		linkage:    make(map[linkageKey][]primitive.Id),
		vip:        make(map[vipKey][]primitive.Id),
		byNameHash: make(map[string][]primitive.Id),
	}
	for _, pr := range prs {
		s.byId[pr.Id] = pr
		s.idByGuid[pr.Guid] = pr.Id
		for slot := primitive.SlotType; slot.Valid(); slot++ {
			if pr.HasLinkage(slot) {
				k := linkageKey{slot, pr.LinkageGuid(slot)}
				s.linkage[k] = append(s.linkage[k], pr.Id)
			}
		}
		if len(pr.Name) > 0 {
			h := nameHash(pr.Name)
			s.byNameHash[string(h)] = append(s.byNameHash[string(h)], pr.Id)
		}
	}
	// VIP indexes require knowing each candidate's own type, so they're
	// built in a second pass once idByGuid/linkage are populated.
	for _, pr := range prs {
		if !pr.HasLinkage(primitive.SlotType) {
			continue
		}
		typeGuid := pr.LinkageGuid(primitive.SlotType)
		for slot := primitive.SlotType; slot.Valid(); slot++ {
			if slot == primitive.SlotType || !pr.HasLinkage(slot) {
				continue
			}
			endpointId, ok := s.idByGuid[pr.LinkageGuid(slot)]
			if !ok {
				continue
			}
			k := vipKey{endpointId, slot, typeGuid}
			s.vip[k] = append(s.vip[k], pr.Id)
		}
	}
	for _, ids := range s.linkage {
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	}
	for _, ids := range s.vip {
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	}
	for _, ids := range s.byNameHash {
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	}
	return s
}

// nameHash is the store's own hash function over a primitive's name; a
// name_hash_iterator query supplies the same hash to find matches (spec.md
// §6 "name_hash_iterator(bytes, ...)" takes the hash bytes, not the name
// itself). FNV-1a is adequate for an in-memory reference store: stdlib, no
// collision-resistance requirement is named anywhere in spec.md.
func nameHash(name []byte) []byte {
	const offset64 = 14695981039346656037
	const prime64 = 1099511628211
	h := uint64(offset64)
	for _, b := range name {
		h ^= uint64(b)
		h *= prime64
	}
	out := make([]byte, 8)
	binary.BigEndian.PutUint64(out, h)
	return out
}

func (s *Store) ReadPrimitive(id primitive.Id) (*primitive.Primitive, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	pr, ok := s.byId[id]
	return pr, ok
}

func (s *Store) IdFromGuid(g primitive.Guid) (primitive.Id, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.idByGuid[g]
	return id, ok
}

func (s *Store) GuidFromId(id primitive.Id) (primitive.Guid, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	pr, ok := s.byId[id]
	if !ok {
		return primitive.Guid{}, false
	}
	return pr.Guid, true
}

func (s *Store) LinkageIterator(l primitive.LinkageSlot, g primitive.Guid, low, high primitive.Id, forward bool) iterator.Iterator {
	s.mu.RLock()
	ids := clipSorted(s.linkage[linkageKey{l, g}], low, high)
	s.mu.RUnlock()
	return kinds.NewGmap(l, g, ids, low, high, forward)
}

func (s *Store) VipIterator(endpoint primitive.Id, l primitive.LinkageSlot, typeGuid primitive.Guid, low, high primitive.Id, forward bool) iterator.Iterator {
	s.mu.RLock()
	ids := clipSorted(s.vip[vipKey{endpoint, l, typeGuid}], low, high)
	s.mu.RUnlock()
	return kinds.NewVip(endpoint, l, typeGuid, ids, low, high, forward)
}

func (s *Store) NameHashIterator(name []byte, low, high primitive.Id, forward bool) iterator.Iterator {
	s.mu.RLock()
	ids := clipSorted(s.byNameHash[string(name)], low, high)
	s.mu.RUnlock()
	return kinds.NewHash(name, ids, low, high, forward)
}

func (s *Store) PrimitiveCount() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return uint64(len(s.byId))
}

// clipSorted returns the subslice of a sorted-ascending id list within
// [low, high), via binary search rather than a linear scan.
func clipSorted(ids []primitive.Id, low, high primitive.Id) []primitive.Id {
	lo := sort.Search(len(ids), func(i int) bool { return ids[i] >= low })
	hi := sort.Search(len(ids), func(i int) bool { return ids[i] >= high })
	if lo >= hi {
		return nil
	}
	out := make([]primitive.Id, hi-lo)
	copy(out, ids[lo:hi])
	return out
}

// NameHash exposes the store's hash function so callers building a
// name_hash query constraint can compute the same digest the store indexed
// by (spec.md §6: the iterator is handed the hash bytes, not the name).
func NameHash(name []byte) []byte { return nameHash(name) }

var _ iterator.Store = (*Store)(nil)

func (s *Store) String() string {
	return fmt.Sprintf("memstore{%d primitives}", len(s.byId))
}
