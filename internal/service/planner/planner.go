// Package planner implements the constraint-tree-to-iterator-tree
// translation (spec.md §4.7, C8): three passes — Initialise, Cheap,
// Finish — composing each constraint node's AND from the sub-iterators it
// can justify.
package planner

import (
	"github.com/c2h5oh/datasize"

	"github.com/graphd/queryengine/internal/domain/constraint"
	"github.com/graphd/queryengine/internal/domain/cursor"
	"github.com/graphd/queryengine/internal/domain/iterator"
	"github.com/graphd/queryengine/internal/domain/iterator/kinds"
	"github.com/graphd/queryengine/internal/domain/primitive"
	"github.com/graphd/queryengine/internal/infrastructure/rescache"
)

// comparatorTable maps a constraint.Comparator to the VRange iterator's
// comparator enum.
var comparatorTable = map[constraint.Comparator]kinds.Comparator{
	constraint.Eq:  kinds.CmpEq,
	constraint.Ne:  kinds.CmpNe,
	constraint.Lt:  kinds.CmpLt,
	constraint.Le:  kinds.CmpLe,
	constraint.Gt:  kinds.CmpGt,
	constraint.Ge:  kinds.CmpGe,
	constraint.Has: kinds.CmpHas,
}

// Planner translates validated constraint trees into iterator trees
// against a fixed primitive store.
type Planner struct {
	store iterator.Store
	reg   *cursor.Registry

	resCache     *rescache.Cache
	isaSerialCap datasize.ByteSize
}

// New returns a Planner bound to store. reg, if non-nil, is consulted when
// a constraint names a CursorPinned iterator to re-bind to (spec.md §4.7.i)
// and is attached to every AND, ISA and OR the planner builds, which
// register their materialised substitutes in it so future cursors over this
// request can rebind to them. A nil reg is replaced by a fresh Registry.
func New(store iterator.Store, reg *cursor.Registry) *Planner {
	if reg == nil {
		reg = cursor.NewRegistry()
	}
	return &Planner{store: store, reg: reg}
}

// WithResourceCache backs every ISA this planner builds with the shared
// iterator-resource cache rc (spec.md §5), capping what Freeze is willing
// to inline per ISA at isaSerialCap (spec.md §4.6). Call before Plan/
// ThawCursor; a nil rc leaves ISA caches process-private.
func (p *Planner) WithResourceCache(rc *rescache.Cache, isaSerialCap datasize.ByteSize) *Planner {
	p.resCache = rc
	p.isaSerialCap = isaSerialCap
	return p
}

// Plan validates c and builds its iterator tree (spec.md §6 "plan").
func (p *Planner) Plan(c *constraint.Constraint) (iterator.Iterator, error) {
	if err := c.Validate(); err != nil {
		return nil, iterator.Wrap(iterator.ErrLexical, err.Error())
	}
	return p.build(c)
}

// ThawCursor re-derives an iterator tree from a previously-frozen cursor
// (spec.md §6 "thaw_cursor").
func (p *Planner) ThawCursor(text string) (iterator.Iterator, error) {
	return cursor.Thaw(text, p.store, p.reg)
}

func (p *Planner) build(c *constraint.Constraint) (iterator.Iterator, error) {
	// Initialise (spec.md §4.7 pass 1): bounds and direction come straight
	// from the constraint; a cursor-pinned constraint short-circuits the
	// remaining passes entirely.
	if c.CursorPinned != "" {
		return p.ThawCursor(c.CursorPinned)
	}
	low, high := c.Low, c.High
	forward := c.Forward

	// Cheap pass (spec.md §4.7 pass 2): a single fixed GUID collapses the
	// whole constraint to a Fixed of one id; a contradiction (a fixed GUID
	// that the store can't resolve at all, with no other evidence) becomes
	// null. Full bidirectional propagation of fixed knowledge through
	// sibling/child linkage slots is out of scope here — see DESIGN.md's
	// planner entry for why.
	if len(c.FixedGuids) == 1 && len(c.Linkages) == 0 && len(c.Values) == 0 && len(c.Name) == 0 && len(c.Children) == 0 && len(c.Or) == 0 {
		id, ok := p.store.IdFromGuid(c.FixedGuids[0])
		if !ok {
			return kinds.NewNull(), nil
		}
		return kinds.NewFixedSorted([]primitive.Id{id}, low, high, forward), nil
	}

	// Finish (spec.md §4.7 pass 3): compose every sub-iterator the
	// constraint can justify.
	var subs []iterator.Iterator

	if len(c.FixedGuids) > 0 { // (i) fixed GUID set
		ids := make([]primitive.Id, 0, len(c.FixedGuids))
		for _, g := range c.FixedGuids {
			if id, ok := p.store.IdFromGuid(g); ok {
				ids = append(ids, id)
			}
		}
		subs = append(subs, kinds.NewFixedUnsorted(ids, low, high))
	}

	var fixedType *primitive.Guid
	for i := range c.Linkages {
		if c.Linkages[i].Slot == primitive.SlotType && c.Linkages[i].FixedGuid != nil {
			fixedType = c.Linkages[i].FixedGuid
		}
	}
	for _, lr := range c.Linkages { // (ii) per-linkage iterators, VIP where possible
		if lr.FixedGuid == nil {
			continue
		}
		endpoint, ok := p.store.IdFromGuid(*lr.FixedGuid)
		if !ok {
			return kinds.NewNull(), nil // contradiction: referenced endpoint doesn't exist
		}
		if fixedType != nil && lr.Slot != primitive.SlotType {
			subs = append(subs, p.store.VipIterator(endpoint, lr.Slot, *fixedType, low, high, forward))
		} else {
			subs = append(subs, p.store.LinkageIterator(lr.Slot, *lr.FixedGuid, low, high, forward))
		}
	}

	if len(c.Name) > 0 { // single-name exact match queries the name hash
		subs = append(subs, p.store.NameHashIterator(c.Name, low, high, forward))
	}

	for _, vc := range c.Values { // (iii) value-range / value-equality iterators
		cmp, ok := comparatorTable[vc.Comparator]
		if !ok {
			continue
		}
		subs = append(subs, kinds.NewVRange(cmp, vc.Operand, low, high, forward, p.store))
	}

	for _, child := range c.Children { // (iv) child subconstraints wrapped isa/linksto
		childIt, err := p.build(child.Sub)
		if err != nil {
			return nil, err
		}
		linksTo := child.Relation == constraint.ParentPointsToChild
		isaIt := kinds.NewIsa(childIt, child.Slot, p.store, low, high, forward, linksTo)
		if isa, ok := isaIt.(*kinds.Isa); ok {
			isa.WithRegistrar(p.reg)
			if p.resCache != nil {
				isa.WithResourceCache(p.resCache, p.isaSerialCap)
			}
		}
		subs = append(subs, isaIt)
	}

	if len(c.Or) > 0 { // (v) OR branches combined into a top-level OR
		branches := make([]iterator.Iterator, 0, len(c.Or))
		for _, alt := range c.Or {
			b, err := p.build(alt.Branch)
			if err != nil {
				return nil, err
			}
			branches = append(branches, b)
		}
		orIt := kinds.NewOr(branches, low, high, forward)
		if or, ok := orIt.(*kinds.Or); ok {
			or.WithRegistrar(p.reg)
		}
		subs = append(subs, orIt)
	}

	if len(subs) == 0 { // (vi) fallback full-range iterator
		subs = append(subs, kinds.NewAll(low, high, forward, p.store))
	}

	andIt := kinds.NewAnd(subs, low, high, forward)
	if and, ok := andIt.(*kinds.And); ok {
		and.WithRegistrar(p.reg)
	}
	return andIt, nil
}
