package kinds

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/graphd/queryengine/internal/domain/iterator"
	"github.com/graphd/queryengine/internal/domain/primitive"
	"github.com/graphd/queryengine/internal/infrastructure/budget"
)

// smallResultThreshold is the cardinality at or below which a verified AND
// substitutes itself with a Fixed holding the verified ids (spec.md §4.3).
const smallResultThreshold = 16

// andCache is the shared, ordered, append-only list of ids an AND's
// Original has emitted so far. Clones read through it by offset only;
// mutation happens solely through the Original (spec.md §5).
type andCache struct {
	mu  sync.Mutex
	ids []primitive.Id
	eof bool
}

func (c *andCache) at(offset int) (primitive.Id, bool, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if offset < len(c.ids) {
		return c.ids[offset], true, c.eof
	}
	return 0, false, c.eof
}

func (c *andCache) append(id primitive.Id) {
	c.mu.Lock()
	c.ids = append(c.ids, id)
	c.mu.Unlock()
}

func (c *andCache) markEOF() {
	c.mu.Lock()
	c.eof = true
	c.mu.Unlock()
}

// And composes N sub-iterators as an intersection (spec.md §4.3, C4).
type And struct {
	set  iterator.Set
	subs []iterator.Iterator

	producer   int // index into subs once elected; -1 until the contest runs
	checkOrder []int

	substitute *Fixed // non-nil once the contest proves |result| is small

	// registrar, if set, is where the substitute publishes itself once
	// materialised, so a later thaw in this process can rebind to it by its
	// masquerade stamp (spec.md §5).
	registrar Registrar

	cache       *andCache
	cacheOffset int // per-clone read position into cache

	// Next's suspendable state: a candidate drawn from the producer that is
	// partway through being checked against checkOrder.
	pendingCandidate    primitive.Id
	pendingHasCandidate bool
	checkIdx            int

	// Check's suspendable state, kept separate from Next's so the two
	// operations never stomp each other's resume point.
	chkID       primitive.Id
	chkIdx      int
	chkHasMore  bool

	statIdx int // contest resume point: next sub awaiting Statistics

	original *iterator.Original
}

// NewAnd composes subs into an intersection over [low, high). Direction
// mismatches between a sorted sub and the requested direction are rejected
// at compose time (spec.md §4.3 edge cases) by the planner before this
// constructor is called; And itself trusts its inputs.
func NewAnd(subs []iterator.Iterator, low, high primitive.Id, forward bool) iterator.Iterator {
	for _, s := range subs {
		if s.Kind() == "null" {
			return NewNull()
		}
	}
	if len(subs) == 0 {
		return NewNull()
	}
	if len(subs) == 1 {
		return subs[0]
	}
	dir := iterator.Forward
	if !forward {
		dir = iterator.Backward
	}
	a := &And{
		set:      iterator.Set{Low: low, High: high, Dir: dir},
		subs:     subs,
		producer: -1,
		cache:    &andCache{},
		original: iterator.NewOriginal(fmt.Sprintf("and-%p", subs)),
	}
	return a
}

// WithRegistrar attaches the name-to-original index a verified substitute
// publishes itself into once materialised (spec.md §5), so a later thaw in
// this process can rebind to it instead of replaying the full sub-tree.
func (a *And) WithRegistrar(r Registrar) *And {
	a.registrar = r
	return a
}

// Statistics runs the producer-election contest (spec.md §4.3 "Planning").
// Each sub gets its Statistics call driven in turn; once every sub is
// valid, And elects a producer (smallest projected total cost) and a
// cheapest-check-first order for the rest. If the projected cardinality is
// small, it additionally attempts to verify and materialise into a Fixed.
func (a *And) Statistics(b *budget.Budget) error {
	if a.substitute != nil || a.Stats().Valid {
		return nil
	}
	for a.statIdx < len(a.subs) {
		if err := a.subs[a.statIdx].Statistics(b); err != nil {
			return err
		}
		if b.Exhausted() {
			return iterator.Wrap(iterator.ErrMoreBudget, "and contest")
		}
		a.statIdx++
	}

	a.electProducer()
	a.buildCheckOrder()

	n := a.subs[a.producer].Stats().N
	for _, s := range a.subs {
		if s.Stats().N < n {
			n = s.Stats().N
		}
	}
	if n <= smallResultThreshold {
		if verified, ok := a.tryMaterialise(b); ok {
			a.substitute = NewFixedSorted(verified, a.set.Low, a.set.High, a.set.Dir == iterator.Forward)
			a.substitute.WithMasquerade(a.masqueradeRecipe())
			if a.registrar != nil {
				a.registrar.Register(a.original.Stamp(), a.substitute)
			}
		}
	}

	stats := a.computeStats()
	a.original.SetStats(stats)
	return nil
}

// electProducer picks the sub-iterator with the lowest projected total cost
// (its own NextCost plus every other sub's CheckCost, scaled by its
// cardinality) — the same projection cayley's and_iterator_optimize.go
// computes in optimizeOrder, run here as a budgeted contest instead of an
// unbudgeted one-shot pass. Ties keep the first sub seen, and that choice
// is never revisited on thaw (spec.md §9 Open Question).
func (a *And) electProducer() {
	if a.producer >= 0 {
		return
	}
	best := -1
	var bestCost int64 = 1<<62 - 1
	for i, s := range a.subs {
		st := s.Stats()
		projected := st.NextCost
		for j, other := range a.subs {
			if j == i {
				continue
			}
			projected += other.Stats().CheckCost
		}
		projected *= int64(st.N) + 1
		if projected < bestCost {
			bestCost = projected
			best = i
		}
	}
	a.producer = best
}

// buildCheckOrder orders every non-producer sub by ascending CheckCost,
// cheapest (most likely to fail fast) first — cayley's optimizeCheck.
func (a *And) buildCheckOrder() {
	order := make([]int, 0, len(a.subs)-1)
	for i := range a.subs {
		if i != a.producer {
			order = append(order, i)
		}
	}
	sort.SliceStable(order, func(i, j int) bool {
		return a.subs[order[i]].Stats().CheckCost < a.subs[order[j]].Stats().CheckCost
	})
	a.checkOrder = order
}

// tryMaterialise attempts to read the producer fully and verify every
// candidate within the budget it is handed, returning the verified id list
// on success.
func (a *And) tryMaterialise(b *budget.Budget) ([]primitive.Id, bool) {
	producer := a.subs[a.producer].Clone()
	var out []primitive.Id
	for {
		id, err := producer.Next(b)
		if iterator.Is(err, iterator.ErrNoMoreData) {
			return out, true
		}
		if err != nil {
			return nil, false
		}
		ok := true
		for _, idx := range a.checkOrder {
			yes, err := a.subs[idx].Check(id, b)
			if err != nil {
				return nil, false
			}
			if !yes {
				ok = false
				break
			}
		}
		if ok {
			out = append(out, id)
			if len(out) > smallResultThreshold {
				return nil, false
			}
		}
		if b.Exhausted() {
			return nil, false
		}
	}
}

func (a *And) computeStats() iterator.Statistics {
	p := a.subs[a.producer].Stats()
	checkCost := p.CheckCost
	nextCost := p.NextCost
	n := p.N
	for _, idx := range a.checkOrder {
		st := a.subs[idx].Stats()
		nextCost += st.CheckCost
		checkCost += st.CheckCost
		if st.N < n {
			n = st.N
		}
	}
	tag := ""
	if a.set.OrderingTag != "" && p.Ordered(a.set.OrderingTag) {
		tag = a.set.OrderingTag
	}
	return iterator.Statistics{Valid: true, CheckCost: checkCost, NextCost: nextCost, FindCost: nextCost, N: n, OrderingTag: tag}
}

func (a *And) Stats() iterator.Statistics { return a.original.Stats() }

func (a *And) Next(b *budget.Budget) (primitive.Id, error) {
	if a.substitute != nil {
		return a.substitute.Next(b)
	}
	if !a.Stats().Valid {
		if err := a.Statistics(b); err != nil {
			return 0, err
		}
		if a.substitute != nil {
			return a.substitute.Next(b)
		}
	}

	// Any And value — original or clone — first tries to satisfy Next from
	// the shared cache; once the cache reaches eof, clones are served
	// entirely from it. If the entry isn't cached yet, this value drives
	// its own (cloned) producer/checks to compute it, then publishes the
	// result to the shared cache so later readers at this offset hit it
	// directly — a simplification of the single-driver model spec.md
	// describes, safe here because every clone's subs are themselves
	// independent clones computing the identical deterministic sequence.
	if id, ok, eof := a.cache.at(a.cacheOffset); ok {
		a.cacheOffset++
		return id, nil
	} else if eof {
		return 0, iterator.Wrap(iterator.ErrNoMoreData, "and exhausted")
	}

	producer := a.subs[a.producer]
	for {
		if !a.pendingHasCandidate {
			id, err := producer.Next(b)
			if iterator.Is(err, iterator.ErrNoMoreData) {
				a.cache.markEOF()
				return 0, iterator.Wrap(iterator.ErrNoMoreData, "and exhausted")
			}
			if err != nil {
				return 0, err
			}
			a.pendingCandidate = id
			a.pendingHasCandidate = true
			a.checkIdx = 0
		}

		ok := true
		for a.checkIdx < len(a.checkOrder) {
			sub := a.subs[a.checkOrder[a.checkIdx]]
			yes, err := sub.Check(a.pendingCandidate, b)
			if err != nil {
				return 0, err // resume with same pendingCandidate/checkIdx
			}
			a.checkIdx++
			if !yes {
				ok = false
				break
			}
		}

		id := a.pendingCandidate
		a.pendingHasCandidate = false
		a.checkIdx = 0
		if ok {
			a.cache.append(id)
			a.cacheOffset++
			return id, nil
		}
		// rejected: loop back and draw another candidate
	}
}

func (a *And) Find(idIn primitive.Id, b *budget.Budget) (primitive.Id, error) {
	if a.substitute != nil {
		return a.substitute.Find(idIn, b)
	}
	if !a.Stats().Valid {
		if err := a.Statistics(b); err != nil {
			return 0, err
		}
	}
	producer := a.subs[a.producer]
	if producer.Stats().OrderingTag == "" {
		// producer isn't find-friendly: fall back to linear scan via Next.
		for {
			id, err := a.Next(b)
			if err != nil {
				return 0, err
			}
			if a.set.Dir == iterator.Forward && id >= idIn {
				return id, nil
			}
			if a.set.Dir == iterator.Backward && id <= idIn {
				return id, nil
			}
		}
	}
	if _, err := producer.Find(idIn, b); err != nil {
		return 0, err
	}
	return a.Next(b)
}

func (a *And) Check(id primitive.Id, b *budget.Budget) (bool, error) {
	if a.substitute != nil {
		return a.substitute.Check(id, b)
	}
	if !a.set.InRange(id) {
		return false, nil
	}
	if !a.chkHasMore || a.chkID != id {
		a.chkID = id
		a.chkIdx = 0
		a.chkHasMore = true
	}
	for a.chkIdx < len(a.subs) {
		yes, err := a.subs[a.chkIdx].Check(id, b)
		if err != nil {
			return false, err
		}
		a.chkIdx++
		if !yes {
			a.chkHasMore = false
			return false, nil
		}
	}
	a.chkHasMore = false
	return true, nil
}

func (a *And) Reset() {
	for _, s := range a.subs {
		s.Reset()
	}
	a.cacheOffset = 0
	a.pendingHasCandidate = false
	a.checkIdx = 0
	a.chkHasMore = false
	if a.substitute != nil {
		a.substitute.Reset()
	}
}

func (a *And) Clone() iterator.Iterator {
	a.original.Ref()
	subs := make([]iterator.Iterator, len(a.subs))
	for i, s := range a.subs {
		subs[i] = s.Clone()
	}
	var substitute *Fixed
	if a.substitute != nil {
		substitute = a.substitute.Clone().(*Fixed)
	}
	return &And{
		set:        a.set,
		subs:       subs,
		producer:   a.producer,
		checkOrder: a.checkOrder,
		substitute: substitute,
		registrar:  a.registrar,
		cache:      a.cache, // shared with original
		original:   a.original,
	}
}

func (a *And) Kind() string { return "and" }

func (a *And) PrimitiveSummary() iterator.PrimitiveSummary {
	out := iterator.PrimitiveSummary{}
	for _, s := range a.subs {
		ps := s.PrimitiveSummary()
		for slot, g := range ps.Locked {
			if g != nil {
				out.Locked[slot] = g
			}
		}
	}
	return out
}

func (a *And) RangeEstimate() iterator.RangeEstimate {
	st := a.Stats()
	return iterator.RangeEstimate{Low: a.set.Low, High: a.set.High, N: st.N, Exact: false}
}

func (a *And) Beyond(id primitive.Id) bool {
	if a.producer < 0 {
		return false
	}
	return a.subs[a.producer].Beyond(id)
}

// masqueradeRecipe names this AND for the materialised Fixed's shortened
// cursor (spec.md §4.2 masquerade).
func (a *And) masqueradeRecipe() string {
	return "and-verified:" + a.original.Stamp()
}

// Freeze serialises bounds, direction, every sub-iterator's frozen SET, the
// elected producer index, and (if requested) cache/position state
// (spec.md §4.3 "Freeze/thaw"). Once the contest has materialised a small
// result, the substitute Fixed (carrying the and-verified masquerade) is the
// one actually driven by Next/Find/Check, so it is also the one frozen.
func (a *And) Freeze(flags iterator.FreezeFlags) (string, error) {
	if a.substitute != nil {
		return a.substitute.Freeze(flags)
	}
	var sb strings.Builder
	if flags&iterator.FreezeSet != 0 {
		dir := ""
		if a.set.Dir == iterator.Backward {
			dir = "~"
		}
		sb.WriteString("and:")
		sb.WriteString(dir)
		sb.WriteString(strconv.FormatUint(uint64(a.set.Low), 10))
		sb.WriteString("-")
		sb.WriteString(strconv.FormatUint(uint64(a.set.High), 10))
		sb.WriteString(":")
		sb.WriteString("[producer:" + strconv.Itoa(a.producer) + "]")
		sb.WriteString("[cache:" + a.original.Stamp() + "]")
		for _, s := range a.subs {
			body, err := s.Freeze(iterator.FreezeSet)
			if err != nil {
				return "", err
			}
			sb.WriteString("(")
			sb.WriteString(body)
			sb.WriteString(")")
		}
	}
	if flags&iterator.FreezePosition != 0 {
		sb.WriteString("/")
		sb.WriteString(strconv.Itoa(a.cacheOffset))
	}
	if flags&iterator.FreezeState != 0 && a.pendingHasCandidate {
		sb.WriteString("/resume=" + strconv.FormatUint(uint64(a.pendingCandidate), 10))
	}
	return sb.String(), nil
}

