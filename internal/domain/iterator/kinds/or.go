package kinds

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/graphd/queryengine/internal/domain/iterator"
	"github.com/graphd/queryengine/internal/domain/primitive"
	"github.com/graphd/queryengine/internal/infrastructure/budget"
)

// Or produces the union of its sub-iterators with duplicate suppression
// (spec.md §4.4, C5). When every sub reports the same ordering tag as the
// requested set direction, Or merges them in sorted order instead of
// hashing; otherwise it falls back to a seen-set.
type Or struct {
	set  iterator.Set
	subs []iterator.Iterator

	merge bool // true: sorted k-way merge; false: hash dedup

	// hash-mode state
	active []int // indices into subs still producing
	rotate int
	seen   map[primitive.Id]struct{}

	// merge-mode state: one buffered head per sub
	headID    []primitive.Id
	headValid []bool
	done      []bool
	lastEmitted    primitive.Id
	hasLastEmitted bool

	substitute *Fixed // non-nil once the union is proven small (spec.md §4.4)

	// registrar, if set, is where the substitute publishes itself once
	// materialised, so a later thaw in this process can rebind to it by its
	// masquerade stamp (spec.md §5).
	registrar Registrar

	original *iterator.Original
}

// WithRegistrar attaches the name-to-original index a verified substitute
// publishes itself into once materialised (spec.md §5), so a later thaw in
// this process can rebind to it instead of replaying every branch.
func (o *Or) WithRegistrar(r Registrar) *Or {
	o.registrar = r
	return o
}

// NewOr composes subs into a union over [low, high).
func NewOr(subs []iterator.Iterator, low, high primitive.Id, forward bool) iterator.Iterator {
	live := subs[:0:0]
	for _, s := range subs {
		if s.Kind() != "null" {
			live = append(live, s)
		}
	}
	if len(live) == 0 {
		return NewNull()
	}
	if len(live) == 1 {
		return live[0]
	}
	dir := iterator.Forward
	if !forward {
		dir = iterator.Backward
	}
	wantTag := orderingTagFor(dir)
	merge := true
	for _, s := range live {
		if !s.Stats().Valid || !s.Stats().Ordered(wantTag) {
			merge = false
			break
		}
	}
	o := &Or{
		set:      iterator.Set{Low: low, High: high, Dir: dir, OrderingTag: wantTag},
		subs:     live,
		merge:    merge,
		original: iterator.NewOriginal(fmt.Sprintf("or-%p", live)),
	}
	if merge {
		o.headID = make([]primitive.Id, len(live))
		o.headValid = make([]bool, len(live))
		o.done = make([]bool, len(live))
	} else {
		o.active = make([]int, len(live))
		for i := range live {
			o.active[i] = i
		}
		o.seen = make(map[primitive.Id]struct{})
	}
	return o
}

func (o *Or) Next(b *budget.Budget) (primitive.Id, error) {
	if o.substitute != nil {
		return o.substitute.Next(b)
	}
	if !o.Stats().Valid {
		if err := o.Statistics(b); err != nil {
			return 0, err
		}
		if o.substitute != nil {
			return o.substitute.Next(b)
		}
	}
	if o.merge {
		return o.nextMerge(b)
	}
	return o.nextHash(b)
}

func (o *Or) nextHash(b *budget.Budget) (primitive.Id, error) {
	for len(o.active) > 0 {
		if b.Exhausted() {
			return 0, iterator.Wrap(iterator.ErrMoreBudget, "or hash dedup")
		}
		slot := o.rotate % len(o.active)
		idx := o.active[slot]
		id, err := o.subs[idx].Next(b)
		if iterator.Is(err, iterator.ErrNoMoreData) {
			o.active = append(o.active[:slot], o.active[slot+1:]...)
			continue
		}
		if err != nil {
			return 0, err
		}
		o.rotate++
		if _, dup := o.seen[id]; dup {
			continue
		}
		o.seen[id] = struct{}{}
		return id, nil
	}
	return 0, iterator.Wrap(iterator.ErrNoMoreData, "or exhausted")
}

func (o *Or) pullHead(i int, b *budget.Budget) error {
	if o.headValid[i] || o.done[i] {
		return nil
	}
	id, err := o.subs[i].Next(b)
	if iterator.Is(err, iterator.ErrNoMoreData) {
		o.done[i] = true
		return nil
	}
	if err != nil {
		return err
	}
	o.headID[i] = id
	o.headValid[i] = true
	return nil
}

func (o *Or) nextMerge(b *budget.Budget) (primitive.Id, error) {
	for {
		for i := range o.subs {
			if err := o.pullHead(i, b); err != nil {
				return 0, err
			}
		}
		winner := -1
		for i := range o.subs {
			if !o.headValid[i] {
				continue
			}
			if winner == -1 {
				winner = i
				continue
			}
			if o.set.Dir == iterator.Forward {
				if o.headID[i] < o.headID[winner] {
					winner = i
				}
			} else {
				if o.headID[i] > o.headID[winner] {
					winner = i
				}
			}
		}
		if winner == -1 {
			return 0, iterator.Wrap(iterator.ErrNoMoreData, "or exhausted")
		}
		id := o.headID[winner]
		for i := range o.subs {
			if o.headValid[i] && o.headID[i] == id {
				o.headValid[i] = false
			}
		}
		if o.hasLastEmitted && o.lastEmitted == id {
			continue // duplicate across branches this round, already consumed
		}
		o.lastEmitted = id
		o.hasLastEmitted = true
		return id, nil
	}
}

func (o *Or) Find(idIn primitive.Id, b *budget.Budget) (primitive.Id, error) {
	if o.substitute != nil {
		return o.substitute.Find(idIn, b)
	}
	if !o.merge {
		// Hash-dedup Or has no ordering guarantee to find against.
		return 0, iterator.Wrap(iterator.ErrInternal, "find on unordered or")
	}
	for i := range o.subs {
		if o.headValid[i] {
			if (o.set.Dir == iterator.Forward && o.headID[i] >= idIn) ||
				(o.set.Dir == iterator.Backward && o.headID[i] <= idIn) {
				continue
			}
			o.headValid[i] = false
		}
		if o.done[i] {
			continue
		}
		if _, err := o.subs[i].Find(idIn, b); err != nil && !iterator.Is(err, iterator.ErrNoMoreData) {
			return 0, err
		} else if iterator.Is(err, iterator.ErrNoMoreData) {
			o.done[i] = true
		}
	}
	return o.nextMerge(b)
}

func (o *Or) Check(id primitive.Id, b *budget.Budget) (bool, error) {
	if o.substitute != nil {
		return o.substitute.Check(id, b)
	}
	if !o.set.InRange(id) {
		return false, nil
	}
	for _, s := range o.subs {
		yes, err := s.Check(id, b)
		if err != nil {
			return false, err
		}
		if yes {
			return true, nil
		}
	}
	return false, nil
}

// Statistics drives every sub's Statistics once, then — if the combined
// cardinality is small, the same mainline case And and Isa check for —
// verifies the deduplicated union and substitutes itself with a Fixed
// carrying an or-verified masquerade (spec.md §4.4, §4.2).
func (o *Or) Statistics(b *budget.Budget) error {
	if o.substitute != nil || o.Stats().Valid {
		return nil
	}
	n := uint64(0)
	checkCost, nextCost := int64(0), int64(0)
	for _, s := range o.subs {
		if err := s.Statistics(b); err != nil {
			return err
		}
		st := s.Stats()
		n += st.N
		checkCost += st.CheckCost
		nextCost += st.NextCost
	}
	tag := ""
	if o.merge {
		tag = o.set.OrderingTag
	}
	if n <= smallResultThreshold {
		if verified, ok := o.tryMaterialise(b); ok {
			o.substitute = NewFixedSorted(verified, o.set.Low, o.set.High, o.set.Dir == iterator.Forward)
			o.substitute.WithMasquerade(o.masqueradeRecipe())
			if o.registrar != nil {
				o.registrar.Register(o.original.Stamp(), o.substitute)
			}
		}
	}
	o.original.SetStats(iterator.Statistics{Valid: true, CheckCost: checkCost, NextCost: nextCost, FindCost: nextCost, N: n, OrderingTag: tag})
	return nil
}

// tryMaterialise drains a fresh clone of every branch through the same
// merge/hash dedup Next already implements, stopping short of committing to
// a Fixed if the verified union turns out larger than smallResultThreshold
// after all (e.g. N was an overcount across overlapping branches).
func (o *Or) tryMaterialise(b *budget.Budget) ([]primitive.Id, bool) {
	clones := make([]iterator.Iterator, len(o.subs))
	for i, s := range o.subs {
		clones[i] = s.Clone()
	}
	probe := NewOr(clones, o.set.Low, o.set.High, o.set.Dir == iterator.Forward)
	if p, ok := probe.(*Or); ok {
		// Mark the probe's stats valid so its Next goes straight to
		// merge/hash instead of running its own materialise probe.
		p.original.SetStats(iterator.Statistics{Valid: true})
	}
	var out []primitive.Id
	for {
		id, err := probe.Next(b)
		if iterator.Is(err, iterator.ErrNoMoreData) {
			return out, true
		}
		if err != nil {
			return nil, false
		}
		out = append(out, id)
		if len(out) > smallResultThreshold {
			return nil, false
		}
		if b.Exhausted() {
			return nil, false
		}
	}
}

// masqueradeRecipe names this Or for the materialised Fixed's shortened
// cursor (spec.md §4.2 masquerade).
func (o *Or) masqueradeRecipe() string {
	return "or-verified:" + o.original.Stamp()
}

func (o *Or) Stats() iterator.Statistics { return o.original.Stats() }

func (o *Or) Reset() {
	for _, s := range o.subs {
		s.Reset()
	}
	o.rotate = 0
	o.hasLastEmitted = false
	if o.merge {
		for i := range o.subs {
			o.headValid[i] = false
			o.done[i] = false
		}
	} else {
		o.active = o.active[:0]
		for i := range o.subs {
			o.active = append(o.active, i)
		}
		o.seen = make(map[primitive.Id]struct{})
	}
	if o.substitute != nil {
		o.substitute.Reset()
	}
}

func (o *Or) Clone() iterator.Iterator {
	o.original.Ref()
	subs := make([]iterator.Iterator, len(o.subs))
	for i, s := range o.subs {
		subs[i] = s.Clone()
	}
	n := NewOr(subs, o.set.Low, o.set.High, o.set.Dir == iterator.Forward).(*Or)
	if o.substitute != nil {
		n.substitute = o.substitute.Clone().(*Fixed)
	}
	n.registrar = o.registrar
	n.original = o.original
	return n
}

func (o *Or) Kind() string { return "or" }

func (o *Or) PrimitiveSummary() iterator.PrimitiveSummary { return iterator.PrimitiveSummary{} }

func (o *Or) RangeEstimate() iterator.RangeEstimate {
	st := o.Stats()
	return iterator.RangeEstimate{Low: o.set.Low, High: o.set.High, N: st.N, Exact: false}
}

func (o *Or) Beyond(id primitive.Id) bool {
	for _, s := range o.subs {
		if !s.Beyond(id) {
			return false
		}
	}
	return true
}

// Freeze serialises bounds, direction, and every branch's frozen SET
// (spec.md §4.4 "Freeze/thaw"). Once the union is proven small,
// o.substitute (carrying the or-verified masquerade) is the iterator
// actually driving Next/Find/Check, so it is also the one frozen.
func (o *Or) Freeze(flags iterator.FreezeFlags) (string, error) {
	if o.substitute != nil {
		return o.substitute.Freeze(flags)
	}
	var sb strings.Builder
	if flags&iterator.FreezeSet != 0 {
		dir := ""
		if o.set.Dir == iterator.Backward {
			dir = "~"
		}
		sb.WriteString("or:")
		sb.WriteString(dir)
		sb.WriteString(strconv.FormatUint(uint64(o.set.Low), 10))
		sb.WriteString("-")
		sb.WriteString(strconv.FormatUint(uint64(o.set.High), 10))
		sb.WriteString(":")
		for _, s := range o.subs {
			body, err := s.Freeze(iterator.FreezeSet)
			if err != nil {
				return "", err
			}
			sb.WriteString("(")
			sb.WriteString(body)
			sb.WriteString(")")
		}
	}
	return sb.String(), nil
}
