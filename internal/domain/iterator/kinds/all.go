package kinds

import (
	"strconv"

	"github.com/graphd/queryengine/internal/domain/iterator"
	"github.com/graphd/queryengine/internal/domain/primitive"
	"github.com/graphd/queryengine/internal/infrastructure/budget"
)

// All enumerates every id in [low, high), the fallback iterator the
// planner attaches when no more selective sub-iterator could be justified
// (spec.md §4.7.vi). If store is non-nil, ids the store reports missing
// (archived/compacted away) are skipped rather than emitted — "primitive
// read missing -> skip and continue" (spec.md §4.10).
type All struct {
	set   iterator.Set
	store iterator.Store
	cur   primitive.Id
	pos   iterator.Position
}

func NewAll(low, high primitive.Id, forward bool, store iterator.Store) *All {
	dir := iterator.Forward
	start := low
	if !forward {
		dir = iterator.Backward
		start = high // backward starts just past the top, decremented on first Next
	}
	return &All{
		set:   iterator.Set{Low: low, High: high, Dir: dir, OrderingTag: orderingTagFor(dir)},
		store: store,
		cur:   start,
	}
}

func orderingTagFor(dir iterator.Direction) string {
	if dir == iterator.Forward {
		return "id"
	}
	return "~id"
}

func (a *All) Next(b *budget.Budget) (primitive.Id, error) {
	for {
		if b.Charge(budget.CostPrimitive) {
			return 0, iterator.Wrap(iterator.ErrMoreBudget, "all next")
		}
		var id primitive.Id
		if a.set.Dir == iterator.Forward {
			if a.cur >= a.set.High {
				a.pos.Eof = true
				return 0, iterator.Wrap(iterator.ErrNoMoreData, "all exhausted")
			}
			id = a.cur
			a.cur++
		} else {
			if a.cur <= a.set.Low {
				a.pos.Eof = true
				return 0, iterator.Wrap(iterator.ErrNoMoreData, "all exhausted")
			}
			a.cur--
			id = a.cur
		}
		if a.store != nil {
			if _, ok := a.store.ReadPrimitive(id); !ok {
				continue // deleted: skip, keep charging the loop's own budget
			}
		}
		a.pos.Started = true
		a.pos.LastId = id
		return id, nil
	}
}

func (a *All) Find(idIn primitive.Id, b *budget.Budget) (primitive.Id, error) {
	if b.Charge(budget.CostFunctionCall) {
		return 0, iterator.Wrap(iterator.ErrMoreBudget, "all find")
	}
	if a.set.Dir == iterator.Forward {
		if idIn > a.cur {
			a.cur = idIn
		}
	} else {
		if idIn < a.cur {
			a.cur = idIn + 1
		}
	}
	return a.Next(b)
}

func (a *All) Check(id primitive.Id, b *budget.Budget) (bool, error) {
	if b.Charge(budget.CostFunctionCall) {
		return false, iterator.Wrap(iterator.ErrMoreBudget, "all check")
	}
	if !a.set.InRange(id) {
		return false, nil
	}
	if a.store != nil {
		if _, ok := a.store.ReadPrimitive(id); !ok {
			return false, nil
		}
	}
	return true, nil
}

func (a *All) Statistics(b *budget.Budget) error { return nil }

func (a *All) Stats() iterator.Statistics {
	n := uint64(0)
	if a.set.High > a.set.Low {
		n = uint64(a.set.High - a.set.Low)
	}
	return iterator.Statistics{
		Valid:       true,
		CheckCost:   budget.CostFunctionCall,
		NextCost:    budget.CostPrimitive,
		FindCost:    budget.CostFunctionCall,
		N:           n,
		OrderingTag: a.set.OrderingTag,
	}
}

func (a *All) Reset() {
	if a.set.Dir == iterator.Forward {
		a.cur = a.set.Low
	} else {
		a.cur = a.set.High
	}
	a.pos.Reset()
}

func (a *All) Clone() iterator.Iterator {
	cp := *a
	cp.pos = iterator.Position{}
	return &cp
}

func (a *All) Freeze(flags iterator.FreezeFlags) (string, error) {
	out := ""
	if flags&iterator.FreezeSet != 0 {
		dir := ""
		if a.set.Dir == iterator.Backward {
			dir = "~"
		}
		out += "all:" + dir + strconv.FormatUint(uint64(a.set.Low), 10) + "-" + strconv.FormatUint(uint64(a.set.High), 10) + ":"
	}
	if flags&iterator.FreezePosition != 0 {
		out += "/" + strconv.FormatUint(uint64(a.cur), 10)
	}
	return out, nil
}

func (a *All) Kind() string { return "all" }

func (a *All) PrimitiveSummary() iterator.PrimitiveSummary { return iterator.PrimitiveSummary{} }

func (a *All) RangeEstimate() iterator.RangeEstimate {
	s := a.Stats()
	return iterator.RangeEstimate{Low: a.set.Low, High: a.set.High, N: s.N, Exact: a.store == nil}
}

func (a *All) Beyond(id primitive.Id) bool {
	if a.set.Dir == iterator.Forward {
		return a.cur > id
	}
	return a.cur < id
}
