package kinds

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/graphd/queryengine/internal/domain/iterator"
	"github.com/graphd/queryengine/internal/domain/primitive"
	"github.com/graphd/queryengine/internal/infrastructure/budget"
)

// Fixed backs a small explicit id array (spec.md §4.2, C3). It is either
// unsorted (GUID lists straight from a query) or sorted forward/backward,
// the choice made once at commit time. A frozen Fixed may carry a
// masquerade recipe instead of its id list, shortening long cursors.
type Fixed struct {
	set    iterator.Set
	ids    []primitive.Id
	sorted bool

	idx int
	pos iterator.Position

	// masquerade, when non-empty, is what Freeze emits for the SET piece
	// instead of the literal id list (spec.md §4.2).
	masquerade string

	original *iterator.Original
}

// NewFixedUnsorted builds a Fixed over ids in array order, with no
// ordering guarantee.
func NewFixedUnsorted(ids []primitive.Id, low, high primitive.Id) *Fixed {
	cp := append([]primitive.Id(nil), ids...)
	return &Fixed{
		set:      iterator.Set{Low: low, High: high, Dir: iterator.Forward},
		ids:      cp,
		sorted:   false,
		original: iterator.NewOriginal(fmt.Sprintf("fixed-%p", &cp)),
	}
}

// NewFixedSorted builds a Fixed that guarantees monotonic output in the
// given direction. ids is copied and the copy sorted; the caller's slice is
// left untouched.
func NewFixedSorted(ids []primitive.Id, low, high primitive.Id, forward bool) *Fixed {
	cp := append([]primitive.Id(nil), ids...)
	if forward {
		sort.Slice(cp, func(i, j int) bool { return cp[i] < cp[j] })
	} else {
		sort.Slice(cp, func(i, j int) bool { return cp[i] > cp[j] })
	}
	dir := iterator.Forward
	if !forward {
		dir = iterator.Backward
	}
	tag := ""
	if forward {
		tag = "id"
	} else {
		tag = "~id"
	}
	return &Fixed{
		set:      iterator.Set{Low: low, High: high, Dir: dir, OrderingTag: tag},
		ids:      cp,
		sorted:   true,
		original: iterator.NewOriginal(fmt.Sprintf("fixed-%p", &cp)),
	}
}

// WithMasquerade attaches a textual recipe Freeze will emit instead of the
// explicit id list.
func (f *Fixed) WithMasquerade(recipe string) *Fixed {
	f.masquerade = recipe
	return f
}

func (f *Fixed) Next(b *budget.Budget) (primitive.Id, error) {
	if b.Charge(budget.CostPrimitive) {
		return 0, iterator.Wrap(iterator.ErrMoreBudget, "fixed next")
	}
	for f.idx < len(f.ids) {
		id := f.ids[f.idx]
		f.idx++
		if !f.set.InRange(id) {
			continue
		}
		f.pos.Started = true
		f.pos.LastId = id
		return id, nil
	}
	f.pos.Eof = true
	return 0, iterator.Wrap(iterator.ErrNoMoreData, "fixed exhausted")
}

func (f *Fixed) Find(idIn primitive.Id, b *budget.Budget) (primitive.Id, error) {
	if b.Charge(budget.CostFunctionCall) {
		return 0, iterator.Wrap(iterator.ErrMoreBudget, "fixed find")
	}
	if !f.sorted {
		return 0, iterator.Wrap(iterator.ErrInternal, "find on unsorted fixed")
	}
	n := len(f.ids)
	var i int
	if f.set.Dir == iterator.Forward {
		i = sort.Search(n, func(k int) bool { return f.ids[k] >= idIn })
	} else {
		i = sort.Search(n, func(k int) bool { return f.ids[k] <= idIn })
	}
	f.idx = i
	return f.Next(b)
}

func (f *Fixed) Check(id primitive.Id, b *budget.Budget) (bool, error) {
	if b.Charge(budget.CostFunctionCall) {
		return false, iterator.Wrap(iterator.ErrMoreBudget, "fixed check")
	}
	if !f.set.InRange(id) {
		return false, nil
	}
	if f.sorted {
		n := len(f.ids)
		i := sort.Search(n, func(k int) bool {
			if f.set.Dir == iterator.Forward {
				return f.ids[k] >= id
			}
			return f.ids[k] <= id
		})
		return i < n && f.ids[i] == id, nil
	}
	for _, x := range f.ids {
		if x == id {
			return true, nil
		}
	}
	return false, nil
}

func (f *Fixed) Statistics(b *budget.Budget) error { return nil }

func (f *Fixed) Stats() iterator.Statistics {
	tag := f.set.OrderingTag
	return iterator.Statistics{
		Valid:       true,
		CheckCost:   budget.CostFunctionCall,
		NextCost:    budget.CostPrimitive,
		FindCost:    budget.CostFunctionCall,
		N:           uint64(len(f.ids)),
		OrderingTag: tag,
	}
}

func (f *Fixed) Reset() {
	f.idx = 0
	f.pos.Reset()
}

func (f *Fixed) Clone() iterator.Iterator {
	f.original.Ref()
	return &Fixed{
		set:        f.set,
		ids:        f.ids, // read-only, safe to share
		sorted:     f.sorted,
		masquerade: f.masquerade,
		original:   f.original,
	}
}

func (f *Fixed) Freeze(flags iterator.FreezeFlags) (string, error) {
	var sb strings.Builder
	if flags&iterator.FreezeSet != 0 {
		dir := ""
		if f.set.Dir == iterator.Backward {
			dir = "~"
		}
		sb.WriteString("fixed:")
		sb.WriteString(dir)
		sb.WriteString(strconv.FormatUint(uint64(f.set.Low), 10))
		sb.WriteString("-")
		sb.WriteString(strconv.FormatUint(uint64(f.set.High), 10))
		sb.WriteString(":")
		if f.masquerade != "" {
			sb.WriteString(f.masquerade)
		} else {
			parts := make([]string, len(f.ids))
			for i, id := range f.ids {
				parts[i] = strconv.FormatUint(uint64(id), 10)
			}
			sb.WriteString(strings.Join(parts, ","))
		}
	}
	if flags&iterator.FreezePosition != 0 {
		sb.WriteString("/")
		sb.WriteString(strconv.Itoa(f.idx))
	}
	return sb.String(), nil
}

func (f *Fixed) Kind() string { return "fixed" }

func (f *Fixed) PrimitiveSummary() iterator.PrimitiveSummary {
	return iterator.PrimitiveSummary{}
}

func (f *Fixed) RangeEstimate() iterator.RangeEstimate {
	return iterator.RangeEstimate{Low: f.set.Low, High: f.set.High, N: uint64(len(f.ids)), Exact: true}
}

func (f *Fixed) Beyond(id primitive.Id) bool {
	if f.idx >= len(f.ids) {
		return true
	}
	if f.set.Dir == iterator.Forward {
		return f.ids[f.idx] > id
	}
	return f.ids[f.idx] < id
}

// Ids exposes the committed id array, e.g. for AND's materialisation path
// and ISA's fixed-intersection helper (spec.md C3: "intersection helper").
func (f *Fixed) Ids() []primitive.Id { return f.ids }

// Sorted reports whether this Fixed guarantees monotonic output.
func (f *Fixed) Sorted() bool { return f.sorted }

// IntersectSorted returns the sorted intersection of two sorted Fixed id
// sets — the intersection helper named in spec.md C3.
func IntersectSorted(a, b []primitive.Id) []primitive.Id {
	out := make([]primitive.Id, 0, min(len(a), len(b)))
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		switch {
		case a[i] == b[j]:
			out = append(out, a[i])
			i++
			j++
		case a[i] < b[j]:
			i++
		default:
			j++
		}
	}
	return out
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
