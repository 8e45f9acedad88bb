package kinds

import (
	"strconv"

	"github.com/graphd/queryengine/internal/domain/iterator"
	"github.com/graphd/queryengine/internal/domain/primitive"
	"github.com/graphd/queryengine/internal/infrastructure/budget"
)

// postingList is the shared shape of the three store-backed leaf kinds
// (gmap, vip, hmap): a sorted id array plus enough metadata to freeze back
// into a recipe a store can re-resolve, rather than the literal id list.
type postingList struct {
	base       *Fixed
	kind       string
	freezeBody string // e.g. "type:<guid>" for gmap, re-emitted verbatim on Freeze
	summary    iterator.PrimitiveSummary
}

func newPostingList(kind string, ids []primitive.Id, low, high primitive.Id, forward bool, freezeBody string, summary iterator.PrimitiveSummary) *postingList {
	return &postingList{
		base:       NewFixedSorted(ids, low, high, forward),
		kind:       kind,
		freezeBody: freezeBody,
		summary:    summary,
	}
}

func (p *postingList) Next(b *budget.Budget) (primitive.Id, error) { return p.base.Next(b) }
func (p *postingList) Find(idIn primitive.Id, b *budget.Budget) (primitive.Id, error) {
	return p.base.Find(idIn, b)
}
func (p *postingList) Check(id primitive.Id, b *budget.Budget) (bool, error) {
	return p.base.Check(id, b)
}
func (p *postingList) Statistics(b *budget.Budget) error { return p.base.Statistics(b) }
func (p *postingList) Stats() iterator.Statistics        { return p.base.Stats() }
func (p *postingList) Reset()                            { p.base.Reset() }

func (p *postingList) Clone() iterator.Iterator {
	return &postingList{
		base:       p.base.Clone().(*Fixed),
		kind:       p.kind,
		freezeBody: p.freezeBody,
		summary:    p.summary,
	}
}

func (p *postingList) Freeze(flags iterator.FreezeFlags) (string, error) {
	var out string
	if flags&iterator.FreezeSet != 0 {
		dir := ""
		if p.base.set.Dir == iterator.Backward {
			dir = "~"
		}
		out += p.kind + ":" + dir + strconv.FormatUint(uint64(p.base.set.Low), 10) + "-" + strconv.FormatUint(uint64(p.base.set.High), 10) + ":" + p.freezeBody
	}
	if flags&iterator.FreezePosition != 0 {
		body, _ := p.base.Freeze(iterator.FreezePosition)
		out += body
	}
	return out, nil
}

func (p *postingList) Kind() string                             { return p.kind }
func (p *postingList) PrimitiveSummary() iterator.PrimitiveSummary { return p.summary }
func (p *postingList) RangeEstimate() iterator.RangeEstimate     { return p.base.RangeEstimate() }
func (p *postingList) Beyond(id primitive.Id) bool               { return p.base.Beyond(id) }
