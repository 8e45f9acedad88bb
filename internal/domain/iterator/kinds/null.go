// Package kinds implements the concrete iterator variants named in
// spec.md's cursor grammar: null, fixed, all, gmap, vip, hmap, vrange, and,
// or, isa, and linksto.
package kinds

import (
	"github.com/graphd/queryengine/internal/domain/iterator"
	"github.com/graphd/queryengine/internal/domain/primitive"
	"github.com/graphd/queryengine/internal/infrastructure/budget"
)

// Null never emits anything. Any AND with a Null sub becomes Null; an OR of
// only Null branches becomes Null (spec.md §4.3/§4.4 edge cases).
type Null struct{}

func NewNull() *Null { return &Null{} }

func (n *Null) Next(b *budget.Budget) (primitive.Id, error) {
	return 0, iterator.Wrap(iterator.ErrNoMoreData, "null iterator")
}
func (n *Null) Find(idIn primitive.Id, b *budget.Budget) (primitive.Id, error) {
	return 0, iterator.Wrap(iterator.ErrNoMoreData, "null iterator")
}
func (n *Null) Check(id primitive.Id, b *budget.Budget) (bool, error) { return false, nil }
func (n *Null) Statistics(b *budget.Budget) error                    { return nil }
func (n *Null) Stats() iterator.Statistics {
	return iterator.Statistics{Valid: true, N: 0}
}
func (n *Null) Reset()           {}
func (n *Null) Clone() iterator.Iterator { return &Null{} }
func (n *Null) Freeze(flags iterator.FreezeFlags) (string, error) {
	return "null:0-0:", nil
}
func (n *Null) Kind() string { return "null" }
func (n *Null) PrimitiveSummary() iterator.PrimitiveSummary {
	return iterator.PrimitiveSummary{}
}
func (n *Null) RangeEstimate() iterator.RangeEstimate {
	return iterator.RangeEstimate{N: 0, Exact: true}
}
func (n *Null) Beyond(id primitive.Id) bool { return true }
