// Package budget implements the engine's single-threaded cooperative
// scheduling primitive (spec.md §5, C9): every iterator operation takes a
// mutable budget, charges it for work performed, and signals MoreBudget
// once it goes negative so the caller can resume later.
package budget

// Cost constants consumed from the primitive store (spec.md §6). Units are
// abstract "cost points"; only their relative magnitude matters.
const (
	CostPrimitive    int64 = 1
	CostGmapArray    int64 = 4
	CostGmapElement  int64 = 1
	CostFunctionCall int64 = 1
)

// MinViable is the smallest budget for which progress is guaranteed at a
// suspension point. Below this, an operation must return More without
// attempting any work, per testable property 8 in spec.md §8.
const MinViable int64 = 1

// Budget is a mutable allowance passed by reference through a call tree.
// Every charge subtracts from Remaining; once Remaining < 0 the caller is
// expected to stop and return More.
type Budget struct {
	Remaining int64
}

// New returns a Budget seeded with n cost units.
func New(n int64) *Budget { return &Budget{Remaining: n} }

// Charge subtracts cost from the budget and reports whether the budget is
// now exhausted (Remaining < 0). Charging is unconditional: even an
// exhausted budget still records the cost, so accounting stays exact across
// a sequence of small operations within one call.
func (b *Budget) Charge(cost int64) (exhausted bool) {
	b.Remaining -= cost
	return b.Remaining < 0
}

// Exhausted reports whether the budget has already gone negative.
func (b *Budget) Exhausted() bool { return b.Remaining < 0 }

// Viable reports whether there is enough budget left to guarantee the next
// suspension point makes progress (testable property 8).
func (b *Budget) Viable() bool { return b.Remaining >= MinViable }
