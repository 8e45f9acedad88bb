package kinds

import (
	"strings"
	"testing"

	"github.com/graphd/queryengine/internal/domain/iterator"
	"github.com/graphd/queryengine/internal/domain/primitive"
	"github.com/graphd/queryengine/internal/infrastructure/budget"
)

func drainIds(t *testing.T, it iterator.Iterator) []primitive.Id {
	t.Helper()
	var out []primitive.Id
	b := budget.New(1000)
	for {
		id, err := it.Next(b)
		if iterator.Is(err, iterator.ErrNoMoreData) {
			return out
		}
		if err != nil {
			t.Fatalf("next: %v", err)
		}
		out = append(out, id)
	}
}

func TestFixedUnsortedPreservesOrder(t *testing.T) {
	f := NewFixedUnsorted([]primitive.Id{30, 10, 20}, 0, primitive.Max)
	got := drainIds(t, f)
	want := []primitive.Id{30, 10, 20}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestFixedSortedOrdersForwardAndBackward(t *testing.T) {
	fwd := NewFixedSorted([]primitive.Id{30, 10, 20}, 0, primitive.Max, true)
	if got := drainIds(t, fwd); got[0] != 10 || got[1] != 20 || got[2] != 30 {
		t.Fatalf("forward order wrong: %v", got)
	}
	back := NewFixedSorted([]primitive.Id{30, 10, 20}, 0, primitive.Max, false)
	if got := drainIds(t, back); got[0] != 30 || got[1] != 20 || got[2] != 10 {
		t.Fatalf("backward order wrong: %v", got)
	}
}

func TestFixedFindOnUnsortedErrors(t *testing.T) {
	f := NewFixedUnsorted([]primitive.Id{1, 2, 3}, 0, primitive.Max)
	b := budget.New(1000)
	if _, err := f.Find(2, b); err == nil {
		t.Fatal("expected error finding on an unsorted fixed")
	}
}

func TestFixedFindOnSorted(t *testing.T) {
	f := NewFixedSorted([]primitive.Id{10, 20, 30, 40}, 0, primitive.Max, true)
	b := budget.New(1000)
	id, err := f.Find(25, b)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if id != 30 {
		t.Fatalf("find(25) = %d, want 30", id)
	}
}

func TestFixedCheck(t *testing.T) {
	sorted := NewFixedSorted([]primitive.Id{1, 2, 3}, 0, primitive.Max, true)
	unsorted := NewFixedUnsorted([]primitive.Id{1, 2, 3}, 0, primitive.Max)
	b := budget.New(1000)
	for _, f := range []*Fixed{sorted, unsorted} {
		yes, err := f.Check(2, b)
		if err != nil || !yes {
			t.Fatalf("check(2) = (%v, %v), want (true, nil)", yes, err)
		}
		no, err := f.Check(99, b)
		if err != nil || no {
			t.Fatalf("check(99) = (%v, %v), want (false, nil)", no, err)
		}
	}
}

func TestFixedMasqueradeOverridesFreeze(t *testing.T) {
	f := NewFixedUnsorted([]primitive.Id{1, 2, 3}, 0, primitive.Max).WithMasquerade("and-verified:stamp123")
	text, err := f.Freeze(iterator.FreezeSet)
	if err != nil {
		t.Fatalf("freeze: %v", err)
	}
	if !strings.Contains(text, "and-verified:stamp123") {
		t.Fatalf("freeze output %q missing masquerade recipe", text)
	}
	if strings.Contains(text, "1,2,3") {
		t.Fatalf("freeze output %q should not contain literal ids when masqueraded", text)
	}
}

func TestFixedIntersectSorted(t *testing.T) {
	a := []primitive.Id{1, 3, 5, 7, 9}
	b := []primitive.Id{3, 4, 5, 9, 10}
	got := IntersectSorted(a, b)
	want := []primitive.Id{3, 5, 9}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestFixedCloneSharesIdsIndependentPosition(t *testing.T) {
	f := NewFixedSorted([]primitive.Id{1, 2, 3}, 0, primitive.Max, true)
	bud := budget.New(1000)
	if _, err := f.Next(bud); err != nil {
		t.Fatal(err)
	}
	clone := f.Clone().(*Fixed)
	if clone.idx != 0 {
		t.Fatalf("clone should start at its own fresh position, got idx=%d", clone.idx)
	}
	id, err := clone.Next(bud)
	if err != nil || id != 1 {
		t.Fatalf("clone.Next() = (%d, %v), want (1, nil)", id, err)
	}
	next, err := f.Next(bud)
	if err != nil || next != 2 {
		t.Fatalf("original should continue from its own position, got (%d, %v)", next, err)
	}
}
