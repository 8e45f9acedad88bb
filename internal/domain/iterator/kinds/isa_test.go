package kinds

import (
	"encoding/binary"
	"testing"

	"go.uber.org/zap"

	"github.com/graphd/queryengine/internal/domain/iterator"
	"github.com/graphd/queryengine/internal/domain/primitive"
	"github.com/graphd/queryengine/internal/infrastructure/budget"
	"github.com/graphd/queryengine/internal/infrastructure/rescache"
	"github.com/graphd/queryengine/internal/repo/memstore"
)

func guidFor(n uint64) primitive.Guid {
	var g primitive.Guid
	binary.BigEndian.PutUint64(g[8:], n)
	return g
}

func buildIsaFixture() *memstore.Store {
	mk := func(id uint64, slot primitive.LinkageSlot, target uint64) *primitive.Primitive {
		pr := &primitive.Primitive{Id: primitive.Id(id), Guid: guidFor(id)}
		pr.Linkages[slot] = primitive.Linkage{Present: true, Guid: guidFor(target)}
		return pr
	}
	prs := []*primitive.Primitive{
		{Id: 1, Guid: guidFor(1)},
		{Id: 2, Guid: guidFor(2)},
		mk(10, primitive.SlotLeft, 1),
		mk(11, primitive.SlotLeft, 1),
		mk(12, primitive.SlotLeft, 1),
		mk(13, primitive.SlotLeft, 2),
	}
	return memstore.New(prs)
}

func TestIsaForwardDedupsFanIn(t *testing.T) {
	store := buildIsaFixture()
	source := NewFixedUnsorted([]primitive.Id{10, 11, 12, 13}, 0, primitive.Max)
	isa := NewIsa(source, primitive.SlotLeft, store, 0, primitive.Max, true, false)

	got := drainIds(t, isa)
	seen := map[primitive.Id]bool{}
	for _, id := range got {
		if seen[id] {
			t.Fatalf("id %d emitted more than once: %v", id, got)
		}
		seen[id] = true
	}
	if len(seen) != 2 || !seen[1] || !seen[2] {
		t.Fatalf("got %v, want distinct {1, 2}", got)
	}
}

func TestIsaStorableCacheSharesViaResourceCache(t *testing.T) {
	store := buildIsaFixture()
	rc := rescache.New(1<<20, nil, "test:", zap.NewNop())

	source := NewFixedUnsorted([]primitive.Id{10, 11, 12, 13}, 0, primitive.Max)
	isa := NewIsa(source, primitive.SlotLeft, store, 0, primitive.Max, true, false).(*Isa)
	isa.WithResourceCache(rc, 0)

	got := drainIds(t, isa)
	seen := map[primitive.Id]bool{}
	for _, id := range got {
		seen[id] = true
	}
	if len(seen) != 2 || !seen[1] || !seen[2] {
		t.Fatalf("got %v, want distinct {1, 2}", got)
	}
	if isa.method != Storable {
		t.Fatalf("method = %v, want storable (a resource-cache-backed run should still pick storable here)", isa.method)
	}
	if rc.Len() != 1 {
		t.Fatalf("rescache.Len() = %d, want 1 (isa should have linked its dedup cache into the shared cache)", rc.Len())
	}
}

func TestIsaLinksToFansOutChildren(t *testing.T) {
	store := buildIsaFixture()
	source := NewFixedUnsorted([]primitive.Id{1}, 0, primitive.Max)
	isa := NewIsa(source, primitive.SlotLeft, store, 0, primitive.Max, true, true)

	got := drainIds(t, isa)
	want := map[primitive.Id]bool{10: true, 11: true, 12: true}
	if len(got) != len(want) {
		t.Fatalf("got %v, want 3 children of parent 1", got)
	}
	for _, id := range got {
		if !want[id] {
			t.Fatalf("unexpected id %d in %v", id, got)
		}
	}
}

func TestIsaNullSourceCollapses(t *testing.T) {
	store := buildIsaFixture()
	got := NewIsa(NewNull(), primitive.SlotLeft, store, 0, primitive.Max, true, false)
	if got.Kind() != "null" {
		t.Fatalf("Kind() = %q, want null", got.Kind())
	}
}

func TestIsaCheck(t *testing.T) {
	store := buildIsaFixture()
	source := NewFixedUnsorted([]primitive.Id{10, 11, 12, 13}, 0, primitive.Max)
	isa := NewIsa(source, primitive.SlotLeft, store, 0, primitive.Max, true, false)

	bud := budget.New(100000)
	yes, err := isa.Check(1, bud)
	if err != nil || !yes {
		t.Fatalf("check(1) = (%v, %v), want (true, nil)", yes, err)
	}
	no, err := isa.Check(99, bud)
	if err != nil || no {
		t.Fatalf("check(99) = (%v, %v), want (false, nil)", no, err)
	}
}

func TestIsaKindReflectsLinksTo(t *testing.T) {
	store := buildIsaFixture()
	isaMode := NewIsa(NewFixedUnsorted([]primitive.Id{10}, 0, primitive.Max), primitive.SlotLeft, store, 0, primitive.Max, true, false)
	if isaMode.Kind() != "isa" {
		t.Fatalf("Kind() = %q, want isa", isaMode.Kind())
	}
	linksto := NewIsa(NewFixedUnsorted([]primitive.Id{1}, 0, primitive.Max), primitive.SlotLeft, store, 0, primitive.Max, true, true)
	if linksto.Kind() != "linksto" {
		t.Fatalf("Kind() = %q, want linksto", linksto.Kind())
	}
}

func TestIsaFreezeContainsSlotAndMethod(t *testing.T) {
	store := buildIsaFixture()
	source := NewFixedUnsorted([]primitive.Id{10, 11, 12, 13}, 0, primitive.Max)
	isa := NewIsa(source, primitive.SlotLeft, store, 0, primitive.Max, true, false)

	bud := budget.New(100000)
	if err := isa.Statistics(bud); err != nil {
		t.Fatalf("statistics: %v", err)
	}
	text, err := isa.Freeze(iterator.FreezeSet)
	if err != nil {
		t.Fatalf("freeze: %v", err)
	}
	if text == "" {
		t.Fatal("expected non-empty freeze output")
	}
}
