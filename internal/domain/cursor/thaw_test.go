package cursor

import (
	"encoding/binary"
	"testing"

	"github.com/graphd/queryengine/internal/domain/iterator"
	"github.com/graphd/queryengine/internal/domain/iterator/kinds"
	"github.com/graphd/queryengine/internal/domain/primitive"
	"github.com/graphd/queryengine/internal/infrastructure/budget"
	"github.com/graphd/queryengine/internal/repo/memstore"
)

func guid(n uint64) primitive.Guid {
	var g primitive.Guid
	binary.BigEndian.PutUint64(g[8:], n)
	return g
}

func drain(t *testing.T, it iterator.Iterator) []primitive.Id {
	t.Helper()
	var out []primitive.Id
	b := budget.New(100000)
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

func TestThawFixedRoundTrip(t *testing.T) {
	store := memstore.New(nil)
	reg := NewRegistry()
	text := "fixed:0-100:3,1,2"
	it, err := Thaw(text, store, reg)
	if err != nil {
		t.Fatalf("thaw: %v", err)
	}
	got := drain(t, it)
	want := []primitive.Id{1, 2, 3} // thawFixed always rebuilds as sorted
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestThawFixedMasqueradeDegradesToEmpty(t *testing.T) {
	store := memstore.New(nil)
	reg := NewRegistry()
	it, err := Thaw("fixed:0-100:and-verified:unknown-stamp", store, reg)
	if err != nil {
		t.Fatalf("thaw: %v", err)
	}
	if got := drain(t, it); len(got) != 0 {
		t.Fatalf("got %v, want empty (unregistered masquerade degrades)", got)
	}
}

func TestThawFixedMasqueradeRebindsToRegisteredOriginal(t *testing.T) {
	store := memstore.New(nil)
	reg := NewRegistry()
	substitute := kinds.NewFixedSorted([]primitive.Id{7, 8, 9}, 0, 100, true)
	reg.Register("and-abc123", substitute)

	it, err := Thaw("fixed:0-100:and-verified:and-abc123", store, reg)
	if err != nil {
		t.Fatalf("thaw: %v", err)
	}
	got := drain(t, it)
	want := []primitive.Id{7, 8, 9}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestThawAndRoundTrip(t *testing.T) {
	store := memstore.New(nil)
	reg := NewRegistry()
	text := "and:0-100:[producer:0][cache:s](fixed:0-100:1,2,3)(fixed:0-100:2,3,4)"
	it, err := Thaw(text, store, reg)
	if err != nil {
		t.Fatalf("thaw: %v", err)
	}
	got := drain(t, it)
	seen := map[primitive.Id]bool{}
	for _, id := range got {
		seen[id] = true
	}
	if len(seen) != 2 || !seen[2] || !seen[3] {
		t.Fatalf("got %v, want {2, 3}", got)
	}
}

func TestThawOrRoundTrip(t *testing.T) {
	store := memstore.New(nil)
	reg := NewRegistry()
	text := "or:0-100:(fixed:0-100:1,2)(fixed:0-100:2,3)"
	it, err := Thaw(text, store, reg)
	if err != nil {
		t.Fatalf("thaw: %v", err)
	}
	got := drain(t, it)
	seen := map[primitive.Id]int{}
	for _, id := range got {
		seen[id]++
	}
	for id, n := range seen {
		if n != 1 {
			t.Fatalf("id %d emitted %d times", id, n)
		}
	}
	if len(seen) != 3 {
		t.Fatalf("got %v, want union {1,2,3}", got)
	}
}

func TestThawIsaRoundTrip(t *testing.T) {
	mk := func(id uint64, target uint64) *primitive.Primitive {
		pr := &primitive.Primitive{Id: primitive.Id(id), Guid: guid(id)}
		pr.Linkages[primitive.SlotLeft] = primitive.Linkage{Present: true, Guid: guid(target)}
		return pr
	}
	store := memstore.New([]*primitive.Primitive{
		{Id: 1, Guid: guid(1)},
		mk(10, 1), mk(11, 1),
	})
	reg := NewRegistry()
	text := "isa:0-100:[slot:left](fixed:0-100:10,11)"
	it, err := Thaw(text, store, reg)
	if err != nil {
		t.Fatalf("thaw: %v", err)
	}
	got := drain(t, it)
	if len(got) != 1 || got[0] != 1 {
		t.Fatalf("got %v, want [1]", got)
	}
}

func TestThawPositionReplaysNext(t *testing.T) {
	store := memstore.New(nil)
	reg := NewRegistry()
	text := "fixed:0-100:1,2,3/1"
	it, err := Thaw(text, store, reg)
	if err != nil {
		t.Fatalf("thaw: %v", err)
	}
	got := drain(t, it)
	if len(got) != 2 || got[0] != 2 || got[1] != 3 {
		t.Fatalf("got %v, want [2 3] (position 1 already consumed id 1)", got)
	}
}

func TestThawUnknownKindErrors(t *testing.T) {
	store := memstore.New(nil)
	reg := NewRegistry()
	if _, err := Thaw("bogus:0-100:", store, reg); err == nil {
		t.Fatal("expected error for unknown iterator kind")
	}
}
