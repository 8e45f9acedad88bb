package kinds

import (
	"testing"

	"github.com/graphd/queryengine/internal/domain/iterator"
	"github.com/graphd/queryengine/internal/domain/primitive"
	"github.com/graphd/queryengine/internal/infrastructure/budget"
)

func TestAllForwardEnumeratesRange(t *testing.T) {
	a := NewAll(5, 9, true, nil)
	got := drainIds(t, a)
	want := []primitive.Id{5, 6, 7, 8}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestAllBackwardEnumeratesRange(t *testing.T) {
	a := NewAll(5, 9, false, nil)
	got := drainIds(t, a)
	want := []primitive.Id{8, 7, 6, 5}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

type fakeStore struct {
	missing map[primitive.Id]bool
}

func (f *fakeStore) ReadPrimitive(id primitive.Id) (*primitive.Primitive, bool) {
	if f.missing[id] {
		return nil, false
	}
	return &primitive.Primitive{Id: id}, true
}
func (f *fakeStore) IdFromGuid(primitive.Guid) (primitive.Id, bool)   { return 0, false }
func (f *fakeStore) GuidFromId(primitive.Id) (primitive.Guid, bool)   { return primitive.Guid{}, false }
func (f *fakeStore) LinkageIterator(primitive.LinkageSlot, primitive.Guid, primitive.Id, primitive.Id, bool) iterator.Iterator {
	return NewNull()
}
func (f *fakeStore) VipIterator(primitive.Id, primitive.LinkageSlot, primitive.Guid, primitive.Id, primitive.Id, bool) iterator.Iterator {
	return NewNull()
}
func (f *fakeStore) NameHashIterator([]byte, primitive.Id, primitive.Id, bool) iterator.Iterator {
	return NewNull()
}
func (f *fakeStore) PrimitiveCount() uint64 { return 0 }

func TestAllSkipsMissingPrimitives(t *testing.T) {
	store := &fakeStore{missing: map[primitive.Id]bool{6: true, 7: true}}
	a := NewAll(5, 9, true, store)
	got := drainIds(t, a)
	want := []primitive.Id{5, 8}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestAllFindAdvancesCursor(t *testing.T) {
	a := NewAll(0, 100, true, nil)
	b := budget.New(1000)
	id, err := a.Find(42, b)
	if err != nil || id != 42 {
		t.Fatalf("find(42) = (%d, %v), want (42, nil)", id, err)
	}
}
