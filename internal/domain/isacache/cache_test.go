package isacache

import (
	"testing"

	"github.com/c2h5oh/datasize"

	"github.com/graphd/queryengine/internal/domain/primitive"
)

func TestAddAndLookup(t *testing.T) {
	var charged datasize.ByteSize
	c := New(0, func(d datasize.ByteSize) { charged += d })

	ids := []primitive.Id{10, 20, 30}
	for i, id := range ids {
		added, err := c.Add(i, id)
		if err != nil {
			t.Fatalf("add(%d, %d): %v", i, id, err)
		}
		if !added {
			t.Fatalf("add(%d, %d): want added=true", i, id)
		}
	}
	if charged == 0 {
		t.Fatal("expected onGrowth to have charged at least one chunk")
	}
	if n := c.Nelems(); n != len(ids) {
		t.Fatalf("Nelems() = %d, want %d", n, len(ids))
	}
	for i, id := range ids {
		got, ok := c.OffsetToID(i)
		if !ok || got != id {
			t.Fatalf("OffsetToID(%d) = (%d, %v), want (%d, true)", i, got, ok, id)
		}
	}
	if !c.Check(20) {
		t.Fatal("Check(20) = false, want true")
	}
	if c.Check(99) {
		t.Fatal("Check(99) = true, want false")
	}
}

func TestAddDuplicateIsIdempotent(t *testing.T) {
	c := New(0, nil)
	if added, err := c.Add(0, 5); err != nil || !added {
		t.Fatalf("first add: added=%v err=%v", added, err)
	}
	// A duplicate id submitted at the next position is rejected: the
	// offset log only grows for ids the id_set has never seen.
	if added, err := c.Add(1, 5); err != nil || added {
		t.Fatalf("duplicate add: added=%v err=%v, want added=false", added, err)
	}
	if n := c.Nelems(); n != 1 {
		t.Fatalf("Nelems() = %d, want 1 after a rejected duplicate", n)
	}
}

func TestAddRejectsOutOfOrderPosition(t *testing.T) {
	c := New(0, nil)
	if _, err := c.Add(1, 5); err == nil {
		t.Fatal("expected error adding at position 1 into an empty cache")
	}
}

func TestIDToOffset(t *testing.T) {
	c := New(0, nil)
	for i, id := range []primitive.Id{7, 8, 9} {
		if _, err := c.Add(i, id); err != nil {
			t.Fatal(err)
		}
	}
	off, ok := c.IDToOffset(8)
	if !ok || off != 1 {
		t.Fatalf("IDToOffset(8) = (%d, %v), want (1, true)", off, ok)
	}
	if _, ok := c.IDToOffset(100); ok {
		t.Fatal("IDToOffset(100) should miss")
	}
}

func TestMarshalUnmarshalRoundTrip(t *testing.T) {
	c := New(0, nil)
	ids := []primitive.Id{1, 2, 3, 1 << 20}
	for i, id := range ids {
		if _, err := c.Add(i, id); err != nil {
			t.Fatal(err)
		}
	}
	c.MarkEOF()

	blob, err := c.Marshal()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	c2 := New(0, nil)
	if err := c2.Unmarshal(blob); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if n := c2.Nelems(); n != len(ids) {
		t.Fatalf("Nelems() after restore = %d, want %d", n, len(ids))
	}
	for _, id := range ids {
		if !c2.Check(id) {
			t.Fatalf("Check(%d) after restore = false", id)
		}
	}
}

func TestExceedsSerialCap(t *testing.T) {
	c := New(10, nil) // 10 bytes = 2 packed ids
	for i, id := range []primitive.Id{1, 2, 3} {
		if _, err := c.Add(i, id); err != nil {
			t.Fatal(err)
		}
	}
	if !c.ExceedsSerialCap() {
		t.Fatal("expected cache to exceed its 10-byte serial cap after 3 packed ids")
	}
}
