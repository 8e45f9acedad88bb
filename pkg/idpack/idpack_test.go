package idpack

import (
	"testing"

	"github.com/graphd/queryengine/internal/domain/primitive"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	ids := []primitive.Id{0, 1, 255, 65536, max, primitive.NoId & max}
	var buf []byte
	for _, id := range ids {
		grown, err := Append(buf, id)
		if err != nil {
			t.Fatalf("append(%d): %v", id, err)
		}
		buf = grown
	}
	if got := Len(buf); got != len(ids) {
		t.Fatalf("Len() = %d, want %d", got, len(ids))
	}
	for i, want := range ids {
		got, err := Decode(buf, i)
		if err != nil {
			t.Fatalf("decode(%d): %v", i, err)
		}
		if got != want {
			t.Fatalf("decode(%d) = %d, want %d", i, got, want)
		}
	}
}

func TestEncodeOverflow(t *testing.T) {
	if _, err := Encode(primitive.Id(max + 1)); err == nil {
		t.Fatal("expected error encoding id past the 40-bit range")
	}
}

func TestDecodeBounds(t *testing.T) {
	buf, _ := Append(nil, 42)
	if _, err := Decode(buf, 1); err == nil {
		t.Fatal("expected out-of-range error")
	}
	if _, err := Decode(buf, -1); err == nil {
		t.Fatal("expected error for negative index")
	}
}
