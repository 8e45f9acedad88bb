// Package idpack packs primitive ids into the fixed 5-byte big-endian
// encoding the ISA dedup cache's offset log uses on disk and in frozen
// cursors (spec.md §4.6, §9 "manual packing of 5-byte ids").
package idpack

import (
	"fmt"

	"github.com/graphd/queryengine/internal/domain/primitive"
)

// Size is the fixed width of one packed id.
const Size = 5

// max is the largest id representable in 5 bytes (2^40 - 1).
const max = 1<<40 - 1

// Encode writes id into a freshly allocated 5-byte big-endian buffer. It
// errors if id does not fit the format rather than silently truncating.
func Encode(id primitive.Id) ([Size]byte, error) {
	var buf [Size]byte
	if uint64(id) > max {
		return buf, fmt.Errorf("idpack: id %d exceeds %d-bit packed range", uint64(id), 40)
	}
	v := uint64(id)
	for i := Size - 1; i >= 0; i-- {
		buf[i] = byte(v)
		v >>= 8
	}
	return buf, nil
}

// Append encodes id and appends it to buf, returning the grown slice.
func Append(buf []byte, id primitive.Id) ([]byte, error) {
	packed, err := Encode(id)
	if err != nil {
		return buf, err
	}
	return append(buf, packed[:]...), nil
}

// Decode reads the id stored at the given element index within buf,
// bounds-checking both the index and the buffer length (spec.md §9:
// "bound-check every decode").
func Decode(buf []byte, index int) (primitive.Id, error) {
	if index < 0 {
		return 0, fmt.Errorf("idpack: negative index %d", index)
	}
	start := index * Size
	if start+Size > len(buf) {
		return 0, fmt.Errorf("idpack: index %d out of range for %d-byte buffer", index, len(buf))
	}
	var v uint64
	for _, b := range buf[start : start+Size] {
		v = v<<8 | uint64(b)
	}
	return primitive.Id(v), nil
}

// Len reports how many ids are packed into buf.
func Len(buf []byte) int {
	return len(buf) / Size
}
