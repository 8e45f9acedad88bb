// Package isacache implements the ISA iterator's duplicate-suppression
// cache (spec.md §4.6, C7): an append-only offset->id log backed by a
// packed 5-byte buffer, paired with a bitmap for O(1) membership.
package isacache

import (
	"bytes"
	"fmt"
	"sync"

	"github.com/RoaringBitmap/roaring/v2/roaring64"
	"github.com/c2h5oh/datasize"

	"github.com/graphd/queryengine/internal/domain/primitive"
	"github.com/graphd/queryengine/pkg/idpack"
)

// growthChunk is the fixed allocation granularity charged against the
// process-wide resource budget as the offset log grows (spec.md §4.6
// "Memory accounting").
const growthChunk = 64 * datasize.KB

// Cache is shared by an ISA original and all of its clones; only the
// original ever calls Add or MarkEOF, guarded by mu (spec.md §5: mutations
// happen only through the original while holding the single-thread token).
type Cache struct {
	mu  sync.Mutex
	buf []byte
	ids *roaring64.Bitmap
	eof bool

	capacity   datasize.ByteSize // allocated so far, in growthChunk steps
	serialCap  datasize.ByteSize // above this, Freeze refuses to inline the cache
	onGrowth   func(datasize.ByteSize)
}

// New creates an empty cache. serialCap is the byte size above which Freeze
// must refuse to inline the cache (spec.md §4.6); onGrowth, if non-nil, is
// invoked with each newly charged chunk so a caller can publish it to a
// shared resource accounting layer.
func New(serialCap datasize.ByteSize, onGrowth func(datasize.ByteSize)) *Cache {
	return &Cache{
		ids:       roaring64.New(),
		serialCap: serialCap,
		onGrowth:  onGrowth,
	}
}

// Nelems returns the number of ids currently in the offset log.
func (c *Cache) Nelems() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return idpack.Len(c.buf)
}

// Add inserts id at the given log position (spec.md §4.6 "add"). position
// must equal the current nelems: callers drive the cache strictly in
// offset order. Returns added=true if id was new (and thus appended to the
// offset log); added=false if id was already a member (the id_set is
// idempotently unchanged).
func (c *Cache) Add(position int, id primitive.Id) (added bool, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if n := idpack.Len(c.buf); position != n {
		return false, fmt.Errorf("isacache: add at position %d, expected %d", position, n)
	}
	if c.ids.Contains(uint64(id)) {
		return false, nil
	}
	c.ids.Add(uint64(id))
	before := len(c.buf)
	grown, err := idpack.Append(c.buf, id)
	if err != nil {
		return true, err
	}
	c.buf = grown
	c.chargeLocked(before, len(c.buf))
	return true, nil
}

func (c *Cache) chargeLocked(before, after int) {
	if c.onGrowth == nil {
		return
	}
	prevChunks := datasize.ByteSize(before) / growthChunk
	if before%int(growthChunk) != 0 {
		prevChunks++
	}
	newChunks := datasize.ByteSize(after) / growthChunk
	if after%int(growthChunk) != 0 {
		newChunks++
	}
	if newChunks > prevChunks {
		delta := (newChunks - prevChunks) * growthChunk
		c.capacity += delta
		c.onGrowth(delta)
	}
}

// OffsetToID reads offset_to_id(i).
func (c *Cache) OffsetToID(i int) (primitive.Id, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	id, err := idpack.Decode(c.buf, i)
	if err != nil {
		return 0, false
	}
	return id, true
}

// Check reports membership in the id_set.
func (c *Cache) Check(id primitive.Id) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ids.Contains(uint64(id))
}

// IDToOffset performs the linear scan spec.md §4.6 and §9 explicitly flag
// as slow and correctness-only: it exists purely so thaw recovery can
// re-locate a resume_id inside an already-populated cache.
func (c *Cache) IDToOffset(id primitive.Id) (int, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := idpack.Len(c.buf)
	for i := 0; i < n; i++ {
		got, err := idpack.Decode(c.buf, i)
		if err == nil && got == id {
			return i, true
		}
	}
	return 0, false
}

// Range returns the number of ids at or after offset in the populated log,
// and whether the log is complete (eof), in which case that count is exact
// (spec.md §4.6 "range"). It reads only the log length; the tail is not
// scanned, so no low/high bounds are reported.
func (c *Cache) Range(offset int) (n uint64, exact bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	total := idpack.Len(c.buf)
	if offset >= total {
		return 0, c.eof
	}
	return uint64(total - offset), c.eof
}

// MarkEOF records that the underlying ISA sequence is exhausted; no
// further Add calls will occur.
func (c *Cache) MarkEOF() {
	c.mu.Lock()
	c.eof = true
	c.mu.Unlock()
}

func (c *Cache) EOF() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.eof
}

// ExceedsSerialCap reports whether the cache has grown past the size Freeze
// is willing to inline (spec.md §4.6 "serialisability cap").
func (c *Cache) ExceedsSerialCap() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.serialCap > 0 && datasize.ByteSize(len(c.buf)) > c.serialCap
}

// Size implements rescache.Storable: the offset log plus a rough estimate
// of the bitmap's serialised footprint, good enough for LRU accounting
// (spec.md §5 "LRU-bounded by bytes" does not require exact accounting).
func (c *Cache) Size() datasize.ByteSize {
	c.mu.Lock()
	defer c.mu.Unlock()
	return datasize.ByteSize(len(c.buf)) + datasize.ByteSize(c.ids.GetSizeInBytes())
}

// Marshal implements rescache.Storable: the offset log and the bitmap,
// length-prefixed, enough to rebuild the same contents on load. The eof flag
// is not written, so a restored cache reports EOF() false until MarkEOF is
// called again.
func (c *Cache) Marshal() ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	bitmapBytes, err := c.ids.ToBytes()
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, 8+len(c.buf)+len(bitmapBytes))
	out = appendUint32(out, uint32(len(c.buf)))
	out = append(out, c.buf...)
	out = appendUint32(out, uint32(len(bitmapBytes)))
	out = append(out, bitmapBytes...)
	return out, nil
}

// Unmarshal restores a Cache's offset log and bitmap from the bytes
// Marshal produced, keeping serialCap/onGrowth from New.
func (c *Cache) Unmarshal(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(data) < 4 {
		return fmt.Errorf("isacache: truncated payload")
	}
	bufLen := readUint32(data)
	data = data[4:]
	if len(data) < int(bufLen) {
		return fmt.Errorf("isacache: truncated offset log")
	}
	c.buf = append([]byte(nil), data[:bufLen]...)
	data = data[bufLen:]
	if len(data) < 4 {
		return fmt.Errorf("isacache: truncated bitmap header")
	}
	bitmapLen := readUint32(data)
	data = data[4:]
	if len(data) < int(bitmapLen) {
		return fmt.Errorf("isacache: truncated bitmap")
	}
	ids := roaring64.New()
	if _, err := ids.ReadFrom(bytes.NewReader(data[:bitmapLen])); err != nil {
		return err
	}
	c.ids = ids
	return nil
}

func appendUint32(b []byte, v uint32) []byte {
	return append(b, byte(v>>24), byte(v>>16), byte(v>>8), byte(v))
}

func readUint32(b []byte) uint32 {
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}
