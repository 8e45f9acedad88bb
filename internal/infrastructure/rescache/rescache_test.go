package rescache

import (
	"context"
	"sync"
	"testing"

	"github.com/c2h5oh/datasize"
	"go.uber.org/zap"
)

type blob struct {
	data []byte
}

func (b *blob) Size() datasize.ByteSize { return datasize.ByteSize(len(b.data)) }
func (b *blob) Marshal() ([]byte, error) { return b.data, nil }

func newTestCache(budget datasize.ByteSize) *Cache {
	return New(budget, nil, "test:", zap.NewNop())
}

func builderFor(data []byte, calls *int) Builder {
	return func(stamp string, serialized []byte) (Storable, error) {
		if calls != nil {
			*calls++
		}
		return &blob{data: data}, nil
	}
}

func TestLinkBuildsOnFirstCall(t *testing.T) {
	c := newTestCache(1024)
	calls := 0
	v, err := c.Link(context.Background(), "s1", builderFor([]byte("hello"), &calls))
	if err != nil {
		t.Fatalf("link: %v", err)
	}
	if string(v.(*blob).data) != "hello" {
		t.Fatalf("got %q, want hello", v.(*blob).data)
	}
	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}
	if c.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", c.Len())
	}
}

func TestLinkReusesExistingEntry(t *testing.T) {
	c := newTestCache(1024)
	calls := 0
	if _, err := c.Link(context.Background(), "s1", builderFor([]byte("hello"), &calls)); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Link(context.Background(), "s1", builderFor([]byte("different"), &calls)); err != nil {
		t.Fatal(err)
	}
	if calls != 1 {
		t.Fatalf("calls = %d, want 1 (second Link should reuse, not rebuild)", calls)
	}
}

func TestUnlinkMakesEntryEvictable(t *testing.T) {
	c := newTestCache(5) // tiny budget: only one 5-byte entry fits at a time
	if _, err := c.Link(context.Background(), "a", builderFor([]byte("aaaaa"), nil)); err != nil {
		t.Fatal(err)
	}
	c.Unlink("a")
	if _, err := c.Link(context.Background(), "b", builderFor([]byte("bbbbb"), nil)); err != nil {
		t.Fatal(err)
	}
	if c.Len() != 1 {
		t.Fatalf("Len() = %d, want 1 (a should have been evicted to make room for b)", c.Len())
	}
	if _, ok := c.byStamp["a"]; ok {
		t.Fatal("a should have been evicted")
	}
}

func TestEvictionSkipsPinnedEntries(t *testing.T) {
	c := newTestCache(5)
	calls := 0
	if _, err := c.Link(context.Background(), "pinned", builderFor([]byte("aaaaa"), &calls)); err != nil {
		t.Fatal(err)
	}
	// pinned is never Unlinked, so it keeps refcount 1 and must survive.
	if _, err := c.Link(context.Background(), "other", builderFor([]byte("bbbbb"), nil)); err != nil {
		t.Fatal(err)
	}
	if _, ok := c.byStamp["pinned"]; !ok {
		t.Fatal("pinned entry should not have been evicted")
	}
	// Relinking pinned must not re-run its builder.
	if _, err := c.Link(context.Background(), "pinned", builderFor([]byte("zzzzz"), &calls)); err != nil {
		t.Fatal(err)
	}
	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}
}

func TestLinkCollapsesConcurrentBuilds(t *testing.T) {
	c := newTestCache(1024)
	var calls int32Counter
	var wg sync.WaitGroup
	const n = 8
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			_, err := c.Link(context.Background(), "race", func(stamp string, serialized []byte) (Storable, error) {
				calls.inc()
				return &blob{data: []byte("x")}, nil
			})
			if err != nil {
				t.Error(err)
			}
		}()
	}
	wg.Wait()
	if got := calls.get(); got != 1 {
		t.Fatalf("builder called %d times, want exactly 1 under concurrent Link", got)
	}
}

type int32Counter struct {
	mu sync.Mutex
	n  int
}

func (c *int32Counter) inc() {
	c.mu.Lock()
	c.n++
	c.mu.Unlock()
}
func (c *int32Counter) get() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.n
}

func TestNewAcceptsNoopLogger(t *testing.T) {
	c := New(1024, nil, "test:", zap.NewNop())
	if c.Len() != 0 {
		t.Fatalf("Len() = %d, want 0 for a fresh cache", c.Len())
	}
}
