// Package rescache implements the iterator-resource cache (spec.md §5,
// "iterator-resource cache"): a stamp-keyed, byte-LRU, reference-counted
// cache of storable iterator state (ISA dedup caches, materialised AND
// recipes) that survives across requests until evicted.
package rescache

import (
	"container/list"
	"context"
	"fmt"
	"sync"

	"github.com/c2h5oh/datasize"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Storable is anything the resource cache can hold: it knows its own
// in-memory footprint and how to serialise itself for the Redis-backed tier
// (spec.md §5 "a stable textual stamp to a storable object").
type Storable interface {
	Size() datasize.ByteSize
	Marshal() ([]byte, error)
}

// Builder reconstructs a Storable from its serialised form, or builds a
// fresh one when neither tier has the stamp.
type Builder func(stamp string, serialized []byte) (Storable, error)

type entry struct {
	stamp    string
	val      Storable
	refcount int
	elem     *list.Element
}

// Cache is the process-local byte-LRU tier of the iterator-resource cache.
// Entries with a non-zero refcount are never evicted, no matter how full
// the cache is (spec.md §5 "eviction is deferred while any reference
// exists"); eviction only considers the unreferenced tail of the LRU list.
type Cache struct {
	mu       sync.Mutex
	byStamp  map[string]*entry
	order    *list.List // front = most recently used
	size     datasize.ByteSize
	budget   datasize.ByteSize
	redis    *redis.Client
	keyspace string
	log      *zap.Logger
	group    singleflight.Group
}

// New returns an empty cache bounded to budget bytes in memory. redisClient
// may be nil, in which case the cache is purely in-process and entries do
// not survive a restart (spec.md §5's "survive across requests" is honoured
// at the in-process level either way; the Redis tier extends that across
// engine restarts).
func New(budget datasize.ByteSize, redisClient *redis.Client, keyspace string, log *zap.Logger) *Cache {
	return &Cache{
		byStamp:  make(map[string]*entry),
		order:    list.New(),
		budget:   budget,
		redis:    redisClient,
		keyspace: keyspace,
		log:      log.Named("rescache"),
	}
}

// Link looks up stamp, building it via build if absent from both the
// in-process map and the Redis tier, and returns it with its refcount
// incremented. Concurrent Link calls for the same stamp collapse into a
// single build via singleflight (spec.md §5 shares caches across clones of
// the same original; this extends that sharing across concurrent requests
// racing to populate the same stamp for the first time).
func (c *Cache) Link(ctx context.Context, stamp string, build Builder) (Storable, error) {
	c.mu.Lock()
	if e, ok := c.byStamp[stamp]; ok {
		e.refcount++
		c.order.MoveToFront(e.elem)
		c.mu.Unlock()
		return e.val, nil
	}
	c.mu.Unlock()

	inserted := false
	v, err, _ := c.group.Do(stamp, func() (interface{}, error) {
		serialized := c.loadRedis(ctx, stamp)
		val, err := build(stamp, serialized)
		if err != nil {
			return nil, err
		}
		inserted = c.insert(stamp, val)
		c.saveRedisAsync(ctx, stamp, val)
		return val, nil
	})
	if err != nil {
		return nil, err
	}

	// Another goroutine may have inserted and already been Unlink'd before
	// we get here; re-run the fast path to pick up the real refcounted entry.
	// The caller whose build inserted the entry already holds the reference
	// insert counted; every other caller takes its own here.
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.byStamp[stamp]; ok {
		if !inserted {
			e.refcount++
		}
		c.order.MoveToFront(e.elem)
		return e.val, nil
	}
	return v.(Storable), nil
}

func (c *Cache) insert(stamp string, val Storable) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.byStamp[stamp]; ok {
		return false
	}
	e := &entry{stamp: stamp, val: val, refcount: 1}
	e.elem = c.order.PushFront(e)
	c.byStamp[stamp] = e
	c.size += val.Size()
	c.evictLocked()
	return true
}

// Unlink decrements stamp's refcount. An entry at refcount zero becomes
// eligible for eviction but is not evicted immediately — it stays resident
// until the LRU sweep needs the space (spec.md §5's "monotone growth until
// reset" applies to the caches themselves, not to resident lifetime in this
// tier).
func (c *Cache) Unlink(stamp string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.byStamp[stamp]
	if !ok || e.refcount == 0 {
		return
	}
	e.refcount--
}

func (c *Cache) evictLocked() {
	for c.size > c.budget {
		victim := c.evictionCandidateLocked()
		if victim == nil {
			return // every resident entry is pinned by a live reference
		}
		c.order.Remove(victim.elem)
		delete(c.byStamp, victim.stamp)
		c.size -= victim.val.Size()
	}
}

func (c *Cache) evictionCandidateLocked() *entry {
	for el := c.order.Back(); el != nil; el = el.Prev() {
		if e := el.Value.(*entry); e.refcount == 0 {
			return e
		}
	}
	return nil
}

func (c *Cache) loadRedis(ctx context.Context, stamp string) []byte {
	if c.redis == nil {
		return nil
	}
	b, err := c.redis.Get(ctx, c.key(stamp)).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.log.Warn("redis get failed", zap.String("stamp", stamp), zap.Error(err))
		}
		return nil
	}
	return b
}

func (c *Cache) saveRedisAsync(ctx context.Context, stamp string, val Storable) {
	if c.redis == nil {
		return
	}
	b, err := val.Marshal()
	if err != nil {
		c.log.Warn("marshal for resource cache failed", zap.String("stamp", stamp), zap.Error(err))
		return
	}
	go func() {
		if err := c.redis.Set(context.Background(), c.key(stamp), b, 0).Err(); err != nil {
			c.log.Warn("redis set failed", zap.String("stamp", stamp), zap.Error(err))
		}
	}()
	_ = ctx
}

func (c *Cache) key(stamp string) string {
	return fmt.Sprintf("%s%s", c.keyspace, stamp)
}

// Len reports the number of resident entries, for diagnostics and tests.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.byStamp)
}

// Size reports current resident byte usage.
func (c *Cache) Size() datasize.ByteSize {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.size
}
