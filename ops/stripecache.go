package ops

import (
	"container/list"
	"sync"
)

// stripeCache is a per-volume LRU of decoded stripe contents, keyed by
// (gfid, stripe offset), serving the head/tail reads a partial-stripe
// writev needs to reconstruct (spec.md §4.5 "a per-inode stripe cache
// of up to max entries (LRU) serves these reads when warm"). No
// example repo in this corpus pulls in a third-party LRU library (the
// closest hit, aistore's go.mod, resolves to an unrelated easyjson
// dependency on inspection), so this is a small stdlib
// container/list-backed LRU rather than a fabricated dependency.
type stripeCache struct {
	mu  sync.Mutex
	max int
	ll  *list.List
	idx map[stripeKey]*list.Element
}

type stripeKey struct {
	gfid   [16]byte
	offset int64
}

type stripeEntry struct {
	key  stripeKey
	data []byte
}

func newStripeCache(max int) *stripeCache {
	if max <= 0 {
		max = 1
	}
	return &stripeCache{max: max, ll: list.New(), idx: map[stripeKey]*list.Element{}}
}

// get returns a cached stripe's bytes, promoting it to most-recently-used.
func (c *stripeCache) get(gfid [16]byte, offset int64) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := stripeKey{gfid, offset}
	e, ok := c.idx[key]
	if !ok {
		return nil, false
	}
	c.ll.MoveToFront(e)
	return e.Value.(*stripeEntry).data, true
}

// put stores a freshly decoded stripe, evicting the least-recently-used
// entry once the cache is full.
func (c *stripeCache) put(gfid [16]byte, offset int64, data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := stripeKey{gfid, offset}
	if e, ok := c.idx[key]; ok {
		e.Value.(*stripeEntry).data = data
		c.ll.MoveToFront(e)
		return
	}
	e := c.ll.PushFront(&stripeEntry{key: key, data: data})
	c.idx[key] = e
	if c.ll.Len() > c.max {
		tail := c.ll.Back()
		if tail != nil {
			c.ll.Remove(tail)
			delete(c.idx, tail.Value.(*stripeEntry).key)
		}
	}
}

// invalidate drops every cached stripe for gfid, called after a write
// changes stripe contents (stale stripe-cache entries must not serve a
// later head/tail read).
func (c *stripeCache) invalidate(gfid [16]byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key, e := range c.idx {
		if key.gfid == gfid {
			c.ll.Remove(e)
			delete(c.idx, key)
		}
	}
}
