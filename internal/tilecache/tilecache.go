// Package tilecache implements the tile cache from spec.md §4.7 (C7): a
// single doubly-linked LRU of coefficient-bearing tiles with a target
// size, shared by every internal/resolver call that touches it.
//
// Per the arena-plus-index redesign note (spec.md §9), a Tile never
// points back to its Image; the cache instead keys its own list nodes by
// (image pointer, TileID) and mirrors the neighbouring TileIDs onto each
// Tile's LRUPrev/LRUNext fields whenever both neighbours belong to the
// same image (true for internal/resolver's normal same-image chains, and
// always true in PerDecoder mode). This keeps the documented data model
// meaningful without forcing a single inline-only list across images that
// a Shared-mode cache spanning several open files would otherwise need.
package tilecache

import (
	"sync"

	"github.com/innovationcore/openslide/internal/blockpool"
	"github.com/innovationcore/openslide/internal/tileindex"
)

// Mode selects whether a CacheHandle's LRU is private to one decoder or
// shared process-wide across every open decoder that references the same
// handle (spec.md §9 "Global mutable state": both modes are explicit,
// never an implicit singleton).
type Mode int

const (
	PerDecoder Mode = iota
	Shared
)

// DefaultTargetSize is the cache's default target size in tiles (spec.md
// §4.7).
const DefaultTargetSize = 2000

type key struct {
	img *tileindex.Image
	id  tileindex.TileID
}

type node struct {
	key        key
	prev, next *node
}

// poolPair is the LL/H block allocator pair backing one registered
// image's coefficient blocks, released back to on eviction.
type poolPair struct {
	ll, h *blockpool.Pool
}

// Cache is a single doubly-linked LRU of tiles (spec.md §4.7). Reserve and
// SpliceBack assume the caller already holds Lock across the whole
// operation (spec.md §4.8's coarse-grained minimum-viable concurrency
// model: one mutex held for the full read_tile_bgra call), so they do not
// lock internally.
type Cache struct {
	mu sync.Mutex

	target int
	nodes  map[key]*node
	head   *node // most recently used
	tail   *node // least recently used
	pools  map[*tileindex.Image]poolPair
}

// New creates a cache with the given target size in tiles (DefaultTargetSize
// if target <= 0).
func New(target int) *Cache {
	if target <= 0 {
		target = DefaultTargetSize
	}
	return &Cache{
		target: target,
		nodes:  make(map[key]*node),
		pools:  make(map[*tileindex.Image]poolPair),
	}
}

// Lock and Unlock expose the cache's single mutex to the caller, per the
// coarse-grained concurrency model: one read_tile_bgra call holds it for
// C6's list construction, the C1-C4 decode phase, and splice-back/trim.
func (c *Cache) Lock()   { c.mu.Lock() }
func (c *Cache) Unlock() { c.mu.Unlock() }

// Register associates img with the block allocator pair its tiles'
// coefficient blocks are drawn from and returned to. It must be called
// once, before the first Reserve/SpliceBack referencing that image.
func (c *Cache) Register(img *tileindex.Image, ll, h *blockpool.Pool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pools[img] = poolPair{ll: ll, h: h}
}

// Len returns the number of tiles currently resident in the LRU (not
// counting reserved, in-flight tiles).
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.nodes)
}

// Reserve removes id from the LRU if it is currently resident, marking it
// reserved so trim cannot evict it while internal/resolver's caller is
// mid-decode. A tile that has never been cached (first-ever request) is
// simply marked reserved with nothing to unlink.
func (c *Cache) Reserve(img *tileindex.Image, id tileindex.TileID) {
	t := img.Tile(id)
	k := key{img: img, id: id}
	if n, ok := c.nodes[k]; ok {
		c.unlink(n)
		delete(c.nodes, k)
	}
	t.InLRU = false
	t.Reserved = true
	t.LRUPrev, t.LRUNext = tileindex.Nil, tileindex.Nil
}

// SpliceBack reinserts the three resolver lists at the LRU head in the
// order children_list, coeff_list, idwt_list (reversed), so idwt_list[0]
// -- the originally requested tile -- ends up at the very head, matching
// "the most-recently-requested tile is at the LRU head" (spec.md §8 S6).
// It then trims the cache down to its target size.
func (c *Cache) SpliceBack(img *tileindex.Image, idwt, coeff, children []tileindex.TileID) {
	for _, id := range children {
		c.insertHead(img, id)
	}
	for _, id := range coeff {
		c.insertHead(img, id)
	}
	for i := len(idwt) - 1; i >= 0; i-- {
		c.insertHead(img, idwt[i])
	}
	c.trim()
}

func (c *Cache) insertHead(img *tileindex.Image, id tileindex.TileID) {
	k := key{img: img, id: id}
	n := &node{key: k, next: c.head}
	if c.head != nil {
		c.head.prev = n
	}
	c.head = n
	if c.tail == nil {
		c.tail = n
	}
	c.nodes[k] = n

	t := img.Tile(id)
	t.InLRU = true
	t.Reserved = false
	c.mirror(n)
}

// unlink removes n from the list without touching c.nodes, for reuse by
// both Reserve (tile leaves the LRU for in-flight processing) and trim
// (tile is evicted for good).
func (c *Cache) unlink(n *node) {
	if n.prev != nil {
		n.prev.next = n.next
		c.mirror(n.prev)
	} else {
		c.head = n.next
	}
	if n.next != nil {
		n.next.prev = n.prev
		c.mirror(n.next)
	} else {
		c.tail = n.prev
	}
	n.prev, n.next = nil, nil
}

// mirror refreshes n's tile's LRUPrev/LRUNext to its current list
// neighbours, leaving tileindex.Nil where the neighbour belongs to a
// different image.
func (c *Cache) mirror(n *node) {
	t := n.key.img.Tile(n.key.id)
	t.LRUPrev = tileindex.Nil
	if n.prev != nil && n.prev.key.img == n.key.img {
		t.LRUPrev = n.prev.key.id
	}
	t.LRUNext = tileindex.Nil
	if n.next != nil && n.next.key.img == n.key.img {
		t.LRUNext = n.next.key.id
	}
}

// trim evicts from the tail while the LRU exceeds its target size,
// releasing each evicted tile's six coefficient blocks back to its
// image's registered pools and clearing has_ll/has_h (spec.md §4.7).
func (c *Cache) trim() {
	for len(c.nodes) > c.target && c.tail != nil {
		n := c.tail
		c.unlink(n)
		delete(c.nodes, n.key)

		t := n.key.img.Tile(n.key.id)
		pp := c.pools[n.key.img]
		for i := range t.Channels {
			ch := &t.Channels[i]
			if ch.LL != nil {
				if pp.ll != nil {
					pp.ll.Release(ch.LL)
				}
				ch.LL = nil
			}
			if ch.H != nil {
				if pp.h != nil {
					pp.h.Release(ch.H)
				}
				ch.H = nil
			}
		}
		t.HasLL = false
		t.HasH = false
		t.InLRU = false
		t.LRUPrev, t.LRUNext = tileindex.Nil, tileindex.Nil
	}
}
