package tilecache

import (
	"testing"

	"github.com/innovationcore/openslide/internal/blockpool"
	"github.com/innovationcore/openslide/internal/tileindex"
)

func buildFlatImage(n int) *tileindex.Image {
	img := &tileindex.Image{Levels: []tileindex.Level{{WidthInTiles: n, HeightInTiles: 1, Tiles: make([]tileindex.Tile, n)}}}
	for i := 0; i < n; i++ {
		img.Levels[0].Tiles[i] = tileindex.Tile{X: i, Y: 0, Exists: true}
	}
	return img
}

func fill(img *tileindex.Image, id tileindex.TileID, ll, h *blockpool.Pool) {
	t := img.Tile(id)
	for c := 0; c < 3; c++ {
		buf, _ := ll.Acquire()
		t.Channels[c].LL = buf
		buf2, _ := h.Acquire()
		t.Channels[c].H = buf2
	}
	t.HasLL, t.HasH = true, true
}

func TestSpliceBackAndTrimRespectsTarget(t *testing.T) {
	// S6: 20 cached tiles trimmed down to a target of 10, MRU at head.
	img := buildFlatImage(20)
	ll := blockpool.New(2, 0)
	h := blockpool.New(6, 0)
	c := New(10)
	c.Register(img, ll, h)

	var ids []tileindex.TileID
	for i := 0; i < 20; i++ {
		id := tileindex.TileID{Level: 0, Index: i}
		fill(img, id, ll, h)
		ids = append(ids, id)
	}

	c.SpliceBack(img, ids, nil, nil)

	if got := c.Len(); got != 10 {
		t.Fatalf("Len() = %d, want 10", got)
	}
	// The last id spliced back (ids[0], since SpliceBack re-inserts idwt in
	// reverse so idwt[0] ends at head) must survive; the first-evicted
	// should be the tail of the reversed-insertion order, i.e. ids[10..19].
	if !img.Tile(ids[0]).InLRU {
		t.Errorf("most recently requested tile %v was evicted", ids[0])
	}
	for _, id := range ids[10:] {
		tile := img.Tile(id)
		if tile.InLRU {
			t.Errorf("tile %v should have been trimmed", id)
		}
		if tile.Channels[0].LL != nil || tile.Channels[0].H != nil {
			t.Errorf("tile %v's blocks should have been released on trim", id)
		}
	}
}

func TestReservePullsTileOutOfLRU(t *testing.T) {
	img := buildFlatImage(3)
	ll := blockpool.New(2, 0)
	h := blockpool.New(6, 0)
	c := New(100)
	c.Register(img, ll, h)

	id := tileindex.TileID{Level: 0, Index: 1}
	fill(img, id, ll, h)
	c.SpliceBack(img, []tileindex.TileID{id}, nil, nil)
	if c.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", c.Len())
	}

	c.Reserve(img, id)
	if c.Len() != 0 {
		t.Fatalf("Len() after Reserve = %d, want 0", c.Len())
	}
	if img.Tile(id).InLRU {
		t.Error("reserved tile still marked InLRU")
	}
	if !img.Tile(id).Reserved {
		t.Error("reserved tile not marked Reserved")
	}
}

func TestLenNeverExceedsTargetAcrossRepeatedSpliceBack(t *testing.T) {
	// P5: LRU length stays bounded by the target across many cycles.
	img := buildFlatImage(50)
	ll := blockpool.New(2, 0)
	h := blockpool.New(6, 0)
	c := New(5)
	c.Register(img, ll, h)

	for round := 0; round < 10; round++ {
		var ids []tileindex.TileID
		for i := 0; i < 5; i++ {
			id := tileindex.TileID{Level: 0, Index: (round*5 + i) % 50}
			c.Reserve(img, id)
			fill(img, id, ll, h)
			ids = append(ids, id)
		}
		c.SpliceBack(img, ids, nil, nil)
		if got := c.Len(); got > 5 {
			t.Fatalf("round %d: Len() = %d, want <= 5", round, got)
		}
	}
}
