// Package resolver implements the tile dependency resolver from spec.md
// §4.6 (C6): given a target tile, it builds the three disjoint lists
// (idwt_list, coeff_list, children_list) that internal/wavelet's IDWT and
// internal/tilecache's reservation logic consume.
//
// Build assumes the caller already holds the owning internal/tilecache
// instance's lock (spec.md §4.8: the minimum-viable, coarse-grained
// concurrency model holds the cache mutex across the whole read_tile_bgra
// call), so it performs no locking of its own.
package resolver

import "github.com/innovationcore/openslide/internal/tileindex"

// cache is the slice of internal/tilecache.Cache's surface that Build
// needs: pulling a tile out of the LRU and marking it reserved before its
// coefficients are touched. Expressed as an interface so this package
// never imports internal/tilecache, avoiding an import cycle risk as the
// cache grows.
type cache interface {
	Reserve(img *tileindex.Image, id tileindex.TileID)
}

// Lists holds the three disjoint dependency lists spec.md §4.6 describes.
// IDWT starts with the target tile and continues with its ancestors in order
// of increasing scale, so the tile nearest the pyramid root is at the tail;
// Coeff and Children are likewise filled finest scale first.
type Lists struct {
	IDWT     []tileindex.TileID
	Coeff    []tileindex.TileID
	Children []tileindex.TileID
}

// neighbourDeltas lists the eight spatial neighbours in the same order as
// internal/wavelet.Neighbour (TopLeft, Top, TopRight, Left, Right,
// BottomLeft, Bottom, BottomRight), so callers can zip coeff_list entries
// against wavelet.Stitch's neighbour array positionally.
var neighbourDeltas = [8][2]int{
	{-1, -1}, {0, -1}, {1, -1},
	{-1, 0}, {1, 0},
	{-1, 1}, {0, 1}, {1, 1},
}

// childDeltas gives the four children in LL, HL, LH, HH quadrant order,
// matching internal/wavelet.Buffer.ChildLL's childIdx convention.
var childDeltas = [4][2]int{{0, 0}, {1, 0}, {0, 1}, {1, 1}}

// Build constructs the dependency lists for (scale, tx, ty), per spec.md
// §4.6's construction algorithm: the target tile is removed from the LRU
// and marked first; then, scale by scale up to the image's MaxScale,
// unmarked existing neighbours of the current idwt tiles are added to
// coeff_list and the parents of the current idwt and coeff tiles are added
// to idwt_list;
// finally every idwt_list tile's unmarked existing children are added to
// children_list. Every tile added to any list is reserved via c so it
// cannot be evicted while C1-C4 run on it; CacheMarked is cleared on every
// listed tile before returning, per the "unmark before release" step.
func Build(img *tileindex.Image, c cache, target tileindex.TileID) Lists {
	marked := make(map[tileindex.TileID]bool)

	mark := func(id tileindex.TileID) {
		marked[id] = true
		img.Tile(id).CacheMarked = true
		c.Reserve(img, id)
	}

	idwt := []tileindex.TileID{target}
	var coeff []tileindex.TileID
	mark(target)

	maxScale := img.MaxScale
	for scale := target.Level; scale <= maxScale; scale++ {
		for _, id := range idwt {
			if id.Level != scale {
				continue
			}
			for _, n := range neighbours(img, id) {
				if marked[n] || !img.Tile(n).Exists {
					continue
				}
				coeff = append(coeff, n)
				mark(n)
			}
		}

		for _, id := range append(append([]tileindex.TileID{}, idwt...), coeff...) {
			if id.Level != scale {
				continue
			}
			p, ok := Parent(img, id)
			if !ok || marked[p] {
				continue
			}
			idwt = append(idwt, p)
			mark(p)
		}
	}

	var children []tileindex.TileID
	for _, id := range idwt {
		for _, ch := range childrenOf(img, id) {
			if marked[ch] || !img.Tile(ch).Exists {
				continue
			}
			children = append(children, ch)
			mark(ch)
		}
	}

	for _, id := range idwt {
		img.Tile(id).CacheMarked = false
	}
	for _, id := range coeff {
		img.Tile(id).CacheMarked = false
	}
	for _, id := range children {
		img.Tile(id).CacheMarked = false
	}

	return Lists{IDWT: idwt, Coeff: coeff, Children: children}
}

// neighbours returns id's eight same-scale spatial neighbours that fall
// within the level's tile grid.
func neighbours(img *tileindex.Image, id tileindex.TileID) []tileindex.TileID {
	out := make([]tileindex.TileID, 0, 8)
	for n := 0; n < len(neighbourDeltas); n++ {
		if nb, ok := NeighbourAt(img, id, n); ok {
			out = append(out, nb)
		}
	}
	return out
}

// childrenOf returns the up to four existing tiles at scale-1 that receive
// an LL block as a side effect of id's IDWT.
func childrenOf(img *tileindex.Image, id tileindex.TileID) []tileindex.TileID {
	out := make([]tileindex.TileID, 0, 4)
	for childIdx := 0; childIdx < len(childDeltas); childIdx++ {
		ch, ok := ChildAt(img, id, childIdx)
		if !ok || !img.Tile(ch).Exists {
			continue
		}
		out = append(out, ch)
	}
	return out
}

// NeighbourAt returns the tile at neighbour position n (0-7, in the same
// order as internal/wavelet.Neighbour: TopLeft, Top, TopRight, Left,
// Right, BottomLeft, Bottom, BottomRight) from id, and whether that
// position falls within the level's tile grid. isyntax.go uses this
// directly (rather than neighbours' filtered slice) when it needs every
// position index-aligned with a wavelet.ColourPlanes array, gaps included.
func NeighbourAt(img *tileindex.Image, id tileindex.TileID, n int) (tileindex.TileID, bool) {
	lvl := &img.Levels[id.Level]
	t := lvl.Tiles[id.Index]
	d := neighbourDeltas[n]
	x, y := t.X+d[0], t.Y+d[1]
	if x < 0 || y < 0 || x >= lvl.WidthInTiles || y >= lvl.HeightInTiles {
		return tileindex.Nil, false
	}
	return tileindex.TileID{Level: id.Level, Index: lvl.TileIndex(x, y)}, true
}

// Parent returns the tile at scale+1 whose IDWT produces id's LL block.
func Parent(img *tileindex.Image, id tileindex.TileID) (tileindex.TileID, bool) {
	if id.Level+1 >= len(img.Levels) {
		return tileindex.Nil, false
	}
	t := img.Levels[id.Level].Tiles[id.Index]
	plvl := &img.Levels[id.Level+1]
	px, py := t.X/2, t.Y/2
	if px >= plvl.WidthInTiles || py >= plvl.HeightInTiles {
		return tileindex.Nil, false
	}
	return tileindex.TileID{Level: id.Level + 1, Index: plvl.TileIndex(px, py)}, true
}

// ChildAt returns the tile at scale-1 receiving childIdx's LL quadrant (0
// top-left, 1 top-right, 2 bottom-left, 3 bottom-right, matching
// internal/wavelet.Buffer.ChildLL's childIdx convention), and whether that
// grid position exists. Unlike childrenOf, it does not filter on
// tileindex.Tile.Exists: isyntax.go's LL-distribution step writes a
// reconstructed LL block to every in-grid child position, whether or not
// that position has codeblocks of its own.
func ChildAt(img *tileindex.Image, id tileindex.TileID, childIdx int) (tileindex.TileID, bool) {
	if id.Level == 0 {
		return tileindex.Nil, false
	}
	t := img.Levels[id.Level].Tiles[id.Index]
	clvl := &img.Levels[id.Level-1]
	d := childDeltas[childIdx]
	x, y := 2*t.X+d[0], 2*t.Y+d[1]
	if x >= clvl.WidthInTiles || y >= clvl.HeightInTiles {
		return tileindex.Nil, false
	}
	return tileindex.TileID{Level: id.Level - 1, Index: clvl.TileIndex(x, y)}, true
}
