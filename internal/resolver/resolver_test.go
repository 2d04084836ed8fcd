package resolver

import (
	"testing"

	"github.com/innovationcore/openslide/internal/tileindex"
)

// buildPyramid makes a square pyramid of levelCount levels, each with
// tilesPerSide*tilesPerSide tiles at level 0, halving per level, every
// tile marked Exists.
func buildPyramid(levelCount, tilesPerSide int) *tileindex.Image {
	img := &tileindex.Image{MaxScale: levelCount - 1, Levels: make([]tileindex.Level, levelCount)}
	side := tilesPerSide
	for lv := 0; lv < levelCount; lv++ {
		if side < 1 {
			side = 1
		}
		lvl := &img.Levels[lv]
		lvl.WidthInTiles, lvl.HeightInTiles = side, side
		lvl.Tiles = make([]tileindex.Tile, side*side)
		for y := 0; y < side; y++ {
			for x := 0; x < side; x++ {
				t := &lvl.Tiles[lvl.TileIndex(x, y)]
				t.X, t.Y = x, y
				t.Exists = true
			}
		}
		side /= 2
	}
	return img
}

type fakeCache struct {
	reserved []tileindex.TileID
}

func (f *fakeCache) Reserve(img *tileindex.Image, id tileindex.TileID) {
	f.reserved = append(f.reserved, id)
}

func TestBuildTopLeftTileProducesOneIDWTChainPerLevel(t *testing.T) {
	// S3: requesting the top-left tile of the finest level of a pyramid
	// with no same-scale neighbours populated at any level should yield
	// exactly max_scale+1 idwt tiles (the ancestor chain straight to the
	// root) and an empty coeff_list, since there are no other tiles of any
	// size at the grid corner to pull in.
	img := buildPyramid(3, 1)
	c := &fakeCache{}

	lists := Build(img, c, tileindex.TileID{Level: 0, Index: 0})

	if got, want := len(lists.IDWT), 3; got != want {
		t.Fatalf("len(IDWT) = %d, want %d", got, want)
	}
	if len(lists.Coeff) != 0 {
		t.Fatalf("Coeff = %v, want empty", lists.Coeff)
	}
	if lists.IDWT[0] != (tileindex.TileID{Level: 0, Index: 0}) {
		t.Fatalf("IDWT[0] = %v, want target at head", lists.IDWT[0])
	}
}

func TestBuildListsAreDisjoint(t *testing.T) {
	img := buildPyramid(3, 4)
	c := &fakeCache{}

	lists := Build(img, c, tileindex.TileID{Level: 0, Index: img.Levels[0].TileIndex(1, 1)})

	seen := make(map[tileindex.TileID]string)
	for _, id := range lists.IDWT {
		if prev, ok := seen[id]; ok {
			t.Fatalf("tile %v in both idwt and %s", id, prev)
		}
		seen[id] = "idwt"
	}
	for _, id := range lists.Coeff {
		if prev, ok := seen[id]; ok {
			t.Fatalf("tile %v in both coeff and %s", id, prev)
		}
		seen[id] = "coeff"
	}
	for _, id := range lists.Children {
		if prev, ok := seen[id]; ok {
			t.Fatalf("tile %v in both children and %s", id, prev)
		}
		seen[id] = "children"
	}
}

func TestBuildUnmarksEveryListedTile(t *testing.T) {
	img := buildPyramid(3, 4)
	c := &fakeCache{}

	lists := Build(img, c, tileindex.TileID{Level: 0, Index: img.Levels[0].TileIndex(1, 1)})

	for _, id := range append(append(append([]tileindex.TileID{}, lists.IDWT...), lists.Coeff...), lists.Children...) {
		if img.Tile(id).CacheMarked {
			t.Errorf("tile %v still marked after Build returned", id)
		}
	}
}

func TestBuildReservesEveryListedTile(t *testing.T) {
	img := buildPyramid(2, 2)
	c := &fakeCache{}

	lists := Build(img, c, tileindex.TileID{Level: 0, Index: 0})
	total := len(lists.IDWT) + len(lists.Coeff) + len(lists.Children)
	if len(c.reserved) != total {
		t.Fatalf("Reserve called %d times, want %d (one per listed tile)", len(c.reserved), total)
	}
}

func TestNeighbourAtOutOfGridFalse(t *testing.T) {
	img := buildPyramid(1, 2)
	if _, ok := NeighbourAt(img, tileindex.TileID{Level: 0, Index: 0}, 0); ok {
		t.Fatal("top-left tile's TopLeft neighbour should not exist")
	}
}

func TestChildAtQuadrantOrder(t *testing.T) {
	img := buildPyramid(2, 4)
	parent := tileindex.TileID{Level: 1, Index: 0}
	for childIdx, want := range [][2]int{{0, 0}, {1, 0}, {0, 1}, {1, 1}} {
		ch, ok := ChildAt(img, parent, childIdx)
		if !ok {
			t.Fatalf("childIdx %d: not ok", childIdx)
		}
		tile := img.Levels[0].Tiles[ch.Index]
		if tile.X != want[0] || tile.Y != want[1] {
			t.Errorf("childIdx %d: got (%d,%d), want (%d,%d)", childIdx, tile.X, tile.Y, want[0], want[1])
		}
	}
}
