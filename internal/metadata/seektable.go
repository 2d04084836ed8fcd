package metadata

import (
	"encoding/binary"
	"fmt"

	"github.com/jpfielding/dicos.go/pkg/dicos/tag"

	"github.com/innovationcore/openslide/internal/fileio"
	"github.com/innovationcore/openslide/internal/tileindex"
)

// seektable entries carry their own 8-byte DICOM tag header plus a u64
// offset and u32 size; the struct's overall alignment is forced to 8 bytes
// by the trailing u64 member, padding the 20 bytes of real data up to 24.
const seektableEntryStride = 24

type seektableEntry struct {
	offset int64
	size   int
}

// readSeektableAndChunks reads the optional seektable starting at offset
// (the byte immediately after the XML/binary terminator), builds the WSI
// image's level geometry, resolves every codeblock's block_id against the
// seektable (spec.md §4.5 "Seektable"), and groups codeblocks into data
// chunks (spec.md §4.5 "Data chunks").
func readSeektableAndChunks(ra fileio.ReaderAt, offset int64, wsi *tileindex.Image, hdr *Header) error {
	buildLevels(wsi, hdr)

	entries, err := readSeektable(ra, offset)
	if err != nil {
		return err
	}

	if wsi.HeaderCodeblocksArePartial {
		tilesPerColor := totalCoeffTileCount(wsi)
		for i := range wsi.Codeblocks {
			cb := &wsi.Codeblocks[i]
			resolveCodeblockGeometry(wsi, cb)
			id := blockID(wsi, cb, tilesPerColor)
			if id >= 0 && id < len(entries) {
				cb.BlockID = id
				cb.BlockDataOffset = entries[id].offset
				cb.BlockSize = entries[id].size
			}
		}
	} else {
		for i := range wsi.Codeblocks {
			resolveCodeblockGeometry(wsi, &wsi.Codeblocks[i])
		}
	}

	buildDataChunks(wsi)
	return nil
}

func readSeektable(ra fileio.ReaderAt, offset int64) ([]seektableEntry, error) {
	prologue, err := ra.ReadAt(offset, recordPrologueSize)
	if err != nil {
		return nil, fmt.Errorf("metadata: reading seektable prologue: %w", err)
	}
	if len(prologue) < recordPrologueSize {
		// No seektable at all is legal for small/synthetic files; callers
		// resolve codeblocks from the inline full-record offsets instead.
		return nil, nil
	}
	group := binary.LittleEndian.Uint16(prologue[0:2])
	element := binary.LittleEndian.Uint16(prologue[2:4])
	size := binary.LittleEndian.Uint32(prologue[4:8])
	if !tag.New(group, element).Equals(tagBlockDataOffsetSeektable) {
		return nil, ErrBadTag
	}
	if size%seektableEntryStride != 0 {
		return nil, ErrSeektableSize
	}

	raw, err := ra.ReadAt(offset+recordPrologueSize, int(size))
	if err != nil {
		return nil, fmt.Errorf("metadata: reading seektable entries: %w", err)
	}
	if len(raw) < int(size) {
		return nil, fmt.Errorf("metadata: %w: seektable entries", ErrTruncated)
	}

	n := int(size) / seektableEntryStride
	entries := make([]seektableEntry, n)
	for i := 0; i < n; i++ {
		rec := raw[i*seektableEntryStride:]
		entryGroup := binary.LittleEndian.Uint16(rec[0:2])
		entryElement := binary.LittleEndian.Uint16(rec[2:4])
		if !tag.New(entryGroup, entryElement).Equals(tagBlockDataOffsetEntry) {
			return nil, ErrBadTag
		}
		entries[i] = seektableEntry{
			offset: int64(binary.LittleEndian.Uint64(rec[8:16])),
			size:   int(binary.LittleEndian.Uint32(rec[16:20])),
		}
	}
	return entries, nil
}

// buildLevels computes each level's tile grid (spec.md §4.5 "Level
// geometry") from the image's pixel dimensions, block size and level
// count.
func buildLevels(wsi *tileindex.Image, hdr *Header) {
	n := wsi.LevelCount
	if n <= 0 {
		n = 1
	}
	bw, bh := wsi.BlockWidth, wsi.BlockHeight
	if bw <= 0 {
		bw = 1
	}
	if bh <= 0 {
		bh = 1
	}

	gridWidth := ((wsi.Width + (bw<<uint(n)) - 1) / (bw << uint(n))) << uint(n-1)
	gridHeight := ((wsi.Height + (bh<<uint(n)) - 1) / (bh << uint(n))) << uint(n-1)
	if gridWidth < 1 {
		gridWidth = 1
	}
	if gridHeight < 1 {
		gridHeight = 1
	}
	baseTileCount := gridWidth * gridHeight

	wsi.Levels = make([]tileindex.Level, n)
	for i := 0; i < n; i++ {
		lw := gridWidth >> uint(i)
		lh := gridHeight >> uint(i)
		if lw < 1 {
			lw = 1
		}
		if lh < 1 {
			lh = 1
		}
		tileCount := baseTileCount >> uint(i*2)
		if tileCount < 1 {
			tileCount = 1
		}
		lvl := &wsi.Levels[i]
		lvl.Scale = i
		lvl.WidthInTiles = lw
		lvl.HeightInTiles = lh
		lvl.TileCount = tileCount
		lvl.DownsampleFactor = 1 << uint(i)
		if hdr != nil && hdr.MppKnown {
			lvl.UmPerPixelX = hdr.MppX * float64(lvl.DownsampleFactor)
			lvl.UmPerPixelY = hdr.MppY * float64(lvl.DownsampleFactor)
		}
		lvl.Tiles = make([]tileindex.Tile, tileCount)
		for t := 0; t < tileCount; t++ {
			lvl.Tiles[t].X = t % lw
			lvl.Tiles[t].Y = t / lw
		}
	}
}

// totalCoeffTileCount sums every level's tile count plus the top level's
// tile count again (the extra LL band carried only at the pyramid's root),
// giving the stride between consecutive colours in the block_id space.
func totalCoeffTileCount(wsi *tileindex.Image) int {
	total := 0
	for i := range wsi.Levels {
		total += wsi.Levels[i].TileCount
	}
	if wsi.MaxScale >= 0 && wsi.MaxScale < len(wsi.Levels) {
		total += wsi.Levels[wsi.MaxScale].TileCount
	}
	return total
}

// resolveCodeblockGeometry derives a codeblock's tile-grid coordinates
// from its raw pixel coordinates (spec.md §4.5 block_id computation).
func resolveCodeblockGeometry(wsi *tileindex.Image, cb *tileindex.Codeblock) {
	cb.XAdjusted = cb.X - wsi.OffsetX
	cb.YAdjusted = cb.Y - wsi.OffsetY
	// A tile is twice the block size, and at scale s it covers that many
	// level-0 pixels shifted left by s.
	tileWidth := (2 * wsi.BlockWidth) << uint(cb.Scale)
	tileHeight := (2 * wsi.BlockHeight) << uint(cb.Scale)
	if tileWidth <= 0 {
		tileWidth = 1
	}
	if tileHeight <= 0 {
		tileHeight = 1
	}
	cb.BlockX = cb.XAdjusted / tileWidth
	cb.BlockY = cb.YAdjusted / tileHeight
}

// blockID computes the seektable index for cb (spec.md §4.5). LL
// codeblocks (coefficient 0) count one extra level of tiles below them,
// since the LL band of scale s doubles as the input to scale s-1's
// reconstruction.
func blockID(wsi *tileindex.Image, cb *tileindex.Codeblock, tilesPerColor int) int {
	isLL := cb.Coefficient == 0
	maxscale := cb.Scale
	if isLL {
		maxscale++
	}
	sum := 0
	for s := 0; s < maxscale && s < len(wsi.Levels); s++ {
		sum += wsi.Levels[s].TileCount
	}
	if cb.Scale < 0 || cb.Scale >= len(wsi.Levels) {
		return -1
	}
	gridStride := wsi.Levels[cb.Scale].WidthInTiles
	id := sum + cb.BlockY*gridStride + cb.BlockX
	id += cb.Color * tilesPerColor
	return id
}

// chunkCodeblocksPerColor returns how many codeblocks of one colour are
// grouped into a single data chunk at level (spec.md §4.5 "Data chunks").
// The top-of-pyramid level always carries the extra LL band; every other
// level groups a flat 21 codeblocks (1 + 4 + 16, the largest rel_level
// case), matching the reference decoder's hardcoded stride for non-top
// chunks.
func chunkCodeblocksPerColor(level, maxScale int) int {
	if level != maxScale {
		return 21
	}
	switch level % 3 {
	case 0:
		return 1 + 1
	case 1:
		return 1 + 4 + 1
	default:
		return 1 + 4 + 16 + 1
	}
}

// buildDataChunks groups wsi.Codeblocks (assumed ordered level-major,
// then colour-major within a chunk) into tileindex.DataChunk runs and
// records each tile's position within its chunk.
func buildDataChunks(wsi *tileindex.Image) {
	cbs := wsi.Codeblocks
	i := 0
	for i < len(cbs) {
		level := cbs[i].Scale
		perColor := chunkCodeblocksPerColor(level, wsi.MaxScale)
		span := perColor * 3
		if i+span > len(cbs) {
			span = len(cbs) - i
		}

		chunkIdx := len(wsi.DataChunks)
		wsi.DataChunks = append(wsi.DataChunks, tileindex.DataChunk{
			Offset:                 cbs[i].BlockDataOffset,
			Scale:                  level,
			TopCodeblockIndex:      i,
			CodeblockCountPerColor: perColor,
		})

		for j := 0; j < span; j++ {
			idx := i + j
			cb := &cbs[idx]
			if cb.Scale < 0 || cb.Scale >= len(wsi.Levels) {
				continue
			}
			lvl := &wsi.Levels[cb.Scale]
			if cb.BlockY < 0 || cb.BlockY >= lvl.HeightInTiles || cb.BlockX < 0 || cb.BlockX >= lvl.WidthInTiles {
				continue
			}
			tileIdx := lvl.TileIndex(cb.BlockX, cb.BlockY)
			if tileIdx < 0 || tileIdx >= len(lvl.Tiles) {
				continue
			}
			t := &lvl.Tiles[tileIdx]
			t.Exists = true
			t.CodeblockIndex = idx
			t.CodeblockChunkIndex = j % perColor
			t.DataChunkIndex = chunkIdx
			if cb.Coefficient == 0 {
				t.HasLL = true
			} else {
				t.HasH = true
			}
		}

		if span == 0 {
			break
		}
		i += span
	}
}
