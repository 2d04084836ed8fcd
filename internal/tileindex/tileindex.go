// Package tileindex holds the decoder's pyramid data model: Image, Level,
// Tile and ChannelState from spec.md §3, plus the codeblock/data-chunk
// tables internal/metadata populates while streaming the XML+seektable
// header.
//
// Per the arena-plus-index redesign flag (spec.md §9), tiles never hold
// pointers to their level or image; a Tile is addressed by TileID
// (level, index-within-level). internal/tilecache keeps the LRU list in its
// own per-tile nodes and mirrors each tile's links into the Tile's
// InLRU/LRUPrev/LRUNext fields.
package tileindex

// ImageType tags which of the three sub-images (spec.md §3, "Image") a
// tileindex.Image describes. Only Wsi carries levels and codeblocks;
// Label and Macro are flat thumbnails decoded once by internal/thumbnail.
type ImageType int

const (
	Wsi ImageType = iota
	Label
	Macro
)

func (t ImageType) String() string {
	switch t {
	case Wsi:
		return "WSI"
	case Label:
		return "LABELIMAGE"
	case Macro:
		return "MACROIMAGE"
	default:
		return "unknown"
	}
}

// TileID addresses one Tile within an Image without a pointer.
type TileID struct {
	Level int
	Index int
}

// Nil is the TileID {-1, -1}, used as a "no tile" sentinel in LRU links
// (the zero TileID is tile index 0 of level 0, always a real tile). Whether
// a tile is in the list at all is tracked separately by Tile.InLRU.
var Nil = TileID{Level: -1, Index: -1}

// ChannelState is one colour's worth of coefficient storage for a tile
// (spec.md §3). LL is nil unless a block has been acquired from the LL
// block pool; H is nil unless one has been acquired from the H pool. The
// tile owns these blocks while cached; internal/tilecache returns them to
// their pool on eviction.
type ChannelState struct {
	LL []byte // block_width*block_height*2 bytes, or nil
	H  []byte // 3x that (LH, HL, HH packed), or nil
}

// Tile is one addressable square of the pyramid at a given level (spec.md
// §3). LRUPrev/LRUNext mirror this tile's neighbours in internal/tilecache's
// doubly-linked list, which the cache keeps in its own node type.
type Tile struct {
	Exists bool

	Channels [3]ChannelState // indexed by colour 0=Y,1=Co,2=Cg
	HasLL    bool
	HasH     bool

	// CacheMarked is transient scratch used only during C6 dependency-list
	// construction (spec.md §4.6): true while a tile is already present in
	// one of the three resolver lists, so it is not added twice.
	CacheMarked bool
	// Reserved is true while a tile has been pulled out of the LRU for
	// processing (spec.md §4.7/§5): it cannot be evicted while reserved.
	Reserved bool

	// LLInvalidEdges records, per spec.md §4.4's LL-distribution step,
	// which of the tile's neighbour margins were synthesised from a dummy
	// block rather than a real neighbour. Bit layout matches
	// internal/wavelet.Neighbour's bit order.
	LLInvalidEdges uint8

	CodeblockIndex      int
	CodeblockChunkIndex int
	DataChunkIndex      int

	X, Y int // tile coordinates within its level, for diagnostics

	// InLRU is true while this tile is spliced into internal/tilecache's
	// doubly-linked list; LRUPrev/LRUNext are only meaningful while it is.
	InLRU            bool
	LRUPrev, LRUNext TileID
}

// Level is one resolution of the pyramid (spec.md §3).
type Level struct {
	Scale            int
	WidthInTiles     int
	HeightInTiles    int
	TileCount        int
	DownsampleFactor int
	UmPerPixelX      float64
	UmPerPixelY      float64

	Tiles []Tile
}

// TileIndex returns the row-major index of tile (x,y) within this level.
func (l *Level) TileIndex(x, y int) int { return y*l.WidthInTiles + x }

// Codeblock is the addressable compressed unit (spec.md §3).
type Codeblock struct {
	X, Y             int // raw coordinates in the image's own pixel grid
	XAdjusted        int // X minus the image origin offset
	YAdjusted        int
	Color            int // 0, 1, 2 for Y, Co, Cg
	Scale            int
	Coefficient      int // 0 = LL, 1 = H (LH/HL/HH packed)
	HeaderTemplateID int

	BlockX, BlockY int // tile grid coordinates at this scale, derived from XAdjusted/YAdjusted
	BlockID        int // index into the seektable

	BlockDataOffset int64
	BlockSize       int
}

// HeaderTemplate is a recipe enumerated in the XML giving the fixed shape
// of codeblocks referencing it (spec.md §3).
type HeaderTemplate struct {
	BlockWidth     int
	BlockHeight    int
	ColorComponent int
	Scale          int
	WaveletCoeff   int // 1 (LL-only) or 3 (LH/HL/HH)
}

// DataChunk is a contiguous run of codeblocks in the file (spec.md §3).
type DataChunk struct {
	Offset                 int64
	Scale                  int
	TopCodeblockIndex      int
	CodeblockCountPerColor int
}

// Image is the metadata container for one of the file's sub-images
// (spec.md §3). Only a Wsi-typed Image carries Levels/Codeblocks/DataChunks.
type Image struct {
	Type ImageType

	OffsetX, OffsetY int
	Width, Height    int
	LevelCount       int
	MaxScale         int

	BlockWidth, BlockHeight int

	Levels         []Level
	Codeblocks     []Codeblock
	HeaderTemplates []HeaderTemplate
	DataChunks     []DataChunk

	// HeaderCodeblocksArePartial is true when the block-header table held
	// 40-byte partial records (offset/size live in the seektable) and
	// false when it held 72-byte full records (spec.md §4.5).
	HeaderCodeblocksArePartial bool

	// Thumbnail pixel data for Label/Macro images, decoded once by
	// internal/thumbnail from the embedded base64 JPEG.
	ThumbnailBGRA                []byte
	ThumbnailWidth, ThumbnailHeight int
	// RotationDegrees is the label/macro image's physical rotation, a
	// supplemented attribute (SPEC_FULL.md §5) not present in the distilled
	// spec. internal/metadata never sets it, so it is always 0.
	RotationDegrees int
}

// Tile returns the Tile addressed by id. Callers must ensure id is valid;
// this is an arena index, not a map lookup.
func (img *Image) Tile(id TileID) *Tile {
	return &img.Levels[id.Level].Tiles[id.Index]
}

// TileAt returns the TileID for tile grid coordinates (x,y) at scale.
func (img *Image) TileAt(scale, x, y int) TileID {
	return TileID{Level: scale, Index: img.Levels[scale].TileIndex(x, y)}
}
