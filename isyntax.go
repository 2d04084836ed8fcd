// Package openslide implements the public decoder API from spec.md §4.8
// and §6 (C8): Open, Info, ReadTileBGRA, Close, plus the label/macro
// thumbnail accessors in label.go. It wires together every internal
// collaborator — internal/fileio (C1b), internal/metadata (C5),
// internal/resolver (C6), internal/tilecache (C7), internal/huffman (C3)
// and internal/wavelet/internal/colorspace (C4) — behind the single
// synchronous call a caller actually makes.
//
// Concurrency follows spec.md §5's minimum-viable design: ReadTileBGRA
// holds its CacheHandle's mutex for the whole call, from C6's list
// construction through C1-C4 decode to splice-back and trim. This
// trivially satisfies the at-most-one-writer-per-child-LL-block
// requirement via global serialisation, at the cost of not letting two
// ReadTileBGRA calls on the same decoder overlap their I/O.
package openslide

import (
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/innovationcore/openslide/internal/blockpool"
	"github.com/innovationcore/openslide/internal/colorspace"
	"github.com/innovationcore/openslide/internal/fileio"
	"github.com/innovationcore/openslide/internal/huffman"
	"github.com/innovationcore/openslide/internal/metadata"
	"github.com/innovationcore/openslide/internal/resolver"
	"github.com/innovationcore/openslide/internal/tilecache"
	"github.com/innovationcore/openslide/internal/tileindex"
	"github.com/innovationcore/openslide/internal/wavelet"
)

// CacheHandle is the explicit, caller-owned cache configuration spec.md §9
// requires in place of implicit global singleton state. A handle created
// with tilecache.Shared gives every Open call that receives it the same
// tile cache, shared across files; a handle created with
// tilecache.PerDecoder gives each Open call its own private cache (the
// default when Options.CacheHandle is nil).
type CacheHandle struct {
	mode       tilecache.Mode
	targetSize int

	mu     sync.Mutex
	shared *tilecache.Cache
}

// NewCacheHandle creates a cache configuration. targetSize <= 0 uses
// tilecache.DefaultTargetSize.
func NewCacheHandle(mode tilecache.Mode, targetSize int) *CacheHandle {
	return &CacheHandle{mode: mode, targetSize: targetSize}
}

func (h *CacheHandle) cacheFor() *tilecache.Cache {
	if h.mode == tilecache.PerDecoder {
		return tilecache.New(h.targetSize)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.shared == nil {
		h.shared = tilecache.New(h.targetSize)
	}
	return h.shared
}

// Options configures Open, following the teacher's BaseOptions+Validate
// idiom (codec/codec.go, now folded into this boundary rather than kept as
// unwired reference — see DESIGN.md).
type Options struct {
	// CacheHandle selects the tile cache this decoder uses. Nil creates a
	// fresh private PerDecoder cache at the default target size.
	CacheHandle *CacheHandle
	// Logger receives structured decode diagnostics (contained
	// decompression failures, and a debug record when a file is opened).
	// Nil uses slog.Default().
	Logger *slog.Logger
}

// Validate reports whether o is well-formed.
func (o Options) Validate() error {
	if o.CacheHandle != nil && o.CacheHandle.targetSize < 0 {
		return fmt.Errorf("%w: negative cache target size", ErrInvalidArgument)
	}
	return nil
}

type codeblockKey struct {
	level, x, y, color, coeff int
}

// Decoder is one open iSyntax file. It is safe for concurrent use: every
// method that touches shared coefficient state serialises through the
// decoder's CacheHandle.
type Decoder struct {
	id   uuid.UUID
	path string
	log  *slog.Logger

	mu     sync.Mutex
	ra     fileio.ReaderAt
	closed bool

	header *metadata.Header
	images []*tileindex.Image
	wsi    *tileindex.Image
	label  *tileindex.Image
	macro  *tileindex.Image

	cache  *tilecache.Cache
	llPool *blockpool.Pool
	hPool  *blockpool.Pool

	codeblocks map[codeblockKey]*tileindex.Codeblock
}

// Open parses path's header and returns a Decoder ready for ReadTileBGRA.
// A parse failure aborts and closes the file, so it never leaves a
// partially-open file handle behind. internal/metadata's sentinel errors
// come back wrapped as ErrFormat or ErrIO; any other parse error (an XML
// syntax error, for instance) is returned as internal/metadata reported it.
func Open(path string, opts Options) (*Decoder, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	id := uuid.New()
	log = log.With("decoder_id", id.String())

	ra, err := fileio.Open(path)
	if err != nil {
		return nil, IOErrorf("open %q: %v", path, err)
	}

	hdr, images, err := metadata.Parse(ra)
	if err != nil {
		ra.Close()
		return nil, wrapMetadataErr(err)
	}

	var wsi, label, macro *tileindex.Image
	for _, img := range images {
		switch img.Type {
		case tileindex.Wsi:
			if wsi == nil || len(img.Levels) > len(wsi.Levels) {
				wsi = img
			}
		case tileindex.Label:
			label = img
		case tileindex.Macro:
			macro = img
		}
	}
	if wsi == nil {
		ra.Close()
		return nil, FormatErrorf("no WSI image present in %q", path)
	}

	handle := opts.CacheHandle
	if handle == nil {
		handle = NewCacheHandle(tilecache.PerDecoder, tilecache.DefaultTargetSize)
	}

	llSize := wsi.BlockWidth * wsi.BlockHeight * 2
	hSize := llSize * 3
	d := &Decoder{
		id:         id,
		path:       path,
		log:        log,
		ra:         ra,
		header:     hdr,
		images:     images,
		wsi:        wsi,
		label:      label,
		macro:      macro,
		cache:      handle.cacheFor(),
		llPool:     blockpool.New(llSize, 0),
		hPool:      blockpool.New(hSize, 0),
		codeblocks: indexCodeblocks(wsi),
	}
	d.cache.Register(wsi, d.llPool, d.hPool)

	log.Debug("opened iSyntax file", "path", path, "levels", wsi.LevelCount, "block_width", wsi.BlockWidth, "block_height", wsi.BlockHeight)
	return d, nil
}

// wrapMetadataErr maps internal/metadata's local sentinel errors onto the
// public error taxonomy (spec.md §7), per internal/metadata/errors.go's
// own doc comment naming this boundary as the place that happens.
func wrapMetadataErr(err error) error {
	switch {
	case errors.Is(err, metadata.ErrTruncated):
		return fmt.Errorf("%w: %v", ErrIO, err)
	case errors.Is(err, metadata.ErrNoTerminator),
		errors.Is(err, metadata.ErrBadRoot),
		errors.Is(err, metadata.ErrBadTag),
		errors.Is(err, metadata.ErrBadStride),
		errors.Is(err, metadata.ErrSeektableSize),
		errors.Is(err, metadata.ErrBadBase64):
		return fmt.Errorf("%w: %v", ErrFormat, err)
	default:
		return err
	}
}

func indexCodeblocks(img *tileindex.Image) map[codeblockKey]*tileindex.Codeblock {
	idx := make(map[codeblockKey]*tileindex.Codeblock, len(img.Codeblocks))
	for i := range img.Codeblocks {
		cb := &img.Codeblocks[i]
		idx[codeblockKey{cb.Scale, cb.BlockX, cb.BlockY, cb.Color, cb.Coefficient}] = cb
	}
	return idx
}

// LevelInfo describes one level of the WSI pyramid (spec.md §6).
type LevelInfo struct {
	Scale            int
	WidthInTiles     int
	HeightInTiles    int
	DownsampleFactor int
	MppX, MppY       float64
}

// Info describes a decoder's static, file-level properties (spec.md §6).
type Info struct {
	LevelCount              int
	BlockWidth, BlockHeight int
	TileWidth, TileHeight   int
	Levels                  []LevelInfo
	MppX, MppY              float64
	MppKnown                bool
	// ICCProfile is the raw embedded colour profile, if any (SPEC_FULL.md
	// §5 supplemented feature; absent from the distilled spec).
	ICCProfile []byte
}

// Info returns the WSI image's static properties.
func (d *Decoder) Info() (Info, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return Info{}, ErrClosed
	}

	info := Info{
		LevelCount:  d.wsi.LevelCount,
		BlockWidth:  d.wsi.BlockWidth,
		BlockHeight: d.wsi.BlockHeight,
		TileWidth:   2 * d.wsi.BlockWidth,
		TileHeight:  2 * d.wsi.BlockHeight,
		MppX:        d.header.MppX,
		MppY:        d.header.MppY,
		MppKnown:    d.header.MppKnown,
		ICCProfile:  d.header.ICCProfile,
	}
	for _, lvl := range d.wsi.Levels {
		info.Levels = append(info.Levels, LevelInfo{
			Scale:            lvl.Scale,
			WidthInTiles:     lvl.WidthInTiles,
			HeightInTiles:    lvl.HeightInTiles,
			DownsampleFactor: lvl.DownsampleFactor,
			MppX:             lvl.UmPerPixelX,
			MppY:             lvl.UmPerPixelY,
		})
	}
	return info, nil
}

// AlternateImage summarises a secondary WSI derivation image present
// alongside the primary one Open selected (SPEC_FULL.md §5 supplemented
// feature: a file may embed more than one scanned-image derivation).
type AlternateImage struct {
	LevelCount    int
	Width, Height int
}

// AlternateImages returns every WSI-typed image besides the primary one
// Info/ReadTileBGRA operate on. The decode path is only wired for the
// primary image; these are exposed for inspection only.
func (d *Decoder) AlternateImages() []AlternateImage {
	d.mu.Lock()
	defer d.mu.Unlock()

	var out []AlternateImage
	for _, img := range d.images {
		if img == d.wsi || img.Type != tileindex.Wsi {
			continue
		}
		out = append(out, AlternateImage{LevelCount: img.LevelCount, Width: img.Width, Height: img.Height})
	}
	return out
}

// Close releases the underlying file handle. Coefficient blocks held by
// cached tiles are not returned to the decoder's block pools. It is safe to
// call more than once.
func (d *Decoder) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	if err := d.ra.Close(); err != nil {
		return IOErrorf("close %q: %v", d.path, err)
	}
	return nil
}

// ReadTileBGRA decodes the requested tile to an opaque BGRA buffer of
// tile_width*tile_height*4 bytes (spec.md §4.8). A tile with no codeblocks
// in the file decodes to solid white without touching the cache. An I/O
// or format error aborts the call and leaves the cache consistent: every
// tile this call reserved is spliced back before the error is returned.
func (d *Decoder) ReadTileBGRA(scale, tx, ty int) ([]byte, error) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil, ErrClosed
	}
	img := d.wsi
	d.mu.Unlock()

	if scale < 0 || scale >= len(img.Levels) {
		return nil, fmt.Errorf("%w: scale %d out of range [0,%d)", ErrInvalidArgument, scale, len(img.Levels))
	}
	lvl := &img.Levels[scale]
	if tx < 0 || ty < 0 || tx >= lvl.WidthInTiles || ty >= lvl.HeightInTiles {
		return nil, fmt.Errorf("%w: tile (%d,%d) out of range at scale %d", ErrInvalidArgument, tx, ty, scale)
	}

	tileWidth, tileHeight := 2*img.BlockWidth, 2*img.BlockHeight
	target := img.TileAt(scale, tx, ty)
	if !img.Tile(target).Exists {
		return solidWhiteBGRA(tileWidth, tileHeight), nil
	}

	d.cache.Lock()
	defer d.cache.Unlock()

	lists := resolver.Build(img, d.cache, target)

	for _, id := range lists.IDWT {
		if err := d.decodeTileCodeblocks(img, id); err != nil {
			d.cache.SpliceBack(img, lists.IDWT, lists.Coeff, lists.Children)
			return nil, err
		}
	}
	for _, id := range lists.Coeff {
		if err := d.decodeTileCodeblocks(img, id); err != nil {
			d.cache.SpliceBack(img, lists.IDWT, lists.Coeff, lists.Children)
			return nil, err
		}
	}

	bgra, err := d.runIDWT(img, lists, target)
	d.cache.SpliceBack(img, lists.IDWT, lists.Coeff, lists.Children)
	if err != nil {
		return nil, err
	}
	return bgra, nil
}

// runIDWT runs C4 over every tile in idwt_list, coarsest first, stitching
// each against its eight same-scale neighbours (spec.md §4.4) and
// distributing the reconstructed LL quadrants to its children. Only
// target's three colour buffers are colour-reconstructed to BGRA, per
// spec.md §4.8 ("colour-reconstructing only the tail").
func (d *Decoder) runIDWT(img *tileindex.Image, lists resolver.Lists, target tileindex.TileID) ([]byte, error) {
	var bgra []byte

	for i := len(lists.IDWT) - 1; i >= 0; i-- {
		id := lists.IDWT[i]
		t := img.Tile(id)

		var buffers [3]*wavelet.Buffer
		for c := 0; c < 3; c++ {
			center := channelPlanes(t, c)
			var nb [8]wavelet.ColourPlanes
			for n := 0; n < 8; n++ {
				if nid, ok := resolver.NeighbourAt(img, id, n); ok {
					nb[n] = channelPlanes(img.Tile(nid), c)
				}
			}
			buf := wavelet.Stitch(c, center, nb)
			buf.Transform()
			buffers[c] = buf
		}

		if id == target {
			bgra = wavelet.FinalizeBGRA(buffers[0], buffers[1], buffers[2])
		}
		t.LLInvalidEdges = buffers[0].InvalidEdges

		for childIdx := 0; childIdx < 4; childIdx++ {
			chID, ok := resolver.ChildAt(img, id, childIdx)
			if !ok {
				continue
			}
			child := img.Tile(chID)
			for c := 0; c < 3; c++ {
				buf, err := d.storeBlock(d.llPool, buffers[c].ChildLL(childIdx, id.Level))
				if err != nil {
					return nil, err
				}
				child.Channels[c].LL = buf
			}
			child.LLInvalidEdges = buffers[0].ChildInvalidEdges(childIdx)
			child.HasLL = true
		}
	}

	return bgra, nil
}

// decodeTileCodeblocks decompresses every one of id's six coefficient
// codeblocks (three LL, three H) that are missing from the cache and have
// an entry in the file, storing the result in the tile's ChannelState. A
// channel already populated (by an earlier call, or as a splice-back
// side-effect from runIDWT) is left untouched.
func (d *Decoder) decodeTileCodeblocks(img *tileindex.Image, id tileindex.TileID) error {
	t := img.Tile(id)
	for c := 0; c < 3; c++ {
		ch := &t.Channels[c]
		if ch.LL == nil {
			if cb, ok := d.codeblocks[codeblockKey{id.Level, t.X, t.Y, c, 0}]; ok {
				plane, err := d.decompressCodeblock(img, cb, 1)
				if err != nil {
					return err
				}
				buf, err := d.storeBlock(d.llPool, plane)
				if err != nil {
					return err
				}
				ch.LL = buf
			}
		}
		if ch.H == nil {
			if cb, ok := d.codeblocks[codeblockKey{id.Level, t.X, t.Y, c, 1}]; ok {
				plane, err := d.decompressCodeblock(img, cb, 3)
				if err != nil {
					return err
				}
				buf, err := d.storeBlock(d.hPool, plane)
				if err != nil {
					return err
				}
				ch.H = buf
			}
		}
	}
	t.HasLL = t.Channels[0].LL != nil || t.Channels[1].LL != nil || t.Channels[2].LL != nil
	t.HasH = t.Channels[0].H != nil || t.Channels[1].H != nil || t.Channels[2].H != nil
	return nil
}

// decompressCodeblock reads and Huffman-decodes one codeblock. A
// DecompressError is contained here (spec.md §7): it is logged with the
// offending block's identity and the block decodes to zeros instead of
// aborting the whole tile.
func (d *Decoder) decompressCodeblock(img *tileindex.Image, cb *tileindex.Codeblock, coeffCount int) ([]int16, error) {
	zero := make([]int16, coeffCount*img.BlockWidth*img.BlockHeight)
	if cb.BlockSize <= 0 {
		return zero, nil
	}

	raw, err := d.ra.ReadAt(cb.BlockDataOffset, cb.BlockSize)
	if err != nil {
		return nil, IOErrorf("reading codeblock %d at offset %d: %v", cb.BlockID, cb.BlockDataOffset, err)
	}

	// The reference decoder's only call site hardcodes compressor version
	// 1 regardless of file contents (original_source/src/isyntax.c,
	// isyntax_decompress_codeblock_in_chunk); this decoder does the same
	// rather than threading a version field through internal/metadata.
	plane, err := huffman.Decompress(raw, huffman.Params{
		Version:     huffman.Version1,
		BlockWidth:  img.BlockWidth,
		BlockHeight: img.BlockHeight,
		CoeffCount:  coeffCount,
	})
	if err != nil {
		de := &DecompressError{BlockID: int64(cb.BlockID), Scale: cb.Scale, Color: cb.Color, Cause: err}
		d.log.Warn("codeblock decompress failed, substituting zero-filled block",
			"block_id", de.BlockID, "scale", de.Scale, "color", de.Color, "err", err)
		return zero, nil
	}
	return plane, nil
}

// storeBlock acquires a buffer from pool and packs plane's coefficients
// into it as little-endian int16 pairs, matching the byte layout
// tileindex.ChannelState documents.
func (d *Decoder) storeBlock(pool *blockpool.Pool, plane []int16) ([]byte, error) {
	buf, err := pool.Acquire()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrOutOfMemory, err)
	}
	for i, v := range plane {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(v))
	}
	return buf, nil
}

// channelPlanes unpacks a tile's stored byte blocks for colour c back into
// the int16 slices internal/wavelet operates on. A nil block (no
// coefficients cached for this colour/coefficient-type) stays nil, which
// wavelet.Stitch treats as "missing, substitute a dummy block".
func channelPlanes(t *tileindex.Tile, c int) wavelet.ColourPlanes {
	return wavelet.ColourPlanes{LL: unpackInt16(t.Channels[c].LL), H: unpackInt16(t.Channels[c].H)}
}

func unpackInt16(buf []byte) []int16 {
	if buf == nil {
		return nil
	}
	out := make([]int16, len(buf)/2)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(buf[i*2:]))
	}
	return out
}

// solidWhiteBGRA returns an opaque white tile of the given pixel
// dimensions, the defined result for a tile absent from the file (spec.md
// §4.8): {0xFF,0xFF,0xFF,0xFF} repeating, without ever touching the cache.
func solidWhiteBGRA(width, height int) []byte {
	n := width * height
	white := make([]int32, n)
	for i := range white {
		white[i] = 255
	}
	return colorspace.PackBGRA(white, white, white)
}
