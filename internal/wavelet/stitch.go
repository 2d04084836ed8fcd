package wavelet

// Neighbour identifies one of the eight tiles surrounding the tile being
// reconstructed, in the order spec.md §4.4 lists margin strips.
type Neighbour int

const (
	NeighbourTopLeft Neighbour = iota
	NeighbourTop
	NeighbourTopRight
	NeighbourLeft
	NeighbourRight
	NeighbourBottomLeft
	NeighbourBottom
	NeighbourBottomRight
	neighbourCount
)

// Subband identifies the three highpass coefficient planes packed
// together in one H codeblock. The order chosen here (horizontal detail,
// vertical detail, diagonal detail) is the conventional JPEG2000 subband
// ordering; spec.md does not pin down the in-memory order of the three
// planes within a coeff_h block, so this is a judgement call.
type Subband int

const (
	SubbandHL Subband = iota // top-right quadrant: horizontal detail
	SubbandLH                // bottom-left quadrant: vertical detail
	SubbandHH                // bottom-right quadrant: diagonal detail
)

// ColourPlanes holds one colour component's coefficients for one tile.
// LL is nil if the tile has no LL block loaded (has_ll=false); H is nil if
// it has no H block loaded (has_h=false). When present, H holds the three
// subbands concatenated in SubbandHL, SubbandLH, SubbandHH order, each
// blockWidth*blockHeight samples.
type ColourPlanes struct {
	LL []int16
	H  []int16
}

// dummyLL returns the dummy substitute for a missing LL block: all-255
// (encoded as the maximum positive magnitude the finalisation stage
// expects before taking its absolute value) for colour 0 (luma), all-zero
// for colours 1 and 2, per spec.md §4.4.
func dummyLL(colour, n int) []int16 {
	buf := make([]int16, n)
	if colour == 0 {
		for i := range buf {
			buf[i] = 255
		}
	}
	return buf
}

// Buffer is the stitched tile-plus-margins work buffer for one colour: a
// square array of side `2*(blockWidth+2*perLevelPadding)` samples, laid
// out as four quadrants LL | HL / LH | HH, each of side
// `blockWidth+2*perLevelPadding`.
type Buffer struct {
	Data          []int32
	Side          int // full buffer side length
	QuadrantSide  int // blockWidth + 2*perLevelPadding
	BlockWidth    int
	BlockHeight   int
	InvalidEdges  uint8 // bitmask: 1<<Neighbour set if that margin was synthesised from a dummy block
}

// neighbourBit returns the InvalidEdges bit for a neighbour.
func neighbourBit(n Neighbour) uint8 { return 1 << uint(n) }

// Stitch assembles the work buffer for one colour component, given this
// tile's own coefficients and its eight neighbours' (nil entries are
// missing tiles/blocks and are substituted with a dummy block, per
// spec.md §4.4).
func Stitch(colour int, center ColourPlanes, neighbours [8]ColourPlanes) *Buffer {
	bw, bh := inferBlockDims(center, neighbours)
	quad := bw + 2*perLevelPadding
	side := 2 * quad

	buf := &Buffer{
		Data:        make([]int32, side*side),
		Side:        side,
		QuadrantSide: quad,
		BlockWidth:  bw,
		BlockHeight: bh,
	}

	// Quadrant origins within the full buffer.
	origins := [4]struct{ x, y int }{
		{0, 0},       // LL
		{quad, 0},    // HL
		{0, quad},    // LH
		{quad, quad}, // HH
	}

	planeFor := func(q int, cp ColourPlanes) []int16 {
		switch q {
		case 0:
			if cp.LL == nil {
				return dummyLL(colour, bw*bh)
			}
			return cp.LL
		case 1:
			return subbandPlane(cp.H, SubbandHL, bw*bh)
		case 2:
			return subbandPlane(cp.H, SubbandLH, bw*bh)
		default:
			return subbandPlane(cp.H, SubbandHH, bw*bh)
		}
	}

	for q := 0; q < 4; q++ {
		ox, oy := origins[q].x, origins[q].y
		centreVals := planeFor(q, center)
		writeCentre(buf.Data, side, ox+perLevelPadding, oy+perLevelPadding, bw, bh, centreVals)
	}

	for _, n := range allNeighbours() {
		np := neighbours[n]
		for q := 0; q < 4; q++ {
			ox, oy := origins[q].x, origins[q].y
			vals := planeFor(q, np)
			missing := (q == 0 && np.LL == nil) || (q != 0 && np.H == nil)
			writeMargin(buf.Data, side, ox, oy, bw, bh, n, vals)
			if missing {
				buf.InvalidEdges |= neighbourBit(n)
			}
		}
	}

	return buf
}

func allNeighbours() []Neighbour {
	ns := make([]Neighbour, 0, int(neighbourCount))
	for n := Neighbour(0); n < neighbourCount; n++ {
		ns = append(ns, n)
	}
	return ns
}

// subbandPlane extracts one of the three packed highpass planes from a
// concatenated coeff_h buffer, or returns an all-zero dummy if h is nil.
func subbandPlane(h []int16, sb Subband, n int) []int16 {
	if h == nil {
		return make([]int16, n) // all-zero dummy for H, per spec.md §4.4
	}
	off := int(sb) * n
	return h[off : off+n]
}

// inferBlockDims derives blockWidth/blockHeight from whichever plane is
// present; a tile reconstruction is never attempted with every one of its
// nine contributing colour planes missing.
func inferBlockDims(center ColourPlanes, neighbours [8]ColourPlanes) (bw, bh int) {
	// blockWidth/blockHeight are constant across the whole file (spec.md
	// §3, Header template); callers always know them ahead of time, but
	// Stitch is also exercised directly by tests with only coefficient
	// slices to hand, so derive them defensively from whichever plane
	// exists.
	if center.LL != nil {
		n := len(center.LL)
		return squareDims(n)
	}
	if center.H != nil {
		return squareDims(len(center.H) / 3)
	}
	for _, np := range neighbours {
		if np.LL != nil {
			return squareDims(len(np.LL))
		}
		if np.H != nil {
			return squareDims(len(np.H) / 3)
		}
	}
	return 0, 0
}

func squareDims(n int) (int, int) {
	// block_width == block_height in every known container; if that ever
	// changes, the caller-supplied dimensions should be threaded through
	// instead of inferred.
	w := 0
	for w*w < n {
		w++
	}
	return w, w
}

// writeCentre copies a blockWidth*blockHeight plane into the core of one
// quadrant at (x0,y0).
func writeCentre(data []int32, stride, x0, y0, bw, bh int, plane []int16) {
	for y := 0; y < bh; y++ {
		for x := 0; x < bw; x++ {
			data[(y0+y)*stride+(x0+x)] = int32(plane[y*bw+x])
		}
	}
}

// writeMargin copies the perLevelPadding-wide strip of plane nearest to
// the centre (the edge a neighbour in direction n would actually border)
// into the corresponding margin position around quadrant origin (ox,oy).
func writeMargin(data []int32, stride, ox, oy, bw, bh int, n Neighbour, plane []int16) {
	p := perLevelPadding

	// Helper to fetch plane[y][x] with plane addressed row-major, width bw.
	at := func(x, y int) int32 { return int32(plane[y*bw+x]) }

	switch n {
	case NeighbourTop:
		// Bottom p rows of the tile above go into our top margin.
		for y := 0; y < p; y++ {
			srcY := bh - p + y
			for x := 0; x < bw; x++ {
				data[(oy+y)*stride+(ox+p+x)] = at(x, srcY)
			}
		}
	case NeighbourBottom:
		for y := 0; y < p; y++ {
			for x := 0; x < bw; x++ {
				data[(oy+p+bh+y)*stride+(ox+p+x)] = at(x, y)
			}
		}
	case NeighbourLeft:
		for y := 0; y < bh; y++ {
			for x := 0; x < p; x++ {
				srcX := bw - p + x
				data[(oy+p+y)*stride+(ox+x)] = at(srcX, y)
			}
		}
	case NeighbourRight:
		for y := 0; y < bh; y++ {
			for x := 0; x < p; x++ {
				data[(oy+p+y)*stride+(ox+p+bw+x)] = at(x, y)
			}
		}
	case NeighbourTopLeft:
		for y := 0; y < p; y++ {
			for x := 0; x < p; x++ {
				data[(oy+y)*stride+(ox+x)] = at(bw-p+x, bh-p+y)
			}
		}
	case NeighbourTopRight:
		for y := 0; y < p; y++ {
			for x := 0; x < p; x++ {
				data[(oy+y)*stride+(ox+p+bw+x)] = at(x, bh-p+y)
			}
		}
	case NeighbourBottomLeft:
		for y := 0; y < p; y++ {
			for x := 0; x < p; x++ {
				data[(oy+p+bh+y)*stride+(ox+x)] = at(bw-p+x, y)
			}
		}
	case NeighbourBottomRight:
		for y := 0; y < p; y++ {
			for x := 0; x < p; x++ {
				data[(oy+p+bh+y)*stride+(ox+p+bw+x)] = at(x, y)
			}
		}
	}
}

// Transform runs the 5/3 inverse IDWT over the stitched buffer in place:
// horizontal pass first, then vertical, both with cas=1, per spec.md
// §4.4.
func (b *Buffer) Transform() {
	inverse2DCas1(b.Data, b.Side, b.Side)
}

// ChildLL extracts the blockWidth*blockHeight LL sub-rectangle belonging
// to one of this tile's four children at scale-1, after Transform has run.
// childIdx follows the quadrant order LL,HL,LH,HH (i.e. top-left,
// top-right, bottom-left, bottom-right child).
func (b *Buffer) ChildLL(childIdx, scale int) []int16 {
	fvp := firstValidPixel(scale)
	qx, qy := 0, 0
	switch childIdx {
	case 1:
		qx = b.QuadrantSide
	case 2:
		qy = b.QuadrantSide
	case 3:
		qx, qy = b.QuadrantSide, b.QuadrantSide
	}

	out := make([]int16, b.BlockWidth*b.BlockHeight)
	for y := 0; y < b.BlockHeight; y++ {
		for x := 0; x < b.BlockWidth; x++ {
			srcX := qx + fvp + x
			srcY := qy + fvp + y
			out[y*b.BlockWidth+x] = int16(b.Data[srcY*b.Side+srcX])
		}
	}
	return out
}

// ChildInvalidEdges returns the subset of this tile's InvalidEdges that
// border childIdx's position in the parent, per spec.md §4.4 ("a child
// inherits only the outer-edge invalid flags that border its own position
// in the parent").
func (b *Buffer) ChildInvalidEdges(childIdx int) uint8 {
	// Children are arranged LL(top-left), HL(top-right), LH(bottom-left),
	// HH(bottom-right); each only borders the parent's outer edges on its
	// own two outward-facing sides (plus the shared corner).
	switch childIdx {
	case 0: // top-left child
		return b.InvalidEdges & (neighbourBit(NeighbourTopLeft) | neighbourBit(NeighbourTop) | neighbourBit(NeighbourLeft))
	case 1: // top-right child
		return b.InvalidEdges & (neighbourBit(NeighbourTopRight) | neighbourBit(NeighbourTop) | neighbourBit(NeighbourRight))
	case 2: // bottom-left child
		return b.InvalidEdges & (neighbourBit(NeighbourBottomLeft) | neighbourBit(NeighbourBottom) | neighbourBit(NeighbourLeft))
	default: // bottom-right child
		return b.InvalidEdges & (neighbourBit(NeighbourBottomRight) | neighbourBit(NeighbourBottom) | neighbourBit(NeighbourRight))
	}
}

// Centre returns the 2*blockWidth x 2*blockHeight reconstructed samples
// at the centre of the buffer after Transform has run: this tile's own
// pixel data (pre-colour-reconstruction), one colour plane.
//
// The stitched buffer's side is 2*blockWidth + 4*perLevelPadding (each of
// the two subband dimensions carries a perLevelPadding margin on both
// sides before doubling resolution through the IDWT), so the valid,
// fully-supported tile occupies the middle 2*blockWidth samples with a
// border of 2*perLevelPadding on every side.
func (b *Buffer) Centre() []int32 {
	tileW := 2 * b.BlockWidth
	tileH := 2 * b.BlockHeight
	off := 2 * perLevelPadding
	out := make([]int32, tileW*tileH)
	for y := 0; y < tileH; y++ {
		for x := 0; x < tileW; x++ {
			out[y*tileW+x] = b.Data[(off+y)*b.Side+(off+x)]
		}
	}
	return out
}
