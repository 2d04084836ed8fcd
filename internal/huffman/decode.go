// This file implements the payload-level decode entry point described in
// spec.md §4.3: header parsing for both codeblock compressor versions, the
// zero-run-length body decode loop, per-colour bitplane assembly, the 4x4
// snake un-shuffle, and the sign-magnitude to two's complement conversion.
// Grounded directly against original_source/src/isyntax.c's
// isyntax_hulsken_decompress, which is the only place these details
// (header layout, zero-run extension order, bitplane bit ordering) are
// unambiguously pinned down.
package huffman

import (
	"errors"
	"math/bits"

	"github.com/innovationcore/openslide/internal/bitio"
)

// Version identifies the codeblock compressor version, which determines
// the header layout.
type Version int

const (
	Version1 Version = 1
	Version2 Version = 2
)

// Params describes the shape of one codeblock payload, supplied by the
// metadata layer (internal/metadata) rather than inferred from the bytes
// themselves: a codeblock's compressor version and coefficient count are
// properties of its header_template, not of the compressed payload.
type Params struct {
	Version     Version
	BlockWidth  int
	BlockHeight int
	CoeffCount  int // 1 for an LL codeblock, 3 for an H codeblock (LH/HL/HH)
}

// coeffBitDepth is fixed at 16 bits per coefficient for every iSyntax-style
// container this decoder targets.
const coeffBitDepth = 16

// Decompress decodes one codeblock payload into coeffCount planes of
// blockWidth*blockHeight signed 16-bit coefficients, returned as a single
// flat []int16 slice of length coeffCount*blockWidth*blockHeight (planes
// concatenated in colour order). A payload of 8 bytes or fewer is a
// dummy/empty block and decodes to all zeros with a nil error.
func Decompress(compressed []byte, p Params) ([]int16, error) {
	planeLen := p.BlockWidth * p.BlockHeight
	total := planeLen * p.CoeffCount
	out := make([]int16, total)

	if len(compressed) <= 8 {
		return out, nil
	}

	r := bitio.NewReader(compressed)

	var bitmasks [3]uint32
	var serializedLength int64

	switch p.Version {
	case Version1:
		serializedLength = int64(r.ReadBits(32))
		for c := 0; c < p.CoeffCount; c++ {
			bitmasks[c] = uint32(size16Mask)
		}
	case Version2:
		totalMaskBits := 0
		if p.CoeffCount == 1 {
			bitmasks[0] = uint32(r.ReadBits(16))
			totalMaskBits = bits.OnesCount32(bitmasks[0])
		} else {
			for c := 0; c < p.CoeffCount; c++ {
				bitmasks[c] = uint32(r.ReadBits(16))
				totalMaskBits += bits.OnesCount32(bitmasks[c])
			}
		}
		serializedLength = int64(totalMaskBits) * int64(p.BlockWidth*p.BlockHeight) / 8
	default:
		return nil, errors.New("huffman: unsupported compressor version")
	}

	coeffBufferSize := int64(total) * 2
	if serializedLength > 2*coeffBufferSize {
		return out, ErrLengthExceeded
	}

	zeroRunSymbol := byte(r.ReadBits(8))
	zeroCounterSize := int(r.ReadBits(8))

	var bitplaneOffsets []int
	if p.Version == Version2 {
		totalMaskBits := 0
		for c := 0; c < p.CoeffCount; c++ {
			totalMaskBits += bits.OnesCount32(bitmasks[c])
		}
		ptrBits := log2Floor(serializedLength) + 5
		bitplaneOffsets = make([]int, totalMaskBits)
		for i := range bitplaneOffsets {
			bitplaneOffsets[i] = int(r.ReadBits(ptrBits))
		}
	}
	_ = bitplaneOffsets // offsets let a reader seek directly to one bitplane; the sequential decode below does not need them

	tree, err := buildTree(r)
	if err != nil {
		return out, err
	}

	body, err := decodeBody(r, tree, zeroRunSymbol, zeroCounterSize, serializedLength, p.Version)
	if err != nil {
		return out, err
	}

	if p.Version == Version1 {
		bytesPerBitplane := planeLen / 8
		totalMaskBits := p.CoeffCount * coeffBitDepth
		expectedLength := int64(totalMaskBits * bytesPerBitplane)
		if int64(len(body)) < expectedLength {
			// Some bitplanes were entirely zero and therefore omitted; the
			// real per-colour bitmasks were appended to the tail of the
			// decoded body instead of being known up front.
			tailLen := p.CoeffCount * 2
			if len(body) < tailLen {
				return out, ErrLengthMismatch
			}
			tail := body[len(body)-tailLen:]
			body = body[:len(body)-tailLen]
			for c := 0; c < p.CoeffCount; c++ {
				bitmasks[c] = uint32(tail[2*c]) | uint32(tail[2*c+1])<<8
			}
		}
	}

	planeFromBits(body, bitmasks, p, out)
	unshuffleSnake(out, p)
	for i, v := range out {
		out[i] = sm2tc(uint16(v))
	}

	return out, nil
}

// size16Mask is the all-ones 16-bit mask version 1 implicitly uses: every
// bitplane of every colour is present.
const size16Mask = 0xFFFF

// log2Floor returns floor(log2(n)) for n > 0, matching the C reference's
// (i32)(log2f((float)serialized_length)).
func log2Floor(n int64) int {
	if n <= 1 {
		return 0
	}
	return bits.Len64(uint64(n)) - 1
}

// decodeBody runs the Huffman + zero-run decode loop until exactly
// serializedLength bytes have been produced.
//
// On the zero-run symbol, the following zeroCounterSize bits give a count
// N. N==0 is an escape that emits the zero-run symbol's byte value
// literally (it collided with a real symbol during tree construction).
// Otherwise the run writes N zero bytes in version 1, or N+1 in version 2
// (version 2 cannot express a zero-length run, so it biases by one).
//
// If the symbol immediately following a zero-run is itself the zero-run
// symbol, its counter extends the current run rather than starting a new
// one: per original_source/isyntax.c, "numzeroes <<= zero_counter_size;
// numzeroes |= counter_extra_bits": the existing total is shifted left to
// make room, and the newly read bits become the new low-order bits, so the
// first-read counter ends up occupying the highest-order bits once all
// extensions are applied.
func decodeBody(r *bitio.Reader, t *table, zeroRunSymbol byte, zeroCounterSize int, serializedLength int64, ver Version) ([]byte, error) {
	out := make([]byte, 0, serializedLength)

	// The zero-run symbol's own code and length, needed to recognise a
	// continuation without re-walking the whole tree: the reference
	// decoder compares raw code bits directly rather than decoding a
	// generic symbol and checking its value.
	// codeOf returns (0, 0) for a symbol that never appears as a tree leaf
	// (e.g. a zero-run symbol value chosen from outside the alphabet this
	// codeblock actually uses); the zero-run continuation check below then
	// simply never matches, which is the correct behaviour since such a
	// symbol can never be produced by decodeOne either.
	zerorunCode, zerorunSize := codeOf(t, zeroRunSymbol)
	if zerorunSize == 0 {
		zerorunSize = 1 // degenerate one-symbol tree: treat as a 1-bit code
	}
	zerorunCodeMask := uint64(1)<<uint(zerorunSize) - 1
	zeroCounterMask := uint64(1)<<uint(zeroCounterSize) - 1

	for int64(len(out)) < serializedLength {
		sym, _, err := decodeOne(r, t)
		if err != nil {
			return nil, err
		}

		if sym != zeroRunSymbol {
			out = append(out, sym)
			continue
		}

		numZeroes := int64(r.ReadBits(zeroCounterSize))
		if numZeroes == 0 {
			// Escaped literal: the zero-run symbol's byte value itself.
			out = append(out, sym)
			continue
		}
		if ver == Version2 {
			numZeroes++
		}

		// Extend the run for as long as the bitstream keeps handing us
		// more zero-run codes back-to-back, shifting the running total up
		// to make room for each new low-order chunk.
		for {
			window := r.PeekBits()
			if window&zerorunCodeMask != zerorunCode {
				break
			}
			r.Consume(int(zerorunSize))
			extra := int64((r.PeekBits()) & zeroCounterMask)
			r.Consume(zeroCounterSize)
			if ver == Version2 {
				extra++
			}
			numZeroes = (numZeroes << uint(zeroCounterSize)) | extra
			if int64(len(out))+numZeroes >= serializedLength {
				break
			}
		}

		n := serializedLength - int64(len(out))
		if numZeroes < n {
			n = numZeroes
		}
		for i := int64(0); i < n; i++ {
			out = append(out, 0)
		}
	}

	if int64(len(out)) != serializedLength {
		return nil, ErrLengthMismatch
	}
	return out, nil
}

// codeOf returns the Huffman code and bit length assigned to symbol by t,
// reconstructed from the table's fast and long-code entries. It returns
// (0, 0) if symbol never appears as a tree leaf.
func codeOf(t *table, symbol byte) (uint64, uint8) {
	for idx, l := range t.fastLen {
		if l == degenerateLength && t.fast[idx] == symbol {
			return 0, 0
		}
		if l != 0 && l != degenerateLength && t.fast[idx] == symbol {
			return uint64(idx) & (uint64(1)<<uint(l) - 1), l
		}
	}
	for _, e := range t.longCode {
		if e.symbol == symbol {
			return e.code, e.length
		}
	}
	return 0, 0
}

// planeFromBits distributes the decoded byte stream (a concatenation of
// present bitplanes, in colour order, each bitplane
// block_width*block_height/8 bytes) into out, which holds coeffCount
// sign-magnitude 16-bit planes at this point (converted to two's
// complement by the caller afterwards).
//
// For colour c, bit position p (counting from the lsb of bitmasks[c]):
// byte j bit i of this bitplane's bytes sets bit destBit of coefficient
// 8j+i in plane c, where destBit is 15 for the sign bitplane (p==0) and
// p-1 for every other bitplane (the bitplanes are stored sign, then
// increasing magnitude bit positions, per spec.md's resolution of the
// source's noted ambiguity).
func planeFromBits(body []byte, bitmasks [3]uint32, p Params, out []int16) {
	planeLen := p.BlockWidth * p.BlockHeight
	bytesPerPlane := planeLen / 8

	pos := 0
	for c := 0; c < p.CoeffCount; c++ {
		base := c * planeLen
		mask := bitmasks[c]
		for bitPos := 0; bitPos < coeffBitDepth; bitPos++ {
			if mask&(1<<uint(bitPos)) == 0 {
				continue
			}
			destBit := uint(15)
			if bitPos != 0 {
				destBit = uint(bitPos - 1)
			}
			chunk := body[pos : pos+bytesPerPlane]
			pos += bytesPerPlane
			for j, bv := range chunk {
				for i := 0; i < 8; i++ {
					if bv&(1<<uint(i)) == 0 {
						continue
					}
					coeffIdx := 8*j + i
					out[base+coeffIdx] |= int16(1) << destBit
				}
			}
		}
	}
}

// unshuffleSnake rewrites each colour plane of out from the decoder's flat
// 4x4-block-major order into rectangular tile order. The flat array is a
// sequence of 4x4 blocks; the k-th block's top-left corner lands at
// (area_x, area_y) = ((k mod blockWidth/4)*4, (k div blockWidth/4)*4) in
// the rectangular layout.
func unshuffleSnake(out []int16, p Params) {
	planeLen := p.BlockWidth * p.BlockHeight
	blocksPerRow := p.BlockWidth / 4
	scratch := make([]int16, planeLen)

	for c := 0; c < p.CoeffCount; c++ {
		base := c * planeLen
		copy(scratch, out[base:base+planeLen])

		k := 0
		for srcOff := 0; srcOff+16 <= planeLen; srcOff += 16 {
			areaX := (k % blocksPerRow) * 4
			areaY := (k / blocksPerRow) * 4
			k++
			for row := 0; row < 4; row++ {
				for col := 0; col < 4; col++ {
					src := srcOff + row*4 + col
					dstX := areaX + col
					dstY := areaY + row
					dst := dstY*p.BlockWidth + dstX
					out[base+dst] = scratch[src]
				}
			}
		}
	}
}

// sm2tc converts one 16-bit sign-magnitude word to two's complement. It is
// its own inverse, so the same function converts in the other direction,
// except for negative zero (0x8000), which maps to 0.
func sm2tc(x uint16) int16 {
	m := -(x >> 15)
	result := (^m & x) | (((x & 0x8000) - x) & m)
	return int16(result)
}
