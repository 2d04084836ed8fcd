// Package huffman implements the codeblock decompressor from spec.md §4.3
// (C3): an in-band Huffman tree, a zero-run length code, and a bitplane
// assembly step that un-shuffles the 4x4 "snake" ordering and converts
// sign-magnitude coefficients to two's complement.
//
// The fast/long-table split (a direct lookup table for codes no longer than
// fastBits, falling through to a short linear scan for longer ones) mirrors
// the two-tier dispatch the teacher's tag-tree and MQ decoders use to keep
// per-symbol cost low (jpeg2000/mqc, before it was dropped); here it is built over a from-scratch Huffman tree instead of
// an MQ probability table, since this format's entropy stage has no
// arithmetic coder.
package huffman

import (
	"github.com/innovationcore/openslide/internal/bitio"
)

// fastBits is the width of the direct-lookup table (spec.md recommends 11).
const fastBits = 11

const longTableNotFound = -1

// table is the decoded Huffman codebook for one codeblock payload.
//
// Each fast-table slot is in exactly one of three states: a direct symbol
// (fastLen[idx] > 0), a pointer to the first long-code entry sharing that
// prefix (fastLen[idx] == 0 && fastLong[idx] >= 0), or empty/unused
// (fastLen[idx] == 0 && fastLong[idx] < 0).
type table struct {
	fast     [1 << fastBits]byte
	fastLen  [1 << fastBits]uint8
	fastLong [1 << fastBits]int32
	longCode []longEntry
}

type longEntry struct {
	code   uint64
	length uint8
	symbol byte
}

// buildTree reads the in-band Huffman tree description from r, per
// spec.md §4.3: a 0 bit descends into a new node (first its left subtree,
// then — after backtracking — its right subtree); a 1 bit marks a leaf,
// whose symbol is the following 8 bits. The code assigned to a leaf is the
// sequence of bits produced while descending: each "descend" bit (always
// the 0 that triggered it) appends a 0, and each backtrack-and-flip
// produces a 1 in that position. Because internal/bitio.Reader delivers
// bits least-significant-bit-first, a code built this way can be looked up
// directly against PeekBits() with no bit-reversal step.
func buildTree(r *bitio.Reader) (*table, error) {
	t := &table{}
	for i := range t.fast {
		t.fastLong[i] = -1
	}
	haveAny := false

	var path []byte // 0/1 per position, path[i] is the i-th bit consumed (LSB-first)
	for {
		if r.Len() == 0 {
			return nil, ErrTableOverrun
		}
		bit := r.ReadBit()
		if bit == 0 {
			path = append(path, 0)
			continue
		}

		if r.Len() < 8 {
			return nil, ErrTableOverrun
		}
		symbol := byte(r.ReadBits(8))
		addCode(t, path, symbol)
		haveAny = true

		// Backtrack to the last 0, flip it to 1 (visit that node's right
		// sibling next), and drop everything after it.
		i := len(path) - 1
		for i >= 0 && path[i] == 1 {
			i--
		}
		if i < 0 {
			break
		}
		path[i] = 1
		path = path[:i+1]
	}

	if !haveAny {
		return nil, ErrTableOverrun
	}
	return t, nil
}

func codeValue(path []byte) (code uint64, length int) {
	length = len(path)
	for i, b := range path {
		if b != 0 {
			code |= 1 << uint(i)
		}
	}
	return code, length
}

// degenerateLength marks a fast-table slot holding the single symbol of a
// one-leaf tree, whose code has zero bits and is therefore never consumed.
const degenerateLength = 0xFF

func addCode(t *table, path []byte, symbol byte) {
	code, length := codeValue(path)
	if length == 0 {
		// Degenerate single-symbol tree: every input maps to this symbol
		// without consuming any bits.
		for i := range t.fast {
			t.fast[i] = symbol
			t.fastLen[i] = degenerateLength
		}
		return
	}
	if length <= fastBits {
		for hi := uint64(0); hi < (1 << uint(fastBits-length)); hi++ {
			idx := code | (hi << uint(length))
			t.fast[idx] = symbol
			t.fastLen[idx] = uint8(length)
		}
		return
	}

	idx := len(t.longCode)
	t.longCode = append(t.longCode, longEntry{code: code, length: uint8(length), symbol: symbol})

	prefix := code & ((1 << uint(fastBits)) - 1)
	if t.fastLen[prefix] == 0 && t.fastLong[prefix] < 0 {
		t.fastLong[prefix] = int32(idx)
	}
}

// decodeOne consumes one symbol from r using t, returning the symbol and
// its code length in bits.
func decodeOne(r *bitio.Reader, t *table) (byte, int, error) {
	window := r.PeekBits()
	idx := window & ((1 << uint(fastBits)) - 1)

	switch {
	case t.fastLen[idx] == degenerateLength:
		return t.fast[idx], 0, nil
	case t.fastLen[idx] != 0:
		length := int(t.fastLen[idx])
		r.Consume(length)
		return t.fast[idx], length, nil
	}

	start := t.fastLong[idx]
	if start < 0 {
		return 0, 0, ErrSymbolNotFound
	}
	prefixMask := uint64(1)<<uint(fastBits) - 1
	// Bounded linear scan: the long-code table is small (codes longer than
	// fastBits bits are rare), and we only need to check entries sharing
	// this prefix, wherever they fall in first-seen order.
	for i := int(start); i < len(t.longCode); i++ {
		e := t.longCode[i]
		if e.code&prefixMask != idx {
			continue
		}
		mask := uint64(1)<<uint(e.length) - 1
		if window&mask == e.code {
			r.Consume(int(e.length))
			return e.symbol, int(e.length), nil
		}
	}
	return 0, 0, ErrSymbolNotFound
}
