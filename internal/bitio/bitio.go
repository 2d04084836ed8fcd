// Package bitio implements the LSB-first bitstream reader described in
// spec.md §4.1 (C1). It is styled after the teacher's bio.Reader
// (mrjoshuak-go-jpeg2000/internal/bio) but generalised from a byte-at-a-time
// MSB-first reader to the spec's unaligned 64-bit LSB-first peek, which the
// Huffman decompressor (internal/huffman) needs to sustain its fast-table
// lookup without a bit-by-bit loop.
package bitio

// overrun is the minimum number of zero bytes that must follow the logical
// end of buf so that PeekBits never reads past the allocation.
const overrun = 7

// Reader is an LSB-first bit reader over a byte buffer padded with at least
// overrun zero bytes past its logical length. The fundamental primitive,
// PeekBits, loads an unaligned 64-bit little-endian word at pos/8 and shifts
// right by pos%8, matching the hardware-friendly approach spec.md requires.
type Reader struct {
	buf []byte // padded buffer; len(buf) >= logicalLen+overrun
	pos int    // bit cursor
	n   int    // logical length in bits (unpadded)
}

// NewReader wraps data for bit-level reading. data is copied into a scratch
// buffer over-allocated by overrun zero bytes so PeekBits never faults, the
// way spec.md §4.1 prescribes.
func NewReader(data []byte) *Reader {
	padded := make([]byte, len(data)+overrun)
	copy(padded, data)
	return &Reader{buf: padded, n: len(data) * 8}
}

// Len returns the number of unread bits remaining in the logical stream.
func (r *Reader) Len() int {
	remaining := r.n - r.pos
	if remaining < 0 {
		return 0
	}
	return remaining
}

// BitPos returns the current bit cursor, for callers that need to record a
// resume point (e.g. the seektable offset table in internal/huffman).
func (r *Reader) BitPos() int { return r.pos }

// Seek moves the bit cursor to an absolute bit position.
func (r *Reader) Seek(bitPos int) { r.pos = bitPos }

// PeekBits returns up to 64 bits starting at the current cursor without
// advancing it. Bits beyond the logical end of the stream read as zero
// because of the padding, which is what lets the caller always request a
// full 64-bit window regardless of how close to the end it is.
func (r *Reader) PeekBits() uint64 {
	bytePos := r.pos >> 3
	bitOff := uint(r.pos & 7)
	var word uint64
	if bytePos+8 <= len(r.buf) {
		word = le64(r.buf[bytePos:])
	} else {
		// Extremely short tail buffers (only reachable with corrupt
		// headers claiming more data than is present): read byte-wise.
		var tmp [8]byte
		copy(tmp[:], r.buf[bytePos:])
		word = le64(tmp[:])
	}
	return word >> bitOff
}

func le64(b []byte) uint64 {
	return uint64(b[0]) | uint64(b[1])<<8 | uint64(b[2])<<16 | uint64(b[3])<<24 |
		uint64(b[4])<<32 | uint64(b[5])<<40 | uint64(b[6])<<48 | uint64(b[7])<<56
}

// Consume advances the bit cursor by n bits (0 <= n <= 64).
func (r *Reader) Consume(n int) { r.pos += n }

// ReadBits reads and consumes the low n bits (0 <= n <= 57), returning them
// as the low bits of the result.
func (r *Reader) ReadBits(n int) uint64 {
	if n == 0 {
		return 0
	}
	v := r.PeekBits() & ((uint64(1) << uint(n)) - 1)
	r.Consume(n)
	return v
}

// ReadBit reads a single bit.
func (r *Reader) ReadBit() int {
	return int(r.ReadBits(1))
}

// Aligned reports whether the cursor sits on a byte boundary.
func (r *Reader) Aligned() bool { return r.pos%8 == 0 }
